// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/pdiddy/lecture-engine/internal/httputil"
	"github.com/pdiddy/lecture-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultAnthropicURL is the Messages API host used when no base URL is set.
const DefaultAnthropicURL = "https://api.anthropic.com"

const (
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 4096
	maxSSELine       = 1 << 20
)

// AnthropicClient talks to the Anthropic Messages API over plain HTTP.
// Streaming responses are read as Server-Sent Events.
type AnthropicClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
	Logger     *zap.Logger
}

// NewAnthropicClient builds a client from the llm section of the config.
func NewAnthropicClient(cfg types.LLMConfig, log *zap.Logger) *AnthropicClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnthropicClient{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		MaxRetries: cfg.MaxRetries,
		Logger:     log.Named("anthropic"),
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []Block `json:"content"`
	Usage   Usage   `json:"usage"`
}

// anthropicEvent covers the SSE event payloads this client reads.
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke sends one non-streaming request and returns the full response.
func (c *AnthropicClient) Invoke(ctx context.Context, req Request) (Response, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var aResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&aResp); err != nil {
		return Response{}, fmt.Errorf("decoding anthropic response: %w", err)
	}
	out := Response{Content: aResp.Content, Usage: aResp.Usage}
	if strings.TrimSpace(out.Text()) == "" {
		return Response{}, ErrEmpty
	}
	return out, nil
}

// Stream sends a streaming request and yields text deltas as they arrive.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.post(ctx, req, true)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "" {
				continue
			}
			var ev anthropicEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				c.Logger.Debug("skipping malformed stream event", zap.Error(err))
				continue
			}
			switch ev.Type {
			case "content_block_delta":
				if ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
					continue
				}
				if !yield(ev.Delta.Text, nil) {
					return
				}
			case "error":
				yield("", streamError(ev.Error.Type, ev.Error.Message))
				return
			case "message_stop":
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			yield("", fmt.Errorf("reading anthropic stream: %w", err))
		}
	}
}

func (c *AnthropicClient) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultAnthropicURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, httpReq, c.MaxRetries, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("calling anthropic API: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError("anthropic", resp.StatusCode, string(errBody))
	}
	return resp, nil
}

// statusError maps an HTTP failure status onto the sentinel errors.
func statusError(vendor string, status int, body string) error {
	body = strings.TrimSpace(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnauthorized, vendor, status, body)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s returned %d: %s", ErrRateLimited, vendor, status, body)
	case status >= 500:
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, vendor, status, body)
	default:
		return fmt.Errorf("%s returned %d: %s", vendor, status, body)
	}
}

func streamError(kind, message string) error {
	switch kind {
	case "overloaded_error", "api_error":
		return fmt.Errorf("%w: %s", ErrUnavailable, message)
	case "rate_limit_error":
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	case "authentication_error", "permission_error":
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	default:
		return fmt.Errorf("anthropic stream error %s: %s", kind, message)
	}
}
