// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pdiddy/lecture-engine/pkg/types"
	"go.uber.org/zap"
)

// OpenAIClient implements Client with the openai-go SDK. Any
// OpenAI-compatible endpoint works through BaseURL.
type OpenAIClient struct {
	client openai.Client
	log    *zap.Logger
}

// NewOpenAIClient builds a client from the llm section of the config.
func NewOpenAIClient(cfg types.LLMConfig, log *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide llm.api_key or .secrets/openai-api-key")
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), log: log.Named("openai")}, nil
}

func (o *OpenAIClient) params(req Request) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		p.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		p.Temperature = openai.Float(*req.Temperature)
	}
	return p
}

// Invoke sends one chat completion request.
func (o *OpenAIClient) Invoke(ctx context.Context, req Request) (Response, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.params(req))
	if err != nil {
		return Response{}, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, ErrEmpty
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return Response{}, ErrEmpty
	}
	return Response{
		Content: []Block{{Type: "text", Text: text}},
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// Stream sends a streaming chat completion request and yields content deltas.
func (o *OpenAIClient) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(req))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			o.log.Debug("stream ended with error", zap.Error(err))
			yield("", mapOpenAIError(err))
		}
	}
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return statusError("openai", apiErr.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("calling openai API: %w", err)
}
