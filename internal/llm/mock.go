// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
)

// MockRule answers requests whose system prompt contains Match.
type MockRule struct {
	Match string
	Reply func(req Request) (string, error)
}

// MockClient is an offline Client. It picks the first rule whose Match
// appears in the system prompt and falls back to Default. Streams split the
// reply into word-sized chunks. Safe for concurrent use.
type MockClient struct {
	Rules   []MockRule
	Default func(req Request) (string, error)

	mu    sync.Mutex
	calls []Request
}

// Invoke returns the rule's reply as a single text block.
func (m *MockClient) Invoke(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	text, err := m.reply(req)
	if err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Response{}, ErrEmpty
	}
	return Response{Content: []Block{{Type: "text", Text: text}}}, nil
}

// Stream yields the reply one word (with its trailing space) at a time.
func (m *MockClient) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, err := m.reply(req)
		if err != nil {
			yield("", err)
			return
		}
		for _, chunk := range splitChunks(text) {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Calls returns a copy of every request received, in order.
func (m *MockClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockClient) reply(req Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	for _, r := range m.Rules {
		if strings.Contains(req.System, r.Match) {
			return r.Reply(req)
		}
	}
	if m.Default != nil {
		return m.Default(req)
	}
	return "", fmt.Errorf("mock: no rule matches system prompt %q", firstLine(req.System))
}

func splitChunks(text string) []string {
	var chunks []string
	for len(text) > 0 {
		i := strings.IndexAny(text, " \n")
		if i < 0 {
			chunks = append(chunks, text)
			break
		}
		chunks = append(chunks, text[:i+1])
		text = text[i+1:]
	}
	return chunks
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
