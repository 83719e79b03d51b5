// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm defines the transport the pipeline's agents use to reach a
// text-generation service, with Anthropic, OpenAI-compatible, and offline
// mock implementations. Timeouts and retries live here; callers only pass
// a context.
package llm

import (
	"context"
	"errors"
	"iter"
	"strings"
)

var (
	ErrUnauthorized = errors.New("llm unauthorized")
	ErrRateLimited  = errors.New("llm rate limited")
	ErrUnavailable  = errors.New("llm unavailable")
	ErrEmpty        = errors.New("llm empty response")
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single model call.
type Request struct {
	System      string
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Block is a typed content block of a response.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage reports provider-side token counts when available.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the result of a non-streaming call.
type Response struct {
	Content []Block
	Usage   Usage
}

// Text concatenates the text blocks of r.
func (r Response) Text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// Client is the transport contract. Stream yields text deltas in arrival
// order; a non-nil error ends the sequence. Both honor ctx cancellation.
type Client interface {
	Invoke(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// UserPrompt builds a request with a system prompt and one user message.
func UserPrompt(system, user string) Request {
	return Request{
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: user}},
	}
}

// Float returns a pointer to v, for Request.Temperature.
func Float(v float64) *float64 {
	return &v
}
