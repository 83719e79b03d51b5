// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agent implements the seven single-purpose prompt/response
// contracts the pipeline sequences. Every variant is an independent value
// type that builds its own prompt from an Input and calls an llm.Client;
// decoding of model output goes through jsonrepair so a malformed answer
// yields a typed fallback rather than a half-filled value.
package agent

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"text/template"

	"github.com/pdiddy/lecture-engine/internal/llm"
	"github.com/pdiddy/lecture-engine/pkg/types"
)

// Agent names reported in step events.
const (
	NameContext   = "Context"
	NameAnalysis  = "Analysis"
	NameDraft     = "Draft"
	NameFactCheck = "FactCheck"
	NameReview    = "Review"
	NamePolish    = "Polish"
	NameFormat    = "Format"
)

// ErrUnparsable reports that a model answer could not be decoded into the
// agent's result type.
var ErrUnparsable = errors.New("unparsable agent response")

// Config is the per-agent model configuration.
type Config = types.AgentConfig

// Prompt is a rendered request: system instructions plus one user message.
type Prompt struct {
	System string
	User   string
}

// Input is everything an agent may draw on when building its prompt.
// Agents read the fields they need and ignore the rest.
type Input struct {
	Request types.GenerationRequest
	Context types.CourseContext
	Gap     *types.GapAnalysisResult
	Content string
	Review  *types.ReviewResult
}

// Agent is the capability every pipeline stage shares.
type Agent interface {
	Name() string
	Model() string
	BuildPrompt(in Input) (Prompt, error)
}

// Invoker is an agent answered in one round trip.
type Invoker interface {
	Agent
	Invoke(ctx context.Context, p Prompt) (string, error)
}

// StreamInvoker is an agent whose answer arrives as text fragments.
type StreamInvoker interface {
	Agent
	InvokeStream(ctx context.Context, p Prompt) iter.Seq2[string, error]
}

// caller holds the transport and model settings shared by all variants.
type caller struct {
	client llm.Client
	cfg    Config
}

func newCaller(client llm.Client, cfg Config) caller {
	return caller{client: client, cfg: cfg}
}

// Model returns the configured model identifier.
func (c caller) Model() string { return c.cfg.Model }

func (c caller) request(p Prompt) llm.Request {
	req := llm.UserPrompt(p.System, p.User)
	req.Model = c.cfg.Model
	req.MaxTokens = c.cfg.MaxTokens
	if c.cfg.Temperature > 0 {
		req.Temperature = llm.Float(c.cfg.Temperature)
	}
	return req
}

// Invoke sends p and returns the response text.
func (c caller) Invoke(ctx context.Context, p Prompt) (string, error) {
	resp, err := c.client.Invoke(ctx, c.request(p))
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// InvokeStream sends p and yields response fragments.
func (c caller) InvokeStream(ctx context.Context, p Prompt) iter.Seq2[string, error] {
	return c.client.Stream(ctx, c.request(p))
}

// render executes tmpl with data.
func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// promptData is the view handed to every user-message template.
type promptData struct {
	Topic      string
	Subtopics  string
	Mode       types.Mode
	Transcript string
	Counts     types.AssignmentCounts
	Context    types.CourseContext
	Gap        *types.GapAnalysisResult
	Content    string
	Review     *types.ReviewResult
	Outline    string
}

func newPromptData(in Input) promptData {
	return promptData{
		Topic:      in.Request.Topic,
		Subtopics:  joinList(in.Request.SubtopicList()),
		Mode:       in.Request.Mode,
		Transcript: in.Request.Transcript,
		Counts:     in.Request.Counts(),
		Context:    in.Context,
		Gap:        in.Gap,
		Content:    in.Content,
		Review:     in.Review,
	}
}
