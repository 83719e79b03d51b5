// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences the content agents for one generation request
// and reports progress as an ordered, pull-driven stream of events.
//
// A run moves through these states:
//
//	Idle → Detecting → (Analyzing)? → Drafting → (Sanitizing)? →
//	(Reviewing ⇄ Refining)* → (Formatting)? → Complete
//
// Aborted, Error and Mismatch end a run early. Analyzing runs only with a
// transcript and subtopics, Sanitizing only with a transcript, Formatting
// only in assignment mode. The review loop stops once the reviewer no
// longer asks for polish or after MaxPolishRounds rounds.
package pipeline

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pdiddy/lecture-engine/internal/agent"
	"github.com/pdiddy/lecture-engine/internal/cost"
	"github.com/pdiddy/lecture-engine/internal/llm"
	"github.com/pdiddy/lecture-engine/internal/patch"
	"github.com/pdiddy/lecture-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultMaxPolishRounds caps the review/refine loop.
const DefaultMaxPolishRounds = 2

// State is a run's position in the pipeline.
type State string

const (
	StateIdle       State = "idle"
	StateDetecting  State = "detecting"
	StateAnalyzing  State = "analyzing"
	StateDrafting   State = "drafting"
	StateSanitizing State = "sanitizing"
	StateReviewing  State = "reviewing"
	StateRefining   State = "refining"
	StateFormatting State = "formatting"
	StateComplete   State = "complete"
	StateAborted    State = "aborted"
	StateError      State = "error"
	StateMismatch   State = "mismatch"
)

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateAborted, StateError, StateMismatch:
		return true
	}
	return false
}

// Per-phase capabilities beyond the basic agent contract.
type (
	ContextAgent interface {
		agent.Invoker
		Decode(raw string) (types.CourseContext, bool)
	}
	AnalysisAgent interface {
		agent.Invoker
		Decode(raw string, subtopics []string) (types.GapAnalysisResult, error)
	}
	SanitizeAgent interface {
		agent.Invoker
		Decode(raw string) (string, error)
	}
	ReviewAgent interface {
		agent.Invoker
		Decode(raw string) (types.ReviewResult, error)
	}
	PolishAgent interface {
		agent.Invoker
		Apply(content, raw string) patch.Result
	}
	FormatAgent interface {
		agent.Invoker
		FastPath(content string) ([]types.AssignmentItem, bool)
		Decode(raw string) ([]types.AssignmentItem, error)
	}
)

// Agents holds one implementation per phase. Draft is required. A nil
// Context yields the generic course context; a nil Analysis, Sanitize,
// Review or Polish skips that phase; a nil Format fails assignment runs.
type Agents struct {
	Context  ContextAgent
	Analysis AnalysisAgent
	Draft    agent.StreamInvoker
	Sanitize SanitizeAgent
	Review   ReviewAgent
	Polish   PolishAgent
	Format   FormatAgent
}

// NewAgents builds the standard seven agents over one transport.
func NewAgents(client llm.Client, cfg types.AgentModels) Agents {
	return Agents{
		Context:  agent.NewContextDetector(client, cfg.Context),
		Analysis: agent.NewCoverageAnalyzer(client, cfg.Analysis),
		Draft:    agent.NewDrafter(client, cfg.Draft),
		Sanitize: agent.NewFactSanitizer(client, cfg.Sanitize),
		Review:   agent.NewQualityReviewer(client, cfg.Review),
		Polish:   agent.NewPolishRefiner(client, cfg.Polish),
		Format:   agent.NewStructuredFormatter(client, cfg.Format),
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxPolishRounds sets the review/refine cap. Values below zero are
// treated as zero, which disables review.
func WithMaxPolishRounds(n int) Option {
	return func(o *Orchestrator) { o.maxPolishRounds = max(n, 0) }
}

// WithRunIDs replaces the run identifier generator.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) { o.newID = next }
}

// Orchestrator runs generation requests. It holds no per-run state, so one
// value may serve concurrent runs.
type Orchestrator struct {
	agents          Agents
	deps            Deps
	maxPolishRounds int
	newID           func() string
}

// New validates agents and returns an Orchestrator.
func New(agents Agents, deps Deps, opts ...Option) (*Orchestrator, error) {
	if agents.Draft == nil {
		return nil, errors.New("pipeline: a draft agent is required")
	}
	o := &Orchestrator{
		agents:          agents,
		deps:            deps.withDefaults(),
		maxPolishRounds: DefaultMaxPolishRounds,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Generate starts a run and returns its event stream.
func (o *Orchestrator) Generate(ctx context.Context, req types.GenerationRequest) iter.Seq[types.Event] {
	return o.Start(ctx, req).Events()
}

// Start prepares a run without executing it. Work begins when the
// caller ranges over Events.
func (o *Orchestrator) Start(ctx context.Context, req types.GenerationRequest) *Run {
	id := o.newID()
	return &Run{
		o:     o,
		ctx:   ctx,
		id:    id,
		req:   req,
		log:   o.deps.Logger.With(zap.String("run_id", id)),
		state: StateIdle,
	}
}

// Run is one execution of the pipeline. Its event stream can be consumed
// once.
type Run struct {
	o   *Orchestrator
	ctx context.Context
	id  string
	req types.GenerationRequest
	log *zap.Logger

	started atomic.Bool
	meter   cost.Meter

	mu    sync.Mutex
	state State
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Cost returns the spend accumulated so far.
func (r *Run) Cost() float64 { return r.meter.Total() }

func (r *Run) setState(s State) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()
	r.log.Debug("state transition", zap.String("from", string(prev)), zap.String("to", string(s)))
}

// Events returns the run's event stream. It ends with exactly one of
// complete, error or mismatch, or without a terminal event when the
// context is cancelled or the consumer stops early. Ranging a second time
// yields nothing.
func (r *Run) Events() iter.Seq[types.Event] {
	return func(yield func(types.Event) bool) {
		if r.started.Swap(true) {
			return
		}
		(&execution{run: r, yield: yield}).execute()
	}
}
