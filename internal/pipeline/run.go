// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/lecture-engine/internal/agent"
	"github.com/pdiddy/lecture-engine/internal/cost"
	"github.com/pdiddy/lecture-engine/internal/patch"
	"github.com/pdiddy/lecture-engine/pkg/types"
	"go.uber.org/zap"
)

// errStop unwinds a phase after the run has reached a terminal state or
// the consumer went away.
var errStop = errors.New("run stopped")

// execution carries the evolving values of one run. Only the goroutine
// ranging over the event stream touches it.
type execution struct {
	run   *Run
	yield func(types.Event) bool

	course  types.CourseContext
	gap     *types.GapAnalysisResult
	content string
}

func (x *execution) execute() {
	r := x.run
	r.log.Info("run started",
		zap.String("topic", r.req.Topic),
		zap.String("mode", string(r.req.Mode)),
		zap.Bool("transcript", r.req.HasTranscript()),
	)
	if err := r.req.Validate(); err != nil {
		x.fail("", fmt.Errorf("invalid request: %w", err))
		return
	}

	phases := []func() error{
		x.detect,
		x.analyze,
		x.draft,
		x.sanitize,
		x.review,
		x.format,
	}
	for _, phase := range phases {
		if err := phase(); err != nil {
			return
		}
	}

	if x.cancelled() {
		return
	}
	r.setState(StateComplete)
	total := r.meter.Total()
	r.log.Info("run complete", zap.Float64("cost", total), zap.Int("calls", r.meter.Calls()))
	x.emit(types.CompleteEvent(x.content, total))
}

// emit publishes ev. A consumer that stops ranging aborts the run.
func (x *execution) emit(ev types.Event) bool {
	if x.yield(ev) {
		return true
	}
	x.run.setState(StateAborted)
	x.run.log.Info("run abandoned by consumer")
	return false
}

// cancelled reports, and records, context cancellation.
func (x *execution) cancelled() bool {
	if err := x.run.ctx.Err(); err != nil {
		x.run.setState(StateAborted)
		x.run.log.Info("run cancelled", zap.Error(err))
		return true
	}
	return false
}

// begin enters a phase: it checks for cancellation, moves to state and
// emits the phase's step event.
func (x *execution) begin(state State, agentName, message string) error {
	if x.cancelled() {
		return errStop
	}
	x.run.setState(state)
	if !x.emit(types.StepEvent(agentName, message)) {
		return errStop
	}
	return nil
}

// fail ends the run with an error event, unless the failure was caused by
// cancellation, which ends it silently.
func (x *execution) fail(agentName string, err error) error {
	if x.cancelled() {
		return errStop
	}
	x.run.setState(StateError)
	x.run.log.Error("run failed", zap.String("agent", agentName), zap.Error(err))
	x.emit(types.ErrorEvent(err.Error()))
	return errStop
}

// warn reports a non-fatal problem as a step event.
func (x *execution) warn(agentName, message string, err error) error {
	x.run.log.Warn(message, zap.String("agent", agentName), zap.Error(err))
	if !x.emit(types.StepEvent(agentName, fmt.Sprintf("%s: %v", message, err))) {
		return errStop
	}
	return nil
}

func (x *execution) input() agent.Input {
	return agent.Input{
		Request: x.run.req,
		Context: x.course,
		Gap:     x.gap,
		Content: x.content,
	}
}

// account prices a finished call and reports it to the metrics sink.
// Failed calls are reported with zero cost.
func (x *execution) account(a agent.Agent, p agent.Prompt, raw string, started time.Time, callErr error) {
	r := x.run
	stats := CallStats{
		RunID:    r.id,
		Agent:    a.Name(),
		Model:    a.Model(),
		Duration: time.Since(started),
	}
	if callErr != nil {
		stats.Err = callErr.Error()
	} else {
		stats.InputTokens = cost.EstimateTokens(p.System) + cost.EstimateTokens(p.User)
		stats.OutputTokens = cost.EstimateTokens(raw)
		stats.Cost = r.o.deps.Pricing.Cost(stats.Model, stats.InputTokens, stats.OutputTokens)
		r.meter.Add(stats.Cost)
	}
	r.o.deps.Metrics.ObserveCall(stats)
	r.log.Debug("agent call",
		zap.String("agent", stats.Agent),
		zap.String("model", stats.Model),
		zap.Int("input_tokens", stats.InputTokens),
		zap.Int("output_tokens", stats.OutputTokens),
		zap.Float64("cost", stats.Cost),
		zap.Duration("duration", stats.Duration),
		zap.String("error", stats.Err),
	)
}

// call builds a prompt for a and invokes it once.
func (x *execution) call(a agent.Invoker, in agent.Input) (string, error) {
	p, err := a.BuildPrompt(in)
	if err != nil {
		return "", fmt.Errorf("building %s prompt: %w", a.Name(), err)
	}
	started := time.Now()
	raw, err := a.Invoke(x.run.ctx, p)
	x.account(a, p, raw, started, err)
	return raw, err
}

func (x *execution) detect() error {
	if err := x.begin(StateDetecting, agent.NameContext, "Detecting course context"); err != nil {
		return err
	}
	r := x.run
	key := CacheKey(r.req.Topic)
	if cc, ok := r.o.deps.Cache.GetContext(r.ctx, key); ok {
		x.course = cc
		r.log.Debug("course context cache hit", zap.String("domain", cc.Domain))
		return nil
	}

	a := r.o.agents.Context
	if a == nil {
		x.course = types.DefaultCourseContext()
		return nil
	}
	raw, err := x.call(a, x.input())
	if err != nil {
		r.log.Warn("context detection failed, using generic context", zap.Error(err))
		x.course = types.DefaultCourseContext()
		return nil
	}
	cc, ok := a.Decode(raw)
	x.course = cc
	if !ok {
		r.log.Warn("unreadable course context, using generic context", zap.String("topic", r.req.Topic))
		return nil
	}
	r.o.deps.Cache.PutContext(r.ctx, key, cc)
	r.log.Info("course context detected",
		zap.String("domain", x.course.Domain),
		zap.Float64("confidence", x.course.Confidence),
	)
	return nil
}

func (x *execution) analyze() error {
	r := x.run
	a := r.o.agents.Analysis
	subtopics := r.req.SubtopicList()
	if a == nil || !r.req.HasTranscript() || len(subtopics) == 0 {
		return nil
	}
	if err := x.begin(StateAnalyzing, agent.NameAnalysis, "Analyzing transcript coverage"); err != nil {
		return err
	}

	raw, err := x.call(a, x.input())
	if err != nil {
		if x.cancelled() {
			return errStop
		}
		return x.warn(agent.NameAnalysis, "Coverage analysis skipped", err)
	}
	gap, err := a.Decode(raw, subtopics)
	if err != nil {
		return x.warn(agent.NameAnalysis, "Coverage analysis skipped", err)
	}
	if !x.emit(types.GapAnalysisEvent(gap)) {
		return errStop
	}

	if !gap.HasCoverage() {
		r.setState(StateMismatch)
		r.log.Info("transcript covers none of the subtopics", zap.Strings("transcript_topics", gap.TranscriptTopics))
		x.emit(types.MismatchEvent(gap, mismatchMessage(gap)))
		return errStop
	}
	x.gap = &gap
	return nil
}

func mismatchMessage(gap types.GapAnalysisResult) string {
	msg := "The transcript does not cover any of the requested subtopics."
	if len(gap.TranscriptTopics) > 0 {
		msg += " It discusses: " + strings.Join(gap.TranscriptTopics, ", ") + "."
	}
	return msg + " Continue without the transcript, or revise the topic, subtopics or transcript."
}

func (x *execution) draft() error {
	r := x.run
	a := r.o.agents.Draft
	if err := x.begin(StateDrafting, agent.NameDraft, fmt.Sprintf("Drafting %s", r.req.Mode)); err != nil {
		return err
	}

	p, err := a.BuildPrompt(x.input())
	if err != nil {
		return x.fail(agent.NameDraft, fmt.Errorf("drafting: %w", err))
	}

	started := time.Now()
	var b strings.Builder
	for fragment, err := range a.InvokeStream(r.ctx, p) {
		if x.cancelled() {
			return errStop
		}
		if err != nil {
			x.account(a, p, "", started, err)
			return x.fail(agent.NameDraft, fmt.Errorf("drafting: %w", err))
		}
		if fragment == "" {
			continue
		}
		b.WriteString(fragment)
		if !x.emit(types.ChunkEvent(fragment)) {
			return errStop
		}
	}
	if x.cancelled() {
		return errStop
	}
	x.account(a, p, b.String(), started, nil)

	x.content = strings.TrimSpace(b.String())
	if x.content == "" {
		return x.fail(agent.NameDraft, errors.New("drafting: model returned no content"))
	}
	return nil
}

func (x *execution) sanitize() error {
	r := x.run
	a := r.o.agents.Sanitize
	if a == nil || !r.req.HasTranscript() {
		return nil
	}
	if err := x.begin(StateSanitizing, agent.NameFactCheck, "Checking facts against the transcript"); err != nil {
		return err
	}

	raw, err := x.call(a, x.input())
	if err != nil {
		return x.fail(agent.NameFactCheck, fmt.Errorf("fact checking: %w", err))
	}
	revised, err := a.Decode(raw)
	if err != nil {
		return x.fail(agent.NameFactCheck, fmt.Errorf("fact checking: %w", err))
	}
	r.log.Info("fact check applied", zap.Stringer("diff", patch.Summarize(x.content, revised)))
	x.content = revised
	if !x.emit(types.ReplaceEvent(x.content)) {
		return errStop
	}
	return nil
}

func (x *execution) review() error {
	r := x.run
	reviewer := r.o.agents.Review
	if reviewer == nil {
		return nil
	}

	for round := 1; round <= r.o.maxPolishRounds; round++ {
		if err := x.begin(StateReviewing, agent.NameReview, fmt.Sprintf("Reviewing quality (round %d)", round)); err != nil {
			return err
		}
		raw, err := x.call(reviewer, x.input())
		if err != nil {
			return x.fail(agent.NameReview, fmt.Errorf("reviewing: %w", err))
		}
		rr, err := reviewer.Decode(raw)
		if err != nil {
			return x.warn(agent.NameReview, "Review unreadable, keeping current content", err)
		}
		r.log.Info("review scored",
			zap.Int("round", round),
			zap.Float64("score", rr.Score),
			zap.Bool("needs_polish", rr.NeedsPolish),
			zap.Int("issues", len(rr.DetailedFeedback)),
		)
		if !rr.NeedsPolish || r.o.agents.Polish == nil {
			return nil
		}
		if err := x.refine(rr); err != nil {
			return err
		}
	}
	return nil
}

func (x *execution) refine(rr types.ReviewResult) error {
	r := x.run
	a := r.o.agents.Polish
	if err := x.begin(StateRefining, agent.NamePolish, fmt.Sprintf("Refining content (score %.1f)", rr.Score)); err != nil {
		return err
	}

	in := x.input()
	in.Review = &rr
	raw, err := x.call(a, in)
	if err != nil {
		return x.fail(agent.NamePolish, fmt.Errorf("refining: %w", err))
	}
	res := a.Apply(x.content, raw)
	for _, s := range res.Skipped {
		r.log.Warn("patch block skipped",
			zap.Int("index", s.Index),
			zap.String("reason", s.Reason),
			zap.String("search", truncate(s.Search, 80)),
		)
	}
	if !res.Changed() {
		return nil
	}
	r.log.Info("patch applied",
		zap.Int("applied", res.Applied),
		zap.Stringer("diff", patch.Summarize(x.content, res.Text)),
	)
	x.content = res.Text
	if !x.emit(types.ReplaceEvent(x.content)) {
		return errStop
	}
	return nil
}

func (x *execution) format() error {
	r := x.run
	if r.req.Mode != types.ModeAssignment {
		return nil
	}
	if err := x.begin(StateFormatting, agent.NameFormat, "Formatting assignment"); err != nil {
		return err
	}
	a := r.o.agents.Format
	if a == nil {
		return x.fail(agent.NameFormat, errors.New("formatting: no formatter configured"))
	}

	items, ok := a.FastPath(x.content)
	if ok {
		r.log.Debug("formatter fast path", zap.Int("items", len(items)))
	} else {
		in := x.input()
		raw, err := x.call(a, in)
		if err != nil {
			return x.fail(agent.NameFormat, fmt.Errorf("formatting: %w", err))
		}
		items, err = a.Decode(raw)
		if err != nil {
			return x.fail(agent.NameFormat, fmt.Errorf("formatting: %w", err))
		}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return x.fail(agent.NameFormat, fmt.Errorf("formatting: %w", err))
	}
	if !x.emit(types.FormattedEvent(string(data))) {
		return errStop
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
