// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/pdiddy/lecture-engine/internal/agent"
	"github.com/pdiddy/lecture-engine/internal/llm"
	"github.com/pdiddy/lecture-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// script maps an agent role to its successive replies. The last reply
// repeats; a reply starting with "ERR:" becomes a transport error.
type script map[string][]string

var roleOrder = []string{
	agent.RoleContext,
	agent.RoleAnalysis,
	agent.RoleSanitize,
	agent.RoleReview,
	agent.RolePolish,
	agent.RoleFormat,
	agent.RoleDraft,
}

func newScriptedClient(s script) *llm.MockClient {
	var mu sync.Mutex
	next := map[string]int{}
	m := &llm.MockClient{}
	for _, role := range roleOrder {
		m.Rules = append(m.Rules, llm.MockRule{Match: role, Reply: func(llm.Request) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			replies := s[role]
			if len(replies) == 0 {
				return "", fmt.Errorf("no reply scripted for %s", role)
			}
			i := min(next[role], len(replies)-1)
			next[role]++
			if msg, ok := strings.CutPrefix(replies[i], "ERR:"); ok {
				return "", errors.New(msg)
			}
			return replies[i], nil
		}})
	}
	return m
}

func callsTo(m *llm.MockClient, role string) int {
	n := 0
	for _, c := range m.Calls() {
		if strings.Contains(c.System, role) {
			n++
		}
	}
	return n
}

const draftText = "# Recursion\n\nA function that calls itself.\n"

const validItems = `[{"questionType":"mcsc","contentBody":"Q","options":{"1":"a","2":"b","3":"c","4":"d"},"mcscAnswer":2,"answerExplanation":"e"}]`

func baseScript() script {
	return script{
		agent.RoleContext:  {`{"domain":"computer-science","confidence":0.9}`},
		agent.RoleAnalysis: {`{"covered":["base case"],"partiallyCovered":[],"notCovered":["call stack"],"transcriptTopics":["recursion"]}`},
		agent.RoleDraft:    {draftText},
		agent.RoleSanitize: {"# Recursion\n\nA function that calls itself, as shown in class.\n"},
		agent.RoleReview:   {`{"score":9.5,"feedback":"good","detailedFeedback":[]}`},
		agent.RolePolish:   {"No changes needed."},
		agent.RoleFormat:   {validItems},
	}
}

func lectureRequest() types.GenerationRequest {
	return types.GenerationRequest{Topic: "Recursion", Subtopics: "base case, call stack", Mode: types.ModeLecture}
}

type harness struct {
	client  *llm.MockClient
	orch    *Orchestrator
	metrics *Recorder
}

func newHarness(t *testing.T, s script, opts ...Option) harness {
	t.Helper()
	client := newScriptedClient(s)
	metrics := &Recorder{}
	orch, err := New(NewAgents(client, types.DefaultConfig().Agents), Deps{Metrics: metrics}, opts...)
	require.NoError(t, err)
	return harness{client: client, orch: orch, metrics: metrics}
}

func collect(seq iter.Seq[types.Event]) []types.Event {
	var out []types.Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func kinds(events []types.Event) []string {
	var out []string
	for _, ev := range events {
		k := string(ev.Type)
		if ev.Type == types.EventStep {
			k += "(" + ev.Agent + ")"
		}
		if ev.Type == types.EventChunk && len(out) > 0 && out[len(out)-1] == "chunk*" {
			continue
		}
		if ev.Type == types.EventChunk {
			k = "chunk*"
		}
		out = append(out, k)
	}
	return out
}

func terminals(events []types.Event) int {
	n := 0
	for _, ev := range events {
		if ev.IsTerminal() {
			n++
		}
	}
	return n
}

func TestNewRequiresDraft(t *testing.T) {
	_, err := New(Agents{}, Deps{})
	assert.Error(t, err)
}

func TestLectureWithoutTranscript(t *testing.T) {
	h := newHarness(t, baseScript())
	run := h.orch.Start(context.Background(), lectureRequest())
	events := collect(run.Events())

	assert.Equal(t, []string{"step(Context)", "step(Draft)", "chunk*", "step(Review)", "complete"}, kinds(events))
	assert.Equal(t, StateComplete, run.State())

	var drafted strings.Builder
	for _, ev := range events {
		if ev.Type == types.EventChunk {
			drafted.WriteString(ev.Content)
		}
	}
	assert.Equal(t, draftText, drafted.String())

	last := events[len(events)-1]
	assert.Equal(t, strings.TrimSpace(draftText), last.Content)
	assert.Greater(t, last.Cost, 0.0)
	assert.Equal(t, 0, callsTo(h.client, agent.RoleAnalysis))
	assert.Equal(t, 0, callsTo(h.client, agent.RoleSanitize))
	assert.Equal(t, 0, callsTo(h.client, agent.RoleFormat))
}

func TestTranscriptWithoutOverlapIsMismatch(t *testing.T) {
	s := baseScript()
	s[agent.RoleAnalysis] = []string{`{"covered":[],"partiallyCovered":[],"notCovered":["base case","call stack"],"transcriptTopics":["cooking","baking"]}`}
	h := newHarness(t, s)

	req := lectureRequest()
	req.Transcript = "Today we baked bread and talked about ovens."
	run := h.orch.Start(context.Background(), req)
	events := collect(run.Events())

	assert.Equal(t, []string{"step(Context)", "step(Analysis)", "gap_analysis", "mismatch"}, kinds(events))
	assert.Equal(t, StateMismatch, run.State())
	last := events[len(events)-1]
	require.NotNil(t, last.Gap)
	assert.False(t, last.Gap.HasCoverage())
	assert.Contains(t, last.Message, "cooking, baking")
	assert.Equal(t, 0, callsTo(h.client, agent.RoleDraft))

	events = collect(h.orch.Generate(context.Background(), req.WithoutTranscript()))
	assert.Equal(t, types.EventComplete, events[len(events)-1].Type)
	assert.Equal(t, 1, callsTo(h.client, agent.RoleAnalysis))
}

func TestTranscriptRunsAnalysisAndFactCheck(t *testing.T) {
	h := newHarness(t, baseScript())
	req := lectureRequest()
	req.Transcript = "We covered the base case of recursion."

	events := collect(h.orch.Generate(context.Background(), req))
	assert.Equal(t, []string{
		"step(Context)", "step(Analysis)", "gap_analysis", "step(Draft)", "chunk*",
		"step(FactCheck)", "replace", "step(Review)", "complete",
	}, kinds(events))

	gapEvent := events[2]
	require.NotNil(t, gapEvent.Gap)
	assert.Equal(t, []string{"base case"}, gapEvent.Gap.Covered)
	assert.Equal(t, "# Recursion\n\nA function that calls itself, as shown in class.", events[len(events)-1].Content)

	for _, c := range h.client.Calls() {
		if strings.Contains(c.System, agent.RoleDraft) {
			assert.Contains(t, c.Messages[0].Content, "The class transcript covered: base case")
		}
	}
}

func TestAnalysisFailureIsNonFatal(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "unparsable", reply: "I could not read the transcript."},
		{name: "transport error", reply: "ERR:connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseScript()
			s[agent.RoleAnalysis] = []string{tt.reply}
			h := newHarness(t, s)
			req := lectureRequest()
			req.Transcript = "We covered the base case."

			events := collect(h.orch.Generate(context.Background(), req))
			assert.Equal(t, []string{
				"step(Context)", "step(Analysis)", "step(Analysis)", "step(Draft)", "chunk*",
				"step(FactCheck)", "replace", "step(Review)", "complete",
			}, kinds(events))
			assert.Contains(t, events[2].Message, "Coverage analysis skipped")
		})
	}
}

func TestContextFailureFallsBack(t *testing.T) {
	s := baseScript()
	s[agent.RoleContext] = []string{"ERR:unauthorized"}
	h := newHarness(t, s)

	events := collect(h.orch.Generate(context.Background(), lectureRequest()))
	assert.Equal(t, types.EventComplete, events[len(events)-1].Type)
	for _, c := range h.client.Calls() {
		if strings.Contains(c.System, agent.RoleDraft) {
			assert.Contains(t, c.Messages[0].Content, "Course domain: general")
		}
	}
}

func TestFatalFailures(t *testing.T) {
	tests := []struct {
		name       string
		role     string
		reply      string
		transcript bool
		mode       types.Mode
		wantMsg    string
	}{
		{name: "draft", role: agent.RoleDraft, reply: "ERR:llm unavailable", mode: types.ModeLecture, wantMsg: "drafting: llm unavailable"},
		{name: "empty draft", role: agent.RoleDraft, reply: "   ", mode: types.ModeLecture, wantMsg: "drafting: model returned no content"},
		{name: "fact check", role: agent.RoleSanitize, reply: "ERR:quota exceeded", transcript: true, mode: types.ModeLecture, wantMsg: "fact checking: quota exceeded"},
		{name: "review", role: agent.RoleReview, reply: "ERR:timeout", mode: types.ModeLecture, wantMsg: "reviewing: timeout"},
		{name: "format", role: agent.RoleFormat, reply: "ERR:bad gateway", mode: types.ModeAssignment, wantMsg: "formatting: bad gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseScript()
			s[tt.role] = []string{tt.reply}
			if tt.mode == types.ModeAssignment {
				s[agent.RoleDraft] = []string{"1. What is recursion? a) x b) y"}
			}
			h := newHarness(t, s)
			req := lectureRequest()
			req.Mode = tt.mode
			if tt.transcript {
				req.Transcript = "We covered the base case."
			}

			run := h.orch.Start(context.Background(), req)
			events := collect(run.Events())
			require.NotEmpty(t, events)
			last := events[len(events)-1]
			assert.Equal(t, types.EventError, last.Type)
			assert.Equal(t, tt.wantMsg, last.Message)
			assert.Equal(t, 1, terminals(events))
			assert.Equal(t, StateError, run.State())
		})
	}
}

func TestPolishLoopIsCapped(t *testing.T) {
	s := baseScript()
	s[agent.RoleReview] = []string{`{"score":5,"feedback":"weak","detailedFeedback":["[examples] add an example"]}`}
	s[agent.RolePolish] = []string{
		"<<<<<<< SEARCH\ncalls itself\n=======\ncalls itself again\n>>>>>>> REPLACE",
		"<<<<<<< SEARCH\nagain\n=======\nagain and again\n>>>>>>> REPLACE",
	}
	h := newHarness(t, s)

	events := collect(h.orch.Generate(context.Background(), lectureRequest()))
	assert.Equal(t, []string{
		"step(Context)", "step(Draft)", "chunk*",
		"step(Review)", "step(Polish)", "replace",
		"step(Review)", "step(Polish)", "replace",
		"complete",
	}, kinds(events))
	assert.Equal(t, 2, callsTo(h.client, agent.RoleReview))
	assert.Equal(t, 2, callsTo(h.client, agent.RolePolish))
	assert.Equal(t, "# Recursion\n\nA function that calls itself again and again.", events[len(events)-1].Content)

	h = newHarness(t, s, WithMaxPolishRounds(1))
	collect(h.orch.Generate(context.Background(), lectureRequest()))
	assert.Equal(t, 1, callsTo(h.client, agent.RoleReview))
	assert.Equal(t, 1, callsTo(h.client, agent.RolePolish))

	h = newHarness(t, s, WithMaxPolishRounds(0))
	events = collect(h.orch.Generate(context.Background(), lectureRequest()))
	assert.Equal(t, []string{"step(Context)", "step(Draft)", "chunk*", "complete"}, kinds(events))
}

func TestPolishLoopExitsWhenScoreReachesThreshold(t *testing.T) {
	s := baseScript()
	s[agent.RoleReview] = []string{
		`{"score":7,"feedback":"ok","detailedFeedback":["clarity: tighten intro"]}`,
		`{"score":9.1,"feedback":"good","detailedFeedback":[]}`,
	}
	s[agent.RolePolish] = []string{"<<<<<<< SEARCH\nfishing\n=======\nx\n>>>>>>> REPLACE"}

	core, logs := observer.New(zap.WarnLevel)
	client := newScriptedClient(s)
	orch, err := New(NewAgents(client, types.DefaultConfig().Agents), Deps{Logger: zap.New(core)}, WithMaxPolishRounds(3))
	require.NoError(t, err)

	events := collect(orch.Generate(context.Background(), lectureRequest()))
	assert.Equal(t, []string{
		"step(Context)", "step(Draft)", "chunk*",
		"step(Review)", "step(Polish)",
		"step(Review)",
		"complete",
	}, kinds(events))
	assert.Equal(t, 2, callsTo(client, agent.RoleReview))
	assert.Equal(t, 1, callsTo(client, agent.RolePolish))
	assert.Equal(t, 1, logs.FilterMessage("patch block skipped").Len())
}

func TestUnreadableReviewKeepsContent(t *testing.T) {
	s := baseScript()
	s[agent.RoleReview] = []string{"Looks fine to me."}
	h := newHarness(t, s)

	events := collect(h.orch.Generate(context.Background(), lectureRequest()))
	assert.Equal(t, []string{"step(Context)", "step(Draft)", "chunk*", "step(Review)", "step(Review)", "complete"}, kinds(events))
	assert.Equal(t, 0, callsTo(h.client, agent.RolePolish))
}

func TestAssignmentFastPath(t *testing.T) {
	s := baseScript()
	s[agent.RoleDraft] = []string{validItems}
	h := newHarness(t, s)
	req := lectureRequest()
	req.Mode = types.ModeAssignment

	events := collect(h.orch.Generate(context.Background(), req))
	assert.Equal(t, []string{"step(Context)", "step(Draft)", "chunk*", "step(Review)", "step(Format)", "formatted", "complete"}, kinds(events))
	assert.Equal(t, 0, callsTo(h.client, agent.RoleFormat))

	var items []types.AssignmentItem
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-2].Content), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "medium", items[0].DifficultyLevel)
}

func TestAssignmentSlowPath(t *testing.T) {
	s := baseScript()
	s[agent.RoleDraft] = []string{"1. Which is the base case? (a) n == 0 (b) n == 1"}
	s[agent.RoleFormat] = []string{"```json\n" + validItems + "\n```"}
	h := newHarness(t, s)
	req := lectureRequest()
	req.Mode = types.ModeAssignment

	events := collect(h.orch.Generate(context.Background(), req))
	assert.Equal(t, types.EventFormatted, events[len(events)-2].Type)
	assert.Equal(t, types.EventComplete, events[len(events)-1].Type)
	assert.Equal(t, 1, callsTo(h.client, agent.RoleFormat))
}

func TestCancellationDuringDraft(t *testing.T) {
	h := newHarness(t, baseScript())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run := h.orch.Start(ctx, lectureRequest())
	var events []types.Event
	for ev := range run.Events() {
		events = append(events, ev)
		if ev.Type == types.EventChunk {
			cancel()
		}
	}

	assert.Equal(t, []string{"step(Context)", "step(Draft)", "chunk*"}, kinds(events))
	assert.Len(t, events, 3)
	assert.Equal(t, 0, terminals(events))
	assert.Equal(t, StateAborted, run.State())
	assert.Equal(t, 0, callsTo(h.client, agent.RoleReview))
}

func TestCancelledBeforeStart(t *testing.T) {
	h := newHarness(t, baseScript())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := h.orch.Start(ctx, lectureRequest())
	assert.Empty(t, collect(run.Events()))
	assert.Equal(t, StateAborted, run.State())
	assert.Empty(t, h.client.Calls())
}

func TestConsumerBreakStopsRun(t *testing.T) {
	h := newHarness(t, baseScript())
	run := h.orch.Start(context.Background(), lectureRequest())
	for ev := range run.Events() {
		if ev.Type == types.EventStep && ev.Agent == "Draft" {
			break
		}
	}
	assert.Equal(t, StateAborted, run.State())
	assert.Equal(t, 0, callsTo(h.client, agent.RoleDraft))
}

func TestEventsNotRestartable(t *testing.T) {
	h := newHarness(t, baseScript())
	run := h.orch.Start(context.Background(), lectureRequest())
	assert.NotEmpty(t, collect(run.Events()))
	assert.Empty(t, collect(run.Events()))
}

func TestInvalidRequest(t *testing.T) {
	h := newHarness(t, baseScript())
	events := collect(h.orch.Generate(context.Background(), types.GenerationRequest{Mode: types.ModeLecture}))
	require.Len(t, events, 1)
	assert.Equal(t, types.EventError, events[0].Type)
	assert.Contains(t, events[0].Message, "topic is required")
	assert.Empty(t, h.client.Calls())
}

func TestCostMatchesRecordedCalls(t *testing.T) {
	s := baseScript()
	s[agent.RoleReview] = []string{`{"score":6,"feedback":"meh","detailedFeedback":["[style] shorten"]}`}
	h := newHarness(t, s)
	req := lectureRequest()
	req.Transcript = "We covered the base case."

	events := collect(h.orch.Generate(context.Background(), req))
	last := events[len(events)-1]
	require.Equal(t, types.EventComplete, last.Type)

	var sum, prev float64
	for _, c := range h.metrics.Snapshot() {
		assert.GreaterOrEqual(t, c.Cost, 0.0)
		sum += c.Cost
		assert.GreaterOrEqual(t, sum, prev)
		prev = sum
	}
	assert.InDelta(t, sum, last.Cost, 1e-12)
	assert.Len(t, h.metrics.Snapshot(), len(h.client.Calls()))

	for _, ev := range events[:len(events)-1] {
		assert.Zero(t, ev.Cost)
	}
}

func TestFailedCallsCostNothing(t *testing.T) {
	s := baseScript()
	s[agent.RoleContext] = []string{"ERR:unavailable"}
	h := newHarness(t, s)
	collect(h.orch.Generate(context.Background(), lectureRequest()))

	snap := h.metrics.Snapshot()
	require.NotEmpty(t, snap)
	assert.Equal(t, "Context", snap[0].Agent)
	assert.Equal(t, "unavailable", snap[0].Err)
	assert.Zero(t, snap[0].Cost)
}

func TestContextCacheSkipsDetection(t *testing.T) {
	h := newHarness(t, baseScript())
	collect(h.orch.Generate(context.Background(), lectureRequest()))
	req := lectureRequest()
	req.Topic = "  RECURSION "
	events := collect(h.orch.Generate(context.Background(), req))

	assert.Equal(t, types.EventComplete, events[len(events)-1].Type)
	assert.Equal(t, "step(Context)", kinds(events)[0])
	assert.Equal(t, 1, callsTo(h.client, agent.RoleContext))
}

func TestUnreadableContextIsNotCached(t *testing.T) {
	s := baseScript()
	s[agent.RoleContext] = []string{"sorry, I cannot answer that", `{"domain":"computer-science","confidence":0.9}`}
	client := newScriptedClient(s)
	cache := NewMemoryCache()
	orch, err := New(NewAgents(client, types.DefaultConfig().Agents), Deps{Cache: cache})
	require.NoError(t, err)

	events := collect(orch.Generate(context.Background(), lectureRequest()))
	require.Equal(t, types.EventComplete, events[len(events)-1].Type)
	_, cached := cache.GetContext(context.Background(), CacheKey("Recursion"))
	assert.False(t, cached)

	events = collect(orch.Generate(context.Background(), lectureRequest()))
	require.Equal(t, types.EventComplete, events[len(events)-1].Type)
	assert.Equal(t, 2, callsTo(client, agent.RoleContext))
	cc, cached := cache.GetContext(context.Background(), CacheKey("Recursion"))
	require.True(t, cached)
	assert.Equal(t, "computer-science", cc.Domain)
}

func TestEveryRunEndsWithOneTerminal(t *testing.T) {
	noOverlap := baseScript()
	noOverlap[agent.RoleAnalysis] = []string{`{"covered":[],"partiallyCovered":[],"notCovered":["base case"]}`}
	failing := baseScript()
	failing[agent.RoleDraft] = []string{"ERR:boom"}

	scripts := []script{baseScript(), noOverlap, failing}
	modes := []types.Mode{types.ModeLecture, types.ModePreRead, types.ModeAssignment}
	for i, s := range scripts {
		for _, mode := range modes {
			for _, transcript := range []string{"", "We covered the base case."} {
				t.Run(fmt.Sprintf("%d/%s/%t", i, mode, transcript != ""), func(t *testing.T) {
					h := newHarness(t, s)
					req := lectureRequest()
					req.Mode = mode
					req.Transcript = transcript
					events := collect(h.orch.Generate(context.Background(), req))
					require.NotEmpty(t, events)
					assert.Equal(t, 1, terminals(events))
					assert.True(t, events[len(events)-1].IsTerminal())
				})
			}
		}
	}
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	h := newHarness(t, baseScript())
	var wg sync.WaitGroup
	costs := make([]float64, 4)
	for i := range costs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events := collect(h.orch.Generate(context.Background(), lectureRequest()))
			costs[i] = events[len(events)-1].Cost
		}()
	}
	wg.Wait()
	for _, c := range costs {
		assert.Greater(t, c, 0.0)
	}
}

func TestDemoClientEndToEnd(t *testing.T) {
	orch, err := New(NewAgents(agent.NewDemoClient(), types.DefaultConfig().Agents), Deps{})
	require.NoError(t, err)

	req := types.GenerationRequest{Topic: "Graphs", Subtopics: "BFS, DFS", Mode: types.ModeAssignment, Transcript: "We covered BFS and DFS."}
	events := collect(orch.Generate(context.Background(), req))
	last := events[len(events)-1]
	require.Equal(t, types.EventComplete, last.Type, last.Message)
	assert.Contains(t, last.Content, "# Graphs")
}
