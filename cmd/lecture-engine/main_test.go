// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/lecture-engine/internal/history"
	"github.com/pdiddy/lecture-engine/internal/llm"
	"github.com/pdiddy/lecture-engine/internal/secrets"
	"github.com/pdiddy/lecture-engine/pkg/types"
)

// resetFlags restores every flag of c and its children to its default so
// runs of the shared command tree do not leak into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, child := range c.Commands() {
		resetFlags(child)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errb bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errb)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errb.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "lecture-engine dev\n", out)
}

func TestRepairCommand(t *testing.T) {
	out, errOut, err := execute(t, "Sure! ```json\n{\"score\": 8.5, \"tags\": [\"a\",],}\n```\nHope this helps.", "repair")
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.InDelta(t, 8.5, v["score"], 1e-9)
	assert.Contains(t, errOut, "Recovered with strategy")

	_, _, err = execute(t, "no json here", "repair")
	assert.Error(t, err)
}

func TestPatchCommand(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "doc.md", "# Title\n\nThe mitochondria is the powerhouse.\n")
	edits := writeFile(t, dir, "edits.txt", "<<<<<<< SEARCH\nThe mitochondria is\n=======\nMitochondria are\n>>>>>>> REPLACE\n<<<<<<< SEARCH\nnot in the document\n=======\nx\n>>>>>>> REPLACE\n")

	out, errOut, err := execute(t, "", "patch", doc, edits)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nMitochondria are the powerhouse.\n", out)
	assert.Contains(t, errOut, "Skipped edit 2")
	assert.Contains(t, errOut, "Applied 1 of 2 edits")

	_, _, err = execute(t, "", "patch", "--in-place", doc, edits)
	require.NoError(t, err)
	data, err := os.ReadFile(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Mitochondria are")
}

func TestCostCommand(t *testing.T) {
	out, _, err := execute(t, strings.Repeat("a", 4000), "cost", "--model", "claude-haiku-4-5", "--output-tokens", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "Input tokens:   1000")
	// 1000 input at $1/M plus 1000 output at $5/M.
	assert.Contains(t, out, "Estimated cost: $0.006000")

	out, _, err = execute(t, "", "cost", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "claude-sonnet-4-5")
}

func TestGenerateWithMockProvider(t *testing.T) {
	out, errOut, err := execute(t, "", "generate", "Photosynthesis", "--subtopics", "light reactions", "--provider", "mock", "--no-save")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Photosynthesis"), out)
	assert.Contains(t, errOut, "[Context] Detecting course context")
	assert.Contains(t, errOut, "Done. Estimated cost:")
	assert.Contains(t, errOut, "Total")
}

func TestGenerateJSONEvents(t *testing.T) {
	out, _, err := execute(t, "", "generate", "--topic", "Gravity", "--provider", "mock", "--no-save", "--json")
	require.NoError(t, err)

	sc := bufio.NewScanner(strings.NewReader(out))
	var events []types.Event
	for sc.Scan() {
		var ev types.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), sc.Text())
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, types.EventStep, events[0].Type)
	assert.Equal(t, types.EventComplete, events[len(events)-1].Type)
}

func TestGenerateWritesOutputAndHistory(t *testing.T) {
	dir := t.TempDir()
	histDir := filepath.Join(dir, "history")
	outPath := filepath.Join(dir, "notes.md")

	_, _, err := execute(t, "", "generate", "Entropy", "--mode", "pre-read", "--provider", "mock",
		"--history-dir", histDir, "--output", outPath)
	require.NoError(t, err)
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Entropy")

	out, _, err := execute(t, "", "history", "list", "--json", "--history-dir", histDir)
	require.NoError(t, err)
	var runs []history.Record
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, types.ModePreRead, runs[0].Mode)
	assert.Equal(t, history.StatusComplete, runs[0].Status)

	out, _, err = execute(t, "", "history", "show", runs[0].ID, "--history-dir", histDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Topic:      Entropy")

	out, _, err = execute(t, "", "history", "search", "entropy", "--history-dir", histDir)
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].ID)

	out, _, err = execute(t, "", "history", "export", "--format", "json", "--history-dir", histDir)
	require.NoError(t, err)
	var exported []history.Record
	require.NoError(t, json.Unmarshal([]byte(out), &exported))
	assert.Len(t, exported, 1)

	_, _, err = execute(t, "", "history", "delete", runs[0].ID, "--history-dir", histDir)
	require.NoError(t, err)
	out, _, err = execute(t, "", "history", "list", "--history-dir", histDir)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found.")
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	_, _, err := execute(t, "", "generate", "--provider", "mock", "--no-save")
	assert.ErrorContains(t, err, "topic is required")

	_, _, err = execute(t, "", "generate", "X", "--mode", "essay", "--provider", "mock", "--no-save")
	assert.ErrorContains(t, err, "unknown mode")

	_, _, err = execute(t, "", "generate", "X", "--on-mismatch", "maybe", "--provider", "mock", "--no-save")
	assert.ErrorContains(t, err, "--on-mismatch")
}

func TestRequestFromFlags(t *testing.T) {
	dir := t.TempDir()
	reqFile := writeFile(t, dir, "req.yaml", "topic: Thermodynamics\nsubtopics: entropy, enthalpy\nmode: lecture\nassignment_counts:\n  mcsc: 1\n  mcmc: 1\n  subjective: 1\n")
	transcript := writeFile(t, dir, "class.txt", "Today we covered entropy.")

	resetFlags(rootCmd)
	require.NoError(t, generateCmd.ParseFlags([]string{
		"--request", reqFile, "--mode", "assignment", "--mcsc", "4", "--transcript", transcript,
	}))
	req, err := requestFromFlags(generateCmd, nil, strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, "Thermodynamics", req.Topic)
	assert.Equal(t, []string{"entropy", "enthalpy"}, req.SubtopicList())
	assert.Equal(t, types.ModeAssignment, req.Mode)
	assert.Equal(t, "Today we covered entropy.", req.Transcript)
	require.NotNil(t, req.AssignmentCounts)
	assert.Equal(t, types.AssignmentCounts{MCSC: 4, MCMC: 1, Subjective: 1}, *req.AssignmentCounts)
}

func TestRequestFromFlagsTranscriptFromStdin(t *testing.T) {
	resetFlags(rootCmd)
	require.NoError(t, generateCmd.ParseFlags([]string{"--transcript", "-"}))
	req, err := requestFromFlags(generateCmd, []string{"Optics"}, strings.NewReader("lenses and mirrors"))
	require.NoError(t, err)
	assert.Equal(t, "Optics", req.Topic)
	assert.Equal(t, types.ModeLecture, req.Mode)
	assert.Equal(t, "lenses and mirrors", req.Transcript)
	assert.Nil(t, req.AssignmentCounts)
}

func TestResolveMismatch(t *testing.T) {
	tests := []struct {
		policy string
		input  string
		want   bool
	}{
		{mismatchContinue, "", true},
		{mismatchStop, "y\n", false},
		{mismatchAsk, "y\n", true},
		{mismatchAsk, "YES\n", true},
		{mismatchAsk, "n\n", false},
		{mismatchAsk, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.policy+"/"+strings.TrimSpace(tt.input), func(t *testing.T) {
			var prompt bytes.Buffer
			got, err := resolveMismatch(tt.policy, bufio.NewReader(strings.NewReader(tt.input)), &prompt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewClient(t *testing.T) {
	keys := secrets.Store{secrets.AnthropicKey: "sk-ant", secrets.OpenAIKey: "sk-oai"}

	c, err := newClient(types.LLMConfig{Provider: types.ProviderAnthropic}, keys, nil)
	require.NoError(t, err)
	require.IsType(t, &llm.AnthropicClient{}, c)
	assert.Equal(t, "sk-ant", c.(*llm.AnthropicClient).APIKey)

	c, err = newClient(types.LLMConfig{Provider: types.ProviderAnthropic, APIKey: "from-config"}, keys, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-config", c.(*llm.AnthropicClient).APIKey)

	_, err = newClient(types.LLMConfig{Provider: types.ProviderAnthropic}, secrets.Store{}, nil)
	assert.Error(t, err)

	c, err = newClient(types.LLMConfig{Provider: types.ProviderOpenAI}, keys, nil)
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAIClient{}, c)

	_, err = newClient(types.LLMConfig{Provider: types.ProviderOpenAI}, secrets.Store{}, nil)
	assert.Error(t, err)

	c, err = newClient(types.LLMConfig{Provider: types.ProviderMock}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &llm.MockClient{}, c)

	_, err = newClient(types.LLMConfig{Provider: "carrier-pigeon"}, keys, nil)
	assert.Error(t, err)
}

func TestEventPrinterHuman(t *testing.T) {
	var out, progress bytes.Buffer
	p := &eventPrinter{out: &out, progress: &progress}
	for _, ev := range []types.Event{
		types.StepEvent("Draft", "Drafting lecture"),
		types.ChunkEvent("# Title"),
		types.ChunkEvent(" text"),
		types.GapAnalysisEvent(types.GapAnalysisResult{Covered: []string{"a"}, NotCovered: []string{"b"}}),
		types.FormattedEvent(`[{}, {}]`),
		types.CompleteEvent("# Title text", 0.0123),
	} {
		require.NoError(t, p.print(ev))
	}
	assert.Empty(t, out.String())
	got := progress.String()
	assert.Contains(t, got, "[Draft] Drafting lecture\n# Title text\n")
	assert.Contains(t, got, "Covered:")
	assert.Contains(t, got, "Formatted 2 assignment items")
	assert.Contains(t, got, "Done. Estimated cost: $0.0123")
}
