// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/lecture-engine/internal/history"
	"github.com/pdiddy/lecture-engine/internal/pipeline"
	"github.com/pdiddy/lecture-engine/pkg/types"
)

// Answers to a coverage mismatch.
const (
	mismatchAsk      = "ask"
	mismatchContinue = "continue"
	mismatchStop     = "stop"
)

var errMismatch = errors.New("transcript does not cover the requested subtopics")

var generateCmd = &cobra.Command{
	Use:   "generate [topic]",
	Short: "Generate lecture notes, a pre-read, or an assignment",
	Long: `Generate runs the agent pipeline for one request and streams progress.
The request comes from --request (a YAML file) and the flags, which override
fields of the file. The final content is printed to stdout, or written to
--output.

When a transcript is given and covers none of the subtopics, the run stops
with a mismatch. --on-mismatch decides what happens next: ask prompts on
stdin, continue reruns without the transcript, stop exits with an error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().String("request", "", "YAML file holding a generation request")
	generateCmd.Flags().String("topic", "", "lecture topic")
	generateCmd.Flags().String("subtopics", "", "comma-separated subtopics")
	generateCmd.Flags().String("mode", "", "lecture, pre-read, or assignment (default lecture)")
	generateCmd.Flags().String("transcript", "", "path to a class transcript ('-' for stdin)")
	generateCmd.Flags().Int("mcsc", -1, "single-correct questions (assignment mode)")
	generateCmd.Flags().Int("mcmc", -1, "multiple-correct questions (assignment mode)")
	generateCmd.Flags().Int("subjective", -1, "subjective questions (assignment mode)")
	generateCmd.Flags().Int("max-polish-rounds", -1, "review/refine cap (default from config)")
	generateCmd.Flags().String("on-mismatch", mismatchAsk, "on transcript mismatch: ask, continue, or stop")
	generateCmd.Flags().Bool("json", false, "print events as newline-delimited JSON")
	generateCmd.Flags().Bool("no-save", false, "do not record the run in history")
	generateCmd.Flags().StringP("output", "o", "", "write the final content to this file")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	policy, _ := cmd.Flags().GetString("on-mismatch")
	switch policy {
	case mismatchAsk, mismatchContinue, mismatchStop:
	default:
		return fmt.Errorf("unknown --on-mismatch %q: want ask, continue, or stop", policy)
	}

	req, err := requestFromFlags(cmd, args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("max-polish-rounds"); n >= 0 {
		cfg.Pipeline.MaxPolishRounds = n
	}

	client, err := newClient(cfg.LLM, loadedSecrets, logger)
	if err != nil {
		return err
	}

	var store *history.Store
	if noSave, _ := cmd.Flags().GetBool("no-save"); !noSave {
		store, err = openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	metrics := &pipeline.Recorder{}
	orch, err := newOrchestrator(cfg, client, store, metrics)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	jsonOut, _ := cmd.Flags().GetBool("json")
	p := &eventPrinter{out: cmd.OutOrStdout(), progress: cmd.ErrOrStderr(), json: jsonOut}
	stdin := bufio.NewReader(cmd.InOrStdin())

	var final types.Event
	for {
		run := orch.Start(ctx, req)
		rec := history.NewRecord(run.ID(), req)
		final = types.Event{}
		for ev := range run.Events() {
			rec.Observe(ev)
			if err := p.print(ev); err != nil {
				return err
			}
			if ev.IsTerminal() {
				final = ev
			}
		}
		rec.Cost = run.Cost()
		if store != nil {
			if err := store.Save(context.WithoutCancel(ctx), *rec); err != nil {
				logger.Warn("saving run", zap.String("run_id", run.ID()), zap.Error(err))
			}
		}

		if final.Type != types.EventMismatch {
			break
		}
		retry, err := resolveMismatch(policy, stdin, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if !retry {
			return errMismatch
		}
		req = req.WithoutTranscript()
	}

	switch final.Type {
	case types.EventComplete:
		if !jsonOut {
			p.summary(metrics.Snapshot(), final.Cost)
		}
		return writeResult(cmd, final.Content, jsonOut)
	case types.EventError:
		return errors.New(final.Message)
	default:
		return ctx.Err()
	}
}

// requestFromFlags merges --request with the individual flags and the
// optional positional topic.
func requestFromFlags(cmd *cobra.Command, args []string, stdin io.Reader) (types.GenerationRequest, error) {
	var req types.GenerationRequest
	if path, _ := cmd.Flags().GetString("request"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return req, fmt.Errorf("reading request: %w", err)
		}
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parsing request %s: %w", path, err)
		}
	}

	if len(args) > 0 {
		req.Topic = args[0]
	}
	if v, _ := cmd.Flags().GetString("topic"); v != "" {
		req.Topic = v
	}
	if v, _ := cmd.Flags().GetString("subtopics"); v != "" {
		req.Subtopics = v
	}
	if v, _ := cmd.Flags().GetString("mode"); v != "" {
		req.Mode = types.Mode(v)
	}
	if req.Mode == "" {
		req.Mode = types.ModeLecture
	}

	if path, _ := cmd.Flags().GetString("transcript"); path != "" {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return req, fmt.Errorf("reading transcript: %w", err)
		}
		req.Transcript = string(data)
	}

	counts := req.Counts()
	changed := false
	for name, field := range map[string]*int{"mcsc": &counts.MCSC, "mcmc": &counts.MCMC, "subjective": &counts.Subjective} {
		if v, _ := cmd.Flags().GetInt(name); v >= 0 {
			*field = v
			changed = true
		}
	}
	if changed {
		req.AssignmentCounts = &counts
	}
	return req, nil
}

// resolveMismatch reports whether to rerun without the transcript.
func resolveMismatch(policy string, in *bufio.Reader, prompt io.Writer) (bool, error) {
	switch policy {
	case mismatchContinue:
		fmt.Fprintln(prompt, "Continuing without the transcript.")
		return true, nil
	case mismatchStop:
		return false, nil
	}

	fmt.Fprint(prompt, "Continue without the transcript? [y/N] ")
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func writeResult(cmd *cobra.Command, content string, jsonOut bool) error {
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
		return nil
	}
	if jsonOut {
		return nil
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, content)
	if !strings.HasSuffix(content, "\n") {
		fmt.Fprintln(out)
	}
	return nil
}

// eventPrinter renders events. In JSON mode every event is one line on out;
// otherwise progress goes to the progress writer and only the final content
// reaches out.
type eventPrinter struct {
	out      io.Writer
	progress io.Writer
	json     bool

	streaming bool
}

func (p *eventPrinter) print(ev types.Event) error {
	if p.json {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(p.out, "%s\n", data)
		return err
	}

	w := p.progress
	if ev.Type != types.EventChunk && p.streaming {
		fmt.Fprintln(w)
		p.streaming = false
	}
	switch ev.Type {
	case types.EventStep:
		fmt.Fprintf(w, "[%s] %s\n", ev.Agent, ev.Message)
	case types.EventChunk:
		p.streaming = true
		fmt.Fprint(w, ev.Content)
	case types.EventGapAnalysis:
		printGap(w, ev.Gap)
	case types.EventReplace:
		fmt.Fprintf(w, "Content revised (%d characters)\n", len(ev.Content))
	case types.EventFormatted:
		var items []json.RawMessage
		if json.Unmarshal([]byte(ev.Content), &items) == nil {
			fmt.Fprintf(w, "Formatted %d assignment items\n", len(items))
		}
	case types.EventComplete:
		fmt.Fprintf(w, "Done. Estimated cost: $%.4f\n", ev.Cost)
	case types.EventError:
		fmt.Fprintf(w, "Error: %s\n", ev.Message)
	case types.EventMismatch:
		printGap(w, ev.Gap)
		fmt.Fprintf(w, "Mismatch: %s\n", ev.Message)
	}
	return nil
}

func printGap(w io.Writer, gap *types.GapAnalysisResult) {
	if gap == nil {
		return
	}
	for _, row := range []struct {
		label string
		items []string
	}{
		{"Covered", gap.Covered},
		{"Partially covered", gap.PartiallyCovered},
		{"Not covered", gap.NotCovered},
		{"Transcript topics", gap.TranscriptTopics},
	} {
		if len(row.items) > 0 {
			fmt.Fprintf(w, "  %-18s %s\n", row.label+":", strings.Join(row.items, ", "))
		}
	}
}

// summary prints spend per agent.
func (p *eventPrinter) summary(calls []pipeline.CallStats, total float64) {
	if len(calls) == 0 {
		return
	}
	type agg struct {
		calls   int
		in, out int
		cost    float64
	}
	byAgent := map[string]*agg{}
	var order []string
	for _, c := range calls {
		a, ok := byAgent[c.Agent]
		if !ok {
			a = &agg{}
			byAgent[c.Agent] = a
			order = append(order, c.Agent)
		}
		a.calls++
		a.in += c.InputTokens
		a.out += c.OutputTokens
		a.cost += c.Cost
	}

	w := p.progress
	fmt.Fprintf(w, "\n%-10s  %5s  %8s  %8s  %9s\n", "Agent", "Calls", "In", "Out", "Cost")
	fmt.Fprintln(w, strings.Repeat("-", 48))
	for _, name := range order {
		a := byAgent[name]
		fmt.Fprintf(w, "%-10s  %5d  %8d  %8d  $%8.4f\n", name, a.calls, a.in, a.out, a.cost)
	}
	fmt.Fprintf(w, "%-10s  %5s  %8s  %8s  $%8.4f\n\n", "Total", "", "", "", total)
}
