// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/lecture-engine/internal/jsonrepair"
	"github.com/pdiddy/lecture-engine/internal/llm"
	"github.com/pdiddy/lecture-engine/pkg/types"
)

// CoverageAnalyzer compares requested subtopics with the transcript.
type CoverageAnalyzer struct {
	caller
	now func() time.Time
}

func NewCoverageAnalyzer(client llm.Client, cfg Config) CoverageAnalyzer {
	return CoverageAnalyzer{caller: newCaller(client, cfg), now: time.Now}
}

func (CoverageAnalyzer) Name() string { return NameAnalysis }

func (a CoverageAnalyzer) BuildPrompt(in Input) (Prompt, error) {
	user, err := render(analysisUser, newPromptData(in))
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: analysisSystem, User: user}, nil
}

// Decode parses an analyzer answer and reconciles it with the requested
// subtopics: names the model invented are dropped, each subtopic lands in
// exactly one bucket (the strongest the model gave it), and subtopics the
// model never mentioned count as not covered. When raw cannot be parsed the
// result has empty lists and the error wraps ErrUnparsable.
func (a CoverageAnalyzer) Decode(raw string, subtopics []string) (types.GapAnalysisResult, error) {
	empty := types.GapAnalysisResult{
		Covered:          []string{},
		PartiallyCovered: []string{},
		NotCovered:       []string{},
		TranscriptTopics: []string{},
		Timestamp:        a.timestamp(),
	}

	var parsed types.GapAnalysisResult
	if err := jsonrepair.Parse(raw, &parsed); err != nil {
		return empty, fmt.Errorf("%w: %w", ErrUnparsable, err)
	}

	out := empty
	out.TranscriptTopics = cleanList(parsed.TranscriptTopics)
	if len(subtopics) == 0 {
		out.Covered = cleanList(parsed.Covered)
		out.PartiallyCovered = cleanList(parsed.PartiallyCovered)
		out.NotCovered = cleanList(parsed.NotCovered)
		return out, nil
	}

	placed := make(map[string]bool, len(subtopics))
	assign := func(names []string) []string {
		bucket := []string{}
		for _, name := range names {
			s, ok := matchSubtopic(name, subtopics)
			if !ok || placed[s] {
				continue
			}
			placed[s] = true
			bucket = append(bucket, s)
		}
		return bucket
	}
	out.Covered = assign(parsed.Covered)
	out.PartiallyCovered = assign(parsed.PartiallyCovered)
	out.NotCovered = assign(parsed.NotCovered)
	for _, s := range subtopics {
		if !placed[s] {
			out.NotCovered = append(out.NotCovered, s)
		}
	}
	return out, nil
}

func (a CoverageAnalyzer) timestamp() time.Time {
	if a.now == nil {
		return time.Now().UTC()
	}
	return a.now().UTC()
}

// matchSubtopic finds the requested subtopic name refers to: an exact
// case-insensitive match first, then containment either way.
func matchSubtopic(name string, subtopics []string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	for _, s := range subtopics {
		if strings.ToLower(s) == n {
			return s, true
		}
	}
	for _, s := range subtopics {
		ls := strings.ToLower(s)
		if strings.Contains(n, ls) || strings.Contains(ls, n) {
			return s, true
		}
	}
	return "", false
}

func cleanList(items []string) []string {
	out := []string{}
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
