// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/lecture-engine/internal/jsonrepair"
	"github.com/pdiddy/lecture-engine/internal/llm"
	"github.com/pdiddy/lecture-engine/internal/markdown"
	"github.com/pdiddy/lecture-engine/pkg/types"
)

// generalCategory labels feedback the model left uncategorized.
const generalCategory = "general"

var categoryPrefix = regexp.MustCompile(`^\[([^\]]+)\]\s*`)

// QualityReviewer scores content and lists actionable issues.
type QualityReviewer struct{ caller }

func NewQualityReviewer(client llm.Client, cfg Config) QualityReviewer {
	return QualityReviewer{newCaller(client, cfg)}
}

func (QualityReviewer) Name() string { return NameReview }

// BuildPrompt includes the heading outline of the content so the model
// can judge structure without re-deriving it.
func (r QualityReviewer) BuildPrompt(in Input) (Prompt, error) {
	data := newPromptData(in)
	data.Outline = markdown.FormatOutline(markdown.Outline(in.Content))
	user, err := render(reviewUser, data)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: reviewSystem, User: user}, nil
}

// Decode parses a review. The score may arrive as a number or a numeric
// string; it is clamped to [0,10] and NeedsPolish is recomputed from it.
// Detailed feedback entries may be strings or {"category","issue"}
// objects and are returned as "[category] issue"; blank entries are
// dropped.
func (QualityReviewer) Decode(raw string) (types.ReviewResult, error) {
	var probe map[string]any
	if err := jsonrepair.Parse(raw, &probe); err != nil {
		return types.ReviewResult{}, fmt.Errorf("%w: %w", ErrUnparsable, err)
	}
	score, ok := looseFloat(probe["score"])
	if !ok {
		return types.ReviewResult{}, fmt.Errorf("%w: review has no numeric score", ErrUnparsable)
	}

	rr := types.ReviewResult{Score: score, DetailedFeedback: []string{}}
	if s, ok := probe["feedback"].(string); ok {
		rr.Feedback = strings.TrimSpace(s)
	}
	list, _ := probe["detailedFeedback"].([]any)
	for _, entry := range list {
		var f string
		switch e := entry.(type) {
		case string:
			f = e
		case map[string]any:
			cat, _ := e["category"].(string)
			issue, _ := e["issue"].(string)
			if cat != "" {
				f = "[" + cat + "] " + issue
			} else {
				f = issue
			}
		}
		if f = categorize(f); f != "" {
			rr.DetailedFeedback = append(rr.DetailedFeedback, f)
		}
	}
	return rr.Normalize(), nil
}

func looseFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// categorize normalizes one feedback entry to "[category] issue".
func categorize(f string) string {
	f = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(f), "-*• "))
	if f == "" {
		return ""
	}
	if m := categoryPrefix.FindStringSubmatch(f); m != nil {
		issue := strings.TrimSpace(f[len(m[0]):])
		if issue == "" {
			return ""
		}
		return "[" + strings.ToLower(strings.TrimSpace(m[1])) + "] " + issue
	}
	if cat, issue, ok := strings.Cut(f, ":"); ok && !strings.Contains(cat, " ") && strings.TrimSpace(issue) != "" {
		return "[" + strings.ToLower(cat) + "] " + strings.TrimSpace(issue)
	}
	return "[" + generalCategory + "] " + f
}
