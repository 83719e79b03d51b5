// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"strings"

	"github.com/pdiddy/lecture-engine/internal/jsonrepair"
	"github.com/pdiddy/lecture-engine/internal/llm"
	"github.com/pdiddy/lecture-engine/pkg/types"
)

// ContextDetector classifies the topic into a CourseContext.
type ContextDetector struct{ caller }

func NewContextDetector(client llm.Client, cfg Config) ContextDetector {
	return ContextDetector{newCaller(client, cfg)}
}

func (ContextDetector) Name() string { return NameContext }

func (d ContextDetector) BuildPrompt(in Input) (Prompt, error) {
	user, err := render(contextUser, newPromptData(in))
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: contextSystem, User: user}, nil
}

// Decode parses a detector answer. Anything that does not name a domain
// yields DefaultCourseContext and ok=false; nil lists are filled from the
// default so templates always see the same shape.
func (ContextDetector) Decode(raw string) (cc types.CourseContext, ok bool) {
	fallback := types.DefaultCourseContext()
	cc = jsonrepair.ParseOr(raw, types.CourseContext{})
	cc.Domain = strings.TrimSpace(cc.Domain)
	if cc.Domain == "" {
		return fallback, false
	}
	ch := &cc.Characteristics
	ch.ExampleTypes = orDefault(ch.ExampleTypes, fallback.Characteristics.ExampleTypes)
	ch.Formats = orDefault(ch.Formats, fallback.Characteristics.Formats)
	ch.Vocabulary = orDefault(ch.Vocabulary, fallback.Characteristics.Vocabulary)
	ch.StyleHints = orDefault(ch.StyleHints, fallback.Characteristics.StyleHints)
	ch.RelatableExamples = orDefault(ch.RelatableExamples, fallback.Characteristics.RelatableExamples)
	if strings.TrimSpace(cc.ContentGuidelines) == "" {
		cc.ContentGuidelines = fallback.ContentGuidelines
	}
	if strings.TrimSpace(cc.QualityCriteria) == "" {
		cc.QualityCriteria = fallback.QualityCriteria
	}
	return cc.Clamp(), true
}

func orDefault(v, def []string) []string {
	if v == nil {
		return def
	}
	return v
}
