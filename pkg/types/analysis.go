// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Characteristics describes how content in a domain is usually written.
type Characteristics struct {
	ExampleTypes      []string `json:"exampleTypes" yaml:"example_types"`
	Formats           []string `json:"formats" yaml:"formats"`
	Vocabulary        []string `json:"vocabulary" yaml:"vocabulary"`
	StyleHints        []string `json:"styleHints" yaml:"style_hints"`
	RelatableExamples []string `json:"relatableExamples" yaml:"relatable_examples"`
}

// CourseContext is the domain metadata detected once per run.
type CourseContext struct {
	// Domain names the subject area (e.g. "computer-science", "finance").
	Domain string `json:"domain" yaml:"domain"`

	// Confidence is the detector's certainty in [0,1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	Characteristics Characteristics `json:"characteristics" yaml:"characteristics"`

	// ContentGuidelines is free-text guidance for writing agents.
	ContentGuidelines string `json:"contentGuidelines" yaml:"content_guidelines"`

	// QualityCriteria is free-text guidance for the reviewer.
	QualityCriteria string `json:"qualityCriteria" yaml:"quality_criteria"`
}

// DefaultCourseContext is the generic context used when detection fails.
func DefaultCourseContext() CourseContext {
	return CourseContext{
		Domain:     "general",
		Confidence: 0.5,
		Characteristics: Characteristics{
			ExampleTypes:      []string{"real-world scenarios", "step-by-step walkthroughs"},
			Formats:           []string{"headings", "bullet lists", "short paragraphs"},
			Vocabulary:        []string{},
			StyleHints:        []string{"clear", "concise", "learner-friendly"},
			RelatableExamples: []string{"everyday situations"},
		},
		ContentGuidelines: "Explain concepts from first principles, define terms before using them, and support every idea with a concrete example.",
		QualityCriteria:   "Accuracy, clarity, logical flow, coverage of every requested subtopic, and practical examples.",
	}
}

// Clamp bounds Confidence to [0,1].
func (c CourseContext) Clamp() CourseContext {
	switch {
	case c.Confidence < 0:
		c.Confidence = 0
	case c.Confidence > 1:
		c.Confidence = 1
	}
	return c
}

// GapAnalysisResult compares requested subtopics with a transcript.
type GapAnalysisResult struct {
	Covered          []string  `json:"covered" yaml:"covered"`
	PartiallyCovered []string  `json:"partiallyCovered" yaml:"partially_covered"`
	NotCovered       []string  `json:"notCovered" yaml:"not_covered"`
	TranscriptTopics []string  `json:"transcriptTopics" yaml:"transcript_topics"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
}

// HasCoverage reports whether at least one requested subtopic appears in the
// transcript, fully or partially.
func (g GapAnalysisResult) HasCoverage() bool {
	return len(g.Covered) > 0 || len(g.PartiallyCovered) > 0
}

// PolishThreshold is the review score at or above which no polish is needed.
const PolishThreshold = 9.0

// ReviewResult is the quality reviewer's verdict.
type ReviewResult struct {
	// Score is in [0,10].
	Score float64 `json:"score" yaml:"score"`

	// NeedsPolish is true iff Score < PolishThreshold.
	NeedsPolish bool `json:"needsPolish" yaml:"needs_polish"`

	Feedback string `json:"feedback" yaml:"feedback"`

	// DetailedFeedback holds one categorized, actionable issue per entry.
	DetailedFeedback []string `json:"detailedFeedback" yaml:"detailed_feedback"`
}

// Normalize clamps the score and recomputes NeedsPolish from it.
func (r ReviewResult) Normalize() ReviewResult {
	switch {
	case r.Score < 0:
		r.Score = 0
	case r.Score > 10:
		r.Score = 10
	}
	r.NeedsPolish = r.Score < PolishThreshold
	return r
}
