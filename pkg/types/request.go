// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects the kind of content a run produces.
type Mode string

const (
	ModeLecture    Mode = "lecture"
	ModePreRead    Mode = "pre-read"
	ModeAssignment Mode = "assignment"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeLecture, ModePreRead, ModeAssignment:
		return true
	}
	return false
}

// AssignmentCounts sets how many questions of each type an assignment holds.
type AssignmentCounts struct {
	MCSC       int `json:"mcsc" yaml:"mcsc"`
	MCMC       int `json:"mcmc" yaml:"mcmc"`
	Subjective int `json:"subjective" yaml:"subjective"`
}

// Total returns the number of questions requested.
func (c AssignmentCounts) Total() int {
	return c.MCSC + c.MCMC + c.Subjective
}

// DefaultAssignmentCounts is used when an assignment request carries no counts.
func DefaultAssignmentCounts() AssignmentCounts {
	return AssignmentCounts{MCSC: 3, MCMC: 2, Subjective: 1}
}

// GenerationRequest is the immutable input of one generation run.
type GenerationRequest struct {
	// Topic is the lecture topic (required).
	Topic string `json:"topic" yaml:"topic"`

	// Subtopics is a comma-delimited list of subtopics to cover.
	Subtopics string `json:"subtopics" yaml:"subtopics"`

	// Mode selects lecture notes, pre-read, or assignment.
	Mode Mode `json:"mode" yaml:"mode"`

	// Transcript is an optional class transcript used for coverage analysis
	// and fact checking.
	Transcript string `json:"transcript,omitempty" yaml:"transcript,omitempty"`

	// AssignmentCounts applies to assignment mode only.
	AssignmentCounts *AssignmentCounts `json:"assignmentCounts,omitempty" yaml:"assignment_counts,omitempty"`
}

// SubtopicList splits Subtopics on commas, trimming blanks.
func (r GenerationRequest) SubtopicList() []string {
	var out []string
	for _, s := range strings.Split(r.Subtopics, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// HasTranscript reports whether a non-blank transcript was supplied.
func (r GenerationRequest) HasTranscript() bool {
	return strings.TrimSpace(r.Transcript) != ""
}

// Counts returns the assignment counts, falling back to the defaults.
func (r GenerationRequest) Counts() AssignmentCounts {
	if r.AssignmentCounts == nil {
		return DefaultAssignmentCounts()
	}
	return *r.AssignmentCounts
}

// WithoutTranscript returns a copy of r with the transcript removed. It is
// the "continue without transcript" answer to a coverage mismatch.
func (r GenerationRequest) WithoutTranscript() GenerationRequest {
	r.Transcript = ""
	return r
}

// Validate checks the request before a run starts.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return errors.New("topic is required")
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("unknown mode %q: want lecture, pre-read, or assignment", r.Mode)
	}
	if c := r.AssignmentCounts; c != nil {
		if c.MCSC < 0 || c.MCMC < 0 || c.Subjective < 0 {
			return errors.New("assignment counts must be non-negative")
		}
		if r.Mode == ModeAssignment && c.Total() == 0 {
			return errors.New("assignment counts must request at least one question")
		}
	}
	return nil
}
