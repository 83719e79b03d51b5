// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"encoding/json"
	"time"

	"github.com/pdiddy/lecture-engine/internal/markdown"
	"github.com/pdiddy/lecture-engine/pkg/types"
)

// Status is how a stored run ended.
type Status string

const (
	StatusComplete Status = "complete"
	StatusError    Status = "error"
	StatusMismatch Status = "mismatch"
	StatusAborted  Status = "aborted"
)

// Record is one stored run.
type Record struct {
	ID         string                   `json:"id" yaml:"id"`
	Topic      string                   `json:"topic" yaml:"topic"`
	Subtopics  string                   `json:"subtopics,omitempty" yaml:"subtopics,omitempty"`
	Mode       types.Mode               `json:"mode" yaml:"mode"`
	Transcript bool                     `json:"transcript" yaml:"transcript"`
	Status     Status                   `json:"status" yaml:"status"`
	Message    string                   `json:"message,omitempty" yaml:"message,omitempty"`
	Content    string                   `json:"content,omitempty" yaml:"content,omitempty"`
	Items      []types.AssignmentItem   `json:"items,omitempty" yaml:"items,omitempty"`
	Gap        *types.GapAnalysisResult `json:"gap,omitempty" yaml:"gap,omitempty"`
	Cost       float64                  `json:"cost" yaml:"cost"`
	CreatedAt  time.Time                `json:"createdAt" yaml:"created_at"`
}

// NewRecord starts a record for a run that has not produced events yet. Its
// status is aborted until a terminal event says otherwise.
func NewRecord(id string, req types.GenerationRequest) *Record {
	return &Record{
		ID:         id,
		Topic:      req.Topic,
		Subtopics:  req.Subtopics,
		Mode:       req.Mode,
		Transcript: req.HasTranscript(),
		Status:     StatusAborted,
	}
}

// Observe folds one pipeline event into the record.
func (r *Record) Observe(ev types.Event) {
	switch ev.Type {
	case types.EventChunk:
		r.Content += ev.Content
	case types.EventReplace:
		r.Content = ev.Content
	case types.EventGapAnalysis:
		r.Gap = ev.Gap
	case types.EventFormatted:
		var items []types.AssignmentItem
		if json.Unmarshal([]byte(ev.Content), &items) == nil {
			r.Items = items
		}
	case types.EventComplete:
		r.Status = StatusComplete
		r.Content = ev.Content
		r.Cost = ev.Cost
	case types.EventError:
		r.Status = StatusError
		r.Message = ev.Message
	case types.EventMismatch:
		r.Status = StatusMismatch
		r.Gap = ev.Gap
		r.Message = ev.Message
	}
}

// Title is the first heading of the content, or the topic.
func (r Record) Title() string {
	if hs := markdown.Outline(r.Content); len(hs) > 0 && hs[0].Text != "" {
		return hs[0].Text
	}
	return r.Topic
}
