// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// EventType tags a pipeline event.
type EventType string

const (
	EventStep        EventType = "step"
	EventChunk       EventType = "chunk"
	EventGapAnalysis EventType = "gap_analysis"
	EventReplace     EventType = "replace"
	EventFormatted   EventType = "formatted"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
	EventMismatch    EventType = "mismatch"
)

// Event is one entry of a run's ordered event stream. Which fields are set
// depends on Type:
//
//	step          Agent, Message
//	chunk         Content (fragment)
//	gap_analysis  Gap
//	replace       Content (full revised text)
//	formatted     Content (JSON array of AssignmentItem)
//	complete      Content (final text), Cost
//	error         Message
//	mismatch      Gap, Message
type Event struct {
	Type    EventType          `json:"type" yaml:"type"`
	Agent   string             `json:"agent,omitempty" yaml:"agent,omitempty"`
	Message string             `json:"message,omitempty" yaml:"message,omitempty"`
	Content string             `json:"content,omitempty" yaml:"content,omitempty"`
	Gap     *GapAnalysisResult `json:"gap,omitempty" yaml:"gap,omitempty"`
	Cost    float64            `json:"cost,omitempty" yaml:"cost,omitempty"`
}

// IsTerminal reports whether the event ends a run.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventComplete, EventError, EventMismatch:
		return true
	}
	return false
}

func StepEvent(agent, message string) Event {
	return Event{Type: EventStep, Agent: agent, Message: message}
}

func ChunkEvent(fragment string) Event {
	return Event{Type: EventChunk, Content: fragment}
}

func GapAnalysisEvent(gap GapAnalysisResult) Event {
	return Event{Type: EventGapAnalysis, Gap: &gap}
}

func ReplaceEvent(text string) Event {
	return Event{Type: EventReplace, Content: text}
}

func FormattedEvent(itemsJSON string) Event {
	return Event{Type: EventFormatted, Content: itemsJSON}
}

func CompleteEvent(text string, cost float64) Event {
	return Event{Type: EventComplete, Content: text, Cost: cost}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

func MismatchEvent(gap GapAnalysisResult, message string) Event {
	return Event{Type: EventMismatch, Gap: &gap, Message: message}
}
