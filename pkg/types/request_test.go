// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"
)

func TestSubtopicList(t *testing.T) {
	tests := []struct {
		name      string
		subtopics string
		want      []string
	}{
		{"empty", "", nil},
		{"single", "base case", []string{"base case"}},
		{"trims and drops blanks", " base case , ,call stack ,", []string{"base case", "call stack"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerationRequest{Subtopics: tt.subtopics}.SubtopicList()
			if len(got) != len(tt.want) {
				t.Fatalf("SubtopicList() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("SubtopicList()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     GenerationRequest
		wantErr bool
	}{
		{"lecture", GenerationRequest{Topic: "Recursion", Mode: ModeLecture}, false},
		{"pre-read", GenerationRequest{Topic: "Recursion", Mode: ModePreRead}, false},
		{"assignment default counts", GenerationRequest{Topic: "Recursion", Mode: ModeAssignment}, false},
		{"missing topic", GenerationRequest{Topic: "  ", Mode: ModeLecture}, true},
		{"unknown mode", GenerationRequest{Topic: "Recursion", Mode: "quiz"}, true},
		{"negative counts", GenerationRequest{Topic: "Recursion", Mode: ModeAssignment, AssignmentCounts: &AssignmentCounts{MCSC: -1}}, true},
		{"zero counts", GenerationRequest{Topic: "Recursion", Mode: ModeAssignment, AssignmentCounts: &AssignmentCounts{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithoutTranscriptLeavesOriginal(t *testing.T) {
	req := GenerationRequest{Topic: "Recursion", Mode: ModeLecture, Transcript: "today we covered loops"}
	cleared := req.WithoutTranscript()
	if cleared.HasTranscript() {
		t.Errorf("WithoutTranscript() kept transcript %q", cleared.Transcript)
	}
	if !req.HasTranscript() {
		t.Errorf("original request was modified")
	}
}

func TestReviewResultNormalize(t *testing.T) {
	tests := []struct {
		score      float64
		wantScore  float64
		wantPolish bool
	}{
		{9, 9, false},
		{8.9, 8.9, true},
		{12, 10, false},
		{-3, 0, true},
	}
	for _, tt := range tests {
		got := ReviewResult{Score: tt.score, NeedsPolish: !tt.wantPolish}.Normalize()
		if got.Score != tt.wantScore || got.NeedsPolish != tt.wantPolish {
			t.Errorf("Normalize(%v) = (%v, %v), want (%v, %v)", tt.score, got.Score, got.NeedsPolish, tt.wantScore, tt.wantPolish)
		}
	}
}
