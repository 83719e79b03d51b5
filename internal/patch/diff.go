// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package patch

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Stats counts line-level changes between two versions of a document.
type Stats struct {
	Inserted  int `json:"inserted" yaml:"inserted"`
	Deleted   int `json:"deleted" yaml:"deleted"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
}

// String renders stats as "+3 -1 lines".
func (s Stats) String() string {
	return fmt.Sprintf("+%d -%d lines", s.Inserted, s.Deleted)
}

// Summarize diffs before and after line by line.
func Summarize(before, after string) Stats {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var s Stats
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			s.Inserted += n
		case diffmatchpatch.DiffDelete:
			s.Deleted += n
		case diffmatchpatch.DiffEqual:
			s.Unchanged += n
		}
	}
	return s
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
