// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutline(t *testing.T) {
	md := "# Graphs\n\nIntro.\n\n## Breadth-First `Search`\n\n```\n# not a heading\n```\n\nSetext Title\n------------\n\n### *Depth* first\n"
	got := Outline(md)
	assert.Equal(t, []Heading{
		{Level: 1, Text: "Graphs"},
		{Level: 2, Text: "Breadth-First Search"},
		{Level: 2, Text: "Setext Title"},
		{Level: 3, Text: "Depth first"},
	}, got)
}

func TestOutlineEmpty(t *testing.T) {
	assert.Empty(t, Outline(""))
	assert.Empty(t, Outline("plain paragraph only"))
}

func TestFormatOutline(t *testing.T) {
	got := FormatOutline([]Heading{{Level: 1, Text: "A"}, {Level: 2, Text: "B"}, {Level: 0, Text: "C"}})
	assert.Equal(t, "- A\n  - B\n- C\n", got)
}
