// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package patch applies search/replace edits to a document so a refiner
// can change a few passages without regenerating the whole text.
package patch

import (
	"strings"

	"github.com/pdiddy/lecture-engine/internal/jsonrepair"
)

// Block is one edit: the first exact occurrence of Search becomes Replace.
type Block struct {
	Search  string `json:"search" yaml:"search"`
	Replace string `json:"replace" yaml:"replace"`
}

// Skip records a block that could not be applied.
type Skip struct {
	Index  int    `json:"index" yaml:"index"`
	Search string `json:"search" yaml:"search"`
	Reason string `json:"reason" yaml:"reason"`
}

const (
	ReasonNotFound    = "search block not found"
	ReasonEmptySearch = "empty search block"
)

// Result is the outcome of Apply. Partial application is a normal result.
type Result struct {
	Text    string `json:"text" yaml:"text"`
	Applied int    `json:"applied" yaml:"applied"`
	Skipped []Skip `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Changed reports whether any block was applied.
func (r Result) Changed() bool {
	return r.Applied > 0
}

// Apply runs blocks in order against the current text, each replacing the
// first exact occurrence of its search text. Blocks that do not match are
// skipped and recorded; the document is never truncated. Apply never panics
// and is deterministic.
func Apply(original string, blocks []Block) Result {
	res := Result{Text: original}
	for i, b := range blocks {
		if b.Search == "" {
			res.Skipped = append(res.Skipped, Skip{Index: i, Reason: ReasonEmptySearch})
			continue
		}
		idx := strings.Index(res.Text, b.Search)
		if idx < 0 {
			res.Skipped = append(res.Skipped, Skip{Index: i, Search: b.Search, Reason: ReasonNotFound})
			continue
		}
		res.Text = res.Text[:idx] + b.Replace + res.Text[idx+len(b.Search):]
		res.Applied++
	}
	return res
}

const (
	markerSearch  = "<<<<<<< SEARCH"
	markerDivider = "======="
	markerReplace = ">>>>>>> REPLACE"
)

// ParseBlocks reads edits from a refiner response. It understands
// conflict-style blocks:
//
//	<<<<<<< SEARCH
//	old text
//	=======
//	new text
//	>>>>>>> REPLACE
//
// and, when no such block is present, a JSON array of {"search","replace"}
// objects (optionally wrapped as {"edits": [...]}). Malformed blocks are
// dropped; an unrecognized response yields no blocks.
func ParseBlocks(raw string) []Block {
	if strings.Contains(raw, markerSearch) {
		return parseMarkerBlocks(raw)
	}

	type wrapped struct {
		Edits []Block `json:"edits"`
	}
	if blocks := jsonrepair.ParseOr[[]Block](raw, nil); len(blocks) > 0 {
		return dropEmpty(blocks)
	}
	return dropEmpty(jsonrepair.ParseOr(raw, wrapped{}).Edits)
}

func dropEmpty(blocks []Block) []Block {
	var out []Block
	for _, b := range blocks {
		if b.Search != "" {
			out = append(out, b)
		}
	}
	return out
}

type parseState int

const (
	stateOutside parseState = iota
	stateSearch
	stateReplace
)

func parseMarkerBlocks(raw string) []Block {
	var (
		blocks  []Block
		state   = stateOutside
		search  []string
		replace []string
	)
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		marker := strings.TrimSpace(line)
		switch state {
		case stateOutside:
			if marker == markerSearch {
				state = stateSearch
				search, replace = nil, nil
			}
		case stateSearch:
			switch marker {
			case markerDivider:
				state = stateReplace
			case markerSearch:
				// Restarted block: discard the unfinished one.
				search = nil
			default:
				search = append(search, line)
			}
		case stateReplace:
			switch marker {
			case markerReplace:
				if len(search) > 0 {
					blocks = append(blocks, Block{
						Search:  strings.Join(search, "\n"),
						Replace: strings.Join(replace, "\n"),
					})
				}
				state = stateOutside
			case markerSearch:
				state = stateSearch
				search, replace = nil, nil
			default:
				replace = append(replace, line)
			}
		}
	}
	return blocks
}
