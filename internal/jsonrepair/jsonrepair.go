// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jsonrepair recovers JSON values from model output. Models wrap
// JSON in prose, markdown fences, and trailing commas, or stop mid-object;
// Repair tries progressively looser strategies until one yields valid JSON.
// No network calls happen here: the same input always gives the same result.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// snippetLen is how much of the offending text a ParseError keeps.
const snippetLen = 200

// Strategy names the recovery step that produced a candidate.
type Strategy string

const (
	Verbatim       Strategy = "verbatim"
	BalancedSpan   Strategy = "balanced-span"
	FenceStripped  Strategy = "fence-stripped"
	TrailingCommas Strategy = "trailing-commas"
	OpenEnded      Strategy = "open-ended"
)

// ErrNoJSON is wrapped by ParseError when no strategy produced valid JSON.
var ErrNoJSON = errors.New("no valid JSON found")

// ParseError reports text that could not be recovered or decoded.
type ParseError struct {
	// Snippet holds the first 200 characters of the input.
	Snippet string

	// Err is the underlying cause.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jsonrepair: %v (input %q)", e.Err, e.Snippet)
}

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(text string, err error) *ParseError {
	r := []rune(text)
	if len(r) > snippetLen {
		r = r[:snippetLen]
	}
	return &ParseError{Snippet: string(r), Err: err}
}

// Repair returns the first syntactically valid JSON candidate found in
// text and the strategy that produced it. Strategies, in order:
//
//  1. the text verbatim
//  2. the first balanced {...} or [...] span
//  3. that span (or the text) with markdown fences stripped
//  4. the above with trailing commas removed
//  5. everything from the first '{' to the end, repaired as in 3 and 4
//     and, failing that, with unclosed strings and brackets closed
func Repair(text string) (string, Strategy, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return trimmed, Verbatim, nil
	}

	base := trimmed
	if span, ok := balancedSpan(trimmed); ok {
		if json.Valid([]byte(span)) {
			return span, BalancedSpan, nil
		}
		base = span
	}

	stripped := strings.TrimSpace(stripFences(base))
	if stripped != base && json.Valid([]byte(stripped)) {
		return stripped, FenceStripped, nil
	}
	// The fences may have been hiding the span itself.
	if span, ok := balancedSpan(stripped); ok && span != stripped && json.Valid([]byte(span)) {
		return span, FenceStripped, nil
	}

	if uncomma := removeTrailingCommas(stripped); json.Valid([]byte(uncomma)) {
		return uncomma, TrailingCommas, nil
	}

	if i := strings.IndexByte(trimmed, '{'); i >= 0 {
		tail := removeTrailingCommas(strings.TrimSpace(stripFences(trimmed[i:])))
		if json.Valid([]byte(tail)) {
			return tail, OpenEnded, nil
		}
		if closed := closeOpen(tail); json.Valid([]byte(closed)) {
			return closed, OpenEnded, nil
		}
	}

	return "", "", newParseError(text, ErrNoJSON)
}

// Parse recovers JSON from text and decodes it into v. It returns a
// *ParseError when no valid JSON is found or the JSON does not fit v.
func Parse(text string, v any) error {
	candidate, _, err := Repair(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return newParseError(text, err)
	}
	return nil
}

// ParseOr decodes text into a T, returning fallback on any failure.
func ParseOr[T any](text string, fallback T) T {
	var v T
	if err := Parse(text, &v); err != nil {
		return fallback
	}
	return v
}

// balancedSpan returns the first {...} or [...] span whose brackets
// balance, honoring JSON string literals and escapes.
func balancedSpan(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// stripFences removes markdown code fence lines (``` or ```json).
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "```") {
			rest := strings.TrimSpace(strings.TrimLeft(t, "`"))
			// A fence line carries at most a language tag.
			if rest == "" || !strings.ContainsAny(rest, "{}[]\"") {
				continue
			}
			line = strings.TrimLeft(t, "`")
			if fields := strings.Fields(line); len(fields) > 0 && !strings.ContainsAny(fields[0], "{[") {
				line = strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
			}
		}
		if strings.HasSuffix(strings.TrimSpace(line), "```") {
			line = strings.TrimRight(strings.TrimSpace(line), "`")
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// removeTrailingCommas drops commas that directly precede a closing
// bracket or brace, outside string literals.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closeOpen terminates an unfinished string and appends the closers for
// any brackets still open at the end of s.
func closeOpen(s string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 && !inString {
		return s
	}
	var b strings.Builder
	b.WriteString(s)
	if inString {
		if escaped {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	out := strings.TrimRightFunc(b.String(), func(r rune) bool { return r == ',' || isSpace(byte(r)) })
	b.Reset()
	b.WriteString(out)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
