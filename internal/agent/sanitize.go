// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"errors"
	"strings"

	"github.com/pdiddy/lecture-engine/internal/llm"
)

// FactSanitizer checks a draft against the transcript and returns a revised
// draft.
type FactSanitizer struct{ caller }

func NewFactSanitizer(client llm.Client, cfg Config) FactSanitizer {
	return FactSanitizer{newCaller(client, cfg)}
}

func (FactSanitizer) Name() string { return NameFactCheck }

func (s FactSanitizer) BuildPrompt(in Input) (Prompt, error) {
	user, err := render(sanitizeUser, newPromptData(in))
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: sanitizeSystem, User: user}, nil
}

// Decode extracts the revised draft: a wrapping code fence or <content>
// tag is removed. A blank answer is an error, since replacing the draft
// with nothing would lose the run's work.
func (FactSanitizer) Decode(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	text = unwrapTag(text, "content")
	text = unwrapFence(text)
	if text == "" {
		return "", errors.New("fact sanitizer returned empty content")
	}
	return text, nil
}

// unwrapFence removes a code fence that encloses the whole text.
func unwrapFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	body := strings.TrimSuffix(text, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return text
	}
	return strings.TrimSpace(body[nl+1:])
}

func unwrapTag(text, tag string) string {
	open, closing := "<"+tag+">", "</"+tag+">"
	if strings.HasPrefix(text, open) && strings.HasSuffix(text, closing) {
		return strings.TrimSpace(text[len(open) : len(text)-len(closing)])
	}
	return text
}
