// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"github.com/pdiddy/lecture-engine/internal/llm"
	"github.com/pdiddy/lecture-engine/internal/patch"
)

// PolishRefiner turns review feedback into targeted search/replace edits.
type PolishRefiner struct{ caller }

func NewPolishRefiner(client llm.Client, cfg Config) PolishRefiner {
	return PolishRefiner{newCaller(client, cfg)}
}

func (PolishRefiner) Name() string { return NamePolish }

func (r PolishRefiner) BuildPrompt(in Input) (Prompt, error) {
	user, err := render(polishUser, newPromptData(in))
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: polishSystem, User: user}, nil
}

// Apply parses the edit blocks in raw and applies them to content. An
// answer with no blocks leaves content unchanged.
func (PolishRefiner) Apply(content, raw string) patch.Result {
	return patch.Apply(content, patch.ParseBlocks(raw))
}
