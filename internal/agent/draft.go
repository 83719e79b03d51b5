// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import "github.com/pdiddy/lecture-engine/internal/llm"

// Drafter writes the first version of the content. It is the only
// streaming agent; the prompt varies with the request mode.
type Drafter struct{ caller }

func NewDrafter(client llm.Client, cfg Config) Drafter {
	return Drafter{newCaller(client, cfg)}
}

func (Drafter) Name() string { return NameDraft }

func (d Drafter) BuildPrompt(in Input) (Prompt, error) {
	user, err := render(draftUser, newPromptData(in))
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: draftSystem, User: user}, nil
}
