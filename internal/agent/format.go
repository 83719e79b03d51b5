// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/lecture-engine/internal/jsonrepair"
	"github.com/pdiddy/lecture-engine/internal/llm"
	"github.com/pdiddy/lecture-engine/pkg/types"
)

// StructuredFormatter converts assignment content into AssignmentItems.
type StructuredFormatter struct{ caller }

func NewStructuredFormatter(client llm.Client, cfg Config) StructuredFormatter {
	return StructuredFormatter{newCaller(client, cfg)}
}

func (StructuredFormatter) Name() string { return NameFormat }

func (f StructuredFormatter) BuildPrompt(in Input) (Prompt, error) {
	user, err := render(formatUser, newPromptData(in))
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: formatSystem, User: user}, nil
}

// FastPath reports whether content is already a JSON array in which every
// element is a valid AssignmentItem after normalization. When it is, the
// normalized items are returned and no model call is needed.
func (StructuredFormatter) FastPath(content string) ([]types.AssignmentItem, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var items []types.AssignmentItem
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil || len(items) == 0 {
		return nil, false
	}
	kept, rejected := types.NormalizeItems(items)
	if len(rejected) > 0 {
		return nil, false
	}
	return kept, true
}

// Decode recovers an item array from a model answer, accepting either a
// bare array or an object wrapping it under "items" or "questions". Items
// that fail validation are dropped; an answer with no valid item is an
// error.
func (StructuredFormatter) Decode(raw string) ([]types.AssignmentItem, error) {
	var items []types.AssignmentItem
	if err := jsonrepair.Parse(raw, &items); err != nil {
		var wrapped struct {
			Items     []types.AssignmentItem `json:"items"`
			Questions []types.AssignmentItem `json:"questions"`
		}
		if werr := jsonrepair.Parse(raw, &wrapped); werr != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnparsable, err)
		}
		items = append(wrapped.Items, wrapped.Questions...)
	}
	kept, rejected := types.NormalizeItems(items)
	if len(kept) == 0 {
		if len(rejected) > 0 {
			return nil, fmt.Errorf("no valid assignment items: %s", strings.Join(rejected, "; "))
		}
		return nil, fmt.Errorf("%w: no assignment items", ErrUnparsable)
	}
	return kept, nil
}
