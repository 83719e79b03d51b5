// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// QuestionType categorizes an assignment question.
type QuestionType string

const (
	QuestionMCSC       QuestionType = "mcsc"       // multiple choice, single correct
	QuestionMCMC       QuestionType = "mcmc"       // multiple choice, multiple correct
	QuestionSubjective QuestionType = "subjective" // free-form answer
)

// optionKeys are the only keys an option map may hold after normalization.
var optionKeys = []string{"1", "2", "3", "4"}

// AssignmentItem is one structured assignment question. Exactly one of
// MCSCAnswer, MCMCAnswer, SubjectiveAnswer is populated, matching
// QuestionType.
type AssignmentItem struct {
	QuestionType      QuestionType      `json:"questionType" yaml:"question_type"`
	ContentBody       string            `json:"contentBody" yaml:"content_body"`
	Options           map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
	MCSCAnswer        *int              `json:"mcscAnswer,omitempty" yaml:"mcsc_answer,omitempty"`
	MCMCAnswer        string            `json:"mcmcAnswer,omitempty" yaml:"mcmc_answer,omitempty"`
	SubjectiveAnswer  string            `json:"subjectiveAnswer,omitempty" yaml:"subjective_answer,omitempty"`
	DifficultyLevel   string            `json:"difficultyLevel" yaml:"difficulty_level"`
	AnswerExplanation string            `json:"answerExplanation" yaml:"answer_explanation"`
}

// UnmarshalJSON accepts the loose shapes models produce: numeric strings
// for mcscAnswer, arrays for mcmcAnswer, and numeric option keys.
func (a *AssignmentItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		QuestionType      string                     `json:"questionType"`
		ContentBody       string                     `json:"contentBody"`
		Options           map[string]json.RawMessage `json:"options"`
		MCSCAnswer        json.RawMessage            `json:"mcscAnswer"`
		MCMCAnswer        json.RawMessage            `json:"mcmcAnswer"`
		SubjectiveAnswer  string                     `json:"subjectiveAnswer"`
		DifficultyLevel   string                     `json:"difficultyLevel"`
		AnswerExplanation string                     `json:"answerExplanation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = AssignmentItem{
		QuestionType:      QuestionType(raw.QuestionType),
		ContentBody:       raw.ContentBody,
		SubjectiveAnswer:  raw.SubjectiveAnswer,
		DifficultyLevel:   raw.DifficultyLevel,
		AnswerExplanation: raw.AnswerExplanation,
	}

	if len(raw.Options) > 0 {
		a.Options = make(map[string]string, len(raw.Options))
		for k, v := range raw.Options {
			a.Options[k] = looseString(v)
		}
	}

	if s := looseString(raw.MCSCAnswer); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("mcscAnswer %q is not an integer", s)
		}
		a.MCSCAnswer = &n
	}

	if len(raw.MCMCAnswer) > 0 && raw.MCMCAnswer[0] == '[' {
		var values []json.RawMessage
		if err := json.Unmarshal(raw.MCMCAnswer, &values); err != nil {
			return fmt.Errorf("mcmcAnswer: %w", err)
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, looseString(v))
		}
		a.MCMCAnswer = strings.Join(parts, ",")
	} else {
		a.MCMCAnswer = looseString(raw.MCMCAnswer)
	}
	return nil
}

// looseString renders a JSON scalar as a string; null and absent become "".
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// Normalize returns a cleaned copy: trimmed text, lower-case type and
// difficulty, option keys mapped onto 1..4, and answer fields that do not
// belong to the question type cleared.
func (a AssignmentItem) Normalize() AssignmentItem {
	out := AssignmentItem{
		QuestionType:      QuestionType(strings.ToLower(strings.TrimSpace(string(a.QuestionType)))),
		ContentBody:       strings.TrimSpace(a.ContentBody),
		DifficultyLevel:   strings.ToLower(strings.TrimSpace(a.DifficultyLevel)),
		AnswerExplanation: strings.TrimSpace(a.AnswerExplanation),
	}
	if out.DifficultyLevel == "" {
		out.DifficultyLevel = "medium"
	}

	if len(a.Options) > 0 {
		out.Options = normalizeOptions(a.Options)
	}

	switch out.QuestionType {
	case QuestionMCSC:
		if a.MCSCAnswer != nil {
			n := *a.MCSCAnswer
			out.MCSCAnswer = &n
		}
	case QuestionMCMC:
		out.MCMCAnswer = normalizeMCMC(a.MCMCAnswer)
	case QuestionSubjective:
		out.SubjectiveAnswer = strings.TrimSpace(a.SubjectiveAnswer)
		out.Options = nil
	}
	return out
}

// normalizeOptions folds option keys onto "1".."4". When several keys land
// on one slot, an exact numeric key wins; otherwise the first key in sorted
// order does.
func normalizeOptions(opts map[string]string) map[string]string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(opts))
	exact := make(map[string]bool, len(opts))
	for _, k := range keys {
		slot, ok := normalizeOptionKey(k)
		if !ok {
			continue
		}
		isExact := strings.TrimSpace(k) == slot
		if _, taken := out[slot]; taken && (exact[slot] || !isExact) {
			continue
		}
		out[slot] = strings.TrimSpace(opts[k])
		exact[slot] = isExact
	}
	return out
}

// normalizeOptionKey maps "1".."4", "a".."d" and "option1".."option4" onto "1".."4".
func normalizeOptionKey(k string) (string, bool) {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.TrimPrefix(k, "option")
	k = strings.TrimSpace(k)
	switch k {
	case "1", "2", "3", "4":
		return k, true
	case "a", "b", "c", "d":
		return strconv.Itoa(int(k[0]-'a') + 1), true
	}
	return "", false
}

// normalizeMCMC sorts and de-duplicates a comma-separated answer list.
// Entries that are not integers are kept verbatim so Validate can reject them.
func normalizeMCMC(s string) string {
	seen := make(map[string]bool)
	var nums []int
	var other []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if n, err := strconv.Atoi(p); err == nil {
			nums = append(nums, n)
			continue
		}
		other = append(other, p)
	}
	sort.Ints(nums)
	parts := make([]string, 0, len(nums)+len(other))
	for _, n := range nums {
		parts = append(parts, strconv.Itoa(n))
	}
	parts = append(parts, other...)
	return strings.Join(parts, ",")
}

// Validate enforces the answer invariant for the item's question type.
func (a AssignmentItem) Validate() error {
	if a.ContentBody == "" {
		return errors.New("empty contentBody")
	}
	switch a.QuestionType {
	case QuestionMCSC:
		if err := a.validateOptions(); err != nil {
			return err
		}
		if a.MCSCAnswer == nil {
			return errors.New("mcsc question without mcscAnswer")
		}
		if *a.MCSCAnswer < 1 || *a.MCSCAnswer > 4 {
			return fmt.Errorf("mcscAnswer %d out of range 1..4", *a.MCSCAnswer)
		}
		if a.MCMCAnswer != "" || a.SubjectiveAnswer != "" {
			return errors.New("mcsc question carries another answer type")
		}
	case QuestionMCMC:
		if err := a.validateOptions(); err != nil {
			return err
		}
		if a.MCSCAnswer != nil || a.SubjectiveAnswer != "" {
			return errors.New("mcmc question carries another answer type")
		}
		values, err := ParseMCMCAnswer(a.MCMCAnswer)
		if err != nil {
			return err
		}
		if len(values) < 2 {
			return fmt.Errorf("mcmcAnswer %q needs at least two values", a.MCMCAnswer)
		}
	case QuestionSubjective:
		if a.SubjectiveAnswer == "" {
			return errors.New("subjective question without subjectiveAnswer")
		}
		if a.MCSCAnswer != nil || a.MCMCAnswer != "" {
			return errors.New("subjective question carries another answer type")
		}
	default:
		return fmt.Errorf("unknown questionType %q", a.QuestionType)
	}
	return nil
}

func (a AssignmentItem) validateOptions() error {
	for _, k := range optionKeys {
		if strings.TrimSpace(a.Options[k]) == "" {
			return fmt.Errorf("option %s missing", k)
		}
	}
	return nil
}

// ParseMCMCAnswer parses a comma-separated list of distinct option numbers in 1..4.
func ParseMCMCAnswer(s string) ([]int, error) {
	seen := make(map[int]bool)
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("mcmcAnswer value %q is not an integer", p)
		}
		if n < 1 || n > 4 {
			return nil, fmt.Errorf("mcmcAnswer value %d out of range 1..4", n)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

// NormalizeItems normalizes every item and keeps those that validate. The
// second return value lists why each dropped item was rejected.
func NormalizeItems(items []AssignmentItem) ([]AssignmentItem, []string) {
	var kept []AssignmentItem
	var rejected []string
	for i, item := range items {
		n := item.Normalize()
		if err := n.Validate(); err != nil {
			rejected = append(rejected, fmt.Sprintf("item %d: %v", i, err))
			continue
		}
		kept = append(kept, n)
	}
	return kept, rejected
}
