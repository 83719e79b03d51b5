// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/lecture-engine/internal/llm"
)

var (
	topicLine    = regexp.MustCompile(`(?m)^Topic:\s*(.+)$`)
	subtopicLine = regexp.MustCompile(`(?m)^Subtopics:\s*(.+)$`)
	contentTag   = regexp.MustCompile(`(?s)<content>\n?(.*?)\n?</content>`)
)

// NewDemoClient returns a MockClient with plausible canned answers for every
// agent, for running the engine without network access. Rules match on the
// role phrases of the system prompts.
func NewDemoClient() *llm.MockClient {
	return &llm.MockClient{
		Rules: []llm.MockRule{
			{Match: RoleContext, Reply: func(llm.Request) (string, error) {
				return `{"domain":"general","confidence":0.6,"characteristics":{"exampleTypes":["worked examples"],"formats":["markdown"],"vocabulary":[],"styleHints":["plain language"],"relatableExamples":[]},"contentGuidelines":"Explain concepts step by step.","qualityCriteria":"Accurate, clear, well structured."}`, nil
			}},
			{Match: RoleAnalysis, Reply: func(req llm.Request) (string, error) {
				subs := splitList(capture(subtopicLine, userText(req)))
				return fmt.Sprintf(`{"covered":%s,"partiallyCovered":[],"notCovered":[],"transcriptTopics":%s}`, jsonList(subs), jsonList(subs)), nil
			}},
			{Match: RoleSanitize, Reply: func(req llm.Request) (string, error) {
				return capture(contentTag, userText(req)), nil
			}},
			{Match: RoleReview, Reply: func(llm.Request) (string, error) {
				return `{"score":9.2,"needsPolish":false,"feedback":"Clear and well organized.","detailedFeedback":[]}`, nil
			}},
			{Match: RolePolish, Reply: func(llm.Request) (string, error) {
				return "No changes needed.", nil
			}},
			{Match: RoleFormat, Reply: func(llm.Request) (string, error) {
				return demoItems, nil
			}},
			{Match: RoleDraft, Reply: func(req llm.Request) (string, error) {
				topic := capture(topicLine, userText(req))
				if topic == "" {
					topic = "the topic"
				}
				return fmt.Sprintf("# %s\n\n## Overview\n\n%s introduces a set of ideas worth learning in order.\n\n## Key Ideas\n\n- Start from definitions.\n- Work through an example.\n\n## Summary\n\nReview the key ideas and practice them.\n", topic, topic), nil
			}},
		},
	}
}

const demoItems = `[{"questionType":"mcsc","contentBody":"Which statement is true?","options":{"1":"A","2":"B","3":"C","4":"D"},"mcscAnswer":1,"difficultyLevel":"easy","answerExplanation":"A is the definition."},{"questionType":"subjective","contentBody":"Explain the main idea in your own words.","subjectiveAnswer":"A short explanation.","difficultyLevel":"medium","answerExplanation":"Any accurate explanation."}]`

func userText(req llm.Request) string {
	var b strings.Builder
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func capture(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}
