// internal/assistant/static.go
package assistant

import (
	"context"
	"fmt"
	"strings"
)

// StaticAssistant answers from fixed templates. It is used when no model is
// configured and in tests.
type StaticAssistant struct{}

func NewStaticAssistant() *StaticAssistant { return &StaticAssistant{} }

var greetingWords = []string{"hi", "hello", "hey", "start", "menu", "howzit", "sawubona"}

func (StaticAssistant) Reply(ctx context.Context, req Request) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := req.Account.Name
	if name == "" {
		name = "there"
	}

	text := "I'm not sure I understood that. I can help you buy airtime, data or electricity, " +
		"or show your balance. Try \"R20 MTN airtime 0821234567\" or type \"menu\"."
	for _, w := range strings.Fields(strings.ToLower(req.Message)) {
		if containsWord(greetingWords, strings.Trim(w, "!.,?")) {
			text = fmt.Sprintf("Hey %s! 👋 I'm Cyrax. I can help you buy airtime, data and electricity. "+
				"Type \"menu\" to see your options.", name)
			break
		}
	}

	intent, confidence := GuessIntent(req.Message)
	return &Reply{Text: text, Intent: intent, Confidence: confidence}, nil
}

func containsWord(words []string, w string) bool {
	for _, candidate := range words {
		if candidate == w {
			return true
		}
	}
	return false
}
