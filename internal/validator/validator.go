// internal/validator/validator.go

// Package validator filters free-text assistant replies before they reach a
// user. A reply that claims to perform an action, or that offers a feature
// the chat menu does not have, is swapped for a fixed safe reply.
package validator

import (
	"log/slog"
	"strings"
)

// Fixed replacements for rejected text.
const (
	ActionFallback     = "I can help with that! What would you like to do?"
	CapabilityFallback = "I can help with airtime, data, and electricity. What would you like?"
)

// actionPhrases are claims of work the assistant cannot do itself.
var actionPhrases = []string{
	"let me check",
	"i'll check",
	"i'm checking",
	"hold on",
	"please wait",
	"one moment",
	"i need to save",
	"i'll need to save",
	"i'll save",
	"let me save",
	"checking now",
	"checking your",
	"i'll verify",
	"verifying",
	"processing",
	"i'll process",
	"adding to",
}

// inventedFeatures are capabilities the chat channel does not offer.
var inventedFeatures = []string{
	"add funds to your wallet",
	"top up your wallet",
	"deposit",
	"transfer money",
}

// Validator checks assistant replies. The zero value is usable and logs nothing.
type Validator struct {
	logger *slog.Logger
}

// New returns a Validator that logs every rejected reply.
func New(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// Validate reports whether text may be shown as is. When it may not, reply is
// the fallback to send instead; otherwise reply is text, unchanged.
func (v *Validator) Validate(text string) (valid bool, reply string) {
	lower := strings.ToLower(text)

	if phrase, ok := firstMatch(lower, actionPhrases); ok {
		v.warn("assistant reply claims an action", phrase)
		return false, ActionFallback
	}
	if phrase, ok := firstMatch(lower, inventedFeatures); ok {
		v.warn("assistant reply offers an unsupported feature", phrase)
		return false, CapabilityFallback
	}
	return true, text
}

// Validate checks text with a non-logging Validator.
func Validate(text string) (bool, string) {
	var v Validator
	return v.Validate(text)
}

func (v *Validator) warn(msg, phrase string) {
	if v == nil || v.logger == nil {
		return
	}
	v.logger.Warn(msg, "phrase", phrase)
}

func firstMatch(lower string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}
