// internal/assistant/assistant.go

// Package assistant is the generative-language collaborator. It only ever
// produces reply text; its intent guess is advisory and never moves money.
package assistant

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Role of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one earlier message in the conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AccountContext is what the assistant is told about the speaker.
type AccountContext struct {
	Name           string
	Balance        decimal.Decimal
	DailyRemaining decimal.Decimal
	Phone          string
	Verified       bool
}

// Request is one generative call.
type Request struct {
	Message string
	Account AccountContext
	History []Turn // oldest first
}

// Reply is the generated text with a coarse intent guess.
type Reply struct {
	Text       string
	Intent     string
	Confidence float64
}

// Assistant generates a free-text reply.
type Assistant interface {
	Reply(ctx context.Context, req Request) (*Reply, error)
}

// MaxHistory is the number of earlier turns sent with a request.
const MaxHistory = 5

// Coarse intents reported with a reply.
const (
	GuessSendMoney    = "send_money"
	GuessAirtime      = "airtime_purchase"
	GuessBalance      = "check_balance"
	GuessHistory      = "transaction_history"
	GuessConversation = "conversation"
)

// GuessIntent labels a user message by keyword. The label is informational
// only.
func GuessIntent(message string) (string, float64) {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "send") && strings.Contains(msg, "money"):
		return GuessSendMoney, 0.9
	case strings.Contains(msg, "airtime"):
		return GuessAirtime, 0.85
	case strings.Contains(msg, "balance") || strings.Contains(msg, "check"):
		return GuessBalance, 0.9
	case strings.Contains(msg, "history") || strings.Contains(msg, "transactions"):
		return GuessHistory, 0.9
	default:
		return GuessConversation, 0.8
	}
}

func trimHistory(history []Turn) []Turn {
	if len(history) > MaxHistory {
		return history[len(history)-MaxHistory:]
	}
	return history
}
