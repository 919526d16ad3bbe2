// internal/domain/conversation.go
package domain

import "time"

// ConversationStateKind names a multi-turn step the account is in the middle of.
type ConversationStateKind string

const (
	StateIdle                     ConversationStateKind = "idle"
	StateAwaitingPIN              ConversationStateKind = "awaiting_pin"
	StateAwaitingCurrentPIN       ConversationStateKind = "awaiting_current_pin" // PIN change, old PIN first
	StateAwaitingNewPIN           ConversationStateKind = "awaiting_new_pin"
	StateAwaitingTypoConfirmation ConversationStateKind = "awaiting_typo_confirmation"
	StateAwaitingDetails          ConversationStateKind = "awaiting_details" // a money request missing a slot
)

// ConversationState is the persisted per-account dialogue state. Payload holds
// a JSON document whose shape depends on State (a pending action, a suggested command).
type ConversationState struct {
	AccountID int64                 `db:"account_id" json:"account_id"`
	State     ConversationStateKind `db:"state" json:"state"`
	Payload   string                `db:"payload" json:"payload"`
	UpdatedAt time.Time             `db:"updated_at" json:"updated_at"`
}

// MessageDirection marks a logged message as received or sent.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "in"
	DirectionOutbound MessageDirection = "out"
)

// Message is one logged chat turn, used to give the generative layer recent context.
type Message struct {
	ID        int64            `db:"id" json:"id"`
	AccountID int64            `db:"account_id" json:"account_id"`
	Direction MessageDirection `db:"direction" json:"direction"`
	Body      string           `db:"body" json:"body"`
	Intent    string           `db:"intent" json:"intent"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
