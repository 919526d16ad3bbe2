// internal/repository/conversation_repo.go
package repository

import (
	"context"

	"chatpay-wallet/internal/domain"
)

// ConversationRepository persists per-account dialogue state and the message log.
type ConversationRepository interface {
	// GetState returns util.ErrNotFound when the account has no pending step.
	GetState(ctx context.Context, q DBExecutor, accountID int64) (*domain.ConversationState, error)
	SaveState(ctx context.Context, q DBExecutor, state *domain.ConversationState) error
	ClearState(ctx context.Context, q DBExecutor, accountID int64) error
	AppendMessage(ctx context.Context, q DBExecutor, message *domain.Message) error
	// ListRecentMessages returns up to limit messages in chronological order.
	ListRecentMessages(ctx context.Context, q DBExecutor, accountID int64, limit int) ([]domain.Message, error)
}
