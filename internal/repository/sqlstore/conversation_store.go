// internal/repository/sqlstore/conversation_store.go
package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/repository"
	"chatpay-wallet/internal/util"
)

// ConversationStore implements repository.ConversationRepository.
type ConversationStore struct {
	dialect
}

// NewConversationStore creates a ConversationStore for the connection's driver.
func NewConversationStore(db *sqlx.DB) repository.ConversationRepository {
	return &ConversationStore{dialect: newDialect(db)}
}

func (r *ConversationStore) GetState(ctx context.Context, q repository.DBExecutor, accountID int64) (*domain.ConversationState, error) {
	var state domain.ConversationState
	query := r.rebind(`SELECT account_id, state, payload, updated_at FROM conversation_states WHERE account_id = ?`)
	if err := q.GetContext(ctx, &state, query, accountID); err != nil {
		if err = mapNoRows(err); err == util.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get conversation state for account %d: %w", accountID, err)
	}
	return &state, nil
}

func (r *ConversationStore) SaveState(ctx context.Context, q repository.DBExecutor, state *domain.ConversationState) error {
	query := r.rebind(`INSERT INTO conversation_states (account_id, state, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET state = excluded.state, payload = excluded.payload, updated_at = excluded.updated_at`)
	if _, err := q.ExecContext(ctx, query, state.AccountID, state.State, state.Payload, state.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save conversation state for account %d: %w", state.AccountID, err)
	}
	return nil
}

func (r *ConversationStore) ClearState(ctx context.Context, q repository.DBExecutor, accountID int64) error {
	if _, err := q.ExecContext(ctx, r.rebind(`DELETE FROM conversation_states WHERE account_id = ?`), accountID); err != nil {
		return fmt.Errorf("failed to clear conversation state for account %d: %w", accountID, err)
	}
	return nil
}

func (r *ConversationStore) AppendMessage(ctx context.Context, q repository.DBExecutor, m *domain.Message) error {
	query := r.rebind(`INSERT INTO messages (account_id, direction, body, intent, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`)
	if err := q.QueryRowContext(ctx, query, m.AccountID, m.Direction, m.Body, m.Intent, m.CreatedAt).Scan(&m.ID); err != nil {
		return fmt.Errorf("failed to append message for account %d: %w", m.AccountID, err)
	}
	return nil
}

func (r *ConversationStore) ListRecentMessages(ctx context.Context, q repository.DBExecutor, accountID int64, limit int) ([]domain.Message, error) {
	messages := []domain.Message{}
	query := r.rebind(`SELECT id, account_id, direction, body, intent, created_at FROM messages
		WHERE account_id = ? ORDER BY id DESC LIMIT ?`)
	if err := q.SelectContext(ctx, &messages, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("failed to list messages for account %d: %w", accountID, err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
