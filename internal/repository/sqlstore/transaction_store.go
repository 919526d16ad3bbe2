// internal/repository/sqlstore/transaction_store.go
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/repository"
	"chatpay-wallet/internal/util"
)

const transactionColumns = `id, account_id, reference, idempotency_key, type, status, amount, fee, total, currency,
	counterparty, network, balance_before, balance_after, gateway_reference, gateway_response, failure_reason,
	retry_count, related_reference, note, metadata, created_at, completed_at, failed_at`

// TransactionStore implements repository.TransactionRepository.
type TransactionStore struct {
	dialect
}

// NewTransactionStore creates a TransactionStore for the connection's driver.
func NewTransactionStore(db *sqlx.DB) repository.TransactionRepository {
	return &TransactionStore{dialect: newDialect(db)}
}

// CreateTransaction adds a new transaction record.
func (r *TransactionStore) CreateTransaction(ctx context.Context, q repository.DBExecutor, t *domain.Transaction) error {
	query := r.rebind(`INSERT INTO transactions (account_id, reference, idempotency_key, type, status, amount, fee, total,
		currency, counterparty, network, balance_before, balance_after, gateway_reference, gateway_response,
		failure_reason, retry_count, related_reference, note, metadata, created_at, completed_at, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := q.QueryRowContext(ctx, query,
		t.AccountID, t.Reference, t.IdempotencyKey, t.Type, t.Status, t.Amount, t.Fee, t.Total,
		t.Currency, t.Counterparty, t.Network, t.BalanceBefore, t.BalanceAfter, t.GatewayReference, t.GatewayResponse,
		t.FailureReason, t.RetryCount, t.RelatedReference, t.Note, t.Metadata, t.CreatedAt, t.CompletedAt, t.FailedAt,
	).Scan(&t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return util.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransactionByReference retrieves a transaction by its payment reference.
func (r *TransactionStore) GetTransactionByReference(ctx context.Context, q repository.DBExecutor, reference string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := q.GetContext(ctx, &t, r.rebind(`SELECT `+transactionColumns+` FROM transactions WHERE reference = ?`), reference)
	if err != nil {
		if err = mapNoRows(err); err == util.ErrNotFound {
			return nil, util.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", reference, err)
	}
	return &t, nil
}

// GetTransactionByIdempotencyKey retrieves the transaction a client key already produced.
func (r *TransactionStore) GetTransactionByIdempotencyKey(ctx context.Context, q repository.DBExecutor, accountID int64, key string) (*domain.Transaction, error) {
	var t domain.Transaction
	query := r.rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = ? AND idempotency_key = ?`)
	if err := q.GetContext(ctx, &t, query, accountID, key); err != nil {
		if err = mapNoRows(err); err == util.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}
	return &t, nil
}

// MarkCompleted finalizes a processing transaction as completed.
func (r *TransactionStore) MarkCompleted(ctx context.Context, q repository.DBExecutor, t *domain.Transaction) error {
	query := r.rebind(`UPDATE transactions SET status = ?, balance_before = ?, balance_after = ?, gateway_reference = ?,
		gateway_response = ?, metadata = ?, completed_at = ? WHERE id = ? AND status = ?`)
	result, err := q.ExecContext(ctx, query,
		domain.TransactionStatusCompleted, t.BalanceBefore, t.BalanceAfter, t.GatewayReference,
		t.GatewayResponse, t.Metadata, t.CompletedAt, t.ID, domain.TransactionStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to complete transaction %s: %w", t.Reference, err)
	}
	if err := checkAffected(result, util.ErrConcurrentUpdate, "completing transaction"); err != nil {
		return fmt.Errorf("transaction %s: %w", t.Reference, err)
	}
	t.Status = domain.TransactionStatusCompleted
	return nil
}

// MarkFailed finalizes a processing transaction as failed.
func (r *TransactionStore) MarkFailed(ctx context.Context, q repository.DBExecutor, t *domain.Transaction) error {
	query := r.rebind(`UPDATE transactions SET status = ?, failure_reason = ?, gateway_response = ?, failed_at = ?
		WHERE id = ? AND status = ?`)
	result, err := q.ExecContext(ctx, query,
		domain.TransactionStatusFailed, t.FailureReason, t.GatewayResponse, t.FailedAt, t.ID, domain.TransactionStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to mark transaction %s failed: %w", t.Reference, err)
	}
	if err := checkAffected(result, util.ErrConcurrentUpdate, "failing transaction"); err != nil {
		return fmt.Errorf("transaction %s: %w", t.Reference, err)
	}
	t.Status = domain.TransactionStatusFailed
	return nil
}

// ListTransactionsByAccount returns one page of an account's history, newest first.
func (r *TransactionStore) ListTransactionsByAccount(ctx context.Context, q repository.DBExecutor, accountID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	var total int64
	if err := q.GetContext(ctx, &total, r.rebind(`SELECT COUNT(*) FROM transactions WHERE account_id = ?`), accountID); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions for account %d: %w", accountID, err)
	}

	transactions := []domain.Transaction{}
	query := r.rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	if err := q.SelectContext(ctx, &transactions, query, accountID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions for account %d: %w", accountID, err)
	}
	return transactions, total, nil
}

// ListTransactionsSince returns every transaction the account created at or after since.
func (r *TransactionStore) ListTransactionsSince(ctx context.Context, q repository.DBExecutor, accountID int64, since time.Time) ([]domain.Transaction, error) {
	transactions := []domain.Transaction{}
	query := r.rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC`)
	if err := q.SelectContext(ctx, &transactions, query, accountID, since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list recent transactions for account %d: %w", accountID, err)
	}
	return transactions, nil
}

// FindRefundFor returns the refund transaction that references the given original.
func (r *TransactionStore) FindRefundFor(ctx context.Context, q repository.DBExecutor, reference string) (*domain.Transaction, error) {
	var t domain.Transaction
	query := r.rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE related_reference = ? AND type = ?`)
	if err := q.GetContext(ctx, &t, query, reference, domain.TransactionTypeRefund); err != nil {
		if err = mapNoRows(err); err == util.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up refund for %s: %w", reference, err)
	}
	return &t, nil
}
