// internal/repository/transaction_repo.go
package repository

import (
	"context"
	"time"

	"chatpay-wallet/internal/domain"
)

// TransactionRepository defines the interface for transaction data operations.
type TransactionRepository interface {
	// CreateTransaction inserts a new transaction record and sets its ID.
	CreateTransaction(ctx context.Context, q DBExecutor, transaction *domain.Transaction) error
	GetTransactionByReference(ctx context.Context, q DBExecutor, reference string) (*domain.Transaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, q DBExecutor, accountID int64, key string) (*domain.Transaction, error)
	// MarkCompleted moves a processing transaction to completed with its balance snapshots.
	MarkCompleted(ctx context.Context, q DBExecutor, transaction *domain.Transaction) error
	// MarkFailed moves a processing transaction to failed with the captured reason.
	MarkFailed(ctx context.Context, q DBExecutor, transaction *domain.Transaction) error
	// ListTransactionsByAccount returns one page of history, newest first, and the total count.
	ListTransactionsByAccount(ctx context.Context, q DBExecutor, accountID int64, limit, offset int) ([]domain.Transaction, int64, error)
	ListTransactionsSince(ctx context.Context, q DBExecutor, accountID int64, since time.Time) ([]domain.Transaction, error)
	// FindRefundFor returns the refund recorded against reference, if any.
	FindRefundFor(ctx context.Context, q DBExecutor, reference string) (*domain.Transaction, error)
}
