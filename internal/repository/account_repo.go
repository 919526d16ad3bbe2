// internal/repository/account_repo.go
package repository

import (
	"context"
	"time"

	"chatpay-wallet/internal/domain"
)

// AccountRepository defines the interface for account data operations.
type AccountRepository interface {
	CreateAccount(ctx context.Context, q DBExecutor, account *domain.Account) error
	GetAccountByID(ctx context.Context, q DBExecutor, id int64) (*domain.Account, error)
	GetAccountByHandle(ctx context.Context, q DBExecutor, handle string) (*domain.Account, error)
	// UpdateBalances writes balance, spend counters and reset stamps, guarded by
	// the account's Version. On success the in-memory Version is advanced.
	UpdateBalances(ctx context.Context, q DBExecutor, account *domain.Account) error
	// UpdatePINState writes the PIN hash, failed-attempt counter and lockout expiry.
	UpdatePINState(ctx context.Context, q DBExecutor, accountID int64, pinHash *string, attempts int, lockedUntil *time.Time) error
	UpdateStatus(ctx context.Context, q DBExecutor, accountID int64, status domain.AccountStatus, verified bool) error
}
