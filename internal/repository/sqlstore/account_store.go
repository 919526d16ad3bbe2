// internal/repository/sqlstore/account_store.go
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

const accountColumns = `id, handle, display_name, status, verified, balance, daily_limit, monthly_limit,
	daily_spent, monthly_spent, last_daily_reset, last_monthly_reset, pin_hash, pin_attempts,
	pin_locked_until, version, created_at, updated_at, verified_at`

// AccountStore implements repository.AccountRepository.
type AccountStore struct {
	dialect
}

// NewAccountStore creates an AccountStore for the connection's driver.
func NewAccountStore(db *sqlx.DB) repository.AccountRepository {
	return &AccountStore{dialect: newDialect(db)}
}

// CreateAccount inserts a new account and sets its ID.
func (r *AccountStore) CreateAccount(ctx context.Context, q repository.DBExecutor, account *domain.Account) error {
	query := r.rebind(`INSERT INTO accounts (handle, display_name, status, verified, balance, daily_limit, monthly_limit,
		daily_spent, monthly_spent, last_daily_reset, last_monthly_reset, pin_attempts, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := q.QueryRowContext(ctx, query,
		account.Handle, account.DisplayName, account.Status, account.Verified, account.Balance,
		account.DailyLimit, account.MonthlyLimit, account.DailySpent, account.MonthlySpent,
		account.LastDailyReset, account.LastMonthlyReset, account.PINAttempts, account.Version,
		account.CreatedAt, account.UpdatedAt,
	).Scan(&account.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return util.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccountByID retrieves an account by its ID.
func (r *AccountStore) GetAccountByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Account, error) {
	var account domain.Account
	err := q.GetContext(ctx, &account, r.rebind(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	if err != nil {
		if err = mapNoRows(err); err == util.ErrNotFound {
			return nil, util.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID %d: %w", id, err)
	}
	return &account, nil
}

// GetAccountByHandle retrieves an account by its normalized handle.
func (r *AccountStore) GetAccountByHandle(ctx context.Context, q repository.DBExecutor, handle string) (*domain.Account, error) {
	var account domain.Account
	err := q.GetContext(ctx, &account, r.rebind(`SELECT `+accountColumns+` FROM accounts WHERE handle = ?`), handle)
	if err != nil {
		if err = mapNoRows(err); err == util.ErrNotFound {
			return nil, util.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by handle: %w", err)
	}
	return &account, nil
}

// UpdateBalances writes the money fields of the account if nobody else has
// written them since it was read.
func (r *AccountStore) UpdateBalances(ctx context.Context, q repository.DBExecutor, account *domain.Account) error {
	now := time.Now().UTC()
	query := r.rebind(`UPDATE accounts SET balance = ?, daily_spent = ?, monthly_spent = ?,
		last_daily_reset = ?, last_monthly_reset = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`)
	result, err := q.ExecContext(ctx, query,
		account.Balance, account.DailySpent, account.MonthlySpent,
		account.LastDailyReset, account.LastMonthlyReset, now,
		account.ID, account.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update balances for account %d: %w", account.ID, err)
	}
	if err := checkAffected(result, util.ErrConcurrentUpdate, "updating balances"); err != nil {
		return fmt.Errorf("account %d: %w", account.ID, err)
	}
	account.Version++
	account.UpdatedAt = now
	return nil
}

// UpdatePINState writes the PIN credential fields.
func (r *AccountStore) UpdatePINState(ctx context.Context, q repository.DBExecutor, accountID int64, pinHash *string, attempts int, lockedUntil *time.Time) error {
	query := r.rebind(`UPDATE accounts SET pin_hash = ?, pin_attempts = ?, pin_locked_until = ?, updated_at = ? WHERE id = ?`)
	result, err := q.ExecContext(ctx, query, pinHash, attempts, lockedUntil, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update PIN state for account %d: %w", accountID, err)
	}
	return checkAffected(result, util.ErrAccountNotFound, "updating PIN state")
}

// UpdateStatus changes the lifecycle status and compliance flag.
func (r *AccountStore) UpdateStatus(ctx context.Context, q repository.DBExecutor, accountID int64, status domain.AccountStatus, verified bool) error {
	now := time.Now().UTC()
	var verifiedAt *time.Time
	if verified {
		verifiedAt = &now
	}
	query := r.rebind(`UPDATE accounts SET status = ?, verified = ?, verified_at = ?, updated_at = ? WHERE id = ?`)
	result, err := q.ExecContext(ctx, query, status, verified, verifiedAt, now, accountID)
	if err != nil {
		return fmt.Errorf("failed to update status for account %d: %w", accountID, err)
	}
	return checkAffected(result, util.ErrAccountNotFound, "updating status")
}
