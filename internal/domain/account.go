// internal/domain/account.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountStatusPendingVerification AccountStatus = "pending_verification"
	AccountStatusActive              AccountStatus = "active"
	AccountStatusSuspended           AccountStatus = "suspended"
	AccountStatusBlocked             AccountStatus = "blocked"
)

// Account is one end user's wallet: identity, balance, limits and PIN credential.
type Account struct {
	ID               int64           `db:"id" json:"id"`
	Handle           string          `db:"handle" json:"handle"`             // Normalized phone handle, +27XXXXXXXXX
	DisplayName      string          `db:"display_name" json:"display_name"` // Chat profile name
	Status           AccountStatus   `db:"status" json:"status"`
	Verified         bool            `db:"verified" json:"verified"` // Compliance (FICA) verification completed
	Balance          decimal.Decimal `db:"balance" json:"balance"`
	DailyLimit       decimal.Decimal `db:"daily_limit" json:"daily_limit"`
	MonthlyLimit     decimal.Decimal `db:"monthly_limit" json:"monthly_limit"`
	DailySpent       decimal.Decimal `db:"daily_spent" json:"daily_spent"`
	MonthlySpent     decimal.Decimal `db:"monthly_spent" json:"monthly_spent"`
	LastDailyReset   time.Time       `db:"last_daily_reset" json:"last_daily_reset"`
	LastMonthlyReset time.Time       `db:"last_monthly_reset" json:"last_monthly_reset"`
	PINHash          *string         `db:"pin_hash" json:"-"`
	PINAttempts      int             `db:"pin_attempts" json:"-"`
	PINLockedUntil   *time.Time      `db:"pin_locked_until" json:"-"`
	Version          int64           `db:"version" json:"-"` // Bumped on every balance write
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	VerifiedAt       *time.Time      `db:"verified_at" json:"verified_at,omitempty"`
}

// NewAccount creates an account on first contact, pending verification.
func NewAccount(handle, displayName string, dailyLimit, monthlyLimit decimal.Decimal, now time.Time) *Account {
	now = now.UTC()
	return &Account{
		Handle:           handle,
		DisplayName:      displayName,
		Status:           AccountStatusPendingVerification,
		Balance:          decimal.Zero,
		DailyLimit:       dailyLimit,
		MonthlyLimit:     monthlyLimit,
		DailySpent:       decimal.Zero,
		MonthlySpent:     decimal.Zero,
		LastDailyReset:   now,
		LastMonthlyReset: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Name returns the display name, falling back to the handle.
func (a *Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Handle
}

// HasPIN reports whether a PIN credential has been set.
func (a *Account) HasPIN() bool {
	return a.PINHash != nil && *a.PINHash != ""
}

// ApplyPeriodReset zeroes the spend counters whose period has rolled over since
// the last reset. It only mutates the in-memory copy and reports whether
// anything changed; callers persist it together with the next debit.
func (a *Account) ApplyPeriodReset(now time.Time) bool {
	now = now.UTC()
	changed := false

	last := a.LastDailyReset.UTC()
	if last.Year() != now.Year() || last.YearDay() != now.YearDay() {
		if last.Before(now) {
			a.DailySpent = decimal.Zero
			a.LastDailyReset = now
			changed = true
		}
	}

	lastMonth := a.LastMonthlyReset.UTC()
	if lastMonth.Year() != now.Year() || lastMonth.Month() != now.Month() {
		if lastMonth.Before(now) {
			a.MonthlySpent = decimal.Zero
			a.LastMonthlyReset = now
			changed = true
		}
	}

	return changed
}

// AvailableDaily is the remaining daily allowance, never negative.
func (a *Account) AvailableDaily() decimal.Decimal {
	return decimal.Max(decimal.Zero, a.DailyLimit.Sub(a.DailySpent))
}

// AvailableMonthly is the remaining monthly allowance, never negative.
func (a *Account) AvailableMonthly() decimal.Decimal {
	return decimal.Max(decimal.Zero, a.MonthlyLimit.Sub(a.MonthlySpent))
}
