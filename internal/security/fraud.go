// internal/security/fraud.go
package security

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"chatpay-wallet/internal/domain"
	"chatpay-wallet/internal/repository"
)

// FraudConfig holds the thresholds of the fraud rules.
type FraudConfig struct {
	NewAccountAge       time.Duration
	NewAccountMaxAmount decimal.Decimal

	VelocityWindow time.Duration
	VelocityMax    int

	SameTargetWindow time.Duration
	SameTargetMax    int

	RoundAmounts []decimal.Decimal
	RoundWindow  time.Duration
	RoundMax     int
}

// DefaultFraudConfig returns the standard rule thresholds.
func DefaultFraudConfig() FraudConfig {
	round := make([]decimal.Decimal, 0, 6)
	for _, v := range []int64{100, 200, 500, 1000, 2000, 5000} {
		round = append(round, decimal.NewFromInt(v))
	}
	return FraudConfig{
		NewAccountAge:       7 * 24 * time.Hour,
		NewAccountMaxAmount: decimal.NewFromInt(1000),
		VelocityWindow:      5 * time.Minute,
		VelocityMax:         5,
		SameTargetWindow:    10 * time.Minute,
		SameTargetMax:       3,
		RoundAmounts:        round,
		RoundWindow:         time.Hour,
		RoundMax:            3,
	}
}

// FraudVerdict is the result of a fraud check. Reason is empty when clear.
type FraudVerdict struct {
	Blocked bool
	Reason  string
}

// FraudDetector evaluates fixed, explainable rules against an account's recent history.
type FraudDetector struct {
	transactions repository.TransactionRepository
	cfg          FraudConfig
	now          func() time.Time
}

// NewFraudDetector creates a FraudDetector.
func NewFraudDetector(transactions repository.TransactionRepository, cfg FraudConfig) *FraudDetector {
	return &FraudDetector{transactions: transactions, cfg: cfg, now: time.Now}
}

// Check runs the rules in order; the first rule that fires decides the verdict.
// It is called inside the account's lock, with the same executor as the ledger.
func (d *FraudDetector) Check(ctx context.Context, q repository.DBExecutor, account *domain.Account, amount decimal.Decimal, counterparty string) (FraudVerdict, error) {
	now := d.now().UTC()

	if account.CreatedAt.After(now.Add(-d.cfg.NewAccountAge)) && amount.GreaterThan(d.cfg.NewAccountMaxAmount) {
		return FraudVerdict{Blocked: true, Reason: "High amount for new account. Please verify your identity first"}, nil
	}

	window := max(d.cfg.VelocityWindow, d.cfg.SameTargetWindow, d.cfg.RoundWindow)
	recent, err := d.transactions.ListTransactionsSince(ctx, q, account.ID, now.Add(-window))
	if err != nil {
		return FraudVerdict{}, fmt.Errorf("fraud check: %w", err)
	}

	var velocity, sameTarget, round int
	for i := range recent {
		tx := &recent[i]
		age := now.Sub(tx.CreatedAt)
		if age < d.cfg.VelocityWindow {
			velocity++
		}
		if counterparty != "" && age < d.cfg.SameTargetWindow && tx.CounterpartyValue() == counterparty {
			sameTarget++
		}
		if age < d.cfg.RoundWindow && d.isRound(tx.Amount) {
			round++
		}
	}

	if velocity >= d.cfg.VelocityMax {
		return FraudVerdict{Blocked: true, Reason: "Too many transactions in short time. Please wait a few minutes"}, nil
	}
	if counterparty != "" && sameTarget >= d.cfg.SameTargetMax {
		return FraudVerdict{Blocked: true, Reason: "Multiple transactions to same recipient. Please contact support"}, nil
	}
	if d.isRound(amount) && round >= d.cfg.RoundMax {
		return FraudVerdict{Blocked: true, Reason: "Suspicious transaction pattern detected. Please verify via support"}, nil
	}
	return FraudVerdict{}, nil
}

func (d *FraudDetector) isRound(amount decimal.Decimal) bool {
	for _, r := range d.cfg.RoundAmounts {
		if amount.Equal(r) {
			return true
		}
	}
	return false
}
