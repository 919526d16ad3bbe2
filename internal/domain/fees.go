// internal/domain/fees.go
package domain

import "github.com/shopspring/decimal"

// FeePolicy computes transaction fees. A fee depends only on (type, amount),
// so any stored transaction can be re-checked against the policy in force.
type FeePolicy struct {
	PercentRate decimal.Decimal                     // transfer and withdrawal rate, e.g. 0.01
	PercentMin  decimal.Decimal                     // floor for percentage fees
	PercentMax  decimal.Decimal                     // ceiling for percentage fees
	Flat        map[TransactionType]decimal.Decimal // flat fees for utility purchases
}

// DefaultFeePolicy returns the standard tariff: 1% clamped to [R1, R50] for
// transfers and withdrawals, flat fees for purchases.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		PercentRate: decimal.RequireFromString("0.01"),
		PercentMin:  decimal.RequireFromString("1.00"),
		PercentMax:  decimal.RequireFromString("50.00"),
		Flat: map[TransactionType]decimal.Decimal{
			TransactionTypeAirtime:     decimal.RequireFromString("1.00"),
			TransactionTypeData:        decimal.RequireFromString("1.00"),
			TransactionTypeElectricity: decimal.RequireFromString("2.50"),
			TransactionTypeBill:        decimal.RequireFromString("2.50"),
		},
	}
}

// Fee returns the fee for a transaction of the given type and amount.
func (p FeePolicy) Fee(txType TransactionType, amount decimal.Decimal) decimal.Decimal {
	switch txType {
	case TransactionTypeTransfer, TransactionTypeWithdrawal:
		fee := amount.Mul(p.PercentRate).Round(2)
		if fee.LessThan(p.PercentMin) {
			fee = p.PercentMin
		}
		if fee.GreaterThan(p.PercentMax) {
			fee = p.PercentMax
		}
		return fee
	case TransactionTypeDeposit, TransactionTypeRefund:
		return decimal.Zero
	default:
		if flat, ok := p.Flat[txType]; ok {
			return flat
		}
		return decimal.Zero
	}
}
