// internal/domain/beneficiary.go
package domain

import (
	"strings"
	"time"
)

// BeneficiaryKind describes what a beneficiary's value identifies.
type BeneficiaryKind string

const (
	BeneficiaryKindPhone   BeneficiaryKind = "phone"
	BeneficiaryKindMeter   BeneficiaryKind = "meter"
	BeneficiaryKindAccount BeneficiaryKind = "account" // utility or bill account number
)

// Beneficiary is a saved payment target owned by one account.
type Beneficiary struct {
	ID          int64           `db:"id" json:"id"`
	AccountID   int64           `db:"account_id" json:"account_id"`
	Nickname    string          `db:"nickname" json:"nickname"`
	NicknameKey string          `db:"nickname_key" json:"-"` // lower-cased nickname, unique per account
	Kind        BeneficiaryKind `db:"kind" json:"kind"`
	Value       string          `db:"value" json:"value"`
	Network     *string         `db:"network" json:"network,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	LastUsedAt  *time.Time      `db:"last_used_at" json:"last_used_at,omitempty"`
}

// NewBeneficiary creates a beneficiary record for an explicit save command.
func NewBeneficiary(accountID int64, nickname string, kind BeneficiaryKind, value string, network string) *Beneficiary {
	nickname = strings.TrimSpace(nickname)
	b := &Beneficiary{
		AccountID:   accountID,
		Nickname:    nickname,
		NicknameKey: NicknameKey(nickname),
		Kind:        kind,
		Value:       value,
		CreatedAt:   time.Now().UTC(),
	}
	if network != "" {
		b.Network = &network
	}
	return b
}

// NicknameKey normalizes a nickname for case-insensitive uniqueness.
func NicknameKey(nickname string) string {
	return strings.ToLower(strings.Join(strings.Fields(nickname), " "))
}

// NetworkName returns the provider tag or an empty string.
func (b *Beneficiary) NetworkName() string {
	if b.Network == nil {
		return ""
	}
	return *b.Network
}
