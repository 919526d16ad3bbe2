// internal/domain/transaction.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal" // For precise monetary calculations
)

// Currency is the only currency the wallet holds.
const Currency = "ZAR"

// TransactionType defines the type of a financial transaction.
type TransactionType string

const (
	TransactionTypeTransfer    TransactionType = "transfer"
	TransactionTypeAirtime     TransactionType = "airtime"
	TransactionTypeData        TransactionType = "data"
	TransactionTypeElectricity TransactionType = "electricity"
	TransactionTypeBill        TransactionType = "bill"
	TransactionTypeWithdrawal  TransactionType = "withdrawal"
	TransactionTypeDeposit     TransactionType = "deposit"
	TransactionTypeRefund      TransactionType = "refund"
)

// IsDebit reports whether the type removes money from the owning account.
func (t TransactionType) IsDebit() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeRefund:
		return false
	default:
		return true
	}
}

// RequiresGateway reports whether the type settles through the payment gateway.
func (t TransactionType) RequiresGateway() bool {
	switch t {
	case TransactionTypeAirtime, TransactionTypeData, TransactionTypeElectricity, TransactionTypeBill, TransactionTypeWithdrawal:
		return true
	default:
		return false
	}
}

func (t TransactionType) referenceCode() string {
	switch t {
	case TransactionTypeAirtime:
		return "AIR"
	case TransactionTypeData:
		return "DATA"
	case TransactionTypeElectricity:
		return "ELEC"
	case TransactionTypeBill:
		return "BILL"
	case TransactionTypeWithdrawal:
		return "WDR"
	case TransactionTypeDeposit:
		return "DEP"
	case TransactionTypeRefund:
		return "REF"
	default:
		return "TRF"
	}
}

// TransactionStatus defines the status of a financial transaction.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Transaction is the audit record of one money movement. Rows are never
// deleted; a reversal is a new refund transaction pointing at the original.
type Transaction struct {
	ID               int64             `db:"id" json:"id"`
	AccountID        int64             `db:"account_id" json:"account_id"`
	Reference        string            `db:"reference" json:"reference"` // Idempotency anchor, generated before any mutation
	IdempotencyKey   *string           `db:"idempotency_key" json:"idempotency_key,omitempty"`
	Type             TransactionType   `db:"type" json:"type"`
	Status           TransactionStatus `db:"status" json:"status"`
	Amount           decimal.Decimal   `db:"amount" json:"amount"`
	Fee              decimal.Decimal   `db:"fee" json:"fee"`
	Total            decimal.Decimal   `db:"total" json:"total"` // amount + fee
	Currency         string            `db:"currency" json:"currency"`
	Counterparty     *string           `db:"counterparty" json:"counterparty,omitempty"` // phone, meter, bill account or recipient handle
	Network          *string           `db:"network" json:"network,omitempty"`
	BalanceBefore    *decimal.Decimal  `db:"balance_before" json:"balance_before,omitempty"`
	BalanceAfter     *decimal.Decimal  `db:"balance_after" json:"balance_after,omitempty"`
	GatewayReference *string           `db:"gateway_reference" json:"gateway_reference,omitempty"`
	GatewayResponse  *string           `db:"gateway_response" json:"-"`
	FailureReason    *string           `db:"failure_reason" json:"failure_reason,omitempty"`
	RetryCount       int               `db:"retry_count" json:"retry_count"`
	RelatedReference *string           `db:"related_reference" json:"related_reference,omitempty"` // Refunds point at the original
	Note             *string           `db:"note" json:"note,omitempty"`
	Metadata         *string           `db:"metadata" json:"metadata,omitempty"` // JSON document, e.g. electricity token
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	FailedAt         *time.Time        `db:"failed_at" json:"failed_at,omitempty"`
}

// NewTransaction creates a transaction in processing state with a fresh reference.
func NewTransaction(accountID int64, txType TransactionType, amount, fee decimal.Decimal, now time.Time) *Transaction {
	return &Transaction{
		AccountID: accountID,
		Reference: NewReference(txType),
		Type:      txType,
		Status:    TransactionStatusProcessing,
		Amount:    amount,
		Fee:       fee,
		Total:     amount.Add(fee),
		Currency:  Currency,
		CreatedAt: now.UTC(),
	}
}

// NewReference generates a globally unique payment reference such as CYR-AIR-3F2A9C01B7D4.
func NewReference(txType TransactionType) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "CYR-" + txType.referenceCode() + "-" + id[:12]
}

// CounterpartyValue returns the counterparty or an empty string.
func (t *Transaction) CounterpartyValue() string {
	if t.Counterparty == nil {
		return ""
	}
	return *t.Counterparty
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
