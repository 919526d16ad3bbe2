// internal/gateway/gateway.go

// Package gateway is the outbound payment collaborator: it settles airtime,
// data, electricity, bill and withdrawal purchases with an external provider.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Operation is the kind of purchase sent to the provider.
type Operation string

const (
	OperationAirtime     Operation = "airtime"
	OperationData        Operation = "data"
	OperationElectricity Operation = "electricity"
	OperationBill        Operation = "bill"
	OperationWithdrawal  Operation = "withdrawal"
)

// Request is one purchase. Reference is the wallet's own transaction
// reference and doubles as the provider-side idempotency key.
type Request struct {
	Operation Operation
	Reference string
	Amount    decimal.Decimal
	Target    string // phone, meter, bill account or payout handle
	Network   string
	Bundle    string
}

// Response is the provider's answer. A declined purchase is a Response with
// Success false; transport failures are errors.
type Response struct {
	Success   bool
	Reference string
	Message   string
	Token     string // prepaid electricity token, when issued
	Raw       string // provider payload kept for audit
}

// Gateway settles purchases with an external provider.
type Gateway interface {
	Purchase(ctx context.Context, req Request) (*Response, error)
}

var (
	ErrUnsupportedOperation = errors.New("gateway: unsupported operation")
	ErrUnavailable          = errors.New("gateway: provider unavailable")
)
