// internal/util/errors.go
package util

import "errors"

// Common application-specific errors.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input provided")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateEntry      = errors.New("duplicate entry") // unique constraint, e.g. a beneficiary nickname already in use
	ErrConcurrentUpdate    = errors.New("record was modified concurrently")
	ErrLockNotAcquired     = errors.New("could not acquire account lock")
	ErrAlreadyRefunded     = errors.New("transaction already refunded")
	ErrNotRefundable       = errors.New("transaction cannot be refunded")
)

// IsError reports whether any error in err's chain matches target.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}
