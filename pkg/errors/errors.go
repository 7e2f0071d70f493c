// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// Rate table errors
	ErrRateSetIncomplete  = errors.New("rate set must define a rate for every category")
	ErrRateOutOfRange     = errors.New("rate must be between 0 and 100")
	ErrOverrideNotFound   = errors.New("partner override not found")
	ErrStaleRateVersion   = errors.New("rate set was modified concurrently")
	ErrSettingsNotFound   = errors.New("commission settings not found")

	// Resolver errors
	ErrUnknownCategory   = errors.New("unknown product category")
	ErrUnknownOrderType  = errors.New("unknown order type")
	ErrInvalidOrderValue = errors.New("order value must not be negative")

	// Ledger errors
	ErrTransactionNotFound      = errors.New("wallet transaction not found")
	ErrInvalidStatusTransition  = errors.New("invalid transaction status transition")
	ErrInvalidTransactionType   = errors.New("invalid transaction type")
	ErrInvalidTransactionAmount = errors.New("transaction amount must not be zero")
	ErrMissingPartner           = errors.New("partner id is required")

	// Adjustment errors
	ErrInvalidAmount      = errors.New("adjustment amount must be greater than zero")
	ErrMissingDescription = errors.New("adjustment description is required")
)

// PersistenceError marks a store-level failure as retryable, as opposed to a
// validation failure which is not. Callers unwrap it with errors.As.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err as a PersistenceError, or returns nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsRetryable reports whether err is a store-level failure worth retrying.
func IsRetryable(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
