/*
errors.go - Centralized error types for the reward engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations wrap these with driver-level context.

ERROR CATEGORIES:
  1. Award errors - Duplicate or failed point awards
  2. Redemption errors - Balance shortfalls, invalid spend requests
  3. Lookup errors - Rule resolution failures (per-item, non-fatal)

USAGE:
    if errors.Is(err, rewards.ErrDuplicateAward) {
        // order already rewarded, safe to ignore on retry
    }

SEE ALSO:
  - engine.go: Returns award errors
  - ledger.go: Returns redemption errors
*/
package rewards

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateAward is returned when an order already has an earned
	// ledger entry. This is expected behavior for payment-webhook retries.
	ErrDuplicateAward = errors.New("order already rewarded")

	// ErrInsufficientPoints is returned when a redemption request exceeds
	// the user's available balance. No partial redemption is performed.
	ErrInsufficientPoints = errors.New("insufficient reward points")

	// ErrNothingToRedeem is returned for zero or negative redemption amounts.
	ErrNothingToRedeem = errors.New("redemption amount must be positive")

	// ErrRuleNotFound is returned when a referenced rule doesn't exist.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrEntryNotFound is returned when a referenced ledger entry doesn't exist.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrTxRequired is returned when an operation needs a transactional store.
	ErrTxRequired = errors.New("operation requires transactional store")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError provides details about a balance shortfall.
type InsufficientPointsError struct {
	UserID    UserID
	Available int64
	Requested int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient reward points: available %d, requested %d, short by %d",
		e.Available, e.Requested, e.Requested-e.Available)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// LookupError records a rule-resolution failure for a single order line.
// It never aborts the batch; the engine logs it and continues.
type LookupError struct {
	OrderItemID OrderItemID
	ProductID   ProductID
	Err         error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("rule lookup failed for item %s (product %s): %v",
		e.OrderItemID, e.ProductID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrNothingToRedeem) ||
		errors.Is(err, ErrDuplicateAward)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}
