/*
ledger.go - Points ledger: balance calculation and FIFO redemption

PURPOSE:
  The ledger is the source of truth for a user's points. Earned entries
  are appended when an order is rewarded; spending consumes the oldest
  unexpired earned entries first so that points about to expire are used
  before fresh ones.

BALANCE:
  Available = sum of spendable earned entries (positive, unused,
  unexpired), floored at 0. Redemption entries are written as negative
  audit records with Used=true; the points they spent have already been
  removed from the earned entries they consumed, so counting them again
  would double-subtract. Negative rows not produced by this ledger
  (Used=false, e.g. imported adjustments) still count.

FIFO REDEMPTION:
  1. Recompute the balance; fail with InsufficientPointsError when the
     request exceeds it. No partial redemption.
  2. Walk unused, unexpired earned entries oldest-first:
     - entry fully covered: mark Used
     - entry partially covered: decrement Points in place, stop
  3. When tied to an order, append a negative Used entry plus a detail
     row describing the redemption.

CONCURRENCY:
  The whole read-select-mutate sequence runs inside one store
  transaction. Two concurrent redemptions for the same user serialize at
  the store, so the balance check and the consumption it authorizes are
  atomic.

ENTRY LIFECYCLE:
  Active -> Consumed (Used=true, terminal)
  Active -> Active with reduced Points (partial consumption)
  Active -> Expired (by time passing; no explicit transition)

SEE ALSO:
  - engine.go: Writes earned entries
  - store/sqlite: Persistent LedgerStore implementation
*/
package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// LEDGER STORE - Persistence interface
// =============================================================================

// LedgerStore handles persistence of ledger entries and detail rows.
// Detail rows are immutable; entries mutate only via Consume/Reduce.
type LedgerStore interface {
	// AppendEntry persists an entry with its detail rows atomically and
	// returns the assigned entry ID. Earned entries for an order that
	// already has one are rejected with ErrDuplicateAward.
	AppendEntry(ctx context.Context, entry LedgerEntry, details []Detail) (EntryID, error)

	// EntriesForUser returns all of a user's entries, oldest first.
	EntriesForUser(ctx context.Context, userID UserID) ([]LedgerEntry, error)

	// SpendableEntries returns unused, unexpired, positive entries for
	// the user, ordered oldest-first by EarnedAt (FIFO).
	SpendableEntries(ctx context.Context, userID UserID, asOf time.Time) ([]LedgerEntry, error)

	// DetailsForEntry returns the audit rows for one entry.
	DetailsForEntry(ctx context.Context, entryID EntryID) ([]Detail, error)

	// HasEarnForOrder reports whether the order already has an earned entry.
	HasEarnForOrder(ctx context.Context, orderID OrderID) (bool, error)

	// ConsumeEntry marks an entry fully consumed.
	ConsumeEntry(ctx context.Context, entryID EntryID) error

	// ReduceEntry decrements an entry's points in place.
	ReduceEntry(ctx context.Context, entryID EntryID, by int64) error
}

// TxLedgerStore wraps LedgerStore with transaction support. Redemption
// requires it: the balance check and the mutations it authorizes must
// commit or roll back together.
type TxLedgerStore interface {
	LedgerStore

	// WithTx executes fn within a transaction. If fn returns an error,
	// the transaction is rolled back.
	WithTx(ctx context.Context, fn func(LedgerStore) error) error
}

// =============================================================================
// BALANCE - Pure calculation over entries
// =============================================================================

// AvailablePoints computes the spendable balance from a user's entries
// as of asOf. Never negative.
func AvailablePoints(entries []LedgerEntry, asOf time.Time) int64 {
	var total int64
	for _, e := range entries {
		switch {
		case e.Spendable(asOf):
			total += e.Points
		case e.Points < 0 && !e.Used:
			total += e.Points
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// =============================================================================
// POINTS LEDGER - Balance queries and FIFO redemption
// =============================================================================

// PointsLedger exposes balance and redemption over a LedgerStore.
type PointsLedger struct {
	Store LedgerStore
	Log   *logrus.Logger
	Now   func() time.Time // nil = time.Now
}

// NewPointsLedger creates a ledger over the given store.
func NewPointsLedger(store LedgerStore, log *logrus.Logger) *PointsLedger {
	if log == nil {
		log = logrus.New()
	}
	return &PointsLedger{Store: store, Log: log}
}

func (l *PointsLedger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// Available returns the user's spendable balance.
func (l *PointsLedger) Available(ctx context.Context, userID UserID) (int64, error) {
	entries, err := l.Store.EntriesForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load ledger for %s: %w", userID, err)
	}
	return AvailablePoints(entries, l.now()), nil
}

// Redeem spends points against the user's oldest unexpired earned
// entries. When orderID is set, a negative audit entry and detail row
// are appended. The whole operation is atomic; on any error nothing is
// consumed.
func (l *PointsLedger) Redeem(ctx context.Context, userID UserID, points int64, orderID OrderID) error {
	if points <= 0 {
		return ErrNothingToRedeem
	}

	txStore, ok := l.Store.(TxLedgerStore)
	if !ok {
		return ErrTxRequired
	}

	now := l.now()
	err := txStore.WithTx(ctx, func(s LedgerStore) error {
		entries, err := s.EntriesForUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("load ledger for %s: %w", userID, err)
		}
		available := AvailablePoints(entries, now)
		if available < points {
			return &InsufficientPointsError{UserID: userID, Available: available, Requested: points}
		}

		open, err := s.SpendableEntries(ctx, userID, now)
		if err != nil {
			return fmt.Errorf("load spendable entries for %s: %w", userID, err)
		}

		remaining := points
		for _, e := range open {
			if remaining <= 0 {
				break
			}
			if e.Points <= remaining {
				if err := s.ConsumeEntry(ctx, e.ID); err != nil {
					return fmt.Errorf("consume entry %d: %w", e.ID, err)
				}
				remaining -= e.Points
			} else {
				if err := s.ReduceEntry(ctx, e.ID, remaining); err != nil {
					return fmt.Errorf("reduce entry %d: %w", e.ID, err)
				}
				remaining = 0
			}
		}
		if remaining > 0 {
			// Balance said yes but the open entries didn't cover it.
			return &InsufficientPointsError{UserID: userID, Available: points - remaining, Requested: points}
		}

		if orderID != "" {
			entry := LedgerEntry{
				UserID:    userID,
				OrderID:   orderID,
				Points:    -points,
				EarnedAt:  now,
				ExpiresAt: now,
				Used:      true,
			}
			detail := Detail{
				Points:      -points,
				Description: fmt.Sprintf("Redeemed %d points on order %s", points, orderID),
			}
			if _, err := s.AppendEntry(ctx, entry, []Detail{detail}); err != nil {
				return fmt.Errorf("record redemption: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.Log.WithFields(logrus.Fields{
		"user_id":  userID,
		"order_id": orderID,
		"points":   points,
	}).Info("reward points redeemed")
	return nil
}
