/*
engine.go - Award orchestration: calculate, fall back, persist

PURPOSE:
  The Engine is invoked once per successfully paid order. It runs the
  product calculator over the order lines, adds the order-total bonus,
  guarantees a non-zero award via the fallback policy, and persists one
  ledger entry plus itemized detail rows.

FALLBACK POLICY:
  When no configured rule yields any points, the order still earns:
    max(1, floor(orderAmount * 0.01))  for the order
    5 * quantity                       per order line
  Customers never see a zero-reward order. This is a deliberate product
  decision, not an error path.

IDEMPOTENCY:
  Award enforces order uniqueness itself: a second call for the same
  order returns ErrDuplicateAward. The check is backed by a unique
  index on earned entries' order_id, so concurrent payment-webhook
  retries cannot double-award.

FAILURE SEMANTICS:
  - Per-line rule lookup failures are logged and skipped; the rest of
    the order is still rewarded.
  - Order-rule lookup failure and persistence failures propagate to the
    caller. The payment flow treats them as non-fatal: log and continue,
    rewards must never roll back a completed payment.

SEE ALSO:
  - calculator.go: Point math
  - ledger.go: Where awarded points are later spent
*/
package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ExpiryWindow is how long earned points remain spendable.
const ExpiryWindow = time.Hour * 24 * 365

// fallbackOrderRate is the fraction of the order total awarded when no
// rule matches anything.
var fallbackOrderRate = decimal.NewFromFloat(0.01)

// fallbackPointsPerUnit is the per-unit award applied to every line
// under the fallback policy.
const fallbackPointsPerUnit = 5

// =============================================================================
// ENGINE
// =============================================================================

// AwardInput describes a paid order.
type AwardInput struct {
	UserID  UserID
	OrderID OrderID
	Amount  decimal.Decimal
	Items   []OrderItem
}

// AwardResult is the persisted outcome of an award.
type AwardResult struct {
	EntryID     EntryID
	TotalPoints int64
	Details     []Detail
	Fallback    bool // true when the fallback policy produced the award
}

// Engine combines rule resolution, point calculation, and persistence.
type Engine struct {
	Rules  RuleSource
	Ledger LedgerStore
	Log    *logrus.Logger
	Now    func() time.Time // nil = time.Now

	products ProductCalculator
	order    OrderAmountCalculator
}

// NewEngine creates an engine over the given stores.
func NewEngine(rules RuleSource, ledger LedgerStore, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		Rules:    rules,
		Ledger:   ledger,
		Log:      log,
		products: ProductCalculator{Rules: rules},
		order:    OrderAmountCalculator{Rules: rules},
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Award calculates and persists reward points for a paid order.
// Calling it twice for the same order returns ErrDuplicateAward.
func (e *Engine) Award(ctx context.Context, in AwardInput) (*AwardResult, error) {
	if in.OrderID != "" {
		exists, err := e.Ledger.HasEarnForOrder(ctx, in.OrderID)
		if err != nil {
			return nil, fmt.Errorf("duplicate-award check for order %s: %w", in.OrderID, err)
		}
		if exists {
			return nil, fmt.Errorf("order %s: %w", in.OrderID, ErrDuplicateAward)
		}
	}

	var (
		total  int64
		awards []PointAward
	)

	// Per-line awards. Lookup failures skip the line, never the order.
	batch := e.products.Calculate(ctx, in.Items)
	for _, lookupErr := range batch.Errors {
		e.Log.WithError(lookupErr).WithFields(logrus.Fields{
			"order_id":      in.OrderID,
			"order_item_id": lookupErr.OrderItemID,
			"product_id":    lookupErr.ProductID,
		}).Warn("rule lookup failed, skipping order line")
	}
	awards = append(awards, batch.Awards...)
	total += batch.TotalPoints()

	// Order-total bonus. A single lookup: failure aborts the award.
	bonus, orderRule, err := e.order.Calculate(ctx, in.Amount)
	if err != nil {
		return nil, fmt.Errorf("order-amount rule for order %s: %w", in.OrderID, err)
	}
	if bonus > 0 {
		awards = append(awards, PointAward{
			RuleID:      orderRule.ID,
			Points:      bonus,
			Description: fmt.Sprintf("%d bonus points for order total %s", bonus, in.Amount.String()),
		})
		total += bonus
	}

	fallback := total == 0
	if fallback {
		fb := fallbackAwards(in)
		awards = append(awards, fb...)
		for _, a := range fb {
			total += a.Points
		}
	}

	now := e.now()
	entry := LedgerEntry{
		UserID:    in.UserID,
		OrderID:   in.OrderID,
		Points:    total,
		EarnedAt:  now,
		ExpiresAt: now.Add(ExpiryWindow),
	}
	details := make([]Detail, len(awards))
	for i, a := range awards {
		details[i] = Detail{
			OrderItemID: a.OrderItemID,
			ProductID:   a.ProductID,
			RuleID:      a.RuleID,
			Points:      a.Points,
			Description: a.Description,
		}
	}

	entryID, err := e.Ledger.AppendEntry(ctx, entry, details)
	if err != nil {
		return nil, fmt.Errorf("persist award for order %s: %w", in.OrderID, err)
	}
	for i := range details {
		details[i].EntryID = entryID
	}

	e.Log.WithFields(logrus.Fields{
		"user_id":  in.UserID,
		"order_id": in.OrderID,
		"points":   total,
		"details":  len(details),
		"fallback": fallback,
	}).Info("reward points awarded")

	return &AwardResult{
		EntryID:     entryID,
		TotalPoints: total,
		Details:     details,
		Fallback:    fallback,
	}, nil
}

// fallbackAwards builds the guaranteed minimum award:
// max(1, floor(amount*0.01)) for the order plus 5*quantity per line.
func fallbackAwards(in AwardInput) []PointAward {
	orderPoints := in.Amount.Mul(fallbackOrderRate).IntPart()
	if orderPoints < 1 {
		orderPoints = 1
	}
	awards := []PointAward{{
		Points:      orderPoints,
		Description: fmt.Sprintf("%d base points for order %s", orderPoints, in.OrderID),
	}}
	for _, item := range in.Items {
		awards = append(awards, PointAward{
			OrderItemID: item.OrderItemID,
			ProductID:   item.ProductID,
			Points:      fallbackPointsPerUnit * item.Quantity,
			Description: fmt.Sprintf("%d base points (%d/unit x %d) for product %s",
				fallbackPointsPerUnit*item.Quantity, fallbackPointsPerUnit, item.Quantity, item.ProductID),
		})
	}
	return awards
}
