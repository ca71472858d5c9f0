/*
calculator.go - Point math for order lines and order totals

PURPOSE:
  Pure calculation over resolved rules. The product calculator walks the
  order lines independently and is partial-failure tolerant: a rule
  lookup failure on one line is recorded, not thrown, and the remaining
  lines are still processed.

ROUNDING:
  All fractional point amounts floor toward zero. Prices and multipliers
  are decimal.Decimal so 0.05 * 100 is exactly 5, never 4.999...

FORMULAS:
  Product line (percentage rule):  floor(price * quantity * multiplier)
  Product line (fixed rule):       pointsPerUnit * quantity
  Flat bonus:                      + bonusPoints, once per line
  Order total (percentage rule):   floor(total * points / 100)
  Order total (fixed rule):        points

SEE ALSO:
  - rules.go: Rule resolution
  - engine.go: Merges both calculators and applies the fallback
*/
package rewards

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AWARD RESULT TYPES
// =============================================================================

// PointAward is the outcome of applying a rule to one order line, or an
// order-level bonus when OrderItemID/ProductID are empty.
type PointAward struct {
	OrderItemID OrderItemID
	ProductID   ProductID
	RuleID      RuleID
	Points      int64
	Description string
}

// ItemResult is the per-line outcome of the product calculator.
// Exactly one of Award/Err is set; both nil means the line was skipped
// because no rule applies.
type ItemResult struct {
	Item  OrderItem
	Award *PointAward
	Err   *LookupError
}

// BatchResult separates successes from skipped and failed lines.
type BatchResult struct {
	Awards  []PointAward
	Skipped []OrderItem
	Errors  []*LookupError
}

// TotalPoints sums the awarded points.
func (b BatchResult) TotalPoints() int64 {
	var total int64
	for _, a := range b.Awards {
		total += a.Points
	}
	return total
}

// =============================================================================
// PRODUCT POINTS CALCULATOR
// =============================================================================

// ProductCalculator resolves and applies the single applicable rule per
// order line.
type ProductCalculator struct {
	Rules      RuleSource
	Strategies []ResolutionStrategy // nil = DefaultStrategies
}

// Calculate processes each line independently. Lookup failures are
// collected per line; they never abort the batch.
func (c *ProductCalculator) Calculate(ctx context.Context, items []OrderItem) BatchResult {
	var result BatchResult
	for _, item := range items {
		r := c.calculateItem(ctx, item)
		switch {
		case r.Err != nil:
			result.Errors = append(result.Errors, r.Err)
		case r.Award != nil:
			result.Awards = append(result.Awards, *r.Award)
		default:
			result.Skipped = append(result.Skipped, item)
		}
	}
	return result
}

func (c *ProductCalculator) calculateItem(ctx context.Context, item OrderItem) ItemResult {
	rule, err := ResolveProductRule(ctx, c.Rules, item.ProductID, c.Strategies)
	if err != nil {
		return ItemResult{Item: item, Err: &LookupError{
			OrderItemID: item.OrderItemID,
			ProductID:   item.ProductID,
			Err:         err,
		}}
	}
	if rule == nil {
		return ItemResult{Item: item}
	}

	points := ItemPoints(*rule, item)
	if points <= 0 {
		return ItemResult{Item: item}
	}

	return ItemResult{Item: item, Award: &PointAward{
		OrderItemID: item.OrderItemID,
		ProductID:   item.ProductID,
		RuleID:      rule.ID,
		Points:      points,
		Description: describeItemAward(*rule, item, points),
	}}
}

// ItemPoints applies a product rule to one order line.
func ItemPoints(rule ProductRule, item OrderItem) int64 {
	var points int64
	if rule.Percentage {
		// floor(price * quantity * multiplier)
		points = item.Price.
			Mul(decimal.NewFromInt(item.Quantity)).
			Mul(rule.Multiplier).
			IntPart()
	} else {
		points = rule.PointsPerUnit * item.Quantity
	}
	if rule.BonusPoints > 0 {
		points += rule.BonusPoints
	}
	return points
}

func describeItemAward(rule ProductRule, item OrderItem, points int64) string {
	if rule.Percentage {
		return fmt.Sprintf("%d points (%s%% of line total) for product %s",
			points, rule.Multiplier.Mul(decimal.NewFromInt(100)).String(), item.ProductID)
	}
	return fmt.Sprintf("%d points (%d/unit x %d) for product %s",
		points, rule.PointsPerUnit, item.Quantity, item.ProductID)
}

// =============================================================================
// ORDER AMOUNT CALCULATOR
// =============================================================================

// OrderAmountCalculator resolves and applies the best-matching tier for
// the order total.
type OrderAmountCalculator struct {
	Rules RuleSource
}

// Calculate returns the order-level bonus, 0 when no tier matches, and
// the rule that produced it. Lookup failures propagate: this is a single
// lookup, not a per-line batch.
func (c *OrderAmountCalculator) Calculate(ctx context.Context, total decimal.Decimal) (int64, *OrderAmountRule, error) {
	rule, err := ResolveOrderRule(ctx, c.Rules, total)
	if err != nil {
		return 0, nil, err
	}
	if rule == nil {
		return 0, nil, nil
	}
	return OrderBonus(*rule, total), rule, nil
}

// OrderBonus applies an order-amount rule to the order total.
func OrderBonus(rule OrderAmountRule, total decimal.Decimal) int64 {
	if rule.Percentage {
		// floor(total * points / 100)
		return total.
			Mul(decimal.NewFromInt(rule.Points)).
			Div(decimal.NewFromInt(100)).
			IntPart()
	}
	return rule.Points
}
