/*
rules.go - Rule lookup interface and resolution strategies

PURPOSE:
  Defines the read-only interface the engine uses to find award rules,
  and the ordered strategy list that picks the single applicable
  ProductRule for an order line.

RESOLUTION ORDER (product rules):
  1. ProductSpecific:  A rule keyed directly to the product wins.
  2. CategoryFallback: Otherwise the rule for the product's category.

  Strategies are evaluated in order and short-circuit on the first rule
  whose master rule is active. A product-keyed rule with an inactive
  master counts as "not found" and the category strategy still runs.
  A product without a category resolves to no rule.

RESOLUTION (order-amount rules):
  Ranges may overlap. Among active rules whose range contains the order
  total, the one with the highest MinAmount wins.

SIDE EFFECTS:
  None. RuleSource is pure reads; lookup failures propagate to the
  caller, which decides whether they abort (order rule) or skip a
  single line (product rules).

SEE ALSO:
  - calculator.go: Applies the resolved rules
  - store/sqlite: Persistent RuleSource implementation
*/
package rewards

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE SOURCE - Read-only rule lookups
// =============================================================================

// RuleSource is the read side of rule storage. All methods return
// (nil, nil) or ("", nil) when the requested row simply doesn't exist;
// errors are reserved for lookup failures.
type RuleSource interface {
	// ProductRuleFor returns the rule keyed directly to the product, if any.
	ProductRuleFor(ctx context.Context, productID ProductID) (*ProductRule, error)

	// CategoryRuleFor returns the rule keyed to the category, if any.
	CategoryRuleFor(ctx context.Context, categoryID CategoryID) (*ProductRule, error)

	// CategoryOf returns the product's category, or "" when the product
	// is uncategorized or unknown.
	CategoryOf(ctx context.Context, productID ProductID) (CategoryID, error)

	// OrderAmountRules returns all configured order-total tiers.
	OrderAmountRules(ctx context.Context) ([]OrderAmountRule, error)

	// IsRuleActive reports whether the master rule is active.
	// Unknown masters are inactive.
	IsRuleActive(ctx context.Context, masterID RuleID) (bool, error)
}

// =============================================================================
// PRODUCT RULE RESOLUTION - Ordered strategies, first active match wins
// =============================================================================

// ResolutionStrategy locates a candidate ProductRule for a product.
// Returning (nil, nil) means "no candidate, try the next strategy".
type ResolutionStrategy interface {
	Name() string
	Resolve(ctx context.Context, src RuleSource, productID ProductID) (*ProductRule, error)
}

// ProductSpecific finds a rule keyed directly to the product.
type ProductSpecific struct{}

func (ProductSpecific) Name() string { return "product_specific" }

func (ProductSpecific) Resolve(ctx context.Context, src RuleSource, productID ProductID) (*ProductRule, error) {
	return src.ProductRuleFor(ctx, productID)
}

// CategoryFallback finds a rule keyed to the product's category.
type CategoryFallback struct{}

func (CategoryFallback) Name() string { return "category_fallback" }

func (CategoryFallback) Resolve(ctx context.Context, src RuleSource, productID ProductID) (*ProductRule, error) {
	categoryID, err := src.CategoryOf(ctx, productID)
	if err != nil {
		return nil, err
	}
	if categoryID == "" {
		return nil, nil
	}
	return src.CategoryRuleFor(ctx, categoryID)
}

// DefaultStrategies is the resolution order used by the engine.
var DefaultStrategies = []ResolutionStrategy{ProductSpecific{}, CategoryFallback{}}

// ResolveProductRule walks the strategies in order and returns the first
// candidate whose master rule is active, or nil when none applies.
func ResolveProductRule(ctx context.Context, src RuleSource, productID ProductID, strategies []ResolutionStrategy) (*ProductRule, error) {
	if strategies == nil {
		strategies = DefaultStrategies
	}
	for _, s := range strategies {
		rule, err := s.Resolve(ctx, src, productID)
		if err != nil {
			return nil, err
		}
		if rule == nil {
			continue
		}
		active, err := src.IsRuleActive(ctx, rule.MasterID)
		if err != nil {
			return nil, err
		}
		if active {
			return rule, nil
		}
		// Inactive master: candidate is unusable, keep trying.
	}
	return nil, nil
}

// =============================================================================
// ORDER-AMOUNT RULE RESOLUTION - Highest matching MinAmount wins
// =============================================================================

// ResolveOrderRule picks the single best-matching tier for the order
// total, or nil when no active tier matches.
func ResolveOrderRule(ctx context.Context, src RuleSource, total decimal.Decimal) (*OrderAmountRule, error) {
	rules, err := src.OrderAmountRules(ctx)
	if err != nil {
		return nil, err
	}

	var best *OrderAmountRule
	for i := range rules {
		r := rules[i]
		if !r.Matches(total) {
			continue
		}
		active, err := src.IsRuleActive(ctx, r.MasterID)
		if err != nil {
			return nil, err
		}
		if !active {
			continue
		}
		if best == nil || r.MinAmount.GreaterThan(best.MinAmount) {
			best = &rules[i]
		}
	}
	return best, nil
}
