/*
Package factory provides JSON to Go rule conversion.

PURPOSE:
  Converts JSON rule-set definitions into rewards.MasterRule,
  rewards.ProductRule and rewards.OrderAmountRule objects. This enables
  rule configuration without code changes - merchandising can define
  earning rules in JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify earning rules
  - Easy integration with admin UI
  - Version control for rule definitions
  - Database storage of rule configs

JSON SCHEMA:
  {
    "masters": [
      {"id": "master-launch", "name": "Launch promo", "active": true, "priority": 10}
    ],
    "product_rules": [
      {
        "id": "rule-sneaker",
        "master_id": "master-launch",
        "product_id": "prod-sneaker",
        "percentage": true,
        "multiplier": "0.05",
        "bonus_points": 50
      },
      {
        "id": "rule-apparel",
        "master_id": "master-launch",
        "category_id": "cat-apparel",
        "points_per_unit": 5
      }
    ],
    "order_rules": [
      {
        "id": "tier-1000",
        "master_id": "master-launch",
        "min_amount": "1000",
        "points": 5,
        "percentage": true
      }
    ],
    "products": [
      {"id": "prod-sneaker", "name": "Sneaker", "category_id": "cat-shoes"}
    ]
  }

KEY FEATURES:
  - Validates JSON structure and cross-references (master IDs)
  - Derives rule scope from which key (product/category) is present
  - Parses money and multipliers as decimal strings
  - Applies a full rule set to a store in one call

USAGE:
  factory := NewRuleFactory()

  ruleSet, err := factory.ParseRuleSet(jsonString)
  if err != nil {
      log.Fatal(err)
  }
  if err := factory.Apply(ctx, store, ruleSet); err != nil {
      log.Fatal(err)
  }

SEE ALSO:
  - rewards/types.go: Rule type definitions
  - store/sqlite: Persistent rule storage
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/reward-engine/rewards"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleSetJSON is the JSON representation of a full rule configuration.
type RuleSetJSON struct {
	Masters      []MasterJSON          `json:"masters"`
	ProductRules []ProductRuleJSON     `json:"product_rules,omitempty"`
	OrderRules   []OrderAmountRuleJSON `json:"order_rules,omitempty"`
	Products     []ProductJSON         `json:"products,omitempty"`
}

// MasterJSON represents a master rule.
type MasterJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Active   *bool  `json:"active,omitempty"` // Default true
	Priority int    `json:"priority,omitempty"`
}

// ProductRuleJSON represents a product or category rule. Exactly one of
// product_id / category_id must be set; it determines the rule's scope.
type ProductRuleJSON struct {
	ID            string `json:"id"`
	MasterID      string `json:"master_id"`
	ProductID     string `json:"product_id,omitempty"`
	CategoryID    string `json:"category_id,omitempty"`
	PointsPerUnit int64  `json:"points_per_unit,omitempty"`
	Percentage    bool   `json:"percentage,omitempty"`
	Multiplier    string `json:"multiplier,omitempty"` // Decimal string, e.g. "0.05"
	BonusPoints   int64  `json:"bonus_points,omitempty"`
}

// OrderAmountRuleJSON represents an order-total tier.
type OrderAmountRuleJSON struct {
	ID         string `json:"id"`
	MasterID   string `json:"master_id"`
	MinAmount  string `json:"min_amount"`           // Decimal string
	MaxAmount  string `json:"max_amount,omitempty"` // Decimal string, "" = open-ended
	Points     int64  `json:"points"`
	Percentage bool   `json:"percentage,omitempty"`
}

// ProductJSON represents a catalog product with its category.
type ProductJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}

// =============================================================================
// PARSED RESULT
// =============================================================================

// RuleSet is the parsed, validated form of a RuleSetJSON.
type RuleSet struct {
	Masters      []rewards.MasterRule
	ProductRules []rewards.ProductRule
	OrderRules   []rewards.OrderAmountRule
	Products     []rewards.Product
}

// RuleWriter persists parsed rules. Satisfied by *sqlite.Store.
type RuleWriter interface {
	SaveMasterRule(ctx context.Context, r rewards.MasterRule) error
	SaveProductRule(ctx context.Context, r rewards.ProductRule) error
	SaveOrderAmountRule(ctx context.Context, r rewards.OrderAmountRule) error
	SaveProduct(ctx context.Context, p rewards.Product) error
}

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON rule sets to Go structs.
type RuleFactory struct{}

// NewRuleFactory creates a new rule factory.
func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// ParseRuleSet parses a JSON string into a validated RuleSet.
func (f *RuleFactory) ParseRuleSet(jsonStr string) (*RuleSet, error) {
	var rj RuleSetJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("failed to parse rule set JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON converts RuleSetJSON to a RuleSet, validating cross-references.
func (f *RuleFactory) FromJSON(rj RuleSetJSON) (*RuleSet, error) {
	rs := &RuleSet{}

	masterIDs := make(map[string]bool, len(rj.Masters))
	for _, mj := range rj.Masters {
		if mj.ID == "" {
			return nil, fmt.Errorf("master rule missing id")
		}
		active := true
		if mj.Active != nil {
			active = *mj.Active
		}
		masterIDs[mj.ID] = true
		rs.Masters = append(rs.Masters, rewards.MasterRule{
			ID:       rewards.RuleID(mj.ID),
			Name:     mj.Name,
			Active:   active,
			Priority: mj.Priority,
		})
	}

	for _, pj := range rj.ProductRules {
		rule, err := parseProductRule(pj, masterIDs)
		if err != nil {
			return nil, err
		}
		rs.ProductRules = append(rs.ProductRules, rule)
	}

	for _, oj := range rj.OrderRules {
		rule, err := parseOrderAmountRule(oj, masterIDs)
		if err != nil {
			return nil, err
		}
		rs.OrderRules = append(rs.OrderRules, rule)
	}

	for _, prj := range rj.Products {
		if prj.ID == "" {
			return nil, fmt.Errorf("product missing id")
		}
		rs.Products = append(rs.Products, rewards.Product{
			ID:         rewards.ProductID(prj.ID),
			Name:       prj.Name,
			CategoryID: rewards.CategoryID(prj.CategoryID),
		})
	}

	return rs, nil
}

// Apply persists a rule set. Masters first so the foreign keys on the
// rule tables hold.
func (f *RuleFactory) Apply(ctx context.Context, w RuleWriter, rs *RuleSet) error {
	for _, m := range rs.Masters {
		if err := w.SaveMasterRule(ctx, m); err != nil {
			return fmt.Errorf("failed to save master rule %s: %w", m.ID, err)
		}
	}
	for _, p := range rs.Products {
		if err := w.SaveProduct(ctx, p); err != nil {
			return fmt.Errorf("failed to save product %s: %w", p.ID, err)
		}
	}
	for _, r := range rs.ProductRules {
		if err := w.SaveProductRule(ctx, r); err != nil {
			return fmt.Errorf("failed to save product rule %s: %w", r.ID, err)
		}
	}
	for _, r := range rs.OrderRules {
		if err := w.SaveOrderAmountRule(ctx, r); err != nil {
			return fmt.Errorf("failed to save order rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// ParseProductRule converts a single rule outside a full rule set. The
// master reference is checked by the database, not here.
func (f *RuleFactory) ParseProductRule(pj ProductRuleJSON) (rewards.ProductRule, error) {
	if pj.MasterID == "" {
		return rewards.ProductRule{}, fmt.Errorf("product rule %s missing master_id", pj.ID)
	}
	return parseProductRule(pj, map[string]bool{pj.MasterID: true})
}

// ParseOrderAmountRule converts a single tier outside a full rule set.
func (f *RuleFactory) ParseOrderAmountRule(oj OrderAmountRuleJSON) (rewards.OrderAmountRule, error) {
	if oj.MasterID == "" {
		return rewards.OrderAmountRule{}, fmt.Errorf("order rule %s missing master_id", oj.ID)
	}
	return parseOrderAmountRule(oj, map[string]bool{oj.MasterID: true})
}

// ToJSON converts a RuleSet back to its JSON representation.
func (f *RuleFactory) ToJSON(rs *RuleSet) RuleSetJSON {
	rj := RuleSetJSON{}

	for _, m := range rs.Masters {
		active := m.Active
		rj.Masters = append(rj.Masters, MasterJSON{
			ID:       string(m.ID),
			Name:     m.Name,
			Active:   &active,
			Priority: m.Priority,
		})
	}

	for _, r := range rs.ProductRules {
		pj := ProductRuleJSON{
			ID:            string(r.ID),
			MasterID:      string(r.MasterID),
			ProductID:     string(r.ProductID),
			CategoryID:    string(r.CategoryID),
			PointsPerUnit: r.PointsPerUnit,
			Percentage:    r.Percentage,
			BonusPoints:   r.BonusPoints,
		}
		if r.Percentage {
			pj.Multiplier = r.Multiplier.String()
		}
		rj.ProductRules = append(rj.ProductRules, pj)
	}

	for _, r := range rs.OrderRules {
		oj := OrderAmountRuleJSON{
			ID:         string(r.ID),
			MasterID:   string(r.MasterID),
			MinAmount:  r.MinAmount.String(),
			Points:     r.Points,
			Percentage: r.Percentage,
		}
		if r.MaxAmount != nil {
			oj.MaxAmount = r.MaxAmount.String()
		}
		rj.OrderRules = append(rj.OrderRules, oj)
	}

	for _, p := range rs.Products {
		rj.Products = append(rj.Products, ProductJSON{
			ID:         string(p.ID),
			Name:       p.Name,
			CategoryID: string(p.CategoryID),
		})
	}

	return rj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseProductRule(pj ProductRuleJSON, masters map[string]bool) (rewards.ProductRule, error) {
	var zero rewards.ProductRule

	if pj.ID == "" {
		return zero, fmt.Errorf("product rule missing id")
	}
	if !masters[pj.MasterID] {
		return zero, fmt.Errorf("product rule %s references unknown master %q", pj.ID, pj.MasterID)
	}

	rule := rewards.ProductRule{
		ID:            rewards.RuleID(pj.ID),
		MasterID:      rewards.RuleID(pj.MasterID),
		PointsPerUnit: pj.PointsPerUnit,
		Percentage:    pj.Percentage,
		BonusPoints:   pj.BonusPoints,
	}

	switch {
	case pj.ProductID != "" && pj.CategoryID != "":
		return zero, fmt.Errorf("product rule %s sets both product_id and category_id", pj.ID)
	case pj.ProductID != "":
		rule.Scope = rewards.ScopeProduct
		rule.ProductID = rewards.ProductID(pj.ProductID)
	case pj.CategoryID != "":
		rule.Scope = rewards.ScopeCategory
		rule.CategoryID = rewards.CategoryID(pj.CategoryID)
	default:
		return zero, fmt.Errorf("product rule %s sets neither product_id nor category_id", pj.ID)
	}

	if pj.Percentage {
		m, err := decimal.NewFromString(pj.Multiplier)
		if err != nil {
			return zero, fmt.Errorf("product rule %s has invalid multiplier %q: %w", pj.ID, pj.Multiplier, err)
		}
		rule.Multiplier = m
	}

	return rule, nil
}

func parseOrderAmountRule(oj OrderAmountRuleJSON, masters map[string]bool) (rewards.OrderAmountRule, error) {
	var zero rewards.OrderAmountRule

	if oj.ID == "" {
		return zero, fmt.Errorf("order rule missing id")
	}
	if !masters[oj.MasterID] {
		return zero, fmt.Errorf("order rule %s references unknown master %q", oj.ID, oj.MasterID)
	}

	min, err := decimal.NewFromString(oj.MinAmount)
	if err != nil {
		return zero, fmt.Errorf("order rule %s has invalid min_amount %q: %w", oj.ID, oj.MinAmount, err)
	}

	rule := rewards.OrderAmountRule{
		ID:         rewards.RuleID(oj.ID),
		MasterID:   rewards.RuleID(oj.MasterID),
		MinAmount:  min,
		Points:     oj.Points,
		Percentage: oj.Percentage,
	}

	if oj.MaxAmount != "" {
		max, err := decimal.NewFromString(oj.MaxAmount)
		if err != nil {
			return zero, fmt.Errorf("order rule %s has invalid max_amount %q: %w", oj.ID, oj.MaxAmount, err)
		}
		rule.MaxAmount = &max
	}

	return rule, nil
}
