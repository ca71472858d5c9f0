/*
Package rewards provides the reward-points engine for an e-commerce
order workflow.

PURPOSE:
  This package contains the domain types and algorithms for awarding
  loyalty points when an order is paid and for spending them later at
  checkout. Awards are driven by configurable rules; spending walks an
  earn/redeem ledger oldest-first so that points expire fairly.

KEY CONCEPTS IN THIS FILE (types.go):
  - MasterRule: Activation switch shared by a family of rules
  - ProductRule: Per-product or per-category award rule
  - OrderAmountRule: Tiered bonus keyed on the order total
  - LedgerEntry: A single earn or redeem record for a user
  - Detail: An audit row explaining part of an entry's point total
  - OrderItem: One line of a paid order (input to the engine)

DESIGN PRINCIPLES:
  1. Precision: Monetary values use decimal.Decimal, never float64
  2. Whole points: All fractional math floors toward zero
  3. Type Safety: Strong typing for IDs prevents mixing user/order/rule IDs
  4. Auditability: Every ledger entry carries detail rows deriving its total

USAGE:
  item := rewards.OrderItem{
      OrderItemID: "oi-1",
      ProductID:   "prod-42",
      Quantity:    2,
      Price:       decimal.NewFromInt(100),
  }
  engine := rewards.NewEngine(ruleStore, ledgerStore, log)
  result, err := engine.Award(ctx, rewards.AwardInput{
      UserID:  "user-7",
      OrderID: "order-9",
      Amount:  decimal.NewFromInt(200),
      Items:   []rewards.OrderItem{item},
  })

SEE ALSO:
  - rules.go: Rule resolution strategies
  - calculator.go: Per-item and order-total point math
  - engine.go: Orchestration, fallback policy, persistence
  - ledger.go: Balance calculation and FIFO redemption
*/
package rewards

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type OrderID string
type OrderItemID string
type ProductID string
type CategoryID string
type RuleID string

// EntryID is the ledger row key. Assigned by the store (auto-increment).
type EntryID int64

// =============================================================================
// RULES
// =============================================================================

// MasterRule is the activation switch for a family of award rules.
// A ProductRule or OrderAmountRule is usable only while its master is active.
type MasterRule struct {
	ID       RuleID
	Name     string
	Active   bool
	Priority int
}

// RuleScope distinguishes how a ProductRule is keyed.
// Exactly one of ProductID/CategoryID is meaningful per rule.
type RuleScope string

const (
	ScopeProduct  RuleScope = "product"
	ScopeCategory RuleScope = "category"
)

// ProductRule awards points for a single order line.
//
// When Percentage is true, points = floor(price * quantity * Multiplier).
// Otherwise points = PointsPerUnit * quantity.
// BonusPoints is a flat add-on, applied once per line regardless of quantity.
type ProductRule struct {
	ID            RuleID
	MasterID      RuleID
	Scope         RuleScope
	ProductID     ProductID  // set when Scope == ScopeProduct
	CategoryID    CategoryID // set when Scope == ScopeCategory
	PointsPerUnit int64
	Percentage    bool
	Multiplier    decimal.Decimal // fraction of line price, e.g. 0.05
	BonusPoints   int64
}

// OrderAmountRule awards a bonus keyed on the order total.
//
// Ranges may overlap; resolution picks the rule with the highest MinAmount
// that still satisfies MinAmount <= total <= MaxAmount (nil = unbounded).
// When Percentage is true, bonus = floor(total * Points / 100).
// Otherwise bonus = Points, fixed.
type OrderAmountRule struct {
	ID         RuleID
	MasterID   RuleID
	MinAmount  decimal.Decimal
	MaxAmount  *decimal.Decimal
	Points     int64
	Percentage bool
}

// Matches reports whether total falls inside this rule's range.
func (r OrderAmountRule) Matches(total decimal.Decimal) bool {
	if total.LessThan(r.MinAmount) {
		return false
	}
	if r.MaxAmount != nil && total.GreaterThan(*r.MaxAmount) {
		return false
	}
	return true
}

// =============================================================================
// CATALOG
// =============================================================================

// Product is the slice of the catalog the engine needs: the product's
// identity and its category, used for category-rule fallback.
type Product struct {
	ID         ProductID
	Name       string
	CategoryID CategoryID
}

// =============================================================================
// ORDER INPUT
// =============================================================================

// OrderItem is one line of a paid order.
type OrderItem struct {
	OrderItemID OrderItemID
	ProductID   ProductID
	Quantity    int64
	Price       decimal.Decimal // unit price
}

// =============================================================================
// LEDGER
// =============================================================================

// LedgerEntry is a single earn or redeem record of reward points.
//
// Points is signed: positive = earned, negative = redeemed.
// Earned entries expire one year after they are written; redemption
// entries carry ExpiresAt == EarnedAt and Used == true.
//
// Entries are never deleted. An earned entry is either marked Used once
// fully consumed, or has Points decremented in place when partially
// consumed during FIFO redemption. Detail rows are immutable.
type LedgerEntry struct {
	ID        EntryID
	UserID    UserID
	OrderID   OrderID // empty when not tied to an order
	Points    int64
	EarnedAt  time.Time
	ExpiresAt time.Time
	Used      bool
}

// Expired reports whether the entry can no longer be spent as of asOf.
func (e LedgerEntry) Expired(asOf time.Time) bool {
	return !e.ExpiresAt.After(asOf)
}

// Spendable reports whether the entry still contributes to the user's
// available balance as of asOf.
func (e LedgerEntry) Spendable(asOf time.Time) bool {
	return e.Points > 0 && !e.Used && !e.Expired(asOf)
}

// Detail is an audit row explaining how part of a ledger entry's point
// total was derived. One entry has many details; details reference the
// order line, product, and rule that produced them where applicable.
type Detail struct {
	ID          int64
	EntryID     EntryID
	OrderItemID OrderItemID // empty for order-level awards
	ProductID   ProductID   // empty for order-level awards
	RuleID      RuleID      // empty for fallback awards
	Points      int64
	Description string
}
