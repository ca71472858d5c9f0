/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  data for testing and demos. Each scenario creates rules, products, and
  awarded orders that demonstrate specific engine features.

AVAILABLE SCENARIOS:
  product-launch:  Percentage rule with signup bonus + category fallback
  spend-tiers:     Order-total tiers, fixed and percentage
  gift-orders:     Orders with no matching rules hitting the fallback

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Load a rule set via the factory
 3. Award points for sample orders through the engine
 4. Optionally redeem some points

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "product-launch"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Shared handler context
  - factory/rules.go: Rule set JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/reward-engine/rewards"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "product-launch",
		Name:        "Product Launch",
		Description: "Percentage rule on a flagship product with a fixed category rule behind it",
	},
	{
		ID:          "spend-tiers",
		Name:        "Spend Tiers",
		Description: "Order-total tiers awarding fixed and percentage bonuses",
	},
	{
		ID:          "gift-orders",
		Name:        "Gift Orders",
		Description: "Orders matching no rules, awarded through the minimum-guarantee fallback",
	},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns all available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

// LoadScenario resets the database and loads a named scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "product-launch":
		err = h.loadProductLaunchScenario(ctx)
	case "spend-tiers":
		err = h.loadSpendTiersScenario(ctx)
	case "gift-orders":
		err = h.loadGiftOrdersScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Unknown scenario %q", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Log.WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": req.ScenarioID})
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadProductLaunchScenario(ctx context.Context) error {
	ruleSet := `{
		"masters": [
			{"id": "master-launch", "name": "Sneaker launch", "priority": 10},
			{"id": "master-apparel", "name": "Apparel base rate", "priority": 20}
		],
		"products": [
			{"id": "prod-sneaker", "name": "Flagship Sneaker", "category_id": "cat-shoes"},
			{"id": "prod-hoodie", "name": "Hoodie", "category_id": "cat-apparel"},
			{"id": "prod-socks", "name": "Socks", "category_id": "cat-apparel"}
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
				"master_id": "master-apparel",
				"category_id": "cat-apparel",
				"points_per_unit": 5
			}
		]
	}`
	if err := h.applyRuleSet(ctx, ruleSet); err != nil {
		return err
	}

	// One order hitting both the product rule and the category fallback
	_, err := h.Engine.Award(ctx, rewards.AwardInput{
		UserID:  "user-ana",
		OrderID: "order-launch-1",
		Amount:  decimal.NewFromInt(250),
		Items: []rewards.OrderItem{
			{OrderItemID: "item-1", ProductID: "prod-sneaker", Quantity: 1, Price: decimal.NewFromInt(200)},
			{OrderItemID: "item-2", ProductID: "prod-hoodie", Quantity: 2, Price: decimal.NewFromInt(25)},
		},
	})
	return err
}

func (h *Handler) loadSpendTiersScenario(ctx context.Context) error {
	ruleSet := `{
		"masters": [
			{"id": "master-tiers", "name": "Spend tiers"}
		],
		"order_rules": [
			{
				"id": "tier-500",
				"master_id": "master-tiers",
				"min_amount": "500",
				"points": 25
			},
			{
				"id": "tier-1000",
				"master_id": "master-tiers",
				"min_amount": "1000",
				"points": 5,
				"percentage": true
			}
		]
	}`
	if err := h.applyRuleSet(ctx, ruleSet); err != nil {
		return err
	}

	orders := []rewards.AwardInput{
		{
			UserID:  "user-bo",
			OrderID: "order-tier-1",
			Amount:  decimal.NewFromInt(600),
			Items: []rewards.OrderItem{
				{OrderItemID: "item-1", ProductID: "prod-misc", Quantity: 1, Price: decimal.NewFromInt(600)},
			},
		},
		{
			UserID:  "user-bo",
			OrderID: "order-tier-2",
			Amount:  decimal.NewFromInt(1500),
			Items: []rewards.OrderItem{
				{OrderItemID: "item-1", ProductID: "prod-misc", Quantity: 1, Price: decimal.NewFromInt(1500)},
			},
		},
	}
	for _, in := range orders {
		if _, err := h.Engine.Award(ctx, in); err != nil {
			return err
		}
	}

	// Spend part of the balance so the ledger shows a redemption
	return h.Ledger.Redeem(ctx, "user-bo", 30, "order-tier-3")
}

func (h *Handler) loadGiftOrdersScenario(ctx context.Context) error {
	// No rules at all: every order lands on the fallback award
	_, err := h.Engine.Award(ctx, rewards.AwardInput{
		UserID:  "user-cam",
		OrderID: "order-gift-1",
		Amount:  decimal.NewFromInt(120),
		Items: []rewards.OrderItem{
			{OrderItemID: "item-1", ProductID: "prod-giftcard", Quantity: 2, Price: decimal.NewFromInt(60)},
		},
	})
	return err
}

func (h *Handler) applyRuleSet(ctx context.Context, jsonStr string) error {
	rs, err := h.RuleFactory.ParseRuleSet(jsonStr)
	if err != nil {
		return err
	}
	return h.RuleFactory.Apply(ctx, h.Store, rs)
}
