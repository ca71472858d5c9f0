/*
handlers.go - HTTP API handlers for the reward points system

PURPOSE:
  Exposes the reward engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Awards:
    POST   /api/orders/{id}/award       Award points for a paid order

  Users:
    GET    /api/users/{id}/points       Spendable balance
    GET    /api/users/{id}/ledger       Full earn/redeem history
    POST   /api/users/{id}/redeem       Spend points

  Rules:
    GET    /api/rules                   List master rules
    POST   /api/rules                   Create/update master rule
    POST   /api/rules/{id}/activate     Switch a rule family on
    POST   /api/rules/{id}/deactivate   Switch a rule family off
    GET    /api/rules/products          List product/category rules
    POST   /api/rules/products          Create/update product rule
    DELETE /api/rules/products/{id}     Delete product rule
    GET    /api/rules/orders            List order-total tiers
    POST   /api/rules/orders            Create/update tier
    DELETE /api/rules/orders/{id}       Delete tier
    POST   /api/rules/upload            Bulk-load a rule set (JSON)

  Catalog:
    POST   /api/products                Register product -> category

  Scenarios:
    GET    /api/scenarios               List demo scenarios
    POST   /api/scenarios/load          Load a demo scenario
    POST   /api/scenarios/reset         Clear the database

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, insufficient points
  - 404: Resource not found
  - 409: Conflict (order already awarded)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/reward-engine/factory"
	"github.com/warp/reward-engine/rewards"
	"github.com/warp/reward-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Engine      *rewards.Engine
	Ledger      *rewards.PointsLedger
	RuleFactory *factory.RuleFactory
	Log         *logrus.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{
		Store:       store,
		Engine:      rewards.NewEngine(store, store, log),
		Ledger:      rewards.NewPointsLedger(store, log),
		RuleFactory: factory.NewRuleFactory(),
		Log:         log,
	}
}

// =============================================================================
// AWARD HANDLERS
// =============================================================================

// AwardOrder awards points for a paid order.
// POST /api/orders/{id}/award
func (h *Handler) AwardOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req AwardOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	in := rewards.AwardInput{
		UserID:  rewards.UserID(req.UserID),
		OrderID: rewards.OrderID(orderID),
		Amount:  amount,
	}
	for _, item := range req.Items {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid price on item %s", item.OrderItemID), err)
			return
		}
		if item.Quantity <= 0 {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid quantity on item %s", item.OrderItemID), nil)
			return
		}
		in.Items = append(in.Items, rewards.OrderItem{
			OrderItemID: rewards.OrderItemID(item.OrderItemID),
			ProductID:   rewards.ProductID(item.ProductID),
			Quantity:    item.Quantity,
			Price:       price,
		})
	}

	result, err := h.Engine.Award(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to award points", err)
		return
	}

	writeJSON(w, http.StatusCreated, AwardResultDTO{
		EntryID:     int64(result.EntryID),
		OrderID:     orderID,
		TotalPoints: result.TotalPoints,
		Fallback:    result.Fallback,
		Details:     toDetailDTOs(result.Details),
	})
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// GetPoints returns a user's spendable balance.
// GET /api/users/{id}/points
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	userID := rewards.UserID(chi.URLParam(r, "id"))

	points, err := h.Ledger.Available(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID: string(userID),
		Points: points,
		AsOf:   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetLedger returns a user's full earn/redeem history.
// GET /api/users/{id}/ledger
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := rewards.UserID(chi.URLParam(r, "id"))

	entries, err := h.Store.EntriesForUser(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}

	now := time.Now().UTC()
	dtos := make([]LedgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		dto := LedgerEntryDTO{
			ID:        int64(e.ID),
			OrderID:   string(e.OrderID),
			Points:    e.Points,
			EarnedAt:  e.EarnedAt.UTC().Format(time.RFC3339),
			ExpiresAt: e.ExpiresAt.UTC().Format(time.RFC3339),
			Used:      e.Used,
			Expired:   e.Expired(now),
		}
		details, err := h.Store.DetailsForEntry(ctx, e.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load ledger details", err)
			return
		}
		dto.Details = toDetailDTOs(details)
		dtos = append(dtos, dto)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// RedeemPoints spends points from a user's balance.
// POST /api/users/{id}/redeem
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := rewards.UserID(chi.URLParam(r, "id"))

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Ledger.Redeem(ctx, userID, req.Points, rewards.OrderID(req.OrderID)); err != nil {
		writeDomainError(w, "Failed to redeem points", err)
		return
	}

	remaining, err := h.Ledger.Available(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, RedeemResponse{
		UserID:    string(userID),
		Redeemed:  req.Points,
		Remaining: remaining,
	})
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// ListMasterRules returns all master rules.
// GET /api/rules
func (h *Handler) ListMasterRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.ListMasterRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}

	dtos := make([]MasterRuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toMasterRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveMasterRule creates or updates a master rule.
// POST /api/rules
func (h *Handler) SaveMasterRule(w http.ResponseWriter, r *http.Request) {
	var dto MasterRuleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if dto.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	rule := rewards.MasterRule{
		ID:       rewards.RuleID(dto.ID),
		Name:     dto.Name,
		Active:   dto.Active,
		Priority: dto.Priority,
	}
	if err := h.Store.SaveMasterRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMasterRuleDTO(rule))
}

// SetRuleActive flips a master rule's activation flag.
// POST /api/rules/{id}/activate and /api/rules/{id}/deactivate
func (h *Handler) SetRuleActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := rewards.RuleID(chi.URLParam(r, "id"))

		if err := h.Store.SetRuleActive(r.Context(), id, active); err != nil {
			writeDomainError(w, "Failed to update rule", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": string(id), "active": active})
	}
}

// ListProductRules returns all product/category rules.
// GET /api/rules/products
func (h *Handler) ListProductRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.ListProductRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list product rules", err)
		return
	}

	dtos := make([]ProductRuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toProductRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveProductRule creates or updates a product/category rule.
// POST /api/rules/products
func (h *Handler) SaveProductRule(w http.ResponseWriter, r *http.Request) {
	var dto ProductRuleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Route through the factory so scope derivation and multiplier
	// parsing stay in one place.
	rule, err := h.RuleFactory.ParseProductRule(factory.ProductRuleJSON{
		ID:            dto.ID,
		MasterID:      dto.MasterID,
		ProductID:     dto.ProductID,
		CategoryID:    dto.CategoryID,
		PointsPerUnit: dto.PointsPerUnit,
		Percentage:    dto.Percentage,
		Multiplier:    dto.Multiplier,
		BonusPoints:   dto.BonusPoints,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product rule", err)
		return
	}

	if err := h.Store.SaveProductRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save product rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductRuleDTO(rule))
}

// DeleteProductRule removes a product/category rule.
// DELETE /api/rules/products/{id}
func (h *Handler) DeleteProductRule(w http.ResponseWriter, r *http.Request) {
	id := rewards.RuleID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteProductRule(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete product rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOrderAmountRules returns all order-total tiers.
// GET /api/rules/orders
func (h *Handler) ListOrderAmountRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.OrderAmountRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list order rules", err)
		return
	}

	dtos := make([]OrderAmountRuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toOrderAmountRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveOrderAmountRule creates or updates an order-total tier.
// POST /api/rules/orders
func (h *Handler) SaveOrderAmountRule(w http.ResponseWriter, r *http.Request) {
	var dto OrderAmountRuleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rule, err := h.RuleFactory.ParseOrderAmountRule(factory.OrderAmountRuleJSON{
		ID:         dto.ID,
		MasterID:   dto.MasterID,
		MinAmount:  dto.MinAmount,
		MaxAmount:  dto.MaxAmount,
		Points:     dto.Points,
		Percentage: dto.Percentage,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order rule", err)
		return
	}

	if err := h.Store.SaveOrderAmountRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save order rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderAmountRuleDTO(rule))
}

// DeleteOrderAmountRule removes an order-total tier.
// DELETE /api/rules/orders/{id}
func (h *Handler) DeleteOrderAmountRule(w http.ResponseWriter, r *http.Request) {
	id := rewards.RuleID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteOrderAmountRule(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete order rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadRuleSet bulk-loads a full rule configuration from JSON.
// POST /api/rules/upload
func (h *Handler) UploadRuleSet(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	ruleSet, err := h.RuleFactory.ParseRuleSet(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule set", err)
		return
	}

	if err := h.RuleFactory.Apply(r.Context(), h.Store, ruleSet); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to apply rule set", err)
		return
	}

	h.Log.WithFields(logrus.Fields{
		"masters":       len(ruleSet.Masters),
		"product_rules": len(ruleSet.ProductRules),
		"order_rules":   len(ruleSet.OrderRules),
	}).Info("rule set uploaded")

	writeJSON(w, http.StatusCreated, map[string]any{
		"masters":       len(ruleSet.Masters),
		"product_rules": len(ruleSet.ProductRules),
		"order_rules":   len(ruleSet.OrderRules),
		"products":      len(ruleSet.Products),
	})
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// SaveProduct registers a product's category mapping.
// POST /api/products
func (h *Handler) SaveProduct(w http.ResponseWriter, r *http.Request) {
	var dto struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		CategoryID string `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if dto.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	p := rewards.Product{
		ID:         rewards.ProductID(dto.ID),
		Name:       dto.Name,
		CategoryID: rewards.CategoryID(dto.CategoryID),
	}
	if err := h.Store.SaveProduct(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save product", err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, rewards.ErrDuplicateAward):
		writeError(w, http.StatusConflict, message, err)
	case rewards.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case rewards.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
