/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Awards:
    AwardOrderRequest, OrderItemRequest, AwardResultDTO, AwardDetailDTO

  Balance and ledger:
    BalanceDTO, LedgerEntryDTO

  Redemption:
    RedeemRequest, RedeemResponse

  Rules:
    MasterRuleDTO, ProductRuleDTO, OrderAmountRuleDTO
    (bulk upload reuses factory.RuleSetJSON)

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

MONEY:
  Amounts and prices travel as decimal strings ("1234.50"), never as
  floats. Points are plain integers.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rules.go: RuleSetJSON type
*/
package api

import (
	"github.com/warp/reward-engine/rewards"
)

// =============================================================================
// AWARD TYPES
// =============================================================================

// AwardOrderRequest is the request to award points for a paid order.
type AwardOrderRequest struct {
	UserID string             `json:"user_id"`
	Amount string             `json:"amount"` // Decimal string
	Items  []OrderItemRequest `json:"items"`
}

// OrderItemRequest is one order line in an award request.
type OrderItemRequest struct {
	OrderItemID string `json:"order_item_id"`
	ProductID   string `json:"product_id"`
	Quantity    int64  `json:"quantity"`
	Price       string `json:"price"` // Unit price, decimal string
}

// AwardResultDTO is the outcome of an award.
type AwardResultDTO struct {
	EntryID     int64            `json:"entry_id"`
	OrderID     string           `json:"order_id"`
	TotalPoints int64            `json:"total_points"`
	Fallback    bool             `json:"fallback"`
	Details     []AwardDetailDTO `json:"details"`
}

// AwardDetailDTO is one audit row of an award.
type AwardDetailDTO struct {
	OrderItemID string `json:"order_item_id,omitempty"`
	ProductID   string `json:"product_id,omitempty"`
	RuleID      string `json:"rule_id,omitempty"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

// =============================================================================
// BALANCE AND LEDGER TYPES
// =============================================================================

// BalanceDTO is a user's spendable point balance.
type BalanceDTO struct {
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
	AsOf   string `json:"as_of"`
}

// LedgerEntryDTO is one ledger row in API responses.
type LedgerEntryDTO struct {
	ID        int64            `json:"id"`
	OrderID   string           `json:"order_id,omitempty"`
	Points    int64            `json:"points"`
	EarnedAt  string           `json:"earned_at"`
	ExpiresAt string           `json:"expires_at"`
	Used      bool             `json:"used"`
	Expired   bool             `json:"expired"`
	Details   []AwardDetailDTO `json:"details,omitempty"`
}

// =============================================================================
// REDEMPTION TYPES
// =============================================================================

// RedeemRequest is the request to spend points.
type RedeemRequest struct {
	Points  int64  `json:"points"`
	OrderID string `json:"order_id,omitempty"`
}

// RedeemResponse reports the balance after a redemption.
type RedeemResponse struct {
	UserID    string `json:"user_id"`
	Redeemed  int64  `json:"redeemed"`
	Remaining int64  `json:"remaining"`
}

// =============================================================================
// RULE TYPES
// =============================================================================

// MasterRuleDTO represents a master rule in API responses.
type MasterRuleDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Priority int    `json:"priority"`
}

// ProductRuleDTO represents a product/category rule in API responses.
type ProductRuleDTO struct {
	ID            string `json:"id"`
	MasterID      string `json:"master_id"`
	Scope         string `json:"scope"`
	ProductID     string `json:"product_id,omitempty"`
	CategoryID    string `json:"category_id,omitempty"`
	PointsPerUnit int64  `json:"points_per_unit,omitempty"`
	Percentage    bool   `json:"percentage"`
	Multiplier    string `json:"multiplier,omitempty"`
	BonusPoints   int64  `json:"bonus_points,omitempty"`
}

// OrderAmountRuleDTO represents an order-total tier in API responses.
type OrderAmountRuleDTO struct {
	ID         string `json:"id"`
	MasterID   string `json:"master_id"`
	MinAmount  string `json:"min_amount"`
	MaxAmount  string `json:"max_amount,omitempty"`
	Points     int64  `json:"points"`
	Percentage bool   `json:"percentage"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toMasterRuleDTO(r rewards.MasterRule) MasterRuleDTO {
	return MasterRuleDTO{
		ID:       string(r.ID),
		Name:     r.Name,
		Active:   r.Active,
		Priority: r.Priority,
	}
}

func toProductRuleDTO(r rewards.ProductRule) ProductRuleDTO {
	dto := ProductRuleDTO{
		ID:            string(r.ID),
		MasterID:      string(r.MasterID),
		Scope:         string(r.Scope),
		ProductID:     string(r.ProductID),
		CategoryID:    string(r.CategoryID),
		PointsPerUnit: r.PointsPerUnit,
		Percentage:    r.Percentage,
		BonusPoints:   r.BonusPoints,
	}
	if r.Percentage {
		dto.Multiplier = r.Multiplier.String()
	}
	return dto
}

func toOrderAmountRuleDTO(r rewards.OrderAmountRule) OrderAmountRuleDTO {
	dto := OrderAmountRuleDTO{
		ID:         string(r.ID),
		MasterID:   string(r.MasterID),
		MinAmount:  r.MinAmount.String(),
		Points:     r.Points,
		Percentage: r.Percentage,
	}
	if r.MaxAmount != nil {
		dto.MaxAmount = r.MaxAmount.String()
	}
	return dto
}

func toDetailDTOs(details []rewards.Detail) []AwardDetailDTO {
	dtos := make([]AwardDetailDTO, len(details))
	for i, d := range details {
		dtos[i] = AwardDetailDTO{
			OrderItemID: string(d.OrderItemID),
			ProductID:   string(d.ProductID),
			RuleID:      string(d.RuleID),
			Points:      d.Points,
			Description: d.Description,
		}
	}
	return dtos
}
