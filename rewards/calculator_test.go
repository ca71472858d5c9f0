package rewards_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reward-engine/rewards"
)

// =============================================================================
// PRODUCT LINE MATH
// =============================================================================

func TestItemPoints_Percentage(t *testing.T) {
	// GIVEN: A 5% rule on a 100.00 item bought twice
	rule := rewards.ProductRule{
		Percentage: true,
		Multiplier: decimal.NewFromFloat(0.05),
	}
	item := rewards.OrderItem{Quantity: 2, Price: decimal.NewFromInt(100)}

	// THEN: floor(100 * 2 * 0.05) = 10
	assert.Equal(t, int64(10), rewards.ItemPoints(rule, item))
}

func TestItemPoints_PercentageFloorsTowardZero(t *testing.T) {
	// GIVEN: A 5% rule on a 19.99 item
	rule := rewards.ProductRule{
		Percentage: true,
		Multiplier: decimal.NewFromFloat(0.05),
	}
	item := rewards.OrderItem{Quantity: 1, Price: decimal.RequireFromString("19.99")}

	// THEN: floor(0.9995) = 0, never rounded up
	assert.Equal(t, int64(0), rewards.ItemPoints(rule, item))
}

func TestItemPoints_FixedWithBonus(t *testing.T) {
	// GIVEN: 5 points per unit plus a flat 2-point bonus
	rule := rewards.ProductRule{PointsPerUnit: 5, BonusPoints: 2}
	item := rewards.OrderItem{Quantity: 3, Price: decimal.NewFromInt(40)}

	// THEN: 5*3 + 2 = 17, the bonus applies once, not per unit
	assert.Equal(t, int64(17), rewards.ItemPoints(rule, item))
}

func TestItemPoints_BonusOnPercentageRule(t *testing.T) {
	// GIVEN: A percentage rule that also carries a flat bonus
	rule := rewards.ProductRule{
		Percentage:  true,
		Multiplier:  decimal.NewFromFloat(0.05),
		BonusPoints: 50,
	}
	item := rewards.OrderItem{Quantity: 1, Price: decimal.NewFromInt(200)}

	// THEN: floor(200 * 0.05) + 50 = 60
	assert.Equal(t, int64(60), rewards.ItemPoints(rule, item))
}

// =============================================================================
// ORDER TOTAL MATH
// =============================================================================

func TestOrderBonus_Fixed(t *testing.T) {
	rule := rewards.OrderAmountRule{Points: 50}
	assert.Equal(t, int64(50), rewards.OrderBonus(rule, decimal.NewFromInt(1500)))
}

func TestOrderBonus_Percentage(t *testing.T) {
	// GIVEN: 5% of the order total
	rule := rewards.OrderAmountRule{Points: 5, Percentage: true}

	// THEN: floor(1500 * 5 / 100) = 75
	assert.Equal(t, int64(75), rewards.OrderBonus(rule, decimal.NewFromInt(1500)))

	// AND: fractional results floor: floor(1010 * 5 / 100) = 50
	assert.Equal(t, int64(50), rewards.OrderBonus(rule, decimal.NewFromInt(1010)))
}

// =============================================================================
// BATCH CALCULATION
// =============================================================================

func TestProductCalculator_MixedLines(t *testing.T) {
	// GIVEN: One line with a rule, one without
	src := newRuleSource()
	src.PutProductRule(productRule("rule-1", "master-active", "prod-ruled", 4))

	calc := &rewards.ProductCalculator{Rules: src}
	items := []rewards.OrderItem{
		{OrderItemID: "item-1", ProductID: "prod-ruled", Quantity: 2, Price: decimal.NewFromInt(10)},
		{OrderItemID: "item-2", ProductID: "prod-bare", Quantity: 1, Price: decimal.NewFromInt(10)},
	}

	// WHEN: Calculating the batch
	result := calc.Calculate(context.Background(), items)

	// THEN: The ruled line earns, the bare line is skipped, nothing errors
	require.Len(t, result.Awards, 1)
	assert.Equal(t, rewards.OrderItemID("item-1"), result.Awards[0].OrderItemID)
	assert.Equal(t, int64(8), result.Awards[0].Points)
	assert.Len(t, result.Skipped, 1)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int64(8), result.TotalPoints())
}

func TestProductCalculator_ZeroPointLineSkipped(t *testing.T) {
	// GIVEN: A percentage rule that floors to zero on a cheap item
	src := newRuleSource()
	src.PutProductRule(rewards.ProductRule{
		ID: "rule-tiny", MasterID: "master-active",
		Scope: rewards.ScopeProduct, ProductID: "prod-cheap",
		Percentage: true, Multiplier: decimal.NewFromFloat(0.01),
	})

	calc := &rewards.ProductCalculator{Rules: src}
	items := []rewards.OrderItem{
		{OrderItemID: "item-1", ProductID: "prod-cheap", Quantity: 1, Price: decimal.NewFromInt(50)},
	}

	// WHEN: Calculating
	result := calc.Calculate(context.Background(), items)

	// THEN: A zero-point award is a skip, not an award
	assert.Empty(t, result.Awards)
	assert.Len(t, result.Skipped, 1)
}
