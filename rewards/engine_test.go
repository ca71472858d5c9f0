package rewards_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reward-engine/rewards"
	"github.com/warp/reward-engine/rewards/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*rewards.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.PutMasterRule(rewards.MasterRule{ID: "master-1", Name: "Base rules", Active: true})
	engine := rewards.NewEngine(mem, mem, nil)
	engine.Now = func() time.Time { return testClock }
	return engine, mem
}

// =============================================================================
// AWARD FLOW
// =============================================================================

func TestEngine_Award_ProductAndOrderRules(t *testing.T) {
	// GIVEN: A 5% product rule and a fixed 50-point tier from 1000
	engine, mem := newTestEngine(t)
	mem.PutProductRule(rewards.ProductRule{
		ID: "rule-prod", MasterID: "master-1",
		Scope: rewards.ScopeProduct, ProductID: "prod-1",
		Percentage: true, Multiplier: decimal.NewFromFloat(0.05),
	})
	mem.PutOrderAmountRule(rewards.OrderAmountRule{
		ID: "tier-1000", MasterID: "master-1",
		MinAmount: decimal.NewFromInt(1000), Points: 50,
	})

	// WHEN: Awarding a 1200 order with two units at 600
	result, err := engine.Award(context.Background(), rewards.AwardInput{
		UserID:  "user-1",
		OrderID: "order-1",
		Amount:  decimal.NewFromInt(1200),
		Items: []rewards.OrderItem{
			{OrderItemID: "item-1", ProductID: "prod-1", Quantity: 2, Price: decimal.NewFromInt(600)},
		},
	})

	// THEN: floor(600*2*0.05)=60 line points + 50 tier bonus
	require.NoError(t, err)
	assert.Equal(t, int64(110), result.TotalPoints)
	assert.False(t, result.Fallback)
	require.Len(t, result.Details, 2)

	// AND: One earned entry holds the full total
	entries, err := mem.EntriesForUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(110), entries[0].Points)
	assert.Equal(t, rewards.OrderID("order-1"), entries[0].OrderID)
}

func TestEngine_Award_ExpiryOneYearOut(t *testing.T) {
	// GIVEN: Any award
	engine, mem := newTestEngine(t)

	// WHEN: Awarding (fallback path, no rules configured)
	_, err := engine.Award(context.Background(), rewards.AwardInput{
		UserID:  "user-1",
		OrderID: "order-1",
		Amount:  decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	// THEN: The entry expires exactly one year after earning
	entries, err := mem.EntriesForUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testClock, entries[0].EarnedAt)
	assert.Equal(t, testClock.Add(rewards.ExpiryWindow), entries[0].ExpiresAt)
}

func TestEngine_Award_DuplicateOrderRejected(t *testing.T) {
	// GIVEN: An order that has already been awarded
	engine, _ := newTestEngine(t)
	in := rewards.AwardInput{
		UserID:  "user-1",
		OrderID: "order-1",
		Amount:  decimal.NewFromInt(100),
	}
	_, err := engine.Award(context.Background(), in)
	require.NoError(t, err)

	// WHEN: Awarding the same order again
	_, err = engine.Award(context.Background(), in)

	// THEN: The second attempt is rejected
	require.ErrorIs(t, err, rewards.ErrDuplicateAward)

	// AND: Duplicate-award is a client error, not an internal one
	assert.True(t, rewards.IsClientError(err))
}

func TestEngine_Award_MissingRulesSkipLine(t *testing.T) {
	// GIVEN: A rule for one product only
	engine, mem := newTestEngine(t)
	mem.PutProductRule(rewards.ProductRule{
		ID: "rule-prod", MasterID: "master-1",
		Scope: rewards.ScopeProduct, ProductID: "prod-known",
		PointsPerUnit: 10,
	})

	// WHEN: Awarding an order mixing known and unknown products
	result, err := engine.Award(context.Background(), rewards.AwardInput{
		UserID:  "user-1",
		OrderID: "order-1",
		Amount:  decimal.NewFromInt(500),
		Items: []rewards.OrderItem{
			{OrderItemID: "item-1", ProductID: "prod-known", Quantity: 1, Price: decimal.NewFromInt(250)},
			{OrderItemID: "item-2", ProductID: "prod-unknown", Quantity: 1, Price: decimal.NewFromInt(250)},
		},
	})

	// THEN: The unknown line contributes nothing but does not fail the order
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.TotalPoints)
	require.Len(t, result.Details, 1)
	assert.Equal(t, rewards.OrderItemID("item-1"), result.Details[0].OrderItemID)
}

// =============================================================================
// FALLBACK AWARD
// =============================================================================

func TestEngine_Award_FallbackWhenNothingMatches(t *testing.T) {
	// GIVEN: No rules at all
	engine, _ := newTestEngine(t)

	// WHEN: Awarding a 120.00 order with 2 units
	result, err := engine.Award(context.Background(), rewards.AwardInput{
		UserID:  "user-1",
		OrderID: "order-1",
		Amount:  decimal.NewFromInt(120),
		Items: []rewards.OrderItem{
			{OrderItemID: "item-1", ProductID: "prod-1", Quantity: 2, Price: decimal.NewFromInt(60)},
		},
	})

	// THEN: floor(120*0.01)=1 order point + 5*2 per-unit points
	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.Equal(t, int64(11), result.TotalPoints)
	require.Len(t, result.Details, 2)
}

func TestEngine_Award_FallbackMinimumOnePoint(t *testing.T) {
	// GIVEN: No rules and a tiny order with no line items
	engine, _ := newTestEngine(t)

	// WHEN: Awarding a 0.50 order
	result, err := engine.Award(context.Background(), rewards.AwardInput{
		UserID:  "user-1",
		OrderID: "order-1",
		Amount:  decimal.RequireFromString("0.50"),
	})

	// THEN: The order still earns the guaranteed single point
	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.Equal(t, int64(1), result.TotalPoints)
}

func TestEngine_Award_NoFallbackWhenRulesEarned(t *testing.T) {
	// GIVEN: A rule that yields points
	engine, mem := newTestEngine(t)
	mem.PutProductRule(rewards.ProductRule{
		ID: "rule-prod", MasterID: "master-1",
		Scope: rewards.ScopeProduct, ProductID: "prod-1",
		PointsPerUnit: 1,
	})

	// WHEN: Awarding
	result, err := engine.Award(context.Background(), rewards.AwardInput{
		UserID:  "user-1",
		OrderID: "order-1",
		Amount:  decimal.NewFromInt(1000),
		Items: []rewards.OrderItem{
			{OrderItemID: "item-1", ProductID: "prod-1", Quantity: 1, Price: decimal.NewFromInt(1000)},
		},
	})

	// THEN: Rule points suppress the fallback entirely
	require.NoError(t, err)
	assert.False(t, result.Fallback)
	assert.Equal(t, int64(1), result.TotalPoints)
}

// =============================================================================
// END TO END: EARN THEN SPEND
// =============================================================================

func TestEngine_EarnThenRedeem(t *testing.T) {
	// GIVEN: Points earned across two orders
	engine, mem := newTestEngine(t)
	mem.PutProductRule(rewards.ProductRule{
		ID: "rule-prod", MasterID: "master-1",
		Scope: rewards.ScopeProduct, ProductID: "prod-1",
		PointsPerUnit: 25,
	})
	ledger := rewards.NewPointsLedger(mem, nil)
	ledger.Now = func() time.Time { return testClock }

	ctx := context.Background()
	for _, orderID := range []rewards.OrderID{"order-1", "order-2"} {
		_, err := engine.Award(ctx, rewards.AwardInput{
			UserID:  "user-1",
			OrderID: orderID,
			Amount:  decimal.NewFromInt(100),
			Items: []rewards.OrderItem{
				{OrderItemID: "item-1", ProductID: "prod-1", Quantity: 1, Price: decimal.NewFromInt(100)},
			},
		})
		require.NoError(t, err)
	}

	// WHEN: Spending 30 of the 50 earned points
	require.NoError(t, ledger.Redeem(ctx, "user-1", 30, "order-3"))

	// THEN: 20 remain
	balance, err := ledger.Available(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)
}
