package rewards_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reward-engine/rewards"
	"github.com/warp/reward-engine/rewards/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newRuleSource() *store.Memory {
	m := store.NewMemory()
	m.PutMasterRule(rewards.MasterRule{ID: "master-active", Name: "Active", Active: true})
	m.PutMasterRule(rewards.MasterRule{ID: "master-off", Name: "Switched off", Active: false})
	return m
}

func productRule(id, masterID string, productID rewards.ProductID, perUnit int64) rewards.ProductRule {
	return rewards.ProductRule{
		ID:            rewards.RuleID(id),
		MasterID:      rewards.RuleID(masterID),
		Scope:         rewards.ScopeProduct,
		ProductID:     productID,
		PointsPerUnit: perUnit,
	}
}

func categoryRule(id, masterID string, categoryID rewards.CategoryID, perUnit int64) rewards.ProductRule {
	return rewards.ProductRule{
		ID:            rewards.RuleID(id),
		MasterID:      rewards.RuleID(masterID),
		Scope:         rewards.ScopeCategory,
		CategoryID:    categoryID,
		PointsPerUnit: perUnit,
	}
}

// =============================================================================
// PRODUCT RULE RESOLUTION
// =============================================================================

func TestResolveProductRule_ProductSpecificWins(t *testing.T) {
	// GIVEN: A product with both a direct rule and a category rule
	src := newRuleSource()
	src.PutCategory("prod-1", "cat-1")
	src.PutProductRule(productRule("rule-direct", "master-active", "prod-1", 10))
	src.PutProductRule(categoryRule("rule-cat", "master-active", "cat-1", 3))

	// WHEN: Resolving the rule for the product
	rule, err := rewards.ResolveProductRule(context.Background(), src, "prod-1", nil)

	// THEN: The product-keyed rule wins
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, rewards.RuleID("rule-direct"), rule.ID)
}

func TestResolveProductRule_CategoryFallback(t *testing.T) {
	// GIVEN: A product with no direct rule but a rule on its category
	src := newRuleSource()
	src.PutCategory("prod-1", "cat-1")
	src.PutProductRule(categoryRule("rule-cat", "master-active", "cat-1", 3))

	// WHEN: Resolving the rule for the product
	rule, err := rewards.ResolveProductRule(context.Background(), src, "prod-1", nil)

	// THEN: The category rule applies
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, rewards.RuleID("rule-cat"), rule.ID)
}

func TestResolveProductRule_InactiveMasterFallsThrough(t *testing.T) {
	// GIVEN: The direct rule's master is switched off, the category rule's is on
	src := newRuleSource()
	src.PutCategory("prod-1", "cat-1")
	src.PutProductRule(productRule("rule-direct", "master-off", "prod-1", 10))
	src.PutProductRule(categoryRule("rule-cat", "master-active", "cat-1", 3))

	// WHEN: Resolving the rule for the product
	rule, err := rewards.ResolveProductRule(context.Background(), src, "prod-1", nil)

	// THEN: Resolution skips the deactivated rule and lands on the category
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, rewards.RuleID("rule-cat"), rule.ID)
}

func TestResolveProductRule_NoRule(t *testing.T) {
	// GIVEN: A product with no rules and no category
	src := newRuleSource()

	// WHEN: Resolving the rule
	rule, err := rewards.ResolveProductRule(context.Background(), src, "prod-unknown", nil)

	// THEN: No rule, no error
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestResolveProductRule_AllMastersInactive(t *testing.T) {
	// GIVEN: Every candidate rule belongs to a deactivated master
	src := newRuleSource()
	src.PutCategory("prod-1", "cat-1")
	src.PutProductRule(productRule("rule-direct", "master-off", "prod-1", 10))
	src.PutProductRule(categoryRule("rule-cat", "master-off", "cat-1", 3))

	// WHEN: Resolving the rule
	rule, err := rewards.ResolveProductRule(context.Background(), src, "prod-1", nil)

	// THEN: Nothing applies
	require.NoError(t, err)
	assert.Nil(t, rule)
}

// =============================================================================
// ORDER RULE RESOLUTION
// =============================================================================

func TestResolveOrderRule_HighestMatchingTier(t *testing.T) {
	// GIVEN: Two overlapping tiers at 500 and 1000
	src := newRuleSource()
	src.PutOrderAmountRule(rewards.OrderAmountRule{
		ID: "tier-500", MasterID: "master-active",
		MinAmount: decimal.NewFromInt(500), Points: 25,
	})
	src.PutOrderAmountRule(rewards.OrderAmountRule{
		ID: "tier-1000", MasterID: "master-active",
		MinAmount: decimal.NewFromInt(1000), Points: 100,
	})

	// WHEN: Resolving for a 1500 order
	rule, err := rewards.ResolveOrderRule(context.Background(), src, decimal.NewFromInt(1500))

	// THEN: The highest matching tier wins
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, rewards.RuleID("tier-1000"), rule.ID)
}

func TestResolveOrderRule_BelowAllTiers(t *testing.T) {
	// GIVEN: A single tier starting at 1000
	src := newRuleSource()
	src.PutOrderAmountRule(rewards.OrderAmountRule{
		ID: "tier-1000", MasterID: "master-active",
		MinAmount: decimal.NewFromInt(1000), Points: 100,
	})

	// WHEN: Resolving for a 900 order
	rule, err := rewards.ResolveOrderRule(context.Background(), src, decimal.NewFromInt(900))

	// THEN: No tier matches
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestResolveOrderRule_MaxAmountBounds(t *testing.T) {
	// GIVEN: A bounded tier 500..1000 and an open tier from 1000
	max := decimal.NewFromInt(1000)
	src := newRuleSource()
	src.PutOrderAmountRule(rewards.OrderAmountRule{
		ID: "tier-mid", MasterID: "master-active",
		MinAmount: decimal.NewFromInt(500), MaxAmount: &max, Points: 25,
	})
	src.PutOrderAmountRule(rewards.OrderAmountRule{
		ID: "tier-top", MasterID: "master-active",
		MinAmount: decimal.NewFromInt(1000), Points: 100,
	})

	// WHEN: Resolving above the bounded tier's cap
	rule, err := rewards.ResolveOrderRule(context.Background(), src, decimal.NewFromInt(2000))

	// THEN: Only the open tier matches
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, rewards.RuleID("tier-top"), rule.ID)
}

func TestResolveOrderRule_InactiveMasterExcluded(t *testing.T) {
	// GIVEN: The only matching tier belongs to a deactivated master
	src := newRuleSource()
	src.PutOrderAmountRule(rewards.OrderAmountRule{
		ID: "tier-off", MasterID: "master-off",
		MinAmount: decimal.NewFromInt(100), Points: 50,
	})

	// WHEN: Resolving for a qualifying order
	rule, err := rewards.ResolveOrderRule(context.Background(), src, decimal.NewFromInt(500))

	// THEN: The deactivated tier does not apply
	require.NoError(t, err)
	assert.Nil(t, rule)
}
