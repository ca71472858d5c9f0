package rewards_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reward-engine/rewards"
	"github.com/warp/reward-engine/rewards/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testClock = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*rewards.PointsLedger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	ledger := rewards.NewPointsLedger(mem, nil)
	ledger.Now = func() time.Time { return testClock }
	return ledger, mem
}

func earn(t *testing.T, mem *store.Memory, userID rewards.UserID, orderID rewards.OrderID, points int64, earnedAt time.Time) rewards.EntryID {
	t.Helper()
	id, err := mem.AppendEntry(context.Background(), rewards.LedgerEntry{
		UserID:    userID,
		OrderID:   orderID,
		Points:    points,
		EarnedAt:  earnedAt,
		ExpiresAt: earnedAt.Add(rewards.ExpiryWindow),
	}, nil)
	require.NoError(t, err)
	return id
}

// =============================================================================
// BALANCE CALCULATION
// =============================================================================

func TestAvailablePoints_ExcludesUsedAndExpired(t *testing.T) {
	now := testClock
	entries := []rewards.LedgerEntry{
		{Points: 100, EarnedAt: now.AddDate(0, -1, 0), ExpiresAt: now.AddDate(0, 11, 0)},
		{Points: 40, EarnedAt: now.AddDate(-2, 0, 0), ExpiresAt: now.AddDate(-1, 0, 0)},             // expired
		{Points: 60, EarnedAt: now.AddDate(0, -2, 0), ExpiresAt: now.AddDate(0, 10, 0), Used: true}, // consumed
	}

	assert.Equal(t, int64(100), rewards.AvailablePoints(entries, now))
}

func TestAvailablePoints_EntryExpiringNowExcluded(t *testing.T) {
	// An entry whose expiry equals the query instant is already expired
	now := testClock
	entries := []rewards.LedgerEntry{
		{Points: 100, EarnedAt: now.AddDate(-1, 0, 0), ExpiresAt: now},
	}

	assert.Equal(t, int64(0), rewards.AvailablePoints(entries, now))
}

func TestAvailablePoints_ImportedNegativeAdjustmentCounts(t *testing.T) {
	// Negative rows written outside this ledger (Used=false) reduce the
	// balance; the ledger's own redemption rows (Used=true) do not,
	// because their points were already removed from earned entries.
	now := testClock
	entries := []rewards.LedgerEntry{
		{Points: 100, EarnedAt: now.AddDate(0, -1, 0), ExpiresAt: now.AddDate(0, 11, 0)},
		{Points: -30, EarnedAt: now, ExpiresAt: now},             // imported adjustment
		{Points: -20, EarnedAt: now, ExpiresAt: now, Used: true}, // own redemption audit row
	}

	assert.Equal(t, int64(70), rewards.AvailablePoints(entries, now))
}

func TestAvailablePoints_FlooredAtZero(t *testing.T) {
	now := testClock
	entries := []rewards.LedgerEntry{
		{Points: 10, EarnedAt: now.AddDate(0, -1, 0), ExpiresAt: now.AddDate(0, 11, 0)},
		{Points: -50, EarnedAt: now, ExpiresAt: now},
	}

	assert.Equal(t, int64(0), rewards.AvailablePoints(entries, now))
}

// =============================================================================
// FIFO REDEMPTION
// =============================================================================

func TestRedeem_ConsumesOldestFirst(t *testing.T) {
	// GIVEN: Two earned entries, 10 points then 20 points
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	first := earn(t, mem, "user-1", "order-1", 10, testClock.AddDate(0, -2, 0))
	second := earn(t, mem, "user-1", "order-2", 20, testClock.AddDate(0, -1, 0))

	// WHEN: Redeeming 25 points
	err := ledger.Redeem(ctx, "user-1", 25, "")
	require.NoError(t, err)

	// THEN: The oldest entry is fully consumed, the newer one drops to 5
	entries, err := mem.EntriesForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		switch e.ID {
		case first:
			assert.True(t, e.Used)
			assert.Equal(t, int64(10), e.Points)
		case second:
			assert.False(t, e.Used)
			assert.Equal(t, int64(5), e.Points)
		}
	}

	// AND: The balance reflects the remainder
	balance, err := ledger.Available(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}

func TestRedeem_ExactBoundaryConsumesWholeEntry(t *testing.T) {
	// GIVEN: A single 10-point entry
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	id := earn(t, mem, "user-1", "order-1", 10, testClock.AddDate(0, -1, 0))

	// WHEN: Redeeming exactly 10
	require.NoError(t, ledger.Redeem(ctx, "user-1", 10, ""))

	// THEN: The entry is marked used, not reduced to zero
	entries, err := mem.EntriesForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.True(t, entries[0].Used)
	assert.Equal(t, int64(10), entries[0].Points)
}

func TestRedeem_InsufficientBalance(t *testing.T) {
	// GIVEN: 10 available points
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	earn(t, mem, "user-1", "order-1", 10, testClock.AddDate(0, -1, 0))

	// WHEN: Requesting 11
	err := ledger.Redeem(ctx, "user-1", 11, "")

	// THEN: The redemption fails whole, nothing is consumed
	var insufficient *rewards.InsufficientPointsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(10), insufficient.Available)
	assert.Equal(t, int64(11), insufficient.Requested)

	balance, err := ledger.Available(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestRedeem_ExpiredPointsNotSpendable(t *testing.T) {
	// GIVEN: An expired entry and a live one
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	earn(t, mem, "user-1", "order-old", 100, testClock.AddDate(-2, 0, 0)) // expired long ago
	earn(t, mem, "user-1", "order-new", 30, testClock.AddDate(0, -1, 0))

	// WHEN: Redeeming more than the live entry holds
	err := ledger.Redeem(ctx, "user-1", 50, "")

	// THEN: Expired points cannot cover the request
	var insufficient *rewards.InsufficientPointsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(30), insufficient.Available)
}

func TestRedeem_WithOrderWritesAuditRow(t *testing.T) {
	// GIVEN: A user with 40 points
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	earn(t, mem, "user-1", "order-1", 40, testClock.AddDate(0, -1, 0))

	// WHEN: Redeeming 15 against a checkout order
	require.NoError(t, ledger.Redeem(ctx, "user-1", 15, "order-checkout"))

	// THEN: A negative, already-used entry records the redemption
	entries, err := mem.EntriesForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var audit *rewards.LedgerEntry
	for i := range entries {
		if entries[i].Points < 0 {
			audit = &entries[i]
		}
	}
	require.NotNil(t, audit)
	assert.Equal(t, int64(-15), audit.Points)
	assert.True(t, audit.Used)
	assert.Equal(t, rewards.OrderID("order-checkout"), audit.OrderID)

	details, err := mem.DetailsForEntry(ctx, audit.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Contains(t, details[0].Description, "Redeemed 15 points")

	// AND: The audit row does not double-subtract
	balance, err := ledger.Available(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)
}

func TestRedeem_NonPositiveRequestRejected(t *testing.T) {
	ledger, _ := newTestLedger(t)

	assert.True(t, errors.Is(ledger.Redeem(context.Background(), "user-1", 0, ""), rewards.ErrNothingToRedeem))
	assert.True(t, errors.Is(ledger.Redeem(context.Background(), "user-1", -5, ""), rewards.ErrNothingToRedeem))
}

// Conservation: earned == still available + consumed, at every step.
func TestRedeem_Conservation(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	earn(t, mem, "user-1", "order-1", 10, testClock.AddDate(0, -3, 0))
	earn(t, mem, "user-1", "order-2", 20, testClock.AddDate(0, -2, 0))
	earn(t, mem, "user-1", "order-3", 30, testClock.AddDate(0, -1, 0))

	var spent int64
	for _, step := range []int64{5, 25, 10} {
		require.NoError(t, ledger.Redeem(ctx, "user-1", step, ""))
		spent += step

		balance, err := ledger.Available(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(60)-spent, balance)
	}
}
