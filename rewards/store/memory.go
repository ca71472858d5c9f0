// Package store provides in-memory implementations of the rewards
// storage interfaces, for testing and dev mode.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/reward-engine/rewards"
)

// =============================================================================
// MEMORY STORE - In-memory RuleSource + LedgerStore (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	masters       map[rewards.RuleID]rewards.MasterRule
	productRules  map[rewards.ProductID]rewards.ProductRule
	categoryRules map[rewards.CategoryID]rewards.ProductRule
	categories    map[rewards.ProductID]rewards.CategoryID
	orderRules    []rewards.OrderAmountRule

	nextEntryID  rewards.EntryID
	nextDetailID int64
	entries      []rewards.LedgerEntry
	details      map[rewards.EntryID][]rewards.Detail
}

func NewMemory() *Memory {
	return &Memory{
		masters:       make(map[rewards.RuleID]rewards.MasterRule),
		productRules:  make(map[rewards.ProductID]rewards.ProductRule),
		categoryRules: make(map[rewards.CategoryID]rewards.ProductRule),
		categories:    make(map[rewards.ProductID]rewards.CategoryID),
		details:       make(map[rewards.EntryID][]rewards.Detail),
	}
}

// =============================================================================
// RULE SETUP (test/dev helpers, not part of RuleSource)
// =============================================================================

func (m *Memory) PutMasterRule(r rewards.MasterRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masters[r.ID] = r
}

func (m *Memory) PutProductRule(r rewards.ProductRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch r.Scope {
	case rewards.ScopeProduct:
		m.productRules[r.ProductID] = r
	case rewards.ScopeCategory:
		m.categoryRules[r.CategoryID] = r
	}
}

func (m *Memory) PutOrderAmountRule(r rewards.OrderAmountRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderRules = append(m.orderRules, r)
}

func (m *Memory) PutCategory(productID rewards.ProductID, categoryID rewards.CategoryID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[productID] = categoryID
}

// =============================================================================
// RULE SOURCE
// =============================================================================

func (m *Memory) ProductRuleFor(_ context.Context, productID rewards.ProductID) (*rewards.ProductRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.productRules[productID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *Memory) CategoryRuleFor(_ context.Context, categoryID rewards.CategoryID) (*rewards.ProductRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.categoryRules[categoryID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *Memory) CategoryOf(_ context.Context, productID rewards.ProductID) (rewards.CategoryID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.categories[productID], nil
}

func (m *Memory) OrderAmountRules(_ context.Context) ([]rewards.OrderAmountRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]rewards.OrderAmountRule, len(m.orderRules))
	copy(out, m.orderRules)
	return out, nil
}

func (m *Memory) IsRuleActive(_ context.Context, masterID rewards.RuleID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	master, ok := m.masters[masterID]
	return ok && master.Active, nil
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (m *Memory) AppendEntry(_ context.Context, entry rewards.LedgerEntry, details []rewards.Detail) (rewards.EntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(entry, details)
}

func (m *Memory) appendLocked(entry rewards.LedgerEntry, details []rewards.Detail) (rewards.EntryID, error) {
	if entry.Points > 0 && entry.OrderID != "" {
		for _, e := range m.entries {
			if e.OrderID == entry.OrderID && e.Points > 0 {
				return 0, rewards.ErrDuplicateAward
			}
		}
	}

	m.nextEntryID++
	entry.ID = m.nextEntryID
	m.entries = append(m.entries, entry)

	rows := make([]rewards.Detail, len(details))
	for i, d := range details {
		m.nextDetailID++
		d.ID = m.nextDetailID
		d.EntryID = entry.ID
		rows[i] = d
	}
	m.details[entry.ID] = rows
	return entry.ID, nil
}

func (m *Memory) EntriesForUser(_ context.Context, userID rewards.UserID) ([]rewards.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []rewards.LedgerEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EarnedAt.Before(out[j].EarnedAt) })
	return out, nil
}

func (m *Memory) SpendableEntries(_ context.Context, userID rewards.UserID, asOf time.Time) ([]rewards.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []rewards.LedgerEntry
	for _, e := range m.entries {
		if e.UserID == userID && e.Spendable(asOf) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EarnedAt.Before(out[j].EarnedAt) })
	return out, nil
}

func (m *Memory) DetailsForEntry(_ context.Context, entryID rewards.EntryID) ([]rewards.Detail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]rewards.Detail, len(m.details[entryID]))
	copy(rows, m.details[entryID])
	return rows, nil
}

func (m *Memory) HasEarnForOrder(_ context.Context, orderID rewards.OrderID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.OrderID == orderID && e.Points > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ConsumeEntry(_ context.Context, entryID rewards.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == entryID {
			m.entries[i].Used = true
			return nil
		}
	}
	return rewards.ErrEntryNotFound
}

func (m *Memory) ReduceEntry(_ context.Context, entryID rewards.EntryID, by int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == entryID {
			m.entries[i].Points -= by
			return nil
		}
	}
	return rewards.ErrEntryNotFound
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx executes fn against the store, restoring a snapshot on error.
// Serialized by the write lock held in snapshot/restore paths of the
// individual operations; the memory store is single-process only.
func (m *Memory) WithTx(ctx context.Context, fn func(rewards.LedgerStore) error) error {
	snapshot := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	nextEntryID  rewards.EntryID
	nextDetailID int64
	entries      []rewards.LedgerEntry
	details      map[rewards.EntryID][]rewards.Detail
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]rewards.LedgerEntry, len(m.entries))
	copy(entries, m.entries)
	details := make(map[rewards.EntryID][]rewards.Detail, len(m.details))
	for k, v := range m.details {
		details[k] = append([]rewards.Detail{}, v...)
	}
	return memorySnapshot{
		nextEntryID:  m.nextEntryID,
		nextDetailID: m.nextDetailID,
		entries:      entries,
		details:      details,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEntryID = s.nextEntryID
	m.nextDetailID = s.nextDetailID
	m.entries = s.entries
	m.details = s.details
}

// Compile-time interface checks.
var (
	_ rewards.RuleSource    = (*Memory)(nil)
	_ rewards.TxLedgerStore = (*Memory)(nil)
)
