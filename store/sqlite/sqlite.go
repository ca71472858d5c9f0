/*
Package sqlite provides a SQLite-backed implementation of the rewards
storage interfaces.

PURPOSE:
  Implements rewards.RuleSource and rewards.TxLedgerStore using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  reward_rules:       Master rules (activation switch per rule family)
  product_rules:      Per-product and per-category award rules
  order_amount_rules: Tiered bonuses on the order total
  products:           Product -> category mapping for rule fallback
  ledger:             Earn/redeem entries, auto-increment keyed
  ledger_details:     Immutable audit rows per ledger entry

INVARIANT ENFORCEMENT:
  idx_ledger_order_earn is a partial unique index on earned entries'
  order_id. Two concurrent awards for the same order race at the
  database, and the loser gets rewards.ErrDuplicateAward.

LEDGER MUTATIONS:
  Ledger entries are never deleted. The only updates are the two FIFO
  redemption transitions: marking an entry used, and decrementing a
  partially consumed entry's points. Detail rows are insert-only.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/rewards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := rewards.NewEngine(store, store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - rewards/rules.go, rewards/ledger.go: Interface definitions
  - rewards/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/reward-engine/rewards"
)

// Store implements the rewards storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway, and a pool
	// would give each ":memory:" connection its own empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Master rules (activation switch per rule family)
	CREATE TABLE IF NOT EXISTS reward_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		priority INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Product/category award rules
	CREATE TABLE IF NOT EXISTS product_rules (
		id TEXT PRIMARY KEY,
		master_id TEXT NOT NULL REFERENCES reward_rules(id),
		scope TEXT NOT NULL,
		product_id TEXT,
		category_id TEXT,
		points_per_unit INTEGER NOT NULL DEFAULT 0,
		percentage BOOLEAN NOT NULL DEFAULT FALSE,
		multiplier TEXT NOT NULL DEFAULT '0',
		bonus_points INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_product_rules_product
		ON product_rules(product_id) WHERE product_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_product_rules_category
		ON product_rules(category_id) WHERE category_id IS NOT NULL;

	-- Order-total tiers
	CREATE TABLE IF NOT EXISTS order_amount_rules (
		id TEXT PRIMARY KEY,
		master_id TEXT NOT NULL REFERENCES reward_rules(id),
		min_amount TEXT NOT NULL,
		max_amount TEXT,
		points INTEGER NOT NULL,
		percentage BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Product catalog slice needed for category fallback
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		category_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_category
		ON products(category_id) WHERE category_id IS NOT NULL;

	-- Points ledger (earn: points > 0, redeem: points < 0)
	CREATE TABLE IF NOT EXISTS ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		order_id TEXT,
		points INTEGER NOT NULL,
		earned_date TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		is_used BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one earned entry per order. Concurrent payment-webhook
	-- retries race here and the loser gets a duplicate-award error.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_order_earn
		ON ledger(order_id) WHERE order_id IS NOT NULL AND points > 0;

	-- Balance calculation and FIFO selection (hot path)
	CREATE INDEX IF NOT EXISTS idx_ledger_user_date
		ON ledger(user_id, earned_date ASC);

	-- Audit detail rows (insert-only)
	CREATE TABLE IF NOT EXISTS ledger_details (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reward_point_id INTEGER NOT NULL REFERENCES ledger(id),
		order_item_id TEXT,
		product_id TEXT,
		rule_id TEXT,
		points INTEGER NOT NULL,
		points_description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_details_entry
		ON ledger_details(reward_point_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx, so the ledger
// operations run identically inside and outside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// RULE SOURCE (rewards.RuleSource interface)
// =============================================================================

const productRuleColumns = `id, master_id, scope, product_id, category_id,
	points_per_unit, percentage, multiplier, bonus_points`

// ProductRuleFor returns the rule keyed directly to the product.
func (s *Store) ProductRuleFor(ctx context.Context, productID rewards.ProductID) (*rewards.ProductRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+productRuleColumns+` FROM product_rules WHERE scope = ? AND product_id = ? LIMIT 1`,
		rewards.ScopeProduct, productID)
	return scanProductRule(row)
}

// CategoryRuleFor returns the rule keyed to the category.
func (s *Store) CategoryRuleFor(ctx context.Context, categoryID rewards.CategoryID) (*rewards.ProductRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+productRuleColumns+` FROM product_rules WHERE scope = ? AND category_id = ? LIMIT 1`,
		rewards.ScopeCategory, categoryID)
	return scanProductRule(row)
}

// CategoryOf returns the product's category, or "" when uncategorized.
func (s *Store) CategoryOf(ctx context.Context, productID rewards.ProductID) (rewards.CategoryID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var categoryID sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT category_id FROM products WHERE id = ?", productID).Scan(&categoryID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up product category: %w", err)
	}
	return rewards.CategoryID(categoryID.String), nil
}

// OrderAmountRules returns all configured order-total tiers.
func (s *Store) OrderAmountRules(ctx context.Context) ([]rewards.OrderAmountRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, master_id, min_amount, max_amount, points, percentage
		 FROM order_amount_rules ORDER BY min_amount ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query order-amount rules: %w", err)
	}
	defer rows.Close()

	var rules []rewards.OrderAmountRule
	for rows.Next() {
		var (
			r         rewards.OrderAmountRule
			minAmount string
			maxAmount sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.MasterID, &minAmount, &maxAmount, &r.Points, &r.Percentage); err != nil {
			return nil, fmt.Errorf("failed to scan order-amount rule: %w", err)
		}
		r.MinAmount = mustDecimal(minAmount)
		if maxAmount.Valid {
			max := mustDecimal(maxAmount.String)
			r.MaxAmount = &max
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// IsRuleActive reports whether the master rule exists and is active.
func (s *Store) IsRuleActive(ctx context.Context, masterID rewards.RuleID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active bool
	err := s.db.QueryRowContext(ctx,
		"SELECT active FROM reward_rules WHERE id = ?", masterID).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check master rule: %w", err)
	}
	return active, nil
}

func scanProductRule(row *sql.Row) (*rewards.ProductRule, error) {
	var (
		r          rewards.ProductRule
		productID  sql.NullString
		categoryID sql.NullString
		multiplier string
	)
	err := row.Scan(&r.ID, &r.MasterID, &r.Scope, &productID, &categoryID,
		&r.PointsPerUnit, &r.Percentage, &multiplier, &r.BonusPoints)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product rule: %w", err)
	}
	r.ProductID = rewards.ProductID(productID.String)
	r.CategoryID = rewards.CategoryID(categoryID.String)
	r.Multiplier = mustDecimal(multiplier)
	return &r, nil
}

// =============================================================================
// LEDGER STORE (rewards.LedgerStore interface)
// =============================================================================

// AppendEntry persists an entry with its detail rows atomically.
func (s *Store) AppendEntry(ctx context.Context, entry rewards.LedgerEntry, details []rewards.Detail) (rewards.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	id, err := s.appendEntry(ctx, sqlTx, entry, details)
	if err != nil {
		return 0, err
	}
	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit award: %w", err)
	}
	return id, nil
}

func (s *Store) appendEntry(ctx context.Context, q querier, entry rewards.LedgerEntry, details []rewards.Detail) (rewards.EntryID, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := q.ExecContext(ctx,
		`INSERT INTO ledger (user_id, order_id, points, earned_date, expiry_date, is_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID,
		nullString(string(entry.OrderID)),
		entry.Points,
		entry.EarnedAt.UTC().Format(time.RFC3339),
		entry.ExpiresAt.UTC().Format(time.RFC3339),
		entry.Used,
		now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, rewards.ErrDuplicateAward
		}
		return 0, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger entry id: %w", err)
	}

	for _, d := range details {
		_, err := q.ExecContext(ctx,
			`INSERT INTO ledger_details
			 (reward_point_id, order_item_id, product_id, rule_id, points, points_description, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id,
			nullString(string(d.OrderItemID)),
			nullString(string(d.ProductID)),
			nullString(string(d.RuleID)),
			d.Points,
			d.Description,
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert detail row: %w", err)
		}
	}

	return rewards.EntryID(id), nil
}

const ledgerColumns = `id, user_id, order_id, points, earned_date, expiry_date, is_used`

// EntriesForUser returns all of a user's entries, oldest first.
func (s *Store) EntriesForUser(ctx context.Context, userID rewards.UserID) ([]rewards.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryEntries(ctx, s.db,
		`SELECT `+ledgerColumns+` FROM ledger WHERE user_id = ? ORDER BY earned_date ASC, id ASC`,
		userID)
}

// SpendableEntries returns unused, unexpired, positive entries, FIFO by
// earned_date.
func (s *Store) SpendableEntries(ctx context.Context, userID rewards.UserID, asOf time.Time) ([]rewards.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spendableEntries(ctx, s.db, userID, asOf)
}

func (s *Store) spendableEntries(ctx context.Context, q querier, userID rewards.UserID, asOf time.Time) ([]rewards.LedgerEntry, error) {
	return s.queryEntries(ctx, q,
		`SELECT `+ledgerColumns+` FROM ledger
		 WHERE user_id = ? AND points > 0 AND is_used = FALSE AND expiry_date > ?
		 ORDER BY earned_date ASC, id ASC`,
		userID, asOf.UTC().Format(time.RFC3339))
}

// DetailsForEntry returns the audit rows for one ledger entry.
func (s *Store) DetailsForEntry(ctx context.Context, entryID rewards.EntryID) ([]rewards.Detail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reward_point_id, order_item_id, product_id, rule_id, points, points_description
		 FROM ledger_details WHERE reward_point_id = ? ORDER BY id ASC`,
		entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query details: %w", err)
	}
	defer rows.Close()

	var details []rewards.Detail
	for rows.Next() {
		var (
			d           rewards.Detail
			orderItemID sql.NullString
			productID   sql.NullString
			ruleID      sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.EntryID, &orderItemID, &productID, &ruleID, &d.Points, &d.Description); err != nil {
			return nil, fmt.Errorf("failed to scan detail: %w", err)
		}
		d.OrderItemID = rewards.OrderItemID(orderItemID.String)
		d.ProductID = rewards.ProductID(productID.String)
		d.RuleID = rewards.RuleID(ruleID.String)
		details = append(details, d)
	}
	return details, rows.Err()
}

// HasEarnForOrder reports whether the order already has an earned entry.
func (s *Store) HasEarnForOrder(ctx context.Context, orderID rewards.OrderID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger WHERE order_id = ? AND points > 0",
		orderID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check order award: %w", err)
	}
	return count > 0, nil
}

// ConsumeEntry marks an entry fully consumed.
func (s *Store) ConsumeEntry(ctx context.Context, entryID rewards.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumeEntry(ctx, s.db, entryID)
}

func (s *Store) consumeEntry(ctx context.Context, q querier, entryID rewards.EntryID) error {
	res, err := q.ExecContext(ctx,
		"UPDATE ledger SET is_used = TRUE WHERE id = ?", entryID)
	if err != nil {
		return fmt.Errorf("failed to consume entry: %w", err)
	}
	return requireRow(res)
}

// ReduceEntry decrements an entry's points in place.
func (s *Store) ReduceEntry(ctx context.Context, entryID rewards.EntryID, by int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reduceEntry(ctx, s.db, entryID, by)
}

func (s *Store) reduceEntry(ctx context.Context, q querier, entryID rewards.EntryID, by int64) error {
	res, err := q.ExecContext(ctx,
		"UPDATE ledger SET points = points - ? WHERE id = ?", by, entryID)
	if err != nil {
		return fmt.Errorf("failed to reduce entry: %w", err)
	}
	return requireRow(res)
}

func (s *Store) queryEntries(ctx context.Context, q querier, query string, args ...any) ([]rewards.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []rewards.LedgerEntry
	for rows.Next() {
		var (
			e          rewards.LedgerEntry
			orderID    sql.NullString
			earnedDate string
			expiryDate string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &orderID, &e.Points, &earnedDate, &expiryDate, &e.Used); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.OrderID = rewards.OrderID(orderID.String)
		e.EarnedAt, _ = time.Parse(time.RFC3339, earnedDate)
		e.ExpiresAt, _ = time.Parse(time.RFC3339, expiryDate)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONAL LEDGER (rewards.TxLedgerStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. Used by redemption
// so the balance check and the consumption it authorizes are atomic.
func (s *Store) WithTx(ctx context.Context, fn func(rewards.LedgerStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txLedger{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txLedger routes ledger operations through an open transaction.
// The parent's lock is already held by WithTx.
type txLedger struct {
	tx     *sql.Tx
	parent *Store
}

func (t *txLedger) AppendEntry(ctx context.Context, entry rewards.LedgerEntry, details []rewards.Detail) (rewards.EntryID, error) {
	return t.parent.appendEntry(ctx, t.tx, entry, details)
}

func (t *txLedger) EntriesForUser(ctx context.Context, userID rewards.UserID) ([]rewards.LedgerEntry, error) {
	return t.parent.queryEntries(ctx, t.tx,
		`SELECT `+ledgerColumns+` FROM ledger WHERE user_id = ? ORDER BY earned_date ASC, id ASC`,
		userID)
}

func (t *txLedger) SpendableEntries(ctx context.Context, userID rewards.UserID, asOf time.Time) ([]rewards.LedgerEntry, error) {
	return t.parent.spendableEntries(ctx, t.tx, userID, asOf)
}

func (t *txLedger) DetailsForEntry(ctx context.Context, entryID rewards.EntryID) ([]rewards.Detail, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, reward_point_id, order_item_id, product_id, rule_id, points, points_description
		 FROM ledger_details WHERE reward_point_id = ? ORDER BY id ASC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query details: %w", err)
	}
	defer rows.Close()

	var details []rewards.Detail
	for rows.Next() {
		var (
			d           rewards.Detail
			orderItemID sql.NullString
			productID   sql.NullString
			ruleID      sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.EntryID, &orderItemID, &productID, &ruleID, &d.Points, &d.Description); err != nil {
			return nil, fmt.Errorf("failed to scan detail: %w", err)
		}
		d.OrderItemID = rewards.OrderItemID(orderItemID.String)
		d.ProductID = rewards.ProductID(productID.String)
		d.RuleID = rewards.RuleID(ruleID.String)
		details = append(details, d)
	}
	return details, rows.Err()
}

func (t *txLedger) HasEarnForOrder(ctx context.Context, orderID rewards.OrderID) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger WHERE order_id = ? AND points > 0", orderID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check order award: %w", err)
	}
	return count > 0, nil
}

func (t *txLedger) ConsumeEntry(ctx context.Context, entryID rewards.EntryID) error {
	return t.parent.consumeEntry(ctx, t.tx, entryID)
}

func (t *txLedger) ReduceEntry(ctx context.Context, entryID rewards.EntryID, by int64) error {
	return t.parent.reduceEntry(ctx, t.tx, entryID, by)
}

// =============================================================================
// RULE ADMINISTRATION (writes, used by API and scenario loading)
// =============================================================================

// SaveMasterRule inserts or updates a master rule.
func (s *Store) SaveMasterRule(ctx context.Context, r rewards.MasterRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reward_rules (id, name, active, priority, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			priority = excluded.priority`,
		r.ID, r.Name, r.Active, r.Priority, time.Now().UTC().Format(time.RFC3339))
	return err
}

// SetRuleActive flips a master rule's activation flag.
func (s *Store) SetRuleActive(ctx context.Context, id rewards.RuleID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE reward_rules SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rewards.ErrRuleNotFound
	}
	return nil
}

// ListMasterRules returns all master rules ordered by priority.
func (s *Store) ListMasterRules(ctx context.Context) ([]rewards.MasterRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, active, priority FROM reward_rules ORDER BY priority ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []rewards.MasterRule
	for rows.Next() {
		var r rewards.MasterRule
		if err := rows.Scan(&r.ID, &r.Name, &r.Active, &r.Priority); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SaveProductRule inserts or updates a product/category rule.
func (s *Store) SaveProductRule(ctx context.Context, r rewards.ProductRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO product_rules
		 (id, master_id, scope, product_id, category_id, points_per_unit, percentage, multiplier, bonus_points, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			master_id = excluded.master_id,
			scope = excluded.scope,
			product_id = excluded.product_id,
			category_id = excluded.category_id,
			points_per_unit = excluded.points_per_unit,
			percentage = excluded.percentage,
			multiplier = excluded.multiplier,
			bonus_points = excluded.bonus_points`,
		r.ID, r.MasterID, r.Scope,
		nullString(string(r.ProductID)), nullString(string(r.CategoryID)),
		r.PointsPerUnit, r.Percentage, r.Multiplier.String(), r.BonusPoints,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// ListProductRules returns all product/category rules.
func (s *Store) ListProductRules(ctx context.Context) ([]rewards.ProductRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productRuleColumns+` FROM product_rules ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []rewards.ProductRule
	for rows.Next() {
		var (
			r          rewards.ProductRule
			productID  sql.NullString
			categoryID sql.NullString
			multiplier string
		)
		if err := rows.Scan(&r.ID, &r.MasterID, &r.Scope, &productID, &categoryID,
			&r.PointsPerUnit, &r.Percentage, &multiplier, &r.BonusPoints); err != nil {
			return nil, err
		}
		r.ProductID = rewards.ProductID(productID.String)
		r.CategoryID = rewards.CategoryID(categoryID.String)
		r.Multiplier = mustDecimal(multiplier)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// DeleteProductRule removes a product/category rule.
func (s *Store) DeleteProductRule(ctx context.Context, id rewards.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM product_rules WHERE id = ?", id)
	return err
}

// SaveOrderAmountRule inserts or updates an order-total tier.
func (s *Store) SaveOrderAmountRule(ctx context.Context, r rewards.OrderAmountRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var maxAmount *string
	if r.MaxAmount != nil {
		v := r.MaxAmount.String()
		maxAmount = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_amount_rules (id, master_id, min_amount, max_amount, points, percentage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			master_id = excluded.master_id,
			min_amount = excluded.min_amount,
			max_amount = excluded.max_amount,
			points = excluded.points,
			percentage = excluded.percentage`,
		r.ID, r.MasterID, r.MinAmount.String(), maxAmount, r.Points, r.Percentage,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// DeleteOrderAmountRule removes an order-total tier.
func (s *Store) DeleteOrderAmountRule(ctx context.Context, id rewards.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM order_amount_rules WHERE id = ?", id)
	return err
}

// =============================================================================
// PRODUCT CATALOG (category mapping for fallback resolution)
// =============================================================================

// SaveProduct inserts or updates a product record.
func (s *Store) SaveProduct(ctx context.Context, p rewards.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, category_id, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category_id = excluded.category_id`,
		p.ID, p.Name, nullString(string(p.CategoryID)),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"ledger_details", "ledger", "product_rules", "order_amount_rules", "reward_rules", "products"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rewards.ErrEntryNotFound
	}
	return nil
}

// mustDecimal parses a stored decimal, defaulting to zero on garbage.
// Values only enter the database through decimal.Decimal.String().
func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Compile-time interface checks.
var (
	_ rewards.RuleSource    = (*Store)(nil)
	_ rewards.TxLedgerStore = (*Store)(nil)
)
