/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.Store, ledger.TxStore and ledger.Catalog using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No DELETE statements on the transactions table.
  - The ONLY UPDATE is flipping a loan's approved flag, and it writes the
    approver in the same statement. A CHECK constraint rejects any row
    with approved set and no approver, so the invariant holds at every
    save, not just at creation.

KEY TABLES:
  organizations:  Item owners; deletion cascades to items and ledger
  items:          Catalog entries (UUID keyed); stock is never stored here
  tags/item_tags: Free-form labels, many-to-many
  transactions:   The append-only ledger, one table with a variant tag

DERIVED METRICS:
  Every aggregate the engine needs is a filtered COALESCE(SUM(...), 0)
  over transactions, so an item with no rows resolves to zero, never NULL.

CONCURRENCY:
  WithItemLock serializes writers with a mutex and wraps fn in a database
  transaction, giving the engine its atomic read-aggregate-then-append
  unit. SQLite allows one writer at a time anyway; a busy/locked error
  surfaces as ledger.ErrConflict, which callers may retry.

WAL MODE:
  Opened with WAL so reporting reads don't block the writer.

USAGE:
  store, err := sqlite.New("./data/inventory.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
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

	"github.com/hacklab/inventory-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ ledger.TxStore = (*Store)(nil)
	_ ledger.Catalog = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The store serializes writes itself; a second connection would only
	// trip SQLITE_BUSY.
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

// Reset deletes all data. Used by demo scenario loading only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Delete order respects foreign keys.
	for _, table := range []string{"transactions", "item_tags", "tags", "items", "organizations"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Organizations own items; deleting one cascades through its catalog
	-- and ledger (store-owned semantics).
	CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		created_at TEXT NOT NULL
	);

	-- Items carry NO stock numbers. Everything is derived from the ledger.
	CREATE TABLE IF NOT EXISTS items (
		uuid TEXT PRIMARY KEY,
		org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_org ON items(org_id);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS item_tags (
		item_uuid TEXT NOT NULL REFERENCES items(uuid) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (item_uuid, tag_id)
	);

	-- The append-only ledger. One table, variant tag, variant-specific
	-- columns NULL where they don't apply.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		item_uuid TEXT NOT NULL REFERENCES items(uuid) ON DELETE CASCADE,
		tx_type TEXT NOT NULL CHECK (tx_type IN ('add', 'lose', 'loan', 'return')),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		description TEXT,
		approver_id TEXT,
		recipient_id TEXT,
		due_date TEXT,
		approved INTEGER NOT NULL DEFAULT 0,
		loan_id TEXT REFERENCES transactions(id),
		created_at TEXT NOT NULL,

		-- An approved loan must carry its approver, at every save.
		CHECK (approved = 0 OR approver_id IS NOT NULL),
		-- A return reduces exactly one loan.
		CHECK (tx_type != 'return' OR loan_id IS NOT NULL),
		-- Only returns reference a loan.
		CHECK (tx_type = 'return' OR loan_id IS NULL)
	);

	-- Aggregation hot path: filtered sums per item and variant.
	CREATE INDEX IF NOT EXISTS idx_transactions_item_type
		ON transactions(item_uuid, tx_type);
	-- Per-loan return sums.
	CREATE INDEX IF NOT EXISTS idx_transactions_loan
		ON transactions(loan_id) WHERE loan_id IS NOT NULL;
	-- Per-user loan listing.
	CREATE INDEX IF NOT EXISTS idx_transactions_recipient
		ON transactions(recipient_id) WHERE recipient_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier abstracts *sql.DB and *sql.Tx so the same statement helpers
// serve both the plain store and the per-item critical section.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, q querier, tx ledger.Transaction) error {
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions
		(id, item_uuid, tx_type, quantity, description, approver_id,
		 recipient_id, due_date, approved, loan_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var approver sql.NullString
	if tx.Approver != nil {
		approver = sql.NullString{String: string(*tx.Approver), Valid: true}
	}

	_, err := q.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.ItemID),
		string(tx.Type),
		tx.Quantity,
		tx.Description,
		approver,
		nullString(string(tx.Recipient)),
		nullTime(tx.DueDate),
		tx.Approved,
		nullString(string(tx.Loan)),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isBusyError(err) {
			return ledger.ErrConflict
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// Loan returns the loan with the given ID.
func (s *Store) Loan(ctx context.Context, id ledger.LoanID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLoan(ctx, s.db, id)
}

func getLoan(ctx context.Context, q querier, id ledger.LoanID) (ledger.Transaction, error) {
	txs, err := queryTransactions(ctx, q, selectTx+` WHERE id = ? AND tx_type = 'loan'`, string(id))
	if err != nil {
		return ledger.Transaction{}, err
	}
	if len(txs) == 0 {
		return ledger.Transaction{}, ledger.ErrLoanNotFound
	}
	return txs[0], nil
}

// TransactionsByItem returns the item's full ledger, chronologically.
func (s *Store) TransactionsByItem(ctx context.Context, itemID ledger.ItemID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionsByItem(ctx, s.db, itemID)
}

func transactionsByItem(ctx context.Context, q querier, itemID ledger.ItemID) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, q,
		selectTx+` WHERE item_uuid = ? ORDER BY created_at ASC, id ASC`, string(itemID))
}

// LoansByItem returns all loan rows for an item.
func (s *Store) LoansByItem(ctx context.Context, itemID ledger.ItemID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loansByItem(ctx, s.db, itemID)
}

func loansByItem(ctx context.Context, q querier, itemID ledger.ItemID) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, q,
		selectTx+` WHERE item_uuid = ? AND tx_type = 'loan' ORDER BY created_at ASC, id ASC`,
		string(itemID))
}

// LoansByRecipient returns a recipient's loans, newest first.
func (s *Store) LoansByRecipient(ctx context.Context, recipient ledger.ActorID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTransactions(ctx, s.db,
		selectTx+` WHERE tx_type = 'loan' AND recipient_id = ? ORDER BY created_at DESC, id DESC`,
		string(recipient))
}

// Approve flips a loan's approved flag and records the approver in the
// same write. The UPDATE's approved = 0 predicate makes double approval
// detectable without a prior read.
func (s *Store) Approve(ctx context.Context, id ledger.LoanID, approver ledger.ActorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return approve(ctx, s.db, id, approver)
}

func approve(ctx context.Context, q querier, id ledger.LoanID, approver ledger.ActorID) error {
	res, err := q.ExecContext(ctx,
		`UPDATE transactions SET approved = 1, approver_id = ?
		 WHERE id = ? AND tx_type = 'loan' AND approved = 0`,
		string(approver), string(id),
	)
	if err != nil {
		if isBusyError(err) {
			return ledger.ErrConflict
		}
		return fmt.Errorf("failed to approve loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the loan doesn't exist or it's already approved.
		if _, err := getLoan(ctx, q, id); err != nil {
			return err
		}
		return ledger.ErrAlreadyApproved
	}
	return nil
}

// SumByType returns the quantity sum over one variant of the item's rows.
func (s *Store) SumByType(ctx context.Context, itemID ledger.ItemID, t ledger.TxType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumByType(ctx, s.db, itemID, t)
}

func sumByType(ctx context.Context, q querier, itemID ledger.ItemID, t ledger.TxType) (int, error) {
	var sum int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM transactions WHERE item_uuid = ? AND tx_type = ?`,
		string(itemID), string(t),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

// SumReturnsOf returns a loan's cumulative returned quantity.
func (s *Store) SumReturnsOf(ctx context.Context, id ledger.LoanID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumReturnsOf(ctx, s.db, id)
}

func sumReturnsOf(ctx context.Context, q querier, id ledger.LoanID) (int, error) {
	var sum int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM transactions WHERE tx_type = 'return' AND loan_id = ?`,
		string(id),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum returns: %w", err)
	}
	return sum, nil
}

// =============================================================================
// PER-ITEM CRITICAL SECTION (ledger.TxStore interface)
// =============================================================================

// WithItemLock executes fn within a database transaction under the write
// lock. The lock is store-wide, which is strictly stronger than the
// per-item serializability the engine requires; SQLite's single-writer
// model makes a finer grain pointless here.
func (s *Store) WithItemLock(ctx context.Context, _ ledger.ItemID, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusyError(err) {
			return ledger.ErrConflict
		}
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isBusyError(err) {
			return ledger.ErrConflict
		}
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// txStore is the store view handed to WithItemLock callbacks. All reads
// and writes go through the open database transaction, so aggregates read
// here cannot be invalidated before the appends commit.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Append(ctx context.Context, tx ledger.Transaction) error {
	return appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) Loan(ctx context.Context, id ledger.LoanID) (ledger.Transaction, error) {
	return getLoan(ctx, ts.tx, id)
}

func (ts *txStore) TransactionsByItem(ctx context.Context, itemID ledger.ItemID) ([]ledger.Transaction, error) {
	return transactionsByItem(ctx, ts.tx, itemID)
}

func (ts *txStore) LoansByItem(ctx context.Context, itemID ledger.ItemID) ([]ledger.Transaction, error) {
	return loansByItem(ctx, ts.tx, itemID)
}

func (ts *txStore) LoansByRecipient(ctx context.Context, recipient ledger.ActorID) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, ts.tx,
		selectTx+` WHERE tx_type = 'loan' AND recipient_id = ? ORDER BY created_at DESC, id DESC`,
		string(recipient))
}

func (ts *txStore) Approve(ctx context.Context, id ledger.LoanID, approver ledger.ActorID) error {
	return approve(ctx, ts.tx, id, approver)
}

func (ts *txStore) SumByType(ctx context.Context, itemID ledger.ItemID, t ledger.TxType) (int, error) {
	return sumByType(ctx, ts.tx, itemID, t)
}

func (ts *txStore) SumReturnsOf(ctx context.Context, id ledger.LoanID) (int, error) {
	return sumReturnsOf(ctx, ts.tx, id)
}

// =============================================================================
// TRANSACTION SCANNING
// =============================================================================

const selectTx = `
	SELECT id, item_uuid, tx_type, quantity, description, approver_id,
	       recipient_id, due_date, approved, loan_id, created_at
	FROM transactions`

func queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var (
			tx          ledger.Transaction
			id, item    string
			txType      string
			description sql.NullString
			approver    sql.NullString
			recipient   sql.NullString
			dueDate     sql.NullString
			loanID      sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&id, &item, &txType, &tx.Quantity, &description,
			&approver, &recipient, &dueDate, &tx.Approved, &loanID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		tx.ID = ledger.TransactionID(id)
		tx.ItemID = ledger.ItemID(item)
		tx.Type = ledger.TxType(txType)
		tx.Description = description.String
		if approver.Valid {
			a := ledger.ActorID(approver.String)
			tx.Approver = &a
		}
		tx.Recipient = ledger.ActorID(recipient.String)
		if dueDate.Valid {
			tx.DueDate, _ = time.Parse(time.RFC3339Nano, dueDate.String)
		}
		tx.Loan = ledger.LoanID(loanID.String)
		tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// CATALOG (ledger.Catalog interface)
// =============================================================================

// SaveOrganization inserts or updates an organization.
func (s *Store) SaveOrganization(ctx context.Context, org ledger.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := org.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, description, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description`,
		string(org.ID), org.Name, org.Description, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save organization: %w", err)
	}
	return nil
}

// Organization returns one organization.
func (s *Store) Organization(ctx context.Context, id ledger.OrgID) (ledger.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var org ledger.Organization
	var orgID, createdAt string
	var description sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM organizations WHERE id = ?`,
		string(id),
	).Scan(&orgID, &org.Name, &description, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.Organization{}, ledger.ErrOrgNotFound
	}
	if err != nil {
		return ledger.Organization{}, fmt.Errorf("failed to get organization: %w", err)
	}
	org.ID = ledger.OrgID(orgID)
	org.Description = description.String
	org.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return org, nil
}

// ListOrganizations returns all organizations, by name.
func (s *Store) ListOrganizations(ctx context.Context) ([]ledger.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM organizations ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []ledger.Organization
	for rows.Next() {
		var org ledger.Organization
		var id, createdAt string
		var description sql.NullString
		if err := rows.Scan(&id, &org.Name, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		org.ID = ledger.OrgID(id)
		org.Description = description.String
		org.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// SaveItem inserts or updates an item and replaces its tag set.
func (s *Store) SaveItem(ctx context.Context, item ledger.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx,
		`INSERT INTO items (uuid, org_id, name, description, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (uuid) DO UPDATE SET name = excluded.name, description = excluded.description`,
		string(item.ID), string(item.Organization), item.Name, item.Description,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx,
		`DELETE FROM item_tags WHERE item_uuid = ?`, string(item.ID)); err != nil {
		return fmt.Errorf("failed to clear item tags: %w", err)
	}
	for _, tag := range item.Tags {
		if _, err := sqlTx.ExecContext(ctx,
			`INSERT INTO tags (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, tag); err != nil {
			return fmt.Errorf("failed to save tag: %w", err)
		}
		if _, err := sqlTx.ExecContext(ctx,
			`INSERT INTO item_tags (item_uuid, tag_id)
			 SELECT ?, id FROM tags WHERE name = ?`,
			string(item.ID), tag); err != nil {
			return fmt.Errorf("failed to link tag: %w", err)
		}
	}

	return sqlTx.Commit()
}

// Item returns one item with its tags.
func (s *Store) Item(ctx context.Context, id ledger.ItemID) (ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var item ledger.Item
	var itemID, orgID, createdAt string
	var description sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT uuid, org_id, name, description, created_at FROM items WHERE uuid = ?`,
		string(id),
	).Scan(&itemID, &orgID, &item.Name, &description, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.Item{}, ledger.ErrItemNotFound
	}
	if err != nil {
		return ledger.Item{}, fmt.Errorf("failed to get item: %w", err)
	}
	item.ID = ledger.ItemID(itemID)
	item.Organization = ledger.OrgID(orgID)
	item.Description = description.String
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	item.Tags, err = s.itemTags(ctx, id)
	if err != nil {
		return ledger.Item{}, err
	}
	return item, nil
}

func (s *Store) itemTags(ctx context.Context, id ledger.ItemID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name FROM tags t
		 JOIN item_tags it ON it.tag_id = t.id
		 WHERE it.item_uuid = ?
		 ORDER BY t.name ASC`,
		string(id),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get item tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ItemsByOrganization returns the organization's items.
func (s *Store) ItemsByOrganization(ctx context.Context, org ledger.OrgID) ([]ledger.Item, error) {
	return s.queryItems(ctx,
		`SELECT uuid, org_id, name, description, created_at FROM items
		 WHERE org_id = ? ORDER BY name ASC`,
		string(org))
}

// ListItems returns every item.
func (s *Store) ListItems(ctx context.Context) ([]ledger.Item, error) {
	return s.queryItems(ctx,
		`SELECT uuid, org_id, name, description, created_at FROM items ORDER BY name ASC`)
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []ledger.Item
	for rows.Next() {
		var item ledger.Item
		var id, orgID, createdAt string
		var description sql.NullString
		if err := rows.Scan(&id, &orgID, &item.Name, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.ID = ledger.ItemID(id)
		item.Organization = ledger.OrgID(orgID)
		item.Description = description.String
		item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range items {
		items[i].Tags, err = s.itemTags(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
