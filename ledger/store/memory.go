// Package store provides Store implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/hacklab/inventory-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore and ledger.Catalog. Per-item critical
// sections are real mutexes, so the concurrency contract holds under
// parallel tests. Writes inside WithItemLock are staged and only applied
// if fn succeeds, matching the no-partial-writes contract.
type Memory struct {
	mu       sync.RWMutex
	itemMu   map[ledger.ItemID]*sync.Mutex
	txs      map[ledger.TransactionID]ledger.Transaction
	order    []ledger.TransactionID
	byItem   map[ledger.ItemID][]ledger.TransactionID
	orgs     map[ledger.OrgID]ledger.Organization
	orgOrder []ledger.OrgID
	items    map[ledger.ItemID]ledger.Item
	itemOrder []ledger.ItemID
}

func NewMemory() *Memory {
	return &Memory{
		itemMu: make(map[ledger.ItemID]*sync.Mutex),
		txs:    make(map[ledger.TransactionID]ledger.Transaction),
		byItem: make(map[ledger.ItemID][]ledger.TransactionID),
		orgs:   make(map[ledger.OrgID]ledger.Organization),
		items:  make(map[ledger.ItemID]ledger.Item),
	}
}

// =============================================================================
// LEDGER STORE
// =============================================================================

// Append adds a single transaction directly, outside any item lock.
// Tests use this to inject rows that bypass the service guards.
func (m *Memory) Append(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(tx)
	return nil
}

func (m *Memory) appendLocked(tx ledger.Transaction) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	m.txs[tx.ID] = tx
	m.order = append(m.order, tx.ID)
	m.byItem[tx.ItemID] = append(m.byItem[tx.ItemID], tx.ID)
}

func (m *Memory) Loan(_ context.Context, id ledger.LoanID) (ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loanLocked(id)
}

func (m *Memory) loanLocked(id ledger.LoanID) (ledger.Transaction, error) {
	tx, ok := m.txs[id]
	if !ok || !tx.IsLoan() {
		return ledger.Transaction{}, ledger.ErrLoanNotFound
	}
	return tx, nil
}

func (m *Memory) TransactionsByItem(_ context.Context, itemID ledger.ItemID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byItem[itemID]
	result := make([]ledger.Transaction, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.txs[id])
	}
	return result, nil
}

func (m *Memory) LoansByItem(_ context.Context, itemID ledger.ItemID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Transaction
	for _, id := range m.byItem[itemID] {
		if tx := m.txs[id]; tx.IsLoan() {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Memory) LoansByRecipient(_ context.Context, recipient ledger.ActorID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Newest first: walk insertion order backwards.
	var result []ledger.Transaction
	for i := len(m.order) - 1; i >= 0; i-- {
		if tx := m.txs[m.order[i]]; tx.IsLoan() && tx.Recipient == recipient {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Memory) Approve(_ context.Context, id ledger.LoanID, approver ledger.ActorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.approveLocked(id, approver)
}

func (m *Memory) approveLocked(id ledger.LoanID, approver ledger.ActorID) error {
	tx, err := m.loanLocked(id)
	if err != nil {
		return err
	}
	if tx.Approved {
		return ledger.ErrAlreadyApproved
	}
	tx.Approved = true
	tx.Approver = &approver
	m.txs[id] = tx
	return nil
}

func (m *Memory) SumByType(_ context.Context, itemID ledger.ItemID, t ledger.TxType) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := 0
	for _, id := range m.byItem[itemID] {
		if tx := m.txs[id]; tx.Type == t {
			sum += tx.Quantity
		}
	}
	return sum, nil
}

func (m *Memory) SumReturnsOf(_ context.Context, id ledger.LoanID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loan, ok := m.txs[id]
	if !ok {
		return 0, nil
	}
	sum := 0
	for _, txID := range m.byItem[loan.ItemID] {
		if tx := m.txs[txID]; tx.IsReturn() && tx.Loan == id {
			sum += tx.Quantity
		}
	}
	return sum, nil
}

// =============================================================================
// PER-ITEM CRITICAL SECTION
// =============================================================================

// WithItemLock serializes fn against all other critical sections for the
// same item. Appends and approvals made through fn's store view are staged
// and committed only if fn returns nil.
func (m *Memory) WithItemLock(_ context.Context, itemID ledger.ItemID, fn func(ledger.Store) error) error {
	lock := m.itemLock(itemID)
	lock.Lock()
	defer lock.Unlock()

	view := &stagedView{base: m, approved: make(map[ledger.LoanID]ledger.ActorID)}
	if err := fn(view); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range view.appended {
		m.appendLocked(tx)
	}
	for id, approver := range view.approved {
		if err := m.approveLocked(id, approver); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) itemLock(itemID ledger.ItemID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.itemMu[itemID]
	if !ok {
		lock = &sync.Mutex{}
		m.itemMu[itemID] = lock
	}
	return lock
}

// stagedView overlays uncommitted writes on the base store. It only needs
// to be correct for single-item use inside WithItemLock.
type stagedView struct {
	base     *Memory
	appended []ledger.Transaction
	approved map[ledger.LoanID]ledger.ActorID
}

func (v *stagedView) Append(_ context.Context, tx ledger.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	v.appended = append(v.appended, tx)
	return nil
}

func (v *stagedView) Loan(ctx context.Context, id ledger.LoanID) (ledger.Transaction, error) {
	for _, tx := range v.appended {
		if tx.ID == id && tx.IsLoan() {
			return v.overlay(tx), nil
		}
	}
	tx, err := v.base.Loan(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return v.overlay(tx), nil
}

func (v *stagedView) overlay(tx ledger.Transaction) ledger.Transaction {
	if approver, ok := v.approved[tx.ID]; ok {
		a := approver
		tx.Approved = true
		tx.Approver = &a
	}
	return tx
}

func (v *stagedView) TransactionsByItem(ctx context.Context, itemID ledger.ItemID) ([]ledger.Transaction, error) {
	txs, err := v.base.TransactionsByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		txs[i] = v.overlay(txs[i])
	}
	for _, tx := range v.appended {
		if tx.ItemID == itemID {
			txs = append(txs, v.overlay(tx))
		}
	}
	return txs, nil
}

func (v *stagedView) LoansByItem(ctx context.Context, itemID ledger.ItemID) ([]ledger.Transaction, error) {
	txs, err := v.TransactionsByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	var loans []ledger.Transaction
	for _, tx := range txs {
		if tx.IsLoan() {
			loans = append(loans, tx)
		}
	}
	return loans, nil
}

func (v *stagedView) LoansByRecipient(ctx context.Context, recipient ledger.ActorID) ([]ledger.Transaction, error) {
	return v.base.LoansByRecipient(ctx, recipient)
}

func (v *stagedView) Approve(ctx context.Context, id ledger.LoanID, approver ledger.ActorID) error {
	current, err := v.Loan(ctx, id)
	if err != nil {
		return err
	}
	if current.Approved {
		return ledger.ErrAlreadyApproved
	}
	v.approved[id] = approver
	return nil
}

func (v *stagedView) SumByType(ctx context.Context, itemID ledger.ItemID, t ledger.TxType) (int, error) {
	sum, err := v.base.SumByType(ctx, itemID, t)
	if err != nil {
		return 0, err
	}
	for _, tx := range v.appended {
		if tx.ItemID == itemID && tx.Type == t {
			sum += tx.Quantity
		}
	}
	return sum, nil
}

func (v *stagedView) SumReturnsOf(ctx context.Context, id ledger.LoanID) (int, error) {
	sum, err := v.base.SumReturnsOf(ctx, id)
	if err != nil {
		return 0, err
	}
	for _, tx := range v.appended {
		if tx.IsReturn() && tx.Loan == id {
			sum += tx.Quantity
		}
	}
	return sum, nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) SaveOrganization(_ context.Context, org ledger.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[org.ID]; !ok {
		m.orgOrder = append(m.orgOrder, org.ID)
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	m.orgs[org.ID] = org
	return nil
}

func (m *Memory) Organization(_ context.Context, id ledger.OrgID) (ledger.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	org, ok := m.orgs[id]
	if !ok {
		return ledger.Organization{}, ledger.ErrOrgNotFound
	}
	return org, nil
}

func (m *Memory) ListOrganizations(_ context.Context) ([]ledger.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]ledger.Organization, 0, len(m.orgOrder))
	for _, id := range m.orgOrder {
		result = append(result, m.orgs[id])
	}
	return result, nil
}

func (m *Memory) SaveItem(_ context.Context, item ledger.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		m.itemOrder = append(m.itemOrder, item.ID)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.Tags = append([]string(nil), item.Tags...)
	m.items[item.ID] = item
	return nil
}

func (m *Memory) Item(_ context.Context, id ledger.ItemID) (ledger.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return ledger.Item{}, ledger.ErrItemNotFound
	}
	return item, nil
}

func (m *Memory) ItemsByOrganization(_ context.Context, org ledger.OrgID) ([]ledger.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []ledger.Item
	for _, id := range m.itemOrder {
		if item := m.items[id]; item.Organization == org {
			result = append(result, item)
		}
	}
	return result, nil
}

func (m *Memory) ListItems(_ context.Context) ([]ledger.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]ledger.Item, 0, len(m.itemOrder))
	for _, id := range m.itemOrder {
		result = append(result, m.items[id])
	}
	return result, nil
}
