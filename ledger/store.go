/*
store.go - Persistence interfaces for the ledger and catalog

PURPOSE:
  Defines the contract between the engine and the database. The Store
  keeps the ledger append-only; the Catalog persists organizations and
  items. Implementations exist for SQLite (production) and memory (tests).

APPEND-ONLY CONTRACT:
  - Append() is the only way to create ledger rows.
  - Approve() is the ONLY permitted mutation: it flips a loan's approved
    flag and records the approver in the same write. Everything else is
    immutable. No Delete exists.

FILTERED SUMS:
  Derived metrics are sums over ledger subsets. SumByType and
  SumReturnsOf MUST treat "no matching rows" as zero, never as an error.

SERIALIZABILITY PER ITEM:
  WithItemLock runs fn as one atomic unit scoped to an item: no two
  successful writes against the same item may be based on aggregates
  invalidated by each other. Implementations use a serializable database
  transaction or equivalent locking. A detected race surfaces as
  ErrConflict, which the caller may retry.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - ledger/store: In-memory for testing

SEE ALSO:
  - resolver.go: Reads the filtered sums
  - service.go: Wraps validate-then-append in WithItemLock
*/
package ledger

import "context"

// =============================================================================
// STORE - Ledger persistence (append-only)
// =============================================================================

// Store handles persistence of ledger transactions.
// IMPORTANT: append-only. The single mutation is Approve.
type Store interface {
	// Append persists a transaction. The created timestamp is set once by
	// the store if the transaction doesn't carry one.
	Append(ctx context.Context, tx Transaction) error

	// Loan returns the loan with the given ID.
	// Returns ErrLoanNotFound if it doesn't exist or isn't a loan.
	Loan(ctx context.Context, id LoanID) (Transaction, error)

	// TransactionsByItem returns the item's full ledger, chronologically.
	TransactionsByItem(ctx context.Context, itemID ItemID) ([]Transaction, error)

	// LoansByItem returns all loan rows for an item.
	LoansByItem(ctx context.Context, itemID ItemID) ([]Transaction, error)

	// LoansByRecipient returns all loan rows for a recipient, newest first.
	LoansByRecipient(ctx context.Context, recipient ActorID) ([]Transaction, error)

	// Approve flips a loan's approved flag and records the approver.
	// Returns ErrAlreadyApproved if the flag is already set,
	// ErrLoanNotFound if the loan doesn't exist.
	Approve(ctx context.Context, id LoanID, approver ActorID) error

	// SumByType returns the quantity sum over the item's rows of one
	// variant. No matching rows yields 0, never an error.
	SumByType(ctx context.Context, itemID ItemID, t TxType) (int, error)

	// SumReturnsOf returns the cumulative returned quantity of one loan.
	// No returns yields 0.
	SumReturnsOf(ctx context.Context, id LoanID) (int, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic read-aggregate-then-append
// =============================================================================

// TxStore extends Store with per-item critical sections.
type TxStore interface {
	Store

	// WithItemLock executes fn as one atomic unit scoped to itemID.
	// Aggregates read inside fn cannot be invalidated by a concurrent
	// writer before fn's appends commit. If fn returns an error the
	// unit is rolled back and nothing is written.
	WithItemLock(ctx context.Context, itemID ItemID, fn func(Store) error) error
}

// =============================================================================
// CATALOG - Organizations and items
// =============================================================================

// Catalog persists the entities the ledger references. Thin CRUD; the
// invariants all live on the ledger side.
type Catalog interface {
	SaveOrganization(ctx context.Context, org Organization) error

	// Organization returns ErrOrgNotFound if missing.
	Organization(ctx context.Context, id OrgID) (Organization, error)

	ListOrganizations(ctx context.Context) ([]Organization, error)

	SaveItem(ctx context.Context, item Item) error

	// Item returns ErrItemNotFound if missing.
	Item(ctx context.Context, id ItemID) (Item, error)

	// ItemsByOrganization returns the organization's items.
	ItemsByOrganization(ctx context.Context, org OrgID) ([]Item, error)

	// ListItems returns every item. Used by the audit sweep.
	ListItems(ctx context.Context) ([]Item, error)
}

// =============================================================================
// AUTHORIZATION - Injected capability check
// =============================================================================

// Authorizer answers whether an actor holds the privileged (staff)
// capability required to approve transactions. Injected so the engine
// stays free of identity-system specifics.
type Authorizer interface {
	IsPrivileged(ctx context.Context, actor ActorID) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, actor ActorID) (bool, error)

func (f AuthorizerFunc) IsPrivileged(ctx context.Context, actor ActorID) (bool, error) {
	return f(ctx, actor)
}

// StaticAuthorizer is a fixed set of privileged actors. Dev and test use;
// production injects a real identity-system check.
func StaticAuthorizer(staff ...ActorID) Authorizer {
	set := make(map[ActorID]bool, len(staff))
	for _, a := range staff {
		set[a] = true
	}
	return AuthorizerFunc(func(_ context.Context, actor ActorID) (bool, error) {
		return set[actor], nil
	})
}
