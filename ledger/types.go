/*
Package ledger provides the core inventory reconciliation engine.

PURPOSE:
  This package contains the types and algorithms for tracking physical
  inventory through an append-only transaction ledger. Stock counts are
  never stored directly - they are always derived by re-aggregating the
  ledger, so they cannot drift out of sync with recorded history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: An immutable ledger entry with a variant tag
    (add / lose / loan / return)
  - Item: A catalog entry owned by an organization; all its stock
    numbers are derived, never stored
  - ItemMetrics: The derived quantities for one item
  - LoanState: Derived lifecycle position of a loan

DESIGN PRINCIPLES:
  1. Immutability: Ledger rows are never edited or deleted. The single
     exception is flipping a loan's approved flag, which must record the
     approver in the same write.
  2. Derivation: n_items, n_lost, n_borrowed, n_instock, n_loanable and a
     loan's returned total are computed from the ledger on every read.
  3. Type Safety: Strong typing for IDs prevents mixing item, loan and
     actor identifiers.
  4. Closed variants: One record type with a variant tag replaces a
     subtype hierarchy, keeping all invariant logic in one place.

USAGE:
  tx := ledger.Transaction{
      ID:       ledger.NewTransactionID(),
      ItemID:   itemID,
      Type:     ledger.TxAdd,
      Quantity: 10,
  }

SEE ALSO:
  - resolver.go: Derived metric computation
  - service.go: Loan state machine and stock operations
  - store.go: Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type TransactionID string
type LoanID = TransactionID
type ActorID string
type OrgID string

// NewItemID returns a fresh UUID-based item identifier.
func NewItemID() ItemID {
	return ItemID(uuid.NewString())
}

// NewTransactionID returns a fresh UUID-based transaction identifier.
func NewTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

// =============================================================================
// CATALOG ENTITIES
// =============================================================================

// Organization owns items. Deleting an organization cascades to its items
// and their ledger; cascade semantics belong to the store, not this package.
type Organization struct {
	ID          OrgID
	Name        string
	Description string
	CreatedAt   time.Time
}

// Item is a catalog entry. It carries NO stock numbers: every quantity is
// derived from the ledger via the Resolver.
type Item struct {
	ID           ItemID
	Organization OrgID
	Name         string
	Description  string
	Tags         []string
	CreatedAt    time.Time
}

// =============================================================================
// TRANSACTION - Immutable ledger entry with a variant tag
// =============================================================================

type TxType string

const (
	TxAdd    TxType = "add"    // Increases total owned count
	TxLose   TxType = "lose"   // Removes from circulation without a loan
	TxLoan   TxType = "loan"   // Reserves stock for a recipient
	TxReturn TxType = "return" // Reduces the outstanding quantity of one loan
)

// Transaction is one ledger row. Quantity is always positive; the variant
// tag determines its effect on derived metrics.
//
// Loan-only fields: Recipient, DueDate, Approved.
// Return-only field: Loan (the loan this return reduces, exactly one).
//
// Approver is set on any row that a privileged actor signed off on. A loan
// with Approved=true must always carry a non-nil Approver.
type Transaction struct {
	ID          TransactionID
	ItemID      ItemID
	Type        TxType
	Quantity    int
	Description string
	Approver    *ActorID
	CreatedAt   time.Time

	// Loan variant
	Recipient ActorID
	DueDate   time.Time
	Approved  bool

	// Return variant
	Loan LoanID
}

// IsLoan reports whether the row is a loan.
func (t Transaction) IsLoan() bool { return t.Type == TxLoan }

// IsReturn reports whether the row is a return.
func (t Transaction) IsReturn() bool { return t.Type == TxReturn }

// =============================================================================
// ITEM METRICS - Derived quantities for one item
// =============================================================================

// ItemMetrics holds the derived stock figures for an item.
//
// INVARIANTS (after every successful write):
//   NItems    = sum of add quantities
//   NLost     = sum of lose quantities
//   NBorrowed = sum of loan quantities - sum of return quantities
//   NInStock  = NItems - NBorrowed - NLost, never negative
//   NLoanable = NItems - NLost
type ItemMetrics struct {
	NItems    int `json:"n_items"`
	NLost     int `json:"n_lost"`
	NBorrowed int `json:"n_borrowed"`
	NInStock  int `json:"n_instock"`
	NLoanable int `json:"n_loanable"`
}

// =============================================================================
// LOAN STATE - Derived, not stored
// =============================================================================

// LoanState positions a loan in its lifecycle. Approval and return progress
// are independent axes recorded on the same row; the derived state collapses
// them into the commonly asked question "where is this loan?".
type LoanState string

const (
	LoanRequested         LoanState = "requested"          // approved=false, no returns accepted yet
	LoanApproved          LoanState = "approved"           // approved=true, nothing returned
	LoanPartiallyReturned LoanState = "partially_returned" // 0 < returned < quantity
	LoanFullyReturned     LoanState = "fully_returned"     // returned == quantity, terminal
)

// StateOf derives the lifecycle state of a loan given its cumulative
// returned quantity.
func StateOf(loan Transaction, returned int) LoanState {
	switch {
	case returned >= loan.Quantity:
		return LoanFullyReturned
	case returned > 0:
		return LoanPartiallyReturned
	case loan.Approved:
		return LoanApproved
	default:
		return LoanRequested
	}
}

// LoanView pairs a loan row with its derived return progress. This is what
// presentation layers partition into waiting-approval / on-loan / history.
type LoanView struct {
	Loan     Transaction
	Returned int
	State    LoanState
}

// IsReturned reports whether the loan is fully returned.
func (v LoanView) IsReturned() bool { return v.Returned == v.Loan.Quantity }

// Outstanding returns the quantity still out.
func (v LoanView) Outstanding() int { return v.Loan.Quantity - v.Returned }
