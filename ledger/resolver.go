/*
resolver.go - Derived quantity computation

PURPOSE:
  Computes every stock metric for an item by re-aggregating the item's
  ledger. This is the central calculation that answers "how many are in
  stock?" - and because it is always recomputed from the ledger, it can
  never disagree with recorded history.

KEY INSIGHT:
  There are no cached counters. Correctness-first, performance-second:
  each call is O(ledger size per item). Callers that need repeated reads
  cache at their own layer; if ledgers grow large, add per-item summary
  counters guarded by the same transaction that appends the row, and keep
  this path as the audit ground truth.

METRIC DEFINITIONS:
  NItems    = sum(add)
  NLost     = sum(lose)
  NBorrowed = sum(loan) - sum(return)
  NInStock  = NItems - NBorrowed - NLost
  NLoanable = NItems - NLost

  Each aggregate is a sum-with-default-zero: an item with no transactions
  yields all-zero metrics, never an error.

SEE ALSO:
  - audit.go: Asserts the invariants over resolved metrics
  - service.go: Validates writes against resolved metrics
*/
package ledger

import "context"

// =============================================================================
// RESOLVER - Derived metrics from ledger contents
// =============================================================================

// Resolver computes derived stock metrics. It only reads.
type Resolver struct {
	Store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{Store: store}
}

// ItemMetrics computes all derived quantities for one item.
//
// A negative NInStock is returned as computed, not masked: the write-path
// guards make it unreachable, and the audit pass reports it as an
// integrity violation if it ever shows up.
func (r *Resolver) ItemMetrics(ctx context.Context, itemID ItemID) (ItemMetrics, error) {
	added, err := r.Store.SumByType(ctx, itemID, TxAdd)
	if err != nil {
		return ItemMetrics{}, err
	}
	lost, err := r.Store.SumByType(ctx, itemID, TxLose)
	if err != nil {
		return ItemMetrics{}, err
	}
	loaned, err := r.Store.SumByType(ctx, itemID, TxLoan)
	if err != nil {
		return ItemMetrics{}, err
	}
	returned, err := r.Store.SumByType(ctx, itemID, TxReturn)
	if err != nil {
		return ItemMetrics{}, err
	}

	borrowed := loaned - returned
	return ItemMetrics{
		NItems:    added,
		NLost:     lost,
		NBorrowed: borrowed,
		NInStock:  added - borrowed - lost,
		NLoanable: added - lost,
	}, nil
}

// LoanReturned computes a loan's cumulative returned quantity.
func (r *Resolver) LoanReturned(ctx context.Context, id LoanID) (int, error) {
	return r.Store.SumReturnsOf(ctx, id)
}

// LoanView resolves a loan row into its derived view (returned total and
// lifecycle state).
func (r *Resolver) LoanView(ctx context.Context, loan Transaction) (LoanView, error) {
	returned, err := r.Store.SumReturnsOf(ctx, loan.ID)
	if err != nil {
		return LoanView{}, err
	}
	return LoanView{Loan: loan, Returned: returned, State: StateOf(loan, returned)}, nil
}
