/*
audit.go - Reconciliation validator

PURPOSE:
  Recomputes every item's derived metrics from the ledger and asserts the
  system invariants. Violations are collected, not thrown on first
  failure, so a full audit report can be produced in one sweep.

TWO USES:
  1. Offline consistency sweep: Run() over an organization or the whole
     store, producing a violation report.
  2. Pre-commit guard: the Service re-checks the written item inside the
     same critical section before the store commits. Any violation there
     rolls the write back and surfaces as an IntegrityError - it means a
     validation guard has a bug, not that the caller sent bad input.

INVARIANTS CHECKED:
  - NInStock >= 0
  - NBorrowed >= 0
  - For every loan: returned <= quantity
  - For every approved loan: approver recorded

SEE ALSO:
  - resolver.go: Supplies the recomputed metrics
  - service.go: Runs CheckItem as the pre-commit guard
*/
package ledger

import (
	"context"
	"fmt"
)

// =============================================================================
// VIOLATIONS
// =============================================================================

// Invariant names which rule a violation breached.
type Invariant string

const (
	InvariantStockNonNegative    Invariant = "instock_non_negative"
	InvariantBorrowedNonNegative Invariant = "borrowed_non_negative"
	InvariantReturnWithinLoan    Invariant = "returned_within_loan"
	InvariantApproverRecorded    Invariant = "approver_recorded"
)

// Violation records one invariant breach with the observed values.
type Violation struct {
	ItemID    ItemID      `json:"item_id"`
	LoanID    LoanID      `json:"loan_id,omitempty"`
	Invariant Invariant   `json:"invariant"`
	Detail    string      `json:"detail"`
	Metrics   ItemMetrics `json:"metrics"`
}

// Scope limits an audit run. The zero value means the whole store.
type Scope struct {
	Org OrgID
}

// =============================================================================
// AUDITOR
// =============================================================================

// Auditor cross-checks ledger-derived totals against the invariants.
type Auditor struct {
	Store    Store
	Catalog  Catalog
	resolver *Resolver
}

func NewAuditor(store Store, catalog Catalog) *Auditor {
	return &Auditor{Store: store, Catalog: catalog, resolver: NewResolver(store)}
}

// Run sweeps every item in scope and returns all violations found.
// An empty slice means the ledger is consistent.
func (a *Auditor) Run(ctx context.Context, scope Scope) ([]Violation, error) {
	var items []Item
	var err error
	if scope.Org != "" {
		if _, err = a.Catalog.Organization(ctx, scope.Org); err != nil {
			return nil, err
		}
		items, err = a.Catalog.ItemsByOrganization(ctx, scope.Org)
	} else {
		items, err = a.Catalog.ListItems(ctx)
	}
	if err != nil {
		return nil, err
	}

	violations := []Violation{}
	for _, item := range items {
		vs, err := a.CheckItem(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		violations = append(violations, vs...)
	}
	return violations, nil
}

// CheckItem recomputes one item's metrics and loan progress and returns
// every invariant breach. Also the pre-commit guard used by the Service.
func (a *Auditor) CheckItem(ctx context.Context, itemID ItemID) ([]Violation, error) {
	metrics, err := a.resolver.ItemMetrics(ctx, itemID)
	if err != nil {
		return nil, err
	}

	violations := CheckMetrics(itemID, metrics)

	loans, err := a.Store.LoansByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	for _, loan := range loans {
		returned, err := a.Store.SumReturnsOf(ctx, loan.ID)
		if err != nil {
			return nil, err
		}
		violations = append(violations, CheckLoan(loan, returned, metrics)...)
	}
	return violations, nil
}

// =============================================================================
// PURE CHECKS - Shared between audit sweep and write-path guard
// =============================================================================

// CheckMetrics asserts the item-level invariants over resolved metrics.
func CheckMetrics(itemID ItemID, m ItemMetrics) []Violation {
	var violations []Violation
	if m.NInStock < 0 {
		violations = append(violations, Violation{
			ItemID:    itemID,
			Invariant: InvariantStockNonNegative,
			Detail:    fmt.Sprintf("n_instock = %d", m.NInStock),
			Metrics:   m,
		})
	}
	if m.NBorrowed < 0 {
		violations = append(violations, Violation{
			ItemID:    itemID,
			Invariant: InvariantBorrowedNonNegative,
			Detail:    fmt.Sprintf("n_borrowed = %d", m.NBorrowed),
			Metrics:   m,
		})
	}
	return violations
}

// CheckLoan asserts the loan-level invariants given the loan's cumulative
// returned quantity.
func CheckLoan(loan Transaction, returned int, m ItemMetrics) []Violation {
	var violations []Violation
	if returned > loan.Quantity {
		violations = append(violations, Violation{
			ItemID:    loan.ItemID,
			LoanID:    loan.ID,
			Invariant: InvariantReturnWithinLoan,
			Detail:    fmt.Sprintf("returned %d of %d loaned", returned, loan.Quantity),
			Metrics:   m,
		})
	}
	if loan.Approved && loan.Approver == nil {
		violations = append(violations, Violation{
			ItemID:    loan.ItemID,
			LoanID:    loan.ID,
			Invariant: InvariantApproverRecorded,
			Detail:    "approved loan has no approver",
			Metrics:   m,
		})
	}
	return violations
}
