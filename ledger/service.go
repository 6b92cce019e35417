/*
service.go - Loan state machine and stock operations

PURPOSE:
  Governs every write to the ledger: loan creation, approval, returns,
  stock additions and losses. Each operation is "read current aggregates,
  validate, append" executed as one atomic unit scoped to the item, so
  two concurrent writers can never both succeed on aggregates that each
  other invalidated.

LOAN LIFECYCLE:

  CreateLoan            ApproveLoan          RecordReturn
      │                     │                     │
      ▼                     ▼                     ▼
  ┌───────────┐       ┌──────────┐       ┌────────────────────┐
  │ Requested │──────▶│ Approved │──────▶│ PartiallyReturned  │
  └───────────┘       └──────────┘       └────────────────────┘
                                                  │
                                                  ▼
                                         ┌────────────────┐
                                         │ FullyReturned  │  (terminal)
                                         └────────────────┘

  Approval and return progress are independent axes on the same row, but
  no return is accepted before approval - approval gates physical
  hand-out.

VALIDATION ORDER:
  All validation happens before any ledger write; a rejected operation
  leaves the ledger untouched. After appending, the would-be state is
  re-checked inside the same critical section (pre-commit guard); a
  violation there rolls everything back and surfaces as IntegrityError,
  which means a guard has a bug, not that the input was bad.

AUTHORIZATION:
  Any operation that records an approver verifies the approver holds the
  privileged capability via the injected Authorizer before anything
  commits.

RETRIES:
  The service builds in none. ErrConflict from the store is retryable by
  resubmitting the whole operation; every operation here is naturally
  idempotent-by-rejection except CreateLoan, which appends a new row per
  call.

SEE ALSO:
  - resolver.go: Aggregate reads
  - audit.go: Shared invariant checks used as the pre-commit guard
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service is the write path of the inventory engine.
type Service struct {
	Store   TxStore
	Catalog Catalog
	Auth    Authorizer

	// CapLosses rejects losses exceeding the current in-stock count.
	// Policy choice: with it off, recording the loss of an item that is
	// currently out on loan is allowed and n_instock absorbs it when the
	// loan resolves.
	CapLosses bool

	// Now is the clock used for due-date checks. Tests override it.
	Now func() time.Time
}

// NewService creates a service with the default policy (losses capped).
func NewService(store TxStore, catalog Catalog, auth Authorizer) *Service {
	return &Service{
		Store:     store,
		Catalog:   catalog,
		Auth:      auth,
		CapLosses: true,
		Now:       time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// =============================================================================
// LOAN STATE MACHINE
// =============================================================================

// CreateLoan appends a loan transaction for the item.
//
// Fails with ErrInvalidQuantity, ErrPastDueDate, ErrItemNotFound, or
// InsufficientStockError if quantity exceeds the item's derived in-stock
// count at commit time. The new loan starts unapproved with no approver.
func (s *Service) CreateLoan(ctx context.Context, itemID ItemID, recipient ActorID, quantity int, dueDate time.Time, description string) (*Transaction, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	// Due dates are compared at day granularity: due today is fine,
	// due yesterday is not.
	today := s.now().Truncate(24 * time.Hour)
	if dueDate.Before(today) {
		return nil, ErrPastDueDate
	}
	if _, err := s.Catalog.Item(ctx, itemID); err != nil {
		return nil, err
	}

	loan := Transaction{
		ID:          NewTransactionID(),
		ItemID:      itemID,
		Type:        TxLoan,
		Quantity:    quantity,
		Description: description,
		Recipient:   recipient,
		DueDate:     dueDate,
		Approved:    false,
		CreatedAt:   s.now(),
	}

	err := s.Store.WithItemLock(ctx, itemID, func(store Store) error {
		metrics, err := NewResolver(store).ItemMetrics(ctx, itemID)
		if err != nil {
			return err
		}
		if quantity > metrics.NInStock {
			return &InsufficientStockError{ItemID: itemID, Available: metrics.NInStock, Requested: quantity}
		}
		if err := store.Append(ctx, loan); err != nil {
			return err
		}
		return s.guard(ctx, store, itemID)
	})
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// ApproveLoan flips a loan's approved flag and records the approver.
//
// Fails with ErrPermissionDenied if the approver is not privileged, and
// with ErrAlreadyApproved if the flag is already set - double approval is
// an error, not a no-op. A nil approver can never reach the store: the
// approver is recorded in the same write that sets the flag.
func (s *Service) ApproveLoan(ctx context.Context, id LoanID, approver ActorID) (*Transaction, error) {
	if err := s.requirePrivileged(ctx, approver); err != nil {
		return nil, err
	}

	loan, err := s.Store.Loan(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.Store.WithItemLock(ctx, loan.ItemID, func(store Store) error {
		// Re-read under the lock: the snapshot above may be stale.
		current, err := store.Loan(ctx, id)
		if err != nil {
			return err
		}
		if current.Approved {
			return ErrAlreadyApproved
		}
		return store.Approve(ctx, id, approver)
	})
	if err != nil {
		return nil, err
	}

	loan.Approved = true
	loan.Approver = &approver
	return &loan, nil
}

// RecordReturn appends a return transaction against exactly one loan.
//
// Fails with ErrInvalidQuantity, ErrNotApproved for an unapproved loan,
// and OverReturnError if the return would push the loan's cumulative
// returned quantity past its loaned quantity. A fully-returned loan is
// terminal: any further return is an over-return.
func (s *Service) RecordReturn(ctx context.Context, id LoanID, quantity int, description string) (*Transaction, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	loan, err := s.Store.Loan(ctx, id)
	if err != nil {
		return nil, err
	}

	ret := Transaction{
		ID:          NewTransactionID(),
		ItemID:      loan.ItemID,
		Type:        TxReturn,
		Quantity:    quantity,
		Description: description,
		Loan:        id,
		CreatedAt:   s.now(),
	}

	err = s.Store.WithItemLock(ctx, loan.ItemID, func(store Store) error {
		current, err := store.Loan(ctx, id)
		if err != nil {
			return err
		}
		if !current.Approved {
			return ErrNotApproved
		}
		returned, err := store.SumReturnsOf(ctx, id)
		if err != nil {
			return err
		}
		if returned+quantity > current.Quantity {
			return &OverReturnError{LoanID: id, Outstanding: current.Quantity - returned, Requested: quantity}
		}
		if err := store.Append(ctx, ret); err != nil {
			return err
		}
		return s.guard(ctx, store, loan.ItemID)
	})
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// =============================================================================
// STOCK OPERATIONS
// =============================================================================

// AddStock appends an add transaction, increasing the item's total owned
// count. If an approver is given it is verified and recorded.
func (s *Service) AddStock(ctx context.Context, itemID ItemID, quantity int, description string, approver ActorID) (*Transaction, error) {
	return s.appendStock(ctx, itemID, TxAdd, quantity, description, approver)
}

// LoseStock appends a lose transaction, removing items from circulation
// without a loan. With CapLosses set (the default), a loss exceeding the
// current in-stock count fails with InsufficientStockError.
func (s *Service) LoseStock(ctx context.Context, itemID ItemID, quantity int, description string, approver ActorID) (*Transaction, error) {
	return s.appendStock(ctx, itemID, TxLose, quantity, description, approver)
}

func (s *Service) appendStock(ctx context.Context, itemID ItemID, t TxType, quantity int, description string, approver ActorID) (*Transaction, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if approver != "" {
		if err := s.requirePrivileged(ctx, approver); err != nil {
			return nil, err
		}
	}
	if _, err := s.Catalog.Item(ctx, itemID); err != nil {
		return nil, err
	}

	tx := Transaction{
		ID:          NewTransactionID(),
		ItemID:      itemID,
		Type:        t,
		Quantity:    quantity,
		Description: description,
		CreatedAt:   s.now(),
	}
	if approver != "" {
		tx.Approver = &approver
	}

	err := s.Store.WithItemLock(ctx, itemID, func(store Store) error {
		if t == TxLose && s.CapLosses {
			metrics, err := NewResolver(store).ItemMetrics(ctx, itemID)
			if err != nil {
				return err
			}
			if quantity > metrics.NInStock {
				return &InsufficientStockError{ItemID: itemID, Available: metrics.NInStock, Requested: quantity}
			}
		}
		if err := store.Append(ctx, tx); err != nil {
			return err
		}
		return s.guard(ctx, store, itemID)
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// =============================================================================
// READS
// =============================================================================

// ItemMetrics returns the item's derived stock figures. Reporting reads
// run outside the per-item lock; they may observe a snapshot and never
// block writers.
func (s *Service) ItemMetrics(ctx context.Context, itemID ItemID) (ItemMetrics, error) {
	if _, err := s.Catalog.Item(ctx, itemID); err != nil {
		return ItemMetrics{}, err
	}
	return NewResolver(s.Store).ItemMetrics(ctx, itemID)
}

// ItemLedger returns the item's full transaction history, chronologically.
func (s *Service) ItemLedger(ctx context.Context, itemID ItemID) ([]Transaction, error) {
	if _, err := s.Catalog.Item(ctx, itemID); err != nil {
		return nil, err
	}
	return s.Store.TransactionsByItem(ctx, itemID)
}

// LoansForUser returns the recipient's loans with derived state, newest
// first. Callers partition them into waiting-approval (unapproved),
// on-loan (approved, not fully returned) and history (fully returned).
func (s *Service) LoansForUser(ctx context.Context, recipient ActorID) ([]LoanView, error) {
	loans, err := s.Store.LoansByRecipient(ctx, recipient)
	if err != nil {
		return nil, err
	}
	resolver := NewResolver(s.Store)
	views := make([]LoanView, 0, len(loans))
	for _, loan := range loans {
		view, err := resolver.LoanView(ctx, loan)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (s *Service) requirePrivileged(ctx context.Context, actor ActorID) error {
	if actor == "" {
		return ErrPermissionDenied
	}
	ok, err := s.Auth.IsPrivileged(ctx, actor)
	if err != nil {
		return fmt.Errorf("authorization check failed: %w", err)
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

// guard re-checks the written item's invariants inside the critical
// section. A violation rolls the whole unit back.
func (s *Service) guard(ctx context.Context, store Store, itemID ItemID) error {
	auditor := &Auditor{Store: store, resolver: NewResolver(store)}
	violations, err := auditor.CheckItem(ctx, itemID)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return &IntegrityError{Violations: violations}
	}
	return nil
}
