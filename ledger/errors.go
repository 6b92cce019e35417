/*
errors.go - Centralized error types for the inventory engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with errors.Is / errors.As; structured errors
  carry the observed values a caller needs to explain a rejection.

ERROR CATEGORIES:
  1. Validation errors - Bad input, detected before any ledger write
  2. State errors      - Operation illegal in the loan's current state
  3. Integrity errors  - Ledger-derived invariant breach (a defect, not
     bad input; always logged and surfaced distinctly)
  4. Store errors      - Conflicts and lookup failures from persistence

PROPAGATION POLICY:
  Every validation error leaves the ledger untouched - there are no
  partial writes. ErrConflict marks a store-detected write race and is
  safe to retry as a whole operation.

SEE ALSO:
  - service.go: Produces validation and state errors
  - audit.go: Produces integrity violations
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidQuantity is returned for a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")

	// ErrInsufficientStock is returned when a loan or capped loss exceeds
	// the item's derived in-stock count.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrOverReturn is returned when a return would push a loan's cumulative
	// returned quantity past its loaned quantity.
	ErrOverReturn = errors.New("return exceeds outstanding loan balance")

	// ErrNotApproved is returned for a return against an unapproved loan.
	// Approval gates physical hand-out, so nothing can come back first.
	ErrNotApproved = errors.New("loan has not been approved")

	// ErrAlreadyApproved is returned when approving a loan twice.
	// Double approval is an error, not a no-op.
	ErrAlreadyApproved = errors.New("loan is already approved")

	// ErrPermissionDenied is returned when the approver lacks the
	// privileged capability.
	ErrPermissionDenied = errors.New("approver is not privileged")

	// ErrPastDueDate is returned when a loan's due date is earlier than
	// the current date.
	ErrPastDueDate = errors.New("due date is in the past")

	// ErrIntegrityViolation marks an audit-detected invariant breach.
	// It indicates a defect in a write-path guard, never user error.
	ErrIntegrityViolation = errors.New("ledger integrity violation")

	// ErrConflict is returned when the store detects a write race.
	// The whole operation is safe to resubmit.
	ErrConflict = errors.New("concurrent write conflict")

	// ErrItemNotFound is returned when a referenced item doesn't exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrLoanNotFound is returned when a referenced loan doesn't exist
	// or the referenced transaction is not a loan.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrOrgNotFound is returned when a referenced organization doesn't exist.
	ErrOrgNotFound = errors.New("organization not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError details a stock shortage.
type InsufficientStockError struct {
	ItemID    ItemID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: available %d, requested %d",
		e.ItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// OverReturnError details a return that exceeds the outstanding balance.
type OverReturnError struct {
	LoanID      LoanID
	Outstanding int
	Requested   int
}

func (e *OverReturnError) Error() string {
	return fmt.Sprintf("over-return on loan %s: outstanding %d, requested %d",
		e.LoanID, e.Outstanding, e.Requested)
}

func (e *OverReturnError) Unwrap() error {
	return ErrOverReturn
}

// IntegrityError wraps the violations an audit or post-write check found.
type IntegrityError struct {
	Violations []Violation
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity violation: %d invariant(s) breached", len(e.Violations))
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrityViolation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if resubmitting the same logical operation might
// succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid caller input or
// an operation illegal in the current state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrOverReturn) ||
		errors.Is(err, ErrNotApproved) ||
		errors.Is(err, ErrAlreadyApproved) ||
		errors.Is(err, ErrPastDueDate)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrOrgNotFound)
}
