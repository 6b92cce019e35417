package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hacklab/inventory-engine/ledger"
	"github.com/hacklab/inventory-engine/ledger/store"
)

func newAuditFixture(t *testing.T) (*ledger.Auditor, *ledger.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := ledger.NewService(mem, mem, ledger.StaticAuthorizer(staffID))
	return ledger.NewAuditor(mem, mem), svc, mem
}

func TestAudit_CleanLedger_NoViolations(t *testing.T) {
	auditor, svc, mem := newAuditFixture(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Clean item")

	_, err := svc.AddStock(ctx, itemID, 10, "initial", staffID)
	require.NoError(t, err)
	loan, err := svc.CreateLoan(ctx, itemID, memberID, 4, dueNextWeek(), "ok")
	require.NoError(t, err)
	_, err = svc.ApproveLoan(ctx, loan.ID, staffID)
	require.NoError(t, err)
	_, err = svc.RecordReturn(ctx, loan.ID, 2, "half back")
	require.NoError(t, err)

	violations, err := auditor.Run(ctx, ledger.Scope{})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestAudit_CorruptedReturn_ReportsExactlyOneViolation(t *testing.T) {
	// GIVEN: Two approved loans of 4 each against 10 in stock, and a
	//        manually inserted Return of 5 against loan A (bypassing the
	//        service guards)
	// THEN: The audit reports exactly one violation, referencing loan A

	auditor, svc, mem := newAuditFixture(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Corrupted item")

	_, err := svc.AddStock(ctx, itemID, 10, "initial", staffID)
	require.NoError(t, err)
	loanA, err := svc.CreateLoan(ctx, itemID, memberID, 4, dueNextWeek(), "a")
	require.NoError(t, err)
	loanB, err := svc.CreateLoan(ctx, itemID, "member-2", 4, dueNextWeek(), "b")
	require.NoError(t, err)
	_, err = svc.ApproveLoan(ctx, loanA.ID, staffID)
	require.NoError(t, err)
	_, err = svc.ApproveLoan(ctx, loanB.ID, staffID)
	require.NoError(t, err)

	// Corrupt the ledger behind the service's back
	require.NoError(t, mem.Append(ctx, ledger.Transaction{
		ID:       ledger.NewTransactionID(),
		ItemID:   itemID,
		Type:     ledger.TxReturn,
		Quantity: 5,
		Loan:     loanA.ID,
	}))

	violations, err := auditor.Run(ctx, ledger.Scope{})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, ledger.InvariantReturnWithinLoan, violations[0].Invariant)
	assert.Equal(t, loanA.ID, violations[0].LoanID)
	assert.Equal(t, itemID, violations[0].ItemID)
}

func TestAudit_NegativeStock_Reported(t *testing.T) {
	// A loan larger than holdings can only exist if a guard was bypassed.
	auditor, svc, mem := newAuditFixture(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Oversold item")

	_, err := svc.AddStock(ctx, itemID, 10, "initial", staffID)
	require.NoError(t, err)

	staff := staffID
	require.NoError(t, mem.Append(ctx, ledger.Transaction{
		ID:        ledger.NewTransactionID(),
		ItemID:    itemID,
		Type:      ledger.TxLoan,
		Quantity:  20,
		Recipient: memberID,
		DueDate:   time.Now().AddDate(0, 0, 7),
		Approved:  true,
		Approver:  &staff,
	}))

	violations, err := auditor.Run(ctx, ledger.Scope{})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, ledger.InvariantStockNonNegative, violations[0].Invariant)
	assert.Equal(t, -10, violations[0].Metrics.NInStock)
}

func TestAudit_ApprovedWithoutApprover_Reported(t *testing.T) {
	auditor, _, mem := newAuditFixture(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Unsigned item")

	require.NoError(t, mem.Append(ctx, ledger.Transaction{
		ID: ledger.NewTransactionID(), ItemID: itemID, Type: ledger.TxAdd, Quantity: 5,
	}))
	require.NoError(t, mem.Append(ctx, ledger.Transaction{
		ID:        ledger.NewTransactionID(),
		ItemID:    itemID,
		Type:      ledger.TxLoan,
		Quantity:  2,
		Recipient: memberID,
		Approved:  true, // no approver recorded
	}))

	violations, err := auditor.Run(ctx, ledger.Scope{})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, ledger.InvariantApproverRecorded, violations[0].Invariant)
}

func TestAudit_ScopedToOrganization(t *testing.T) {
	// GIVEN: A corrupted item in org-2, a clean one in org-1
	// THEN: Auditing org-1 reports nothing; org-2 reports the breach

	auditor, _, mem := newAuditFixture(t)
	ctx := context.Background()

	require.NoError(t, mem.SaveOrganization(ctx, ledger.Organization{ID: "org-1", Name: "Hacklab"}))
	require.NoError(t, mem.SaveOrganization(ctx, ledger.Organization{ID: "org-2", Name: "Bikelab"}))

	clean := ledger.Item{ID: ledger.NewItemID(), Organization: "org-1", Name: "Clean"}
	dirty := ledger.Item{ID: ledger.NewItemID(), Organization: "org-2", Name: "Dirty"}
	require.NoError(t, mem.SaveItem(ctx, clean))
	require.NoError(t, mem.SaveItem(ctx, dirty))

	require.NoError(t, mem.Append(ctx, ledger.Transaction{
		ID: ledger.NewTransactionID(), ItemID: dirty.ID, Type: ledger.TxLose, Quantity: 3,
	}))

	violations, err := auditor.Run(ctx, ledger.Scope{Org: "org-1"})
	require.NoError(t, err)
	assert.Empty(t, violations)

	violations, err = auditor.Run(ctx, ledger.Scope{Org: "org-2"})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, dirty.ID, violations[0].ItemID)

	_, err = auditor.Run(ctx, ledger.Scope{Org: "org-404"})
	assert.ErrorIs(t, err, ledger.ErrOrgNotFound)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, ledger.IsClientError(ledger.ErrInvalidQuantity))
	assert.True(t, ledger.IsClientError(&ledger.OverReturnError{LoanID: "l", Outstanding: 1, Requested: 2}))
	assert.True(t, ledger.IsRetryable(ledger.ErrConflict))
	assert.False(t, ledger.IsRetryable(ledger.ErrInvalidQuantity))
	assert.True(t, ledger.IsNotFound(ledger.ErrItemNotFound))

	integrity := &ledger.IntegrityError{Violations: []ledger.Violation{{ItemID: "i"}}}
	assert.ErrorIs(t, integrity, ledger.ErrIntegrityViolation)
	assert.False(t, ledger.IsClientError(integrity))
}
