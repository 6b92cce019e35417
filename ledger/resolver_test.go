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

func TestResolver_EmptyLedger_AllZero(t *testing.T) {
	// An item with zero transactions yields all-zero metrics, never an error.
	mem := store.NewMemory()
	resolver := ledger.NewResolver(mem)

	metrics, err := resolver.ItemMetrics(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, ledger.ItemMetrics{}, metrics)
}

func TestResolver_MixedLedger(t *testing.T) {
	// GIVEN: adds 10+5, lose 2, loans 4+3, returns 1+2
	// THEN: n_items=15, n_lost=2, n_borrowed=4, n_instock=9, n_loanable=13

	mem := store.NewMemory()
	ctx := context.Background()
	itemID := ledger.NewItemID()

	loanA := ledger.NewTransactionID()
	loanB := ledger.NewTransactionID()
	rows := []ledger.Transaction{
		{ID: ledger.NewTransactionID(), ItemID: itemID, Type: ledger.TxAdd, Quantity: 10},
		{ID: ledger.NewTransactionID(), ItemID: itemID, Type: ledger.TxAdd, Quantity: 5},
		{ID: ledger.NewTransactionID(), ItemID: itemID, Type: ledger.TxLose, Quantity: 2},
		{ID: loanA, ItemID: itemID, Type: ledger.TxLoan, Quantity: 4, Recipient: "m-1"},
		{ID: loanB, ItemID: itemID, Type: ledger.TxLoan, Quantity: 3, Recipient: "m-2"},
		{ID: ledger.NewTransactionID(), ItemID: itemID, Type: ledger.TxReturn, Quantity: 1, Loan: loanA},
		{ID: ledger.NewTransactionID(), ItemID: itemID, Type: ledger.TxReturn, Quantity: 2, Loan: loanB},
	}
	for _, tx := range rows {
		require.NoError(t, mem.Append(ctx, tx))
	}

	resolver := ledger.NewResolver(mem)
	metrics, err := resolver.ItemMetrics(ctx, itemID)
	require.NoError(t, err)

	assert.Equal(t, ledger.ItemMetrics{
		NItems:    15,
		NLost:     2,
		NBorrowed: 4,
		NInStock:  9,
		NLoanable: 13,
	}, metrics)

	// Invariant: n_instock = n_items - n_borrowed - n_lost
	assert.Equal(t, metrics.NItems-metrics.NBorrowed-metrics.NLost, metrics.NInStock)

	// Per-loan progress
	returnedA, err := resolver.LoanReturned(ctx, loanA)
	require.NoError(t, err)
	assert.Equal(t, 1, returnedA)
	returnedB, err := resolver.LoanReturned(ctx, loanB)
	require.NoError(t, err)
	assert.Equal(t, 2, returnedB)
}

func TestStateOf_Transitions(t *testing.T) {
	due := time.Now().AddDate(0, 0, 7)
	loan := ledger.Transaction{
		ID: "loan-1", Type: ledger.TxLoan, Quantity: 4, DueDate: due,
	}

	assert.Equal(t, ledger.LoanRequested, ledger.StateOf(loan, 0))

	loan.Approved = true
	assert.Equal(t, ledger.LoanApproved, ledger.StateOf(loan, 0))
	assert.Equal(t, ledger.LoanPartiallyReturned, ledger.StateOf(loan, 1))
	assert.Equal(t, ledger.LoanPartiallyReturned, ledger.StateOf(loan, 3))
	assert.Equal(t, ledger.LoanFullyReturned, ledger.StateOf(loan, 4))
}

func TestLoanView_IsReturned(t *testing.T) {
	// is_returned holds exactly when returned == quantity
	loan := ledger.Transaction{ID: "loan-1", Type: ledger.TxLoan, Quantity: 3, Approved: true}

	partial := ledger.LoanView{Loan: loan, Returned: 2, State: ledger.StateOf(loan, 2)}
	assert.False(t, partial.IsReturned())
	assert.Equal(t, 1, partial.Outstanding())

	full := ledger.LoanView{Loan: loan, Returned: 3, State: ledger.StateOf(loan, 3)}
	assert.True(t, full.IsReturned())
	assert.Equal(t, 0, full.Outstanding())
}
