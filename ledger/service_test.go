package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hacklab/inventory-engine/ledger"
	"github.com/hacklab/inventory-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	staffID  ledger.ActorID = "staff-1"
	memberID ledger.ActorID = "member-1"
)

func newTestService(t *testing.T) (*ledger.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := ledger.NewService(mem, mem, ledger.StaticAuthorizer(staffID))
	return svc, mem
}

func seedItem(t *testing.T, mem *store.Memory, name string) ledger.ItemID {
	t.Helper()
	ctx := context.Background()
	org := ledger.Organization{ID: "org-1", Name: "Hacklab"}
	require.NoError(t, mem.SaveOrganization(ctx, org))

	item := ledger.Item{ID: ledger.NewItemID(), Organization: org.ID, Name: name}
	require.NoError(t, mem.SaveItem(ctx, item))
	return item.ID
}

func dueNextWeek() time.Time {
	return time.Now().AddDate(0, 0, 7)
}

// =============================================================================
// LOAN LIFECYCLE
// =============================================================================

func TestLoanLifecycle_FullScenario(t *testing.T) {
	// GIVEN: An item with a single add of 10
	// WHEN: Loan 4, approve, return 2, over-return 3, return 2
	// THEN: Metrics and loan state track every step

	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Soldering iron")

	_, err := svc.AddStock(ctx, itemID, 10, "initial purchase", staffID)
	require.NoError(t, err)

	loan, err := svc.CreateLoan(ctx, itemID, memberID, 4, dueNextWeek(), "workshop weekend")
	require.NoError(t, err)
	assert.False(t, loan.Approved)
	assert.Nil(t, loan.Approver)

	metrics, err := svc.ItemMetrics(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 6, metrics.NInStock)
	assert.Equal(t, 4, metrics.NBorrowed)

	approved, err := svc.ApproveLoan(ctx, loan.ID, staffID)
	require.NoError(t, err)
	assert.True(t, approved.Approved)
	require.NotNil(t, approved.Approver)
	assert.Equal(t, staffID, *approved.Approver)

	_, err = svc.RecordReturn(ctx, loan.ID, 2, "returned half")
	require.NoError(t, err)

	views, err := svc.LoansForUser(ctx, memberID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, ledger.LoanPartiallyReturned, views[0].State)
	assert.Equal(t, 2, views[0].Outstanding())

	metrics, err = svc.ItemMetrics(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.NBorrowed)

	// 2 already back, 3 more would exceed the loaned 4
	_, err = svc.RecordReturn(ctx, loan.ID, 3, "too much")
	assert.ErrorIs(t, err, ledger.ErrOverReturn)
	var overErr *ledger.OverReturnError
	require.ErrorAs(t, err, &overErr)
	assert.Equal(t, 2, overErr.Outstanding)
	assert.Equal(t, 3, overErr.Requested)

	_, err = svc.RecordReturn(ctx, loan.ID, 2, "rest returned")
	require.NoError(t, err)

	views, err = svc.LoansForUser(ctx, memberID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, ledger.LoanFullyReturned, views[0].State)
	assert.True(t, views[0].IsReturned())

	metrics, err = svc.ItemMetrics(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.NBorrowed)
	assert.Equal(t, 10, metrics.NInStock)
}

func TestCreateLoan_InsufficientStock(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Multimeter")

	_, err := svc.AddStock(ctx, itemID, 3, "initial", staffID)
	require.NoError(t, err)

	_, err = svc.CreateLoan(ctx, itemID, memberID, 5, dueNextWeek(), "too many")
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)

	// Nothing was written
	metrics, err := svc.ItemMetrics(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.NBorrowed)
}

func TestCreateLoan_InvalidQuantity(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Oscilloscope")

	for _, quantity := range []int{0, -1} {
		_, err := svc.CreateLoan(ctx, itemID, memberID, quantity, dueNextWeek(), "bad")
		assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)
	}
}

func TestCreateLoan_PastDueDate(t *testing.T) {
	// GIVEN: The clock pinned to March 10
	// WHEN: Requesting a loan due March 9 / March 10 / March 11
	// THEN: Yesterday fails, today and tomorrow pass validation

	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Projector")

	_, err := svc.AddStock(ctx, itemID, 5, "initial", staffID)
	require.NoError(t, err)

	march10 := time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)
	svc.Now = func() time.Time { return march10 }

	_, err = svc.CreateLoan(ctx, itemID, memberID, 1, march10.AddDate(0, 0, -1), "late")
	assert.ErrorIs(t, err, ledger.ErrPastDueDate)

	_, err = svc.CreateLoan(ctx, itemID, memberID, 1, march10, "today")
	assert.NoError(t, err)

	_, err = svc.CreateLoan(ctx, itemID, memberID, 1, march10.AddDate(0, 0, 1), "tomorrow")
	assert.NoError(t, err)
}

func TestCreateLoan_UnknownItem(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateLoan(ctx, "no-such-item", memberID, 1, dueNextWeek(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrItemNotFound)
}

// =============================================================================
// APPROVAL
// =============================================================================

func TestApproveLoan_RequiresPrivilege(t *testing.T) {
	// GIVEN: A pending loan
	// WHEN: A non-staff actor approves it
	// THEN: PermissionDenied, and the loan stays unapproved

	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Drill")

	_, err := svc.AddStock(ctx, itemID, 2, "initial", staffID)
	require.NoError(t, err)
	loan, err := svc.CreateLoan(ctx, itemID, memberID, 1, dueNextWeek(), "diy")
	require.NoError(t, err)

	_, err = svc.ApproveLoan(ctx, loan.ID, memberID)
	assert.ErrorIs(t, err, ledger.ErrPermissionDenied)

	_, err = svc.ApproveLoan(ctx, loan.ID, "")
	assert.ErrorIs(t, err, ledger.ErrPermissionDenied)

	stored, err := mem.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.False(t, stored.Approved)
	assert.Nil(t, stored.Approver)
}

func TestApproveLoan_Twice_Rejected(t *testing.T) {
	// Double approval is an error, not a no-op.
	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Camera")

	_, err := svc.AddStock(ctx, itemID, 2, "initial", staffID)
	require.NoError(t, err)
	loan, err := svc.CreateLoan(ctx, itemID, memberID, 1, dueNextWeek(), "shoot")
	require.NoError(t, err)

	_, err = svc.ApproveLoan(ctx, loan.ID, staffID)
	require.NoError(t, err)

	_, err = svc.ApproveLoan(ctx, loan.ID, staffID)
	assert.ErrorIs(t, err, ledger.ErrAlreadyApproved)
}

func TestApproveLoan_UnknownLoan(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ApproveLoan(context.Background(), "no-such-loan", staffID)
	assert.ErrorIs(t, err, ledger.ErrLoanNotFound)
}

// =============================================================================
// RETURNS
// =============================================================================

func TestRecordReturn_BeforeApproval_Rejected(t *testing.T) {
	// Approval gates physical hand-out; nothing can come back first.
	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Label printer")

	_, err := svc.AddStock(ctx, itemID, 3, "initial", staffID)
	require.NoError(t, err)
	loan, err := svc.CreateLoan(ctx, itemID, memberID, 2, dueNextWeek(), "labels")
	require.NoError(t, err)

	_, err = svc.RecordReturn(ctx, loan.ID, 1, "premature")
	assert.ErrorIs(t, err, ledger.ErrNotApproved)
}

func TestRecordReturn_FullyReturnedIsTerminal(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Tripod")

	_, err := svc.AddStock(ctx, itemID, 2, "initial", staffID)
	require.NoError(t, err)
	loan, err := svc.CreateLoan(ctx, itemID, memberID, 1, dueNextWeek(), "stand")
	require.NoError(t, err)
	_, err = svc.ApproveLoan(ctx, loan.ID, staffID)
	require.NoError(t, err)
	_, err = svc.RecordReturn(ctx, loan.ID, 1, "back")
	require.NoError(t, err)

	_, err = svc.RecordReturn(ctx, loan.ID, 1, "again")
	assert.ErrorIs(t, err, ledger.ErrOverReturn)
}

func TestRecordReturn_InvalidQuantity(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RecordReturn(context.Background(), "whatever", 0, "zero")
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)
}

// =============================================================================
// STOCK OPERATIONS
// =============================================================================

func TestLoseStock_Scenario(t *testing.T) {
	// GIVEN: An item with n_items = 10 and no other transactions
	// WHEN: LoseStock(3)
	// THEN: n_lost=3, n_loanable=7, n_instock=7

	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Raspberry Pi")

	_, err := svc.AddStock(ctx, itemID, 10, "initial", staffID)
	require.NoError(t, err)

	_, err = svc.LoseStock(ctx, itemID, 3, "water damage", staffID)
	require.NoError(t, err)

	metrics, err := svc.ItemMetrics(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 3, metrics.NLost)
	assert.Equal(t, 7, metrics.NLoanable)
	assert.Equal(t, 7, metrics.NInStock)
}

func TestLoseStock_CappedByInStock(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "HDMI cable")

	_, err := svc.AddStock(ctx, itemID, 2, "initial", staffID)
	require.NoError(t, err)

	_, err = svc.LoseStock(ctx, itemID, 5, "impossible", staffID)
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// Uncapped losses are a policy choice
	svc.CapLosses = false
	_, err = svc.LoseStock(ctx, itemID, 5, "written off while on loan", staffID)
	assert.NoError(t, err)
}

func TestAddStock_UnprivilegedApprover_Rejected(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Ethernet switch")

	_, err := svc.AddStock(ctx, itemID, 1, "donation", memberID)
	assert.ErrorIs(t, err, ledger.ErrPermissionDenied)

	// No approver recorded is fine for a plain add
	_, err = svc.AddStock(ctx, itemID, 1, "donation", "")
	assert.NoError(t, err)
}

func TestAddStock_InvalidQuantity(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Patch cable")

	_, err := svc.AddStock(ctx, itemID, -2, "bad", staffID)
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)
}

// =============================================================================
// CONCURRENCY - Check-then-act races must not both succeed
// =============================================================================

func TestCreateLoan_ConcurrentOverdraw_ExactlyOneSucceeds(t *testing.T) {
	// GIVEN: An item with n_instock = 5
	// WHEN: Two concurrent CreateLoan calls each request 3
	// THEN: Exactly one succeeds and one fails with InsufficientStock

	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Contested item")

	_, err := svc.AddStock(ctx, itemID, 5, "initial", staffID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.CreateLoan(ctx, itemID, memberID, 3, dueNextWeek(), "race")
		}(i)
	}
	close(start)
	wg.Wait()

	successes, shortages := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ledger.ErrInsufficientStock):
			shortages++
		}
	}
	assert.Equal(t, 1, successes, "exactly one loan must win the race")
	assert.Equal(t, 1, shortages, "the loser must see InsufficientStock")

	metrics, err := svc.ItemMetrics(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.NInStock)
	assert.GreaterOrEqual(t, metrics.NInStock, 0)
}

// =============================================================================
// USER VIEWS
// =============================================================================

func TestLoansForUser_Partitions(t *testing.T) {
	// The three buckets a caller partitions into: waiting approval,
	// on loan, history.
	svc, mem := newTestService(t)
	ctx := context.Background()
	itemID := seedItem(t, mem, "Bike")

	_, err := svc.AddStock(ctx, itemID, 10, "initial", staffID)
	require.NoError(t, err)

	pending, err := svc.CreateLoan(ctx, itemID, memberID, 1, dueNextWeek(), "pending")
	require.NoError(t, err)

	active, err := svc.CreateLoan(ctx, itemID, memberID, 2, dueNextWeek(), "active")
	require.NoError(t, err)
	_, err = svc.ApproveLoan(ctx, active.ID, staffID)
	require.NoError(t, err)

	done, err := svc.CreateLoan(ctx, itemID, memberID, 1, dueNextWeek(), "done")
	require.NoError(t, err)
	_, err = svc.ApproveLoan(ctx, done.ID, staffID)
	require.NoError(t, err)
	_, err = svc.RecordReturn(ctx, done.ID, 1, "back")
	require.NoError(t, err)

	views, err := svc.LoansForUser(ctx, memberID)
	require.NoError(t, err)
	require.Len(t, views, 3)

	states := make(map[ledger.TransactionID]ledger.LoanState)
	for _, v := range views {
		states[v.Loan.ID] = v.State
	}
	assert.Equal(t, ledger.LoanRequested, states[pending.ID])
	assert.Equal(t, ledger.LoanApproved, states[active.ID])
	assert.Equal(t, ledger.LoanFullyReturned, states[done.ID])

	// Someone else has no loans
	other, err := svc.LoansForUser(ctx, "member-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
