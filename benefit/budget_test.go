package benefit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/benefit-engine/benefit"
)

// =============================================================================
// DERIVED SPEND
// =============================================================================

func TestBudget_SpendDerivedFromAssignments(t *testing.T) {
	// GIVEN: budget 1000, overdraft 200, orders worth 1150 already committed
	// WHEN: taking a snapshot and checking a further 100 spend
	// THEN: available is 1200, remaining 50, and the new spend is rejected

	f := newFixture(time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 200)
	employee := f.seedEmployee(t, "e1", project.ID)

	// One synthetic subscription with priced orders summing to 1150.
	sub := benefit.Subscription{
		ID: "sub-1", ProjectID: project.ID,
		StartDate: date("2026-01-05"), EndDate: date("2026-01-06"),
		TotalAmount: eur(1150), Status: benefit.SubscriptionActive,
	}
	require.NoError(t, f.store.InsertSubscription(context.Background(), sub))
	require.NoError(t, f.store.InsertAssignments(context.Background(), []benefit.Assignment{
		{ID: "a1", SubscriptionID: sub.ID, EmployeeID: employee.ID, Date: date("2026-01-05"), Combo: "standard", Price: eur(600), Status: benefit.AssignmentActive},
		{ID: "a2", SubscriptionID: sub.ID, EmployeeID: employee.ID, Date: date("2026-01-06"), Combo: "standard", Price: eur(550), Status: benefit.AssignmentActive},
	}))

	snap, err := f.budget.Snapshot(context.Background(), project.ID)
	require.NoError(t, err)

	assert.True(t, snap.Spent.Equal(eur(1150)), "spent = %s", snap.Spent)
	assert.True(t, snap.AvailableBudget.Equal(eur(1200)))
	assert.True(t, snap.Remaining().Equal(eur(50)))
	assert.Equal(t, "115", snap.ConsumptionPercent.String())

	err = f.budget.CheckSpend(snap, eur(100))
	assert.ErrorIs(t, err, benefit.ErrBudgetExceeded)

	// 50 still fits.
	assert.NoError(t, f.budget.CheckSpend(snap, eur(50)))
}

func TestBudget_FrozenExcluded_CancelledExcluded(t *testing.T) {
	// GIVEN: one active, one frozen and one cancelled order
	// WHEN: computing spend
	// THEN: only the active order counts

	f := newFixture(time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	sub := benefit.Subscription{ID: "sub-1", ProjectID: project.ID, StartDate: date("2026-01-05"), EndDate: date("2026-01-07"), Status: benefit.SubscriptionActive}
	require.NoError(t, f.store.InsertSubscription(context.Background(), sub))
	require.NoError(t, f.store.InsertAssignments(context.Background(), []benefit.Assignment{
		{ID: "a1", SubscriptionID: sub.ID, EmployeeID: employee.ID, Date: date("2026-01-05"), Price: eur(12), Status: benefit.AssignmentActive},
		{ID: "a2", SubscriptionID: sub.ID, EmployeeID: employee.ID, Date: date("2026-01-06"), Price: eur(12), Status: benefit.AssignmentFrozen},
		{ID: "a3", SubscriptionID: sub.ID, EmployeeID: employee.ID, Date: date("2026-01-07"), Price: eur(12), Status: benefit.AssignmentCancelled},
	}))

	snap, err := f.budget.Snapshot(context.Background(), project.ID)
	require.NoError(t, err)
	assert.True(t, snap.Spent.Equal(eur(12)), "only the active order counts, got %s", snap.Spent)
}

func TestBudget_CompensationCompanyPaidCounts(t *testing.T) {
	// GIVEN: a compensation transaction with a company-paid share
	// WHEN: computing spend
	// THEN: the company share counts, the employee share does not

	f := newFixture(time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	require.NoError(t, f.store.InsertTransaction(context.Background(), benefit.CompensationTransaction{
		ID: "tx-1", EmployeeID: employee.ID, ProjectID: project.ID,
		Amount: eur(26), CompanyPaid: eur(20), EmployeePaid: eur(6),
		Date: date("2026-01-02"),
	}))

	snap, err := f.budget.Snapshot(context.Background(), project.ID)
	require.NoError(t, err)
	assert.True(t, snap.Spent.Equal(eur(20)))
}

func TestBudget_LowBudgetFlag(t *testing.T) {
	// GIVEN: threshold 20% of a 100 budget
	// WHEN: remaining headroom falls under 20
	// THEN: the snapshot flags low budget

	f := newFixture(time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 100, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	sub := benefit.Subscription{ID: "sub-1", ProjectID: project.ID, StartDate: date("2026-01-05"), EndDate: date("2026-01-05"), Status: benefit.SubscriptionActive}
	require.NoError(t, f.store.InsertSubscription(context.Background(), sub))
	require.NoError(t, f.store.InsertAssignments(context.Background(), []benefit.Assignment{
		{ID: "a1", SubscriptionID: sub.ID, EmployeeID: employee.ID, Date: date("2026-01-05"), Price: eur(85), Status: benefit.AssignmentActive},
	}))

	snap, err := f.budget.Snapshot(context.Background(), project.ID)
	require.NoError(t, err)
	assert.True(t, snap.IsLowBudget, "15 remaining of 100 is under the 20%% threshold")
}

// =============================================================================
// CUTOFF GATE
// =============================================================================

func TestBudget_Cutoff_BeforeAndAfter(t *testing.T) {
	// GIVEN: cutoff 11:00, a mutation on today's order
	// WHEN: checked at 10:59 and at 11:01
	// THEN: allowed before the cutoff, rejected at or after it

	f := newFixture(time.Date(2026, 1, 5, 10, 59, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	today := date("2026-01-05")

	assert.NoError(t, f.budget.CheckCutoff(project, today, false))

	f.clock.t = time.Date(2026, 1, 5, 11, 1, 0, 0, time.UTC)
	err := f.budget.CheckCutoff(project, today, false)
	assert.ErrorIs(t, err, benefit.ErrCutoffPassed)

	var cutoffErr *benefit.CutoffError
	require.ErrorAs(t, err, &cutoffErr)
	assert.Equal(t, project.ID, cutoffErr.ProjectID)
}

func TestBudget_Cutoff_FutureDateAlwaysPasses(t *testing.T) {
	f := newFixture(time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	assert.NoError(t, f.budget.CheckCutoff(project, date("2026-01-06"), false))
}

func TestBudget_Cutoff_OverrideSkipsCheck(t *testing.T) {
	f := newFixture(time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	assert.NoError(t, f.budget.CheckCutoff(project, date("2026-01-05"), true))
}

// =============================================================================
// ATOMIC CHECK-AND-SPEND
// =============================================================================

func TestBudget_Reserve_ConcurrentSpendsCannotJointlyExceed(t *testing.T) {
	// GIVEN: 1000 available, two concurrent reservations of 600 each
	// WHEN: both run Reserve at the same time
	// THEN: exactly one succeeds; the loser sees BudgetExceeded

	f := newFixture(time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	persist := func(id string, day benefit.Date) func() error {
		return func() error {
			sub := benefit.Subscription{ID: benefit.SubscriptionID("sub-" + id), ProjectID: project.ID, StartDate: day, EndDate: day, Status: benefit.SubscriptionActive}
			if err := f.store.InsertSubscription(context.Background(), sub); err != nil {
				return err
			}
			return f.store.InsertAssignments(context.Background(), []benefit.Assignment{
				{ID: benefit.AssignmentID("a-" + id), SubscriptionID: sub.ID, EmployeeID: employee.ID, Date: day, Price: eur(600), Status: benefit.AssignmentActive},
			})
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	days := []benefit.Date{date("2026-01-05"), date("2026-01-06")}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.budget.Reserve(context.Background(), project.ID, eur(600), persist(string(rune('a'+i)), days[i]))
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, benefit.ErrBudgetExceeded)
		}
	}
	assert.Equal(t, 1, failures, "exactly one reservation must lose")

	snap, err := f.budget.Snapshot(context.Background(), project.ID)
	require.NoError(t, err)
	assert.True(t, snap.Spent.Equal(eur(600)), "spend reflects only the winner, got %s", snap.Spent)
}
