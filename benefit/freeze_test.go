package benefit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/benefit-engine/benefit"
)

// createLunchSubscription enrolls one employee EVERY_DAY at the standard
// combo and returns the creation result.
func (f *fixture) createLunchSubscription(t *testing.T, projectID benefit.ProjectID, employeeID benefit.EmployeeID, start, end benefit.Date) *benefit.SubscriptionResult {
	t.Helper()
	result, err := f.orch.CreateSubscription(context.Background(), f.actor, benefit.CreateSubscriptionInput{
		ProjectID: projectID,
		StartDate: start,
		EndDate:   end,
		Employees: []benefit.EmployeeSelection{
			{EmployeeID: employeeID, Pattern: benefit.PatternEveryDay, Combo: "standard"},
		},
	})
	require.NoError(t, err)
	return result
}

func assignmentOn(t *testing.T, result *benefit.SubscriptionResult, day benefit.Date) benefit.Assignment {
	t.Helper()
	for _, a := range result.Assignments {
		if a.Date.Equal(day) {
			return a
		}
	}
	t.Fatalf("no assignment on %s", day)
	return benefit.Assignment{}
}

// =============================================================================
// SINGLE FREEZE
// =============================================================================

func TestFreeze_SkipAndExtend(t *testing.T) {
	// GIVEN: a Jan 1-10 subscription
	// WHEN: freezing the Jan 5 order
	// THEN: the order is FROZEN, a REPLACEMENT lands on Jan 11 and the
	//       subscription end date moves to Jan 11

	f := newFixture(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-01"), date("2026-01-10"))

	target := assignmentOn(t, result, date("2026-01-05"))
	fr, err := f.freeze.FreezeOrder(context.Background(), f.actor, target.ID, "vacation")
	require.NoError(t, err)

	assert.Equal(t, benefit.AssignmentFrozen, fr.Assignment.Status)
	assert.Equal(t, "vacation", fr.Assignment.FreezeReason)
	require.NotNil(t, fr.Assignment.ReplacementID)
	assert.Equal(t, fr.Replacement.ID, *fr.Assignment.ReplacementID)

	assert.Equal(t, benefit.AssignmentReplacement, fr.Replacement.Status)
	assert.True(t, fr.Replacement.Date.Equal(date("2026-01-11")), "replacement on %s", fr.Replacement.Date)
	require.NotNil(t, fr.Replacement.ReplacesID)
	assert.Equal(t, target.ID, *fr.Replacement.ReplacesID)
	assert.True(t, fr.Replacement.Price.Equal(target.Price))

	assert.True(t, fr.NewEndDate.Equal(date("2026-01-11")))
	sub, err := f.store.GetSubscription(context.Background(), result.Subscription.ID)
	require.NoError(t, err)
	assert.True(t, sub.EndDate.Equal(date("2026-01-11")))
	assert.Equal(t, 10, sub.TotalDays(), "paid days unchanged by the freeze")
}

func TestFreeze_SpendNeutral(t *testing.T) {
	// GIVEN: a subscription consuming part of the budget
	// WHEN: freezing one order
	// THEN: total spend is unchanged (frozen out, replacement in)

	f := newFixture(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-01"), date("2026-01-10"))

	before, err := f.budget.Snapshot(context.Background(), project.ID)
	require.NoError(t, err)

	target := assignmentOn(t, result, date("2026-01-05"))
	_, err = f.freeze.FreezeOrder(context.Background(), f.actor, target.ID, "")
	require.NoError(t, err)

	after, err := f.budget.Snapshot(context.Background(), project.ID)
	require.NoError(t, err)
	assert.True(t, after.Spent.Equal(before.Spent), "spend %s -> %s", before.Spent, after.Spent)
}

func TestFreeze_SecondFreeze_ReplacementSkipsOccupiedDate(t *testing.T) {
	// GIVEN: one order already frozen with its replacement on Jan 11
	// WHEN: freezing a second order
	// THEN: the second replacement lands on Jan 12 and the end date is Jan 12

	f := newFixture(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-01"), date("2026-01-10"))

	_, err := f.freeze.FreezeOrder(context.Background(), f.actor, assignmentOn(t, result, date("2026-01-05")).ID, "")
	require.NoError(t, err)
	second, err := f.freeze.FreezeOrder(context.Background(), f.actor, assignmentOn(t, result, date("2026-01-06")).ID, "")
	require.NoError(t, err)

	assert.True(t, second.Replacement.Date.Equal(date("2026-01-12")), "replacement on %s", second.Replacement.Date)
	assert.True(t, second.NewEndDate.Equal(date("2026-01-12")))
}

func TestFreeze_PastDateRejected(t *testing.T) {
	f := newFixture(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-01"), date("2026-01-10"))

	// Time moves past the 3rd.
	f.clock.t = time.Date(2026, 1, 4, 8, 0, 0, 0, time.UTC)

	_, err := f.freeze.FreezeOrder(context.Background(), f.actor, assignmentOn(t, result, date("2026-01-03")).ID, "")
	assert.ErrorIs(t, err, benefit.ErrInvalidState)
}

func TestFreeze_TodayAfterCutoffRejected(t *testing.T) {
	// GIVEN: cutoff 11:00
	// WHEN: freezing today's order at 11:30
	// THEN: CutoffPassed

	f := newFixture(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-01"), date("2026-01-10"))

	f.clock.t = time.Date(2026, 1, 5, 11, 30, 0, 0, time.UTC)
	_, err := f.freeze.FreezeOrder(context.Background(), f.actor, assignmentOn(t, result, date("2026-01-05")).ID, "")
	assert.ErrorIs(t, err, benefit.ErrCutoffPassed)

	// Tomorrow's order is still freezable after today's cutoff.
	_, err = f.freeze.FreezeOrder(context.Background(), f.actor, assignmentOn(t, result, date("2026-01-06")).ID, "")
	assert.NoError(t, err)
}

func TestFreeze_CrossTenantResolvesToNotFound(t *testing.T) {
	f := newFixture(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-01"), date("2026-01-10"))

	other := benefit.Actor{CompanyID: "other-co"}
	_, err := f.freeze.FreezeOrder(context.Background(), other, assignmentOn(t, result, date("2026-01-05")).ID, "")
	assert.ErrorIs(t, err, benefit.ErrNotFound)
}

// =============================================================================
// WEEKLY LIMIT
// =============================================================================

func TestFreeze_SixthFreezeInWeekRejected(t *testing.T) {
	// GIVEN: five orders already frozen in the ISO week Mon Jan 5 - Sun Jan 11
	// WHEN: freezing a sixth order in the same week
	// THEN: FreezeLimitExceeded naming usage 5 of 5

	f := newFixture(time.Date(2026, 1, 4, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	// Mon Jan 5 .. Wed Jan 14; replacements land after Jan 14 in later weeks.
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-05"), date("2026-01-14"))

	for _, d := range []string{"2026-01-05", "2026-01-06", "2026-01-07", "2026-01-08", "2026-01-09"} {
		_, err := f.freeze.FreezeOrder(context.Background(), f.actor, assignmentOn(t, result, date(d)).ID, "")
		require.NoError(t, err, "freeze %s", d)
	}

	// Saturday Jan 10, same ISO week.
	_, err := f.freeze.FreezeOrder(context.Background(), f.actor, assignmentOn(t, result, date("2026-01-10")).ID, "")
	require.ErrorIs(t, err, benefit.ErrFreezeLimitExceeded)

	var limitErr *benefit.FreezeLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 5, limitErr.Used)
	assert.Equal(t, 5, limitErr.Limit)

	// Monday Jan 12 is the next ISO week: allowed again.
	_, err = f.freeze.FreezeOrder(context.Background(), f.actor, assignmentOn(t, result, date("2026-01-12")).ID, "")
	assert.NoError(t, err)
}

func TestFreeze_Info_TracksWeeklyUsage(t *testing.T) {
	f := newFixture(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-05"), date("2026-01-11"))

	_, err := f.freeze.FreezeOrder(context.Background(), f.actor, assignmentOn(t, result, date("2026-01-06")).ID, "")
	require.NoError(t, err)
	_, err = f.freeze.FreezeOrder(context.Background(), f.actor, assignmentOn(t, result, date("2026-01-07")).ID, "")
	require.NoError(t, err)

	info, err := f.freeze.GetEmployeeFreezeInfo(context.Background(), f.actor, employee.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.UsedThisWeek)
	assert.Equal(t, 3, info.RemainingFreezes)
	assert.Equal(t, 5, info.WeekLimit)
}

// =============================================================================
// UNFREEZE
// =============================================================================

func TestUnfreeze_ExactInverseOfFreeze(t *testing.T) {
	// GIVEN: a frozen order with its replacement
	// WHEN: unfreezing
	// THEN: order ACTIVE again, replacement CANCELLED, end date restored

	f := newFixture(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-01"), date("2026-01-10"))

	target := assignmentOn(t, result, date("2026-01-05"))
	fr, err := f.freeze.FreezeOrder(context.Background(), f.actor, target.ID, "trip")
	require.NoError(t, err)

	restored, err := f.freeze.UnfreezeOrder(context.Background(), f.actor, target.ID)
	require.NoError(t, err)

	assert.Equal(t, benefit.AssignmentActive, restored.Status)
	assert.Nil(t, restored.FrozenAt)
	assert.Empty(t, restored.FreezeReason)
	assert.Nil(t, restored.ReplacementID)

	replacement, err := f.store.GetAssignment(context.Background(), fr.Replacement.ID)
	require.NoError(t, err)
	assert.Equal(t, benefit.AssignmentCancelled, replacement.Status)

	sub, err := f.store.GetSubscription(context.Background(), result.Subscription.ID)
	require.NoError(t, err)
	assert.True(t, sub.EndDate.Equal(date("2026-01-10")), "end date back to original, got %s", sub.EndDate)
}

func TestUnfreeze_NonFrozenRejected(t *testing.T) {
	f := newFixture(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-01"), date("2026-01-10"))

	_, err := f.freeze.UnfreezeOrder(context.Background(), f.actor, assignmentOn(t, result, date("2026-01-05")).ID)
	assert.ErrorIs(t, err, benefit.ErrInvalidState)
}

// =============================================================================
// RANGE FREEZE
// =============================================================================

func TestFreezePeriod_FreezesEveryActiveDayInRange(t *testing.T) {
	// GIVEN: a Jan 1-10 subscription
	// WHEN: freezing Jan 5-7
	// THEN: three orders frozen, end date extended by three days

	f := newFixture(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-01"), date("2026-01-10"))

	pr, err := f.freeze.FreezePeriod(context.Background(), f.actor, employee.ID, date("2026-01-05"), date("2026-01-07"), "holidays")
	require.NoError(t, err)

	assert.Len(t, pr.AffectedOrderIDs, 3)
	assert.True(t, pr.NewSubscriptionEndDate.Equal(date("2026-01-13")))

	for _, d := range []string{"2026-01-05", "2026-01-06", "2026-01-07"} {
		a, err := f.store.GetAssignment(context.Background(), assignmentOn(t, result, date(d)).ID)
		require.NoError(t, err)
		assert.Equal(t, benefit.AssignmentFrozen, a.Status, "order on %s", d)
	}

	sub, err := f.store.GetSubscription(context.Background(), result.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, sub.TotalDays())
}

func TestFreezePeriod_LimitHitRollsBackWholeRange(t *testing.T) {
	// GIVEN: weekly limit 2
	// WHEN: freezing a 3-day range inside one ISO week
	// THEN: the whole range fails and no order is frozen

	f := newFixture(time.Date(2026, 1, 4, 8, 0, 0, 0, time.UTC))
	f.freeze.Config.MaxFreezesPerWeek = 2

	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	result := f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-05"), date("2026-01-11"))

	_, err := f.freeze.FreezePeriod(context.Background(), f.actor, employee.ID, date("2026-01-05"), date("2026-01-07"), "")
	require.ErrorIs(t, err, benefit.ErrFreezeLimitExceeded)

	for _, a := range result.Assignments {
		got, err := f.store.GetAssignment(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, benefit.AssignmentActive, got.Status, "rollback must restore %s", a.Date)
	}

	sub, err := f.store.GetSubscription(context.Background(), result.Subscription.ID)
	require.NoError(t, err)
	assert.True(t, sub.EndDate.Equal(date("2026-01-11")), "end date untouched, got %s", sub.EndDate)
}

func TestFreezePeriod_NoActiveOrdersRejected(t *testing.T) {
	f := newFixture(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 5000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	f.createLunchSubscription(t, project.ID, employee.ID, date("2026-01-01"), date("2026-01-10"))

	_, err := f.freeze.FreezePeriod(context.Background(), f.actor, employee.ID, date("2026-02-01"), date("2026-02-05"), "")
	assert.ErrorIs(t, err, benefit.ErrValidation)
}
