package benefit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/benefit-engine/benefit"
)

// =============================================================================
// TRANSACTION SPLIT
// =============================================================================

func TestCompensation_SpendUnderLimit_FullyCompanyPaid(t *testing.T) {
	// GIVEN: daily limit 20, no prior spend today
	// WHEN: spending 12.50
	// THEN: company pays all of it

	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	tx, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(12.50), "Green Bowl", "")
	require.NoError(t, err)

	assert.True(t, tx.CompanyPaid.Equal(eur(12.50)))
	assert.True(t, tx.EmployeePaid.IsZero())
	assert.True(t, tx.Amount.Equal(tx.CompanyPaid.Add(tx.EmployeePaid)))
	assert.True(t, tx.Date.Equal(date("2026-01-05")))
}

func TestCompensation_SpendOverLimit_SplitAtPayable(t *testing.T) {
	// GIVEN: daily limit 20
	// WHEN: spending 26
	// THEN: company pays 20, employee pays 6

	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	tx, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(26), "Trattoria", "")
	require.NoError(t, err)

	assert.True(t, tx.CompanyPaid.Equal(eur(20)))
	assert.True(t, tx.EmployeePaid.Equal(eur(6)))
}

func TestCompensation_SecondSpendSameDay_UsesRemainder(t *testing.T) {
	// GIVEN: 15 of the 20 limit already used today
	// WHEN: spending another 10
	// THEN: company pays the remaining 5, employee pays 5

	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	_, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(15), "Lunch", "")
	require.NoError(t, err)

	tx, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(10), "Coffee", "")
	require.NoError(t, err)

	assert.True(t, tx.CompanyPaid.Equal(eur(5)))
	assert.True(t, tx.EmployeePaid.Equal(eur(5)))
}

func TestCompensation_EmployeeLimitOverrideWins(t *testing.T) {
	// GIVEN: project limit 20, employee override 30
	// WHEN: spending 25
	// THEN: fully company paid

	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	override := eur(30)
	employee.CompensationLimitOverride = &override
	require.NoError(t, f.store.SaveEmployee(context.Background(), *employee))

	tx, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(25), "Dinner", "")
	require.NoError(t, err)
	assert.True(t, tx.CompanyPaid.Equal(eur(25)))
}

func TestCompensation_NonPositiveAmountRejected(t *testing.T) {
	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	_, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(0), "", "")
	assert.ErrorIs(t, err, benefit.ErrValidation)
	_, err = f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(-5), "", "")
	assert.ErrorIs(t, err, benefit.ErrValidation)
}

func TestCompensation_InactiveEmployeeRejected(t *testing.T) {
	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)
	employee.Active = false
	require.NoError(t, f.store.SaveEmployee(context.Background(), *employee))

	_, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(10), "", "")
	assert.ErrorIs(t, err, benefit.ErrInvalidState)
}

// =============================================================================
// ROLLOVER
// =============================================================================

func TestCompensation_Rollover_CarriesUnusedBalance(t *testing.T) {
	// GIVEN: rollover enabled, 12 of 20 used on day one
	// WHEN: checking the next day's balance
	// THEN: 8 carried over; a 26 spend the next day is fully company paid

	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	_, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(12), "Day one", "")
	require.NoError(t, err)

	f.clock.t = time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)

	balance, err := f.comp.DailyBalance(context.Background(), project, employee, date("2026-01-06"))
	require.NoError(t, err)
	assert.True(t, balance.Rollover.Equal(eur(8)), "rollover = %s", balance.Rollover)
	assert.True(t, balance.Remaining.Equal(eur(28)))

	tx, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(26), "Day two", "")
	require.NoError(t, err)
	assert.True(t, tx.CompanyPaid.Equal(eur(26)), "20 + 8 rollover covers 26")
}

func TestCompensation_RolloverDisabled_BalanceResetsDaily(t *testing.T) {
	// GIVEN: rollover disabled, nothing spent on day one
	// WHEN: checking the next day's balance
	// THEN: no carryover; the limit is the whole balance

	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	project.CompensationRollover = false
	require.NoError(t, f.store.SaveProject(context.Background(), *project))
	employee := f.seedEmployee(t, "e1", project.ID)

	_, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(5), "Snack", "")
	require.NoError(t, err)

	balance, err := f.comp.DailyBalance(context.Background(), project, employee, date("2026-01-06"))
	require.NoError(t, err)
	assert.True(t, balance.Rollover.IsZero())
	assert.True(t, balance.Remaining.Equal(eur(20)))
}

func TestCompensation_OverspendNeverRollsNegative(t *testing.T) {
	// GIVEN: a 26 spend against the 20 limit (remaining -6 is floored)
	// WHEN: checking the next day
	// THEN: rollover is 0, not negative

	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	_, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(26), "Feast", "")
	require.NoError(t, err)

	balance, err := f.comp.DailyBalance(context.Background(), project, employee, date("2026-01-06"))
	require.NoError(t, err)
	assert.True(t, balance.Rollover.IsZero())
	assert.True(t, balance.Remaining.Equal(eur(20)))
}

func TestCompensation_MultiDayGap_RolloverAccumulates(t *testing.T) {
	// GIVEN: rollover enabled, one 12 spend, then two idle days
	// WHEN: checking three days after the spend
	// THEN: 8 + 20 + 20 carried

	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	_, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(12), "", "")
	require.NoError(t, err)

	balance, err := f.comp.DailyBalance(context.Background(), project, employee, date("2026-01-08"))
	require.NoError(t, err)
	assert.True(t, balance.Rollover.Equal(eur(48)), "rollover = %s", balance.Rollover)
}

// =============================================================================
// DAY CLOSE
// =============================================================================

func TestCompensation_CloseDay_MaterializesBalance(t *testing.T) {
	// GIVEN: 12 of 20 used
	// WHEN: closing the day twice
	// THEN: the same record both times (idempotent recompute)

	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	employee := f.seedEmployee(t, "e1", project.ID)

	_, err := f.comp.ProcessTransaction(context.Background(), f.actor, employee.ID, project.ID, eur(12), "", "")
	require.NoError(t, err)

	first, err := f.comp.CloseDay(context.Background(), project, employee, date("2026-01-05"))
	require.NoError(t, err)
	assert.True(t, first.Used.Equal(eur(12)))
	assert.True(t, first.Remaining.Equal(eur(8)))
	assert.True(t, first.RolloverOut.Equal(eur(8)))

	second, err := f.comp.CloseDay(context.Background(), project, employee, date("2026-01-05"))
	require.NoError(t, err)
	assert.True(t, second.RolloverOut.Equal(first.RolloverOut))

	stored, err := f.store.GetDayClose(context.Background(), employee.ID, date("2026-01-05"))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Used.Equal(eur(12)))
}

// =============================================================================
// DAILY SUMMARY
// =============================================================================

func TestCompensation_DailySummary_AggregatesPerEmployee(t *testing.T) {
	// GIVEN: two employees, three spends on one day
	// WHEN: asking for the project summary
	// THEN: totals and per-employee breakdown line up

	f := newFixture(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	project := f.seedProject(t, "p1", 1000, 0)
	e1 := f.seedEmployee(t, "e1", project.ID)
	e2 := f.seedEmployee(t, "e2", project.ID)

	_, err := f.comp.ProcessTransaction(context.Background(), f.actor, e1.ID, project.ID, eur(10), "", "")
	require.NoError(t, err)
	_, err = f.comp.ProcessTransaction(context.Background(), f.actor, e1.ID, project.ID, eur(15), "", "")
	require.NoError(t, err)
	_, err = f.comp.ProcessTransaction(context.Background(), f.actor, e2.ID, project.ID, eur(26), "", "")
	require.NoError(t, err)

	summary, err := f.comp.GetDailySummary(context.Background(), f.actor, project.ID, date("2026-01-05"))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TransactionCount)
	assert.Equal(t, 2, summary.DistinctEmployees)
	assert.True(t, summary.TotalAmount.Equal(eur(51)))
	// e1: 10 + min(15, 10 remaining) = 20 company; e2: min(26, 20) = 20.
	assert.True(t, summary.TotalCompanyPaid.Equal(eur(40)))
	assert.True(t, summary.TotalEmployeePaid.Equal(eur(11)))
	require.Len(t, summary.PerEmployee, 2)
}
