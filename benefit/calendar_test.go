package benefit_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/benefit-engine/benefit"
	memstore "github.com/warp/benefit-engine/benefit/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================
// The fixture wires the whole engine on the in-memory store with a settable
// clock. Used across the benefit package tests.

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

type fixture struct {
	store *memstore.TxMemory
	clock *testClock
	locks *benefit.KeyedLocks

	budget *benefit.BudgetLedger
	freeze *benefit.FreezeEngine
	comp   *benefit.CompensationLedger
	orch   *benefit.Orchestrator

	actor benefit.Actor
}

func newFixture(now time.Time) *fixture {
	store := memstore.NewTxMemory()
	clock := &testClock{t: now}
	locks := benefit.NewKeyedLocks(2 * time.Second)

	budget := benefit.NewBudgetLedger(store, clock, benefit.BudgetConfig{
		LowBudgetThreshold: decimal.NewFromFloat(0.2),
	}, locks)
	freeze := benefit.NewFreezeEngine(store, budget, clock, benefit.FreezeConfig{MaxFreezesPerWeek: 5}, locks)
	comp := benefit.NewCompensationLedger(store, clock, locks)
	orch := benefit.NewOrchestrator(store, freeze, budget, comp, clock, locks)

	return &fixture{
		store:  store,
		clock:  clock,
		locks:  locks,
		budget: budget,
		freeze: freeze,
		comp:   comp,
		orch:   orch,
		actor:  benefit.Actor{CompanyID: "co-1", ActorID: "tester"},
	}
}

func date(s string) benefit.Date {
	d, err := benefit.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func eur(v float64) benefit.Money { return benefit.NewMoney(v, "EUR") }

// seedProject persists a lunch+compensation project for the fixture's company.
func (f *fixture) seedProject(t *testing.T, id string, budget, overdraft float64) *benefit.Project {
	t.Helper()
	p := benefit.Project{
		ID:             benefit.ProjectID(id),
		CompanyID:      f.actor.CompanyID,
		Name:           "Project " + id,
		Budget:         eur(budget),
		OverdraftLimit: eur(overdraft),
		Currency:       "EUR",
		Timezone:       "UTC",
		CutoffTime:     benefit.TimeOfDay{Hour: 11, Minute: 0},
		Status:         benefit.ProjectActive,
		ServiceTypes:   []benefit.ServiceType{benefit.ServiceLunch, benefit.ServiceCompensation},
		ComboPrices: map[benefit.ComboType]benefit.Money{
			"standard": eur(12),
			"premium":  eur(18),
		},
		CompensationDailyLimit: eur(20),
		CompensationRollover:   true,
		CreatedAt:              f.clock.Now(),
	}
	require.NoError(t, f.store.SaveProject(context.Background(), p))
	return &p
}

func (f *fixture) seedEmployee(t *testing.T, id string, projectID benefit.ProjectID) *benefit.Employee {
	t.Helper()
	e := benefit.Employee{
		ID:        benefit.EmployeeID(id),
		ProjectID: projectID,
		Name:      "Employee " + id,
		Active:    true,
		CreatedAt: f.clock.Now(),
	}
	require.NoError(t, f.store.SaveEmployee(context.Background(), e))
	return &e
}

// =============================================================================
// CALENDAR GENERATION
// =============================================================================

func TestCalendar_EveryDay_CoversFullRange(t *testing.T) {
	// GIVEN: a 10-day range
	// WHEN: expanding EVERY_DAY
	// THEN: one date per calendar day, in order

	var gen benefit.CalendarGenerator
	dates, err := gen.Generate(date("2026-01-01"), date("2026-01-10"), benefit.PatternEveryDay, nil)
	require.NoError(t, err)

	require.Len(t, dates, 10)
	assert.True(t, dates[0].Equal(date("2026-01-01")))
	assert.True(t, dates[9].Equal(date("2026-01-10")))
	for i := 1; i < len(dates); i++ {
		assert.Equal(t, 1, dates[i-1].DaysUntil(dates[i]))
	}
}

func TestCalendar_EveryOtherDay_AnchoredAtStart(t *testing.T) {
	// GIVEN: a 10-day range
	// WHEN: expanding EVERY_OTHER_DAY
	// THEN: stride-2 dates starting at the range start

	var gen benefit.CalendarGenerator
	dates, err := gen.Generate(date("2026-01-01"), date("2026-01-10"), benefit.PatternEveryOtherDay, nil)
	require.NoError(t, err)

	require.Len(t, dates, 5)
	for i, want := range []string{"2026-01-01", "2026-01-03", "2026-01-05", "2026-01-07", "2026-01-09"} {
		assert.True(t, dates[i].Equal(date(want)), "date %d should be %s, got %s", i, want, dates[i])
	}
}

func TestCalendar_Custom_FiltersSortsAndDeduplicates(t *testing.T) {
	// GIVEN: custom dates out of order, with a duplicate and one outside the range
	// WHEN: expanding CUSTOM
	// THEN: in-range dates only, sorted, duplicate dropped

	var gen benefit.CalendarGenerator
	custom := []benefit.Date{
		date("2026-01-07"),
		date("2026-01-03"),
		date("2026-01-07"), // duplicate
		date("2026-02-01"), // outside range
	}
	dates, err := gen.Generate(date("2026-01-01"), date("2026-01-10"), benefit.PatternCustom, custom)
	require.NoError(t, err)

	require.Len(t, dates, 2)
	assert.True(t, dates[0].Equal(date("2026-01-03")))
	assert.True(t, dates[1].Equal(date("2026-01-07")))
}

func TestCalendar_Custom_RequiresDates(t *testing.T) {
	var gen benefit.CalendarGenerator
	_, err := gen.Generate(date("2026-01-01"), date("2026-01-10"), benefit.PatternCustom, nil)
	assert.ErrorIs(t, err, benefit.ErrValidation)
}

func TestCalendar_EndBeforeStart_Rejected(t *testing.T) {
	var gen benefit.CalendarGenerator
	_, err := gen.Generate(date("2026-01-10"), date("2026-01-01"), benefit.PatternEveryDay, nil)
	assert.ErrorIs(t, err, benefit.ErrValidation)
}

func TestCalendar_UnknownPattern_Rejected(t *testing.T) {
	var gen benefit.CalendarGenerator
	_, err := gen.Generate(date("2026-01-01"), date("2026-01-10"), benefit.Pattern("weekly"), nil)
	assert.ErrorIs(t, err, benefit.ErrValidation)
}

func TestCalendar_Generate_Idempotent(t *testing.T) {
	// GIVEN: identical inputs
	// WHEN: generating twice
	// THEN: identical sequences

	var gen benefit.CalendarGenerator
	first, err := gen.Generate(date("2026-01-01"), date("2026-01-31"), benefit.PatternEveryOtherDay, nil)
	require.NoError(t, err)
	second, err := gen.Generate(date("2026-01-01"), date("2026-01-31"), benefit.PatternEveryOtherDay, nil)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Equal(second[i]))
	}
}
