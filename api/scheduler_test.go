package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/benefit-engine/api"
	"github.com/warp/benefit-engine/benefit"
)

func newSweeper(s *testServer) *api.DeliverySweeper {
	return api.NewDeliverySweeper(s.store, s.handler, []benefit.CompanyID{"acme"})
}

func TestSweeper_DeliversPastOrders(t *testing.T) {
	// GIVEN: a Jan 5-7 subscription with the clock now past Jan 6
	// WHEN: sweeping
	// THEN: Jan 5-6 orders become DELIVERED, Jan 7 stays ACTIVE

	s := newTestServer(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	s.seedProject(t, "p1", 1000)
	result := s.createSubscription(t, api.CreateSubscriptionRequest{
		ProjectID: "p1",
		StartDate: "2026-01-05",
		EndDate:   "2026-01-07",
		Employees: []api.EmployeeSelectionRequest{
			{EmployeeID: "p1-e1", Pattern: "every_day", Combo: "standard"},
		},
	})

	s.clock.t = time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	newSweeper(s).RunNow()

	for _, dto := range result.Assignments {
		a, err := s.store.GetAssignment(context.Background(), benefit.AssignmentID(dto.ID))
		require.NoError(t, err)
		if dto.Date == "2026-01-07" {
			assert.Equal(t, benefit.AssignmentActive, a.Status)
		} else {
			assert.Equal(t, benefit.AssignmentDelivered, a.Status)
		}
	}
}

func TestSweeper_CompletesExpiredSubscriptions(t *testing.T) {
	// GIVEN: a subscription whose end date has passed
	// WHEN: sweeping
	// THEN: the subscription is COMPLETED; a rerun leaves it untouched

	s := newTestServer(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	s.seedProject(t, "p1", 1000)
	result := s.createSubscription(t, api.CreateSubscriptionRequest{
		ProjectID: "p1",
		StartDate: "2026-01-05",
		EndDate:   "2026-01-07",
		Employees: []api.EmployeeSelectionRequest{
			{EmployeeID: "p1-e1", Pattern: "every_day", Combo: "standard"},
		},
	})
	subID := benefit.SubscriptionID(result.Subscription.ID)

	s.clock.t = time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)
	sweeper := newSweeper(s)
	sweeper.RunNow()

	sub, err := s.store.GetSubscription(context.Background(), subID)
	require.NoError(t, err)
	assert.Equal(t, benefit.SubscriptionCompleted, sub.Status)
	version := sub.Version

	sweeper.RunNow()
	sub, err = s.store.GetSubscription(context.Background(), subID)
	require.NoError(t, err)
	assert.Equal(t, benefit.SubscriptionCompleted, sub.Status)
	assert.Equal(t, version, sub.Version, "second sweep is a no-op")
}

func TestSweeper_RunningSubscriptionStaysActive(t *testing.T) {
	// GIVEN: a subscription ending today
	// WHEN: sweeping
	// THEN: today is not past, so the subscription stays ACTIVE

	s := newTestServer(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	s.seedProject(t, "p1", 1000)
	result := s.createSubscription(t, api.CreateSubscriptionRequest{
		ProjectID: "p1",
		StartDate: "2026-01-05",
		EndDate:   "2026-01-07",
		Employees: []api.EmployeeSelectionRequest{
			{EmployeeID: "p1-e1", Pattern: "every_day", Combo: "standard"},
		},
	})

	s.clock.t = time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	newSweeper(s).RunNow()

	sub, err := s.store.GetSubscription(context.Background(), benefit.SubscriptionID(result.Subscription.ID))
	require.NoError(t, err)
	assert.Equal(t, benefit.SubscriptionActive, sub.Status)
}

func TestSweeper_PausedSubscriptionNotCompleted(t *testing.T) {
	// GIVEN: a paused subscription whose end date has passed
	// WHEN: sweeping
	// THEN: it stays PAUSED; resume will extend the end date again

	s := newTestServer(time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC))
	s.seedProject(t, "p1", 1000)
	result := s.createSubscription(t, api.CreateSubscriptionRequest{
		ProjectID: "p1",
		StartDate: "2026-01-06",
		EndDate:   "2026-01-08",
		Employees: []api.EmployeeSelectionRequest{
			{EmployeeID: "p1-e1", Pattern: "every_day", Combo: "standard"},
		},
	})

	rec := s.do(t, http.MethodPost, "/api/subscriptions/"+result.Subscription.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	s.clock.t = time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	newSweeper(s).RunNow()

	sub, err := s.store.GetSubscription(context.Background(), benefit.SubscriptionID(result.Subscription.ID))
	require.NoError(t, err)
	assert.Equal(t, benefit.SubscriptionPaused, sub.Status)
}

func TestSweeper_ClosesYesterdayForCompensationProjects(t *testing.T) {
	// GIVEN: a compensation spend yesterday
	// WHEN: sweeping today
	// THEN: yesterday's day close is materialized with the rollover out

	s := newTestServer(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	s.seedProject(t, "p1", 1000)

	rec := s.do(t, http.MethodPost, "/api/compensation/transactions", api.CompensationRequest{
		EmployeeID: "p1-e1",
		ProjectID:  "p1",
		Amount:     12,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	s.clock.t = time.Date(2026, 1, 6, 3, 0, 0, 0, time.UTC)
	newSweeper(s).RunNow()

	rec1, err := s.store.GetDayClose(context.Background(), "p1-e1", mustDate(t, "2026-01-05"))
	require.NoError(t, err)
	require.NotNil(t, rec1)
	assert.True(t, rec1.Used.Equal(benefit.NewMoney(12, "EUR")))
	assert.True(t, rec1.RolloverOut.Equal(benefit.NewMoney(8, "EUR")))
}

func mustDate(t *testing.T, s string) benefit.Date {
	t.Helper()
	d, err := benefit.ParseDate(s)
	require.NoError(t, err)
	return d
}
