/*
scheduler.go - Automated delivery sweep and day close

PURPOSE:

	Periodically settles the passage of time:
	- Marks past-dated ACTIVE and REPLACEMENT orders as DELIVERED so the
	  budget ledger reflects consumed meals.
	- Marks ACTIVE subscriptions whose end date has passed as COMPLETED.
	- Closes the previous compensation day for every employee of a
	  compensation project, materializing rollover balances.

DESIGN:
  - Runs a background goroutine with configurable sweep interval
  - Idempotent: a delivered order or closed day is skipped on re-run
  - Sweeps the companies it is configured with; there is no global
    company registry in the store

CONFIGURATION:
  - SweepInterval: How often to sweep (default: 1 hour)
  - Companies: Company IDs to sweep
  - Enabled: Whether the sweeper is active (default: true)

USAGE:

	sweeper := NewDeliverySweeper(store, handler, companies)
	sweeper.Start()
	// ... later
	sweeper.Stop()

SEE ALSO:
  - benefit/compensation.go: CloseDay
  - benefit/types.go: AssignmentStatus transitions
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/benefit-engine/benefit"
)

// DeliverySweeper settles past-dated orders and closes compensation days.
type DeliverySweeper struct {
	Store         benefit.TxStore
	Handler       *Handler
	Companies     []benefit.CompanyID
	SweepInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewDeliverySweeper creates a new sweeper.
func NewDeliverySweeper(store benefit.TxStore, handler *Handler, companies []benefit.CompanyID) *DeliverySweeper {
	return &DeliverySweeper{
		Store:         store,
		Handler:       handler,
		Companies:     companies,
		SweepInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (ds *DeliverySweeper) Start() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	ds.ticker = time.NewTicker(ds.SweepInterval)
	ds.wg.Add(1)

	go ds.run()

	log.Printf("[Sweeper] Started with sweep interval: %v", ds.SweepInterval)
}

// Stop stops the sweeper.
func (ds *DeliverySweeper) Stop() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.ticker != nil {
		ds.ticker.Stop()
		close(ds.stop)
		ds.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (ds *DeliverySweeper) run() {
	defer ds.wg.Done()

	// Run immediately on start
	ds.sweep()

	for {
		select {
		case <-ds.ticker.C:
			ds.sweep()
		case <-ds.stop:
			return
		}
	}
}

func (ds *DeliverySweeper) sweep() {
	ctx := context.Background()
	now := ds.Handler.Clock.Now()

	for _, company := range ds.Companies {
		projects, err := ds.Store.ListProjects(ctx, company)
		if err != nil {
			log.Printf("[Sweeper] Error listing projects for %s: %v", company, err)
			continue
		}
		for i := range projects {
			ds.sweepProject(ctx, &projects[i], now)
		}
	}
}

func (ds *DeliverySweeper) sweepProject(ctx context.Context, project *benefit.Project, now time.Time) {
	today := project.TodayAt(now)

	delivered, err := ds.deliverPastOrders(ctx, project, today)
	if err != nil {
		log.Printf("[Sweeper] Error delivering orders for %s: %v", project.ID, err)
	} else if delivered > 0 {
		log.Printf("[Sweeper] Project %s: %d orders delivered", project.ID, delivered)
	}

	completed, err := ds.completeExpiredSubscriptions(ctx, project, today)
	if err != nil {
		log.Printf("[Sweeper] Error completing subscriptions for %s: %v", project.ID, err)
	} else if completed > 0 {
		log.Printf("[Sweeper] Project %s: %d subscriptions completed", project.ID, completed)
	}

	if project.HasService(benefit.ServiceCompensation) {
		closed, err := ds.closeYesterday(ctx, project, today)
		if err != nil {
			log.Printf("[Sweeper] Error closing day for %s: %v", project.ID, err)
		} else if closed > 0 {
			log.Printf("[Sweeper] Project %s: %d day closes", project.ID, closed)
		}
	}
}

// deliverPastOrders marks every ACTIVE or REPLACEMENT order dated before
// today as DELIVERED. Spend is unchanged: both statuses already count.
func (ds *DeliverySweeper) deliverPastOrders(ctx context.Context, project *benefit.Project, today benefit.Date) (int, error) {
	assignments, err := ds.Store.ListAssignmentsByProject(ctx, project.ID)
	if err != nil {
		return 0, err
	}

	var due []benefit.Assignment
	for _, a := range assignments {
		if !a.Date.Before(today) {
			continue
		}
		if a.Status != benefit.AssignmentActive && a.Status != benefit.AssignmentReplacement {
			continue
		}
		due = append(due, a)
	}
	if len(due) == 0 {
		return 0, nil
	}

	now := ds.Handler.Clock.Now()
	err = ds.Store.WithTx(ctx, func(s benefit.Store) error {
		for _, a := range due {
			a.Status = benefit.AssignmentDelivered
			a.UpdatedAt = now
			if err := s.UpdateAssignment(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(due), nil
}

// completeExpiredSubscriptions marks ACTIVE subscriptions whose end date
// has passed as COMPLETED. Paused subscriptions are left alone: their end
// date extends again on resume.
func (ds *DeliverySweeper) completeExpiredSubscriptions(ctx context.Context, project *benefit.Project, today benefit.Date) (int, error) {
	subs, err := ds.Store.ListSubscriptionsByProject(ctx, project.ID)
	if err != nil {
		return 0, err
	}

	now := ds.Handler.Clock.Now()
	completed := 0
	for _, sub := range subs {
		if sub.Status != benefit.SubscriptionActive || !sub.EndDate.Before(today) {
			continue
		}
		err := benefit.RetryOnConflict(func() error {
			fresh, err := ds.Store.GetSubscription(ctx, sub.ID)
			if err != nil {
				return err
			}
			if fresh == nil || fresh.Status != benefit.SubscriptionActive || !fresh.EndDate.Before(today) {
				return nil
			}
			fresh.Status = benefit.SubscriptionCompleted
			fresh.UpdatedAt = now
			return ds.Store.UpdateSubscription(ctx, *fresh)
		})
		if err != nil {
			log.Printf("[Sweeper] Error completing subscription %s: %v", sub.ID, err)
			continue
		}
		completed++
	}
	return completed, nil
}

// closeYesterday materializes the previous day's compensation balance for
// every active employee. CloseDay is idempotent per (employee, date).
func (ds *DeliverySweeper) closeYesterday(ctx context.Context, project *benefit.Project, today benefit.Date) (int, error) {
	yesterday := today.AddDays(-1)

	employees, err := ds.Store.ListEmployees(ctx, project.ID)
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range employees {
		if !employees[i].Active {
			continue
		}
		if existing, err := ds.Store.GetDayClose(ctx, employees[i].ID, yesterday); err == nil && existing != nil {
			continue
		}
		if _, err := ds.Handler.Compensation.CloseDay(ctx, project, &employees[i], yesterday); err != nil {
			log.Printf("[Sweeper] Error closing %s for %s: %v", yesterday, employees[i].ID, err)
			continue
		}
		closed++
	}
	return closed, nil
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ds *DeliverySweeper) RunNow() {
	ds.sweep()
}
