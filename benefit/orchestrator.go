/*
orchestrator.go - Top-level subscription lifecycle composition

PURPOSE:

	Composes the narrow capabilities (Calendar, Freeze, BudgetLedger,
	CompensationLedger) into subscription-level operations: creation, bulk
	actions, combo changes, pause/resume and the dashboard. Callers depend
	only on the capability they use; the Orchestrator is the only place
	they are wired together.

ATOMICITY:

	CreateSubscription persists the subscription and all its assignments in
	one store transaction, behind the project budget gate. BulkAction
	applies its transition to every named assignment or none of them.

ADDRESS IMMUTABILITY:

	There is deliberately no changeAddress operation. Delivery address is
	owned by the project and resolved through it; employees never carry
	their own address.
*/
package benefit

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Orchestrator composes the engine capabilities.
type Orchestrator struct {
	Store        TxStore
	Calendar     CalendarGenerator
	Freeze       *FreezeEngine
	Budget       *BudgetLedger
	Compensation *CompensationLedger
	Clock        Clock
	Locks        *KeyedLocks
}

func NewOrchestrator(store TxStore, freeze *FreezeEngine, budget *BudgetLedger, comp *CompensationLedger, clock Clock, locks *KeyedLocks) *Orchestrator {
	return &Orchestrator{
		Store:        store,
		Freeze:       freeze,
		Budget:       budget,
		Compensation: comp,
		Clock:        clock,
		Locks:        locks,
	}
}

// =============================================================================
// CREATE SUBSCRIPTION
// =============================================================================

// EmployeeSelection describes one employee's recurrence within a new
// subscription.
type EmployeeSelection struct {
	EmployeeID  EmployeeID
	Pattern     Pattern
	CustomDates []Date
	Combo       ComboType
}

type CreateSubscriptionInput struct {
	ProjectID ProjectID
	StartDate Date
	EndDate   Date
	Employees []EmployeeSelection
}

type SubscriptionResult struct {
	Subscription Subscription
	Assignments  []Assignment
	TotalAmount  Money
	TotalDays    int
}

// CreateSubscription expands each employee's pattern into assignments and
// persists the subscription atomically, gated by the project budget.
func (o *Orchestrator) CreateSubscription(ctx context.Context, actor Actor, input CreateSubscriptionInput) (*SubscriptionResult, error) {
	project, err := o.Store.GetProject(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil || project.CompanyID != actor.CompanyID {
		return nil, &NotFoundError{Kind: "project", ID: string(input.ProjectID)}
	}
	if project.Status != ProjectActive {
		return nil, &InvalidStateError{Kind: "project", ID: string(project.ID), Status: string(project.Status), Op: "create subscription"}
	}
	if !project.HasService(ServiceLunch) {
		return nil, &InvalidStateError{Kind: "project", ID: string(project.ID), Status: "no lunch service", Op: "create subscription"}
	}
	if len(input.Employees) == 0 {
		return nil, &ValidationError{Field: "employees", Message: "at least one employee is required"}
	}

	now := o.Clock.Now()
	subscription := Subscription{
		ID:        SubscriptionID(NewID("sub")),
		ProjectID: project.ID,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		Status:    SubscriptionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	total := Money{Currency: project.Currency}
	var assignments []Assignment

	for _, sel := range input.Employees {
		employee, err := o.Store.GetEmployee(ctx, sel.EmployeeID)
		if err != nil {
			return nil, err
		}
		if employee == nil {
			return nil, &NotFoundError{Kind: "employee", ID: string(sel.EmployeeID)}
		}
		// An employee may only be enrolled for their own project: the
		// project is the sole source of the delivery address.
		if employee.ProjectID != project.ID {
			return nil, &ValidationError{Field: "employeeId", Message: "employee " + string(sel.EmployeeID) + " belongs to a different project"}
		}
		if !employee.Active {
			return nil, &InvalidStateError{Kind: "employee", ID: string(sel.EmployeeID), Status: "inactive", Op: "enroll"}
		}

		price, ok := project.ComboPrices[sel.Combo]
		if !ok {
			return nil, &ValidationError{Field: "comboType", Message: "no price configured for combo " + string(sel.Combo)}
		}

		dates, err := o.Calendar.Generate(input.StartDate, input.EndDate, sel.Pattern, sel.CustomDates)
		if err != nil {
			return nil, err
		}
		if len(dates) == 0 {
			return nil, &ValidationError{Field: "customDates", Message: "no dates fall within the subscription range"}
		}

		// Enforce at most one non-cancelled assignment per (employee, date).
		existing, err := o.Store.ListAssignmentsByEmployee(ctx, employee.ID, input.StartDate, input.EndDate)
		if err != nil {
			return nil, err
		}
		occupied := make(map[string]bool)
		for _, a := range existing {
			if a.Status.NonCancelled() {
				occupied[a.Date.String()] = true
			}
		}

		for _, d := range dates {
			if occupied[d.String()] {
				return nil, &InvalidStateError{Kind: "assignment", ID: string(employee.ID), Status: "date " + d.String() + " already assigned", Op: "create"}
			}
			assignments = append(assignments, Assignment{
				ID:             AssignmentID(NewID("asg")),
				SubscriptionID: subscription.ID,
				EmployeeID:     employee.ID,
				Date:           d,
				Combo:          sel.Combo,
				Price:          price,
				Status:         AssignmentActive,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
			total = total.Add(price)
		}
	}

	subscription.TotalAmount = total
	subscription.PaidAmount = total.Zero()

	err = o.Budget.Reserve(ctx, project.ID, total, func() error {
		return o.Store.WithTx(ctx, func(s Store) error {
			if err := s.InsertSubscription(ctx, subscription); err != nil {
				return err
			}
			return s.InsertAssignments(ctx, assignments)
		})
	})
	if err != nil {
		return nil, err
	}

	return &SubscriptionResult{
		Subscription: subscription,
		Assignments:  assignments,
		TotalAmount:  total,
		TotalDays:    subscription.TotalDays(),
	}, nil
}

// =============================================================================
// BULK ACTIONS
// =============================================================================

type BulkResult struct {
	UpdatedCount int
}

// BulkAction applies one state transition to every named assignment in a
// single atomic operation. An assignment that cannot take the transition
// aborts the whole batch with InvalidState.
func (o *Orchestrator) BulkAction(ctx context.Context, actor Actor, orderIDs []AssignmentID, action BulkActionType, combo ComboType) (*BulkResult, error) {
	if len(orderIDs) == 0 {
		return nil, &ValidationError{Field: "orderIds", Message: "at least one order id is required"}
	}

	// Resolve everything up front so tenancy holds for the whole batch.
	type target struct {
		assignment *Assignment
		project    *Project
	}
	targets := make([]target, 0, len(orderIDs))
	subIDs := make(map[SubscriptionID]bool)

	for _, id := range orderIDs {
		a, sub, project, err := o.Freeze.resolveOrder(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{assignment: a, project: project})
		subIDs[sub.ID] = true
	}

	var subKeys []string
	for id := range subIDs {
		subKeys = append(subKeys, "subscription:"+string(id))
	}
	sort.Strings(subKeys)

	release, err := o.Locks.AcquireAll(ctx, subKeys)
	if err != nil {
		return nil, err
	}
	defer release()

	now := o.Clock.Now()
	updated := 0

	err = RetryOnConflict(func() error {
		updated = 0
		return o.Store.WithTx(ctx, func(s Store) error {
			touched := make(map[SubscriptionID]bool)

			for _, t := range targets {
				a, err := s.GetAssignment(ctx, t.assignment.ID)
				if err != nil {
					return err
				}
				if a == nil {
					return &NotFoundError{Kind: "assignment", ID: string(t.assignment.ID)}
				}

				next, err := applyAction(t.project, a, action, combo, now)
				if err != nil {
					return err
				}
				next.UpdatedAt = now
				if err := s.UpdateAssignment(ctx, *next); err != nil {
					return err
				}
				touched[a.SubscriptionID] = true
				updated++
			}

			// Combo changes and cancellations move prices; keep
			// subscription totals honest.
			if action == BulkChangeCombo || action == BulkCancel {
				for subID := range touched {
					if err := recomputeTotal(ctx, s, subID, now); err != nil {
						return err
					}
				}
			}

			// A subscription with no non-cancelled assignments left is
			// itself over.
			if action == BulkCancel {
				for subID := range touched {
					if err := cancelIfFullyVoided(ctx, s, subID, now); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &BulkResult{UpdatedCount: updated}, nil
}

// applyAction computes the post-transition assignment or rejects it.
func applyAction(project *Project, a *Assignment, action BulkActionType, combo ComboType, now time.Time) (*Assignment, error) {
	next := *a
	switch action {
	case BulkPause:
		if a.Status != AssignmentActive {
			return nil, &InvalidStateError{Kind: "assignment", ID: string(a.ID), Status: string(a.Status), Op: "pause"}
		}
		next.Status = AssignmentPending

	case BulkResume:
		if a.Status != AssignmentPending {
			return nil, &InvalidStateError{Kind: "assignment", ID: string(a.ID), Status: string(a.Status), Op: "resume"}
		}
		next.Status = AssignmentActive

	case BulkCancel:
		if a.Status == AssignmentDelivered || a.Status == AssignmentCancelled {
			return nil, &InvalidStateError{Kind: "assignment", ID: string(a.ID), Status: string(a.Status), Op: "cancel"}
		}
		next.Status = AssignmentCancelled

	case BulkChangeCombo:
		if combo == "" {
			return nil, &ValidationError{Field: "comboType", Message: "comboType is required for change_combo"}
		}
		price, ok := project.ComboPrices[combo]
		if !ok {
			return nil, &ValidationError{Field: "comboType", Message: "no price configured for combo " + string(combo)}
		}
		if a.Status == AssignmentFrozen || a.Status == AssignmentDelivered || a.Status == AssignmentCancelled {
			return nil, &InvalidStateError{Kind: "assignment", ID: string(a.ID), Status: string(a.Status), Op: "change combo"}
		}
		today := project.TodayAt(now)
		if a.Date.Before(today) {
			return nil, &InvalidStateError{Kind: "assignment", ID: string(a.ID), Status: "past date " + a.Date.String(), Op: "change combo"}
		}
		next.Combo = combo
		next.Price = price

	default:
		return nil, &ValidationError{Field: "action", Message: "unknown action: " + string(action)}
	}
	return &next, nil
}

// =============================================================================
// UPDATE SUBSCRIPTION (combo change)
// =============================================================================

// UpdateSubscriptionCombo changes the combo for all future, non-frozen
// assignments of the subscription. Past and delivered assignments keep
// their historical price.
func (o *Orchestrator) UpdateSubscriptionCombo(ctx context.Context, actor Actor, subID SubscriptionID, combo ComboType) (*SubscriptionResult, error) {
	_, project, err := o.resolveSubscription(ctx, actor, subID)
	if err != nil {
		return nil, err
	}

	price, ok := project.ComboPrices[combo]
	if !ok {
		return nil, &ValidationError{Field: "comboType", Message: "no price configured for combo " + string(combo)}
	}

	release, err := o.Locks.Acquire(ctx, "subscription:"+string(subID))
	if err != nil {
		return nil, err
	}
	defer release()

	now := o.Clock.Now()
	today := project.TodayAt(now)

	var result *SubscriptionResult
	err = RetryOnConflict(func() error {
		return o.Store.WithTx(ctx, func(s Store) error {
			assignments, err := s.ListAssignmentsBySubscription(ctx, subID)
			if err != nil {
				return err
			}
			for _, a := range assignments {
				if !a.Date.After(today) {
					continue
				}
				if a.Status != AssignmentActive && a.Status != AssignmentPending && a.Status != AssignmentReplacement {
					continue
				}
				a.Combo = combo
				a.Price = price
				a.UpdatedAt = now
				if err := s.UpdateAssignment(ctx, a); err != nil {
					return err
				}
			}
			if err := recomputeTotal(ctx, s, subID, now); err != nil {
				return err
			}

			fresh, err := s.GetSubscription(ctx, subID)
			if err != nil {
				return err
			}
			final, err := s.ListAssignmentsBySubscription(ctx, subID)
			if err != nil {
				return err
			}
			result = &SubscriptionResult{
				Subscription: *fresh,
				Assignments:  final,
				TotalAmount:  fresh.TotalAmount,
				TotalDays:    fresh.TotalDays(),
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// cancelIfFullyVoided marks the subscription CANCELLED once every one of
// its assignments is cancelled.
func cancelIfFullyVoided(ctx context.Context, s Store, subID SubscriptionID, now time.Time) error {
	sub, err := s.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	if sub == nil {
		return &NotFoundError{Kind: "subscription", ID: string(subID)}
	}
	if sub.Status == SubscriptionCancelled {
		return nil
	}
	assignments, err := s.ListAssignmentsBySubscription(ctx, subID)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		if a.Status.NonCancelled() {
			return nil
		}
	}
	sub.Status = SubscriptionCancelled
	sub.UpdatedAt = now
	return s.UpdateSubscription(ctx, *sub)
}

// recomputeTotal rebuilds TotalAmount from the subscription's assignments
// that count toward spend.
func recomputeTotal(ctx context.Context, s Store, subID SubscriptionID, now time.Time) error {
	sub, err := s.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	if sub == nil {
		return &NotFoundError{Kind: "subscription", ID: string(subID)}
	}
	assignments, err := s.ListAssignmentsBySubscription(ctx, subID)
	if err != nil {
		return err
	}
	total := sub.TotalAmount.Zero()
	for _, a := range assignments {
		if a.Status.CountsTowardSpend() {
			total = total.Add(a.Price)
		}
	}
	sub.TotalAmount = total
	sub.UpdatedAt = now
	return s.UpdateSubscription(ctx, *sub)
}

// =============================================================================
// PAUSE / RESUME (subscription level)
// =============================================================================

// PauseSubscription marks the subscription paused and stamps the pause
// start. Assignments keep their states; day accounting happens on resume.
func (o *Orchestrator) PauseSubscription(ctx context.Context, actor Actor, subID SubscriptionID) (*Subscription, error) {
	subscription, _, err := o.resolveSubscription(ctx, actor, subID)
	if err != nil {
		return nil, err
	}

	release, err := o.Locks.Acquire(ctx, "subscription:"+string(subID))
	if err != nil {
		return nil, err
	}
	defer release()

	if subscription.Status != SubscriptionActive {
		return nil, &InvalidStateError{Kind: "subscription", ID: string(subID), Status: string(subscription.Status), Op: "pause"}
	}

	now := o.Clock.Now()
	paused := *subscription
	paused.Status = SubscriptionPaused
	paused.PausedAt = &now
	paused.UpdatedAt = now

	if err := RetryOnConflict(func() error { return o.Store.UpdateSubscription(ctx, paused) }); err != nil {
		return nil, err
	}
	paused.Version++
	return &paused, nil
}

// ResumeSubscription ends a pause: the elapsed whole days are added to
// the paused-days counter and the end date extends by the same, so
// totalDays == (end - start + 1) - pausedDaysCount stays constant.
func (o *Orchestrator) ResumeSubscription(ctx context.Context, actor Actor, subID SubscriptionID) (*Subscription, error) {
	subscription, project, err := o.resolveSubscription(ctx, actor, subID)
	if err != nil {
		return nil, err
	}

	release, err := o.Locks.Acquire(ctx, "subscription:"+string(subID))
	if err != nil {
		return nil, err
	}
	defer release()

	if subscription.Status != SubscriptionPaused || subscription.PausedAt == nil {
		return nil, &InvalidStateError{Kind: "subscription", ID: string(subID), Status: string(subscription.Status), Op: "resume"}
	}

	now := o.Clock.Now()
	pausedDays := DateOf((*subscription.PausedAt).In(project.Location())).DaysUntil(project.TodayAt(now))
	if pausedDays < 0 {
		pausedDays = 0
	}

	resumed := *subscription
	resumed.Status = SubscriptionActive
	resumed.PausedAt = nil
	resumed.PausedDaysCount += pausedDays
	resumed.EndDate = subscription.EndDate.AddDays(pausedDays)
	resumed.UpdatedAt = now

	if err := RetryOnConflict(func() error { return o.Store.UpdateSubscription(ctx, resumed) }); err != nil {
		return nil, err
	}
	resumed.Version++
	return &resumed, nil
}

// =============================================================================
// DASHBOARD
// =============================================================================

// Dashboard is the company/project budget and order overview.
type Dashboard struct {
	TotalBudget        Money
	Forecast           Money
	TotalOrders        int
	ActiveOrders       int
	PausedOrders       int
	ConsumptionPercent string
	AvailableBudget    Money
	IsLowBudget        bool
	LowBudgetWarning   string
	CutoffTime         string
	IsCutoffPassed     bool
	Timezone           string
}

// GetDashboard aggregates budget and order state for one project, or for
// every project of the company when projectID is nil. Cutoff fields are
// only meaningful for a single project.
func (o *Orchestrator) GetDashboard(ctx context.Context, actor Actor, projectID *ProjectID) (*Dashboard, error) {
	var projects []Project
	if projectID != nil {
		p, err := o.Store.GetProject(ctx, *projectID)
		if err != nil {
			return nil, err
		}
		if p == nil || p.CompanyID != actor.CompanyID {
			return nil, &NotFoundError{Kind: "project", ID: string(*projectID)}
		}
		projects = []Project{*p}
	} else {
		var err error
		projects, err = o.Store.ListProjects(ctx, actor.CompanyID)
		if err != nil {
			return nil, err
		}
		if len(projects) == 0 {
			return nil, &NotFoundError{Kind: "company", ID: string(actor.CompanyID)}
		}
	}

	currency := projects[0].Currency
	dash := &Dashboard{
		TotalBudget:     Money{Currency: currency},
		Forecast:        Money{Currency: currency},
		AvailableBudget: Money{Currency: currency},
	}

	spent := Money{Currency: currency}
	budget := Money{Currency: currency}

	for _, p := range projects {
		snap, err := o.Budget.Snapshot(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		dash.TotalBudget = dash.TotalBudget.Add(snap.Budget)
		dash.AvailableBudget = dash.AvailableBudget.Add(snap.AvailableBudget)
		spent = spent.Add(snap.Spent)
		budget = budget.Add(snap.Budget)
		if snap.IsLowBudget {
			dash.IsLowBudget = true
		}

		// Forecast is the committed spend: every non-cancelled assignment,
		// future ones included, plus compensation already paid.
		dash.Forecast = dash.Forecast.Add(snap.Spent)

		assignments, err := o.Store.ListAssignmentsByProject(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range assignments {
			dash.TotalOrders++
			switch a.Status {
			case AssignmentActive:
				dash.ActiveOrders++
			case AssignmentPending:
				dash.PausedOrders++
			}
		}
	}

	pct := "0"
	if !budget.IsZero() {
		pct = spent.Value.Div(budget.Value).Mul(decimal.NewFromInt(100)).StringFixed(2)
	}
	dash.ConsumptionPercent = pct

	if dash.IsLowBudget {
		dash.LowBudgetWarning = "remaining budget is below the configured threshold"
	}

	if len(projects) == 1 {
		p := projects[0]
		dash.CutoffTime = p.CutoffTime.String()
		dash.IsCutoffPassed = o.Budget.CutoffPassed(&p)
		dash.Timezone = p.Timezone
	}
	return dash, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (o *Orchestrator) resolveSubscription(ctx context.Context, actor Actor, subID SubscriptionID) (*Subscription, *Project, error) {
	subscription, err := o.Store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, nil, err
	}
	if subscription == nil {
		return nil, nil, &NotFoundError{Kind: "subscription", ID: string(subID)}
	}
	project, err := o.Store.GetProject(ctx, subscription.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil || project.CompanyID != actor.CompanyID {
		return nil, nil, &NotFoundError{Kind: "subscription", ID: string(subID)}
	}
	return subscription, project, nil
}
