/*
freeze.go - Skip-and-extend freeze lifecycle

PURPOSE:

	Converts a "skip this day" request into assignment-state changes plus a
	compensating replacement assignment, extending the subscription so paid
	days are not lost.

STATE MACHINE (per assignment):

	PENDING/ACTIVE -> FROZEN   (replacement created, end date +1)
	FROZEN         -> ACTIVE   (unfreeze: replacement cancelled, end date -1)

INVARIANTS:
  - A FROZEN assignment always links to exactly one REPLACEMENT
    assignment dated strictly after the subscription's original end date.
  - subscription.endDate == originalEndDate + number of currently-FROZEN
    assignments.
  - FreezeOrder then UnfreezeOrder is a no-op on the subscription end
    date and the assignment state (round-trip law).

WEEKLY LIMIT:

	At most Config.MaxFreezesPerWeek freezes per employee per ISO week
	(Monday-Sunday). Usage is derived by counting FROZEN assignments in the
	week, never kept as a separate counter.

ATOMICITY:

	Every freeze/unfreeze mutates assignment + replacement + subscription
	end date inside one store transaction. FreezePeriod freezes a whole
	range all-or-nothing: a limit hit partway through rolls everything back
	and reports the offending date.
*/
package benefit

import (
	"context"
	"sort"
)

// FreezeConfig holds the engine-wide freeze limits.
type FreezeConfig struct {
	MaxFreezesPerWeek int
}

// FreezeEngine applies and reverts freezes.
type FreezeEngine struct {
	Store  TxStore
	Budget *BudgetLedger
	Clock  Clock
	Config FreezeConfig
	Locks  *KeyedLocks // per subscription
}

func NewFreezeEngine(store TxStore, budget *BudgetLedger, clock Clock, cfg FreezeConfig, locks *KeyedLocks) *FreezeEngine {
	return &FreezeEngine{Store: store, Budget: budget, Clock: clock, Config: cfg, Locks: locks}
}

// FreezeResult reports the outcome of a single freeze.
type FreezeResult struct {
	Assignment  Assignment
	Replacement Assignment
	NewEndDate  Date
}

// FreezePeriodResult reports the outcome of a range freeze.
type FreezePeriodResult struct {
	AffectedOrderIDs       []AssignmentID
	NewSubscriptionEndDate Date
}

// FreezeInfo is the employee's freeze budget for the current ISO week.
type FreezeInfo struct {
	RemainingFreezes int
	UsedThisWeek     int
	WeekLimit        int
}

// =============================================================================
// FREEZE / UNFREEZE
// =============================================================================

// FreezeOrder freezes a single assignment and appends its replacement.
func (fe *FreezeEngine) FreezeOrder(ctx context.Context, actor Actor, orderID AssignmentID, reason string) (*FreezeResult, error) {
	_, subscription, project, err := fe.resolveOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	release, err := fe.Locks.Acquire(ctx, "subscription:"+string(subscription.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	var result *FreezeResult
	err = RetryOnConflict(func() error {
		return fe.Store.WithTx(ctx, func(s Store) error {
			// Re-read under the lock: the pre-lock reads may be stale.
			assignment, err := s.GetAssignment(ctx, orderID)
			if err != nil {
				return err
			}
			if assignment == nil {
				return &NotFoundError{Kind: "assignment", ID: string(orderID)}
			}
			subscription, err := s.GetSubscription(ctx, assignment.SubscriptionID)
			if err != nil {
				return err
			}
			if subscription == nil {
				return &NotFoundError{Kind: "subscription", ID: string(assignment.SubscriptionID)}
			}

			r, ferr := fe.freezeOne(ctx, s, project, subscription, assignment, reason)
			if ferr != nil {
				return ferr
			}
			result = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// freezeOne performs one freeze inside the given store view. The view is
// transactional: batch freezes (FreezePeriod) see prior in-batch writes,
// so the weekly-limit count includes days frozen earlier in the batch.
func (fe *FreezeEngine) freezeOne(ctx context.Context, store Store, project *Project, subscription *Subscription, assignment *Assignment, reason string) (*FreezeResult, error) {
	if !assignment.Status.Freezable() {
		return nil, &InvalidStateError{Kind: "assignment", ID: string(assignment.ID), Status: string(assignment.Status), Op: "freeze"}
	}

	now := fe.Clock.Now()
	today := project.TodayAt(now)
	if assignment.Date.Before(today) {
		return nil, &InvalidStateError{Kind: "assignment", ID: string(assignment.ID), Status: "past date " + assignment.Date.String(), Op: "freeze"}
	}
	if err := fe.Budget.CheckCutoff(project, assignment.Date, false); err != nil {
		return nil, err
	}

	used, err := fe.freezeUsage(ctx, store, assignment.EmployeeID, assignment.Date)
	if err != nil {
		return nil, err
	}
	if used >= fe.Config.MaxFreezesPerWeek {
		return nil, &FreezeLimitError{
			EmployeeID: assignment.EmployeeID,
			Date:       assignment.Date,
			Used:       used,
			Limit:      fe.Config.MaxFreezesPerWeek,
		}
	}

	replacementDate, err := fe.nextFreeDate(ctx, store, assignment.EmployeeID, subscription.EndDate.AddDays(1))
	if err != nil {
		return nil, err
	}

	replacement := Assignment{
		ID:             AssignmentID(NewID("asg")),
		SubscriptionID: subscription.ID,
		EmployeeID:     assignment.EmployeeID,
		Date:           replacementDate,
		Combo:          assignment.Combo,
		Price:          assignment.Price,
		Status:         AssignmentReplacement,
		ReplacesID:     &assignment.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	frozen := *assignment
	frozen.Status = AssignmentFrozen
	frozen.FrozenAt = &now
	frozen.FreezeReason = reason
	frozen.ReplacementID = &replacement.ID
	frozen.ReplacementDate = &replacementDate
	frozen.UpdatedAt = now

	extended := *subscription
	extended.EndDate = subscription.EndDate.AddDays(1)
	extended.UpdatedAt = now

	if err := store.UpdateAssignment(ctx, frozen); err != nil {
		return nil, err
	}
	if err := store.InsertAssignments(ctx, []Assignment{replacement}); err != nil {
		return nil, err
	}
	if err := store.UpdateSubscription(ctx, extended); err != nil {
		return nil, err
	}

	// Keep the caller's copy current for chained freezes in one batch.
	subscription.EndDate = extended.EndDate
	subscription.Version++
	return &FreezeResult{Assignment: frozen, Replacement: replacement, NewEndDate: extended.EndDate}, nil
}

// UnfreezeOrder reverts a freeze: the replacement is cancelled, the
// assignment returns to ACTIVE and the subscription end date shrinks by
// one day. Exact inverse of FreezeOrder.
func (fe *FreezeEngine) UnfreezeOrder(ctx context.Context, actor Actor, orderID AssignmentID) (*Assignment, error) {
	assignment, subscription, _, err := fe.resolveOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	release, err := fe.Locks.Acquire(ctx, "subscription:"+string(subscription.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	var restored *Assignment
	err = RetryOnConflict(func() error {
		assignment, err = fe.Store.GetAssignment(ctx, orderID)
		if err != nil {
			return err
		}
		if assignment == nil {
			return &NotFoundError{Kind: "assignment", ID: string(orderID)}
		}
		subscription, err = fe.Store.GetSubscription(ctx, assignment.SubscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return &NotFoundError{Kind: "subscription", ID: string(assignment.SubscriptionID)}
		}

		if assignment.Status != AssignmentFrozen {
			return &InvalidStateError{Kind: "assignment", ID: string(orderID), Status: string(assignment.Status), Op: "unfreeze"}
		}
		if assignment.ReplacementID == nil {
			return &InvalidStateError{Kind: "assignment", ID: string(orderID), Status: "frozen without replacement", Op: "unfreeze"}
		}

		replacement, err := fe.Store.GetAssignment(ctx, *assignment.ReplacementID)
		if err != nil {
			return err
		}
		if replacement == nil {
			return &NotFoundError{Kind: "assignment", ID: string(*assignment.ReplacementID)}
		}
		if replacement.Status == AssignmentDelivered || replacement.Status == AssignmentFrozen {
			return &InvalidStateError{Kind: "assignment", ID: string(replacement.ID), Status: string(replacement.Status), Op: "remove replacement"}
		}

		now := fe.Clock.Now()

		reverted := *assignment
		reverted.Status = AssignmentActive
		reverted.FrozenAt = nil
		reverted.FreezeReason = ""
		reverted.ReplacementID = nil
		reverted.ReplacementDate = nil
		reverted.UpdatedAt = now

		cancelled := *replacement
		cancelled.Status = AssignmentCancelled
		cancelled.UpdatedAt = now

		shrunk := *subscription
		shrunk.EndDate = subscription.EndDate.AddDays(-1)
		shrunk.UpdatedAt = now

		err = fe.Store.WithTx(ctx, func(s Store) error {
			if err := s.UpdateAssignment(ctx, reverted); err != nil {
				return err
			}
			if err := s.UpdateAssignment(ctx, cancelled); err != nil {
				return err
			}
			return s.UpdateSubscription(ctx, shrunk)
		})
		if err != nil {
			return err
		}
		restored = &reverted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// =============================================================================
// RANGE FREEZE - All-or-nothing
// =============================================================================

// FreezePeriod freezes every ACTIVE assignment of the employee in
// [startDate, endDate], ascending. If the weekly limit is hit partway the
// whole operation rolls back and the error names the offending date.
func (fe *FreezeEngine) FreezePeriod(ctx context.Context, actor Actor, employeeID EmployeeID, startDate, endDate Date, reason string) (*FreezePeriodResult, error) {
	if endDate.Before(startDate) {
		return nil, &ValidationError{Field: "endDate", Message: "end date before start date"}
	}

	employee, err := fe.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if employee == nil {
		return nil, &NotFoundError{Kind: "employee", ID: string(employeeID)}
	}
	project, err := fe.Store.GetProject(ctx, employee.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil || project.CompanyID != actor.CompanyID {
		return nil, &NotFoundError{Kind: "employee", ID: string(employeeID)}
	}

	release, err := fe.Locks.Acquire(ctx, "employee:"+string(employeeID))
	if err != nil {
		return nil, err
	}
	defer release()

	assignments, err := fe.Store.ListAssignmentsByEmployee(ctx, employeeID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	var targets []Assignment
	for _, a := range assignments {
		if a.Status == AssignmentActive {
			targets = append(targets, a)
		}
	}
	if len(targets) == 0 {
		return nil, &ValidationError{Field: "period", Message: "no active assignments in range"}
	}

	// Lock the touched subscriptions in canonical order.
	subKeys := distinctSubscriptionKeys(targets)
	releaseSubs, err := fe.Locks.AcquireAll(ctx, subKeys)
	if err != nil {
		return nil, err
	}
	defer releaseSubs()

	result := &FreezePeriodResult{}
	err = fe.Store.WithTx(ctx, func(s Store) error {
		subs := make(map[SubscriptionID]*Subscription)

		for _, target := range targets {
			a := target
			sub, ok := subs[a.SubscriptionID]
			if !ok {
				sub, err = s.GetSubscription(ctx, a.SubscriptionID)
				if err != nil {
					return err
				}
				if sub == nil {
					return &NotFoundError{Kind: "subscription", ID: string(a.SubscriptionID)}
				}
				subs[a.SubscriptionID] = sub
			}

			r, ferr := fe.freezeOne(ctx, s, project, sub, &a, reason)
			if ferr != nil {
				return ferr
			}
			result.AffectedOrderIDs = append(result.AffectedOrderIDs, a.ID)
			result.NewSubscriptionEndDate = r.NewEndDate
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func distinctSubscriptionKeys(as []Assignment) []string {
	seen := make(map[SubscriptionID]bool)
	var keys []string
	for _, a := range as {
		if !seen[a.SubscriptionID] {
			seen[a.SubscriptionID] = true
			keys = append(keys, "subscription:"+string(a.SubscriptionID))
		}
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// LIMIT QUERIES
// =============================================================================

// ValidateFreezeLimit reports whether the employee may freeze another day
// in the ISO week containing date, against the given weekly maximum.
// Derived read path: counts FROZEN assignments in the week's range.
func (fe *FreezeEngine) ValidateFreezeLimit(ctx context.Context, employeeID EmployeeID, date Date, maxFreezesPerWeek int) (bool, error) {
	used, err := fe.freezeUsage(ctx, fe.Store, employeeID, date)
	if err != nil {
		return false, err
	}
	return used < maxFreezesPerWeek, nil
}

// freezeUsage counts FROZEN assignments in the ISO week containing date.
func (fe *FreezeEngine) freezeUsage(ctx context.Context, store Store, employeeID EmployeeID, date Date) (int, error) {
	assignments, err := store.ListAssignmentsByEmployee(ctx, employeeID, date.WeekStart(), date.WeekEnd())
	if err != nil {
		return 0, err
	}
	used := 0
	for _, a := range assignments {
		if a.Status == AssignmentFrozen {
			used++
		}
	}
	return used, nil
}

// GetEmployeeFreezeInfo returns the freeze budget for the week containing
// today (project-local). Uses the store's aggregate count path.
func (fe *FreezeEngine) GetEmployeeFreezeInfo(ctx context.Context, actor Actor, employeeID EmployeeID) (*FreezeInfo, error) {
	employee, err := fe.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if employee == nil {
		return nil, &NotFoundError{Kind: "employee", ID: string(employeeID)}
	}
	project, err := fe.Store.GetProject(ctx, employee.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil || project.CompanyID != actor.CompanyID {
		return nil, &NotFoundError{Kind: "employee", ID: string(employeeID)}
	}

	today := project.TodayAt(fe.Clock.Now())
	used, err := fe.Store.CountFrozenInWeek(ctx, employeeID, today)
	if err != nil {
		return nil, err
	}

	remaining := fe.Config.MaxFreezesPerWeek - used
	if remaining < 0 {
		remaining = 0
	}
	return &FreezeInfo{
		RemainingFreezes: remaining,
		UsedThisWeek:     used,
		WeekLimit:        fe.Config.MaxFreezesPerWeek,
	}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// resolveOrder loads the assignment with its subscription and project,
// enforcing tenancy: a foreign company's order reports NotFound.
func (fe *FreezeEngine) resolveOrder(ctx context.Context, actor Actor, orderID AssignmentID) (*Assignment, *Subscription, *Project, error) {
	assignment, err := fe.Store.GetAssignment(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	if assignment == nil {
		return nil, nil, nil, &NotFoundError{Kind: "assignment", ID: string(orderID)}
	}
	subscription, err := fe.Store.GetSubscription(ctx, assignment.SubscriptionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if subscription == nil {
		return nil, nil, nil, &NotFoundError{Kind: "subscription", ID: string(assignment.SubscriptionID)}
	}
	project, err := fe.Store.GetProject(ctx, subscription.ProjectID)
	if err != nil {
		return nil, nil, nil, err
	}
	if project == nil || project.CompanyID != actor.CompanyID {
		return nil, nil, nil, &NotFoundError{Kind: "assignment", ID: string(orderID)}
	}
	return assignment, subscription, project, nil
}

// nextFreeDate walks forward from the candidate date until it finds a day
// with no non-cancelled assignment for the employee.
func (fe *FreezeEngine) nextFreeDate(ctx context.Context, store Store, employeeID EmployeeID, candidate Date) (Date, error) {
	for {
		existing, err := store.ListAssignmentsByEmployee(ctx, employeeID, candidate, candidate)
		if err != nil {
			return Date{}, err
		}
		occupied := false
		for _, a := range existing {
			if a.Status.NonCancelled() {
				occupied = true
				break
			}
		}
		if !occupied {
			return candidate, nil
		}
		candidate = candidate.AddDays(1)
	}
}
