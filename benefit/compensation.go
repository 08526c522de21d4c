/*
compensation.go - Per-employee daily-limit allowance accounting

PURPOSE:

	Splits each restaurant spend between the company allowance and the
	employee, tracks per-day usage, and carries unused balance forward when
	the project enables rollover.

THE SPLIT:

	companyPaid  = min(amount, max(0, remainingToday))
	employeePaid = amount - companyPaid
	Both are non-negative and sum exactly to amount. All arithmetic is
	decimal; there is no rounding drift.

ROLLOVER:

	remainingToday = dailyLimit + accumulatedRollover - usedToday
	rollover(next) = rolloverEnabled ? max(0, remainingToday) : 0

	The day-boundary transition is an explicit recompute over the prior
	day's state, not an incremental mutation, so closing the same day twice
	yields the same result. DailyBalance replays the employee's transaction
	history day by day from the first recorded spend.
*/
package benefit

import (
	"context"
)

// DailyBalance is the computed compensation state of one employee on one day.
type DailyBalance struct {
	EmployeeID EmployeeID
	Date       Date
	DailyLimit Money
	Rollover   Money // accumulated from prior days
	Used       Money // company-paid so far today
	Remaining  Money // true value, may be negative
}

// Payable is the remaining amount usable for the next split, floored at 0.
func (b DailyBalance) Payable() Money { return b.Remaining.FloorZero() }

// DailySummary aggregates a project's compensation activity for one day.
type DailySummary struct {
	ProjectID         ProjectID
	Date              Date
	TransactionCount  int
	TotalAmount       Money
	TotalCompanyPaid  Money
	TotalEmployeePaid Money
	DistinctEmployees int
	PerEmployee       []EmployeeDaySummary
}

type EmployeeDaySummary struct {
	EmployeeID       EmployeeID
	TransactionCount int
	TotalAmount      Money
	CompanyPaid      Money
	EmployeePaid     Money
}

// CompensationLedger performs allowance accounting for compensation projects.
type CompensationLedger struct {
	Store Store
	Clock Clock

	locks *KeyedLocks // per employee
}

func NewCompensationLedger(store Store, clock Clock, locks *KeyedLocks) *CompensationLedger {
	return &CompensationLedger{Store: store, Clock: clock, locks: locks}
}

// limitFor resolves the daily limit, honoring the employee override.
func limitFor(project *Project, employee *Employee) Money {
	if employee.CompensationLimitOverride != nil {
		return *employee.CompensationLimitOverride
	}
	return project.CompensationDailyLimit
}

// DailyBalance recomputes the employee's compensation state for a day by
// replaying transaction history. Pure over persisted facts: calling it
// any number of times for the same day yields the same balance.
func (cl *CompensationLedger) DailyBalance(ctx context.Context, project *Project, employee *Employee, day Date) (*DailyBalance, error) {
	txs, err := cl.Store.ListTransactionsByEmployee(ctx, employee.ID, Date{}, day)
	if err != nil {
		return nil, err
	}

	limit := limitFor(project, employee)
	rollover := limit.Zero()

	if len(txs) > 0 {
		byDay := make(map[string]Money)
		first := txs[0].Date
		for _, tx := range txs {
			if tx.Date.Before(first) {
				first = tx.Date
			}
			k := tx.Date.String()
			byDay[k] = byDay[k].Add(tx.CompanyPaid)
		}

		// Walk every day from the first spend up to (but excluding) the
		// requested day, applying the rollover transition at each boundary.
		for cur := first; cur.Before(day); cur = cur.AddDays(1) {
			used := limit.Zero()
			if u, ok := byDay[cur.String()]; ok {
				used = Money{Value: u.Value, Currency: limit.Currency}
			}
			remaining := limit.Add(rollover).Sub(used)
			if project.CompensationRollover {
				rollover = remaining.FloorZero()
			} else {
				rollover = limit.Zero()
			}
		}
	}

	used := limit.Zero()
	for _, tx := range txs {
		if tx.Date.Equal(day) {
			used = used.Add(tx.CompanyPaid)
		}
	}

	return &DailyBalance{
		EmployeeID: employee.ID,
		Date:       day,
		DailyLimit: limit,
		Rollover:   rollover,
		Used:       used,
		Remaining:  limit.Add(rollover).Sub(used),
	}, nil
}

// ProcessTransaction splits a restaurant spend for today (project-local)
// and records it. The read of the balance and the write of the
// transaction are serialized per employee.
func (cl *CompensationLedger) ProcessTransaction(ctx context.Context, actor Actor, employeeID EmployeeID, projectID ProjectID, amount Money, restaurantName, description string) (*CompensationTransaction, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "amount must be positive"}
	}

	project, err := cl.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil || project.CompanyID != actor.CompanyID {
		return nil, &NotFoundError{Kind: "project", ID: string(projectID)}
	}
	if !project.HasService(ServiceCompensation) {
		return nil, &InvalidStateError{Kind: "project", ID: string(projectID), Status: "no compensation service", Op: "process transaction"}
	}

	employee, err := cl.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if employee == nil || employee.ProjectID != projectID {
		return nil, &NotFoundError{Kind: "employee", ID: string(employeeID)}
	}
	if !employee.Active {
		return nil, &InvalidStateError{Kind: "employee", ID: string(employeeID), Status: "inactive", Op: "process transaction"}
	}

	release, err := cl.locks.Acquire(ctx, "employee:"+string(employeeID))
	if err != nil {
		return nil, err
	}
	defer release()

	now := cl.Clock.Now()
	today := project.TodayAt(now)

	balance, err := cl.DailyBalance(ctx, project, employee, today)
	if err != nil {
		return nil, err
	}

	companyPaid := amount.Min(balance.Payable())
	employeePaid := amount.Sub(companyPaid)

	tx := CompensationTransaction{
		ID:             TransactionID(NewID("ctx")),
		EmployeeID:     employeeID,
		ProjectID:      projectID,
		Amount:         amount,
		CompanyPaid:    companyPaid,
		EmployeePaid:   employeePaid,
		RestaurantName: restaurantName,
		Description:    description,
		Date:           today,
		CreatedAt:      now,
	}

	if err := cl.Store.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// CloseDay materializes the end-of-day record for one employee. Because it
// is a recompute over DailyBalance, closing the same day repeatedly is
// idempotent.
func (cl *CompensationLedger) CloseDay(ctx context.Context, project *Project, employee *Employee, day Date) (*DayCloseRecord, error) {
	balance, err := cl.DailyBalance(ctx, project, employee, day)
	if err != nil {
		return nil, err
	}

	rolloverOut := balance.DailyLimit.Zero()
	if project.CompensationRollover {
		rolloverOut = balance.Remaining.FloorZero()
	}

	rec := DayCloseRecord{
		EmployeeID:  employee.ID,
		ProjectID:   project.ID,
		Date:        day,
		DailyLimit:  balance.DailyLimit,
		Used:        balance.Used,
		Remaining:   balance.Remaining,
		RolloverOut: rolloverOut,
	}
	if err := cl.Store.SaveDayClose(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetDailySummary aggregates one day of a project's compensation activity.
// Read-side only; no state mutation.
func (cl *CompensationLedger) GetDailySummary(ctx context.Context, actor Actor, projectID ProjectID, day Date) (*DailySummary, error) {
	project, err := cl.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil || project.CompanyID != actor.CompanyID {
		return nil, &NotFoundError{Kind: "project", ID: string(projectID)}
	}

	txs, err := cl.Store.ListTransactionsByProject(ctx, projectID, day, day)
	if err != nil {
		return nil, err
	}

	zero := Money{Currency: project.Currency}
	summary := &DailySummary{
		ProjectID:         projectID,
		Date:              day,
		TotalAmount:       zero,
		TotalCompanyPaid:  zero,
		TotalEmployeePaid: zero,
	}

	perEmployee := make(map[EmployeeID]*EmployeeDaySummary)
	var order []EmployeeID
	for _, tx := range txs {
		summary.TransactionCount++
		summary.TotalAmount = summary.TotalAmount.Add(tx.Amount)
		summary.TotalCompanyPaid = summary.TotalCompanyPaid.Add(tx.CompanyPaid)
		summary.TotalEmployeePaid = summary.TotalEmployeePaid.Add(tx.EmployeePaid)

		es, ok := perEmployee[tx.EmployeeID]
		if !ok {
			es = &EmployeeDaySummary{
				EmployeeID:   tx.EmployeeID,
				TotalAmount:  zero,
				CompanyPaid:  zero,
				EmployeePaid: zero,
			}
			perEmployee[tx.EmployeeID] = es
			order = append(order, tx.EmployeeID)
		}
		es.TransactionCount++
		es.TotalAmount = es.TotalAmount.Add(tx.Amount)
		es.CompanyPaid = es.CompanyPaid.Add(tx.CompanyPaid)
		es.EmployeePaid = es.EmployeePaid.Add(tx.EmployeePaid)
	}

	summary.DistinctEmployees = len(order)
	for _, id := range order {
		summary.PerEmployee = append(summary.PerEmployee, *perEmployee[id])
	}
	return summary, nil
}
