/*
budget.go - Project budget ledger and cutoff gate

PURPOSE:

	Tracks a project's budget, overdraft limit and spend; computes
	consumption ratios and low-budget warnings; gates new spend against the
	project's daily cutoff time.

DERIVED SPEND:

	Spend is never a stored counter. It is recomputed on read as the sum of
	non-cancelled assignment prices (frozen days excluded - their value
	travels with the replacement) plus compensation company-paid amounts.
	This keeps the ledger and the underlying facts from drifting.

ATOMIC CHECK-AND-SPEND:

	Reserve serializes the budget read and the spend write per project, so
	two concurrent order creations cannot both pass the check against the
	same remaining headroom and jointly exceed AvailableBudget.

ADVISORY BLOCKING:

	A failed budget check rejects the spend with BudgetExceeded but does
	not transition the project to BLOCKED_DEBT; that is an external
	collaborator's call, triggered by this signal.
*/
package benefit

import (
	"context"

	"github.com/shopspring/decimal"
)

// BudgetConfig holds engine-wide budget tuning. LowBudgetThreshold is the
// fraction of the budget under which remaining headroom triggers a
// low-budget warning; it is configuration, not a per-project constant.
type BudgetConfig struct {
	LowBudgetThreshold decimal.Decimal // e.g. 0.20
}

// BudgetSnapshot is the computed budget state of one project.
type BudgetSnapshot struct {
	ProjectID          ProjectID
	Budget             Money
	OverdraftLimit     Money
	Spent              Money
	AvailableBudget    Money // budget + overdraft
	ConsumptionPercent decimal.Decimal
	IsLowBudget        bool
}

// Remaining is the headroom left before AvailableBudget is exhausted.
func (s BudgetSnapshot) Remaining() Money { return s.AvailableBudget.Sub(s.Spent) }

// BudgetLedger computes budget snapshots and gates spend.
type BudgetLedger struct {
	Store  Store
	Clock  Clock
	Config BudgetConfig

	locks *KeyedLocks // per project
}

func NewBudgetLedger(store Store, clock Clock, cfg BudgetConfig, locks *KeyedLocks) *BudgetLedger {
	return &BudgetLedger{Store: store, Clock: clock, Config: cfg, locks: locks}
}

// Snapshot recomputes the budget state of a project from persisted facts.
func (bl *BudgetLedger) Snapshot(ctx context.Context, projectID ProjectID) (*BudgetSnapshot, error) {
	project, err := bl.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, &NotFoundError{Kind: "project", ID: string(projectID)}
	}

	spent := project.Budget.Zero()

	assignments, err := bl.Store.ListAssignmentsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if a.Status.CountsTowardSpend() {
			spent = spent.Add(a.Price)
		}
	}

	compTxs, err := bl.Store.ListTransactionsByProject(ctx, projectID, Date{}, Date{})
	if err != nil {
		return nil, err
	}
	for _, tx := range compTxs {
		spent = spent.Add(tx.CompanyPaid)
	}

	available := project.Budget.Add(project.OverdraftLimit)

	// ConsumptionPercent = spent / budget * 100, with 0 for a zero budget.
	pct := decimal.Zero
	if !project.Budget.IsZero() {
		pct = spent.Value.Div(project.Budget.Value).Mul(decimal.NewFromInt(100))
	}

	threshold := project.Budget.Mul(bl.Config.LowBudgetThreshold)
	isLow := available.Sub(spent).LessThan(threshold)

	return &BudgetSnapshot{
		ProjectID:          projectID,
		Budget:             project.Budget,
		OverdraftLimit:     project.OverdraftLimit,
		Spent:              spent,
		AvailableBudget:    available,
		ConsumptionPercent: pct,
		IsLowBudget:        isLow,
	}, nil
}

// CheckSpend validates that adding amount to the snapshot's spend stays
// within AvailableBudget.
func (bl *BudgetLedger) CheckSpend(snap *BudgetSnapshot, amount Money) error {
	if snap.Spent.Add(amount).GreaterThan(snap.AvailableBudget) {
		return &BudgetExceededError{
			ProjectID: snap.ProjectID,
			Available: snap.AvailableBudget,
			Spent:     snap.Spent,
			Requested: amount,
		}
	}
	return nil
}

// Reserve runs the budget check and the spend write as one atomic unit
// per project. persist must record the spend (it runs while the project
// lock is held).
func (bl *BudgetLedger) Reserve(ctx context.Context, projectID ProjectID, amount Money, persist func() error) error {
	release, err := bl.locks.Acquire(ctx, "project:"+string(projectID))
	if err != nil {
		return err
	}
	defer release()

	snap, err := bl.Snapshot(ctx, projectID)
	if err != nil {
		return err
	}
	if err := bl.CheckSpend(snap, amount); err != nil {
		return err
	}
	return persist()
}

// CheckCutoff enforces the project's daily cutoff for mutations touching
// today's assignment. Future dates always pass; an administrative
// override skips the check.
func (bl *BudgetLedger) CheckCutoff(project *Project, date Date, override bool) error {
	if override {
		return nil
	}
	today := project.TodayAt(bl.Clock.Now())
	if !date.Equal(today) {
		return nil
	}
	if project.CutoffPassedAt(bl.Clock.Now()) {
		return &CutoffError{ProjectID: project.ID, Date: date, Cutoff: project.CutoffTime}
	}
	return nil
}

// CutoffPassed reports whether the project's cutoff has passed right now.
func (bl *BudgetLedger) CutoffPassed(project *Project) bool {
	return project.CutoffPassedAt(bl.Clock.Now())
}
