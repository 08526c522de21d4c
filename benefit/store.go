/*
store.go - Persistence interfaces for the benefit engine

PURPOSE:

	Defines the interface between the engine and the database. Different
	implementations can use SQLite or in-memory storage; the engine is
	agnostic.

KEY INTERFACES:

	ProjectStore / EmployeeStore:  reference data lookups
	SubscriptionStore:             subscriptions with optimistic versioning
	AssignmentStore:               per-day meal assignments
	CompensationStore:             compensation transactions + day closes
	TxStore:                       atomic multi-entity mutations (WithTx)

CONCURRENCY CONTRACT:

	UpdateSubscription is a compare-and-swap on Subscription.Version: the
	store must reject a stale version with ErrConflict and increment the
	version on success. Every multi-entity mutation (freeze: assignment +
	replacement + end date) runs inside WithTx and is atomic or fully
	rolled back.

HISTORY:

	Assignments and compensation transactions are never hard-deleted.
	State changes go through UpdateAssignment; terminal states are kept
	for reporting.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - benefit/store: in-memory store for testing
*/
package benefit

import "context"

// =============================================================================
// REFERENCE DATA
// =============================================================================

type ProjectStore interface {
	SaveProject(ctx context.Context, p Project) error
	GetProject(ctx context.Context, id ProjectID) (*Project, error)
	ListProjects(ctx context.Context, companyID CompanyID) ([]Project, error)
}

type EmployeeStore interface {
	SaveEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
	ListEmployees(ctx context.Context, projectID ProjectID) ([]Employee, error)
}

// =============================================================================
// SUBSCRIPTIONS & ASSIGNMENTS
// =============================================================================

type SubscriptionStore interface {
	InsertSubscription(ctx context.Context, s Subscription) error

	GetSubscription(ctx context.Context, id SubscriptionID) (*Subscription, error)

	// UpdateSubscription persists s if s.Version matches the stored
	// version, then increments it. A stale version fails with ErrConflict.
	UpdateSubscription(ctx context.Context, s Subscription) error

	ListSubscriptionsByProject(ctx context.Context, projectID ProjectID) ([]Subscription, error)
}

type AssignmentStore interface {
	InsertAssignments(ctx context.Context, as []Assignment) error

	GetAssignment(ctx context.Context, id AssignmentID) (*Assignment, error)

	// UpdateAssignment replaces the stored assignment. Status history is
	// carried in the row itself; rows are never deleted.
	UpdateAssignment(ctx context.Context, a Assignment) error

	ListAssignmentsBySubscription(ctx context.Context, id SubscriptionID) ([]Assignment, error)

	// ListAssignmentsByEmployee returns assignments in [from, to],
	// ascending by date. A zero from/to leaves that bound open.
	ListAssignmentsByEmployee(ctx context.Context, id EmployeeID, from, to Date) ([]Assignment, error)

	ListAssignmentsByProject(ctx context.Context, id ProjectID) ([]Assignment, error)

	// CountFrozenInWeek counts FROZEN assignments for the employee whose
	// date falls in the ISO week containing day. This is the aggregate
	// read path for freeze-limit checks; the engine also derives the same
	// number by scanning the week's assignments.
	CountFrozenInWeek(ctx context.Context, id EmployeeID, day Date) (int, error)
}

// =============================================================================
// COMPENSATION
// =============================================================================

// DayCloseRecord is the materialized end-of-day compensation state for one
// employee. Derived data: it can always be rebuilt from transactions.
type DayCloseRecord struct {
	EmployeeID  EmployeeID
	ProjectID   ProjectID
	Date        Date
	DailyLimit  Money
	Used        Money
	Remaining   Money // true value, may be negative
	RolloverOut Money // carried into the next day iff rollover enabled
}

type CompensationStore interface {
	InsertTransaction(ctx context.Context, tx CompensationTransaction) error

	// ListTransactionsByEmployee returns transactions in [from, to],
	// ascending by date then creation time. Zero bounds are open.
	ListTransactionsByEmployee(ctx context.Context, id EmployeeID, from, to Date) ([]CompensationTransaction, error)

	ListTransactionsByProject(ctx context.Context, id ProjectID, from, to Date) ([]CompensationTransaction, error)

	// SaveDayClose upserts a day-close record. Idempotent per
	// (employee, date): re-closing a day overwrites the same row.
	SaveDayClose(ctx context.Context, rec DayCloseRecord) error

	GetDayClose(ctx context.Context, id EmployeeID, day Date) (*DayCloseRecord, error)
}

// =============================================================================
// COMPOSITE STORE
// =============================================================================

// Store aggregates every persistence capability the engine uses.
type Store interface {
	ProjectStore
	EmployeeStore
	SubscriptionStore
	AssignmentStore
	CompensationStore
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back, otherwise committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
