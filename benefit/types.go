/*
Package benefit provides the core meal benefit engine.

PURPOSE:

	This package contains the domain types and algorithms for managing
	recurring employee meal benefits. A subscription expands a recurrence
	pattern into dated meal assignments; freezes skip a day without losing
	its paid value; a compensation ledger splits restaurant spend against a
	daily allowance; a budget ledger gates new spend against a project's
	budget, overdraft and cutoff time.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A currency amount backed by decimal.Decimal
  - Project: The company unit owning budget, address and service types
  - Subscription: A dated run of assignments for a project
  - Assignment: One employee's meal order for a single date
  - CompensationTransaction: One reimbursable restaurant spend

DESIGN PRINCIPLES:
 1. Precision: Uses decimal.Decimal to avoid floating-point errors
 2. Type Safety: Strong typing for IDs prevents mixing entity kinds
 3. Derived State: Spend, freeze usage and daily balances are computed
    from persisted facts, never kept as separately mutated counters
 4. Explicit Tenancy: Every engine call carries an Actor; there is no
    ambient current-company state

SEE ALSO:
  - calendar.go: Recurrence pattern expansion
  - freeze.go: Skip-and-extend freeze lifecycle
  - budget.go: Budget / cutoff gating
  - compensation.go: Daily-limit allowance accounting
*/
package benefit

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency amount with fixed-point arithmetic
// =============================================================================

type Money struct {
	Value    decimal.Decimal
	Currency string
}

func NewMoney(value float64, currency string) Money {
	return Money{Value: decimal.NewFromFloat(value), Currency: currency}
}

func NewMoneyFromInt(value int, currency string) Money {
	return Money{Value: decimal.NewFromInt(int64(value)), Currency: currency}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (m Money) Zero() Money       { return Money{Value: decimal.Zero, Currency: m.Currency} }
func (m Money) Add(b Money) Money { return Money{Value: m.Value.Add(b.Value), Currency: m.Currency} }
func (m Money) Sub(b Money) Money { return Money{Value: m.Value.Sub(b.Value), Currency: m.Currency} }
func (m Money) Neg() Money        { return Money{Value: m.Value.Neg(), Currency: m.Currency} }
func (m Money) Mul(s decimal.Decimal) Money {
	return Money{Value: m.Value.Mul(s), Currency: m.Currency}
}
func (m Money) IsZero() bool             { return m.Value.IsZero() }
func (m Money) IsNegative() bool         { return m.Value.IsNegative() }
func (m Money) IsPositive() bool         { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool    { return m.Value.LessThan(b.Value) }
func (m Money) Equal(b Money) bool       { return m.Value.Equal(b.Value) }
func (m Money) Min(b Money) Money {
	if m.LessThan(b) {
		return m
	}
	return b
}
func (m Money) Max(b Money) Money {
	if m.GreaterThan(b) {
		return m
	}
	return b
}

// FloorZero clamps a negative amount to zero. Used for payout eligibility
// where the true (possibly negative) value is still reported elsewhere.
func (m Money) FloorZero() Money {
	if m.IsNegative() {
		return m.Zero()
	}
	return m
}

func (m Money) String() string { return m.Value.String() + " " + m.Currency }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CompanyID string
type ProjectID string
type EmployeeID string
type SubscriptionID string
type AssignmentID string
type TransactionID string

var idCounter atomic.Uint64

// NewID generates a process-unique id with the given prefix.
func NewID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idCounter.Add(1))
}

// Actor identifies the caller of an engine operation. It replaces any
// ambient "current user" state: tenancy checks compare Actor.CompanyID
// against the company owning the touched entities.
type Actor struct {
	CompanyID CompanyID
	ActorID   string
}

// =============================================================================
// PROJECT - Company unit owning budget, address and service types
// =============================================================================

type ProjectStatus string

const (
	ProjectActive      ProjectStatus = "active"
	ProjectBlockedDebt ProjectStatus = "blocked_debt"
	ProjectArchived    ProjectStatus = "archived"
)

type ServiceType string

const (
	ServiceLunch        ServiceType = "lunch"
	ServiceCompensation ServiceType = "compensation"
)

// Address is the delivery address for every employee of a project.
// Immutable after project creation.
type Address struct {
	Name        string
	FullAddress string
	Lat         *float64
	Lon         *float64
}

type ComboType string

type Project struct {
	ID             ProjectID
	CompanyID      CompanyID
	Name           string
	Address        Address
	Budget         Money
	OverdraftLimit Money
	Currency       string
	Timezone       string
	CutoffTime     TimeOfDay
	Status         ProjectStatus
	ServiceTypes   []ServiceType
	ComboPrices    map[ComboType]Money

	// Compensation settings
	CompensationDailyLimit Money
	CompensationRollover   bool

	CreatedAt time.Time
}

func (p Project) HasService(st ServiceType) bool {
	for _, s := range p.ServiceTypes {
		if s == st {
			return true
		}
	}
	return false
}

// Location resolves the project timezone, falling back to UTC.
func (p Project) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TodayAt returns the project-local calendar date for the given instant.
func (p Project) TodayAt(now time.Time) Date {
	return DateOf(now.In(p.Location()))
}

// CutoffPassedAt reports whether the project-local time of day has
// reached the cutoff at the given instant.
func (p Project) CutoffPassedAt(now time.Time) bool {
	local := now.In(p.Location())
	return !TimeOfDay{Hour: local.Hour(), Minute: local.Minute()}.Before(p.CutoffTime)
}

// =============================================================================
// EMPLOYEE - Always tied to exactly one project
// =============================================================================

type Employee struct {
	ID        EmployeeID
	ProjectID ProjectID
	Name      string
	Phone     string
	Active    bool

	// Optional per-employee override of the project compensation limit.
	CompensationLimitOverride *Money

	CreatedAt time.Time
}

// =============================================================================
// SUBSCRIPTION - A dated run of assignments
// =============================================================================

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionCompleted SubscriptionStatus = "completed"
)

type Subscription struct {
	ID        SubscriptionID
	ProjectID ProjectID
	StartDate Date
	EndDate   Date // mutable: extended by freezes and pauses, shrunk by unfreezes

	TotalAmount Money
	PaidAmount  Money
	Paid        bool

	Status          SubscriptionStatus
	PausedAt        *time.Time
	PausedDaysCount int

	// Optimistic concurrency stamp, checked on every update.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalDays is the number of paid-for days:
// (endDate - startDate + 1) - pausedDaysCount.
func (s Subscription) TotalDays() int {
	return s.StartDate.DaysUntil(s.EndDate) + 1 - s.PausedDaysCount
}

// =============================================================================
// ASSIGNMENT - One employee's meal order for a single date
// =============================================================================

type AssignmentStatus string

const (
	AssignmentPending     AssignmentStatus = "pending"
	AssignmentActive      AssignmentStatus = "active"
	AssignmentFrozen      AssignmentStatus = "frozen"
	AssignmentReplacement AssignmentStatus = "replacement"
	AssignmentDelivered   AssignmentStatus = "delivered"
	AssignmentCancelled   AssignmentStatus = "cancelled"
)

// Freezable reports whether a freeze may start from this status.
func (s AssignmentStatus) Freezable() bool {
	return s == AssignmentActive || s == AssignmentPending
}

// NonCancelled reports whether the assignment occupies its (employee, date)
// slot. At most one non-cancelled assignment may exist per slot.
func (s AssignmentStatus) NonCancelled() bool {
	return s != AssignmentCancelled
}

// CountsTowardSpend reports whether the assignment's price is part of the
// project spend. Frozen days are excluded: their value travels with the
// replacement assignment, keeping a freeze spend-neutral.
func (s AssignmentStatus) CountsTowardSpend() bool {
	switch s {
	case AssignmentPending, AssignmentActive, AssignmentReplacement, AssignmentDelivered:
		return true
	default:
		return false
	}
}

type Assignment struct {
	ID             AssignmentID
	SubscriptionID SubscriptionID
	EmployeeID     EmployeeID
	Date           Date
	Combo          ComboType
	Price          Money
	Status         AssignmentStatus

	// Freeze bookkeeping. A FROZEN assignment links to exactly one
	// REPLACEMENT assignment dated after the subscription's original end.
	FrozenAt        *time.Time
	FreezeReason    string
	ReplacementID   *AssignmentID
	ReplacementDate *Date

	// Set on REPLACEMENT assignments: the frozen assignment it stands in for.
	ReplacesID *AssignmentID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// COMPENSATION TRANSACTION - One reimbursable restaurant spend
// =============================================================================

// CompensationTransaction records a single restaurant spend split between
// the company allowance and the employee.
//
// INVARIANT: Amount == CompanyPaid + EmployeePaid, both non-negative.
type CompensationTransaction struct {
	ID         TransactionID
	EmployeeID EmployeeID
	ProjectID  ProjectID

	Amount       Money
	CompanyPaid  Money
	EmployeePaid Money

	RestaurantName string
	Description    string

	// Project-local calendar day the transaction belongs to.
	Date      Date
	CreatedAt time.Time
}

// =============================================================================
// RECURRENCE PATTERNS & BULK ACTIONS
// =============================================================================

type Pattern string

const (
	PatternEveryDay      Pattern = "every_day"
	PatternEveryOtherDay Pattern = "every_other_day"
	PatternCustom        Pattern = "custom"
)

type BulkActionType string

const (
	BulkPause       BulkActionType = "pause"
	BulkResume      BulkActionType = "resume"
	BulkChangeCombo BulkActionType = "change_combo"
	BulkCancel      BulkActionType = "cancel"
)
