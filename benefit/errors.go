/*
errors.go - Centralized error taxonomy for the benefit engine

PURPOSE:

	All engine error kinds in one place. Callers branch with errors.Is
	against the sentinels; the structured types carry enough context
	(entity id, offending date, limit value) to render an actionable
	message.

TAXONOMY:

	ErrNotFound            unknown id or cross-tenant access
	ErrInvalidState        operation not legal for current entity state
	ErrValidation          malformed input
	ErrFreezeLimitExceeded weekly freeze limit reached
	ErrBudgetExceeded      spend would exceed budget + overdraft
	ErrCutoffPassed        same-day mutation after project cutoff
	ErrConflict            concurrent mutation detected
	ErrTimeout             lock acquisition or storage exceeded its bound

SEE ALSO:
  - freeze.go, budget.go, compensation.go: producers
  - api/handlers.go: HTTP status mapping
*/
package benefit

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrValidation          = errors.New("validation error")
	ErrFreezeLimitExceeded = errors.New("weekly freeze limit exceeded")
	ErrBudgetExceeded      = errors.New("budget exceeded")
	ErrCutoffPassed        = errors.New("cutoff time passed")
	ErrConflict            = errors.New("concurrent modification detected")
	ErrTimeout             = errors.New("operation timed out")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the entity kind and id that could not be resolved.
// Cross-tenant access reports NotFound rather than leaking existence.
type NotFoundError struct {
	Kind string // "project", "employee", "subscription", "assignment"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateError reports an operation attempted against an entity in a
// state that does not permit it.
type InvalidStateError struct {
	Kind   string
	ID     string
	Status string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in status %q", e.Op, e.Kind, e.ID, e.Status)
}
func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
func (e *ValidationError) Unwrap() error { return ErrValidation }

// FreezeLimitError reports which date tripped the weekly freeze limit.
type FreezeLimitError struct {
	EmployeeID EmployeeID
	Date       Date
	Used       int
	Limit      int
}

func (e *FreezeLimitError) Error() string {
	return fmt.Sprintf("employee %s already used %d of %d freezes in the week of %s",
		e.EmployeeID, e.Used, e.Limit, e.Date)
}
func (e *FreezeLimitError) Unwrap() error { return ErrFreezeLimitExceeded }

// BudgetExceededError reports a spend rejected by the budget gate.
type BudgetExceededError struct {
	ProjectID ProjectID
	Available Money
	Spent     Money
	Requested Money
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("project %s: spend %v exceeds available budget (spent %v of %v)",
		e.ProjectID, e.Requested.Value, e.Spent.Value, e.Available.Value)
}
func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// CutoffError reports a same-day mutation attempted after the cutoff.
type CutoffError struct {
	ProjectID ProjectID
	Date      Date
	Cutoff    TimeOfDay
}

func (e *CutoffError) Error() string {
	return fmt.Sprintf("project %s: cutoff %s passed for %s", e.ProjectID, e.Cutoff, e.Date)
}
func (e *CutoffError) Unwrap() error { return ErrCutoffPassed }

// ConflictError reports a concurrent mutation that survived the single retry.
type ConflictError struct {
	Kind string
	ID   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Kind, e.ID)
}
func (e *ConflictError) Unwrap() error { return ErrConflict }

// TimeoutError reports a bounded wait (lock or storage) that expired.
type TimeoutError struct {
	Op  string
	Key string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("%s timed out (%s)", e.Op, e.Key) }
func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrTimeout)
}

// IsClientError returns true if the error is due to the caller's input or
// a business rule, rather than an engine failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrFreezeLimitExceeded) ||
		errors.Is(err, ErrBudgetExceeded) ||
		errors.Is(err, ErrCutoffPassed)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
