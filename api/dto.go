/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:

	Defines the JSON structures for API communication. These types decouple
	the internal domain model from the external API contract, allowing:
	- Field renaming without breaking clients
	- API-specific validation
	- Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:

	Subscription:
	  CreateSubscriptionRequest, SubscriptionDTO, SubscriptionResultDTO

	Assignment:
	  AssignmentDTO, BulkActionRequest

	Freeze:
	  FreezeOrderRequest, FreezeResultDTO, FreezePeriodRequest,
	  FreezePeriodResultDTO, FreezeInfoDTO

	Compensation:
	  CompensationRequest, CompensationTransactionDTO, DailySummaryDTO

	Dashboard:
	  DashboardDTO

	Project:
	  ProjectDTO (wraps factory.ProjectJSON)

	Scenarios:
	  ScenarioDTO, LoadScenarioRequest

VALIDATION:

	Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/project.go: ProjectJSON type
*/
package api

import (
	"github.com/warp/benefit-engine/benefit"
	"github.com/warp/benefit-engine/factory"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID                 string   `json:"id"`
	ProjectID          string   `json:"project_id"`
	Name               string   `json:"name"`
	Phone              string   `json:"phone,omitempty"`
	Active             bool     `json:"active"`
	DailyLimitOverride *float64 `json:"daily_limit_override,omitempty"`
}

func toEmployeeDTO(e benefit.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:        string(e.ID),
		ProjectID: string(e.ProjectID),
		Name:      e.Name,
		Phone:     e.Phone,
		Active:    e.Active,
	}
	if e.CompensationLimitOverride != nil {
		v := moneyFloat(*e.CompensationLimitOverride)
		dto.DailyLimitOverride = &v
	}
	return dto
}

// EmployeeSelectionRequest picks one employee's delivery pattern and combo.
type EmployeeSelectionRequest struct {
	EmployeeID  string   `json:"employee_id"`
	Pattern     string   `json:"pattern"` // "every_day", "every_other_day", "custom"
	CustomDates []string `json:"custom_dates,omitempty"`
	Combo       string   `json:"combo"`
}

// CreateSubscriptionRequest is the body for POST /api/subscriptions.
type CreateSubscriptionRequest struct {
	ProjectID string                     `json:"project_id"`
	StartDate string                     `json:"start_date"` // "2006-01-02"
	EndDate   string                     `json:"end_date"`
	Employees []EmployeeSelectionRequest `json:"employees"`
}

// SubscriptionDTO represents a subscription in API responses.
type SubscriptionDTO struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	TotalDays       int     `json:"total_days"`
	TotalAmount     float64 `json:"total_amount"`
	PaidAmount      float64 `json:"paid_amount"`
	Currency        string  `json:"currency"`
	Status          string  `json:"status"`
	PausedDaysCount int     `json:"paused_days_count"`
	Version         int64   `json:"version"`
}

func toSubscriptionDTO(s benefit.Subscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:              string(s.ID),
		ProjectID:       string(s.ProjectID),
		StartDate:       s.StartDate.String(),
		EndDate:         s.EndDate.String(),
		TotalDays:       s.TotalDays(),
		TotalAmount:     moneyFloat(s.TotalAmount),
		PaidAmount:      moneyFloat(s.PaidAmount),
		Currency:        s.TotalAmount.Currency,
		Status:          string(s.Status),
		PausedDaysCount: s.PausedDaysCount,
		Version:         s.Version,
	}
}

// AssignmentDTO represents one dated meal order in API responses.
type AssignmentDTO struct {
	ID              string  `json:"id"`
	SubscriptionID  string  `json:"subscription_id"`
	EmployeeID      string  `json:"employee_id"`
	Date            string  `json:"date"`
	Combo           string  `json:"combo"`
	Price           float64 `json:"price"`
	Status          string  `json:"status"`
	FreezeReason    string  `json:"freeze_reason,omitempty"`
	ReplacementID   string  `json:"replacement_id,omitempty"`
	ReplacementDate string  `json:"replacement_date,omitempty"`
	ReplacesID      string  `json:"replaces_id,omitempty"`
}

func toAssignmentDTO(a benefit.Assignment) AssignmentDTO {
	dto := AssignmentDTO{
		ID:             string(a.ID),
		SubscriptionID: string(a.SubscriptionID),
		EmployeeID:     string(a.EmployeeID),
		Date:           a.Date.String(),
		Combo:          string(a.Combo),
		Price:          moneyFloat(a.Price),
		Status:         string(a.Status),
		FreezeReason:   a.FreezeReason,
	}
	if a.ReplacementID != nil {
		dto.ReplacementID = string(*a.ReplacementID)
	}
	if a.ReplacementDate != nil {
		dto.ReplacementDate = a.ReplacementDate.String()
	}
	if a.ReplacesID != nil {
		dto.ReplacesID = string(*a.ReplacesID)
	}
	return dto
}

// SubscriptionResultDTO is the response for subscription creation.
type SubscriptionResultDTO struct {
	Subscription SubscriptionDTO `json:"subscription"`
	Assignments  []AssignmentDTO `json:"assignments"`
	TotalAmount  float64         `json:"total_amount"`
	TotalDays    int             `json:"total_days"`
}

// BulkActionRequest applies one action to a set of orders atomically.
type BulkActionRequest struct {
	OrderIDs []string `json:"order_ids"`
	Action   string   `json:"action"` // "pause", "resume", "change_combo", "cancel"
	Combo    string   `json:"combo,omitempty"`
}

// BulkActionResponse reports how many orders the action touched.
type BulkActionResponse struct {
	UpdatedCount int `json:"updated_count"`
}

// ChangeComboRequest switches all future orders of a subscription to a combo.
type ChangeComboRequest struct {
	Combo string `json:"combo"`
}

// =============================================================================
// FREEZE TYPES
// =============================================================================

// FreezeOrderRequest is the body for freezing a single order.
type FreezeOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// FreezeResultDTO reports the outcome of a single-order freeze.
type FreezeResultDTO struct {
	Frozen      AssignmentDTO `json:"frozen"`
	Replacement AssignmentDTO `json:"replacement"`
	NewEndDate  string        `json:"new_end_date"`
}

// FreezePeriodRequest freezes every order of an employee in a date range.
type FreezePeriodRequest struct {
	EmployeeID string `json:"employee_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Reason     string `json:"reason,omitempty"`
}

// FreezePeriodResultDTO reports the orders affected by a period freeze.
type FreezePeriodResultDTO struct {
	AffectedOrderIDs       []string `json:"affected_order_ids"`
	NewSubscriptionEndDate string   `json:"new_subscription_end_date"`
}

// FreezeInfoDTO shows an employee's weekly freeze allowance.
type FreezeInfoDTO struct {
	RemainingFreezes int `json:"remaining_freezes"`
	UsedThisWeek     int `json:"used_this_week"`
	WeekLimit        int `json:"week_limit"`
}

// =============================================================================
// COMPENSATION TYPES
// =============================================================================

// CompensationRequest is the body for recording a restaurant spend.
type CompensationRequest struct {
	EmployeeID     string  `json:"employee_id"`
	ProjectID      string  `json:"project_id"`
	Amount         float64 `json:"amount"`
	RestaurantName string  `json:"restaurant_name,omitempty"`
	Description    string  `json:"description,omitempty"`
}

// CompensationTransactionDTO is one split spend in API responses.
type CompensationTransactionDTO struct {
	ID             string  `json:"id"`
	EmployeeID     string  `json:"employee_id"`
	ProjectID      string  `json:"project_id"`
	Amount         float64 `json:"amount"`
	CompanyPaid    float64 `json:"company_paid"`
	EmployeePaid   float64 `json:"employee_paid"`
	RestaurantName string  `json:"restaurant_name,omitempty"`
	Description    string  `json:"description,omitempty"`
	Date           string  `json:"date"`
}

func toTransactionDTO(t benefit.CompensationTransaction) CompensationTransactionDTO {
	return CompensationTransactionDTO{
		ID:             string(t.ID),
		EmployeeID:     string(t.EmployeeID),
		ProjectID:      string(t.ProjectID),
		Amount:         moneyFloat(t.Amount),
		CompanyPaid:    moneyFloat(t.CompanyPaid),
		EmployeePaid:   moneyFloat(t.EmployeePaid),
		RestaurantName: t.RestaurantName,
		Description:    t.Description,
		Date:           t.Date.String(),
	}
}

// DailyBalanceDTO is an employee's compensation state for one day.
type DailyBalanceDTO struct {
	EmployeeID string  `json:"employee_id"`
	Date       string  `json:"date"`
	DailyLimit float64 `json:"daily_limit"`
	Rollover   float64 `json:"rollover"`
	Used       float64 `json:"used"`
	Remaining  float64 `json:"remaining"`
	Payable    float64 `json:"payable"`
}

// EmployeeDaySummaryDTO aggregates one employee's spends for a day.
type EmployeeDaySummaryDTO struct {
	EmployeeID       string  `json:"employee_id"`
	TransactionCount int     `json:"transaction_count"`
	TotalAmount      float64 `json:"total_amount"`
	CompanyPaid      float64 `json:"company_paid"`
	EmployeePaid     float64 `json:"employee_paid"`
}

// DailySummaryDTO aggregates a project's compensation activity for a day.
type DailySummaryDTO struct {
	ProjectID         string                  `json:"project_id"`
	Date              string                  `json:"date"`
	TransactionCount  int                     `json:"transaction_count"`
	TotalAmount       float64                 `json:"total_amount"`
	TotalCompanyPaid  float64                 `json:"total_company_paid"`
	TotalEmployeePaid float64                 `json:"total_employee_paid"`
	DistinctEmployees int                     `json:"distinct_employees"`
	PerEmployee       []EmployeeDaySummaryDTO `json:"per_employee"`
}

// =============================================================================
// BUDGET / DASHBOARD TYPES
// =============================================================================

// BudgetSnapshotDTO is a project's budget position.
type BudgetSnapshotDTO struct {
	ProjectID          string  `json:"project_id"`
	Budget             float64 `json:"budget"`
	OverdraftLimit     float64 `json:"overdraft_limit"`
	Spent              float64 `json:"spent"`
	AvailableBudget    float64 `json:"available_budget"`
	Remaining          float64 `json:"remaining"`
	ConsumptionPercent string  `json:"consumption_percent"`
	IsLowBudget        bool    `json:"is_low_budget"`
	Currency           string  `json:"currency"`
}

func toBudgetSnapshotDTO(s *benefit.BudgetSnapshot) BudgetSnapshotDTO {
	return BudgetSnapshotDTO{
		ProjectID:          string(s.ProjectID),
		Budget:             moneyFloat(s.Budget),
		OverdraftLimit:     moneyFloat(s.OverdraftLimit),
		Spent:              moneyFloat(s.Spent),
		AvailableBudget:    moneyFloat(s.AvailableBudget),
		Remaining:          moneyFloat(s.Remaining()),
		ConsumptionPercent: s.ConsumptionPercent.StringFixed(2),
		IsLowBudget:        s.IsLowBudget,
		Currency:           s.Budget.Currency,
	}
}

// DashboardDTO is the aggregate view returned to company admins.
type DashboardDTO struct {
	TotalBudget        float64 `json:"total_budget"`
	Forecast           float64 `json:"forecast"`
	TotalOrders        int     `json:"total_orders"`
	ActiveOrders       int     `json:"active_orders"`
	PausedOrders       int     `json:"paused_orders"`
	ConsumptionPercent string  `json:"consumption_percent"`
	AvailableBudget    float64 `json:"available_budget"`
	IsLowBudget        bool    `json:"is_low_budget"`
	LowBudgetWarning   string  `json:"low_budget_warning,omitempty"`
	CutoffTime         string  `json:"cutoff_time,omitempty"`
	IsCutoffPassed     bool    `json:"is_cutoff_passed"`
	Timezone           string  `json:"timezone,omitempty"`
}

func toDashboardDTO(d *benefit.Dashboard) DashboardDTO {
	return DashboardDTO{
		TotalBudget:        moneyFloat(d.TotalBudget),
		Forecast:           moneyFloat(d.Forecast),
		TotalOrders:        d.TotalOrders,
		ActiveOrders:       d.ActiveOrders,
		PausedOrders:       d.PausedOrders,
		ConsumptionPercent: d.ConsumptionPercent,
		AvailableBudget:    moneyFloat(d.AvailableBudget),
		IsLowBudget:        d.IsLowBudget,
		LowBudgetWarning:   d.LowBudgetWarning,
		CutoffTime:         d.CutoffTime,
		IsCutoffPassed:     d.IsCutoffPassed,
		Timezone:           d.Timezone,
	}
}

// =============================================================================
// PROJECT TYPES
// =============================================================================

// ProjectDTO wraps the factory JSON shape for API responses.
type ProjectDTO struct {
	Project factory.ProjectJSON `json:"project"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// moneyFloat renders a Money for JSON. Precision loss is acceptable at the
// API boundary; the ledger itself never leaves decimal arithmetic.
func moneyFloat(m benefit.Money) float64 {
	f, _ := m.Value.Float64()
	return f
}
