/*
handlers.go - HTTP API handlers for the meal benefit engine

PURPOSE:

	Exposes the benefit engine via REST API. Handles HTTP request/response,
	JSON serialization, and delegates to domain logic.

ENDPOINTS:

	Projects:
	  GET    /api/projects                   List company projects
	  POST   /api/projects                   Create project from JSON config
	  GET    /api/projects/{id}              Get project details
	  GET    /api/projects/{id}/budget       Budget snapshot
	  GET    /api/projects/{id}/employees    List project employees
	  GET    /api/projects/{id}/subscriptions List project subscriptions

	Subscriptions:
	  POST   /api/subscriptions              Create subscription (budget gated)
	  GET    /api/subscriptions/{id}         Subscription + assignments
	  POST   /api/subscriptions/{id}/pause   Pause a subscription
	  POST   /api/subscriptions/{id}/resume  Resume and extend end date
	  PUT    /api/subscriptions/{id}/combo   Change combo for future orders

	Orders:
	  POST   /api/orders/bulk                Bulk pause/resume/cancel/change_combo
	  POST   /api/orders/{id}/freeze         Freeze one order (skip-and-extend)
	  POST   /api/orders/{id}/unfreeze       Revert a freeze

	Freezes:
	  POST   /api/freezes/period             Freeze a date range for an employee
	  GET    /api/employees/{id}/freeze-info Weekly freeze allowance

	Compensation:
	  POST   /api/compensation/transactions  Record a restaurant spend split
	  GET    /api/compensation/summary       Project day summary (?project_id&date)
	  GET    /api/employees/{id}/balance     Daily compensation balance (?date)
	  GET    /api/employees/{id}/transactions Transaction history

	Dashboard:
	  GET    /api/dashboard                  Budget + order aggregates (?project_id)

	Scenarios:
	  GET    /api/scenarios                  List demo scenarios
	  POST   /api/scenarios/load             Load a demo scenario

TENANCY:

	The company acting on a request is read from the X-Company-ID header.
	Every engine operation re-checks ownership; a cross-tenant id resolves
	to 404 rather than 403 so existence is not leaked.

ERROR HANDLING:

	Engine errors map to HTTP status by taxonomy:
	- 400: validation errors, malformed input
	- 404: unknown or cross-tenant entity
	- 409: invalid state, version conflict, freeze limit, budget, cutoff
	- 504: lock acquisition timeout
	- 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/benefit-engine/benefit"
	"github.com/warp/benefit-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store          benefit.TxStore
	Orchestrator   *benefit.Orchestrator
	Freeze         *benefit.FreezeEngine
	Budget         *benefit.BudgetLedger
	Compensation   *benefit.CompensationLedger
	ProjectFactory *factory.ProjectFactory
	Clock          benefit.Clock

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires the engine on top of the given store.
func NewHandler(store benefit.TxStore, clock benefit.Clock, freezeCfg benefit.FreezeConfig, budgetCfg benefit.BudgetConfig, locks *benefit.KeyedLocks) *Handler {
	budget := benefit.NewBudgetLedger(store, clock, budgetCfg, locks)
	freeze := benefit.NewFreezeEngine(store, budget, clock, freezeCfg, locks)
	comp := benefit.NewCompensationLedger(store, clock, locks)
	orch := benefit.NewOrchestrator(store, freeze, budget, comp, clock, locks)

	return &Handler{
		Store:          store,
		Orchestrator:   orch,
		Freeze:         freeze,
		Budget:         budget,
		Compensation:   comp,
		ProjectFactory: factory.NewProjectFactory(),
		Clock:          clock,
	}
}

// actorFrom resolves the acting company from request headers. The demo
// deployment has no auth; unset headers fall back to the demo company.
func actorFrom(r *http.Request) benefit.Actor {
	company := r.Header.Get("X-Company-ID")
	if company == "" {
		company = "demo-co"
	}
	return benefit.Actor{
		CompanyID: benefit.CompanyID(company),
		ActorID:   r.Header.Get("X-Actor-ID"),
	}
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects returns the acting company's projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	projects, err := h.Store.ListProjects(r.Context(), actor.CompanyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects", err)
		return
	}

	dtos := make([]factory.ProjectJSON, 0, len(projects))
	for i := range projects {
		employees, err := h.Store.ListEmployees(r.Context(), projects[i].ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
			return
		}
		dtos = append(dtos, h.ProjectFactory.ToJSON(&projects[i], employees))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProject parses a project config and persists it with its employees.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var pj factory.ProjectJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	project, employees, err := h.ProjectFactory.FromJSON(pj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid project config", err)
		return
	}

	actor := actorFrom(r)
	if project.CompanyID != actor.CompanyID {
		writeError(w, http.StatusBadRequest, "Invalid project config",
			&benefit.ValidationError{Field: "company_id", Message: "must match the acting company"})
		return
	}

	err = h.Store.WithTx(r.Context(), func(s benefit.Store) error {
		if err := s.SaveProject(r.Context(), *project); err != nil {
			return err
		}
		for _, e := range employees {
			if err := s.SaveEmployee(r.Context(), e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeEngineError(w, "Failed to save project", err)
		return
	}

	writeJSON(w, http.StatusCreated, h.ProjectFactory.ToJSON(project, employees))
}

// GetProject returns one project with its employees.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.resolveProject(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	employees, err := h.Store.ListEmployees(r.Context(), project.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ProjectFactory.ToJSON(project, employees))
}

// GetProjectBudget returns the derived budget snapshot.
func (h *Handler) GetProjectBudget(w http.ResponseWriter, r *http.Request) {
	project, ok := h.resolveProject(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	snap, err := h.Budget.Snapshot(r.Context(), project.ID)
	if err != nil {
		writeEngineError(w, "Failed to compute budget", err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetSnapshotDTO(snap))
}

// ListProjectEmployees returns the employees of one project.
func (h *Handler) ListProjectEmployees(w http.ResponseWriter, r *http.Request) {
	project, ok := h.resolveProject(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	employees, err := h.Store.ListEmployees(r.Context(), project.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListProjectSubscriptions returns the subscriptions of one project.
func (h *Handler) ListProjectSubscriptions(w http.ResponseWriter, r *http.Request) {
	project, ok := h.resolveProject(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	subs, err := h.Store.ListSubscriptionsByProject(r.Context(), project.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list subscriptions", err)
		return
	}
	dtos := make([]SubscriptionDTO, len(subs))
	for i, s := range subs {
		dtos[i] = toSubscriptionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// resolveProject loads a project and enforces tenancy, writing the error
// response itself when the lookup fails.
func (h *Handler) resolveProject(w http.ResponseWriter, r *http.Request, id string) (*benefit.Project, bool) {
	actor := actorFrom(r)
	project, err := h.Store.GetProject(r.Context(), benefit.ProjectID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load project", err)
		return nil, false
	}
	if project == nil || project.CompanyID != actor.CompanyID {
		writeError(w, http.StatusNotFound, "Project not found",
			&benefit.NotFoundError{Kind: "project", ID: id})
		return nil, false
	}
	return project, true
}

// =============================================================================
// SUBSCRIPTION HANDLERS
// =============================================================================

// CreateSubscription expands delivery patterns into orders and reserves the
// total against the project budget.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	input, err := h.subscriptionInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid subscription request", err)
		return
	}

	result, err := h.Orchestrator.CreateSubscription(r.Context(), actorFrom(r), input)
	if err != nil {
		writeEngineError(w, "Failed to create subscription", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionResultDTO(result))
}

func (h *Handler) subscriptionInput(req CreateSubscriptionRequest) (benefit.CreateSubscriptionInput, error) {
	var input benefit.CreateSubscriptionInput

	start, err := benefit.ParseDate(req.StartDate)
	if err != nil {
		return input, &benefit.ValidationError{Field: "start_date", Message: err.Error()}
	}
	end, err := benefit.ParseDate(req.EndDate)
	if err != nil {
		return input, &benefit.ValidationError{Field: "end_date", Message: err.Error()}
	}

	input.ProjectID = benefit.ProjectID(req.ProjectID)
	input.StartDate = start
	input.EndDate = end

	for _, sel := range req.Employees {
		selection := benefit.EmployeeSelection{
			EmployeeID: benefit.EmployeeID(sel.EmployeeID),
			Pattern:    benefit.Pattern(sel.Pattern),
			Combo:      benefit.ComboType(sel.Combo),
		}
		for _, d := range sel.CustomDates {
			date, err := benefit.ParseDate(d)
			if err != nil {
				return input, &benefit.ValidationError{Field: "custom_dates", Message: err.Error()}
			}
			selection.CustomDates = append(selection.CustomDates, date)
		}
		input.Employees = append(input.Employees, selection)
	}
	return input, nil
}

func toSubscriptionResultDTO(result *benefit.SubscriptionResult) SubscriptionResultDTO {
	dto := SubscriptionResultDTO{
		Subscription: toSubscriptionDTO(result.Subscription),
		Assignments:  make([]AssignmentDTO, len(result.Assignments)),
		TotalAmount:  moneyFloat(result.TotalAmount),
		TotalDays:    result.TotalDays,
	}
	for i, a := range result.Assignments {
		dto.Assignments[i] = toAssignmentDTO(a)
	}
	return dto
}

// GetSubscription returns one subscription with all its assignments.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := benefit.SubscriptionID(chi.URLParam(r, "id"))

	sub, err := h.Store.GetSubscription(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load subscription", err)
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "Subscription not found",
			&benefit.NotFoundError{Kind: "subscription", ID: string(id)})
		return
	}
	project, err := h.Store.GetProject(r.Context(), sub.ProjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load project", err)
		return
	}
	if project == nil || project.CompanyID != actor.CompanyID {
		writeError(w, http.StatusNotFound, "Subscription not found",
			&benefit.NotFoundError{Kind: "subscription", ID: string(id)})
		return
	}

	assignments, err := h.Store.ListAssignmentsBySubscription(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load assignments", err)
		return
	}

	dto := SubscriptionResultDTO{
		Subscription: toSubscriptionDTO(*sub),
		Assignments:  make([]AssignmentDTO, len(assignments)),
		TotalAmount:  moneyFloat(sub.TotalAmount),
		TotalDays:    sub.TotalDays(),
	}
	for i, a := range assignments {
		dto.Assignments[i] = toAssignmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dto)
}

// PauseSubscription pauses an active subscription.
func (h *Handler) PauseSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Orchestrator.PauseSubscription(r.Context(), actorFrom(r),
		benefit.SubscriptionID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to pause subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionDTO(*sub))
}

// ResumeSubscription resumes a paused subscription. The end date moves out
// by the number of days spent paused, so paid days are preserved.
func (h *Handler) ResumeSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Orchestrator.ResumeSubscription(r.Context(), actorFrom(r),
		benefit.SubscriptionID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to resume subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionDTO(*sub))
}

// UpdateSubscriptionCombo switches every future order to the new combo and
// reprices the subscription.
func (h *Handler) UpdateSubscriptionCombo(w http.ResponseWriter, r *http.Request) {
	var req ChangeComboRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if req.Combo == "" {
		writeError(w, http.StatusBadRequest, "Invalid combo request",
			&benefit.ValidationError{Field: "combo", Message: "combo is required"})
		return
	}

	result, err := h.Orchestrator.UpdateSubscriptionCombo(r.Context(), actorFrom(r),
		benefit.SubscriptionID(chi.URLParam(r, "id")), benefit.ComboType(req.Combo))
	if err != nil {
		writeEngineError(w, "Failed to change combo", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResultDTO(result))
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// BulkAction applies one transition to a set of orders atomically.
func (h *Handler) BulkAction(w http.ResponseWriter, r *http.Request) {
	var req BulkActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	ids := make([]benefit.AssignmentID, len(req.OrderIDs))
	for i, id := range req.OrderIDs {
		ids[i] = benefit.AssignmentID(id)
	}

	result, err := h.Orchestrator.BulkAction(r.Context(), actorFrom(r), ids,
		benefit.BulkActionType(req.Action), benefit.ComboType(req.Combo))
	if err != nil {
		writeEngineError(w, "Bulk action failed", err)
		return
	}
	writeJSON(w, http.StatusOK, BulkActionResponse{UpdatedCount: result.UpdatedCount})
}

// FreezeOrder freezes one order and schedules its replacement after the
// subscription end.
func (h *Handler) FreezeOrder(w http.ResponseWriter, r *http.Request) {
	var req FreezeOrderRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
			return
		}
	}

	result, err := h.Freeze.FreezeOrder(r.Context(), actorFrom(r),
		benefit.AssignmentID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		writeEngineError(w, "Failed to freeze order", err)
		return
	}
	writeJSON(w, http.StatusOK, FreezeResultDTO{
		Frozen:      toAssignmentDTO(result.Assignment),
		Replacement: toAssignmentDTO(result.Replacement),
		NewEndDate:  result.NewEndDate.String(),
	})
}

// UnfreezeOrder reverts a freeze: the order comes back, the replacement is
// cancelled and the end date shrinks again.
func (h *Handler) UnfreezeOrder(w http.ResponseWriter, r *http.Request) {
	assignment, err := h.Freeze.UnfreezeOrder(r.Context(), actorFrom(r),
		benefit.AssignmentID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to unfreeze order", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*assignment))
}

// =============================================================================
// FREEZE HANDLERS
// =============================================================================

// FreezePeriod freezes all of an employee's orders in a date range.
func (h *Handler) FreezePeriod(w http.ResponseWriter, r *http.Request) {
	var req FreezePeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	start, err := benefit.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid freeze period",
			&benefit.ValidationError{Field: "start_date", Message: err.Error()})
		return
	}
	end, err := benefit.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid freeze period",
			&benefit.ValidationError{Field: "end_date", Message: err.Error()})
		return
	}

	result, err := h.Freeze.FreezePeriod(r.Context(), actorFrom(r),
		benefit.EmployeeID(req.EmployeeID), start, end, req.Reason)
	if err != nil {
		writeEngineError(w, "Failed to freeze period", err)
		return
	}

	dto := FreezePeriodResultDTO{
		AffectedOrderIDs:       make([]string, len(result.AffectedOrderIDs)),
		NewSubscriptionEndDate: result.NewSubscriptionEndDate.String(),
	}
	for i, id := range result.AffectedOrderIDs {
		dto.AffectedOrderIDs[i] = string(id)
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetFreezeInfo returns the employee's weekly freeze allowance.
func (h *Handler) GetFreezeInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.Freeze.GetEmployeeFreezeInfo(r.Context(), actorFrom(r),
		benefit.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to load freeze info", err)
		return
	}
	writeJSON(w, http.StatusOK, FreezeInfoDTO{
		RemainingFreezes: info.RemainingFreezes,
		UsedThisWeek:     info.UsedThisWeek,
		WeekLimit:        info.WeekLimit,
	})
}

// =============================================================================
// COMPENSATION HANDLERS
// =============================================================================

// CreateCompensation records a restaurant spend and splits it between the
// company allowance and the employee.
func (h *Handler) CreateCompensation(w http.ResponseWriter, r *http.Request) {
	var req CompensationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	project, ok := h.resolveProject(w, r, req.ProjectID)
	if !ok {
		return
	}

	tx, err := h.Compensation.ProcessTransaction(r.Context(), actorFrom(r),
		benefit.EmployeeID(req.EmployeeID), project.ID,
		benefit.NewMoney(req.Amount, project.Currency),
		req.RestaurantName, req.Description)
	if err != nil {
		writeEngineError(w, "Failed to record compensation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// GetCompensationSummary aggregates a project's compensation for one day.
func (h *Handler) GetCompensationSummary(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "Invalid summary request",
			&benefit.ValidationError{Field: "project_id", Message: "project_id is required"})
		return
	}
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}

	summary, err := h.Compensation.GetDailySummary(r.Context(), actorFrom(r),
		benefit.ProjectID(projectID), day)
	if err != nil {
		writeEngineError(w, "Failed to compute summary", err)
		return
	}

	dto := DailySummaryDTO{
		ProjectID:         string(summary.ProjectID),
		Date:              summary.Date.String(),
		TransactionCount:  summary.TransactionCount,
		TotalAmount:       moneyFloat(summary.TotalAmount),
		TotalCompanyPaid:  moneyFloat(summary.TotalCompanyPaid),
		TotalEmployeePaid: moneyFloat(summary.TotalEmployeePaid),
		DistinctEmployees: summary.DistinctEmployees,
		PerEmployee:       make([]EmployeeDaySummaryDTO, len(summary.PerEmployee)),
	}
	for i, e := range summary.PerEmployee {
		dto.PerEmployee[i] = EmployeeDaySummaryDTO{
			EmployeeID:       string(e.EmployeeID),
			TransactionCount: e.TransactionCount,
			TotalAmount:      moneyFloat(e.TotalAmount),
			CompanyPaid:      moneyFloat(e.CompanyPaid),
			EmployeePaid:     moneyFloat(e.EmployeePaid),
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetEmployeeBalance returns the employee's compensation balance for a day.
func (h *Handler) GetEmployeeBalance(w http.ResponseWriter, r *http.Request) {
	employee, project, ok := h.resolveEmployee(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}

	balance, err := h.Compensation.DailyBalance(r.Context(), project, employee, day)
	if err != nil {
		writeEngineError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, DailyBalanceDTO{
		EmployeeID: string(balance.EmployeeID),
		Date:       balance.Date.String(),
		DailyLimit: moneyFloat(balance.DailyLimit),
		Rollover:   moneyFloat(balance.Rollover),
		Used:       moneyFloat(balance.Used),
		Remaining:  moneyFloat(balance.Remaining),
		Payable:    moneyFloat(balance.Payable()),
	})
}

// ListEmployeeTransactions returns the employee's compensation history.
func (h *Handler) ListEmployeeTransactions(w http.ResponseWriter, r *http.Request) {
	employee, _, ok := h.resolveEmployee(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	txs, err := h.Store.ListTransactionsByEmployee(r.Context(), employee.ID,
		benefit.Date{}, benefit.Date{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	dtos := make([]CompensationTransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// resolveEmployee loads an employee and the owning project, enforcing
// tenancy through the project's company.
func (h *Handler) resolveEmployee(w http.ResponseWriter, r *http.Request, id string) (*benefit.Employee, *benefit.Project, bool) {
	actor := actorFrom(r)
	employee, err := h.Store.GetEmployee(r.Context(), benefit.EmployeeID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load employee", err)
		return nil, nil, false
	}
	if employee == nil {
		writeError(w, http.StatusNotFound, "Employee not found",
			&benefit.NotFoundError{Kind: "employee", ID: id})
		return nil, nil, false
	}
	project, err := h.Store.GetProject(r.Context(), employee.ProjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load project", err)
		return nil, nil, false
	}
	if project == nil || project.CompanyID != actor.CompanyID {
		writeError(w, http.StatusNotFound, "Employee not found",
			&benefit.NotFoundError{Kind: "employee", ID: id})
		return nil, nil, false
	}
	return employee, project, true
}

// dayParam reads the ?date query param, defaulting to today (UTC).
func (h *Handler) dayParam(w http.ResponseWriter, r *http.Request) (benefit.Date, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return benefit.DateOf(h.Clock.Now().UTC()), true
	}
	day, err := benefit.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date",
			&benefit.ValidationError{Field: "date", Message: err.Error()})
		return benefit.Date{}, false
	}
	return day, true
}

// =============================================================================
// DASHBOARD HANDLER
// =============================================================================

// GetDashboard aggregates budget and order state for the company, or for a
// single project when ?project_id is given.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	var projectID *benefit.ProjectID
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		id := benefit.ProjectID(raw)
		projectID = &id
	}

	dashboard, err := h.Orchestrator.GetDashboard(r.Context(), actorFrom(r), projectID)
	if err != nil {
		writeEngineError(w, "Failed to build dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(dashboard))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Too late to change the status; nothing useful to do.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps an engine error to an HTTP status by taxonomy.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, benefit.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, benefit.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, benefit.ErrInvalidState),
		errors.Is(err, benefit.ErrConflict),
		errors.Is(err, benefit.ErrFreezeLimitExceeded),
		errors.Is(err, benefit.ErrBudgetExceeded),
		errors.Is(err, benefit.ErrCutoffPassed):
		return http.StatusConflict
	case errors.Is(err, benefit.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
