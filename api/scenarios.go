/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates projects, employees,
	subscriptions, and transactions that demonstrate specific features.

AVAILABLE SCENARIOS:

	lunch-basic:   One lunch project with an active subscription
	freeze-week:   Subscription with frozen orders and replacements
	compensation:  Rollover compensation project with spend history
	low-budget:    Project close to its budget limit

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create project + employees via factory
 3. Create subscriptions through the orchestrator (budget gated)
 4. Optionally apply freezes or compensation transactions

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "freeze-week"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
	All scenario data belongs to the "demo-co" company, which is also the
	default tenant when no X-Company-ID header is sent.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - factory/project.go: Project JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/benefit-engine/benefit"
	"github.com/warp/benefit-engine/factory"
)

const demoCompany = "demo-co"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "lunch-basic",
		Name:        "Basic Lunch Project",
		Description: "One project, three employees, a two-week lunch subscription",
		Category:    "lunch",
	},
	{
		ID:          "freeze-week",
		Name:        "Freeze Week",
		Description: "Subscription with frozen orders, replacements and an extended end date",
		Category:    "lunch",
	},
	{
		ID:          "compensation",
		Name:        "Compensation with Rollover",
		Description: "Daily allowance project with restaurant spends split company/employee",
		Category:    "compensation",
	},
	{
		ID:          "low-budget",
		Name:        "Low Budget Warning",
		Description: "Project whose subscription consumes most of its budget",
		Category:    "lunch",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if resetter, ok := h.Store.(interface{ Reset(context.Context) error }); ok {
		if err := resetter.Reset(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
			return
		}
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "lunch-basic":
		err = h.loadLunchBasicScenario(ctx)
	case "freeze-week":
		err = h.loadFreezeWeekScenario(ctx)
	case "compensation":
		err = h.loadCompensationScenario(ctx)
	case "low-budget":
		err = h.loadLowBudgetScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadLunchBasicScenario(ctx context.Context) error {
	project, employees, err := h.createDemoProject(ctx, demoLunchProject("proj-lunch", "Acme HQ Lunch", 5000, 500))
	if err != nil {
		return err
	}

	// Two-week subscription starting tomorrow
	today := benefit.DateOf(h.Clock.Now().UTC())
	_, err = h.Orchestrator.CreateSubscription(ctx, h.scenarioActor(), benefit.CreateSubscriptionInput{
		ProjectID: project.ID,
		StartDate: today.AddDays(1),
		EndDate:   today.AddDays(14),
		Employees: []benefit.EmployeeSelection{
			{EmployeeID: employees[0].ID, Pattern: benefit.PatternEveryDay, Combo: "standard"},
			{EmployeeID: employees[1].ID, Pattern: benefit.PatternEveryDay, Combo: "premium"},
			{EmployeeID: employees[2].ID, Pattern: benefit.PatternEveryOtherDay, Combo: "vegan"},
		},
	})
	return err
}

func (h *Handler) loadFreezeWeekScenario(ctx context.Context) error {
	project, employees, err := h.createDemoProject(ctx, demoLunchProject("proj-freeze", "Freeze Demo Lunch", 5000, 500))
	if err != nil {
		return err
	}

	today := benefit.DateOf(h.Clock.Now().UTC())
	result, err := h.Orchestrator.CreateSubscription(ctx, h.scenarioActor(), benefit.CreateSubscriptionInput{
		ProjectID: project.ID,
		StartDate: today.AddDays(1),
		EndDate:   today.AddDays(10),
		Employees: []benefit.EmployeeSelection{
			{EmployeeID: employees[0].ID, Pattern: benefit.PatternEveryDay, Combo: "standard"},
			{EmployeeID: employees[1].ID, Pattern: benefit.PatternEveryDay, Combo: "standard"},
		},
	})
	if err != nil {
		return err
	}

	// Freeze the first employee's first two orders. Each freeze schedules a
	// replacement and pushes the end date out by one day.
	frozen := 0
	for _, a := range result.Assignments {
		if a.EmployeeID != employees[0].ID {
			continue
		}
		if _, err := h.Freeze.FreezeOrder(ctx, h.scenarioActor(), a.ID, "vacation"); err != nil {
			return err
		}
		frozen++
		if frozen == 2 {
			break
		}
	}
	return nil
}

func (h *Handler) loadCompensationScenario(ctx context.Context) error {
	pj := demoLunchProject("proj-comp", "Remote Team Compensation", 3000, 0)
	pj.ServiceTypes = []string{"compensation"}
	pj.ComboPrices = nil
	pj.Compensation = &factory.CompensationJSON{DailyLimit: 20, Rollover: true}

	project, employees, err := h.createDemoProject(ctx, pj)
	if err != nil {
		return err
	}

	// A few spends for the first employee: one under the limit, one that
	// splits between company allowance and employee.
	actor := h.scenarioActor()
	spends := []struct {
		amount     float64
		restaurant string
	}{
		{12.50, "Green Bowl"},
		{26.00, "Trattoria Roma"},
	}
	for _, s := range spends {
		_, err := h.Compensation.ProcessTransaction(ctx, actor, employees[0].ID, project.ID,
			benefit.NewMoney(s.amount, project.Currency), s.restaurant, "")
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadLowBudgetScenario(ctx context.Context) error {
	// Budget sized so one subscription consumes most of it.
	project, employees, err := h.createDemoProject(ctx, demoLunchProject("proj-low", "Tight Budget Lunch", 300, 50))
	if err != nil {
		return err
	}

	today := benefit.DateOf(h.Clock.Now().UTC())
	_, err = h.Orchestrator.CreateSubscription(ctx, h.scenarioActor(), benefit.CreateSubscriptionInput{
		ProjectID: project.ID,
		StartDate: today.AddDays(1),
		EndDate:   today.AddDays(20),
		Employees: []benefit.EmployeeSelection{
			{EmployeeID: employees[0].ID, Pattern: benefit.PatternEveryDay, Combo: "standard"},
		},
	})
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) scenarioActor() benefit.Actor {
	return benefit.Actor{CompanyID: demoCompany, ActorID: "scenario-loader"}
}

// createDemoProject persists a project config with its employees.
func (h *Handler) createDemoProject(ctx context.Context, pj factory.ProjectJSON) (*benefit.Project, []benefit.Employee, error) {
	project, employees, err := h.ProjectFactory.FromJSON(pj)
	if err != nil {
		return nil, nil, err
	}

	err = h.Store.WithTx(ctx, func(s benefit.Store) error {
		if err := s.SaveProject(ctx, *project); err != nil {
			return err
		}
		for _, e := range employees {
			if err := s.SaveEmployee(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return project, employees, nil
}

// demoLunchProject builds a lunch project config with three employees.
func demoLunchProject(id, name string, budget, overdraft float64) factory.ProjectJSON {
	return factory.ProjectJSON{
		ID:        id,
		CompanyID: demoCompany,
		Name:      name,
		Address: factory.AddressJSON{
			Name:        name,
			FullAddress: "Demostr. 1, 10115 Berlin",
		},
		Budget:         budget,
		OverdraftLimit: overdraft,
		Currency:       "EUR",
		Timezone:       "Europe/Berlin",
		CutoffTime:     "11:00",
		Status:         "active",
		ServiceTypes:   []string{"lunch"},
		ComboPrices: map[string]float64{
			"standard": 12.00,
			"premium":  18.00,
			"vegan":    14.00,
		},
		Employees: []factory.EmployeeJSON{
			{ID: id + "-emp-1", Name: "Alice Johnson", Phone: "+49 30 1111111"},
			{ID: id + "-emp-2", Name: "Bruno Keller", Phone: "+49 30 2222222"},
			{ID: id + "-emp-3", Name: "Carla Mendes", Phone: "+49 30 3333333"},
		},
	}
}
