/*
Package factory provides JSON to Go project configuration conversion.

PURPOSE:

	Converts JSON project definitions into benefit.Project and
	benefit.Employee values. This enables project configuration without
	code changes - account managers can define projects in JSON, and the
	factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify project settings
  - Easy integration with admin UI
  - Version control for project definitions
  - Database storage of project configs

JSON SCHEMA:

	{
	  "id": "proj-hq",
	  "company_id": "acme",
	  "name": "HQ Office",
	  "address": {"name": "HQ", "full_address": "1 Main St"},
	  "budget": 5000,
	  "overdraft_limit": 500,
	  "currency": "USD",
	  "timezone": "America/New_York",
	  "cutoff_time": "11:00",
	  "service_types": ["lunch", "compensation"],
	  "combo_prices": {"standard": 12.5, "premium": 18},
	  "compensation": {"daily_limit": 20, "rollover": true},
	  "employees": [
	    {"id": "emp-1", "name": "Dana", "phone": "+15550100"}
	  ]
	}

KEY FEATURES:
  - Validates JSON structure
  - Sets sensible defaults (UTC timezone, 11:00 cutoff, active status)
  - Creates the project's employees in the same pass
  - Round-trips via ToJSON for admin export

USAGE:

	factory := NewProjectFactory()
	project, employees, err := factory.ParseProject(jsonString)

SEE ALSO:
  - benefit/types.go: Project and Employee definitions
  - api/scenarios.go: Demo configurations built through this factory
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/benefit-engine/benefit"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProjectJSON is the JSON representation of a project.
type ProjectJSON struct {
	ID             string             `json:"id"`
	CompanyID      string             `json:"company_id"`
	Name           string             `json:"name"`
	Address        AddressJSON        `json:"address"`
	Budget         float64            `json:"budget"`
	OverdraftLimit float64            `json:"overdraft_limit,omitempty"`
	Currency       string             `json:"currency"`
	Timezone       string             `json:"timezone,omitempty"`
	CutoffTime     string             `json:"cutoff_time,omitempty"`
	Status         string             `json:"status,omitempty"`
	ServiceTypes   []string           `json:"service_types"`
	ComboPrices    map[string]float64 `json:"combo_prices,omitempty"`
	Compensation   *CompensationJSON  `json:"compensation,omitempty"`
	Employees      []EmployeeJSON     `json:"employees,omitempty"`
}

// AddressJSON represents the project delivery address.
type AddressJSON struct {
	Name        string   `json:"name"`
	FullAddress string   `json:"full_address"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
}

// CompensationJSON represents compensation service settings.
type CompensationJSON struct {
	DailyLimit float64 `json:"daily_limit"`
	Rollover   bool    `json:"rollover,omitempty"`
}

// EmployeeJSON represents an employee within a project config.
type EmployeeJSON struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Phone         string   `json:"phone,omitempty"`
	Active        *bool    `json:"active,omitempty"` // default true
	LimitOverride *float64 `json:"compensation_limit_override,omitempty"`
}

// =============================================================================
// PROJECT FACTORY
// =============================================================================

// ProjectFactory converts JSON project configs to Go structs.
type ProjectFactory struct{}

// NewProjectFactory creates a new project factory.
func NewProjectFactory() *ProjectFactory {
	return &ProjectFactory{}
}

// ParseProject parses a JSON string into a Project and its Employees.
func (f *ProjectFactory) ParseProject(jsonStr string) (*benefit.Project, []benefit.Employee, error) {
	var pj ProjectJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, nil, fmt.Errorf("failed to parse project JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts ProjectJSON to benefit.Project and benefit.Employee values.
func (f *ProjectFactory) FromJSON(pj ProjectJSON) (*benefit.Project, []benefit.Employee, error) {
	if pj.ID == "" {
		return nil, nil, fmt.Errorf("project id is required")
	}
	if pj.CompanyID == "" {
		return nil, nil, fmt.Errorf("project %s: company_id is required", pj.ID)
	}
	if pj.Currency == "" {
		return nil, nil, fmt.Errorf("project %s: currency is required", pj.ID)
	}

	cutoff, err := parseCutoff(pj.CutoffTime)
	if err != nil {
		return nil, nil, fmt.Errorf("project %s: %w", pj.ID, err)
	}

	timezone := pj.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, nil, fmt.Errorf("project %s: unknown timezone %q", pj.ID, timezone)
	}

	project := &benefit.Project{
		ID:        benefit.ProjectID(pj.ID),
		CompanyID: benefit.CompanyID(pj.CompanyID),
		Name:      pj.Name,
		Address: benefit.Address{
			Name:        pj.Address.Name,
			FullAddress: pj.Address.FullAddress,
			Lat:         pj.Address.Lat,
			Lon:         pj.Address.Lon,
		},
		Budget:         benefit.NewMoney(pj.Budget, pj.Currency),
		OverdraftLimit: benefit.NewMoney(pj.OverdraftLimit, pj.Currency),
		Currency:       pj.Currency,
		Timezone:       timezone,
		CutoffTime:     cutoff,
		Status:         parseStatus(pj.Status),
		CreatedAt:      time.Now().UTC(),
	}

	for _, st := range pj.ServiceTypes {
		switch st {
		case "lunch":
			project.ServiceTypes = append(project.ServiceTypes, benefit.ServiceLunch)
		case "compensation":
			project.ServiceTypes = append(project.ServiceTypes, benefit.ServiceCompensation)
		default:
			return nil, nil, fmt.Errorf("project %s: unknown service type %q", pj.ID, st)
		}
	}

	project.ComboPrices = make(map[benefit.ComboType]benefit.Money, len(pj.ComboPrices))
	for combo, price := range pj.ComboPrices {
		project.ComboPrices[benefit.ComboType(combo)] = benefit.NewMoney(price, pj.Currency)
	}

	if pj.Compensation != nil {
		project.CompensationDailyLimit = benefit.NewMoney(pj.Compensation.DailyLimit, pj.Currency)
		project.CompensationRollover = pj.Compensation.Rollover
	}

	var employees []benefit.Employee
	for _, ej := range pj.Employees {
		if ej.ID == "" {
			return nil, nil, fmt.Errorf("project %s: employee id is required", pj.ID)
		}
		e := benefit.Employee{
			ID:        benefit.EmployeeID(ej.ID),
			ProjectID: project.ID,
			Name:      ej.Name,
			Phone:     ej.Phone,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if ej.Active != nil {
			e.Active = *ej.Active
		}
		if ej.LimitOverride != nil {
			m := benefit.NewMoney(*ej.LimitOverride, pj.Currency)
			e.CompensationLimitOverride = &m
		}
		employees = append(employees, e)
	}

	return project, employees, nil
}

// ToJSON converts a Project and its employees back to ProjectJSON.
func (f *ProjectFactory) ToJSON(project *benefit.Project, employees []benefit.Employee) ProjectJSON {
	pj := ProjectJSON{
		ID:        string(project.ID),
		CompanyID: string(project.CompanyID),
		Name:      project.Name,
		Address: AddressJSON{
			Name:        project.Address.Name,
			FullAddress: project.Address.FullAddress,
			Lat:         project.Address.Lat,
			Lon:         project.Address.Lon,
		},
		Currency:   project.Currency,
		Timezone:   project.Timezone,
		CutoffTime: project.CutoffTime.String(),
		Status:     string(project.Status),
	}

	pj.Budget, _ = project.Budget.Value.Float64()
	pj.OverdraftLimit, _ = project.OverdraftLimit.Value.Float64()

	for _, st := range project.ServiceTypes {
		pj.ServiceTypes = append(pj.ServiceTypes, string(st))
	}

	if len(project.ComboPrices) > 0 {
		pj.ComboPrices = make(map[string]float64, len(project.ComboPrices))
		for combo, price := range project.ComboPrices {
			pj.ComboPrices[string(combo)], _ = price.Value.Float64()
		}
	}

	if project.HasService(benefit.ServiceCompensation) {
		limit, _ := project.CompensationDailyLimit.Value.Float64()
		pj.Compensation = &CompensationJSON{
			DailyLimit: limit,
			Rollover:   project.CompensationRollover,
		}
	}

	for _, e := range employees {
		ej := EmployeeJSON{
			ID:    string(e.ID),
			Name:  e.Name,
			Phone: e.Phone,
		}
		if !e.Active {
			active := false
			ej.Active = &active
		}
		if e.CompensationLimitOverride != nil {
			v, _ := e.CompensationLimitOverride.Value.Float64()
			ej.LimitOverride = &v
		}
		pj.Employees = append(pj.Employees, ej)
	}

	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseCutoff(s string) (benefit.TimeOfDay, error) {
	if s == "" {
		return benefit.TimeOfDay{Hour: 11, Minute: 0}, nil
	}
	cutoff, err := benefit.ParseTimeOfDay(s)
	if err != nil {
		return benefit.TimeOfDay{}, fmt.Errorf("invalid cutoff_time %q: %w", s, err)
	}
	return cutoff, nil
}

func parseStatus(s string) benefit.ProjectStatus {
	switch s {
	case "blocked_debt":
		return benefit.ProjectBlockedDebt
	case "archived":
		return benefit.ProjectArchived
	default:
		return benefit.ProjectActive
	}
}
