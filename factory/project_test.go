package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/benefit-engine/benefit"
)

const sampleProjectJSON = `{
	"id": "proj-hq",
	"company_id": "acme",
	"name": "HQ Office",
	"address": {"name": "HQ", "full_address": "1 Main St"},
	"budget": 5000,
	"overdraft_limit": 500,
	"currency": "USD",
	"timezone": "America/New_York",
	"cutoff_time": "10:30",
	"service_types": ["lunch", "compensation"],
	"combo_prices": {"standard": 12.5, "premium": 18},
	"compensation": {"daily_limit": 20, "rollover": true},
	"employees": [
		{"id": "emp-1", "name": "Dana", "phone": "+15550100"},
		{"id": "emp-2", "name": "Kim", "active": false, "compensation_limit_override": 30}
	]
}`

func TestParseProject_FullConfig(t *testing.T) {
	// GIVEN: a complete project definition
	// WHEN: parsing it
	// THEN: every field lands on the Go structs

	f := NewProjectFactory()
	project, employees, err := f.ParseProject(sampleProjectJSON)
	require.NoError(t, err)

	assert.Equal(t, benefit.ProjectID("proj-hq"), project.ID)
	assert.Equal(t, benefit.CompanyID("acme"), project.CompanyID)
	assert.Equal(t, "HQ Office", project.Name)
	assert.Equal(t, "1 Main St", project.Address.FullAddress)
	assert.True(t, project.Budget.Equal(benefit.NewMoney(5000, "USD")))
	assert.True(t, project.OverdraftLimit.Equal(benefit.NewMoney(500, "USD")))
	assert.Equal(t, "America/New_York", project.Timezone)
	assert.Equal(t, benefit.TimeOfDay{Hour: 10, Minute: 30}, project.CutoffTime)
	assert.Equal(t, benefit.ProjectActive, project.Status)
	assert.True(t, project.HasService(benefit.ServiceLunch))
	assert.True(t, project.HasService(benefit.ServiceCompensation))
	assert.True(t, project.ComboPrices["premium"].Equal(benefit.NewMoney(18, "USD")))
	assert.True(t, project.CompensationDailyLimit.Equal(benefit.NewMoney(20, "USD")))
	assert.True(t, project.CompensationRollover)

	require.Len(t, employees, 2)
	assert.Equal(t, benefit.EmployeeID("emp-1"), employees[0].ID)
	assert.Equal(t, project.ID, employees[0].ProjectID)
	assert.True(t, employees[0].Active, "active defaults to true")
	assert.Nil(t, employees[0].CompensationLimitOverride)
	assert.False(t, employees[1].Active)
	require.NotNil(t, employees[1].CompensationLimitOverride)
	assert.True(t, employees[1].CompensationLimitOverride.Equal(benefit.NewMoney(30, "USD")))
}

func TestParseProject_Defaults(t *testing.T) {
	// GIVEN: a minimal definition with no timezone, cutoff, or status
	// WHEN: parsing it
	// THEN: UTC, 11:00, and active are filled in

	f := NewProjectFactory()
	project, employees, err := f.ParseProject(`{
		"id": "p1", "company_id": "acme", "currency": "EUR",
		"service_types": ["lunch"]
	}`)
	require.NoError(t, err)

	assert.Equal(t, "UTC", project.Timezone)
	assert.Equal(t, benefit.TimeOfDay{Hour: 11, Minute: 0}, project.CutoffTime)
	assert.Equal(t, benefit.ProjectActive, project.Status)
	assert.Empty(t, employees)
}

func TestParseProject_StatusVariants(t *testing.T) {
	f := NewProjectFactory()
	for status, want := range map[string]benefit.ProjectStatus{
		"blocked_debt": benefit.ProjectBlockedDebt,
		"archived":     benefit.ProjectArchived,
		"":             benefit.ProjectActive,
	} {
		project, _, err := f.ParseProject(`{
			"id": "p1", "company_id": "acme", "currency": "EUR",
			"status": "` + status + `"
		}`)
		require.NoError(t, err)
		assert.Equal(t, want, project.Status, "status %q", status)
	}
}

func TestParseProject_ValidationErrors(t *testing.T) {
	f := NewProjectFactory()

	cases := map[string]string{
		"missing id":          `{"company_id": "acme", "currency": "EUR"}`,
		"missing company":     `{"id": "p1", "currency": "EUR"}`,
		"missing currency":    `{"id": "p1", "company_id": "acme"}`,
		"bad timezone":        `{"id": "p1", "company_id": "acme", "currency": "EUR", "timezone": "Mars/Olympus"}`,
		"bad cutoff":          `{"id": "p1", "company_id": "acme", "currency": "EUR", "cutoff_time": "25:99"}`,
		"unknown service":     `{"id": "p1", "company_id": "acme", "currency": "EUR", "service_types": ["breakfast"]}`,
		"employee missing id": `{"id": "p1", "company_id": "acme", "currency": "EUR", "employees": [{"name": "Dana"}]}`,
		"malformed json":      `{"id": `,
	}
	for name, raw := range cases {
		_, _, err := f.ParseProject(raw)
		assert.Error(t, err, name)
	}
}

func TestToJSON_RoundTrips(t *testing.T) {
	// GIVEN: a parsed project
	// WHEN: exporting and re-parsing it
	// THEN: the second parse matches the first

	f := NewProjectFactory()
	project, employees, err := f.ParseProject(sampleProjectJSON)
	require.NoError(t, err)

	exported := f.ToJSON(project, employees)
	assert.Equal(t, "proj-hq", exported.ID)
	assert.Equal(t, 5000.0, exported.Budget)
	assert.Equal(t, "10:30", exported.CutoffTime)
	require.NotNil(t, exported.Compensation)
	assert.Equal(t, 20.0, exported.Compensation.DailyLimit)

	again, againEmployees, err := f.FromJSON(exported)
	require.NoError(t, err)
	assert.Equal(t, project.ID, again.ID)
	assert.True(t, project.Budget.Equal(again.Budget))
	assert.Equal(t, project.CutoffTime, again.CutoffTime)
	assert.ElementsMatch(t, project.ServiceTypes, again.ServiceTypes)
	require.Len(t, againEmployees, len(employees))
	assert.Equal(t, employees[1].Active, againEmployees[1].Active)
}
