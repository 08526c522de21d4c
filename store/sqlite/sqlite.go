/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:

	Implements benefit.Store and benefit.TxStore using SQLite. In
	production, the same patterns apply to PostgreSQL - only minor SQL
	dialect differences.

KEY TABLES:

	projects:                   Budget, address, cutoff and combo price config
	employees:                  Employee records tied to one project
	subscriptions:              Dated runs with an optimistic version column
	assignments:                Per-day meal orders; rows are never deleted
	compensation_transactions:  Append-only reimbursable spend ledger
	day_closes:                 Materialized end-of-day compensation state

OPTIMISTIC VERSIONING:

	UpdateSubscription runs UPDATE ... WHERE id = ? AND version = ?. Zero
	rows affected with an existing row means a concurrent writer won; the
	caller gets ErrConflict and retries on fresh state.

HISTORY:

	Assignments and compensation transactions are never deleted. State
	changes go through UPDATE on the status column; terminal states stay
	queryable for reporting.

CONCURRENCY:

	Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
	database-level concurrency control handles this instead.

WAL MODE:

	SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
	- Multiple readers don't block
	- Single writer at a time
	- Better crash recovery

USAGE:

	store, err := sqlite.New("./data/benefit.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

MIGRATION:

	Schema is auto-migrated on New(). For production, use a proper
	migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - benefit/store.go: Interface definitions
  - benefit/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/benefit-engine/benefit"
)

// Store implements benefit.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		address_json TEXT NOT NULL,
		budget TEXT NOT NULL,
		overdraft_limit TEXT NOT NULL,
		currency TEXT NOT NULL,
		timezone TEXT NOT NULL,
		cutoff_time TEXT NOT NULL,
		status TEXT NOT NULL,
		service_types_json TEXT NOT NULL,
		combo_prices_json TEXT NOT NULL,
		comp_daily_limit TEXT NOT NULL,
		comp_rollover BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_company
		ON projects(company_id);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		phone TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		comp_limit_override TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_project
		ON employees(project_id);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		paused_at TEXT,
		paused_days_count INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subscriptions_project
		ON subscriptions(project_id);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		combo TEXT NOT NULL,
		price TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		frozen_at TEXT,
		freeze_reason TEXT,
		replacement_id TEXT,
		replacement_date TEXT,
		replaces_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_subscription
		ON assignments(subscription_id);

	-- Hot path: per-employee date-range scans (freeze limit, slot checks)
	CREATE INDEX IF NOT EXISTS idx_assignments_employee_date
		ON assignments(employee_id, date);

	CREATE INDEX IF NOT EXISTS idx_assignments_status
		ON assignments(status);

	CREATE TABLE IF NOT EXISTS compensation_transactions (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		company_paid TEXT NOT NULL,
		employee_paid TEXT NOT NULL,
		currency TEXT NOT NULL,
		restaurant_name TEXT,
		description TEXT,
		date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_comp_tx_employee_date
		ON compensation_transactions(employee_id, date);
	CREATE INDEX IF NOT EXISTS idx_comp_tx_project_date
		ON compensation_transactions(project_id, date);

	CREATE TABLE IF NOT EXISTS day_closes (
		employee_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		date TEXT NOT NULL,
		daily_limit TEXT NOT NULL,
		used TEXT NOT NULL,
		remaining TEXT NOT NULL,
		rollover_out TEXT NOT NULL,
		currency TEXT NOT NULL,
		PRIMARY KEY (employee_id, date)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query can run
// inside or outside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// PROJECT STORE
// =============================================================================

func (s *Store) SaveProject(ctx context.Context, p benefit.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveProject(ctx, s.db, p)
}

func saveProject(ctx context.Context, db dbtx, p benefit.Project) error {
	addressJSON, _ := json.Marshal(p.Address)
	servicesJSON, _ := json.Marshal(p.ServiceTypes)

	prices := make(map[string]string, len(p.ComboPrices))
	for combo, price := range p.ComboPrices {
		prices[string(combo)] = price.Value.String()
	}
	pricesJSON, _ := json.Marshal(prices)

	query := `
		INSERT INTO projects
		(id, company_id, name, address_json, budget, overdraft_limit, currency, timezone,
		 cutoff_time, status, service_types_json, combo_prices_json, comp_daily_limit,
		 comp_rollover, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			budget = excluded.budget,
			overdraft_limit = excluded.overdraft_limit,
			cutoff_time = excluded.cutoff_time,
			status = excluded.status,
			service_types_json = excluded.service_types_json,
			combo_prices_json = excluded.combo_prices_json,
			comp_daily_limit = excluded.comp_daily_limit,
			comp_rollover = excluded.comp_rollover
	`

	_, err := db.ExecContext(ctx, query,
		p.ID, p.CompanyID, p.Name, string(addressJSON),
		p.Budget.Value.String(), p.OverdraftLimit.Value.String(),
		p.Currency, p.Timezone, p.CutoffTime.String(), p.Status,
		string(servicesJSON), string(pricesJSON),
		p.CompensationDailyLimit.Value.String(), p.CompensationRollover,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

const projectColumns = `id, company_id, name, address_json, budget, overdraft_limit, currency,
	timezone, cutoff_time, status, service_types_json, combo_prices_json,
	comp_daily_limit, comp_rollover, created_at`

func (s *Store) GetProject(ctx context.Context, id benefit.ProjectID) (*benefit.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProject(ctx, s.db, id)
}

func getProject(ctx context.Context, db dbtx, id benefit.ProjectID) (*benefit.Project, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanProject(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context, companyID benefit.CompanyID) ([]benefit.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProjects(ctx, s.db, companyID)
}

func listProjects(ctx context.Context, db dbtx, companyID benefit.CompanyID) ([]benefit.Project, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE company_id = ? ORDER BY id", companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []benefit.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(rows *sql.Rows) (benefit.Project, error) {
	var (
		p                         benefit.Project
		addressJSON, servicesJSON string
		pricesJSON                string
		budget, overdraft, cutoff string
		compLimit                 string
		createdAt                 string
	)

	err := rows.Scan(
		&p.ID, &p.CompanyID, &p.Name, &addressJSON, &budget, &overdraft,
		&p.Currency, &p.Timezone, &cutoff, &p.Status, &servicesJSON,
		&pricesJSON, &compLimit, &p.CompensationRollover, &createdAt,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan project: %w", err)
	}

	json.Unmarshal([]byte(addressJSON), &p.Address)
	json.Unmarshal([]byte(servicesJSON), &p.ServiceTypes)

	var prices map[string]string
	json.Unmarshal([]byte(pricesJSON), &prices)
	p.ComboPrices = make(map[benefit.ComboType]benefit.Money, len(prices))
	for combo, value := range prices {
		p.ComboPrices[benefit.ComboType(combo)] = benefit.Money{
			Value:    benefit.MustParseDecimal(value),
			Currency: p.Currency,
		}
	}

	p.Budget = benefit.Money{Value: benefit.MustParseDecimal(budget), Currency: p.Currency}
	p.OverdraftLimit = benefit.Money{Value: benefit.MustParseDecimal(overdraft), Currency: p.Currency}
	p.CompensationDailyLimit = benefit.Money{Value: benefit.MustParseDecimal(compLimit), Currency: p.Currency}
	p.CutoffTime, _ = benefit.ParseTimeOfDay(cutoff)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return p, nil
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e benefit.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEmployee(ctx, s.db, e)
}

func saveEmployee(ctx context.Context, db dbtx, e benefit.Employee) error {
	var override *string
	if e.CompensationLimitOverride != nil {
		v := e.CompensationLimitOverride.Value.String()
		override = &v
	}

	query := `
		INSERT INTO employees (id, project_id, name, phone, active, comp_limit_override, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			active = excluded.active,
			comp_limit_override = excluded.comp_limit_override
	`

	_, err := db.ExecContext(ctx, query,
		e.ID, e.ProjectID, e.Name, e.Phone, e.Active, override,
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetEmployee(ctx context.Context, id benefit.EmployeeID) (*benefit.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

func getEmployee(ctx context.Context, db dbtx, id benefit.EmployeeID) (*benefit.Employee, error) {
	var (
		e         benefit.Employee
		phone     sql.NullString
		override  sql.NullString
		createdAt string
	)

	err := db.QueryRowContext(ctx,
		"SELECT id, project_id, name, phone, active, comp_limit_override, created_at FROM employees WHERE id = ?",
		id,
	).Scan(&e.ID, &e.ProjectID, &e.Name, &phone, &e.Active, &override, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.Phone = phone.String
	if override.Valid {
		m := benefit.Money{Value: benefit.MustParseDecimal(override.String)}
		e.CompensationLimitOverride = &m
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context, projectID benefit.ProjectID) ([]benefit.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEmployees(ctx, s.db, projectID)
}

func listEmployees(ctx context.Context, db dbtx, projectID benefit.ProjectID) ([]benefit.Employee, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, project_id, name, phone, active, comp_limit_override, created_at FROM employees WHERE project_id = ? ORDER BY id",
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []benefit.Employee
	for rows.Next() {
		var (
			e         benefit.Employee
			phone     sql.NullString
			override  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Name, &phone, &e.Active, &override, &createdAt); err != nil {
			return nil, err
		}
		e.Phone = phone.String
		if override.Valid {
			m := benefit.Money{Value: benefit.MustParseDecimal(override.String)}
			e.CompensationLimitOverride = &m
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// =============================================================================
// SUBSCRIPTION STORE
// =============================================================================

func (s *Store) InsertSubscription(ctx context.Context, sub benefit.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSubscription(ctx, s.db, sub)
}

func insertSubscription(ctx context.Context, db dbtx, sub benefit.Subscription) error {
	var pausedAt *string
	if sub.PausedAt != nil {
		v := sub.PausedAt.UTC().Format(time.RFC3339)
		pausedAt = &v
	}

	query := `
		INSERT INTO subscriptions
		(id, project_id, start_date, end_date, total_amount, paid_amount, paid, currency,
		 status, paused_at, paused_days_count, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		sub.ID, sub.ProjectID, sub.StartDate.String(), sub.EndDate.String(),
		sub.TotalAmount.Value.String(), sub.PaidAmount.Value.String(), sub.Paid,
		sub.TotalAmount.Currency, sub.Status, pausedAt, sub.PausedDaysCount,
		sub.Version,
		sub.CreatedAt.UTC().Format(time.RFC3339),
		sub.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

const subscriptionColumns = `id, project_id, start_date, end_date, total_amount, paid_amount,
	paid, currency, status, paused_at, paused_days_count, version, created_at, updated_at`

func (s *Store) GetSubscription(ctx context.Context, id benefit.SubscriptionID) (*benefit.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSubscription(ctx, s.db, id)
}

func getSubscription(ctx context.Context, db dbtx, id benefit.SubscriptionID) (*benefit.Subscription, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	sub, err := scanSubscription(rows)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubscription is the optimistic compare-and-swap: the WHERE clause
// matches on version, so a stale caller affects zero rows.
func (s *Store) UpdateSubscription(ctx context.Context, sub benefit.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateSubscription(ctx, s.db, sub)
}

func updateSubscription(ctx context.Context, db dbtx, sub benefit.Subscription) error {
	var pausedAt *string
	if sub.PausedAt != nil {
		v := sub.PausedAt.UTC().Format(time.RFC3339)
		pausedAt = &v
	}

	query := `
		UPDATE subscriptions SET
			start_date = ?, end_date = ?, total_amount = ?, paid_amount = ?, paid = ?,
			status = ?, paused_at = ?, paused_days_count = ?, version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := db.ExecContext(ctx, query,
		sub.StartDate.String(), sub.EndDate.String(),
		sub.TotalAmount.Value.String(), sub.PaidAmount.Value.String(), sub.Paid,
		sub.Status, pausedAt, sub.PausedDaysCount,
		sub.UpdatedAt.UTC().Format(time.RFC3339),
		sub.ID, sub.Version,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		existing, err := getSubscription(ctx, db, sub.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return &benefit.NotFoundError{Kind: "subscription", ID: string(sub.ID)}
		}
		return &benefit.ConflictError{Kind: "subscription", ID: string(sub.ID)}
	}
	return nil
}

func (s *Store) ListSubscriptionsByProject(ctx context.Context, projectID benefit.ProjectID) ([]benefit.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSubscriptionsByProject(ctx, s.db, projectID)
}

func listSubscriptionsByProject(ctx context.Context, db dbtx, projectID benefit.ProjectID) ([]benefit.Subscription, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE project_id = ? ORDER BY id", projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []benefit.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanSubscription(rows *sql.Rows) (benefit.Subscription, error) {
	var (
		sub                   benefit.Subscription
		startDate, endDate    string
		total, paid, currency string
		pausedAt              sql.NullString
		createdAt, updatedAt  string
	)

	err := rows.Scan(
		&sub.ID, &sub.ProjectID, &startDate, &endDate, &total, &paid, &sub.Paid,
		&currency, &sub.Status, &pausedAt, &sub.PausedDaysCount, &sub.Version,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return sub, fmt.Errorf("failed to scan subscription: %w", err)
	}

	sub.StartDate, _ = benefit.ParseDate(startDate)
	sub.EndDate, _ = benefit.ParseDate(endDate)
	sub.TotalAmount = benefit.Money{Value: benefit.MustParseDecimal(total), Currency: currency}
	sub.PaidAmount = benefit.Money{Value: benefit.MustParseDecimal(paid), Currency: currency}
	if pausedAt.Valid {
		t, _ := time.Parse(time.RFC3339, pausedAt.String)
		sub.PausedAt = &t
	}
	sub.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sub.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return sub, nil
}

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

func (s *Store) InsertAssignments(ctx context.Context, as []benefit.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertAssignments(ctx, s.db, as)
}

func insertAssignments(ctx context.Context, db dbtx, as []benefit.Assignment) error {
	query := `
		INSERT INTO assignments
		(id, subscription_id, employee_id, date, combo, price, currency, status,
		 frozen_at, freeze_reason, replacement_id, replacement_date, replaces_id,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, a := range as {
		frozenAt, replacementID, replacementDate, replacesID := assignmentNullables(a)
		_, err := db.ExecContext(ctx, query,
			a.ID, a.SubscriptionID, a.EmployeeID, a.Date.String(), a.Combo,
			a.Price.Value.String(), a.Price.Currency, a.Status,
			frozenAt, nullString(a.FreezeReason), replacementID, replacementDate, replacesID,
			a.CreatedAt.UTC().Format(time.RFC3339),
			a.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert assignment %s: %w", a.ID, err)
		}
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, id benefit.AssignmentID) (*benefit.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAssignment(ctx, s.db, id)
}

const assignmentColumns = `id, subscription_id, employee_id, date, combo, price, currency,
	status, frozen_at, freeze_reason, replacement_id, replacement_date, replaces_id,
	created_at, updated_at`

func getAssignment(ctx context.Context, db dbtx, id benefit.AssignmentID) (*benefit.Assignment, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+assignmentColumns+" FROM assignments WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	a, err := scanAssignment(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) UpdateAssignment(ctx context.Context, a benefit.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAssignment(ctx, s.db, a)
}

func updateAssignment(ctx context.Context, db dbtx, a benefit.Assignment) error {
	frozenAt, replacementID, replacementDate, replacesID := assignmentNullables(a)

	query := `
		UPDATE assignments SET
			combo = ?, price = ?, currency = ?, status = ?,
			frozen_at = ?, freeze_reason = ?, replacement_id = ?, replacement_date = ?,
			replaces_id = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := db.ExecContext(ctx, query,
		a.Combo, a.Price.Value.String(), a.Price.Currency, a.Status,
		frozenAt, nullString(a.FreezeReason), replacementID, replacementDate, replacesID,
		a.UpdatedAt.UTC().Format(time.RFC3339),
		a.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &benefit.NotFoundError{Kind: "assignment", ID: string(a.ID)}
	}
	return nil
}

func (s *Store) ListAssignmentsBySubscription(ctx context.Context, id benefit.SubscriptionID) ([]benefit.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryAssignments(ctx, s.db,
		"SELECT "+assignmentColumns+" FROM assignments WHERE subscription_id = ? ORDER BY date ASC, id ASC", id)
}

func (s *Store) ListAssignmentsByEmployee(ctx context.Context, id benefit.EmployeeID, from, to benefit.Date) ([]benefit.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAssignmentsByEmployee(ctx, s.db, id, from, to)
}

func listAssignmentsByEmployee(ctx context.Context, db dbtx, id benefit.EmployeeID, from, to benefit.Date) ([]benefit.Assignment, error) {
	query := "SELECT " + assignmentColumns + " FROM assignments WHERE employee_id = ?"
	args := []any{id}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, from.String())
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, to.String())
	}
	query += " ORDER BY date ASC, id ASC"
	return queryAssignments(ctx, db, query, args...)
}

func (s *Store) ListAssignmentsByProject(ctx context.Context, id benefit.ProjectID) ([]benefit.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAssignmentsByProject(ctx, s.db, id)
}

func listAssignmentsByProject(ctx context.Context, db dbtx, id benefit.ProjectID) ([]benefit.Assignment, error) {
	query := `
		SELECT a.id, a.subscription_id, a.employee_id, a.date, a.combo, a.price, a.currency,
		       a.status, a.frozen_at, a.freeze_reason, a.replacement_id, a.replacement_date,
		       a.replaces_id, a.created_at, a.updated_at
		FROM assignments a
		JOIN subscriptions s ON s.id = a.subscription_id
		WHERE s.project_id = ?
		ORDER BY a.date ASC, a.id ASC
	`
	return queryAssignments(ctx, db, query, id)
}

func (s *Store) CountFrozenInWeek(ctx context.Context, id benefit.EmployeeID, day benefit.Date) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countFrozenInWeek(ctx, s.db, id, day)
}

func countFrozenInWeek(ctx context.Context, db dbtx, id benefit.EmployeeID, day benefit.Date) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments
		 WHERE employee_id = ? AND status = ? AND date >= ? AND date <= ?`,
		id, benefit.AssignmentFrozen, day.WeekStart().String(), day.WeekEnd().String(),
	).Scan(&count)
	return count, err
}

func queryAssignments(ctx context.Context, db dbtx, query string, args ...any) ([]benefit.Assignment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []benefit.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func scanAssignment(rows *sql.Rows) (benefit.Assignment, error) {
	var (
		a                       benefit.Assignment
		date, price, currency   string
		frozenAt, freezeReason  sql.NullString
		replacementID, replDate sql.NullString
		replacesID              sql.NullString
		createdAt, updatedAt    string
	)

	err := rows.Scan(
		&a.ID, &a.SubscriptionID, &a.EmployeeID, &date, &a.Combo, &price, &currency,
		&a.Status, &frozenAt, &freezeReason, &replacementID, &replDate, &replacesID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return a, fmt.Errorf("failed to scan assignment: %w", err)
	}

	a.Date, _ = benefit.ParseDate(date)
	a.Price = benefit.Money{Value: benefit.MustParseDecimal(price), Currency: currency}
	if frozenAt.Valid {
		t, _ := time.Parse(time.RFC3339, frozenAt.String)
		a.FrozenAt = &t
	}
	a.FreezeReason = freezeReason.String
	if replacementID.Valid {
		id := benefit.AssignmentID(replacementID.String)
		a.ReplacementID = &id
	}
	if replDate.Valid {
		d, _ := benefit.ParseDate(replDate.String)
		a.ReplacementDate = &d
	}
	if replacesID.Valid {
		id := benefit.AssignmentID(replacesID.String)
		a.ReplacesID = &id
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return a, nil
}

func assignmentNullables(a benefit.Assignment) (frozenAt, replacementID, replacementDate, replacesID *string) {
	if a.FrozenAt != nil {
		v := a.FrozenAt.UTC().Format(time.RFC3339)
		frozenAt = &v
	}
	if a.ReplacementID != nil {
		v := string(*a.ReplacementID)
		replacementID = &v
	}
	if a.ReplacementDate != nil {
		v := a.ReplacementDate.String()
		replacementDate = &v
	}
	if a.ReplacesID != nil {
		v := string(*a.ReplacesID)
		replacesID = &v
	}
	return
}

// =============================================================================
// COMPENSATION STORE
// =============================================================================

func (s *Store) InsertTransaction(ctx context.Context, tx benefit.CompensationTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTransaction(ctx, s.db, tx)
}

func insertTransaction(ctx context.Context, db dbtx, tx benefit.CompensationTransaction) error {
	query := `
		INSERT INTO compensation_transactions
		(id, employee_id, project_id, amount, company_paid, employee_paid, currency,
		 restaurant_name, description, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		tx.ID, tx.EmployeeID, tx.ProjectID,
		tx.Amount.Value.String(), tx.CompanyPaid.Value.String(), tx.EmployeePaid.Value.String(),
		tx.Amount.Currency,
		nullString(tx.RestaurantName), nullString(tx.Description),
		tx.Date.String(),
		tx.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert compensation transaction: %w", err)
	}
	return nil
}

const compTxColumns = `id, employee_id, project_id, amount, company_paid, employee_paid,
	currency, restaurant_name, description, date, created_at`

func (s *Store) ListTransactionsByEmployee(ctx context.Context, id benefit.EmployeeID, from, to benefit.Date) ([]benefit.CompensationTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, "employee_id", string(id), from, to)
}

func (s *Store) ListTransactionsByProject(ctx context.Context, id benefit.ProjectID, from, to benefit.Date) ([]benefit.CompensationTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, "project_id", string(id), from, to)
}

func listTransactions(ctx context.Context, db dbtx, column, id string, from, to benefit.Date) ([]benefit.CompensationTransaction, error) {
	query := "SELECT " + compTxColumns + " FROM compensation_transactions WHERE " + column + " = ?"
	args := []any{id}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, from.String())
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, to.String())
	}
	query += " ORDER BY date ASC, created_at ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query compensation transactions: %w", err)
	}
	defer rows.Close()

	var txs []benefit.CompensationTransaction
	for rows.Next() {
		var (
			tx                          benefit.CompensationTransaction
			amount, companyP, employeeP string
			currency                    string
			restaurant, description     sql.NullString
			date, createdAt             string
		)
		if err := rows.Scan(
			&tx.ID, &tx.EmployeeID, &tx.ProjectID, &amount, &companyP, &employeeP,
			&currency, &restaurant, &description, &date, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan compensation transaction: %w", err)
		}

		tx.Amount = benefit.Money{Value: benefit.MustParseDecimal(amount), Currency: currency}
		tx.CompanyPaid = benefit.Money{Value: benefit.MustParseDecimal(companyP), Currency: currency}
		tx.EmployeePaid = benefit.Money{Value: benefit.MustParseDecimal(employeeP), Currency: currency}
		tx.RestaurantName = restaurant.String
		tx.Description = description.String
		tx.Date, _ = benefit.ParseDate(date)
		tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) SaveDayClose(ctx context.Context, rec benefit.DayCloseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveDayClose(ctx, s.db, rec)
}

func saveDayClose(ctx context.Context, db dbtx, rec benefit.DayCloseRecord) error {
	query := `
		INSERT INTO day_closes (employee_id, project_id, date, daily_limit, used, remaining, rollover_out, currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, date) DO UPDATE SET
			daily_limit = excluded.daily_limit,
			used = excluded.used,
			remaining = excluded.remaining,
			rollover_out = excluded.rollover_out
	`

	_, err := db.ExecContext(ctx, query,
		rec.EmployeeID, rec.ProjectID, rec.Date.String(),
		rec.DailyLimit.Value.String(), rec.Used.Value.String(),
		rec.Remaining.Value.String(), rec.RolloverOut.Value.String(),
		rec.DailyLimit.Currency,
	)
	return err
}

func (s *Store) GetDayClose(ctx context.Context, id benefit.EmployeeID, day benefit.Date) (*benefit.DayCloseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDayClose(ctx, s.db, id, day)
}

func getDayClose(ctx context.Context, db dbtx, id benefit.EmployeeID, day benefit.Date) (*benefit.DayCloseRecord, error) {
	var (
		rec                               benefit.DayCloseRecord
		date, limit, used, remaining, out string
		currency                          string
	)

	err := db.QueryRowContext(ctx,
		`SELECT employee_id, project_id, date, daily_limit, used, remaining, rollover_out, currency
		 FROM day_closes WHERE employee_id = ? AND date = ?`,
		id, day.String(),
	).Scan(&rec.EmployeeID, &rec.ProjectID, &date, &limit, &used, &remaining, &out, &currency)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.Date, _ = benefit.ParseDate(date)
	rec.DailyLimit = benefit.Money{Value: benefit.MustParseDecimal(limit), Currency: currency}
	rec.Used = benefit.Money{Value: benefit.MustParseDecimal(used), Currency: currency}
	rec.Remaining = benefit.Money{Value: benefit.MustParseDecimal(remaining), Currency: currency}
	rec.RolloverOut = benefit.Money{Value: benefit.MustParseDecimal(out), Currency: currency}
	return &rec, nil
}

// =============================================================================
// TRANSACTIONAL STORE (benefit.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store benefit.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveProject(ctx context.Context, p benefit.Project) error {
	return saveProject(ctx, ts.tx, p)
}

func (ts *txStore) GetProject(ctx context.Context, id benefit.ProjectID) (*benefit.Project, error) {
	return getProject(ctx, ts.tx, id)
}

func (ts *txStore) ListProjects(ctx context.Context, companyID benefit.CompanyID) ([]benefit.Project, error) {
	return listProjects(ctx, ts.tx, companyID)
}

func (ts *txStore) SaveEmployee(ctx context.Context, e benefit.Employee) error {
	return saveEmployee(ctx, ts.tx, e)
}

func (ts *txStore) GetEmployee(ctx context.Context, id benefit.EmployeeID) (*benefit.Employee, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListEmployees(ctx context.Context, projectID benefit.ProjectID) ([]benefit.Employee, error) {
	return listEmployees(ctx, ts.tx, projectID)
}

func (ts *txStore) InsertSubscription(ctx context.Context, sub benefit.Subscription) error {
	return insertSubscription(ctx, ts.tx, sub)
}

func (ts *txStore) GetSubscription(ctx context.Context, id benefit.SubscriptionID) (*benefit.Subscription, error) {
	return getSubscription(ctx, ts.tx, id)
}

func (ts *txStore) UpdateSubscription(ctx context.Context, sub benefit.Subscription) error {
	return updateSubscription(ctx, ts.tx, sub)
}

func (ts *txStore) ListSubscriptionsByProject(ctx context.Context, projectID benefit.ProjectID) ([]benefit.Subscription, error) {
	return listSubscriptionsByProject(ctx, ts.tx, projectID)
}

func (ts *txStore) InsertAssignments(ctx context.Context, as []benefit.Assignment) error {
	return insertAssignments(ctx, ts.tx, as)
}

func (ts *txStore) GetAssignment(ctx context.Context, id benefit.AssignmentID) (*benefit.Assignment, error) {
	return getAssignment(ctx, ts.tx, id)
}

func (ts *txStore) UpdateAssignment(ctx context.Context, a benefit.Assignment) error {
	return updateAssignment(ctx, ts.tx, a)
}

func (ts *txStore) ListAssignmentsBySubscription(ctx context.Context, id benefit.SubscriptionID) ([]benefit.Assignment, error) {
	return queryAssignments(ctx, ts.tx,
		"SELECT "+assignmentColumns+" FROM assignments WHERE subscription_id = ? ORDER BY date ASC, id ASC", id)
}

func (ts *txStore) ListAssignmentsByEmployee(ctx context.Context, id benefit.EmployeeID, from, to benefit.Date) ([]benefit.Assignment, error) {
	return listAssignmentsByEmployee(ctx, ts.tx, id, from, to)
}

func (ts *txStore) ListAssignmentsByProject(ctx context.Context, id benefit.ProjectID) ([]benefit.Assignment, error) {
	return listAssignmentsByProject(ctx, ts.tx, id)
}

func (ts *txStore) CountFrozenInWeek(ctx context.Context, id benefit.EmployeeID, day benefit.Date) (int, error) {
	return countFrozenInWeek(ctx, ts.tx, id, day)
}

func (ts *txStore) InsertTransaction(ctx context.Context, tx benefit.CompensationTransaction) error {
	return insertTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) ListTransactionsByEmployee(ctx context.Context, id benefit.EmployeeID, from, to benefit.Date) ([]benefit.CompensationTransaction, error) {
	return listTransactions(ctx, ts.tx, "employee_id", string(id), from, to)
}

func (ts *txStore) ListTransactionsByProject(ctx context.Context, id benefit.ProjectID, from, to benefit.Date) ([]benefit.CompensationTransaction, error) {
	return listTransactions(ctx, ts.tx, "project_id", string(id), from, to)
}

func (ts *txStore) SaveDayClose(ctx context.Context, rec benefit.DayCloseRecord) error {
	return saveDayClose(ctx, ts.tx, rec)
}

func (ts *txStore) GetDayClose(ctx context.Context, id benefit.EmployeeID, day benefit.Date) (*benefit.DayCloseRecord, error) {
	return getDayClose(ctx, ts.tx, id, day)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"assignments", "subscriptions", "compensation_transactions", "day_closes", "employees", "projects"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ benefit.TxStore = (*Store)(nil)
var _ benefit.Store = (*txStore)(nil)
