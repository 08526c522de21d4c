// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/benefit-engine/benefit"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	projects      map[benefit.ProjectID]benefit.Project
	employees     map[benefit.EmployeeID]benefit.Employee
	subscriptions map[benefit.SubscriptionID]benefit.Subscription
	assignments   map[benefit.AssignmentID]benefit.Assignment
	compTxs       []benefit.CompensationTransaction
	dayCloses     map[dayCloseKey]benefit.DayCloseRecord
}

type dayCloseKey struct {
	EmployeeID benefit.EmployeeID
	Date       string
}

func NewMemory() *Memory {
	return &Memory{
		projects:      make(map[benefit.ProjectID]benefit.Project),
		employees:     make(map[benefit.EmployeeID]benefit.Employee),
		subscriptions: make(map[benefit.SubscriptionID]benefit.Subscription),
		assignments:   make(map[benefit.AssignmentID]benefit.Assignment),
		dayCloses:     make(map[dayCloseKey]benefit.DayCloseRecord),
	}
}

// Reset drops all data. Used by demo scenarios and tests.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = make(map[benefit.ProjectID]benefit.Project)
	m.employees = make(map[benefit.EmployeeID]benefit.Employee)
	m.subscriptions = make(map[benefit.SubscriptionID]benefit.Subscription)
	m.assignments = make(map[benefit.AssignmentID]benefit.Assignment)
	m.compTxs = nil
	m.dayCloses = make(map[dayCloseKey]benefit.DayCloseRecord)
	return nil
}

// ------ projects ------

func (m *Memory) SaveProject(_ context.Context, p benefit.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *Memory) GetProject(_ context.Context, id benefit.ProjectID) (*benefit.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProjectLocked(id), nil
}

func (m *Memory) getProjectLocked(id benefit.ProjectID) *benefit.Project {
	if p, ok := m.projects[id]; ok {
		return &p
	}
	return nil
}

func (m *Memory) ListProjects(_ context.Context, companyID benefit.CompanyID) ([]benefit.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []benefit.Project
	for _, p := range m.projects {
		if p.CompanyID == companyID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ------ employees ------

func (m *Memory) SaveEmployee(_ context.Context, e benefit.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id benefit.EmployeeID) (*benefit.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(id), nil
}

func (m *Memory) getEmployeeLocked(id benefit.EmployeeID) *benefit.Employee {
	if e, ok := m.employees[id]; ok {
		return &e
	}
	return nil
}

func (m *Memory) ListEmployees(_ context.Context, projectID benefit.ProjectID) ([]benefit.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []benefit.Employee
	for _, e := range m.employees {
		if e.ProjectID == projectID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ------ subscriptions ------

func (m *Memory) InsertSubscription(_ context.Context, s benefit.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSubscriptionLocked(s)
}

func (m *Memory) insertSubscriptionLocked(s benefit.Subscription) error {
	m.subscriptions[s.ID] = s
	return nil
}

func (m *Memory) GetSubscription(_ context.Context, id benefit.SubscriptionID) (*benefit.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSubscriptionLocked(id), nil
}

func (m *Memory) getSubscriptionLocked(id benefit.SubscriptionID) *benefit.Subscription {
	if s, ok := m.subscriptions[id]; ok {
		return &s
	}
	return nil
}

func (m *Memory) UpdateSubscription(_ context.Context, s benefit.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSubscriptionLocked(s)
}

// updateSubscriptionLocked is the compare-and-swap: a stale Version is a
// conflict, a matching one is stored incremented.
func (m *Memory) updateSubscriptionLocked(s benefit.Subscription) error {
	stored, ok := m.subscriptions[s.ID]
	if !ok {
		return &benefit.NotFoundError{Kind: "subscription", ID: string(s.ID)}
	}
	if stored.Version != s.Version {
		return &benefit.ConflictError{Kind: "subscription", ID: string(s.ID)}
	}
	s.Version++
	m.subscriptions[s.ID] = s
	return nil
}

func (m *Memory) ListSubscriptionsByProject(_ context.Context, projectID benefit.ProjectID) ([]benefit.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []benefit.Subscription
	for _, s := range m.subscriptions {
		if s.ProjectID == projectID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ------ assignments ------

func (m *Memory) InsertAssignments(_ context.Context, as []benefit.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertAssignmentsLocked(as)
}

func (m *Memory) insertAssignmentsLocked(as []benefit.Assignment) error {
	for _, a := range as {
		m.assignments[a.ID] = a
	}
	return nil
}

func (m *Memory) GetAssignment(_ context.Context, id benefit.AssignmentID) (*benefit.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAssignmentLocked(id), nil
}

func (m *Memory) getAssignmentLocked(id benefit.AssignmentID) *benefit.Assignment {
	if a, ok := m.assignments[id]; ok {
		return &a
	}
	return nil
}

func (m *Memory) UpdateAssignment(_ context.Context, a benefit.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAssignmentLocked(a)
}

func (m *Memory) updateAssignmentLocked(a benefit.Assignment) error {
	if _, ok := m.assignments[a.ID]; !ok {
		return &benefit.NotFoundError{Kind: "assignment", ID: string(a.ID)}
	}
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) ListAssignmentsBySubscription(_ context.Context, id benefit.SubscriptionID) ([]benefit.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAssignmentsBySubscriptionLocked(id), nil
}

func (m *Memory) listAssignmentsBySubscriptionLocked(id benefit.SubscriptionID) []benefit.Assignment {
	var result []benefit.Assignment
	for _, a := range m.assignments {
		if a.SubscriptionID == id {
			result = append(result, a)
		}
	}
	sortAssignments(result)
	return result
}

func (m *Memory) ListAssignmentsByEmployee(_ context.Context, id benefit.EmployeeID, from, to benefit.Date) ([]benefit.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAssignmentsByEmployeeLocked(id, from, to), nil
}

func (m *Memory) listAssignmentsByEmployeeLocked(id benefit.EmployeeID, from, to benefit.Date) []benefit.Assignment {
	var result []benefit.Assignment
	for _, a := range m.assignments {
		if a.EmployeeID != id {
			continue
		}
		if !from.IsZero() && a.Date.Before(from) {
			continue
		}
		if !to.IsZero() && a.Date.After(to) {
			continue
		}
		result = append(result, a)
	}
	sortAssignments(result)
	return result
}

func (m *Memory) ListAssignmentsByProject(ctx context.Context, id benefit.ProjectID) ([]benefit.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAssignmentsByProjectLocked(id), nil
}

func (m *Memory) listAssignmentsByProjectLocked(id benefit.ProjectID) []benefit.Assignment {
	var result []benefit.Assignment
	for _, a := range m.assignments {
		sub, ok := m.subscriptions[a.SubscriptionID]
		if ok && sub.ProjectID == id {
			result = append(result, a)
		}
	}
	sortAssignments(result)
	return result
}

func (m *Memory) CountFrozenInWeek(_ context.Context, id benefit.EmployeeID, day benefit.Date) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countFrozenInWeekLocked(id, day), nil
}

func (m *Memory) countFrozenInWeekLocked(id benefit.EmployeeID, day benefit.Date) int {
	count := 0
	for _, a := range m.assignments {
		if a.EmployeeID == id && a.Status == benefit.AssignmentFrozen && a.Date.SameISOWeek(day) {
			count++
		}
	}
	return count
}

// ------ compensation ------

func (m *Memory) InsertTransaction(_ context.Context, tx benefit.CompensationTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTransactionLocked(tx)
}

func (m *Memory) insertTransactionLocked(tx benefit.CompensationTransaction) error {
	m.compTxs = append(m.compTxs, tx)
	return nil
}

func (m *Memory) ListTransactionsByEmployee(_ context.Context, id benefit.EmployeeID, from, to benefit.Date) ([]benefit.CompensationTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransactionsLocked(func(tx benefit.CompensationTransaction) bool { return tx.EmployeeID == id }, from, to), nil
}

func (m *Memory) ListTransactionsByProject(_ context.Context, id benefit.ProjectID, from, to benefit.Date) ([]benefit.CompensationTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransactionsLocked(func(tx benefit.CompensationTransaction) bool { return tx.ProjectID == id }, from, to), nil
}

func (m *Memory) listTransactionsLocked(match func(benefit.CompensationTransaction) bool, from, to benefit.Date) []benefit.CompensationTransaction {
	var result []benefit.CompensationTransaction
	for _, tx := range m.compTxs {
		if !match(tx) {
			continue
		}
		if !from.IsZero() && tx.Date.Before(from) {
			continue
		}
		if !to.IsZero() && tx.Date.After(to) {
			continue
		}
		result = append(result, tx)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (m *Memory) SaveDayClose(_ context.Context, rec benefit.DayCloseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveDayCloseLocked(rec)
}

func (m *Memory) saveDayCloseLocked(rec benefit.DayCloseRecord) error {
	m.dayCloses[dayCloseKey{EmployeeID: rec.EmployeeID, Date: rec.Date.String()}] = rec
	return nil
}

func (m *Memory) GetDayClose(_ context.Context, id benefit.EmployeeID, day benefit.Date) (*benefit.DayCloseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.dayCloses[dayCloseKey{EmployeeID: id, Date: day.String()}]; ok {
		return &rec, nil
	}
	return nil, nil
}

func sortAssignments(as []benefit.Assignment) {
	sort.SliceStable(as, func(i, j int) bool {
		if !as[i].Date.Equal(as[j].Date) {
			return as[i].Date.Before(as[j].Date)
		}
		return as[i].ID < as[j].ID
	})
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The transactional view reads through to uncommitted writes, so work done
// earlier in the same transaction is visible to later reads.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(benefit.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	txStore := &txMemoryView{parent: tm}

	if err := fn(txStore); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	projects      map[benefit.ProjectID]benefit.Project
	employees     map[benefit.EmployeeID]benefit.Employee
	subscriptions map[benefit.SubscriptionID]benefit.Subscription
	assignments   map[benefit.AssignmentID]benefit.Assignment
	compTxs       []benefit.CompensationTransaction
	dayCloses     map[dayCloseKey]benefit.DayCloseRecord
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		projects:      make(map[benefit.ProjectID]benefit.Project, len(tm.projects)),
		employees:     make(map[benefit.EmployeeID]benefit.Employee, len(tm.employees)),
		subscriptions: make(map[benefit.SubscriptionID]benefit.Subscription, len(tm.subscriptions)),
		assignments:   make(map[benefit.AssignmentID]benefit.Assignment, len(tm.assignments)),
		compTxs:       append([]benefit.CompensationTransaction{}, tm.compTxs...),
		dayCloses:     make(map[dayCloseKey]benefit.DayCloseRecord, len(tm.dayCloses)),
	}
	for k, v := range tm.projects {
		s.projects[k] = v
	}
	for k, v := range tm.employees {
		s.employees[k] = v
	}
	for k, v := range tm.subscriptions {
		s.subscriptions[k] = v
	}
	for k, v := range tm.assignments {
		s.assignments[k] = v
	}
	for k, v := range tm.dayCloses {
		s.dayCloses[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.projects = s.projects
	tm.employees = s.employees
	tm.subscriptions = s.subscriptions
	tm.assignments = s.assignments
	tm.compTxs = s.compTxs
	tm.dayCloses = s.dayCloses
}

// txMemoryView bypasses locking (the parent's mutex is already held for
// the duration of the transaction).
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) SaveProject(_ context.Context, p benefit.Project) error {
	tv.parent.projects[p.ID] = p
	return nil
}

func (tv *txMemoryView) GetProject(_ context.Context, id benefit.ProjectID) (*benefit.Project, error) {
	return tv.parent.getProjectLocked(id), nil
}

func (tv *txMemoryView) ListProjects(_ context.Context, companyID benefit.CompanyID) ([]benefit.Project, error) {
	var result []benefit.Project
	for _, p := range tv.parent.projects {
		if p.CompanyID == companyID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (tv *txMemoryView) SaveEmployee(_ context.Context, e benefit.Employee) error {
	tv.parent.employees[e.ID] = e
	return nil
}

func (tv *txMemoryView) GetEmployee(_ context.Context, id benefit.EmployeeID) (*benefit.Employee, error) {
	return tv.parent.getEmployeeLocked(id), nil
}

func (tv *txMemoryView) ListEmployees(_ context.Context, projectID benefit.ProjectID) ([]benefit.Employee, error) {
	var result []benefit.Employee
	for _, e := range tv.parent.employees {
		if e.ProjectID == projectID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (tv *txMemoryView) InsertSubscription(_ context.Context, s benefit.Subscription) error {
	return tv.parent.insertSubscriptionLocked(s)
}

func (tv *txMemoryView) GetSubscription(_ context.Context, id benefit.SubscriptionID) (*benefit.Subscription, error) {
	return tv.parent.getSubscriptionLocked(id), nil
}

func (tv *txMemoryView) UpdateSubscription(_ context.Context, s benefit.Subscription) error {
	return tv.parent.updateSubscriptionLocked(s)
}

func (tv *txMemoryView) ListSubscriptionsByProject(_ context.Context, projectID benefit.ProjectID) ([]benefit.Subscription, error) {
	var result []benefit.Subscription
	for _, s := range tv.parent.subscriptions {
		if s.ProjectID == projectID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (tv *txMemoryView) InsertAssignments(_ context.Context, as []benefit.Assignment) error {
	return tv.parent.insertAssignmentsLocked(as)
}

func (tv *txMemoryView) GetAssignment(_ context.Context, id benefit.AssignmentID) (*benefit.Assignment, error) {
	return tv.parent.getAssignmentLocked(id), nil
}

func (tv *txMemoryView) UpdateAssignment(_ context.Context, a benefit.Assignment) error {
	return tv.parent.updateAssignmentLocked(a)
}

func (tv *txMemoryView) ListAssignmentsBySubscription(_ context.Context, id benefit.SubscriptionID) ([]benefit.Assignment, error) {
	return tv.parent.listAssignmentsBySubscriptionLocked(id), nil
}

func (tv *txMemoryView) ListAssignmentsByEmployee(_ context.Context, id benefit.EmployeeID, from, to benefit.Date) ([]benefit.Assignment, error) {
	return tv.parent.listAssignmentsByEmployeeLocked(id, from, to), nil
}

func (tv *txMemoryView) ListAssignmentsByProject(_ context.Context, id benefit.ProjectID) ([]benefit.Assignment, error) {
	return tv.parent.listAssignmentsByProjectLocked(id), nil
}

func (tv *txMemoryView) CountFrozenInWeek(_ context.Context, id benefit.EmployeeID, day benefit.Date) (int, error) {
	return tv.parent.countFrozenInWeekLocked(id, day), nil
}

func (tv *txMemoryView) InsertTransaction(_ context.Context, tx benefit.CompensationTransaction) error {
	return tv.parent.insertTransactionLocked(tx)
}

func (tv *txMemoryView) ListTransactionsByEmployee(_ context.Context, id benefit.EmployeeID, from, to benefit.Date) ([]benefit.CompensationTransaction, error) {
	return tv.parent.listTransactionsLocked(func(tx benefit.CompensationTransaction) bool { return tx.EmployeeID == id }, from, to), nil
}

func (tv *txMemoryView) ListTransactionsByProject(_ context.Context, id benefit.ProjectID, from, to benefit.Date) ([]benefit.CompensationTransaction, error) {
	return tv.parent.listTransactionsLocked(func(tx benefit.CompensationTransaction) bool { return tx.ProjectID == id }, from, to), nil
}

func (tv *txMemoryView) SaveDayClose(_ context.Context, rec benefit.DayCloseRecord) error {
	return tv.parent.saveDayCloseLocked(rec)
}

func (tv *txMemoryView) GetDayClose(_ context.Context, id benefit.EmployeeID, day benefit.Date) (*benefit.DayCloseRecord, error) {
	if rec, ok := tv.parent.dayCloses[dayCloseKey{EmployeeID: id, Date: day.String()}]; ok {
		return &rec, nil
	}
	return nil, nil
}

var _ benefit.TxStore = (*TxMemory)(nil)
var _ benefit.Store = (*txMemoryView)(nil)
