package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/request-desk/internal/domain"
	"github.com/spec-kit/request-desk/internal/repository"
)

// In-memory repository fakes. The compare-and-set methods hold the same mutex
// as the reads, so concurrency tests exercise the single-winner guarantee.
// Writers clamp LastActivityAt to the maximum seen, matching the SQL layer.

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

type memRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*domain.Request
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{requests: make(map[string]*domain.Request)}
}

func (m *memRequestRepo) Create(_ context.Context, req *domain.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	req.LastActivityAt = now
	clone := *req
	m.requests[req.ID] = &clone
	return nil
}

func (m *memRequestRepo) GetByID(_ context.Context, id string) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *req
	return &clone, nil
}

func (m *memRequestRepo) GetByNumber(_ context.Context, number string) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.requests {
		if req.RequestNumber == number {
			clone := *req
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memRequestRepo) ListWithFilter(_ context.Context, scope repository.RequestScope, filter repository.RequestFilter) ([]domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Request
	for _, req := range m.requests {
		if !scopeMatches(scope, req) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, req.Status) {
			continue
		}
		if filter.Urgency != nil && req.Urgency != *filter.Urgency {
			continue
		}
		result = append(result, *req)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActivityAt.After(result[j].LastActivityAt)
	})
	return result, nil
}

func scopeMatches(scope repository.RequestScope, req *domain.Request) bool {
	if scope.RequesterID == nil && scope.AssigneeID == nil && scope.DepartmentID == nil {
		return true
	}
	if scope.RequesterID != nil && req.RequesterID == *scope.RequesterID {
		return true
	}
	if scope.AssigneeID != nil && req.AssigneeID != nil && *req.AssigneeID == *scope.AssigneeID {
		return true
	}
	if scope.DepartmentID != nil && req.DepartmentID != nil && *req.DepartmentID == *scope.DepartmentID {
		return true
	}
	return false
}

func containsStatus(statuses []domain.RequestStatus, s domain.RequestStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (m *memRequestRepo) CompareAndSetStatus(_ context.Context, id string, expected, next domain.RequestStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok || req.Status != expected {
		return false, nil
	}
	req.Status = next
	req.LastActivityAt = maxTime(req.LastActivityAt, at)
	req.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memRequestRepo) CompareAndSetAssignee(_ context.Context, id string, expected *string, assignee, department string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return false, nil
	}
	if (req.AssigneeID == nil) != (expected == nil) {
		return false, nil
	}
	if req.AssigneeID != nil && *req.AssigneeID != *expected {
		return false, nil
	}
	req.AssigneeID = &assignee
	req.DepartmentID = &department
	req.LastActivityAt = maxTime(req.LastActivityAt, at)
	req.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memRequestRepo) SetUrgency(_ context.Context, id string, urgency domain.RequestUrgency, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return pgx.ErrNoRows
	}
	req.Urgency = urgency
	req.LastActivityAt = maxTime(req.LastActivityAt, at)
	return nil
}

func (m *memRequestRepo) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return pgx.ErrNoRows
	}
	req.LastActivityAt = maxTime(req.LastActivityAt, at)
	return nil
}

func (m *memRequestRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.requests, id)
	return nil
}

type memActivityRepo struct {
	mu         sync.Mutex
	activities []domain.Activity
}

func newMemActivityRepo() *memActivityRepo {
	return &memActivityRepo{}
}

func (m *memActivityRepo) Append(_ context.Context, activity *domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	m.activities = append(m.activities, *activity)
	return nil
}

func (m *memActivityRepo) ListByRequest(_ context.Context, requestID string) ([]domain.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Activity
	for _, activity := range m.activities {
		if activity.RequestID == requestID {
			result = append(result, activity)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

func (m *memActivityRepo) DeleteByRequest(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.activities[:0]
	for _, activity := range m.activities {
		if activity.RequestID != requestID {
			kept = append(kept, activity)
		}
	}
	m.activities = kept
	return nil
}

type memAckRepo struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

func newMemAckRepo() *memAckRepo {
	return &memAckRepo{marks: make(map[string]time.Time)}
}

func ackMapKey(viewerID, requestID string) string {
	return viewerID + "|" + requestID
}

func (m *memAckRepo) Get(_ context.Context, viewerID, requestID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.marks[ackMapKey(viewerID, requestID)]
	return at, ok, nil
}

func (m *memAckRepo) Set(_ context.Context, viewerID, requestID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[ackMapKey(viewerID, requestID)] = at
	return nil
}

func (m *memAckRepo) DeleteByRequest(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.marks {
		if strings.HasSuffix(key, "|"+requestID) {
			delete(m.marks, key)
		}
	}
	return nil
}

type memStaffRepo struct {
	mu    sync.Mutex
	staff map[string]*domain.StaffMember
}

func newMemStaffRepo() *memStaffRepo {
	return &memStaffRepo{staff: make(map[string]*domain.StaffMember)}
}

func (m *memStaffRepo) Create(_ context.Context, staff *domain.StaffMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	clone := *staff
	m.staff[staff.ID] = &clone
	return nil
}

func (m *memStaffRepo) Update(_ context.Context, staff *domain.StaffMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staff[staff.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *staff
	m.staff[staff.ID] = &clone
	return nil
}

func (m *memStaffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	staff, ok := m.staff[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *staff
	return &clone, nil
}

func (m *memStaffRepo) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, staff := range m.staff {
		if staff.Email == email {
			clone := *staff
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStaffRepo) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.StaffMember
	for _, staff := range m.staff {
		if filter.Role != nil && staff.Role != *filter.Role {
			continue
		}
		if filter.DepartmentID != nil && (staff.DepartmentID == nil || *staff.DepartmentID != *filter.DepartmentID) {
			continue
		}
		if filter.Active != nil && staff.Active != *filter.Active {
			continue
		}
		result = append(result, *staff)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type memDepartmentRepo struct {
	mu    sync.Mutex
	depts map[string]*domain.Department
}

func newMemDepartmentRepo() *memDepartmentRepo {
	return &memDepartmentRepo{depts: make(map[string]*domain.Department)}
}

func (m *memDepartmentRepo) Create(_ context.Context, dept *domain.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	clone := *dept
	m.depts[dept.ID] = &clone
	return nil
}

func (m *memDepartmentRepo) Update(_ context.Context, dept *domain.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.depts[dept.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *dept
	m.depts[dept.ID] = &clone
	return nil
}

func (m *memDepartmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dept, ok := m.depts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *dept
	return &clone, nil
}

func (m *memDepartmentRepo) ListActive(_ context.Context) ([]domain.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Department
	for _, dept := range m.depts {
		if dept.IsActive {
			result = append(result, *dept)
		}
	}
	return result, nil
}

// memTxRunner rebinds the fakes without real transaction semantics. Tests that
// exercise rollback rely on the compare-and-set failing before any append.
type memTxRunner struct {
	requests   repository.RequestRepository
	activities repository.ActivityRepository
}

func (t *memTxRunner) InTx(_ context.Context, fn func(repository.TxRepos) error) error {
	return fn(repository.TxRepos{Requests: t.requests, Activities: t.activities})
}

type failingAckRepo struct {
	*memAckRepo
	deleteErr error
}

func (f *failingAckRepo) DeleteByRequest(ctx context.Context, requestID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.memAckRepo.DeleteByRequest(ctx, requestID)
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, string) (bool, error) {
	return false, nil
}
