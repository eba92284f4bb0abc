package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/request-desk/internal/domain"
	"github.com/spec-kit/request-desk/internal/events"
	"github.com/spec-kit/request-desk/internal/ratelimit"
	"github.com/spec-kit/request-desk/internal/repository"
	apperrors "github.com/spec-kit/request-desk/pkg/util/errorutil"
)

// AssignmentService routes requests to departments and assignees.
type AssignmentService struct {
	requests    repository.RequestRepository
	staff       repository.StaffRepository
	departments repository.DepartmentRepository
	tx          repository.TxRunner
	limiter     ratelimit.Limiter
	dispatcher  events.Dispatcher
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	RequestRepo    repository.RequestRepository
	StaffRepo      repository.StaffRepository
	DepartmentRepo repository.DepartmentRepository
	Tx             repository.TxRunner
	Limiter        ratelimit.Limiter
	Dispatcher     events.Dispatcher
}

// AssignInput describes an assignment attempt. ExpectedAssigneeID is the
// assignee the caller last observed (nil for an unassigned request); a
// mismatch is rejected as CONFLICT to prevent double-assignment races.
type AssignInput struct {
	RequestID          string
	AssigneeID         string
	DepartmentID       string
	ExpectedAssigneeID *string
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	return &AssignmentService{
		requests:    deps.RequestRepo,
		staff:       deps.StaffRepo,
		departments: deps.DepartmentRepo,
		tx:          deps.Tx,
		limiter:     limiter,
		dispatcher:  deps.Dispatcher,
	}
}

// Assign sets the request's assignee and department, appending an ASSIGNMENT
// activity in the same transaction. Re-assignment follows the same expected-
// value precondition; there is no state machine restriction beyond the
// capability check and the terminal CANCELLED state.
func (s *AssignmentService) Assign(ctx context.Context, viewer domain.Viewer, input AssignInput) (*domain.Request, *domain.Activity, error) {
	req, err := s.requests.GetByID(ctx, input.RequestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("request", map[string]any{"request_id": input.RequestID})
		}
		return nil, nil, apperrors.MapError(err)
	}
	if !CanView(viewer, req) {
		return nil, nil, apperrors.NewNotFound("request", map[string]any{"request_id": input.RequestID})
	}
	if domain.Terminal(req.Status) {
		return nil, nil, apperrors.NewValidationError("cancelled requests cannot be assigned", nil)
	}

	dept, err := s.departments.GetByID(ctx, input.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewValidationError("unknown department", map[string]any{"department_id": input.DepartmentID})
		}
		return nil, nil, apperrors.MapError(err)
	}
	if !dept.IsActive {
		return nil, nil, apperrors.NewValidationError("department inactive", map[string]any{"department_id": dept.ID})
	}

	assignee, err := s.staff.GetByID(ctx, input.AssigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewValidationError("unknown assignee", map[string]any{"staff_id": input.AssigneeID})
		}
		return nil, nil, apperrors.MapError(err)
	}
	if !assignee.Active {
		return nil, nil, apperrors.NewValidationError("assignee inactive", map[string]any{"staff_id": assignee.ID})
	}
	if assignee.DepartmentID == nil || *assignee.DepartmentID != dept.ID {
		return nil, nil, apperrors.NewValidationError("assignee does not belong to department", map[string]any{
			"staff_id":      assignee.ID,
			"department_id": dept.ID,
		})
	}

	if !CanAssign(viewer, assignee, dept.ID) {
		return nil, nil, apperrors.NewAuthorizationError("assignment outside permitted scope")
	}
	if !sameAssignee(req.AssigneeID, input.ExpectedAssigneeID) {
		return nil, nil, apperrors.NewConflict("request assignment changed since last read", map[string]any{
			"current_assignee": req.AssigneeID,
		})
	}
	if err := s.checkQuota(ctx, viewer.ID, "request_assign"); err != nil {
		return nil, nil, err
	}

	activity := &domain.Activity{
		ID:           uuid.NewString(),
		RequestID:    req.ID,
		ActorType:    domain.SubjectTypeStaff,
		ActorID:      viewer.ID,
		Type:         domain.ActivityAssignment,
		CreatedAt:    time.Now().UTC(),
		AssigneeID:   &assignee.ID,
		DepartmentID: &dept.ID,
	}
	err = s.tx.InTx(ctx, func(r repository.TxRepos) error {
		applied, err := r.Requests.CompareAndSetAssignee(ctx, req.ID, input.ExpectedAssigneeID, assignee.ID, dept.ID, activity.CreatedAt)
		if err != nil {
			return err
		}
		if !applied {
			return apperrors.NewConflict("request assignment changed since last read", nil)
		}
		return r.Activities.Append(ctx, activity)
	})
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	req.AssigneeID = &assignee.ID
	req.DepartmentID = &dept.ID
	req.LastActivityAt = activity.CreatedAt
	s.publish(ctx, events.Event{
		Type:       events.EventRequestAssigned,
		RequestID:  req.ID,
		ActivityID: activity.ID,
		Actor:      events.Actor{Type: domain.SubjectTypeStaff, StaffID: &viewer.ID},
		Payload: events.RequestAssignedPayload{
			AssigneeStaffID: assignee.ID,
			DepartmentID:    dept.ID,
		},
	})
	return req, activity, nil
}

func sameAssignee(current, expected *string) bool {
	if current == nil || expected == nil {
		return current == nil && expected == nil
	}
	return *current == *expected
}

func (s *AssignmentService) checkQuota(ctx context.Context, actorID, resource string) error {
	allowed, err := s.limiter.Allow(ctx, actorID, resource)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !allowed {
		return apperrors.NewRateLimited("write quota exceeded, retry later")
	}
	return nil
}

func (s *AssignmentService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
