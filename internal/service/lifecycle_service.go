package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/request-desk/internal/domain"
	"github.com/spec-kit/request-desk/internal/events"
	"github.com/spec-kit/request-desk/internal/ratelimit"
	"github.com/spec-kit/request-desk/internal/repository"
	apperrors "github.com/spec-kit/request-desk/pkg/util/errorutil"
)

// LifecycleService owns request creation, the status state machine, notes,
// escalation and the administrative delete. All status mutations go through
// ApplyTransition; nothing else writes Request.Status.
type LifecycleService struct {
	requests   repository.RequestRepository
	activities repository.ActivityRepository
	acks       repository.AcknowledgmentRepository
	tx         repository.TxRunner
	limiter    ratelimit.Limiter
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// LifecycleDependencies bundles collaborators for the service.
type LifecycleDependencies struct {
	RequestRepo  repository.RequestRepository
	ActivityRepo repository.ActivityRepository
	AckRepo      repository.AcknowledgmentRepository
	Tx           repository.TxRunner
	Limiter      ratelimit.Limiter
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// CreateInput describes request creation payload.
type CreateInput struct {
	Type        domain.RequestType
	Title       string
	Description string
	Urgency     domain.RequestUrgency
	DueDate     *time.Time
}

// TransitionInput describes a status-change attempt. ExpectedStatus is the
// status the caller last observed; a mismatch with the persisted status is
// rejected as CONFLICT without writing anything.
type TransitionInput struct {
	RequestID        string
	TargetStatus     domain.RequestStatus
	ExpectedStatus   domain.RequestStatus
	Notes            *string
	TimeSpentMinutes *int
}

// ListInput describes listing filters on top of the viewer's scope.
type ListInput struct {
	Statuses     []domain.RequestStatus
	Types        []domain.RequestType
	Urgency      *domain.RequestUrgency
	DepartmentID *string
	AssigneeID   *string
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		requests:   deps.RequestRepo,
		activities: deps.ActivityRepo,
		acks:       deps.AckRepo,
		tx:         deps.Tx,
		limiter:    limiter,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// allowedTransitions is the complete edge set of the state machine. CANCELLED
// is terminal; reaching it additionally requires the admin capability.
var allowedTransitions = map[domain.RequestStatus][]domain.RequestStatus{
	domain.RequestStatusPending:    {domain.RequestStatusInProgress, domain.RequestStatusCancelled},
	domain.RequestStatusInProgress: {domain.RequestStatusOnHold, domain.RequestStatusCompleted, domain.RequestStatusCancelled},
	domain.RequestStatusOnHold:     {domain.RequestStatusInProgress, domain.RequestStatusCompleted, domain.RequestStatusCancelled},
	domain.RequestStatusCompleted:  {domain.RequestStatusInProgress},
	domain.RequestStatusCancelled:  {},
}

func isValidTransition(current, next domain.RequestStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// CreateRequest opens a new request in PENDING with a freshly allocated
// request number.
func (s *LifecycleService) CreateRequest(ctx context.Context, viewer domain.Viewer, input CreateInput) (*domain.Request, error) {
	if err := s.checkQuota(ctx, viewer.ID, "request_create"); err != nil {
		return nil, err
	}
	if !domain.ValidType(input.Type) {
		return nil, apperrors.NewValidationError("unknown request type", map[string]any{"type": input.Type})
	}
	urgency := input.Urgency
	if urgency == "" {
		urgency = domain.UrgencyNormal
	}
	if urgency != domain.UrgencyNormal && urgency != domain.UrgencyUrgent {
		return nil, apperrors.NewValidationError("unknown urgency", map[string]any{"urgency": urgency})
	}

	req := &domain.Request{
		RequestNumber: generateRequestNumber(),
		RequesterID:   viewer.ID,
		Type:          input.Type,
		Status:        domain.RequestStatusPending,
		Urgency:       urgency,
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		DueDate:       input.DueDate,
	}
	if req.Title == "" || req.Description == "" {
		return nil, apperrors.NewValidationError("title and description required", nil)
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:      events.EventRequestCreated,
		RequestID: req.ID,
		Actor:     actorFor(viewer),
		Payload: events.RequestCreatedPayload{
			RequestNumber: req.RequestNumber,
			RequestType:   req.Type,
			Urgency:       req.Urgency,
			Title:         req.Title,
		},
	})
	return req, nil
}

// GetRequest fetches a request the viewer is allowed to see.
func (s *LifecycleService) GetRequest(ctx context.Context, viewer domain.Viewer, requestID string) (*domain.Request, error) {
	return s.getVisible(ctx, viewer, requestID)
}

// GetRequestByNumber resolves a request by its human-facing number. Unknown
// and out-of-scope numbers are indistinguishable to the caller.
func (s *LifecycleService) GetRequestByNumber(ctx context.Context, viewer domain.Viewer, number string) (*domain.Request, error) {
	req, err := s.requests.GetByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("request", map[string]any{"request_number": number})
		}
		return nil, apperrors.MapError(err)
	}
	if !CanView(viewer, req) {
		return nil, apperrors.NewNotFound("request", map[string]any{"request_number": number})
	}
	return req, nil
}

// ListRequests returns requests within the viewer's visibility scope.
func (s *LifecycleService) ListRequests(ctx context.Context, viewer domain.Viewer, input ListInput) ([]domain.Request, error) {
	filter := repository.RequestFilter{
		Statuses:     input.Statuses,
		Types:        input.Types,
		Urgency:      input.Urgency,
		DepartmentID: input.DepartmentID,
		AssigneeID:   input.AssigneeID,
		SearchTerm:   input.SearchTerm,
		CreatedFrom:  input.CreatedFrom,
		CreatedTo:    input.CreatedTo,
		Limit:        input.Limit,
		Offset:       input.Offset,
	}
	result, err := s.requests.ListWithFilter(ctx, ScopeFor(viewer), filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

// GetActivities returns the request's activity stream, visibility-filtered,
// in chronological (createdAt, id) order.
func (s *LifecycleService) GetActivities(ctx context.Context, viewer domain.Viewer, requestID string) ([]domain.Activity, error) {
	if _, err := s.getVisible(ctx, viewer, requestID); err != nil {
		return nil, err
	}
	activities, err := s.activities.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ProjectActivities(viewer, activities), nil
}

// ApplyTransition validates and applies a status change. The persisted status
// update and the STATUS_CHANGE activity land in one transaction; rejections
// of any kind leave no trace in the log.
func (s *LifecycleService) ApplyTransition(ctx context.Context, viewer domain.Viewer, input TransitionInput) (*domain.Request, *domain.Activity, error) {
	req, err := s.getVisible(ctx, viewer, input.RequestID)
	if err != nil {
		return nil, nil, err
	}
	if !CanTransition(viewer, input.TargetStatus) {
		return nil, nil, apperrors.NewAuthorizationError("transition not permitted for role")
	}
	if input.TimeSpentMinutes != nil && *input.TimeSpentMinutes < 0 {
		return nil, nil, apperrors.NewValidationError("time spent must be non-negative", nil)
	}
	if req.Status != input.ExpectedStatus {
		return nil, nil, apperrors.NewConflict("request status changed since last read", map[string]any{
			"current_status": req.Status,
		})
	}
	if !isValidTransition(req.Status, input.TargetStatus) {
		return nil, nil, apperrors.NewValidationError("illegal status transition", map[string]any{
			"from": req.Status,
			"to":   input.TargetStatus,
		})
	}
	if req.Status == domain.RequestStatusPending && input.TargetStatus == domain.RequestStatusInProgress && req.AssigneeID == nil {
		return nil, nil, apperrors.NewValidationError("request must be assigned before work starts", nil)
	}
	if err := s.checkQuota(ctx, viewer.ID, "request_write"); err != nil {
		return nil, nil, err
	}

	oldStatus := req.Status
	newStatus := input.TargetStatus
	activity := &domain.Activity{
		ID:               uuid.NewString(),
		RequestID:        req.ID,
		ActorType:        subjectFor(viewer),
		ActorID:          viewer.ID,
		Type:             domain.ActivityStatusChange,
		CreatedAt:        time.Now().UTC(),
		OldStatus:        &oldStatus,
		NewStatus:        &newStatus,
		Notes:            input.Notes,
		TimeSpentMinutes: input.TimeSpentMinutes,
	}

	err = s.tx.InTx(ctx, func(r repository.TxRepos) error {
		applied, err := r.Requests.CompareAndSetStatus(ctx, req.ID, input.ExpectedStatus, newStatus, activity.CreatedAt)
		if err != nil {
			return err
		}
		if !applied {
			return apperrors.NewConflict("request status changed since last read", nil)
		}
		return r.Activities.Append(ctx, activity)
	})
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	req.Status = newStatus
	req.LastActivityAt = activity.CreatedAt
	s.publish(ctx, events.Event{
		Type:       events.EventStatusChanged,
		RequestID:  req.ID,
		ActivityID: activity.ID,
		Actor:      actorFor(viewer),
		Payload: events.StatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Notes:     input.Notes,
		},
	})
	return req, activity, nil
}

// AddNote appends a note to the request's activity stream. Requesters may
// only write external notes; staff choose either audience.
func (s *LifecycleService) AddNote(ctx context.Context, viewer domain.Viewer, requestID, notes string, isInternal bool) (*domain.Activity, error) {
	req, err := s.getVisible(ctx, viewer, requestID)
	if err != nil {
		return nil, err
	}
	body := strings.TrimSpace(notes)
	if body == "" {
		return nil, apperrors.NewValidationError("note body required", nil)
	}
	if isInternal && !viewer.Staff() {
		return nil, apperrors.NewAuthorizationError("requesters cannot write internal notes")
	}
	if err := s.checkQuota(ctx, viewer.ID, "request_write"); err != nil {
		return nil, err
	}

	activity := &domain.Activity{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		ActorType:  subjectFor(viewer),
		ActorID:    viewer.ID,
		Type:       domain.ActivityNote,
		CreatedAt:  time.Now().UTC(),
		Notes:      &body,
		IsInternal: isInternal,
	}
	err = s.tx.InTx(ctx, func(r repository.TxRepos) error {
		if err := r.Activities.Append(ctx, activity); err != nil {
			return err
		}
		return r.Requests.Touch(ctx, req.ID, activity.CreatedAt)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:       events.EventNoteAdded,
		RequestID:  req.ID,
		ActivityID: activity.ID,
		Actor:      actorFor(viewer),
		Payload: events.NoteAddedPayload{
			ActivityID:  activity.ID,
			IsInternal:  isInternal,
			BodyPreview: stringPreview(body, 120),
		},
	})
	return activity, nil
}

// Escalate raises the request to URGENT and records an ESCALATION activity.
func (s *LifecycleService) Escalate(ctx context.Context, viewer domain.Viewer, requestID string) (*domain.Request, *domain.Activity, error) {
	req, err := s.getVisible(ctx, viewer, requestID)
	if err != nil {
		return nil, nil, err
	}
	if !viewer.Staff() {
		return nil, nil, apperrors.NewAuthorizationError("escalation requires a staff role")
	}
	if domain.Terminal(req.Status) {
		return nil, nil, apperrors.NewValidationError("cancelled requests cannot be escalated", nil)
	}
	if req.Urgency == domain.UrgencyUrgent {
		return nil, nil, apperrors.NewValidationError("request is already urgent", nil)
	}
	if err := s.checkQuota(ctx, viewer.ID, "request_write"); err != nil {
		return nil, nil, err
	}

	activity := &domain.Activity{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		ActorType: subjectFor(viewer),
		ActorID:   viewer.ID,
		Type:      domain.ActivityEscalation,
		CreatedAt: time.Now().UTC(),
	}
	err = s.tx.InTx(ctx, func(r repository.TxRepos) error {
		if err := r.Requests.SetUrgency(ctx, req.ID, domain.UrgencyUrgent, activity.CreatedAt); err != nil {
			return err
		}
		return r.Activities.Append(ctx, activity)
	})
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	req.Urgency = domain.UrgencyUrgent
	req.LastActivityAt = activity.CreatedAt
	s.publish(ctx, events.Event{
		Type:       events.EventRequestEscalated,
		RequestID:  req.ID,
		ActivityID: activity.ID,
		Actor:      actorFor(viewer),
		Payload:    events.RequestEscalatedPayload{Urgency: domain.UrgencyUrgent},
	})
	return req, activity, nil
}

// DeleteRequest removes a request together with its activity log and
// acknowledgment marks. It bypasses the state machine and is audited through
// the event dispatcher instead of the log it deletes.
func (s *LifecycleService) DeleteRequest(ctx context.Context, viewer domain.Viewer, requestID string) error {
	if viewer.Role != domain.ViewerRoleAdmin {
		return apperrors.NewAuthorizationError("administrative delete requires admin role")
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		}
		return apperrors.MapError(err)
	}

	err = s.tx.InTx(ctx, func(r repository.TxRepos) error {
		if err := r.Activities.DeleteByRequest(ctx, req.ID); err != nil {
			return err
		}
		return r.Requests.Delete(ctx, req.ID)
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	if s.acks != nil {
		// Orphaned marks are harmless for correctness but leak Redis keys.
		if err := s.acks.DeleteByRequest(ctx, req.ID); err != nil {
			s.logger.Warn("acknowledgment mark cleanup failed",
				zap.String("request_id", req.ID),
				zap.Error(err))
		}
	}

	s.publish(ctx, events.Event{
		Type:      events.EventRequestDeleted,
		RequestID: req.ID,
		Actor:     actorFor(viewer),
		Payload: events.RequestDeletedPayload{
			RequestNumber: req.RequestNumber,
			DeletedBy:     viewer.ID,
		},
	})
	return nil
}

func (s *LifecycleService) getVisible(ctx context.Context, viewer domain.Viewer, requestID string) (*domain.Request, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		}
		return nil, apperrors.MapError(err)
	}
	if !CanView(viewer, req) {
		return nil, apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
	}
	return req, nil
}

func (s *LifecycleService) checkQuota(ctx context.Context, actorID, resource string) error {
	allowed, err := s.limiter.Allow(ctx, actorID, resource)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !allowed {
		return apperrors.NewRateLimited("write quota exceeded, retry later")
	}
	return nil
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
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

func generateRequestNumber() string {
	return "REQ-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func subjectFor(viewer domain.Viewer) domain.SubjectType {
	if viewer.Role == domain.ViewerRoleRequester {
		return domain.SubjectTypeUser
	}
	return domain.SubjectTypeStaff
}

func actorFor(viewer domain.Viewer) events.Actor {
	id := viewer.ID
	if viewer.Role == domain.ViewerRoleRequester {
		return events.Actor{Type: domain.SubjectTypeUser, UserID: &id}
	}
	return events.Actor{Type: domain.SubjectTypeStaff, StaffID: &id}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
