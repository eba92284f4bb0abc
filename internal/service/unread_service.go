package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/request-desk/internal/domain"
	"github.com/spec-kit/request-desk/internal/repository"
	apperrors "github.com/spec-kit/request-desk/pkg/util/errorutil"
)

// UnreadService derives unread counts and recent-activity flags from the
// activity log and the viewer's acknowledgment mark. Marks are only moved by
// the explicit Acknowledge call; reading unread state never clears it.
type UnreadService struct {
	requests      repository.RequestRepository
	activities    repository.ActivityRepository
	acks          repository.AcknowledgmentRepository
	recencyWindow time.Duration

	now func() time.Time
}

// UnreadStatus is the per-(viewer, request) poll payload.
type UnreadStatus struct {
	RequestID         string    `json:"request_id"`
	UnreadCount       int       `json:"unread_count"`
	HasRecentActivity bool      `json:"has_recent_activity"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

// NewUnreadService constructs the service.
func NewUnreadService(requests repository.RequestRepository, activities repository.ActivityRepository, acks repository.AcknowledgmentRepository, recencyWindow time.Duration) *UnreadService {
	if recencyWindow <= 0 {
		recencyWindow = 5 * time.Minute
	}
	return &UnreadService{
		requests:      requests,
		activities:    activities,
		acks:          acks,
		recencyWindow: recencyWindow,
		now:           time.Now,
	}
}

// ComputeUnread counts visibility-filtered activities newer than the viewer's
// last acknowledgment. A viewer who never acknowledged starts counting from
// the request's creation.
func (s *UnreadService) ComputeUnread(ctx context.Context, viewer domain.Viewer, requestID string) (*UnreadStatus, error) {
	req, err := s.getVisible(ctx, viewer, requestID)
	if err != nil {
		return nil, err
	}
	activities, err := s.activities.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	lastAck, found, err := s.acks.Get(ctx, viewer.ID, req.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !found {
		lastAck = req.CreatedAt
	}

	now := s.now()
	status := &UnreadStatus{RequestID: req.ID, LastActivityAt: req.LastActivityAt}
	for _, activity := range ProjectActivities(viewer, activities) {
		if !activity.CreatedAt.After(lastAck) {
			continue
		}
		status.UnreadCount++
		if now.Sub(activity.CreatedAt) <= s.recencyWindow {
			status.HasRecentActivity = true
		}
	}
	return status, nil
}

// Acknowledge records that the viewer has seen everything up to now. The
// next ComputeUnread for this viewer yields zero regardless of what was
// unread a moment before.
func (s *UnreadService) Acknowledge(ctx context.Context, viewer domain.Viewer, requestID string) error {
	req, err := s.getVisible(ctx, viewer, requestID)
	if err != nil {
		return err
	}
	if err := s.acks.Set(ctx, viewer.ID, req.ID, s.now().UTC()); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *UnreadService) getVisible(ctx context.Context, viewer domain.Viewer, requestID string) (*domain.Request, error) {
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
