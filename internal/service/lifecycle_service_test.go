package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/request-desk/internal/domain"
	"github.com/spec-kit/request-desk/internal/events"
	apperrors "github.com/spec-kit/request-desk/pkg/util/errorutil"
)

type lifecycleFixture struct {
	service    *LifecycleService
	requests   *memRequestRepo
	activities *memActivityRepo
	acks       *memAckRepo
	dispatcher events.Dispatcher
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	requests := newMemRequestRepo()
	activities := newMemActivityRepo()
	acks := newMemAckRepo()
	dispatcher := events.NewInMemoryDispatcher()
	svc := NewLifecycleService(LifecycleDependencies{
		RequestRepo:  requests,
		ActivityRepo: activities,
		AckRepo:      acks,
		Tx:           &memTxRunner{requests: requests, activities: activities},
		Dispatcher:   dispatcher,
	})
	return &lifecycleFixture{
		service:    svc,
		requests:   requests,
		activities: activities,
		acks:       acks,
		dispatcher: dispatcher,
	}
}

func requesterViewer(id string) domain.Viewer {
	return domain.Viewer{ID: id, Role: domain.ViewerRoleRequester}
}

func adminViewer(id string) domain.Viewer {
	return domain.Viewer{ID: id, Role: domain.ViewerRoleAdmin}
}

func employeeViewer(id string) domain.Viewer {
	return domain.Viewer{ID: id, Role: domain.ViewerRoleEmployee}
}

func (f *lifecycleFixture) seedRequest(t *testing.T, requesterID string, status domain.RequestStatus, assigneeID *string) *domain.Request {
	t.Helper()
	req, err := f.service.CreateRequest(context.Background(), requesterViewer(requesterID), CreateInput{
		Type:        domain.RequestTypeTechnical,
		Title:       "Projector broken",
		Description: "The projector in room 4 does not turn on.",
	})
	require.NoError(t, err)

	f.requests.mu.Lock()
	stored := f.requests.requests[req.ID]
	stored.Status = status
	stored.AssigneeID = assigneeID
	f.requests.mu.Unlock()
	req.Status = status
	req.AssigneeID = assigneeID
	return req
}

func TestCreateRequestStartsPending(t *testing.T) {
	f := newLifecycleFixture(t)

	req, err := f.service.CreateRequest(context.Background(), requesterViewer("user-1"), CreateInput{
		Type:        domain.RequestTypeWeb,
		Title:       "  New landing page  ",
		Description: "Marketing needs a landing page for the spring campaign.",
	})
	require.NoError(t, err)
	require.Equal(t, domain.RequestStatusPending, req.Status)
	require.Equal(t, domain.UrgencyNormal, req.Urgency)
	require.Equal(t, "New landing page", req.Title)
	require.NotEmpty(t, req.RequestNumber)
	require.Equal(t, "user-1", req.RequesterID)
}

func TestCreateRequestValidation(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateRequest(ctx, requesterViewer("user-1"), CreateInput{
		Type:        "PLUMBING",
		Title:       "t",
		Description: "d",
	})
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))

	_, err = f.service.CreateRequest(ctx, requesterViewer("user-1"), CreateInput{
		Type:        domain.RequestTypeEvent,
		Title:       "   ",
		Description: "something",
	})
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))

	_, err = f.service.CreateRequest(ctx, requesterViewer("user-1"), CreateInput{
		Type:        domain.RequestTypeEvent,
		Title:       "ok",
		Description: "ok",
		Urgency:     "EXTREME",
	})
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))
}

func TestTransitionHappyPath(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	assignee := "staff-1"
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, &assignee)

	updated, activity, err := f.service.ApplyTransition(ctx, adminViewer("admin-1"), TransitionInput{
		RequestID:      req.ID,
		TargetStatus:   domain.RequestStatusInProgress,
		ExpectedStatus: domain.RequestStatusPending,
	})
	require.NoError(t, err)
	require.Equal(t, domain.RequestStatusInProgress, updated.Status)
	require.Equal(t, domain.ActivityStatusChange, activity.Type)
	require.Equal(t, domain.RequestStatusPending, *activity.OldStatus)
	require.Equal(t, domain.RequestStatusInProgress, *activity.NewStatus)
	require.Equal(t, updated.LastActivityAt, activity.CreatedAt)

	stored, err := f.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RequestStatusInProgress, stored.Status)
	require.Equal(t, activity.CreatedAt, stored.LastActivityAt)
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, nil)

	_, _, err := f.service.ApplyTransition(ctx, adminViewer("admin-1"), TransitionInput{
		RequestID:      req.ID,
		TargetStatus:   domain.RequestStatusCompleted,
		ExpectedStatus: domain.RequestStatusPending,
	})
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))

	// A rejected transition must leave no trace in the activity log.
	activities, listErr := f.activities.ListByRequest(ctx, req.ID)
	require.NoError(t, listErr)
	require.Empty(t, activities)

	stored, getErr := f.requests.GetByID(ctx, req.ID)
	require.NoError(t, getErr)
	require.Equal(t, domain.RequestStatusPending, stored.Status)
}

func TestTransitionFromTerminalState(t *testing.T) {
	f := newLifecycleFixture(t)
	req := f.seedRequest(t, "user-1", domain.RequestStatusCancelled, nil)

	_, _, err := f.service.ApplyTransition(context.Background(), adminViewer("admin-1"), TransitionInput{
		RequestID:      req.ID,
		TargetStatus:   domain.RequestStatusInProgress,
		ExpectedStatus: domain.RequestStatusCancelled,
	})
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))
}

func TestTransitionStaleExpectedStatusConflicts(t *testing.T) {
	f := newLifecycleFixture(t)
	assignee := "staff-1"
	req := f.seedRequest(t, "user-1", domain.RequestStatusInProgress, &assignee)

	_, _, err := f.service.ApplyTransition(context.Background(), adminViewer("admin-1"), TransitionInput{
		RequestID:      req.ID,
		TargetStatus:   domain.RequestStatusInProgress,
		ExpectedStatus: domain.RequestStatusPending,
	})
	require.Equal(t, "CONFLICT", apperrors.CodeOf(err))
}

func TestTransitionPendingRequiresAssignee(t *testing.T) {
	f := newLifecycleFixture(t)
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, nil)

	_, _, err := f.service.ApplyTransition(context.Background(), adminViewer("admin-1"), TransitionInput{
		RequestID:      req.ID,
		TargetStatus:   domain.RequestStatusInProgress,
		ExpectedStatus: domain.RequestStatusPending,
	})
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))
}

func TestTransitionCancelRequiresAdmin(t *testing.T) {
	f := newLifecycleFixture(t)
	assignee := "staff-1"
	req := f.seedRequest(t, "user-1", domain.RequestStatusInProgress, &assignee)

	_, _, err := f.service.ApplyTransition(context.Background(), employeeViewer("staff-1"), TransitionInput{
		RequestID:      req.ID,
		TargetStatus:   domain.RequestStatusCancelled,
		ExpectedStatus: domain.RequestStatusInProgress,
	})
	require.Equal(t, "AUTHORIZATION_ERROR", apperrors.CodeOf(err))

	_, _, err = f.service.ApplyTransition(context.Background(), adminViewer("admin-1"), TransitionInput{
		RequestID:      req.ID,
		TargetStatus:   domain.RequestStatusCancelled,
		ExpectedStatus: domain.RequestStatusInProgress,
	})
	require.NoError(t, err)
}

func TestTransitionRequesterForbidden(t *testing.T) {
	f := newLifecycleFixture(t)
	assignee := "staff-1"
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, &assignee)

	_, _, err := f.service.ApplyTransition(context.Background(), requesterViewer("user-1"), TransitionInput{
		RequestID:      req.ID,
		TargetStatus:   domain.RequestStatusInProgress,
		ExpectedStatus: domain.RequestStatusPending,
	})
	require.Equal(t, "AUTHORIZATION_ERROR", apperrors.CodeOf(err))
}

func TestTransitionNegativeTimeSpent(t *testing.T) {
	f := newLifecycleFixture(t)
	assignee := "staff-1"
	req := f.seedRequest(t, "user-1", domain.RequestStatusInProgress, &assignee)

	minutes := -5
	_, _, err := f.service.ApplyTransition(context.Background(), adminViewer("admin-1"), TransitionInput{
		RequestID:        req.ID,
		TargetStatus:     domain.RequestStatusCompleted,
		ExpectedStatus:   domain.RequestStatusInProgress,
		TimeSpentMinutes: &minutes,
	})
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))
}

func TestConcurrentTransitionSingleWinner(t *testing.T) {
	f := newLifecycleFixture(t)
	assignee := "staff-1"
	req := f.seedRequest(t, "user-1", domain.RequestStatusInProgress, &assignee)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.service.ApplyTransition(context.Background(), adminViewer("admin-1"), TransitionInput{
				RequestID:      req.ID,
				TargetStatus:   domain.RequestStatusCompleted,
				ExpectedStatus: domain.RequestStatusInProgress,
			})
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case apperrors.CodeOf(err) == "CONFLICT":
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, writers-1, conflicts)

	activities, err := f.activities.ListByRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, activities, 1)
}

func TestAddNoteTouchesLastActivity(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, nil)

	activity, err := f.service.AddNote(ctx, requesterViewer("user-1"), req.ID, "Any update on this?", false)
	require.NoError(t, err)
	require.Equal(t, domain.ActivityNote, activity.Type)
	require.False(t, activity.IsInternal)

	stored, err := f.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, activity.CreatedAt, stored.LastActivityAt)
}

func TestAddInternalNoteRequiresStaff(t *testing.T) {
	f := newLifecycleFixture(t)
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, nil)

	_, err := f.service.AddNote(context.Background(), requesterViewer("user-1"), req.ID, "secret", true)
	require.Equal(t, "AUTHORIZATION_ERROR", apperrors.CodeOf(err))

	_, err = f.service.AddNote(context.Background(), adminViewer("admin-1"), req.ID, "secret", true)
	require.NoError(t, err)
}

func TestAddNoteEmptyBody(t *testing.T) {
	f := newLifecycleFixture(t)
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, nil)

	_, err := f.service.AddNote(context.Background(), requesterViewer("user-1"), req.ID, "   ", false)
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))
}

func TestEscalate(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	assignee := "staff-1"
	req := f.seedRequest(t, "user-1", domain.RequestStatusInProgress, &assignee)

	updated, activity, err := f.service.Escalate(ctx, employeeViewer("staff-1"), req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UrgencyUrgent, updated.Urgency)
	require.Equal(t, domain.ActivityEscalation, activity.Type)

	// Escalating twice is rejected.
	_, _, err = f.service.Escalate(ctx, employeeViewer("staff-1"), req.ID)
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))
}

func TestEscalateRequiresStaff(t *testing.T) {
	f := newLifecycleFixture(t)
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, nil)

	_, _, err := f.service.Escalate(context.Background(), requesterViewer("user-1"), req.ID)
	require.Equal(t, "AUTHORIZATION_ERROR", apperrors.CodeOf(err))
}

func TestGetActivitiesOrderedAndFiltered(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	assignee := "staff-1"
	req := f.seedRequest(t, "user-1", domain.RequestStatusInProgress, &assignee)

	_, err := f.service.AddNote(ctx, employeeViewer("staff-1"), req.ID, "internal progress note", true)
	require.NoError(t, err)
	_, err = f.service.AddNote(ctx, employeeViewer("staff-1"), req.ID, "we are on it", false)
	require.NoError(t, err)
	_, _, err = f.service.ApplyTransition(ctx, employeeViewer("staff-1"), TransitionInput{
		RequestID:      req.ID,
		TargetStatus:   domain.RequestStatusCompleted,
		ExpectedStatus: domain.RequestStatusInProgress,
	})
	require.NoError(t, err)

	staffView, err := f.service.GetActivities(ctx, employeeViewer("staff-1"), req.ID)
	require.NoError(t, err)
	require.Len(t, staffView, 3)
	for i := 1; i < len(staffView); i++ {
		require.True(t, staffView[i-1].Before(staffView[i]))
	}

	requesterView, err := f.service.GetActivities(ctx, requesterViewer("user-1"), req.ID)
	require.NoError(t, err)
	require.Len(t, requesterView, 2)
	for _, activity := range requesterView {
		if activity.Type == domain.ActivityNote {
			require.False(t, activity.IsInternal)
		}
	}
}

func TestDeleteRequestAdminOnly(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, nil)

	_, err := f.service.AddNote(ctx, requesterViewer("user-1"), req.ID, "note", false)
	require.NoError(t, err)
	require.NoError(t, f.acks.Set(ctx, "user-1", req.ID, time.Now()))

	err = f.service.DeleteRequest(ctx, employeeViewer("staff-1"), req.ID)
	require.Equal(t, "AUTHORIZATION_ERROR", apperrors.CodeOf(err))

	require.NoError(t, f.service.DeleteRequest(ctx, adminViewer("admin-1"), req.ID))

	_, err = f.requests.GetByID(ctx, req.ID)
	require.Error(t, err)
	activities, err := f.activities.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Empty(t, activities)
	_, found, err := f.acks.Get(ctx, "user-1", req.ID)
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetRequestHidesOutOfScope(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, nil)

	// Another requester gets NOT_FOUND, indistinguishable from an unknown id.
	_, err := f.service.GetRequest(ctx, requesterViewer("user-2"), req.ID)
	require.Equal(t, "NOT_FOUND", apperrors.CodeOf(err))

	_, err = f.service.GetRequest(ctx, requesterViewer("user-2"), "no-such-id")
	require.Equal(t, "NOT_FOUND", apperrors.CodeOf(err))
}

func TestRateLimitedWrites(t *testing.T) {
	requests := newMemRequestRepo()
	activities := newMemActivityRepo()
	svc := NewLifecycleService(LifecycleDependencies{
		RequestRepo:  requests,
		ActivityRepo: activities,
		AckRepo:      newMemAckRepo(),
		Tx:           &memTxRunner{requests: requests, activities: activities},
		Limiter:      denyLimiter{},
	})

	_, err := svc.CreateRequest(context.Background(), requesterViewer("user-1"), CreateInput{
		Type:        domain.RequestTypeEvent,
		Title:       "Party",
		Description: "Company party setup.",
	})
	require.Equal(t, "RATE_LIMITED", apperrors.CodeOf(err))
}

func TestListRequestsScoped(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	f.seedRequest(t, "user-1", domain.RequestStatusPending, nil)
	f.seedRequest(t, "user-2", domain.RequestStatusPending, nil)

	mine, err := f.service.ListRequests(ctx, requesterViewer("user-1"), ListInput{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "user-1", mine[0].RequesterID)

	all, err := f.service.ListRequests(ctx, adminViewer("admin-1"), ListInput{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestGetRequestByNumber(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, nil)

	found, err := f.service.GetRequestByNumber(ctx, requesterViewer("user-1"), req.RequestNumber)
	require.NoError(t, err)
	require.Equal(t, req.ID, found.ID)

	_, err = f.service.GetRequestByNumber(ctx, requesterViewer("user-2"), req.RequestNumber)
	require.Equal(t, "NOT_FOUND", apperrors.CodeOf(err))

	_, err = f.service.GetRequestByNumber(ctx, adminViewer("admin-1"), "REQ-DEADBEEF")
	require.Equal(t, "NOT_FOUND", apperrors.CodeOf(err))
}

func TestLastActivityTimestampMonotonic(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	req := f.seedRequest(t, "user-1", domain.RequestStatusPending, nil)

	stored, err := f.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	before := stored.LastActivityAt

	past := before.Add(-time.Hour)
	require.NoError(t, f.requests.Touch(ctx, req.ID, past))
	require.NoError(t, f.requests.SetUrgency(ctx, req.ID, domain.UrgencyUrgent, past))

	stored, err = f.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, before, stored.LastActivityAt)
	require.Equal(t, domain.UrgencyUrgent, stored.Urgency)

	future := before.Add(time.Hour)
	require.NoError(t, f.requests.Touch(ctx, req.ID, future))
	stored, err = f.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, future, stored.LastActivityAt)
}

func TestDeleteRequestLogsAckCleanupFailure(t *testing.T) {
	requests := newMemRequestRepo()
	activities := newMemActivityRepo()
	acks := &failingAckRepo{memAckRepo: newMemAckRepo(), deleteErr: errors.New("redis unavailable")}
	core, logs := observer.New(zap.WarnLevel)
	svc := NewLifecycleService(LifecycleDependencies{
		RequestRepo:  requests,
		ActivityRepo: activities,
		AckRepo:      acks,
		Tx:           &memTxRunner{requests: requests, activities: activities},
		Logger:       zap.New(core),
	})
	ctx := context.Background()

	req, err := svc.CreateRequest(ctx, requesterViewer("user-1"), CreateInput{
		Type:        domain.RequestTypeTechnical,
		Title:       "Printer jam",
		Description: "Third floor printer keeps jamming.",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRequest(ctx, adminViewer("admin-1"), req.ID))

	_, err = requests.GetByID(ctx, req.ID)
	require.Error(t, err)
	entries := logs.FilterMessage("acknowledgment mark cleanup failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, req.ID, entries[0].ContextMap()["request_id"])
}
