package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/request-desk/internal/api/dto"
	"github.com/spec-kit/request-desk/internal/auth"
	"github.com/spec-kit/request-desk/internal/domain"
	"github.com/spec-kit/request-desk/internal/service"
	apperrors "github.com/spec-kit/request-desk/pkg/util/errorutil"
)

// RequestsHandler exposes the request lifecycle endpoints. All visibility and
// capability decisions live in the services; the handler only binds payloads
// and the authenticated viewer.
type RequestsHandler struct {
	lifecycle   *service.LifecycleService
	assignments *service.AssignmentService
	unread      *service.UnreadService
	validate    *validator.Validate
}

// NewRequestsHandler constructs the handler.
func NewRequestsHandler(lifecycle *service.LifecycleService, assignments *service.AssignmentService, unread *service.UnreadService, validate *validator.Validate) *RequestsHandler {
	return &RequestsHandler{
		lifecycle:   lifecycle,
		assignments: assignments,
		unread:      unread,
		validate:    validate,
	}
}

// Create POST /requests.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	if viewer.Role != domain.ViewerRoleRequester {
		return apperrors.NewAuthorizationError("requests are submitted by end-users")
	}
	var req dto.CreateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}

	created, err := h.lifecycle.CreateRequest(c.Context(), viewer, service.CreateInput{
		Type:        domain.RequestType(req.Type),
		Title:       req.Title,
		Description: req.Description,
		Urgency:     domain.RequestUrgency(req.Urgency),
		DueDate:     req.DueDate,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": requestDetail(created)})
}

// List GET /requests.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	requests, err := h.lifecycle.ListRequests(c.Context(), viewer, parseListQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.RequestSummary, 0, len(requests))
	for i := range requests {
		items = append(items, requestSummary(&requests[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /requests/:id.
func (h *RequestsHandler) Get(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	req, err := h.lifecycle.GetRequest(c.Context(), viewer, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(req)})
}

// GetByNumber GET /requests/by-number/:number.
func (h *RequestsHandler) GetByNumber(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	req, err := h.lifecycle.GetRequestByNumber(c.Context(), viewer, c.Params("number"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(req)})
}

// Activities GET /requests/:id/activities.
func (h *RequestsHandler) Activities(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	activities, err := h.lifecycle.GetActivities(c.Context(), viewer, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ActivityResponse, 0, len(activities))
	for i := range activities {
		items = append(items, activityResponse(&activities[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// AddNote POST /requests/:id/notes.
func (h *RequestsHandler) AddNote(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.AddNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	activity, err := h.lifecycle.AddNote(c.Context(), viewer, c.Params("id"), req.Notes, req.IsInternal)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": activityResponse(activity)})
}

// Transition POST /requests/:id/transition.
func (h *RequestsHandler) Transition(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	updated, activity, err := h.lifecycle.ApplyTransition(c.Context(), viewer, service.TransitionInput{
		RequestID:        c.Params("id"),
		TargetStatus:     domain.RequestStatus(req.TargetStatus),
		ExpectedStatus:   domain.RequestStatus(req.ExpectedStatus),
		Notes:            req.Notes,
		TimeSpentMinutes: req.TimeSpentMinutes,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"request":  requestDetail(updated),
		"activity": activityResponse(activity),
	}})
}

// Assign POST /requests/:id/assign.
func (h *RequestsHandler) Assign(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	updated, activity, err := h.assignments.Assign(c.Context(), viewer, service.AssignInput{
		RequestID:          c.Params("id"),
		AssigneeID:         req.AssigneeID,
		DepartmentID:       req.DepartmentID,
		ExpectedAssigneeID: req.ExpectedAssigneeID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"request":  requestDetail(updated),
		"activity": activityResponse(activity),
	}})
}

// Escalate POST /requests/:id/escalate.
func (h *RequestsHandler) Escalate(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	updated, activity, err := h.lifecycle.Escalate(c.Context(), viewer, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"request":  requestDetail(updated),
		"activity": activityResponse(activity),
	}})
}

// Acknowledge POST /requests/:id/acknowledge.
func (h *RequestsHandler) Acknowledge(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	if err := h.unread.Acknowledge(c.Context(), viewer, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Unread GET /requests/:id/unread.
func (h *RequestsHandler) Unread(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	status, err := h.unread.ComputeUnread(c.Context(), viewer, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": status})
}

// Delete DELETE /requests/:id.
func (h *RequestsHandler) Delete(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	if err := h.lifecycle.DeleteRequest(c.Context(), viewer, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func viewerFromContext(c *fiber.Ctx) (domain.Viewer, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Viewer{}, apperrors.NewUnauthorized("authentication required")
	}
	switch principal.SubjectType {
	case domain.SubjectTypeUser:
		if principal.User == nil {
			return domain.Viewer{}, apperrors.NewUnauthorized("user principal missing")
		}
		return domain.ViewerForUser(principal.User), nil
	case domain.SubjectTypeStaff:
		if principal.Staff == nil {
			return domain.Viewer{}, apperrors.NewUnauthorized("staff principal missing")
		}
		return domain.ViewerForStaff(principal.Staff), nil
	}
	return domain.Viewer{}, apperrors.NewUnauthorized("unknown subject")
}

func parseListQuery(c *fiber.Ctx) service.ListInput {
	input := service.ListInput{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			input.Statuses = append(input.Statuses, domain.RequestStatus(strings.TrimSpace(part)))
		}
	}
	if typeStr := c.Query("type"); typeStr != "" {
		for _, part := range strings.Split(typeStr, ",") {
			input.Types = append(input.Types, domain.RequestType(strings.TrimSpace(part)))
		}
	}
	if urgency := c.Query("urgency"); urgency != "" {
		u := domain.RequestUrgency(urgency)
		input.Urgency = &u
	}
	if deptID := c.Query("department_id"); deptID != "" {
		input.DepartmentID = &deptID
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		input.AssigneeID = &assignee
	}
	if search := c.Query("search"); search != "" {
		input.SearchTerm = &search
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		input.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		input.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	input.Offset = (page - 1) * pageSize
	input.Limit = pageSize
	return input
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func requestSummary(req *domain.Request) dto.RequestSummary {
	return dto.RequestSummary{
		ID:             req.ID,
		RequestNumber:  req.RequestNumber,
		Type:           req.Type,
		Status:         req.Status,
		Urgency:        req.Urgency,
		DepartmentID:   req.DepartmentID,
		AssigneeID:     req.AssigneeID,
		Title:          req.Title,
		DueDate:        req.DueDate,
		CreatedAt:      req.CreatedAt,
		LastActivityAt: req.LastActivityAt,
	}
}

func requestDetail(req *domain.Request) dto.RequestDetailResponse {
	return dto.RequestDetailResponse{
		RequestSummary: requestSummary(req),
		RequesterID:    req.RequesterID,
		Description:    req.Description,
	}
}

func activityResponse(activity *domain.Activity) dto.ActivityResponse {
	return dto.ActivityResponse{
		ID:               activity.ID,
		RequestID:        activity.RequestID,
		ActorType:        activity.ActorType,
		ActorID:          activity.ActorID,
		Type:             activity.Type,
		OldStatus:        activity.OldStatus,
		NewStatus:        activity.NewStatus,
		TimeSpentMinutes: activity.TimeSpentMinutes,
		Notes:            activity.Notes,
		IsInternal:       activity.IsInternal,
		AssigneeID:       activity.AssigneeID,
		DepartmentID:     activity.DepartmentID,
		CreatedAt:        activity.CreatedAt,
	}
}
