package dto

import (
	"time"

	"github.com/spec-kit/request-desk/internal/domain"
)

// CreateRequestRequest payload.
type CreateRequestRequest struct {
	Type        string     `json:"type" validate:"required,oneof=EVENT WEB TECHNICAL GRAPHIC"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"required"`
	Urgency     string     `json:"urgency" validate:"omitempty,oneof=NORMAL URGENT"`
	DueDate     *time.Time `json:"due_date"`
}

// TransitionRequest payload for status changes.
type TransitionRequest struct {
	TargetStatus     string  `json:"target_status" validate:"required,oneof=PENDING IN_PROGRESS ON_HOLD COMPLETED CANCELLED"`
	ExpectedStatus   string  `json:"expected_status" validate:"required,oneof=PENDING IN_PROGRESS ON_HOLD COMPLETED CANCELLED"`
	Notes            *string `json:"notes"`
	TimeSpentMinutes *int    `json:"time_spent_minutes" validate:"omitempty,min=0"`
}

// AssignRequest payload.
type AssignRequest struct {
	AssigneeID         string  `json:"assignee_id" validate:"required"`
	DepartmentID       string  `json:"department_id" validate:"required"`
	ExpectedAssigneeID *string `json:"expected_assignee_id"`
}

// AddNoteRequest payload.
type AddNoteRequest struct {
	Notes      string `json:"notes" validate:"required"`
	IsInternal bool   `json:"is_internal"`
}

// RequestSummary response.
type RequestSummary struct {
	ID             string                `json:"id"`
	RequestNumber  string                `json:"request_number"`
	Type           domain.RequestType    `json:"type"`
	Status         domain.RequestStatus  `json:"status"`
	Urgency        domain.RequestUrgency `json:"urgency"`
	DepartmentID   *string               `json:"department_id"`
	AssigneeID     *string               `json:"assignee_id"`
	Title          string                `json:"title"`
	DueDate        *time.Time            `json:"due_date,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	LastActivityAt time.Time             `json:"last_activity_at"`
}

// RequestDetailResponse provides full request info.
type RequestDetailResponse struct {
	RequestSummary
	RequesterID string `json:"requester_id"`
	Description string `json:"description"`
}

// ActivityResponse represents one audit trail entry.
type ActivityResponse struct {
	ID               string                `json:"id"`
	RequestID        string                `json:"request_id"`
	ActorType        domain.SubjectType    `json:"actor_type"`
	ActorID          string                `json:"actor_id"`
	Type             domain.ActivityType   `json:"type"`
	OldStatus        *domain.RequestStatus `json:"old_status,omitempty"`
	NewStatus        *domain.RequestStatus `json:"new_status,omitempty"`
	TimeSpentMinutes *int                  `json:"time_spent_minutes,omitempty"`
	Notes            *string               `json:"notes,omitempty"`
	IsInternal       bool                  `json:"is_internal"`
	AssigneeID       *string               `json:"assignee_id,omitempty"`
	DepartmentID     *string               `json:"department_id,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}
