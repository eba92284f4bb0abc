package events

import (
	"time"

	"github.com/spec-kit/request-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated   EventType = "request_created"
	EventStatusChanged    EventType = "request_status_changed"
	EventRequestAssigned  EventType = "request_assigned"
	EventNoteAdded        EventType = "request_note_added"
	EventRequestEscalated EventType = "request_escalated"
	EventRequestDeleted   EventType = "request_deleted"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	UserID  *string            `json:"user_id,omitempty"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services. Dispatch is keyed off
// the activity written by the originating operation, when one exists.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	RequestID  string      `json:"request_id"`
	ActivityID string      `json:"activity_id,omitempty"`
	Actor      Actor       `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	RequestNumber string                `json:"request_number"`
	RequestType   domain.RequestType    `json:"request_type"`
	Urgency       domain.RequestUrgency `json:"urgency"`
	Title         string                `json:"title"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.RequestStatus `json:"old_status"`
	NewStatus domain.RequestStatus `json:"new_status"`
	Notes     *string              `json:"notes,omitempty"`
}

// RequestAssignedPayload payload.
type RequestAssignedPayload struct {
	AssigneeStaffID string `json:"assignee_staff_id"`
	DepartmentID    string `json:"department_id"`
}

// NoteAddedPayload payload.
type NoteAddedPayload struct {
	ActivityID  string `json:"activity_id"`
	IsInternal  bool   `json:"is_internal"`
	BodyPreview string `json:"body_preview"`
}

// RequestEscalatedPayload payload.
type RequestEscalatedPayload struct {
	Urgency domain.RequestUrgency `json:"urgency"`
}

// RequestDeletedPayload records the administrative delete audit trail, since
// the request's own activity log is removed with it.
type RequestDeletedPayload struct {
	RequestNumber string `json:"request_number"`
	DeletedBy     string `json:"deleted_by"`
}
