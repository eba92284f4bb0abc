package domain

import "time"

// RequestType enumerates the kinds of work staff can request.
type RequestType string

const (
	RequestTypeEvent     RequestType = "EVENT"
	RequestTypeWeb       RequestType = "WEB"
	RequestTypeTechnical RequestType = "TECHNICAL"
	RequestTypeGraphic   RequestType = "GRAPHIC"
)

// RequestStatus enumerates lifecycle states for requests.
type RequestStatus string

const (
	RequestStatusPending    RequestStatus = "PENDING"
	RequestStatusInProgress RequestStatus = "IN_PROGRESS"
	RequestStatusOnHold     RequestStatus = "ON_HOLD"
	RequestStatusCompleted  RequestStatus = "COMPLETED"
	RequestStatusCancelled  RequestStatus = "CANCELLED"
)

// RequestUrgency enumerates urgency levels.
type RequestUrgency string

const (
	UrgencyNormal RequestUrgency = "NORMAL"
	UrgencyUrgent RequestUrgency = "URGENT"
)

// Request is the aggregate for internal service requests.
type Request struct {
	ID             string
	RequestNumber  string
	RequesterID    string
	Type           RequestType
	Status         RequestStatus
	Urgency        RequestUrgency
	DepartmentID   *string
	AssigneeID     *string
	Title          string
	Description    string
	DueDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastActivityAt time.Time
}

// ValidType reports whether t is a known request type.
func ValidType(t RequestType) bool {
	switch t {
	case RequestTypeEvent, RequestTypeWeb, RequestTypeTechnical, RequestTypeGraphic:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s RequestStatus) bool {
	switch s {
	case RequestStatusPending, RequestStatusInProgress, RequestStatusOnHold,
		RequestStatusCompleted, RequestStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are accepted from s.
func Terminal(s RequestStatus) bool {
	return s == RequestStatusCancelled
}
