package domain

import "time"

// ActivityType captures what kind of event an activity records.
type ActivityType string

const (
	ActivityStatusChange ActivityType = "STATUS_CHANGE"
	ActivityAssignment   ActivityType = "ASSIGNMENT"
	ActivityNote         ActivityType = "NOTE"
	ActivityEscalation   ActivityType = "ESCALATION"
)

// Activity is one immutable entry in a request's audit trail. Entries are
// ordered per request by (CreatedAt, ID); they are never updated or removed.
type Activity struct {
	ID        string
	RequestID string
	ActorType SubjectType
	ActorID   string
	Type      ActivityType
	CreatedAt time.Time

	// STATUS_CHANGE fields.
	OldStatus        *RequestStatus
	NewStatus        *RequestStatus
	TimeSpentMinutes *int

	// NOTE fields; Notes also carries the optional comment on a status change.
	Notes      *string
	IsInternal bool

	// ASSIGNMENT fields.
	AssigneeID   *string
	DepartmentID *string
}

// Before reports whether a sorts strictly before b in audit order.
func (a Activity) Before(b Activity) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
