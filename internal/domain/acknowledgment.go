package domain

import "time"

// AcknowledgmentMark records when a viewer last opened a request's activity
// stream. Updates are last-write-wins per (viewer, request).
type AcknowledgmentMark struct {
	ViewerID  string
	RequestID string
	LastAckAt time.Time
}
