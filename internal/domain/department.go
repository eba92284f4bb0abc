package domain

import "time"

// Department represents a unit that works requests (IT Support, Design, ...).
type Department struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
