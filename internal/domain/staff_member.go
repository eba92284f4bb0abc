package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleEmployee StaffRole = "EMPLOYEE"
	StaffRoleDeptLead StaffRole = "DEPT_LEAD"
	StaffRoleAdmin    StaffRole = "ADMIN"
)

// StaffMember models an employee, department lead or administrator.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	DepartmentID *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
