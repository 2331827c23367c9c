package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent    StaffRole = "AGENT"
	StaffRoleApprover StaffRole = "APPROVER"
	StaffRoleAdmin    StaffRole = "ADMIN"
)

// StaffMember is a directory entry for anyone who can own work.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	Role         StaffRole
	DepartmentID *string
	ManagerID    *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
