package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleEngineer   StaffRole = "ENGINEER"
	StaffRoleDispatcher StaffRole = "DISPATCHER"
	StaffRoleAdmin      StaffRole = "ADMIN"
)

// CanDispatch reports whether the role may receive dispatcher notifications and reassign work.
func (r StaffRole) CanDispatch() bool {
	return r == StaffRoleDispatcher || r == StaffRoleAdmin
}

// Engineer models a technician or dispatcher.
type Engineer struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   string
	Role           StaffRole
	DepartmentID   *string
	Specialization string
	Active         bool
	Available      bool
	MaxOpenTickets int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AssignmentSuggestion is a ranked reassignment candidate. It is computed
// per request and never stored.
type AssignmentSuggestion struct {
	EngineerID          string
	Name                string
	OpenTicketCount     int
	Specialization      string
	RecentDeclineCount  int
	SpecializationMatch bool
}
