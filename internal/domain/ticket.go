package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen                TicketStatus = "open"
	TicketStatusInProgress          TicketStatus = "in_progress"
	TicketStatusWaitingOnCustomer   TicketStatus = "waiting_on_customer"
	TicketStatusWaitingOnThirdParty TicketStatus = "waiting_on_third_party"
	TicketStatusOnHold              TicketStatus = "on_hold"
	TicketStatusResolved            TicketStatus = "resolved"
	TicketStatusClosed              TicketStatus = "closed"
)

// AllTicketStatuses lists every valid status.
var AllTicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusWaitingOnCustomer,
	TicketStatusWaitingOnThirdParty,
	TicketStatusOnHold,
	TicketStatusResolved,
	TicketStatusClosed,
}

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	for _, candidate := range AllTicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CountsAsOpenWork reports whether a ticket in this status occupies engineer capacity.
func (s TicketStatus) CountsAsOpenWork() bool {
	return s != TicketStatusResolved && s != TicketStatusClosed
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
//
// AssigneeID is nil only while Status is open. Version increments on every
// write and backs optimistic concurrency; AssignmentToken records the last
// applied reassignment so retries can be detected.
type Ticket struct {
	ID              string
	Number          string
	Subject         string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	DepartmentID    *string
	Category        string
	AssigneeID      *string
	DispatcherID    *string
	CompanyID       *string
	CustomerName    string
	CustomerEmail   string
	Version         int64
	AssignmentToken string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
}

// IsAssignedTo reports whether engineerID is the current assignee.
func (t *Ticket) IsAssignedTo(engineerID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == engineerID
}
