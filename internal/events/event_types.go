package events

import (
	"time"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketReassigned    EventType = "ticket_reassigned"
	EventAssignmentDeclined  EventType = "assignment_declined"
	EventNotificationCreated EventType = "notification_created"
)

// Event represents a domain event emitted after a lifecycle transaction commits.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TicketID  string       `json:"ticket_id,omitempty"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   interface{}  `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Number   string                `json:"number"`
	Priority domain.TicketPriority `json:"priority"`
	Subject  string                `json:"subject"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketReassignedPayload payload.
type TicketReassignedPayload struct {
	OldAssigneeID  *string `json:"old_assignee_id,omitempty"`
	NewAssigneeID  string  `json:"new_assignee_id"`
	NotificationID *string `json:"notification_id,omitempty"`
}

// AssignmentDeclinedPayload payload.
type AssignmentDeclinedPayload struct {
	EngineerID string `json:"engineer_id"`
	Reason     string `json:"reason"`
}

// NotificationCreatedPayload carries the persisted notification.
type NotificationCreatedPayload struct {
	Notification domain.Notification `json:"notification"`
}
