package domain

import "time"

// NotificationType names the event a notification reports.
type NotificationType string

const (
	NotificationAssignmentDeclined NotificationType = "assignment_declined"
	NotificationAssignmentAccepted NotificationType = "assignment_accepted"
	NotificationEscalation         NotificationType = "escalation"
)

// Notification is an entry in an admin user's feed.
//
// TicketID is a plain lookup key; the ticket may since have changed or
// disappeared. Read only ever moves from false to true.
type Notification struct {
	ID          string
	RecipientID string
	Type        NotificationType
	Title       string
	Message     string
	TicketID    *string
	Read        bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}
