// Package notify delivers copies of feed notifications outside the service.
package notify

import (
	"context"
	"time"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
)

// Message is one notification addressed to a resolved recipient.
type Message struct {
	Notification   domain.Notification
	RecipientName  string
	RecipientEmail string
}

// Channel sends a Message over one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type payload struct {
	Event        string              `json:"event"`
	Notification notificationPayload `json:"notification"`
	SentAt       time.Time           `json:"sent_at"`
}

type notificationPayload struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	TicketID    *string   `json:"ticket_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newPayload(n domain.Notification, now time.Time) payload {
	return payload{
		Event: "notification_created",
		Notification: notificationPayload{
			ID:          n.ID,
			RecipientID: n.RecipientID,
			Type:        string(n.Type),
			Title:       n.Title,
			Message:     n.Message,
			TicketID:    n.TicketID,
			CreatedAt:   n.CreatedAt,
		},
		SentAt: now,
	}
}
