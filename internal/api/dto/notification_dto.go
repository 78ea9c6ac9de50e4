package dto

import (
	"time"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
)

// NotificationResponse is the JSON shape of a feed entry.
type NotificationResponse struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	TicketID  *string    `json:"ticket_id"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NotificationListResponse is returned by GET /notifications.
type NotificationListResponse struct {
	Notifications       []NotificationResponse `json:"notifications"`
	UnreadCount         int                    `json:"unread_count"`
	PollIntervalSeconds int                    `json:"poll_interval_seconds"`
}

// NewNotificationResponse maps a domain notification.
func NewNotificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		TicketID:  n.TicketID,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

// NewNotificationList maps a feed page.
func NewNotificationList(items []domain.Notification, unread int, poll time.Duration) NotificationListResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, NewNotificationResponse(n))
	}
	return NotificationListResponse{
		Notifications:       out,
		UnreadCount:         unread,
		PollIntervalSeconds: int(poll.Seconds()),
	}
}
