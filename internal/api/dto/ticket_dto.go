package dto

import (
	"time"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
)

// CreateTicketRequest payload for both the public portal and staff.
type CreateTicketRequest struct {
	Subject       string  `json:"subject" validate:"required,max=255"`
	Description   string  `json:"description" validate:"max=10000"`
	Priority      string  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	DepartmentID  *string `json:"department_id"`
	Category      string  `json:"category" validate:"max=100"`
	CompanyID     *string `json:"company_id"`
	CustomerName  string  `json:"customer_name" validate:"max=255"`
	CustomerEmail string  `json:"customer_email" validate:"required,email"`
	AssigneeID    *string `json:"assignee_id"`
	DispatcherID  *string `json:"dispatcher_id"`
}

// ReplyRequest appends a reply to a ticket thread.
type ReplyRequest struct {
	Content string `json:"content" validate:"required,max=20000"`
}

// PublicReplyRequest is a customer reply; email proves ownership.
type PublicReplyRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Content string `json:"content" validate:"required,max=20000"`
}

// ChangeStatusRequest moves a ticket along the status machine.
type ChangeStatusRequest struct {
	Status  string `json:"status" validate:"required,oneof=open in_progress waiting_on_customer waiting_on_third_party on_hold resolved"`
	Comment string `json:"comment" validate:"max=2000"`
}

// CommentRequest carries an optional free-text reason.
type CommentRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}

// DeclineRequest hands a ticket back to dispatch.
type DeclineRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// TicketResponse is the JSON shape of a ticket.
type TicketResponse struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	Subject       string     `json:"subject"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	Priority      string     `json:"priority"`
	DepartmentID  *string    `json:"department_id"`
	Category      string     `json:"category,omitempty"`
	AssigneeID    *string    `json:"assignee_id"`
	DispatcherID  *string    `json:"dispatcher_id,omitempty"`
	CompanyID     *string    `json:"company_id,omitempty"`
	CustomerName  string     `json:"customer_name,omitempty"`
	CustomerEmail string     `json:"customer_email"`
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// ThreadEntryResponse is one thread element.
type ThreadEntryResponse struct {
	ID           string         `json:"id"`
	Sequence     int64          `json:"sequence"`
	Kind         string         `json:"kind"`
	AuthorType   string         `json:"author_type"`
	AuthorID     *string        `json:"author_id,omitempty"`
	Content      string         `json:"content,omitempty"`
	EventType    string         `json:"event_type,omitempty"`
	EventPayload map[string]any `json:"event_payload,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TicketDetailResponse is a ticket with its merged thread.
type TicketDetailResponse struct {
	Ticket TicketResponse        `json:"ticket"`
	Thread []ThreadEntryResponse `json:"thread"`
}

// ThreadPageResponse is a cursor page of a thread.
type ThreadPageResponse struct {
	Entries    []ThreadEntryResponse `json:"entries"`
	NextCursor int64                 `json:"next_cursor"`
	HasMore    bool                  `json:"has_more"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:            t.ID,
		Number:        t.Number,
		Subject:       t.Subject,
		Description:   t.Description,
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		DepartmentID:  t.DepartmentID,
		Category:      t.Category,
		AssigneeID:    t.AssigneeID,
		DispatcherID:  t.DispatcherID,
		CompanyID:     t.CompanyID,
		CustomerName:  t.CustomerName,
		CustomerEmail: t.CustomerEmail,
		Version:       t.Version,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		ResolvedAt:    t.ResolvedAt,
		ClosedAt:      t.ClosedAt,
	}
}

// NewThreadEntries maps thread entries, never returning nil.
func NewThreadEntries(entries []domain.ThreadEntry) []ThreadEntryResponse {
	out := make([]ThreadEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ThreadEntryResponse{
			ID:           e.ID,
			Sequence:     e.Sequence,
			Kind:         string(e.Kind),
			AuthorType:   string(e.AuthorType),
			AuthorID:     e.AuthorID,
			Content:      e.Content,
			EventType:    string(e.EventType),
			EventPayload: e.EventPayload,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}

// NewTicketDetail maps a ticket and its thread.
func NewTicketDetail(t *domain.Ticket, thread []domain.ThreadEntry) TicketDetailResponse {
	return TicketDetailResponse{Ticket: NewTicketResponse(t), Thread: NewThreadEntries(thread)}
}
