package domain

import "time"

// EntryKind differentiates thread entries.
type EntryKind string

const (
	EntryKindCustomerReply EntryKind = "customer_reply"
	EntryKindAgentReply    EntryKind = "agent_reply"
	EntryKindSystemEvent   EntryKind = "system_event"
)

// SystemEventType names the system events recorded in a thread.
type SystemEventType string

const (
	EventTicketCreated      SystemEventType = "ticket_created"
	EventStatusChanged      SystemEventType = "status_changed"
	EventAssignmentDeclined SystemEventType = "assignment_declined"
	EventAssignmentAccepted SystemEventType = "assignment_accepted"
	EventTicketReassigned   SystemEventType = "ticket_reassigned"
	EventTicketEscalated    SystemEventType = "ticket_escalated"
)

// ThreadEntry is one immutable element of a ticket's conversation.
//
// Sequence is assigned by the store on append and is strictly increasing;
// it orders entries that share a CreatedAt.
type ThreadEntry struct {
	ID           string
	TicketID     string
	Sequence     int64
	Kind         EntryKind
	AuthorType   ActorType
	AuthorID     *string
	Content      string
	EventType    SystemEventType
	EventPayload map[string]any
	CreatedAt    time.Time
}

// IsSystemEvent reports whether the entry was generated by the lifecycle.
func (e ThreadEntry) IsSystemEvent() bool {
	return e.Kind == EntryKindSystemEvent
}
