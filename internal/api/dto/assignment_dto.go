package dto

import "github.com/assetdesk/ticket-lifecycle/internal/domain"

// ReassignRequest is the body of POST /ticketing/assignment/reassign.
// NotificationID and Version are optional.
type ReassignRequest struct {
	TicketID       string `json:"ticket_id" validate:"required"`
	EngineerID     string `json:"engineer_id" validate:"required"`
	NotificationID string `json:"notification_id"`
	Version        *int64 `json:"version" validate:"omitempty,min=1"`
}

// SuggestionResponse is one ranked candidate.
type SuggestionResponse struct {
	EngineerID          string `json:"engineer_id"`
	Name                string `json:"name"`
	OpenTicketCount     int    `json:"open_ticket_count"`
	Specialization      string `json:"specialization"`
	RecentDeclineCount  int    `json:"recent_decline_count"`
	SpecializationMatch bool   `json:"specialization_match"`
}

// SuggestionsResponse wraps the ranked list.
type SuggestionsResponse struct {
	Suggestions []SuggestionResponse `json:"suggestions"`
}

// ReassignResponse reports the ticket after reassignment.
type ReassignResponse struct {
	Ticket   TicketResponse `json:"ticket"`
	Replayed bool           `json:"replayed"`
}

// NewSuggestions maps ranked suggestions, never returning nil.
func NewSuggestions(items []domain.AssignmentSuggestion) SuggestionsResponse {
	out := make([]SuggestionResponse, 0, len(items))
	for _, s := range items {
		out = append(out, SuggestionResponse{
			EngineerID:          s.EngineerID,
			Name:                s.Name,
			OpenTicketCount:     s.OpenTicketCount,
			Specialization:      s.Specialization,
			RecentDeclineCount:  s.RecentDeclineCount,
			SpecializationMatch: s.SpecializationMatch,
		})
	}
	return SuggestionsResponse{Suggestions: out}
}
