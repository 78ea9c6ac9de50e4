package service

import (
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

// closed is reachable only through Close and never left.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen: {
		domain.TicketStatusInProgress, domain.TicketStatusWaitingOnCustomer,
		domain.TicketStatusWaitingOnThirdParty, domain.TicketStatusOnHold, domain.TicketStatusResolved,
	},
	domain.TicketStatusInProgress: {
		domain.TicketStatusOpen, domain.TicketStatusWaitingOnCustomer,
		domain.TicketStatusWaitingOnThirdParty, domain.TicketStatusOnHold, domain.TicketStatusResolved,
	},
	domain.TicketStatusWaitingOnCustomer: {
		domain.TicketStatusOpen, domain.TicketStatusInProgress,
		domain.TicketStatusWaitingOnThirdParty, domain.TicketStatusOnHold, domain.TicketStatusResolved,
	},
	domain.TicketStatusWaitingOnThirdParty: {
		domain.TicketStatusOpen, domain.TicketStatusInProgress,
		domain.TicketStatusWaitingOnCustomer, domain.TicketStatusOnHold, domain.TicketStatusResolved,
	},
	domain.TicketStatusOnHold: {
		domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusWaitingOnCustomer,
		domain.TicketStatusWaitingOnThirdParty, domain.TicketStatusResolved,
	},
	domain.TicketStatusResolved: {domain.TicketStatusOpen, domain.TicketStatusInProgress},
	domain.TicketStatusClosed:   {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// checkTransition validates a generic status change of ticket to next.
func checkTransition(ticket *domain.Ticket, next domain.TicketStatus) error {
	if ticket.Status == domain.TicketStatusClosed {
		return apperrors.NewTicketClosed(ticket.ID, string(next))
	}
	if !next.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": next})
	}
	if next == domain.TicketStatusClosed {
		return apperrors.NewInvalidTransition(string(ticket.Status), string(next), "use the close operation")
	}
	if !isValidTransition(ticket.Status, next) {
		return apperrors.NewInvalidTransition(string(ticket.Status), string(next), "")
	}
	if next != domain.TicketStatusOpen && ticket.AssigneeID == nil {
		return apperrors.NewInvalidTransition(string(ticket.Status), string(next), "ticket has no assignee")
	}
	return nil
}
