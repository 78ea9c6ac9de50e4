package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

func TestCheckTransition(t *testing.T) {
	assignee := "eng-1"
	tests := []struct {
		name     string
		from     domain.TicketStatus
		to       domain.TicketStatus
		assigned bool
		code     string
	}{
		{name: "open to in progress", from: domain.TicketStatusOpen, to: domain.TicketStatusInProgress, assigned: true},
		{name: "waiting to on hold", from: domain.TicketStatusWaitingOnCustomer, to: domain.TicketStatusOnHold, assigned: true},
		{name: "on hold to resolved", from: domain.TicketStatusOnHold, to: domain.TicketStatusResolved, assigned: true},
		{name: "resolved back to open", from: domain.TicketStatusResolved, to: domain.TicketStatusOpen, assigned: true},
		{name: "resolved to in progress", from: domain.TicketStatusResolved, to: domain.TicketStatusInProgress, assigned: true},
		{name: "resolved to on hold", from: domain.TicketStatusResolved, to: domain.TicketStatusOnHold, assigned: true, code: apperrors.CodeInvalidTransition},
		{name: "same status", from: domain.TicketStatusInProgress, to: domain.TicketStatusInProgress, assigned: true, code: apperrors.CodeInvalidTransition},
		{name: "close needs close operation", from: domain.TicketStatusResolved, to: domain.TicketStatusClosed, assigned: true, code: apperrors.CodeInvalidTransition},
		{name: "nothing leaves closed", from: domain.TicketStatusClosed, to: domain.TicketStatusOpen, assigned: true, code: apperrors.CodeTicketClosed},
		{name: "unknown status", from: domain.TicketStatusOpen, to: "archived", assigned: true, code: apperrors.CodeValidationFailed},
		{name: "unassigned cannot leave open", from: domain.TicketStatusOpen, to: domain.TicketStatusInProgress, code: apperrors.CodeInvalidTransition},
		{name: "unassigned may return to open", from: domain.TicketStatusOnHold, to: domain.TicketStatusOpen},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ticket := &domain.Ticket{ID: "t-1", Status: tc.from}
			if tc.assigned {
				ticket.AssigneeID = &assignee
			}
			err := checkTransition(ticket, tc.to)
			if tc.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestNoTransitionReachesClosed(t *testing.T) {
	for from, targets := range allowedTransitions {
		for _, to := range targets {
			assert.NotEqual(t, domain.TicketStatusClosed, to, "%s lists closed", from)
		}
	}
	assert.Empty(t, allowedTransitions[domain.TicketStatusClosed])
}
