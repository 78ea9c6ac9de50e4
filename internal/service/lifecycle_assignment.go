package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/events"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

// ReassignInput identifies a reassignment. NotificationID names the decline
// notification being resolved, if any; ExpectedVersion, when set, must match
// the ticket's current version.
type ReassignInput struct {
	TicketID        string
	EngineerID      string
	NotificationID  string
	ExpectedVersion *int64
}

// ReassignResult reports the ticket after reassignment. Replayed is true
// when the call repeated an already applied reassignment.
type ReassignResult struct {
	Ticket   *domain.Ticket
	Replayed bool
}

// DeclineAssignment lets the current assignee hand a ticket back. The
// assignee is cleared, the ticket returns to open and the dispatcher is
// notified, all in one unit of work.
func (s *LifecycleService) DeclineAssignment(ctx context.Context, ticketID, engineerID, reason string, actor domain.Actor) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var (
		updated   *domain.Ticket
		created   []domain.Notification
		oldStatus domain.TicketStatus
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		ticket, err := s.loadTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.TicketStatusClosed {
			return apperrors.NewTicketClosed(ticket.ID, "decline")
		}
		if actor.ID != engineerID || !ticket.IsAssignedTo(engineerID) {
			return apperrors.NewNotAssigned(ticket.ID, engineerID)
		}

		oldStatus = ticket.Status
		ticket.AssigneeID = nil
		ticket.AssignmentToken = ""
		if ticket.Status != domain.TicketStatusOpen {
			s.applyStatus(ticket, domain.TicketStatusOpen)
		}
		if err := s.saveTicket(ctx, tx, ticket); err != nil {
			return err
		}
		payload := map[string]any{"engineer_id": engineerID, "reason": reason}
		if oldStatus != ticket.Status {
			payload["previous_status"] = string(oldStatus)
		}
		if _, err := s.appendEvent(ctx, tx, ticket, actor, domain.EventAssignmentDeclined, payload); err != nil {
			return err
		}

		message := fmt.Sprintf("An engineer declined ticket %s: %s", ticket.Number, ticket.Subject)
		if strings.TrimSpace(reason) != "" {
			message = fmt.Sprintf("%s. Reason: %s", message, reason)
		}
		created = s.notifyDispatchers(ctx, tx, ticket, domain.NotificationAssignmentDeclined,
			fmt.Sprintf("Assignment declined: %s", ticket.Number), message)
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("assignment declined",
		zap.String("ticket_id", updated.ID),
		zap.String("engineer_id", engineerID),
		zap.Int("notifications", len(created)))
	s.feed.announce(ctx, created...)
	s.publish(ctx, events.EventAssignmentDeclined, updated.ID, actor, events.AssignmentDeclinedPayload{
		EngineerID: engineerID,
		Reason:     reason,
	})
	if oldStatus != updated.Status {
		s.publishStatusChange(ctx, updated, actor, oldStatus, "assignment declined")
	}
	return updated, nil
}

// AcceptAssignment lets the assignee take up an open ticket, moving it to
// in_progress and notifying the dispatcher.
func (s *LifecycleService) AcceptAssignment(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var (
		updated *domain.Ticket
		created []domain.Notification
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		ticket, err := s.loadTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.TicketStatusClosed {
			return apperrors.NewTicketClosed(ticket.ID, string(domain.TicketStatusInProgress))
		}
		if !ticket.IsAssignedTo(actor.ID) {
			return apperrors.NewNotAssigned(ticket.ID, actor.ID)
		}
		if ticket.Status != domain.TicketStatusOpen {
			return apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusInProgress), "assignment already accepted")
		}
		s.applyStatus(ticket, domain.TicketStatusInProgress)
		if err := s.saveTicket(ctx, tx, ticket); err != nil {
			return err
		}
		if _, err := s.appendEvent(ctx, tx, ticket, actor, domain.EventAssignmentAccepted, map[string]any{"engineer_id": actor.ID}); err != nil {
			return err
		}
		created = s.notifyDispatchers(ctx, tx, ticket, domain.NotificationAssignmentAccepted,
			fmt.Sprintf("Assignment accepted: %s", ticket.Number),
			fmt.Sprintf("Ticket %s is now in progress", ticket.Number))
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.feed.announce(ctx, created...)
	s.publishStatusChange(ctx, updated, actor, domain.TicketStatusOpen, "assignment accepted")
	return updated, nil
}

// Escalate raises a ticket to urgent and alerts the dispatcher.
func (s *LifecycleService) Escalate(ctx context.Context, ticketID string, actor domain.Actor, reason string) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var (
		updated *domain.Ticket
		created []domain.Notification
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		ticket, err := s.loadTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.TicketStatusClosed {
			return apperrors.NewTicketClosed(ticket.ID, "escalate")
		}
		previous := ticket.Priority
		ticket.Priority = domain.TicketPriorityUrgent
		if err := s.saveTicket(ctx, tx, ticket); err != nil {
			return err
		}
		if _, err := s.appendEvent(ctx, tx, ticket, actor, domain.EventTicketEscalated, map[string]any{
			"previous_priority": string(previous),
			"reason":            reason,
		}); err != nil {
			return err
		}
		created = s.notifyDispatchers(ctx, tx, ticket, domain.NotificationEscalation,
			fmt.Sprintf("Ticket escalated: %s", ticket.Number),
			strings.TrimSpace(fmt.Sprintf("%s %s", ticket.Subject, reason)))
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.feed.announce(ctx, created...)
	return updated, nil
}

// Reassign moves a ticket to another engineer. Capacity is re-checked at
// commit time. The decline notification being resolved is marked read in
// the same unit of work: the one named by NotificationID, or else every
// unread decline notification about the ticket. Repeating a call whose
// reassignment is already in effect succeeds without writing. Moving a
// ticket that is assigned and has no pending decline requires
// ExpectedVersion; without it the call is treated as a lost race.
func (s *LifecycleService) Reassign(ctx context.Context, actor domain.Actor, input ReassignInput) (*ReassignResult, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if !actor.Role.CanDispatch() {
		return nil, apperrors.NewForbidden("reassignment requires a dispatcher or admin")
	}
	input.TicketID = strings.TrimSpace(input.TicketID)
	input.EngineerID = strings.TrimSpace(input.EngineerID)
	input.NotificationID = strings.TrimSpace(input.NotificationID)
	if input.TicketID == "" || input.EngineerID == "" {
		return nil, apperrors.NewValidationError("ticket_id and engineer_id required", nil)
	}
	token := assignmentToken(input.EngineerID, input.NotificationID)

	var (
		result     ReassignResult
		oldID      *string
		resolved   []domain.Notification
		resolvedBy string
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		ticket, err := s.loadTicket(ctx, tx, input.TicketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.TicketStatusClosed {
			return apperrors.NewTicketClosed(ticket.ID, "reassign")
		}
		if ticket.AssignmentToken == token && ticket.IsAssignedTo(input.EngineerID) {
			result = ReassignResult{Ticket: ticket, Replayed: true}
			return nil
		}
		if input.ExpectedVersion != nil && *input.ExpectedVersion != ticket.Version {
			return apperrors.NewConflict("ticket version changed", map[string]any{
				"ticket_id": ticket.ID,
				"expected":  *input.ExpectedVersion,
				"current":   ticket.Version,
			})
		}

		var pending []domain.Notification
		if input.NotificationID != "" {
			notification, err := tx.Notifications().GetByID(ctx, input.NotificationID)
			if err != nil {
				return notFoundOr(err, "notification", map[string]any{"notification_id": input.NotificationID})
			}
			if notification.TicketID == nil || *notification.TicketID != ticket.ID {
				return apperrors.NewValidationError("notification does not refer to this ticket", map[string]any{
					"notification_id": notification.ID,
					"ticket_id":       ticket.ID,
				})
			}
			if notification.Read && ticket.AssigneeID != nil {
				return apperrors.NewConflict("notification already resolved by another reassignment", map[string]any{
					"ticket_id":       ticket.ID,
					"notification_id": notification.ID,
				})
			}
			resolvedBy = notification.ID
			if !notification.Read {
				pending = append(pending, *notification)
			}
		}
		if ticket.IsAssignedTo(input.EngineerID) {
			return apperrors.NewValidationError("ticket is already assigned to this engineer", map[string]any{
				"ticket_id":   ticket.ID,
				"engineer_id": input.EngineerID,
			})
		}
		if _, err := s.engine.CheckCapacity(ctx, tx, input.EngineerID); err != nil {
			return err
		}
		if input.NotificationID == "" {
			pending, err = tx.Notifications().ListUnreadByTicket(ctx, ticket.ID, domain.NotificationAssignmentDeclined)
			if err != nil {
				return err
			}
			if len(pending) == 0 && ticket.AssigneeID != nil && input.ExpectedVersion == nil {
				return apperrors.NewConflict("ticket already reassigned", map[string]any{
					"ticket_id":   ticket.ID,
					"assignee_id": *ticket.AssigneeID,
				})
			}
			if len(pending) > 0 {
				resolvedBy = pending[0].ID
			}
		}

		oldID = ticket.AssigneeID
		newID := input.EngineerID
		ticket.AssigneeID = &newID
		ticket.AssignmentToken = token
		if err := s.saveTicket(ctx, tx, ticket); err != nil {
			return err
		}
		payload := map[string]any{"to_engineer_id": newID}
		if oldID != nil {
			payload["from_engineer_id"] = *oldID
		}
		if resolvedBy != "" {
			payload["notification_id"] = resolvedBy
		}
		if len(pending) > 1 {
			ids := make([]string, 0, len(pending))
			for _, n := range pending {
				ids = append(ids, n.ID)
			}
			payload["notification_ids"] = ids
		}
		if _, err := s.appendEvent(ctx, tx, ticket, actor, domain.EventTicketReassigned, payload); err != nil {
			return err
		}
		for _, n := range pending {
			if err := s.feed.markReadIn(ctx, tx, n.ID); err != nil {
				return err
			}
		}
		resolved = pending
		result.Ticket = ticket
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if result.Replayed {
		s.logger.Debug("reassignment replayed", zap.String("ticket_id", result.Ticket.ID), zap.String("engineer_id", input.EngineerID))
		return &result, nil
	}

	s.logger.Info("ticket reassigned",
		zap.String("ticket_id", result.Ticket.ID),
		zap.String("engineer_id", input.EngineerID),
		zap.Int("notifications_resolved", len(resolved)))
	invalidated := make(map[string]bool, len(resolved))
	for _, n := range resolved {
		if !invalidated[n.RecipientID] {
			invalidated[n.RecipientID] = true
			s.feed.invalidate(ctx, n.RecipientID)
		}
	}
	var notificationID *string
	if resolvedBy != "" {
		notificationID = &resolvedBy
	}
	s.publish(ctx, events.EventTicketReassigned, result.Ticket.ID, actor, events.TicketReassignedPayload{
		OldAssigneeID:  oldID,
		NewAssigneeID:  input.EngineerID,
		NotificationID: notificationID,
	})
	return &result, nil
}

func assignmentToken(engineerID, notificationID string) string {
	return engineerID + ":" + notificationID
}

// notifyDispatchers creates one notification per dispatcher recipient of
// ticket inside tx. Failures are logged by the feed and never returned.
func (s *LifecycleService) notifyDispatchers(ctx context.Context, tx repository.Store, ticket *domain.Ticket, kind domain.NotificationType, title, message string) []domain.Notification {
	ticketID := ticket.ID
	var created []domain.Notification
	for _, recipient := range s.dispatcherRecipients(ctx, tx, ticket) {
		n := s.feed.createIn(ctx, tx, NotificationInput{
			RecipientID: recipient,
			Type:        kind,
			Title:       title,
			Message:     message,
			TicketID:    &ticketID,
		})
		if n != nil {
			created = append(created, *n)
		}
	}
	return created
}

// dispatcherRecipients resolves who owns ticket: its dispatcher, else the
// configured default, else every active dispatcher and admin.
func (s *LifecycleService) dispatcherRecipients(ctx context.Context, tx repository.Store, ticket *domain.Ticket) []string {
	if ticket.DispatcherID != nil && *ticket.DispatcherID != "" {
		return []string{*ticket.DispatcherID}
	}
	if s.defaultDispatcherID != "" {
		return []string{s.defaultDispatcherID}
	}
	active := true
	var staff []domain.Engineer
	err := tx.Savepoint(ctx, func(sp repository.Store) error {
		var err error
		staff, err = sp.Engineers().List(ctx, repository.EngineerFilter{
			Roles:  []domain.StaffRole{domain.StaffRoleDispatcher, domain.StaffRoleAdmin},
			Active: &active,
		})
		return err
	})
	if err != nil {
		s.logger.Warn("dispatcher lookup failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil
	}
	ids := make([]string, 0, len(staff))
	for _, member := range staff {
		ids = append(ids, member.ID)
	}
	if len(ids) == 0 {
		s.logger.Warn("no dispatcher to notify", zap.String("ticket_id", ticket.ID))
	}
	return ids
}
