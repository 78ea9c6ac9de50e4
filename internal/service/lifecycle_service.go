package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetdesk/ticket-lifecycle/internal/config"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/events"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

const (
	autoCloseBatchSize   = 100
	ticketNumberAttempts = 3
)

// LifecycleService orchestrates ticket state, the thread and notifications.
// Every mutation runs as one unit of work; post-commit events are published
// only after the unit commits.
type LifecycleService struct {
	store               repository.Store
	thread              *ThreadLog
	feed                *NotificationFeed
	engine              *AssignmentEngine
	dispatcher          events.Dispatcher
	logger              *zap.Logger
	policy              config.LifecycleConfig
	defaultDispatcherID string
	now                 func() time.Time
	newNumber           func() string
}

// LifecycleDependencies bundles collaborators for LifecycleService.
type LifecycleDependencies struct {
	Store               repository.Store
	Thread              *ThreadLog
	Feed                *NotificationFeed
	Engine              *AssignmentEngine
	Dispatcher          events.Dispatcher
	Logger              *zap.Logger
	Policy              config.LifecycleConfig
	DefaultDispatcherID string
}

// CreateTicketInput carries the fields of a new ticket.
type CreateTicketInput struct {
	Subject       string
	Description   string
	Priority      domain.TicketPriority
	DepartmentID  *string
	Category      string
	CompanyID     *string
	CustomerName  string
	CustomerEmail string
	AssigneeID    *string
	DispatcherID  *string
}

// TicketDetail is a ticket with its merged thread.
type TicketDetail struct {
	Ticket *domain.Ticket
	Thread []domain.ThreadEntry
}

// ReplyResult is the outcome of AppendReply.
type ReplyResult struct {
	Ticket *domain.Ticket
	Entry  *domain.ThreadEntry
}

// NewLifecycleService wires the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.Policy
	if policy.CustomerReplyStatus == "" {
		policy.CustomerReplyStatus = string(domain.TicketStatusOpen)
	}
	return &LifecycleService{
		store:               deps.Store,
		thread:              deps.Thread,
		feed:                deps.Feed,
		engine:              deps.Engine,
		dispatcher:          deps.Dispatcher,
		logger:              logger,
		policy:              policy,
		defaultDispatcherID: deps.DefaultDispatcherID,
		now:                 time.Now,
		newNumber:           generateTicketNumber,
	}
}

// CreateTicket opens a ticket and records the ticket_created event.
func (s *LifecycleService) CreateTicket(ctx context.Context, actor domain.Actor, input CreateTicketInput) (*TicketDetail, error) {
	input.Subject = strings.TrimSpace(input.Subject)
	input.CustomerEmail = strings.TrimSpace(input.CustomerEmail)
	if input.Subject == "" {
		return nil, apperrors.NewValidationError("subject required", nil)
	}
	if input.CustomerEmail == "" {
		return nil, apperrors.NewValidationError("customer_email required", nil)
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}
	if actor.Type != domain.ActorTypeStaff && (input.AssigneeID != nil || input.DispatcherID != nil) {
		return nil, apperrors.NewForbidden("only staff may assign tickets")
	}

	ticket := &domain.Ticket{
		Subject:       input.Subject,
		Description:   input.Description,
		Status:        domain.TicketStatusOpen,
		Priority:      input.Priority,
		DepartmentID:  input.DepartmentID,
		Category:      input.Category,
		AssigneeID:    input.AssigneeID,
		DispatcherID:  input.DispatcherID,
		CompanyID:     input.CompanyID,
		CustomerName:  input.CustomerName,
		CustomerEmail: input.CustomerEmail,
	}

	var (
		created *domain.ThreadEntry
		err     error
	)
	for attempt := 1; ; attempt++ {
		ticket.Number = s.newNumber()
		created, err = s.insertTicket(ctx, ticket, actor)
		if err == nil || !apperrors.IsUniqueViolation(err) || attempt == ticketNumberAttempts {
			break
		}
		s.logger.Warn("ticket number taken, retrying", zap.String("number", ticket.Number), zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.String("number", ticket.Number))
	s.publish(ctx, events.EventTicketCreated, ticket.ID, actor, events.TicketCreatedPayload{
		Number:   ticket.Number,
		Priority: ticket.Priority,
		Subject:  ticket.Subject,
	})
	return &TicketDetail{Ticket: ticket, Thread: []domain.ThreadEntry{*created}}, nil
}

// insertTicket creates ticket and its ticket_created entry in one unit of work.
func (s *LifecycleService) insertTicket(ctx context.Context, ticket *domain.Ticket, actor domain.Actor) (*domain.ThreadEntry, error) {
	var created *domain.ThreadEntry
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if ticket.DepartmentID != nil {
			dept, err := tx.Departments().GetByID(ctx, *ticket.DepartmentID)
			if err != nil {
				return notFoundOr(err, "department", map[string]any{"department_id": *ticket.DepartmentID})
			}
			if !dept.AcceptsTickets() {
				return apperrors.NewValidationError("department is inactive", map[string]any{"department_id": dept.ID})
			}
		}
		if ticket.AssigneeID != nil {
			if _, err := s.engine.CheckCapacity(ctx, tx, *ticket.AssigneeID); err != nil {
				return err
			}
		}
		if err := tx.Tickets().Create(ctx, ticket); err != nil {
			return err
		}
		entry, err := s.appendEvent(ctx, tx, ticket, actor, domain.EventTicketCreated, map[string]any{
			"number":   ticket.Number,
			"priority": string(ticket.Priority),
		})
		created = entry
		return err
	})
	return created, err
}

// GetTicket returns a ticket with its full thread.
func (s *LifecycleService) GetTicket(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := s.loadTicket(ctx, s.store, ticketID)
	if err != nil {
		return nil, err
	}
	thread, err := s.thread.All(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetail{Ticket: ticket, Thread: thread}, nil
}

// GetPublicTicket looks a ticket up by number and customer email and
// returns the customer-visible thread. A mismatched email reads as missing.
func (s *LifecycleService) GetPublicTicket(ctx context.Context, number, email string) (*TicketDetail, error) {
	ticket, err := s.publicTicket(ctx, number, email)
	if err != nil {
		return nil, err
	}
	thread, err := s.thread.All(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetail{Ticket: ticket, Thread: CustomerVisible(thread)}, nil
}

func (s *LifecycleService) publicTicket(ctx context.Context, number, email string) (*domain.Ticket, error) {
	number = strings.TrimSpace(number)
	email = strings.TrimSpace(email)
	if number == "" || email == "" {
		return nil, apperrors.NewValidationError("ticket number and email required", nil)
	}
	ticket, err := s.store.Tickets().GetByNumber(ctx, number)
	if err != nil {
		return nil, notFoundOr(err, "ticket", map[string]any{"number": number})
	}
	if !strings.EqualFold(ticket.CustomerEmail, email) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"number": number})
	}
	return ticket, nil
}

// ListThread returns one cursor page of a ticket's thread.
func (s *LifecycleService) ListThread(ctx context.Context, ticketID string, cursor int64, limit int) (*ThreadPage, error) {
	if _, err := s.loadTicket(ctx, s.store, ticketID); err != nil {
		return nil, err
	}
	page, err := s.thread.ListEntries(ctx, ticketID, cursor, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return page, nil
}

// PublicReply appends a customer reply to the ticket identified by number
// and email and returns the customer view.
func (s *LifecycleService) PublicReply(ctx context.Context, number, email, content string) (*TicketDetail, error) {
	ticket, err := s.publicTicket(ctx, number, email)
	if err != nil {
		return nil, err
	}
	if _, err := s.AppendReply(ctx, ticket.ID, domain.CustomerActor(ticket.CustomerEmail), content); err != nil {
		return nil, err
	}
	return s.GetPublicTicket(ctx, number, email)
}

// AppendReply adds a reply to the thread and applies the reply policy:
// a customer answer moves waiting_on_customer (and, when configured,
// resolved) back to the configured status; an agent reply on an assigned
// open ticket moves it to waiting_on_customer.
func (s *LifecycleService) AppendReply(ctx context.Context, ticketID string, actor domain.Actor, content string) (*ReplyResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("content required", nil)
	}
	var kind domain.EntryKind
	switch actor.Type {
	case domain.ActorTypeCustomer:
		kind = domain.EntryKindCustomerReply
	case domain.ActorTypeStaff:
		kind = domain.EntryKindAgentReply
	default:
		return nil, apperrors.NewForbidden("replies require a customer or staff author")
	}

	var (
		result    ReplyResult
		oldStatus domain.TicketStatus
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		ticket, err := s.loadTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.TicketStatusClosed {
			return apperrors.NewTicketClosed(ticket.ID, "reply")
		}
		if actor.Type == domain.ActorTypeCustomer && !strings.EqualFold(ticket.CustomerEmail, actor.ID) {
			return apperrors.NewForbidden("reply author does not own the ticket")
		}

		entry, err := s.thread.AppendEntry(ctx, tx, domain.ThreadEntry{
			TicketID:   ticket.ID,
			Kind:       kind,
			AuthorType: actor.Type,
			AuthorID:   actor.IDPtr(),
			Content:    content,
		})
		if err != nil {
			return err
		}
		result.Entry = entry

		oldStatus = ticket.Status
		if next, ok := s.replyTransition(ticket, actor); ok {
			s.applyStatus(ticket, next)
			if _, err := s.appendEvent(ctx, tx, ticket, actor, domain.EventStatusChanged, map[string]any{
				"from":   string(oldStatus),
				"to":     string(next),
				"reason": "reply",
			}); err != nil {
				return err
			}
		}
		if err := s.saveTicket(ctx, tx, ticket); err != nil {
			return err
		}
		result.Ticket = ticket
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if result.Ticket.Status != oldStatus {
		s.publishStatusChange(ctx, result.Ticket, actor, oldStatus, "reply")
	}
	return &result, nil
}

func (s *LifecycleService) replyTransition(ticket *domain.Ticket, actor domain.Actor) (domain.TicketStatus, bool) {
	switch actor.Type {
	case domain.ActorTypeCustomer:
		reopen := ticket.Status == domain.TicketStatusWaitingOnCustomer ||
			(ticket.Status == domain.TicketStatusResolved && s.policy.ReopenOnCustomerReply)
		if !reopen {
			return "", false
		}
		next := domain.TicketStatus(s.policy.CustomerReplyStatus)
		if ticket.AssigneeID == nil {
			next = domain.TicketStatusOpen
		}
		if next == ticket.Status {
			return "", false
		}
		return next, true
	case domain.ActorTypeStaff:
		if s.policy.AgentReplyAwaitsCustomer && ticket.Status == domain.TicketStatusOpen && ticket.AssigneeID != nil {
			return domain.TicketStatusWaitingOnCustomer, true
		}
	}
	return "", false
}

// ChangeStatus moves a ticket along the status machine. Closing goes
// through Close.
func (s *LifecycleService) ChangeStatus(ctx context.Context, ticketID string, next domain.TicketStatus, actor domain.Actor, comment string) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var (
		updated   *domain.Ticket
		oldStatus domain.TicketStatus
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		ticket, err := s.loadTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if err := checkTransition(ticket, next); err != nil {
			return err
		}
		oldStatus = ticket.Status
		s.applyStatus(ticket, next)
		if _, err := s.appendEvent(ctx, tx, ticket, actor, domain.EventStatusChanged, statusPayload(oldStatus, next, comment)); err != nil {
			return err
		}
		if err := s.saveTicket(ctx, tx, ticket); err != nil {
			return err
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishStatusChange(ctx, updated, actor, oldStatus, comment)
	return updated, nil
}

// Close is the only way into closed. Closed tickets accept nothing further.
func (s *LifecycleService) Close(ctx context.Context, ticketID string, actor domain.Actor, comment string) (*domain.Ticket, error) {
	if actor.Type != domain.ActorTypeSystem {
		if err := requireStaff(actor); err != nil {
			return nil, err
		}
	}
	var (
		updated   *domain.Ticket
		oldStatus domain.TicketStatus
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		ticket, err := s.loadTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.TicketStatusClosed {
			return apperrors.NewTicketClosed(ticket.ID, string(domain.TicketStatusClosed))
		}
		if ticket.AssigneeID == nil {
			return apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusClosed), "ticket has no assignee")
		}
		oldStatus = ticket.Status
		s.applyStatus(ticket, domain.TicketStatusClosed)
		if _, err := s.appendEvent(ctx, tx, ticket, actor, domain.EventStatusChanged, statusPayload(oldStatus, domain.TicketStatusClosed, comment)); err != nil {
			return err
		}
		if err := s.saveTicket(ctx, tx, ticket); err != nil {
			return err
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishStatusChange(ctx, updated, actor, oldStatus, comment)
	return updated, nil
}

// Reopen moves a resolved ticket back to open.
func (s *LifecycleService) Reopen(ctx context.Context, ticketID string, actor domain.Actor, comment string) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var updated *domain.Ticket
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		ticket, err := s.loadTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.TicketStatusClosed {
			return apperrors.NewTicketClosed(ticket.ID, string(domain.TicketStatusOpen))
		}
		if ticket.Status != domain.TicketStatusResolved {
			return apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusOpen), "only resolved tickets can be reopened")
		}
		s.applyStatus(ticket, domain.TicketStatusOpen)
		if _, err := s.appendEvent(ctx, tx, ticket, actor, domain.EventStatusChanged, statusPayload(domain.TicketStatusResolved, domain.TicketStatusOpen, comment)); err != nil {
			return err
		}
		if err := s.saveTicket(ctx, tx, ticket); err != nil {
			return err
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishStatusChange(ctx, updated, actor, domain.TicketStatusResolved, comment)
	return updated, nil
}

// AutoCloseResolved closes resolved tickets untouched since before. It
// returns how many were closed; individual failures are logged and skipped.
func (s *LifecycleService) AutoCloseResolved(ctx context.Context, before time.Time) (int, error) {
	tickets, err := s.store.Tickets().ListResolvedBefore(ctx, before, autoCloseBatchSize)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	closed := 0
	for _, ticket := range tickets {
		if _, err := s.Close(ctx, ticket.ID, domain.SystemActor(), "closed automatically after resolution"); err != nil {
			s.logger.Warn("auto-close failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

// applyStatus sets status and the matching timestamps.
func (s *LifecycleService) applyStatus(ticket *domain.Ticket, next domain.TicketStatus) {
	now := s.now()
	switch next {
	case domain.TicketStatusResolved:
		ticket.ResolvedAt = &now
	case domain.TicketStatusClosed:
		ticket.ClosedAt = &now
	default:
		ticket.ResolvedAt = nil
	}
	ticket.Status = next
}

func statusPayload(from, to domain.TicketStatus, comment string) map[string]any {
	payload := map[string]any{"from": string(from), "to": string(to)}
	if comment != "" {
		payload["comment"] = comment
	}
	return payload
}

func (s *LifecycleService) appendEvent(ctx context.Context, tx repository.Store, ticket *domain.Ticket, actor domain.Actor, eventType domain.SystemEventType, payload map[string]any) (*domain.ThreadEntry, error) {
	return s.thread.AppendEntry(ctx, tx, domain.ThreadEntry{
		TicketID:     ticket.ID,
		Kind:         domain.EntryKindSystemEvent,
		AuthorType:   actor.Type,
		AuthorID:     actor.IDPtr(),
		EventType:    eventType,
		EventPayload: payload,
	})
}

func (s *LifecycleService) loadTicket(ctx context.Context, store repository.Store, ticketID string) (*domain.Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, apperrors.NewValidationError("ticket_id required", nil)
	}
	ticket, err := store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// saveTicket writes ticket guarded by the version it was read at.
func (s *LifecycleService) saveTicket(ctx context.Context, tx repository.Store, ticket *domain.Ticket) error {
	if err := tx.Tickets().Update(ctx, ticket, ticket.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return apperrors.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": ticket.ID})
		}
		return err
	}
	return nil
}

func (s *LifecycleService) publishStatusChange(ctx context.Context, ticket *domain.Ticket, actor domain.Actor, old domain.TicketStatus, comment string) {
	s.publish(ctx, events.EventTicketStatusChanged, ticket.ID, actor, events.TicketStatusChangedPayload{
		OldStatus: old,
		NewStatus: ticket.Status,
		Comment:   comment,
	})
}

func (s *LifecycleService) publish(ctx context.Context, eventType events.EventType, ticketID string, actor domain.Actor, payload any) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: s.now(),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(eventType)), zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func requireStaff(actor domain.Actor) error {
	switch {
	case actor.Type == "":
		return apperrors.NewUnauthorized("authentication required")
	case actor.Type != domain.ActorTypeStaff || actor.ID == "":
		return apperrors.NewForbidden("staff access required")
	}
	return nil
}

func notFoundOr(err error, resource string, details map[string]any) error {
	if apperrors.IsNoRows(err) {
		return apperrors.NewNotFound(resource, details)
	}
	return err
}

func generateTicketNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("TCK-%s", strings.ToUpper(raw[:8]))
}
