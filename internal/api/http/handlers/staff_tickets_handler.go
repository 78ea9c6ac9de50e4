package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/assetdesk/ticket-lifecycle/internal/api/dto"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/service"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

// StaffTicketsHandler handles authenticated ticket lifecycle endpoints.
type StaffTicketsHandler struct {
	lifecycle *service.LifecycleService
	binder    *Binder
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(lifecycle *service.LifecycleService, binder *Binder) *StaffTicketsHandler {
	return &StaffTicketsHandler{lifecycle: lifecycle, binder: binder}
}

// CreateTicket POST /ticketing/tickets.
func (h *StaffTicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := h.binder.Body(c, &req); err != nil {
		return err
	}
	detail, err := h.lifecycle.CreateTicket(c.UserContext(), actor, createInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewTicketDetail(detail.Ticket, detail.Thread))
}

// GetTicket GET /ticketing/tickets/:id.
func (h *StaffTicketsHandler) GetTicket(c *fiber.Ctx) error {
	detail, err := h.lifecycle.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketDetail(detail.Ticket, detail.Thread))
}

// ListThread GET /ticketing/tickets/:id/thread?after=&limit=.
func (h *StaffTicketsHandler) ListThread(c *fiber.Ctx) error {
	var cursor int64
	if raw := c.Query("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			return apperrors.NewValidationError("after must be a non-negative sequence", nil)
		}
		cursor = parsed
	}
	page, err := h.lifecycle.ListThread(c.UserContext(), c.Params("id"), cursor, parseIntQuery(c, "limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(dto.ThreadPageResponse{
		Entries:    dto.NewThreadEntries(page.Entries),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

// Reply POST /ticketing/tickets/:id/reply.
func (h *StaffTicketsHandler) Reply(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := h.binder.Body(c, &req); err != nil {
		return err
	}
	result, err := h.lifecycle.AppendReply(c.UserContext(), c.Params("id"), actor, req.Content)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"ticket": dto.NewTicketResponse(result.Ticket),
		"entry":  dto.NewThreadEntries([]domain.ThreadEntry{*result.Entry})[0],
	})
}

// ChangeStatus POST /ticketing/tickets/:id/status.
func (h *StaffTicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := h.binder.Body(c, &req); err != nil {
		return err
	}
	ticket, err := h.lifecycle.ChangeStatus(c.UserContext(), c.Params("id"), domain.TicketStatus(req.Status), actor, req.Comment)
	return ticketResult(c, ticket, err)
}

// Close POST /ticketing/tickets/:id/close.
func (h *StaffTicketsHandler) Close(c *fiber.Ctx) error {
	actor, comment, err := h.commentRequest(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.Close(c.UserContext(), c.Params("id"), actor, comment)
	return ticketResult(c, ticket, err)
}

// Reopen POST /ticketing/tickets/:id/reopen.
func (h *StaffTicketsHandler) Reopen(c *fiber.Ctx) error {
	actor, comment, err := h.commentRequest(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.Reopen(c.UserContext(), c.Params("id"), actor, comment)
	return ticketResult(c, ticket, err)
}

// Escalate POST /ticketing/tickets/:id/escalate.
func (h *StaffTicketsHandler) Escalate(c *fiber.Ctx) error {
	actor, comment, err := h.commentRequest(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.Escalate(c.UserContext(), c.Params("id"), actor, comment)
	return ticketResult(c, ticket, err)
}

// Accept POST /ticketing/tickets/:id/accept.
func (h *StaffTicketsHandler) Accept(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.AcceptAssignment(c.UserContext(), c.Params("id"), actor)
	return ticketResult(c, ticket, err)
}

// Decline POST /ticketing/tickets/:id/decline. The caller declines on
// their own behalf.
func (h *StaffTicketsHandler) Decline(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.DeclineRequest
	if err := h.optionalBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.lifecycle.DeclineAssignment(c.UserContext(), c.Params("id"), actor.ID, req.Reason, actor)
	return ticketResult(c, ticket, err)
}

func (h *StaffTicketsHandler) commentRequest(c *fiber.Ctx) (domain.Actor, string, error) {
	actor, err := staffActor(c)
	if err != nil {
		return domain.Actor{}, "", err
	}
	var req dto.CommentRequest
	if err := h.optionalBody(c, &req); err != nil {
		return domain.Actor{}, "", err
	}
	return actor, req.Comment, nil
}

// optionalBody binds req only when the request carries a body.
func (h *StaffTicketsHandler) optionalBody(c *fiber.Ctx, req any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return h.binder.Body(c, req)
}

func ticketResult(c *fiber.Ctx, ticket *domain.Ticket, err error) error {
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}
