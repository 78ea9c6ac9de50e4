package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/assetdesk/ticket-lifecycle/internal/api/dto"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/service"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

// TicketsHandler serves the unauthenticated customer portal. Ownership
// is checked by matching the ticket number with the customer email.
type TicketsHandler struct {
	lifecycle *service.LifecycleService
	binder    *Binder
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.LifecycleService, binder *Binder) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle, binder: binder}
}

// CreateTicket POST /ticketing/public/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := h.binder.Body(c, &req); err != nil {
		return err
	}
	if req.AssigneeID != nil || req.DispatcherID != nil {
		return apperrors.NewForbidden("only staff may assign tickets")
	}
	detail, err := h.lifecycle.CreateTicket(c.UserContext(), domain.CustomerActor(req.CustomerEmail), createInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewTicketDetail(detail.Ticket, service.CustomerVisible(detail.Thread)))
}

// GetTicket GET /ticketing/public/tickets/:number?email=.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	detail, err := h.lifecycle.GetPublicTicket(c.UserContext(), c.Params("number"), c.Query("email"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketDetail(detail.Ticket, detail.Thread))
}

// Reply POST /ticketing/public/tickets/:number/reply.
func (h *TicketsHandler) Reply(c *fiber.Ctx) error {
	var req dto.PublicReplyRequest
	if err := h.binder.Body(c, &req); err != nil {
		return err
	}
	detail, err := h.lifecycle.PublicReply(c.UserContext(), c.Params("number"), req.Email, req.Content)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewTicketDetail(detail.Ticket, detail.Thread))
}

func createInput(req dto.CreateTicketRequest) service.CreateTicketInput {
	return service.CreateTicketInput{
		Subject:       req.Subject,
		Description:   req.Description,
		Priority:      domain.TicketPriority(req.Priority),
		DepartmentID:  req.DepartmentID,
		Category:      req.Category,
		CompanyID:     req.CompanyID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		AssigneeID:    req.AssigneeID,
		DispatcherID:  req.DispatcherID,
	}
}
