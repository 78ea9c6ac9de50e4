package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/assetdesk/ticket-lifecycle/internal/api/dto"
	"github.com/assetdesk/ticket-lifecycle/internal/service"
)

// AssignmentHandler serves reassignment suggestions and the reassign action.
type AssignmentHandler struct {
	engine    *service.AssignmentEngine
	lifecycle *service.LifecycleService
	binder    *Binder
}

// NewAssignmentHandler constructs handler.
func NewAssignmentHandler(engine *service.AssignmentEngine, lifecycle *service.LifecycleService, binder *Binder) *AssignmentHandler {
	return &AssignmentHandler{engine: engine, lifecycle: lifecycle, binder: binder}
}

// SuggestReassign GET /ticketing/assignment/suggest-reassign/:ticketId.
func (h *AssignmentHandler) SuggestReassign(c *fiber.Ctx) error {
	if _, err := staffActor(c); err != nil {
		return err
	}
	suggestions, err := h.engine.SuggestReassignment(c.UserContext(), c.Params("ticketId"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSuggestions(suggestions))
}

// Reassign POST /ticketing/assignment/reassign.
func (h *AssignmentHandler) Reassign(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.ReassignRequest
	if err := h.binder.Body(c, &req); err != nil {
		return err
	}
	result, err := h.lifecycle.Reassign(c.UserContext(), actor, service.ReassignInput{
		TicketID:        req.TicketID,
		EngineerID:      req.EngineerID,
		NotificationID:  req.NotificationID,
		ExpectedVersion: req.Version,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.ReassignResponse{Ticket: dto.NewTicketResponse(result.Ticket), Replayed: result.Replayed})
}
