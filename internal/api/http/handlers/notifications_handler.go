package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/assetdesk/ticket-lifecycle/internal/api/dto"
	"github.com/assetdesk/ticket-lifecycle/internal/service"
)

// NotificationsHandler exposes the caller's notification feed.
type NotificationsHandler struct {
	feed *service.NotificationFeed
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(feed *service.NotificationFeed) *NotificationsHandler {
	return &NotificationsHandler{feed: feed}
}

// List GET /notifications?limit=N.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	page, err := h.feed.List(c.UserContext(), actor.ID, parseIntQuery(c, "limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewNotificationList(page.Notifications, page.UnreadCount, h.feed.PollInterval()))
}

// MarkRead PUT /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	n, err := h.feed.MarkRead(c.UserContext(), actor.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewNotificationResponse(*n))
}

// MarkAllRead PUT /notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	updated, err := h.feed.MarkAllRead(c.UserContext(), actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": updated})
}
