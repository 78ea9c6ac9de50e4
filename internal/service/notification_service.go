package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/events"
	"github.com/assetdesk/ticket-lifecycle/internal/notify"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

// DeliveryQueue takes notifications for outbound delivery off the
// publishing goroutine. Enqueue must not block; false means dropped.
type DeliveryQueue interface {
	Enqueue(n domain.Notification) bool
}

// NotificationService forwards committed feed notifications to outbound
// channels and records ticket events in the log. Delivery is best effort.
type NotificationService struct {
	dispatcher events.Dispatcher
	store      repository.Store
	channels   []notify.Channel
	logger     *zap.Logger
	queue      DeliveryQueue
}

// NewNotificationService creates the service. Nil channels are skipped;
// callers must not pass typed nil pointers.
func NewNotificationService(dispatcher events.Dispatcher, store repository.Store, logger *zap.Logger, channels ...notify.Channel) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	active := make([]notify.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			active = append(active, ch)
		}
	}
	return &NotificationService{dispatcher: dispatcher, store: store, channels: active, logger: logger}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventNotificationCreated, n.handleNotificationCreated)
	n.dispatcher.Subscribe(events.EventTicketCreated, n.logTicketEvent)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.logTicketEvent)
	n.dispatcher.Subscribe(events.EventTicketReassigned, n.logTicketEvent)
	n.dispatcher.Subscribe(events.EventAssignmentDeclined, n.logTicketEvent)
}

func (n *NotificationService) logTicketEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_type", string(event.Actor.Type)),
		zap.String("actor_id", event.Actor.ID),
		zap.Any("payload", event.Payload))
	return nil
}

// UseQueue routes outbound delivery through q. Without a queue delivery
// runs on the publishing goroutine.
func (n *NotificationService) UseQueue(q DeliveryQueue) {
	n.queue = q
}

func (n *NotificationService) handleNotificationCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.NotificationCreatedPayload)
	if !ok || len(n.channels) == 0 {
		return nil
	}
	if n.queue == nil {
		n.Deliver(ctx, payload.Notification)
		return nil
	}
	if !n.queue.Enqueue(payload.Notification) {
		n.logger.Warn("outbound queue full, notification dropped",
			zap.String("notification_id", payload.Notification.ID),
			zap.String("recipient_id", payload.Notification.RecipientID))
	}
	return nil
}

// Deliver sends notification over every channel. Channel failures are
// logged and never returned.
func (n *NotificationService) Deliver(ctx context.Context, notification domain.Notification) {
	msg := notify.Message{Notification: notification}
	recipient, err := n.store.Engineers().GetByID(ctx, notification.RecipientID)
	switch {
	case err == nil:
		msg.RecipientName = recipient.Name
		msg.RecipientEmail = recipient.Email
	case apperrors.IsNoRows(err):
		n.logger.Debug("notification recipient not found", zap.String("recipient_id", notification.RecipientID))
	default:
		n.logger.Warn("notification recipient lookup failed", zap.String("recipient_id", notification.RecipientID), zap.Error(err))
	}

	for _, ch := range n.channels {
		if err := ch.Send(ctx, msg); err != nil {
			n.logger.Warn("outbound notification failed",
				zap.String("channel", ch.Name()),
				zap.String("notification_id", notification.ID),
				zap.Error(err))
			continue
		}
		n.logger.Debug("outbound notification sent",
			zap.String("channel", ch.Name()),
			zap.String("notification_id", notification.ID))
	}
}
