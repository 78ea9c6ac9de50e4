package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetdesk/ticket-lifecycle/internal/cache"
	"github.com/assetdesk/ticket-lifecycle/internal/config"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/events"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

// NotificationFeed is the per-admin mailbox consumed by polling.
type NotificationFeed struct {
	store      repository.Store
	unread     cache.UnreadCounter
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.FeedConfig
	now        func() time.Time
}

// FeedDependencies bundles collaborators of the feed.
type FeedDependencies struct {
	Store      repository.Store
	Unread     cache.UnreadCounter
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Config     config.FeedConfig
}

// NotificationInput describes a notification to create.
type NotificationInput struct {
	RecipientID string
	Type        domain.NotificationType
	Title       string
	Message     string
	TicketID    *string
}

// FeedPage is the response of List.
type FeedPage struct {
	Notifications []domain.Notification
	UnreadCount   int
}

// NewNotificationFeed constructs the feed.
func NewNotificationFeed(deps FeedDependencies) *NotificationFeed {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &NotificationFeed{
		store:      deps.Store,
		unread:     deps.Unread,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// PollInterval is the refresh period clients are told to use.
func (f *NotificationFeed) PollInterval() time.Duration {
	return f.cfg.PollInterval
}

// Create persists a notification. It never fails the caller: a persistence
// error is logged and nil is returned.
func (f *NotificationFeed) Create(ctx context.Context, input NotificationInput) *domain.Notification {
	n := f.createIn(ctx, f.store, input)
	if n != nil {
		f.announce(ctx, *n)
	}
	return n
}

// createIn writes the notification inside a savepoint of store so a failure
// cannot abort the surrounding transaction. Callers announce the result
// after their transaction commits.
func (f *NotificationFeed) createIn(ctx context.Context, store repository.Store, input NotificationInput) *domain.Notification {
	if strings.TrimSpace(input.RecipientID) == "" {
		f.logger.Warn("notification dropped: no recipient", zap.String("type", string(input.Type)))
		return nil
	}
	n := &domain.Notification{
		RecipientID: input.RecipientID,
		Type:        input.Type,
		Title:       input.Title,
		Message:     input.Message,
		TicketID:    input.TicketID,
	}
	err := store.Savepoint(ctx, func(sp repository.Store) error {
		return sp.Notifications().Create(ctx, n)
	})
	if err != nil {
		fields := []zap.Field{
			zap.String("recipient_id", input.RecipientID),
			zap.String("type", string(input.Type)),
			zap.Error(err),
		}
		if input.TicketID != nil {
			fields = append(fields, zap.String("ticket_id", *input.TicketID))
		}
		f.logger.Warn("notification create failed", fields...)
		return nil
	}
	return n
}

// announce drops cached counts and publishes created notifications.
func (f *NotificationFeed) announce(ctx context.Context, created ...domain.Notification) {
	for _, n := range created {
		f.invalidate(ctx, n.RecipientID)
		if f.dispatcher == nil {
			continue
		}
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventNotificationCreated,
			Actor:     domain.SystemActor(),
			Timestamp: f.now(),
			Payload:   events.NotificationCreatedPayload{Notification: n},
		}
		if n.TicketID != nil {
			event.TicketID = *n.TicketID
		}
		if err := f.dispatcher.Publish(ctx, event); err != nil {
			f.logger.Warn("notification fan-out failed", zap.String("notification_id", n.ID), zap.Error(err))
		}
	}
}

// List returns the newest notifications of recipientID and the recipient's
// total unread count, which does not depend on limit.
func (f *NotificationFeed) List(ctx context.Context, recipientID string, limit int) (*FeedPage, error) {
	if limit <= 0 {
		limit = f.cfg.DefaultLimit
	}
	if limit > f.cfg.MaxLimit {
		limit = f.cfg.MaxLimit
	}
	items, err := f.store.Notifications().ListByRecipient(ctx, recipientID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	unread, err := f.unreadCount(ctx, recipientID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &FeedPage{Notifications: items, UnreadCount: unread}, nil
}

// unreadCount serves the cached count or recounts. The generation is read
// before counting so a write committed and invalidated meanwhile keeps the
// stale count out of the cache.
func (f *NotificationFeed) unreadCount(ctx context.Context, recipientID string) (int, error) {
	var (
		gen     int64
		canFill bool
	)
	if f.unread != nil {
		count, ok, err := f.unread.Get(ctx, recipientID)
		if err != nil {
			f.logger.Debug("unread cache get failed", zap.String("recipient_id", recipientID), zap.Error(err))
		} else if ok {
			return count, nil
		}
		gen, err = f.unread.Generation(ctx, recipientID)
		canFill = err == nil
	}
	count, err := f.store.Notifications().CountUnread(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	if canFill {
		stored, err := f.unread.Fill(ctx, recipientID, count, gen)
		switch {
		case err != nil:
			f.logger.Debug("unread cache fill failed", zap.String("recipient_id", recipientID), zap.Error(err))
		case !stored:
			f.logger.Debug("unread cache fill skipped after invalidation", zap.String("recipient_id", recipientID))
		}
	}
	return count, nil
}

// MarkRead marks one of recipientID's notifications read. Marking an
// already-read notification is a no-op.
func (f *NotificationFeed) MarkRead(ctx context.Context, recipientID, id string) (*domain.Notification, error) {
	n, err := f.store.Notifications().GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if n.RecipientID != recipientID {
		return nil, apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
	}
	if n.Read {
		return n, nil
	}
	at := f.now()
	changed, err := f.store.Notifications().MarkRead(ctx, id, at)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if changed {
		n.Read = true
		n.ReadAt = &at
		f.invalidate(ctx, recipientID)
		return n, nil
	}
	return f.reload(ctx, n)
}

func (f *NotificationFeed) reload(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	fresh, err := f.store.Notifications().GetByID(ctx, n.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return fresh, nil
}

// markReadIn flips the read flag inside a caller's transaction.
func (f *NotificationFeed) markReadIn(ctx context.Context, store repository.Store, id string) error {
	_, err := store.Notifications().MarkRead(ctx, id, f.now())
	return err
}

// MarkAllRead marks every unread notification of recipientID read in one
// statement. Notifications created concurrently may land either way.
func (f *NotificationFeed) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	changed, err := f.store.Notifications().MarkAllRead(ctx, recipientID, f.now())
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	f.invalidate(ctx, recipientID)
	return changed, nil
}

func (f *NotificationFeed) invalidate(ctx context.Context, recipientID string) {
	if f.unread == nil {
		return
	}
	if err := f.unread.Invalidate(ctx, recipientID); err != nil {
		f.logger.Warn("unread cache invalidate failed", zap.String("recipient_id", recipientID), zap.Error(err))
	}
}
