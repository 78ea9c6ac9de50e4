package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
)

// NotificationRepository persists feed notifications. Rows are never deleted.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	// ListUnreadByTicket returns unread notifications of kind about ticketID,
	// oldest first, locking them for the surrounding transaction.
	ListUnreadByTicket(ctx context.Context, ticketID string, kind domain.NotificationType) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	// MarkRead flips the read flag; it reports false when the row was already read.
	MarkRead(ctx context.Context, id string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
}

type notificationRepository struct {
	db DBTX
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (recipient_id, type, title, message, ticket_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, is_read, created_at`
	return r.db.QueryRow(ctx, query,
		n.RecipientID,
		n.Type,
		n.Title,
		n.Message,
		n.TicketID,
	).Scan(&n.ID, &n.Read, &n.CreatedAt)
}

const notificationColumns = `id, recipient_id, type, title, message, ticket_id, is_read, read_at, created_at`

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	return scanNotification(r.db.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, id))
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	const query = `SELECT ` + notificationColumns + `
        FROM notifications WHERE recipient_id=$1
        ORDER BY created_at DESC, seq DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, recipientID, limit)
	if err != nil {
		return nil, err
	}
	return collectNotifications(rows)
}

func (r *notificationRepository) ListUnreadByTicket(ctx context.Context, ticketID string, kind domain.NotificationType) ([]domain.Notification, error) {
	const query = `SELECT ` + notificationColumns + `
        FROM notifications WHERE ticket_id=$1 AND type=$2 AND is_read=FALSE
        ORDER BY created_at ASC, seq ASC FOR UPDATE`
	rows, err := r.db.Query(ctx, query, ticketID, kind)
	if err != nil {
		return nil, err
	}
	return collectNotifications(rows)
}

func collectNotifications(rows pgx.Rows) ([]domain.Notification, error) {
	defer rows.Close()
	result := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.TicketID,
		&n.Read,
		&n.ReadAt,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND is_read=FALSE`
	var count int
	err := r.db.QueryRow(ctx, query, recipientID).Scan(&count)
	return count, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE notifications SET is_read=TRUE, read_at=$1 WHERE id=$2 AND is_read=FALSE`
	cmd, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	const query = `UPDATE notifications SET is_read=TRUE, read_at=$1 WHERE recipient_id=$2 AND is_read=FALSE`
	cmd, err := r.db.Exec(ctx, query, at, recipientID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
