package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes ticket if the stored version equals expectedVersion and
	// bumps ticket.Version. It returns ErrVersionConflict otherwise.
	Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	CountOpenByAssignee(ctx context.Context, engineerIDs []string) (map[string]int, error)
	ListResolvedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	db DBTX
}

const ticketColumns = `id, number, subject, description, status, priority, department_id, category,
               assignee_id, dispatcher_id, company_id, customer_name, customer_email, version,
               assignment_token, created_at, updated_at, resolved_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (number, subject, description, status, priority, department_id, category,
            assignee_id, dispatcher_id, company_id, customer_name, customer_email)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, version, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.Number,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.DepartmentID,
		ticket.Category,
		ticket.AssigneeID,
		ticket.DispatcherID,
		ticket.CompanyID,
		ticket.CustomerName,
		ticket.CustomerEmail,
	).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	const query = `
        UPDATE tickets SET subject=$1, description=$2, status=$3, priority=$4, department_id=$5,
            category=$6, assignee_id=$7, dispatcher_id=$8, assignment_token=$9, resolved_at=$10,
            closed_at=$11, version=version+1, updated_at=NOW()
        WHERE id=$12 AND version=$13
        RETURNING version, updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.DepartmentID,
		ticket.Category,
		ticket.AssigneeID,
		ticket.DispatcherID,
		ticket.AssignmentToken,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
		expectedVersion,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	if err == pgx.ErrNoRows {
		return ErrVersionConflict
	}
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE number=$1`, number)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) CountOpenByAssignee(ctx context.Context, engineerIDs []string) (map[string]int, error) {
	const query = `
        SELECT assignee_id::text, COUNT(*)
        FROM tickets
        WHERE assignee_id = ANY($1::uuid[]) AND status NOT IN ('resolved','closed')
        GROUP BY assignee_id`
	counts := make(map[string]int, len(engineerIDs))
	if len(engineerIDs) == 0 {
		return counts, nil
	}
	rows, err := r.db.Query(ctx, query, engineerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (r *ticketRepository) ListResolvedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE status='resolved' AND updated_at < $1
        ORDER BY updated_at ASC LIMIT $2`
	rows, err := r.db.Query(ctx, query, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.DepartmentID,
		&ticket.Category,
		&ticket.AssigneeID,
		&ticket.DispatcherID,
		&ticket.CompanyID,
		&ticket.CustomerName,
		&ticket.CustomerEmail,
		&ticket.Version,
		&ticket.AssignmentToken,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
