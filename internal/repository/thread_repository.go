package repository

import (
	"context"
	"time"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
)

// ThreadRepository is the append-only store of ticket thread entries.
// Append is its only mutator.
type ThreadRepository interface {
	Append(ctx context.Context, entry *domain.ThreadEntry) error
	// List returns at most limit entries of ticketID with Sequence > afterSeq,
	// ascending by Sequence.
	List(ctx context.Context, ticketID string, afterSeq int64, limit int) ([]domain.ThreadEntry, error)
	CountDeclinesSince(ctx context.Context, engineerIDs []string, since time.Time) (map[string]int, error)
}

type threadRepository struct {
	db DBTX
}

func (r *threadRepository) Append(ctx context.Context, entry *domain.ThreadEntry) error {
	const query = `
        INSERT INTO thread_entries (ticket_id, kind, author_type, author_id, content, event_type, event_payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, sequence, created_at`
	return r.db.QueryRow(ctx, query,
		entry.TicketID,
		entry.Kind,
		entry.AuthorType,
		entry.AuthorID,
		entry.Content,
		entry.EventType,
		entry.EventPayload,
	).Scan(&entry.ID, &entry.Sequence, &entry.CreatedAt)
}

func (r *threadRepository) List(ctx context.Context, ticketID string, afterSeq int64, limit int) ([]domain.ThreadEntry, error) {
	const query = `
        SELECT id, ticket_id, sequence, kind, author_type, author_id, content, event_type, event_payload, created_at
        FROM thread_entries WHERE ticket_id=$1 AND sequence > $2
        ORDER BY sequence ASC LIMIT $3`
	rows, err := r.db.Query(ctx, query, ticketID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ThreadEntry
	for rows.Next() {
		var entry domain.ThreadEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Sequence,
			&entry.Kind,
			&entry.AuthorType,
			&entry.AuthorID,
			&entry.Content,
			&entry.EventType,
			&entry.EventPayload,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *threadRepository) CountDeclinesSince(ctx context.Context, engineerIDs []string, since time.Time) (map[string]int, error) {
	const query = `
        SELECT event_payload->>'engineer_id', COUNT(*)
        FROM thread_entries
        WHERE event_type=$1 AND created_at >= $2 AND event_payload->>'engineer_id' = ANY($3)
        GROUP BY 1`
	counts := make(map[string]int, len(engineerIDs))
	if len(engineerIDs) == 0 {
		return counts, nil
	}
	rows, err := r.db.Query(ctx, query, domain.EventAssignmentDeclined, since, engineerIDs)
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
