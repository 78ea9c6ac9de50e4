package service

import (
	"context"
	"iter"
	"strings"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

const (
	defaultThreadPageSize = 50
	maxThreadPageSize     = 500
)

// ThreadLog is the append-only conversation of each ticket.
type ThreadLog struct {
	store    repository.Store
	pageSize int
}

// ThreadPage is one cursor page of a ticket thread.
type ThreadPage struct {
	Entries    []domain.ThreadEntry
	NextCursor int64
	HasMore    bool
}

// NewThreadLog constructs the log. pageSize bounds each lazy fetch.
func NewThreadLog(store repository.Store, pageSize int) *ThreadLog {
	if pageSize <= 0 {
		pageSize = defaultThreadPageSize
	}
	return &ThreadLog{store: store, pageSize: pageSize}
}

// AppendEntry validates and persists entry. Passing a transactional store
// makes the append part of that unit of work; nil uses the log's own store.
func (l *ThreadLog) AppendEntry(ctx context.Context, store repository.Store, entry domain.ThreadEntry) (*domain.ThreadEntry, error) {
	if store == nil {
		store = l.store
	}
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	if err := store.Thread().Append(ctx, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func validateEntry(entry domain.ThreadEntry) error {
	if entry.TicketID == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	switch entry.Kind {
	case domain.EntryKindCustomerReply, domain.EntryKindAgentReply:
		if strings.TrimSpace(entry.Content) == "" {
			return apperrors.NewValidationError("content required", nil)
		}
	case domain.EntryKindSystemEvent:
		if entry.EventType == "" {
			return apperrors.NewValidationError("event_type required", nil)
		}
	default:
		return apperrors.NewValidationError("unknown entry kind", map[string]any{"kind": entry.Kind})
	}
	return nil
}

// ListEntries returns up to limit entries after cursor, ascending by sequence.
func (l *ThreadLog) ListEntries(ctx context.Context, ticketID string, cursor int64, limit int) (*ThreadPage, error) {
	if limit <= 0 {
		limit = l.pageSize
	}
	if limit > maxThreadPageSize {
		limit = maxThreadPageSize
	}
	entries, err := l.store.Thread().List(ctx, ticketID, cursor, limit+1)
	if err != nil {
		return nil, err
	}
	page := &ThreadPage{NextCursor: cursor}
	if len(entries) > limit {
		page.HasMore = true
		entries = entries[:limit]
	}
	page.Entries = entries
	if len(entries) > 0 {
		page.NextCursor = entries[len(entries)-1].Sequence
	}
	return page, nil
}

// Entries lazily walks the whole thread page by page. Each range over the
// returned sequence starts again from the beginning.
func (l *ThreadLog) Entries(ctx context.Context, ticketID string) iter.Seq2[domain.ThreadEntry, error] {
	return func(yield func(domain.ThreadEntry, error) bool) {
		var cursor int64
		for {
			page, err := l.ListEntries(ctx, ticketID, cursor, l.pageSize)
			if err != nil {
				yield(domain.ThreadEntry{}, err)
				return
			}
			for _, entry := range page.Entries {
				if !yield(entry, nil) {
					return
				}
			}
			if !page.HasMore {
				return
			}
			cursor = page.NextCursor
		}
	}
}

// All materializes the full thread.
func (l *ThreadLog) All(ctx context.Context, ticketID string) ([]domain.ThreadEntry, error) {
	result := []domain.ThreadEntry{}
	for entry, err := range l.Entries(ctx, ticketID) {
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, nil
}

// CustomerVisible drops system events other than ticket_created. It is a
// presentation filter; storage is untouched.
func CustomerVisible(entries []domain.ThreadEntry) []domain.ThreadEntry {
	filtered := make([]domain.ThreadEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsSystemEvent() && entry.EventType != domain.EventTicketCreated {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}
