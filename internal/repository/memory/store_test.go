package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ticket := &domain.Ticket{Subject: "printer", Status: domain.TicketStatusOpen}
	require.NoError(t, store.Tickets().Create(ctx, ticket))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx repository.Store) error {
		updated := *ticket
		updated.Status = domain.TicketStatusInProgress
		if err := tx.Tickets().Update(ctx, &updated, ticket.Version); err != nil {
			return err
		}
		if err := tx.Thread().Append(ctx, &domain.ThreadEntry{TicketID: ticket.ID, Kind: domain.EntryKindSystemEvent}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := store.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
	assert.Equal(t, int64(1), stored.Version)

	entries, err := store.Thread().List(ctx, ticket.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSavepointFailureKeepsOuterWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Thread().Append(ctx, &domain.ThreadEntry{TicketID: "t1", Kind: domain.EntryKindAgentReply}); err != nil {
			return err
		}
		spErr := tx.Savepoint(ctx, func(sp repository.Store) error {
			if err := sp.Notifications().Create(ctx, &domain.Notification{RecipientID: "d1"}); err != nil {
				return err
			}
			return errors.New("notification sink down")
		})
		assert.Error(t, spErr)
		return nil
	})
	require.NoError(t, err)

	entries, err := store.Thread().List(ctx, "t1", 0, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	unread, err := store.Notifications().CountUnread(ctx, "d1")
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestTicketUpdateRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ticket := &domain.Ticket{Status: domain.TicketStatusOpen}
	require.NoError(t, store.Tickets().Create(ctx, ticket))

	first := *ticket
	require.NoError(t, store.Tickets().Update(ctx, &first, 1))
	assert.Equal(t, int64(2), first.Version)

	stale := *ticket
	err := store.Tickets().Update(ctx, &stale, 1)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestThreadSequenceStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return fixed }))

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Thread().Append(ctx, &domain.ThreadEntry{TicketID: "t1", Kind: domain.EntryKindAgentReply}))
		require.NoError(t, store.Thread().Append(ctx, &domain.ThreadEntry{TicketID: "t2", Kind: domain.EntryKindAgentReply}))
	}

	entries, err := store.Thread().List(ctx, "t1", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Sequence, entries[i-1].Sequence)
		assert.Equal(t, entries[i].CreatedAt, entries[i-1].CreatedAt)
	}

	page, err := store.Thread().List(ctx, "t1", entries[1].Sequence, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, entries[2].ID, page[0].ID)
}

func TestLookupsReturnNoRows(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Tickets().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	_, err = store.Notifications().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	_, err = store.Engineers().GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
