package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict is returned when an optimistic update finds the row
// at a different version than expected.
var ErrVersionConflict = errors.New("version conflict")

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store groups the repositories behind one unit of work.
//
// WithinTx runs fn against a transactional Store; nothing fn wrote is
// visible unless it returns nil. Savepoint runs fn in a nested scope whose
// failure is discarded without aborting the enclosing transaction.
type Store interface {
	Tickets() TicketRepository
	Thread() ThreadRepository
	Notifications() NotificationRepository
	Engineers() EngineerRepository
	Departments() DepartmentRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	Savepoint(ctx context.Context, fn func(sp Store) error) error
}

type pgStore struct {
	pool *pgxpool.Pool
	db   DBTX
	tx   pgx.Tx
}

// NewStore builds a Postgres-backed Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, db: pool}
}

func (s *pgStore) Tickets() TicketRepository             { return &ticketRepository{db: s.db} }
func (s *pgStore) Thread() ThreadRepository              { return &threadRepository{db: s.db} }
func (s *pgStore) Notifications() NotificationRepository { return &notificationRepository{db: s.db} }
func (s *pgStore) Engineers() EngineerRepository         { return &engineerRepository{db: s.db} }
func (s *pgStore) Departments() DepartmentRepository     { return &departmentRepository{db: s.db} }

func (s *pgStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(&pgStore{pool: s.pool, db: tx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgStore) Savepoint(ctx context.Context, fn func(sp Store) error) error {
	if s.tx == nil {
		return fn(s)
	}
	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = sp.Rollback(ctx)
	}()
	if err := fn(&pgStore{pool: s.pool, db: sp, tx: sp}); err != nil {
		return err
	}
	return sp.Commit(ctx)
}
