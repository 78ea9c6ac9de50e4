// Package memory is an in-process repository.Store. Transactions run
// against a copy of the data and replace it on success, so a failed unit
// of work leaves nothing behind.
//
// Unlike the Postgres store, every transaction and every read holds one
// store-wide mutex. Units of work therefore run one at a time, and a bulk
// update for one recipient blocks work on every other. Row locks such as
// EngineerRepository.GetForUpdate are no-ops here. The store suits tests
// and single-process development; production deployments set POSTGRES_DSN.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
)

type state struct {
	tickets       map[string]domain.Ticket
	entries       []domain.ThreadEntry
	notifications []domain.Notification
	engineers     map[string]domain.Engineer
	departments   map[string]domain.Department
	sequence      int64
}

func newState() *state {
	return &state{
		tickets:     make(map[string]domain.Ticket),
		engineers:   make(map[string]domain.Engineer),
		departments: make(map[string]domain.Department),
	}
}

func (s *state) clone() *state {
	c := &state{
		tickets:       make(map[string]domain.Ticket, len(s.tickets)),
		entries:       append([]domain.ThreadEntry(nil), s.entries...),
		notifications: append([]domain.Notification(nil), s.notifications...),
		engineers:     make(map[string]domain.Engineer, len(s.engineers)),
		departments:   make(map[string]domain.Department, len(s.departments)),
		sequence:      s.sequence,
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.engineers {
		c.engineers[k] = v
	}
	for k, v := range s.departments {
		c.departments[k] = v
	}
	return c
}

// Store implements repository.Store in memory.
type Store struct {
	mu   *sync.Mutex
	data *state
	inTx bool
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore builds an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{mu: &sync.Mutex{}, data: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Tickets() repository.TicketRepository             { return ticketRepo{s} }
func (s *Store) Thread() repository.ThreadRepository              { return threadRepo{s} }
func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s} }
func (s *Store) Engineers() repository.EngineerRepository         { return engineerRepo{s} }
func (s *Store) Departments() repository.DepartmentRepository     { return departmentRepo{s} }

// WithinTx serializes transactions on the store lock.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Store{mu: s.mu, data: s.data.clone(), inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

func (s *Store) Savepoint(ctx context.Context, fn func(sp repository.Store) error) error {
	if !s.inTx {
		return fn(s)
	}
	sp := &Store{mu: s.mu, data: s.data.clone(), inTx: true, now: s.now}
	if err := fn(sp); err != nil {
		return err
	}
	*s.data = *sp.data
	return nil
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	defer r.s.lock()()
	now := r.s.now()
	ticket.ID = uuid.NewString()
	ticket.Version = 1
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.s.data.tickets[ticket.ID] = *ticket
	return nil
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	defer r.s.lock()()
	current, ok := r.s.data.tickets[ticket.ID]
	if !ok || current.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	ticket.Version = expectedVersion + 1
	ticket.UpdatedAt = r.s.now()
	ticket.CreatedAt = current.CreatedAt
	r.s.data.tickets[ticket.ID] = *ticket
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	defer r.s.lock()()
	ticket, ok := r.s.data.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (r ticketRepo) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	defer r.s.lock()()
	for _, ticket := range r.s.data.tickets {
		if ticket.Number == number {
			return &ticket, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r ticketRepo) CountOpenByAssignee(_ context.Context, engineerIDs []string) (map[string]int, error) {
	defer r.s.lock()()
	wanted := make(map[string]struct{}, len(engineerIDs))
	for _, id := range engineerIDs {
		wanted[id] = struct{}{}
	}
	counts := make(map[string]int, len(engineerIDs))
	for _, ticket := range r.s.data.tickets {
		if ticket.AssigneeID == nil || !ticket.Status.CountsAsOpenWork() {
			continue
		}
		if _, ok := wanted[*ticket.AssigneeID]; ok {
			counts[*ticket.AssigneeID]++
		}
	}
	return counts, nil
}

func (r ticketRepo) ListResolvedBefore(_ context.Context, before time.Time, limit int) ([]domain.Ticket, error) {
	defer r.s.lock()()
	var result []domain.Ticket
	for _, ticket := range r.s.data.tickets {
		if ticket.Status == domain.TicketStatusResolved && ticket.UpdatedAt.Before(before) {
			result = append(result, ticket)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type threadRepo struct{ s *Store }

func (r threadRepo) Append(_ context.Context, entry *domain.ThreadEntry) error {
	defer r.s.lock()()
	r.s.data.sequence++
	entry.ID = uuid.NewString()
	entry.Sequence = r.s.data.sequence
	entry.CreatedAt = r.s.now()
	r.s.data.entries = append(r.s.data.entries, *entry)
	return nil
}

func (r threadRepo) List(_ context.Context, ticketID string, afterSeq int64, limit int) ([]domain.ThreadEntry, error) {
	defer r.s.lock()()
	var result []domain.ThreadEntry
	for _, entry := range r.s.data.entries {
		if entry.TicketID != ticketID || entry.Sequence <= afterSeq {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r threadRepo) CountDeclinesSince(_ context.Context, engineerIDs []string, since time.Time) (map[string]int, error) {
	defer r.s.lock()()
	wanted := make(map[string]struct{}, len(engineerIDs))
	for _, id := range engineerIDs {
		wanted[id] = struct{}{}
	}
	counts := make(map[string]int, len(engineerIDs))
	for _, entry := range r.s.data.entries {
		if entry.EventType != domain.EventAssignmentDeclined || entry.CreatedAt.Before(since) {
			continue
		}
		id, _ := entry.EventPayload["engineer_id"].(string)
		if _, ok := wanted[id]; ok {
			counts[id]++
		}
	}
	return counts, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) Create(_ context.Context, n *domain.Notification) error {
	defer r.s.lock()()
	n.ID = uuid.NewString()
	n.Read = false
	n.ReadAt = nil
	n.CreatedAt = r.s.now()
	r.s.data.notifications = append(r.s.data.notifications, *n)
	return nil
}

func (r notificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	defer r.s.lock()()
	for _, n := range r.s.data.notifications {
		if n.ID == id {
			return &n, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r notificationRepo) ListByRecipient(_ context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	defer r.s.lock()()
	result := []domain.Notification{}
	// newest first; later appends win ties on CreatedAt
	for i := len(r.s.data.notifications) - 1; i >= 0; i-- {
		n := r.s.data.notifications[i]
		if n.RecipientID != recipientID {
			continue
		}
		result = append(result, n)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r notificationRepo) ListUnreadByTicket(_ context.Context, ticketID string, kind domain.NotificationType) ([]domain.Notification, error) {
	defer r.s.lock()()
	result := []domain.Notification{}
	for _, n := range r.s.data.notifications {
		if n.Read || n.Type != kind || n.TicketID == nil || *n.TicketID != ticketID {
			continue
		}
		result = append(result, n)
	}
	return result, nil
}

func (r notificationRepo) CountUnread(_ context.Context, recipientID string) (int, error) {
	defer r.s.lock()()
	count := 0
	for _, n := range r.s.data.notifications {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r notificationRepo) MarkRead(_ context.Context, id string, at time.Time) (bool, error) {
	defer r.s.lock()()
	for i := range r.s.data.notifications {
		n := &r.s.data.notifications[i]
		if n.ID != id {
			continue
		}
		if n.Read {
			return false, nil
		}
		n.Read = true
		n.ReadAt = &at
		return true, nil
	}
	return false, nil
}

func (r notificationRepo) MarkAllRead(_ context.Context, recipientID string, at time.Time) (int64, error) {
	defer r.s.lock()()
	var changed int64
	for i := range r.s.data.notifications {
		n := &r.s.data.notifications[i]
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			n.ReadAt = &at
			changed++
		}
	}
	return changed, nil
}

type engineerRepo struct{ s *Store }

func (r engineerRepo) Create(_ context.Context, engineer *domain.Engineer) error {
	defer r.s.lock()()
	if engineer.ID == "" {
		engineer.ID = uuid.NewString()
	}
	now := r.s.now()
	engineer.CreatedAt = now
	engineer.UpdatedAt = now
	r.s.data.engineers[engineer.ID] = *engineer
	return nil
}

func (r engineerRepo) GetByID(_ context.Context, id string) (*domain.Engineer, error) {
	defer r.s.lock()()
	engineer, ok := r.s.data.engineers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &engineer, nil
}

// GetForUpdate needs no row lock; transactions already hold the store lock.
func (r engineerRepo) GetForUpdate(ctx context.Context, id string) (*domain.Engineer, error) {
	return r.GetByID(ctx, id)
}

func (r engineerRepo) GetByEmail(_ context.Context, email string) (*domain.Engineer, error) {
	defer r.s.lock()()
	for _, engineer := range r.s.data.engineers {
		if strings.EqualFold(engineer.Email, email) {
			return &engineer, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r engineerRepo) List(_ context.Context, filter repository.EngineerFilter) ([]domain.Engineer, error) {
	defer r.s.lock()()
	var result []domain.Engineer
	for _, engineer := range r.s.data.engineers {
		if filter.Active != nil && engineer.Active != *filter.Active {
			continue
		}
		if filter.DepartmentID != nil && (engineer.DepartmentID == nil || *engineer.DepartmentID != *filter.DepartmentID) {
			continue
		}
		if len(filter.Roles) > 0 && !hasRole(filter.Roles, engineer.Role) {
			continue
		}
		result = append(result, engineer)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func hasRole(roles []domain.StaffRole, role domain.StaffRole) bool {
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}

type departmentRepo struct{ s *Store }

func (r departmentRepo) Create(_ context.Context, dept *domain.Department) error {
	defer r.s.lock()()
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	now := r.s.now()
	dept.CreatedAt = now
	dept.UpdatedAt = now
	r.s.data.departments[dept.ID] = *dept
	return nil
}

func (r departmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	defer r.s.lock()()
	dept, ok := r.s.data.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &dept, nil
}

func (r departmentRepo) List(_ context.Context, includeInactive bool) ([]domain.Department, error) {
	defer r.s.lock()()
	var result []domain.Department
	for _, dept := range r.s.data.departments {
		if includeInactive || dept.IsActive {
			result = append(result, dept)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r departmentRepo) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	defer r.s.lock()()
	dept, ok := r.s.data.departments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	dept.IsActive = active
	dept.UpdatedAt = at
	r.s.data.departments[id] = dept
	return nil
}
