package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/assetdesk/ticket-lifecycle/internal/config"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/events"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
	"github.com/assetdesk/ticket-lifecycle/internal/repository/memory"
)

type envConfig struct {
	wrap    func(repository.Store) repository.Store
	policy  *config.LifecycleConfig
	matcher SpecializationMatcher
	unread  *fakeUnread
}

type testEnv struct {
	store      repository.Store
	thread     *ThreadLog
	feed       *NotificationFeed
	engine     *AssignmentEngine
	svc        *LifecycleService
	dispatcher events.Dispatcher

	mu        sync.Mutex
	published []events.Event
}

func newTestEnv(t *testing.T, cfg envConfig) *testEnv {
	t.Helper()
	var store repository.Store = memory.NewStore()
	if cfg.wrap != nil {
		store = cfg.wrap(store)
	}
	policy := config.LifecycleConfig{
		CustomerReplyStatus:      "in_progress",
		ReopenOnCustomerReply:    true,
		AgentReplyAwaitsCustomer: true,
	}
	if cfg.policy != nil {
		policy = *cfg.policy
	}

	env := &testEnv{store: store, dispatcher: events.NewInMemoryDispatcher()}
	record := func(_ context.Context, e events.Event) error {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.published = append(env.published, e)
		return nil
	}
	for _, et := range []events.EventType{
		events.EventTicketCreated, events.EventTicketStatusChanged, events.EventTicketReassigned,
		events.EventAssignmentDeclined, events.EventNotificationCreated,
	} {
		env.dispatcher.Subscribe(et, record)
	}

	feedDeps := FeedDependencies{Store: store, Dispatcher: env.dispatcher, Config: config.FeedConfig{DefaultLimit: 20, MaxLimit: 100}}
	if cfg.unread != nil {
		feedDeps.Unread = cfg.unread
	}
	env.thread = NewThreadLog(store, 2)
	env.feed = NewNotificationFeed(feedDeps)
	env.engine = NewAssignmentEngine(store, cfg.matcher, config.AssignmentConfig{
		DefaultCapacity: 10,
		DeclineWindow:   24 * time.Hour,
		MatchTimeout:    50 * time.Millisecond,
	}, nil)
	env.svc = NewLifecycleService(LifecycleDependencies{
		Store:      store,
		Thread:     env.thread,
		Feed:       env.feed,
		Engine:     env.engine,
		Dispatcher: env.dispatcher,
		Policy:     policy,
	})
	return env
}

func (env *testEnv) events(eventType events.EventType) []events.Event {
	env.mu.Lock()
	defer env.mu.Unlock()
	var out []events.Event
	for _, e := range env.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type engineerOpt func(*domain.Engineer)

func withCapacity(n int) engineerOpt {
	return func(e *domain.Engineer) { e.MaxOpenTickets = n }
}

func withSpecialization(tag string) engineerOpt {
	return func(e *domain.Engineer) { e.Specialization = tag }
}

func unavailable() engineerOpt {
	return func(e *domain.Engineer) { e.Available = false }
}

func inactive() engineerOpt {
	return func(e *domain.Engineer) { e.Active = false }
}

func (env *testEnv) seedEngineer(t *testing.T, id string, role domain.StaffRole, opts ...engineerOpt) *domain.Engineer {
	t.Helper()
	engineer := &domain.Engineer{
		ID:        id,
		Name:      "Engineer " + id,
		Email:     id + "@example.com",
		Role:      role,
		Active:    true,
		Available: true,
	}
	for _, opt := range opts {
		opt(engineer)
	}
	require.NoError(t, env.store.Engineers().Create(context.Background(), engineer))
	return engineer
}

func staff(e *domain.Engineer) domain.Actor {
	return domain.StaffActor(e)
}

func (env *testEnv) seedTicket(t *testing.T, by *domain.Engineer, assignee *domain.Engineer, category string) *domain.Ticket {
	t.Helper()
	input := CreateTicketInput{
		Subject:       "Laptop will not boot",
		Description:   "Black screen after update",
		Category:      category,
		CustomerName:  "Casey",
		CustomerEmail: "casey@example.com",
	}
	if assignee != nil {
		id := assignee.ID
		input.AssigneeID = &id
	}
	if by != nil && by.Role.CanDispatch() {
		id := by.ID
		input.DispatcherID = &id
	}
	detail, err := env.svc.CreateTicket(context.Background(), staff(by), input)
	require.NoError(t, err)
	return detail.Ticket
}

func (env *testEnv) ticket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := env.store.Tickets().GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func (env *testEnv) threadOf(t *testing.T, ticketID string) []domain.ThreadEntry {
	t.Helper()
	entries, err := env.thread.All(context.Background(), ticketID)
	require.NoError(t, err)
	return entries
}

func countEvents(entries []domain.ThreadEntry, eventType domain.SystemEventType) int {
	n := 0
	for _, entry := range entries {
		if entry.EventType == eventType {
			n++
		}
	}
	return n
}

// failingNotifications rejects every insert.
type failingNotifications struct {
	repository.NotificationRepository
}

func (failingNotifications) Create(context.Context, *domain.Notification) error {
	return errors.New("notifications table unavailable")
}

// brokenFeedStore wraps a store so notification inserts always fail,
// inside transactions and savepoints too.
type brokenFeedStore struct {
	repository.Store
}

func (s brokenFeedStore) Notifications() repository.NotificationRepository {
	return failingNotifications{s.Store.Notifications()}
}

func (s brokenFeedStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Store) error { return fn(brokenFeedStore{tx}) })
}

func (s brokenFeedStore) Savepoint(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.Savepoint(ctx, func(sp repository.Store) error { return fn(brokenFeedStore{sp}) })
}

// fakeUnread is an in-memory cache.UnreadCounter. beforeFill, when set,
// runs between the database count and the cache fill.
type fakeUnread struct {
	mu          sync.Mutex
	values      map[string]int
	generations map[string]int64
	invalidated int
	beforeFill  func()
}

func newFakeUnread() *fakeUnread {
	return &fakeUnread{values: map[string]int{}, generations: map[string]int64{}}
}

func (f *fakeUnread) Get(_ context.Context, id string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[id]
	return v, ok, nil
}

func (f *fakeUnread) Generation(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generations[id], nil
}

func (f *fakeUnread) Fill(_ context.Context, id string, count int, gen int64) (bool, error) {
	if f.beforeFill != nil {
		f.beforeFill()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generations[id] != gen {
		return false, nil
	}
	f.values[id] = count
	return true, nil
}

func (f *fakeUnread) Invalidate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, id)
	f.generations[id]++
	f.invalidated++
	return nil
}
