package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/assetdesk/ticket-lifecycle/internal/config"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

// SpecializationMatcher decides whether an engineer fits a ticket. It may
// call out to other systems, so the engine bounds every call by a timeout.
type SpecializationMatcher interface {
	Matches(ctx context.Context, ticket *domain.Ticket, engineer domain.Engineer) (bool, error)
}

// DepartmentMatcher matches on department or on the specialization tag
// equalling the ticket category.
type DepartmentMatcher struct{}

func (DepartmentMatcher) Matches(_ context.Context, ticket *domain.Ticket, engineer domain.Engineer) (bool, error) {
	if ticket.DepartmentID != nil && engineer.DepartmentID != nil && *ticket.DepartmentID == *engineer.DepartmentID {
		return true, nil
	}
	if ticket.Category != "" && engineer.Specialization != "" {
		return strings.EqualFold(ticket.Category, engineer.Specialization), nil
	}
	return false, nil
}

// AssignmentEngine ranks reassignment candidates and enforces capacity.
type AssignmentEngine struct {
	store   repository.Store
	matcher SpecializationMatcher
	logger  *zap.Logger
	cfg     config.AssignmentConfig
	now     func() time.Time
}

// NewAssignmentEngine builds the engine; a nil matcher defaults to DepartmentMatcher.
func NewAssignmentEngine(store repository.Store, matcher SpecializationMatcher, cfg config.AssignmentConfig, logger *zap.Logger) *AssignmentEngine {
	if matcher == nil {
		matcher = DepartmentMatcher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = 10
	}
	if cfg.DeclineWindow <= 0 {
		cfg.DeclineWindow = 7 * 24 * time.Hour
	}
	if cfg.MatchTimeout <= 0 {
		cfg.MatchTimeout = 500 * time.Millisecond
	}
	if cfg.MatchConcurrency <= 0 {
		cfg.MatchConcurrency = 8
	}
	return &AssignmentEngine{store: store, matcher: matcher, logger: logger, cfg: cfg, now: time.Now}
}

// SuggestReassignment returns eligible engineers for ticketID, best first.
// An empty slice means nobody is eligible.
func (e *AssignmentEngine) SuggestReassignment(ctx context.Context, ticketID string) ([]domain.AssignmentSuggestion, error) {
	ticket, err := e.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	active := true
	engineers, err := e.store.Engineers().List(ctx, repository.EngineerFilter{
		Roles:  []domain.StaffRole{domain.StaffRoleEngineer},
		Active: &active,
	})
	if err != nil {
		return nil, err
	}
	candidates := make([]domain.Engineer, 0, len(engineers))
	ids := make([]string, 0, len(engineers))
	for _, engineer := range engineers {
		if !engineer.Active || !engineer.Available || ticket.IsAssignedTo(engineer.ID) {
			continue
		}
		candidates = append(candidates, engineer)
		ids = append(ids, engineer.ID)
	}
	if len(candidates) == 0 {
		return []domain.AssignmentSuggestion{}, nil
	}

	openCounts, err := e.store.Tickets().CountOpenByAssignee(ctx, ids)
	if err != nil {
		return nil, err
	}
	declines, err := e.store.Thread().CountDeclinesSince(ctx, ids, e.now().Add(-e.cfg.DeclineWindow))
	if err != nil {
		return nil, err
	}
	matches := e.matchAll(ctx, ticket, candidates)

	suggestions := make([]domain.AssignmentSuggestion, 0, len(candidates))
	for i, engineer := range candidates {
		suggestions = append(suggestions, domain.AssignmentSuggestion{
			EngineerID:          engineer.ID,
			Name:                engineer.Name,
			OpenTicketCount:     openCounts[engineer.ID],
			Specialization:      engineer.Specialization,
			RecentDeclineCount:  declines[engineer.ID],
			SpecializationMatch: matches[i],
		})
	}
	rankSuggestions(suggestions)
	return suggestions, nil
}

// matchAll evaluates the matcher for each candidate with bounded
// parallelism. A call that errors or outlives the timeout counts as no match.
func (e *AssignmentEngine) matchAll(ctx context.Context, ticket *domain.Ticket, candidates []domain.Engineer) []bool {
	results := make([]bool, len(candidates))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MatchConcurrency)
	for i, engineer := range candidates {
		g.Go(func() error {
			ok := e.matchOne(gctx, ticket, engineer)
			mu.Lock()
			results[i] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *AssignmentEngine) matchOne(ctx context.Context, ticket *domain.Ticket, engineer domain.Engineer) bool {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.MatchTimeout)
	defer cancel()

	type outcome struct {
		ok  bool
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ok, err := e.matcher.Matches(ctx, ticket, engineer)
		done <- outcome{ok: ok, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			e.logger.Debug("specialization match failed", zap.String("engineer_id", engineer.ID), zap.Error(res.err))
			return false
		}
		return res.ok
	case <-ctx.Done():
		e.logger.Debug("specialization match timed out", zap.String("engineer_id", engineer.ID))
		return false
	}
}

// rankSuggestions orders by open count, then decline count, then matches
// first, then engineer id.
func rankSuggestions(suggestions []domain.AssignmentSuggestion) {
	sort.Slice(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.OpenTicketCount != b.OpenTicketCount {
			return a.OpenTicketCount < b.OpenTicketCount
		}
		if a.RecentDeclineCount != b.RecentDeclineCount {
			return a.RecentDeclineCount < b.RecentDeclineCount
		}
		if a.SpecializationMatch != b.SpecializationMatch {
			return a.SpecializationMatch
		}
		return a.EngineerID < b.EngineerID
	})
}

// CheckCapacity verifies engineerID can take one more ticket, reading
// through store so the check runs inside the caller's transaction. The
// engineer row stays locked until that transaction ends, so concurrent
// checks for the same engineer count open tickets one at a time.
func (e *AssignmentEngine) CheckCapacity(ctx context.Context, store repository.Store, engineerID string) (*domain.Engineer, error) {
	if store == nil {
		store = e.store
	}
	engineer, err := store.Engineers().GetForUpdate(ctx, engineerID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("engineer", map[string]any{"engineer_id": engineerID})
		}
		return nil, err
	}
	if engineer.Role != domain.StaffRoleEngineer {
		return nil, apperrors.NewEngineerUnavailable(engineerID, "not an engineer")
	}
	if !engineer.Active {
		return nil, apperrors.NewEngineerUnavailable(engineerID, "engineer is inactive")
	}
	if !engineer.Available {
		return nil, apperrors.NewEngineerUnavailable(engineerID, "engineer is unavailable")
	}
	capacity := engineer.MaxOpenTickets
	if capacity <= 0 {
		capacity = e.cfg.DefaultCapacity
	}
	counts, err := store.Tickets().CountOpenByAssignee(ctx, []string{engineerID})
	if err != nil {
		return nil, err
	}
	if counts[engineerID] >= capacity {
		return nil, apperrors.NewEngineerUnavailable(engineerID, "engineer is at capacity")
	}
	return engineer, nil
}
