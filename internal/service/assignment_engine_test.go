package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/repository"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

func suggestionIDs(suggestions []domain.AssignmentSuggestion) []string {
	ids := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		ids = append(ids, s.EngineerID)
	}
	return ids
}

// loadEngineer gives engineer open tickets and recent declines.
func (env *testEnv) loadEngineer(t *testing.T, dispatcher, engineer *domain.Engineer, open, declined int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < open+declined; i++ {
		ticket := env.seedTicket(t, dispatcher, engineer, "network")
		if i < declined {
			_, err := env.svc.DeclineAssignment(ctx, ticket.ID, engineer.ID, "busy", staff(engineer))
			require.NoError(t, err)
		}
	}
}

func TestSuggestReassignmentOrdersByOpenCountBeforeDeclines(t *testing.T) {
	env := newTestEnv(t, envConfig{})
	dispatcher := env.seedEngineer(t, "d1", domain.StaffRoleDispatcher)
	e1 := env.seedEngineer(t, "e1", domain.StaffRoleEngineer, withSpecialization("network"))
	e2 := env.seedEngineer(t, "e2", domain.StaffRoleEngineer, withSpecialization("network"))
	e3 := env.seedEngineer(t, "e3", domain.StaffRoleEngineer, withSpecialization("network"))
	env.loadEngineer(t, dispatcher, e2, 3, 0)
	env.loadEngineer(t, dispatcher, e3, 1, 2)
	t1 := env.seedTicket(t, dispatcher, e1, "network")

	suggestions, err := env.engine.SuggestReassignment(context.Background(), t1.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"e3", "e2"}, suggestionIDs(suggestions))

	assert.Equal(t, 1, suggestions[0].OpenTicketCount)
	assert.Equal(t, 2, suggestions[0].RecentDeclineCount)
	assert.True(t, suggestions[0].SpecializationMatch)
	assert.Equal(t, 3, suggestions[1].OpenTicketCount)
	assert.Equal(t, 0, suggestions[1].RecentDeclineCount)
	assert.Equal(t, "network", suggestions[1].Specialization)

	again, err := env.engine.SuggestReassignment(context.Background(), t1.ID)
	require.NoError(t, err)
	assert.Equal(t, suggestions, again)
}

func TestSuggestReassignmentExclusions(t *testing.T) {
	env := newTestEnv(t, envConfig{})
	dispatcher := env.seedEngineer(t, "d1", domain.StaffRoleDispatcher)
	current := env.seedEngineer(t, "e1", domain.StaffRoleEngineer)
	env.seedEngineer(t, "e2", domain.StaffRoleEngineer, unavailable())
	env.seedEngineer(t, "e3", domain.StaffRoleEngineer, inactive())
	full := env.seedEngineer(t, "e4", domain.StaffRoleEngineer, withCapacity(1))
	env.loadEngineer(t, dispatcher, full, 1, 0)
	ticket := env.seedTicket(t, dispatcher, current, "")

	suggestions, err := env.engine.SuggestReassignment(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"e4"}, suggestionIDs(suggestions))
}

func TestSuggestReassignmentEmptyWhenNobodyEligible(t *testing.T) {
	env := newTestEnv(t, envConfig{})
	dispatcher := env.seedEngineer(t, "d1", domain.StaffRoleDispatcher)
	only := env.seedEngineer(t, "e1", domain.StaffRoleEngineer)
	ticket := env.seedTicket(t, dispatcher, only, "")

	suggestions, err := env.engine.SuggestReassignment(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.NotNil(t, suggestions)
	assert.Empty(t, suggestions)
}

func TestSuggestReassignmentUnknownTicket(t *testing.T) {
	env := newTestEnv(t, envConfig{})
	_, err := env.engine.SuggestReassignment(context.Background(), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestRankSuggestions(t *testing.T) {
	suggestions := []domain.AssignmentSuggestion{
		{EngineerID: "d", OpenTicketCount: 1, RecentDeclineCount: 0, SpecializationMatch: false},
		{EngineerID: "c", OpenTicketCount: 1, RecentDeclineCount: 0, SpecializationMatch: true},
		{EngineerID: "b", OpenTicketCount: 1, RecentDeclineCount: 0, SpecializationMatch: true},
		{EngineerID: "a", OpenTicketCount: 1, RecentDeclineCount: 1, SpecializationMatch: true},
		{EngineerID: "e", OpenTicketCount: 0, RecentDeclineCount: 5, SpecializationMatch: false},
	}
	rankSuggestions(suggestions)
	assert.Equal(t, []string{"e", "b", "c", "d", "a"}, suggestionIDs(suggestions))
}

// slowMatcher ignores its context, like a client without deadlines.
type slowMatcher struct{}

func (slowMatcher) Matches(context.Context, *domain.Ticket, domain.Engineer) (bool, error) {
	time.Sleep(time.Second)
	return true, nil
}

type flakyMatcher struct{}

func (flakyMatcher) Matches(_ context.Context, _ *domain.Ticket, e domain.Engineer) (bool, error) {
	if e.ID == "e2" {
		return true, errors.New("directory offline")
	}
	return true, nil
}

func TestSuggestReassignmentDegradesSlowMatcher(t *testing.T) {
	env := newTestEnv(t, envConfig{matcher: slowMatcher{}})
	dispatcher := env.seedEngineer(t, "d1", domain.StaffRoleDispatcher)
	env.seedEngineer(t, "e1", domain.StaffRoleEngineer)
	env.seedEngineer(t, "e2", domain.StaffRoleEngineer)
	ticket := env.seedTicket(t, dispatcher, nil, "network")

	start := time.Now()
	suggestions, err := env.engine.SuggestReassignment(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	require.Len(t, suggestions, 2)
	for _, s := range suggestions {
		assert.False(t, s.SpecializationMatch)
	}
}

func TestSuggestReassignmentTreatsMatcherErrorAsNoMatch(t *testing.T) {
	env := newTestEnv(t, envConfig{matcher: flakyMatcher{}})
	dispatcher := env.seedEngineer(t, "d1", domain.StaffRoleDispatcher)
	env.seedEngineer(t, "e2", domain.StaffRoleEngineer)
	env.seedEngineer(t, "e3", domain.StaffRoleEngineer)
	ticket := env.seedTicket(t, dispatcher, nil, "")

	suggestions, err := env.engine.SuggestReassignment(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"e3", "e2"}, suggestionIDs(suggestions))
	assert.False(t, suggestions[1].SpecializationMatch)
}

func TestDepartmentMatcher(t *testing.T) {
	dept := "dept-1"
	other := "dept-2"
	ctx := context.Background()
	m := DepartmentMatcher{}

	ok, _ := m.Matches(ctx, &domain.Ticket{DepartmentID: &dept}, domain.Engineer{DepartmentID: &dept})
	assert.True(t, ok)
	ok, _ = m.Matches(ctx, &domain.Ticket{DepartmentID: &dept}, domain.Engineer{DepartmentID: &other})
	assert.False(t, ok)
	ok, _ = m.Matches(ctx, &domain.Ticket{Category: "Network"}, domain.Engineer{Specialization: "network"})
	assert.True(t, ok)
	ok, _ = m.Matches(ctx, &domain.Ticket{}, domain.Engineer{Specialization: "network"})
	assert.False(t, ok)
}

func TestCheckCapacity(t *testing.T) {
	env := newTestEnv(t, envConfig{})
	dispatcher := env.seedEngineer(t, "d1", domain.StaffRoleDispatcher)
	full := env.seedEngineer(t, "e1", domain.StaffRoleEngineer, withCapacity(2))
	env.seedEngineer(t, "e2", domain.StaffRoleEngineer, unavailable())
	env.loadEngineer(t, dispatcher, full, 2, 0)
	ctx := context.Background()

	_, err := env.engine.CheckCapacity(ctx, nil, "e1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEngineerUnavailable))
	_, err = env.engine.CheckCapacity(ctx, nil, "e2")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEngineerUnavailable))
	_, err = env.engine.CheckCapacity(ctx, nil, "nobody")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	env.seedEngineer(t, "a1", domain.StaffRoleAdmin)
	for _, id := range []string{"d1", "a1"} {
		_, err = env.engine.CheckCapacity(ctx, nil, id)
		var de *apperrors.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, apperrors.CodeEngineerUnavailable, de.Code)
		assert.Equal(t, "not an engineer", de.Details["reason"])
	}

	spare := env.seedEngineer(t, "e3", domain.StaffRoleEngineer)
	engineer, err := env.engine.CheckCapacity(ctx, nil, spare.ID)
	require.NoError(t, err)
	assert.Equal(t, "e3", engineer.ID)
}

// lockRecordingStore records which engineers were read with a row lock.
type lockRecordingStore struct {
	repository.Store
	locked *[]string
}

func (s lockRecordingStore) Engineers() repository.EngineerRepository {
	return lockRecordingEngineers{EngineerRepository: s.Store.Engineers(), locked: s.locked}
}

func (s lockRecordingStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.Store) error { return fn(lockRecordingStore{tx, s.locked}) })
}

type lockRecordingEngineers struct {
	repository.EngineerRepository
	locked *[]string
}

func (r lockRecordingEngineers) GetForUpdate(ctx context.Context, id string) (*domain.Engineer, error) {
	*r.locked = append(*r.locked, id)
	return r.EngineerRepository.GetForUpdate(ctx, id)
}

func TestReassignLocksTargetEngineerBeforeCounting(t *testing.T) {
	var locked []string
	env := newTestEnv(t, envConfig{wrap: func(s repository.Store) repository.Store {
		return lockRecordingStore{Store: s, locked: &locked}
	}})
	dispatcher, t1, n := declinedTicket(t, env)
	env.seedEngineer(t, "e3", domain.StaffRoleEngineer)
	locked = nil

	_, err := env.svc.Reassign(context.Background(), staff(dispatcher), ReassignInput{TicketID: t1.ID, EngineerID: "e3", NotificationID: n.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"e3"}, locked)
}
