package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/assetdesk/ticket-lifecycle/internal/api/http/handlers"
	"github.com/assetdesk/ticket-lifecycle/internal/auth"
	"github.com/assetdesk/ticket-lifecycle/internal/config"
	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	"github.com/assetdesk/ticket-lifecycle/internal/events"
	"github.com/assetdesk/ticket-lifecycle/internal/observability"
	"github.com/assetdesk/ticket-lifecycle/internal/repository/memory"
	"github.com/assetdesk/ticket-lifecycle/internal/service"
)

const testPassword = "correct-horse"

type harness struct {
	app    *fiber.App
	store  *memory.Store
	tokens *auth.TokenManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher()
	feed := service.NewNotificationFeed(service.FeedDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Config:     config.FeedConfig{DefaultLimit: 20, MaxLimit: 100, PollInterval: 30 * time.Second},
	})
	engine := service.NewAssignmentEngine(store, service.DepartmentMatcher{}, config.AssignmentConfig{
		DefaultCapacity: 5,
		DeclineWindow:   24 * time.Hour,
		MatchTimeout:    100 * time.Millisecond,
	}, nil)
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Store:      store,
		Thread:     service.NewThreadLog(store, 0),
		Feed:       feed,
		Engine:     engine,
		Dispatcher: dispatcher,
		Policy: config.LifecycleConfig{
			CustomerReplyStatus:      "open",
			ReopenOnCustomerReply:    true,
			AgentReplyAwaitsCustomer: true,
		},
	})
	tokens := auth.NewTokenManager("test-secret", 15)
	staffService := service.NewStaffService(store, bcrypt.MinCost, nil)
	authService := service.NewAuthService(store.Engineers(), tokens, nil)
	binder := handlers.NewBinder()

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-lifecycle", "test", nil),
		Staff:          handlers.NewStaffHandler(authService, staffService, binder),
		PublicTickets:  handlers.NewTicketsHandler(lifecycle, binder),
		StaffTickets:   handlers.NewStaffTicketsHandler(lifecycle, binder),
		Notifications:  handlers.NewNotificationsHandler(feed),
		Assignment:     handlers.NewAssignmentHandler(engine, lifecycle, binder),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Engineers()),
	})
	return &harness{app: app, store: store, tokens: tokens}
}

func (h *harness) seed(t *testing.T, id string, role domain.StaffRole) string {
	t.Helper()
	hash, err := auth.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, h.store.Engineers().Create(context.Background(), &domain.Engineer{
		ID:           id,
		Name:         "Staff " + id,
		Email:        id + "@example.com",
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		Available:    true,
	}))
	token, _, err := h.tokens.GenerateToken(id, role)
	require.NoError(t, err)
	return token
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func TestHealthLive(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = h.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}

func TestStaffLogin(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "eng-1", domain.StaffRoleEngineer)

	status, body := h.do(t, http.MethodPost, "/auth/staff/login", "", map[string]string{
		"email": "eng-1@example.com", "password": testPassword,
	})
	require.Equal(t, http.StatusOK, status)
	authBody := body["auth"].(map[string]any)
	assert.NotEmpty(t, authBody["token"])

	status, body = h.do(t, http.MethodPost, "/auth/staff/login", "", map[string]string{
		"email": "eng-1@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = h.do(t, http.MethodPost, "/auth/staff/login", "", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodGet, "/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = h.do(t, http.MethodGet, "/notifications", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCreateTicketValidationReportsFields(t *testing.T) {
	h := newHarness(t)
	token := h.seed(t, "disp-1", domain.StaffRoleDispatcher)

	status, body := h.do(t, http.MethodPost, "/ticketing/tickets", token, map[string]any{"priority": "whenever"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	fields := details["fields"].(map[string]any)
	assert.Equal(t, "required", fields["subject"])
	assert.Equal(t, "required", fields["customer_email"])
	assert.Equal(t, "oneof", fields["priority"])
}

func TestPublicTicketFlow(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodPost, "/ticketing/public/tickets", "", map[string]any{
		"subject":        "Printer jammed",
		"customer_email": "casey@example.com",
	})
	require.Equal(t, http.StatusCreated, status)
	ticket := body["ticket"].(map[string]any)
	number := ticket["number"].(string)
	assert.Equal(t, "open", ticket["status"])

	status, body = h.do(t, http.MethodGet, "/ticketing/public/tickets/"+number+"?email=someone@example.com", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = h.do(t, http.MethodPost, "/ticketing/public/tickets/"+number+"/reply", "", map[string]any{
		"email":   "Casey@Example.com",
		"content": "It is still jammed",
	})
	require.Equal(t, http.StatusCreated, status)
	thread := body["thread"].([]any)
	last := thread[len(thread)-1].(map[string]any)
	assert.Equal(t, "It is still jammed", last["content"])
	assert.Equal(t, "customer", last["author_type"])

	status, body = h.do(t, http.MethodPost, "/ticketing/public/tickets", "", map[string]any{
		"subject":        "Assign me",
		"customer_email": "casey@example.com",
		"assignee_id":    "eng-1",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))
}

func TestDeclineNotifyReassignFlow(t *testing.T) {
	h := newHarness(t)
	dispatcherToken := h.seed(t, "disp-1", domain.StaffRoleDispatcher)
	engineerToken := h.seed(t, "eng-1", domain.StaffRoleEngineer)
	h.seed(t, "eng-2", domain.StaffRoleEngineer)

	status, body := h.do(t, http.MethodPost, "/ticketing/tickets", dispatcherToken, map[string]any{
		"subject":        "VPN drops every hour",
		"customer_email": "casey@example.com",
		"assignee_id":    "eng-1",
		"dispatcher_id":  "disp-1",
	})
	require.Equal(t, http.StatusCreated, status)
	ticketID := body["ticket"].(map[string]any)["id"].(string)

	status, body = h.do(t, http.MethodPost, "/ticketing/tickets/"+ticketID+"/decline", engineerToken, map[string]any{"reason": "out of my depth"})
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, body["assignee_id"])
	assert.Equal(t, "open", body["status"])

	status, body = h.do(t, http.MethodGet, "/notifications?limit=10", dispatcherToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["unread_count"])
	assert.EqualValues(t, 30, body["poll_interval_seconds"])
	items := body["notifications"].([]any)
	require.Len(t, items, 1)
	notification := items[0].(map[string]any)
	assert.Equal(t, "assignment_declined", notification["type"])
	assert.Equal(t, ticketID, notification["ticket_id"])

	status, _ = h.do(t, http.MethodGet, "/ticketing/assignment/suggest-reassign/"+ticketID, engineerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.do(t, http.MethodGet, "/ticketing/assignment/suggest-reassign/"+ticketID, dispatcherToken, nil)
	require.Equal(t, http.StatusOK, status)
	suggestions := body["suggestions"].([]any)
	require.Len(t, suggestions, 2)
	assert.Equal(t, "eng-2", suggestions[0].(map[string]any)["engineer_id"])
	declined := suggestions[1].(map[string]any)
	assert.Equal(t, "eng-1", declined["engineer_id"])
	assert.EqualValues(t, 1, declined["recent_decline_count"])

	reassign := map[string]any{
		"ticket_id":       ticketID,
		"engineer_id":     "eng-2",
		"notification_id": notification["id"],
	}
	status, body = h.do(t, http.MethodPost, "/ticketing/assignment/reassign", dispatcherToken, reassign)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "eng-2", body["ticket"].(map[string]any)["assignee_id"])
	assert.Equal(t, false, body["replayed"])

	status, body = h.do(t, http.MethodPost, "/ticketing/assignment/reassign", dispatcherToken, reassign)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["replayed"])

	status, body = h.do(t, http.MethodGet, "/notifications", dispatcherToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["unread_count"])

	status, body = h.do(t, http.MethodPost, "/ticketing/assignment/reassign", dispatcherToken, map[string]any{
		"ticket_id": ticketID, "engineer_id": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestReassignWithTicketAndEngineerOnly(t *testing.T) {
	h := newHarness(t)
	dispatcherToken := h.seed(t, "disp-1", domain.StaffRoleDispatcher)
	engineerToken := h.seed(t, "eng-1", domain.StaffRoleEngineer)
	h.seed(t, "eng-2", domain.StaffRoleEngineer)
	h.seed(t, "eng-3", domain.StaffRoleEngineer)
	h.seed(t, "admin-1", domain.StaffRoleAdmin)

	status, body := h.do(t, http.MethodPost, "/ticketing/tickets", dispatcherToken, map[string]any{
		"subject":        "Printer offline",
		"customer_email": "casey@example.com",
		"assignee_id":    "eng-1",
		"dispatcher_id":  "disp-1",
	})
	require.Equal(t, http.StatusCreated, status)
	ticketID := body["ticket"].(map[string]any)["id"].(string)

	status, _ = h.do(t, http.MethodPost, "/ticketing/tickets/"+ticketID+"/decline", engineerToken, map[string]any{"reason": "on leave"})
	require.Equal(t, http.StatusOK, status)

	status, body = h.do(t, http.MethodGet, "/notifications", dispatcherToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["unread_count"])

	status, body = h.do(t, http.MethodPost, "/ticketing/assignment/reassign", dispatcherToken, map[string]any{
		"ticket_id": ticketID, "engineer_id": "admin-1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "ENGINEER_UNAVAILABLE", errorCode(body))

	status, body = h.do(t, http.MethodPost, "/ticketing/assignment/reassign", dispatcherToken, map[string]any{
		"ticket_id": ticketID, "engineer_id": "eng-2",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "eng-2", body["ticket"].(map[string]any)["assignee_id"])

	status, body = h.do(t, http.MethodGet, "/notifications", dispatcherToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["unread_count"])
	items := body["notifications"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, true, items[0].(map[string]any)["read"])

	status, body = h.do(t, http.MethodPost, "/ticketing/assignment/reassign", dispatcherToken, map[string]any{
		"ticket_id": ticketID, "engineer_id": "eng-3",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	status, body = h.do(t, http.MethodGet, "/ticketing/tickets/"+ticketID, dispatcherToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "eng-2", body["ticket"].(map[string]any)["assignee_id"])
}

func TestStatusRoutesRenderDomainErrors(t *testing.T) {
	h := newHarness(t)
	dispatcherToken := h.seed(t, "disp-1", domain.StaffRoleDispatcher)

	status, body := h.do(t, http.MethodPost, "/ticketing/tickets", dispatcherToken, map[string]any{
		"subject":        "Monitor flickers",
		"customer_email": "casey@example.com",
	})
	require.Equal(t, http.StatusCreated, status)
	ticketID := body["ticket"].(map[string]any)["id"].(string)

	status, body = h.do(t, http.MethodPost, "/ticketing/tickets/"+ticketID+"/status", dispatcherToken, map[string]any{"status": "open"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(body))

	status, body = h.do(t, http.MethodGet, "/ticketing/tickets/"+ticketID+"/thread?limit=10", dispatcherToken, nil)
	require.Equal(t, http.StatusOK, status)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "ticket_created", entries[0].(map[string]any)["event_type"])

	status, body = h.do(t, http.MethodGet, "/ticketing/tickets/missing", dispatcherToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestMarkAllReadRoute(t *testing.T) {
	h := newHarness(t)
	token := h.seed(t, "disp-1", domain.StaffRoleDispatcher)

	status, body := h.do(t, http.MethodPut, "/notifications/read-all", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["updated"])

	status, body = h.do(t, http.MethodPut, "/notifications/unknown/read", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}
