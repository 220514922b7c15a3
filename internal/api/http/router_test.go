package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/api/http/handlers"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/auth"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/observability"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/persistence"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/repository"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/service"
)

type testServer struct {
	app     *fiber.App
	bus     *events.Bus
	tokens  map[domain.UserRole]string
	metrics *observability.Metrics
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newTestServer(t *testing.T, replaySize int) *testServer {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	users := []domain.User{
		{ID: 10, FirstName: "Eve", LastName: "Employee", Role: domain.UserRoleEmployee, Active: true},
		{ID: 20, FirstName: "Sam", LastName: "Support", Role: domain.UserRoleTechSupport, Active: true},
		{ID: 30, FirstName: "Ada", LastName: "Admin", Role: domain.UserRoleAdmin, Active: true},
	}
	for _, u := range users {
		user := u
		require.NoError(t, store.Users.Create(ctx, &user))
	}

	metrics := observability.NewMetrics()
	bus := events.NewBus(events.BusOptions{ReplaySize: replaySize, Observer: metrics})
	directory := service.NewDirectory(store.Users, nil)
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  store.Tickets,
		HistoryRepo: store.History,
		Directory:   directory,
		Dispatcher:  bus,
	})
	messages := service.NewMessageService(service.MessageDependencies{
		Tickets:     tickets,
		MessageRepo: store.Messages,
		Directory:   directory,
		Dispatcher:  bus,
	})

	tokenManager := auth.NewTokenManager("router-test", time.Hour)
	resolver := auth.NewResolver(tokenManager, store.Users)
	tokens := map[domain.UserRole]string{}
	for _, u := range users {
		token, _, err := tokenManager.GenerateToken(domain.Principal{UserID: u.ID, Role: u.Role})
		require.NoError(t, err)
		tokens[u.Role] = token
	}

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler("helpdesk", "test", map[string]handlers.Pinger{
			"postgres": (*persistence.Postgres)(nil),
		}),
		Tickets:  handlers.NewTicketsHandler(tickets, service.NewStatsService(store.Tickets, nil)),
		Messages: handlers.NewMessagesHandler(messages),
		Events:   handlers.NewEventsHandler(bus),
		Resolver: resolver,
		Metrics:  metrics,
	})
	return &testServer{app: app, bus: bus, tokens: tokens, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path string, role domain.UserRole, body any) (int, envelope) {
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
	if token, ok := s.tokens[role]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

type ticketBody struct {
	ID         int64      `json:"ticket_id"`
	Number     string     `json:"ticket_number"`
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	AssigneeID *int64     `json:"assignee_id"`
	AssignedTo string     `json:"assigned_to"`
	ClosedAt   *time.Time `json:"closed_at"`
}

func createTicket(t *testing.T, s *testServer, subject string) ticketBody {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/tickets", domain.UserRoleEmployee, map[string]any{
		"subject": subject, "description": "details", "category": "Hardware",
	})
	require.Equal(t, http.StatusCreated, status)
	return decode[ticketBody](t, env)
}

func TestRoutes_TicketLifecycle(t *testing.T) {
	s := newTestServer(t, 0)

	first := createTicket(t, s, "Printer jammed")
	second := createTicket(t, s, "VPN down")
	require.Equal(t, "TKT-0000001", first.Number)
	require.Equal(t, "TKT-0000002", second.Number)
	require.Equal(t, "Open", first.Status)
	require.Equal(t, domain.UnassignedLabel, first.AssignedTo)

	status, env := s.do(t, http.MethodGet, "/api/tickets/latest-number", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "TKT-0000002", decode[map[string]string](t, env)["ticket_number"])

	status, env = s.do(t, http.MethodPut, "/api/tickets/1/assign", domain.UserRoleTechSupport, map[string]any{"assignee_id": 20})
	require.Equal(t, http.StatusOK, status)
	assigned := decode[ticketBody](t, env)
	require.Equal(t, "Sam Support", assigned.AssignedTo)

	status, env = s.do(t, http.MethodPut, "/api/tickets/1/status", domain.UserRoleTechSupport, map[string]any{"status": "Closed"})
	require.Equal(t, http.StatusOK, status)
	closed := decode[ticketBody](t, env)
	require.Equal(t, "Closed", closed.Status)
	require.NotNil(t, closed.ClosedAt)

	status, env = s.do(t, http.MethodPut, "/api/tickets/1/status", domain.UserRoleTechSupport, map[string]any{"status": "Open"})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = s.do(t, http.MethodPut, "/api/tickets/1/status", domain.UserRoleAdmin, map[string]any{"status": "Open"})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, decode[ticketBody](t, env).ClosedAt)

	status, env = s.do(t, http.MethodGet, "/api/tickets/1/history", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, decode[[]map[string]any](t, env), 3)
}

func TestRoutes_ListFiltersAndPages(t *testing.T) {
	s := newTestServer(t, 0)
	for _, subject := range []string{"a", "b", "c"} {
		createTicket(t, s, subject)
	}
	status, _ := s.do(t, http.MethodPut, "/api/tickets/2/status", domain.UserRoleTechSupport, map[string]any{"status": "In Progress"})
	require.Equal(t, http.StatusOK, status)

	type page struct {
		Items []struct {
			ID int64 `json:"ticket_id"`
		} `json:"items"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"total_pages"`
	}

	status, env := s.do(t, http.MethodGet, "/api/tickets?page_size=2", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusOK, status)
	got := decode[page](t, env)
	require.Equal(t, int64(3), got.Total)
	require.Equal(t, 2, got.TotalPages)
	require.Len(t, got.Items, 2)
	require.Equal(t, int64(3), got.Items[0].ID)

	q := url.Values{"status": {"Open,On Hold"}}
	status, env = s.do(t, http.MethodGet, "/api/tickets?"+q.Encode(), domain.UserRoleTechSupport, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, int64(2), decode[page](t, env).Total)

	q = url.Values{"status": {"In Progress", "Open"}}
	status, env = s.do(t, http.MethodGet, "/api/tickets?"+q.Encode(), domain.UserRoleTechSupport, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, int64(3), decode[page](t, env).Total)

	status, env = s.do(t, http.MethodGet, "/api/tickets?status=Sleeping", domain.UserRoleTechSupport, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestRoutes_MessagesThread(t *testing.T) {
	s := newTestServer(t, 0)
	createTicket(t, s, "Monitor flicker")

	status, env := s.do(t, http.MethodPost, "/api/tickets/1/messages", domain.UserRoleEmployee, map[string]any{"message": "still broken"})
	require.Equal(t, http.StatusCreated, status)
	msg := decode[map[string]any](t, env)
	require.Equal(t, "Eve Employee", msg["author_name"])
	require.Equal(t, "Employee", msg["sender_role"])

	status, _ = s.do(t, http.MethodPost, "/api/tickets/1/messages", domain.UserRoleTechSupport, map[string]any{"message": "on my way"})
	require.Equal(t, http.StatusCreated, status)

	status, env = s.do(t, http.MethodGet, "/api/tickets/1/messages", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusOK, status)
	thread := decode[[]map[string]any](t, env)
	require.Len(t, thread, 2)
	require.Equal(t, "still broken", thread[0]["message"])
	require.Equal(t, "on my way", thread[1]["message"])

	status, env = s.do(t, http.MethodPost, "/api/tickets/1/messages", domain.UserRoleEmployee, map[string]any{"message": "  "})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, _ = s.do(t, http.MethodPut, "/api/tickets/1/status", domain.UserRoleTechSupport, map[string]any{"status": "Failed"})
	require.Equal(t, http.StatusOK, status)
	status, env = s.do(t, http.MethodPost, "/api/tickets/1/messages", domain.UserRoleEmployee, map[string]any{"message": "hello?"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "TICKET_CLOSED", env.Error.Code)
}

func TestRoutes_AccessControl(t *testing.T) {
	s := newTestServer(t, 0)
	createTicket(t, s, "Keyboard")

	status, env := s.do(t, http.MethodGet, "/api/tickets", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = s.do(t, http.MethodPut, "/api/tickets/1/assign", domain.UserRoleEmployee, map[string]any{"assignee_id": 20})
	require.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(t, http.MethodGet, "/api/tickets/support-users", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusForbidden, status)

	status, env = s.do(t, http.MethodGet, "/api/tickets/support-users", domain.UserRoleTechSupport, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, decode[[]map[string]any](t, env), 2)

	status, env = s.do(t, http.MethodGet, "/api/tickets/abc", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = s.do(t, http.MethodGet, "/api/tickets/99", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = s.do(t, http.MethodGet, "/nowhere", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRoutes_EventsSince(t *testing.T) {
	s := newTestServer(t, 2)
	for _, subject := range []string{"a", "b", "c"} {
		createTicket(t, s, subject)
	}

	type eventsBody struct {
		Events []struct {
			Seq  uint64 `json:"seq"`
			Type string `json:"type"`
		} `json:"events"`
		LastSeq uint64 `json:"last_seq"`
	}

	status, env := s.do(t, http.MethodGet, "/api/events?since=1", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusOK, status)
	got := decode[eventsBody](t, env)
	require.Len(t, got.Events, 2)
	require.Equal(t, uint64(2), got.Events[0].Seq)
	require.Equal(t, string(events.EventTicketCreated), got.Events[0].Type)
	require.Equal(t, uint64(3), got.LastSeq)

	status, env = s.do(t, http.MethodGet, "/api/events?since=3", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusOK, status)
	got = decode[eventsBody](t, env)
	require.Empty(t, got.Events)
	require.Equal(t, uint64(3), got.LastSeq)

	status, env = s.do(t, http.MethodGet, "/api/events?since=0", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusGone, status)
	require.Equal(t, "RESYNC_REQUIRED", env.Error.Code)

	status, _ = s.do(t, http.MethodGet, "/api/events?since=-1", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestRoutes_StatsHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, 0)
	createTicket(t, s, "a")
	createTicket(t, s, "b")
	status, _ := s.do(t, http.MethodPut, "/api/tickets/1/status", domain.UserRoleTechSupport, map[string]any{"status": "Resolved"})
	require.Equal(t, http.StatusOK, status)

	status, env := s.do(t, http.MethodGet, "/api/tickets/stats/summary", domain.UserRoleEmployee, nil)
	require.Equal(t, http.StatusOK, status)
	stats := decode[domain.Stats](t, env)
	require.Equal(t, int64(2), stats.TotalCreated)
	require.Equal(t, int64(1), stats.TotalResolved)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), `"postgres":"disabled"`)

	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), "helpdesk_http_requests_total")
	require.Contains(t, string(raw), `helpdesk_events_dispatched_total{type="ticket.created"} 2`)
}
