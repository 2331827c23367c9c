package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/api/http/handlers"
	"github.com/spec-kit/deadline-engine/internal/auth"
	"github.com/spec-kit/deadline-engine/internal/calendar"
	"github.com/spec-kit/deadline-engine/internal/deadline"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/observability"
	"github.com/spec-kit/deadline-engine/internal/repository"
	"github.com/spec-kit/deadline-engine/internal/repository/memstore"
	"github.com/spec-kit/deadline-engine/internal/service"
	"github.com/spec-kit/deadline-engine/internal/worker"
)

var pht = time.FixedZone("PHT", 8*60*60)

type testServer struct {
	app    *fiber.App
	store  *repository.Store
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cal, err := calendar.Compile(&domain.CalendarProfile{
		Name:            "office",
		StandardHours:   domain.ClockRange{Start: "08:00", End: "17:00"},
		ExcludeWeekends: true,
	}, pht)
	require.NoError(t, err)

	now := func() time.Time { return time.Date(2024, time.June, 3, 9, 0, 0, 0, pht) }
	mem := memstore.New()
	mem.SetClock(now)
	store := mem.Repositories()
	calc := deadline.NewCalculator(cal, deadline.WithClock(now))
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	sweep := service.SweepOptions{Concurrency: 2, ItemTimeout: 5 * time.Second, BatchSize: 100}

	timers := service.NewTimerService(store, calc, logger, metrics, sweep, 10)
	delegations := service.NewDelegationService(store, calc, logger, metrics, sweep)
	approvals := service.NewApprovalService(store, service.NewApproverResolver(service.NewStaffDirectory(store)), delegations, logger)
	scheduler := worker.NewScheduler(logger, nil,
		worker.Job{Name: "expiry", Interval: time.Minute, Run: delegations.RunExpirySweep},
		worker.Job{Name: "auto-close", Interval: time.Hour, Run: timers.RunAutoCloseSweep},
	)
	tokens := auth.NewTokenManager("test-secret", 5)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("deadline-engine", "test", map[string]handlers.Pinger{"redis": nil}),
		Delegations:    handlers.NewDelegationsHandler(delegations, cal),
		Tickets:        handlers.NewTicketsHandler(timers, service.NewAssignmentService(store, delegations, logger)),
		Approvals:      handlers.NewApprovalsHandler(approvals),
		Sweeps:         handlers.NewSweepsHandler(scheduler),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})
	return &testServer{app: app, store: store, tokens: tokens}
}

func (s *testServer) token(t *testing.T, role domain.StaffRole) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken("staff-1", role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func data(body map[string]any) map[string]any {
	out, _ := body["data"].(map[string]any)
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/health/live", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, "GET", "/health/ready", "", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	req := httptest.NewRequest("GET", "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "engine_http_requests_total")
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/api/v1/delegations", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = s.do(t, "GET", "/api/v1/delegations", "garbage", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = s.do(t, "GET", "/api/v1/delegations", s.token(t, domain.StaffRoleAgent), "")
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, _ = s.do(t, "GET", "/api/v1/delegations", s.token(t, domain.StaffRoleAdmin), "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestDelegationEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, domain.StaffRoleAdmin)
	payload := `{"kind":"TECHNICIAN","original_person_id":"tech-a","backup_person_id":"tech-b",
		"start_date":"2024-06-03","end_date":"2024-06-05","reason":"leave"}`

	status, body := s.do(t, "POST", "/api/v1/delegations", admin, payload)
	require.Equal(t, fiber.StatusCreated, status)
	created := data(body)
	assert.Equal(t, "ACTIVE", created["status"])
	assert.Equal(t, "2024-06-03", created["start_date"])
	assert.Equal(t, "2024-06-05", created["end_date"])
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	status, body = s.do(t, "POST", "/api/v1/delegations", admin,
		strings.Replace(payload, `"start_date":"2024-06-03"`, `"start_date":"2024-06-05"`, 1))
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "OVERLAPPING_DELEGATION", errorCode(body))

	status, body = s.do(t, "POST", "/api/v1/delegations", admin,
		`{"kind":"MANAGER","original_person_id":"a","backup_person_id":"b","start_date":"2024-06-03","end_date":"2024-06-05"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, "POST", "/api/v1/delegations", admin,
		`{"kind":"APPROVER","original_person_id":"a","backup_person_id":"a","start_date":"2024-06-03","end_date":"2024-06-05"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "SAME_ORIGINAL_AND_BACKUP", errorCode(body))

	status, body = s.do(t, "GET", "/api/v1/delegations/"+id, admin, "")
	require.Equal(t, fiber.StatusOK, status)
	logs, _ := data(body)["logs"].([]any)
	assert.Len(t, logs, 1)

	status, body = s.do(t, "GET", "/api/v1/delegations/upcoming-expirations?days=7", admin, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, "POST", "/api/v1/delegations/"+id+"/deactivate", admin, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, data(body)["already_inactive"])

	status, body = s.do(t, "GET", "/api/v1/delegations/missing", admin, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "ITEM_NOT_FOUND", errorCode(body))
}

func TestTimerEndpoints(t *testing.T) {
	s := newTestServer(t)
	agent := s.token(t, domain.StaffRoleAgent)
	ctx := context.Background()
	require.NoError(t, s.store.SLAs.Create(ctx, &domain.SLADefinition{ID: "sla-8h", Name: "8h", Hours: 8, OperationalHoursOnly: true}))
	require.NoError(t, s.store.Tickets.Create(ctx, &domain.Ticket{ID: "t-1", Status: domain.TicketStatusOpen}))

	status, body := s.do(t, "POST", "/api/v1/tickets/t-1/sla", agent, `{"sla_id":"sla-8h"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.NotNil(t, data(body)["due_at"])

	status, body = s.do(t, "POST", "/api/v1/tickets/t-1/timer/stop", agent, `{"reason":"  "}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "MISSING_REASON", errorCode(body))

	status, body = s.do(t, "POST", "/api/v1/tickets/t-1/timer/stop", agent, `{"reason":"waiting on vendor"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ON_HOLD", data(body)["new_status"])
	assert.EqualValues(t, 480, data(body)["remaining_minutes"])

	status, body = s.do(t, "POST", "/api/v1/tickets/t-1/timer/stop", agent, `{"reason":"again"}`)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(body))

	status, body = s.do(t, "POST", "/api/v1/tickets/t-1/timer/start", agent, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "OPEN", data(body)["new_status"])

	status, body = s.do(t, "GET", "/api/v1/tickets/t-1/deadline", agent, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "OPEN", data(body)["status"])

	status, body = s.do(t, "POST", "/api/v1/tickets/t-1/finalize", agent, `{"status":"OPEN"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, "POST", "/api/v1/tickets/t-1/finalize", agent, `{"status":"RESOLVED"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "RESOLVED", data(body)["status"])
	assert.Nil(t, data(body)["due_at"])
}

func TestApprovalEndpoint(t *testing.T) {
	s := newTestServer(t)
	agent := s.token(t, domain.StaffRoleAgent)
	require.NoError(t, s.store.Tickets.Create(context.Background(), &domain.Ticket{ID: "t-1", Status: domain.TicketStatusForApproval}))

	status, body := s.do(t, "POST", "/api/v1/approvals", agent,
		`{"ticket_id":"t-1","level":1,"selector":{"type":"FIXED","user_id":"mgr-a"}}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "mgr-a", data(body)["approver_id"])
	assert.Equal(t, "PENDING", data(body)["status"])

	status, body = s.do(t, "POST", "/api/v1/approvals", agent, `{"ticket_id":"t-1","level":0,"selector":{"type":"FIXED"}}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestSweepEndpoint(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, domain.StaffRoleAdmin)

	status, body := s.do(t, "POST", "/api/v1/sweeps/expiry", admin, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "expiry", data(body)["sweep"])

	status, body = s.do(t, "POST", "/api/v1/sweeps/vacuum", admin, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "ITEM_NOT_FOUND", errorCode(body))

	status, _ = s.do(t, "POST", "/api/v1/sweeps/expiry", s.token(t, domain.StaffRoleAgent), "")
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestAssignEndpoint_RoutesThroughDelegation(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, domain.StaffRoleAdmin)
	require.NoError(t, s.store.Tickets.Create(context.Background(), &domain.Ticket{ID: "t-1", Status: domain.TicketStatusOpen}))

	status, _ := s.do(t, "POST", "/api/v1/delegations", admin,
		`{"kind":"TECHNICIAN","original_person_id":"tech-a","backup_person_id":"tech-b","start_date":"2024-06-03","end_date":"2024-06-07"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := s.do(t, "POST", "/api/v1/tickets/t-1/assign", admin, `{"technician_id":"tech-a"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "tech-b", data(body)["assigned_technician_id"])

	status, body = s.do(t, "POST", "/api/v1/tickets/t-1/assign", admin, `{}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}
