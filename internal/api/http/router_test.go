package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/credential-service/internal/api/http/handlers"
	"github.com/spec-kit/credential-service/internal/auth"
	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/events"
	"github.com/spec-kit/credential-service/internal/observability"
	"github.com/spec-kit/credential-service/internal/repository/memory"
	"github.com/spec-kit/credential-service/internal/service"
)

type testServer struct {
	app     *fiber.App
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, tokens *auth.TokenManager) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := memory.New()
	dispatcher := events.NewInMemoryDispatcher(logger)
	ledger := service.NewCheckLedger(service.CheckLedgerDependencies{
		AssignmentRepo: store.Assignments(),
		CheckRepo:      store.Checks(),
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	assignments := service.NewAssignmentService(service.AssignmentDependencies{
		AssignmentRepo: store.Assignments(),
		Dispatcher:     dispatcher,
		Logger:         logger,
	})

	metrics := observability.NewMetrics()
	cfg := RouteConfig{
		Health:      handlers.NewHealthHandler("credential-service", "test", metrics, map[string]handlers.Pinger{"memory": store}),
		Checks:      handlers.NewChecksHandler(ledger),
		Assignments: handlers.NewAssignmentsHandler(assignments, ledger),
	}
	if tokens != nil {
		cfg.AuthMiddleware = auth.NewAuthMiddleware(tokens)
	}

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, cfg)
	return &testServer{app: app, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) (int, map[string]any, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	return resp.StatusCode, obj, raw
}

func (s *testServer) createAssignment(t *testing.T, staffID int64) string {
	t.Helper()
	status, body, _ := s.do(t, fiber.MethodPost, "/api/v1/event-staff", map[string]any{
		"event_id": 50, "staff_id": staffID, "staff_cpf": "123.456.789-00", "created_by": 9,
	}, "")
	require.Equal(t, fiber.StatusCreated, status, body)
	return body["id"].(string)
}

func (s *testServer) check(t *testing.T, id, action string) (int, map[string]any) {
	t.Helper()
	status, body, _ := s.do(t, fiber.MethodPost, "/api/v1/checks", map[string]any{
		"action": action, "events_staff_id": id, "user_control_id": 9,
	}, "")
	return status, body
}

func TestCheckLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.createAssignment(t, 1)

	status, body := srv.check(t, id, "check-in")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Staff not registered", body["error"])
	assert.Equal(t, "Staff must complete registration before check-in/check-out", body["detail"])
	assert.Equal(t, "NOT_REGISTERED", body["code"])

	status, body = srv.check(t, id, "registration")
	require.Equal(t, fiber.StatusCreated, status)
	regID := body["id"].(float64)
	assert.Equal(t, "registration", body["action"])
	assert.Equal(t, id, body["events_staff_id"])
	assert.EqualValues(t, 9, body["user_control_id"])
	assert.NotEmpty(t, body["timestamp"])

	status, body = srv.check(t, id, "registration")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "ALREADY_REGISTERED", body["code"])

	status, body = srv.check(t, id, "check-out")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_SEQUENCE", body["code"])

	status, _ = srv.check(t, id, "check-in")
	require.Equal(t, fiber.StatusCreated, status)

	status, body = srv.check(t, id, "check-in")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Already checked in", body["error"])
	assert.Equal(t, "ALREADY_CHECKED_IN", body["code"])

	status, body, _ = srv.do(t, fiber.MethodGet, "/api/v1/event-staff/"+id, nil, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "REGISTERED_IN", body["state"])
	assert.Equal(t, regID, body["registration_check_id"])
	lastCheck, ok := body["last_check"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "check-in", lastCheck["action"])

	_, _, raw := srv.do(t, fiber.MethodGet, "/api/v1/event-staff/"+id+"/checks", nil, "")
	var history []map[string]any
	require.NoError(t, json.Unmarshal(raw, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "registration", history[0]["action"])

	_, _, raw = srv.do(t, fiber.MethodGet, "/api/v1/checks?events_staff_id="+id, nil, "")
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(raw, &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, "check-in", listed[0]["action"])

	status, body, _ = srv.do(t, fiber.MethodGet, fmt.Sprintf("/api/v1/checks/%d", int64(regID)), nil, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "registration", body["action"])
}

func TestCreateCheckValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.createAssignment(t, 1)

	cases := []struct {
		name    string
		body    map[string]any
		message string
	}{
		{"missing action", map[string]any{"events_staff_id": id, "user_control_id": 1}, "action, events_staff_id, and user_control_id are required"},
		{"missing assignment", map[string]any{"action": "registration", "user_control_id": 1}, "action, events_staff_id, and user_control_id are required"},
		{"missing operator", map[string]any{"action": "registration", "events_staff_id": id}, "action, events_staff_id, and user_control_id are required"},
		{"unknown action", map[string]any{"action": "teleport", "events_staff_id": id, "user_control_id": 1}, "Invalid action. Must be: registration, check-in, or check-out"},
		{"negative operator", map[string]any{"action": "registration", "events_staff_id": id, "user_control_id": -4}, "user_control_id must be positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body, _ := srv.do(t, fiber.MethodPost, "/api/v1/checks", tc.body, "")
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Equal(t, "VALIDATION_FAILED", body["code"])
			assert.Equal(t, tc.message, body["error"])
		})
	}

	status, body, _ := srv.do(t, fiber.MethodPost, "/api/v1/checks", map[string]any{
		"action": "registration", "events_staff_id": "es_unknown", "user_control_id": 1,
	}, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "EventStaff not found", body["error"])
	assert.Equal(t, "ASSIGNMENT_NOT_FOUND", body["code"])
}

func TestLookupErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body, _ := srv.do(t, fiber.MethodGet, "/api/v1/checks/999", nil, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Check not found", body["error"])

	status, body, _ = srv.do(t, fiber.MethodGet, "/api/v1/checks/abc", nil, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])

	status, body, _ = srv.do(t, fiber.MethodGet, "/api/v1/event-staff/es_nope/checks", nil, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "ASSIGNMENT_NOT_FOUND", body["code"])

	status, _, _ = srv.do(t, fiber.MethodGet, "/api/v1/nowhere", nil, "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestDuplicateAssignmentConflicts(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.createAssignment(t, 1)

	status, body, _ := srv.do(t, fiber.MethodPost, "/api/v1/event-staff", map[string]any{
		"event_id": 50, "staff_id": 1, "staff_cpf": "12345678900", "created_by": 9,
	}, "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["code"])

	_, _, raw := srv.do(t, fiber.MethodGet, "/api/v1/event-staff?event_id=50", nil, "")
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(raw, &listed))
	assert.Len(t, listed, 1)
}

func TestAuthenticatedRoutes(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	srv := newTestServer(t, tokens)

	status, body, _ := srv.do(t, fiber.MethodGet, "/api/v1/checks", nil, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	companyToken, _, err := tokens.GenerateToken(3, domain.UserRoleCompany)
	require.NoError(t, err)
	status, _, _ = srv.do(t, fiber.MethodGet, "/api/v1/checks", nil, companyToken)
	assert.Equal(t, fiber.StatusOK, status)

	status, body, _ = srv.do(t, fiber.MethodPost, "/api/v1/event-staff", map[string]any{
		"event_id": 1, "staff_id": 1, "staff_cpf": "12345678900",
	}, companyToken)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])

	controlToken, _, err := tokens.GenerateToken(11, domain.UserRoleControl)
	require.NoError(t, err)
	status, body, _ = srv.do(t, fiber.MethodPost, "/api/v1/event-staff", map[string]any{
		"event_id": 1, "staff_id": 1, "staff_cpf": "12345678900",
	}, controlToken)
	require.Equal(t, fiber.StatusCreated, status)
	assert.EqualValues(t, 11, body["created_by"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body, _ := srv.do(t, fiber.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	srv.do(t, fiber.MethodGet, "/api/v1/checks/999", nil, "")

	status, body, _ = srv.do(t, fiber.MethodGet, "/metrics", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	errorsByKey, ok := body["errors"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, errorsByKey["/api/v1/checks/999|GET|NOT_FOUND"])
}

func TestUnknownRoleIsRejected(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	srv := newTestServer(t, tokens)

	token, _, err := tokens.GenerateToken(5, domain.UserRole("visitor"))
	require.NoError(t, err)
	status, body, _ := srv.do(t, fiber.MethodGet, "/api/v1/checks", nil, token)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])
}

func TestListingsAreUnboundedWithoutPaging(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.createAssignment(t, 1)

	status, _ := srv.check(t, id, "registration")
	require.Equal(t, fiber.StatusCreated, status)
	for i := 0; i < 60; i++ {
		status, _ = srv.check(t, id, "check-in")
		require.Equal(t, fiber.StatusCreated, status)
		status, _ = srv.check(t, id, "check-out")
		require.Equal(t, fiber.StatusCreated, status)
	}

	var listed []map[string]any
	_, _, raw := srv.do(t, fiber.MethodGet, "/api/v1/checks?events_staff_id="+id, nil, "")
	require.NoError(t, json.Unmarshal(raw, &listed))
	assert.Len(t, listed, 121)

	_, _, raw = srv.do(t, fiber.MethodGet, "/api/v1/checks?events_staff_id="+id+"&page=2&page_size=50", nil, "")
	require.NoError(t, json.Unmarshal(raw, &listed))
	assert.Len(t, listed, 50)

	_, _, raw = srv.do(t, fiber.MethodGet, "/api/v1/checks?events_staff_id="+id+"&page=2", nil, "")
	require.NoError(t, json.Unmarshal(raw, &listed))
	assert.Len(t, listed, 21)

	for staffID := int64(2); staffID <= 105; staffID++ {
		srv.createAssignment(t, staffID)
	}
	_, _, raw = srv.do(t, fiber.MethodGet, "/api/v1/event-staff?event_id=50", nil, "")
	require.NoError(t, json.Unmarshal(raw, &listed))
	assert.Len(t, listed, 105)
}

func TestUnknownActionFilterIsIgnored(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.createAssignment(t, 1)
	status, _ := srv.check(t, id, "registration")
	require.Equal(t, fiber.StatusCreated, status)
	status, _ = srv.check(t, id, "check-in")
	require.Equal(t, fiber.StatusCreated, status)

	var listed []map[string]any
	status, _, raw := srv.do(t, fiber.MethodGet, "/api/v1/checks?action=bogus", nil, "")
	assert.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(raw, &listed))
	assert.Len(t, listed, 2)

	_, _, raw = srv.do(t, fiber.MethodGet, "/api/v1/checks?action=check-in", nil, "")
	require.NoError(t, json.Unmarshal(raw, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "check-in", listed[0]["action"])
}

func TestMissingFieldsTakePrecedenceOverRangeErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	id := srv.createAssignment(t, 1)

	status, body, _ := srv.do(t, fiber.MethodPost, "/api/v1/checks", map[string]any{
		"events_staff_id": id, "user_control_id": -4,
	}, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "action, events_staff_id, and user_control_id are required", body["error"])

	status, body, _ = srv.do(t, fiber.MethodPost, "/api/v1/checks", map[string]any{
		"action": "teleport", "user_control_id": 1,
	}, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "action, events_staff_id, and user_control_id are required", body["error"])
}
