package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskboard/task-service/internal/api/http/handlers"
	"github.com/taskboard/task-service/internal/auth"
	"github.com/taskboard/task-service/internal/config"
	"github.com/taskboard/task-service/internal/events"
	"github.com/taskboard/task-service/internal/observability"
	"github.com/taskboard/task-service/internal/repository"
	"github.com/taskboard/task-service/internal/service"
)

type testServer struct {
	app *fiber.App
}

func newTestServer(t *testing.T, checkers map[string]handlers.Pinger) *testServer {
	t.Helper()

	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	dispatcher := events.NewInMemoryDispatcher()

	authService := service.NewAuthService(config.AuthConfig{
		JWTSecret:  "test-secret",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, service.AuthDependencies{UserRepo: repository.NewMemoryUserRepository(), Dispatcher: dispatcher})
	taskService := service.NewTaskService(service.TaskDependencies{
		TaskRepo:   repository.NewMemoryTaskRepository(),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	service.NewActivityService(dispatcher, logger, metrics).RegisterHandlers()

	app := fiber.New()
	RegisterMiddlewares(app, MiddlewareConfig{Logger: logger, Metrics: metrics, Timeout: 5 * time.Second})
	RegisterRoutes(app, RouteConfig{
		BasePath:       "/api",
		Health:         handlers.NewHealthHandler("task-service", "test", checkers),
		Auth:           handlers.NewAuthHandler(authService),
		Tasks:          handlers.NewTasksHandler(taskService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager()),
		Gatherer:       reg,
	})
	return &testServer{app: app}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(data)
		}
		reader = bytes.NewBufferString(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (s *testServer) register(t *testing.T, name, email, password string) string {
	t.Helper()
	status, body := s.do(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
		"name": name, "email": email, "password": password,
	})
	require.Equal(t, fiber.StatusCreated, status, string(body))
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Token
}

type taskJSON struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	DueDate     *string `json:"dueDate"`
}

type errorJSON struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestAnnScenarioOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
		"name": "Ann", "email": "a@x.com", "password": "pw1",
	})
	require.Equal(t, fiber.StatusCreated, status, string(body))
	registered := decode[map[string]any](t, body)
	token, _ := registered["token"].(string)
	require.NotEmpty(t, token)
	user := registered["user"].(map[string]any)
	assert.Equal(t, "Ann", user["name"])
	assert.Equal(t, "a@x.com", user["email"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "passwordHash")

	status, body = s.do(t, fiber.MethodPost, "/api/tasks", token, fiber.Map{"title": "Write spec"})
	require.Equal(t, fiber.StatusCreated, status, string(body))
	created := decode[taskJSON](t, body)
	assert.Equal(t, "Medium", created.Priority)
	assert.Equal(t, "Pending", created.Status)
	assert.Equal(t, user["id"], created.UserID)
	assert.Nil(t, created.DueDate)

	status, body = s.do(t, fiber.MethodPut, "/api/tasks/"+created.ID, token, fiber.Map{"status": "Completed"})
	require.Equal(t, fiber.StatusOK, status, string(body))
	updated := decode[taskJSON](t, body)
	assert.Equal(t, "Completed", updated.Status)
	assert.Equal(t, "Write spec", updated.Title)

	status, body = s.do(t, fiber.MethodGet, "/api/tasks/stats", token, nil)
	require.Equal(t, fiber.StatusOK, status, string(body))
	assert.JSONEq(t, `{"total":1,"completed":1,"pending":0,"inProgress":0}`, string(body))
}

func TestRegisterAndLoginErrors(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "Ann", "a@x.com", "pw1")

	status, body := s.do(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{
		"name": "Ann", "email": "a@x.com", "password": "pw2",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "CONFLICT", decode[errorJSON](t, body).Error.Code)

	status, body = s.do(t, fiber.MethodPost, "/api/auth/register", "", fiber.Map{"email": "b@x.com"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "All fields are required", decode[errorJSON](t, body).Error.Message)

	wrongStatus, wrongBody := s.do(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
		"email": "a@x.com", "password": "nope",
	})
	unknownStatus, unknownBody := s.do(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
		"email": "nobody@x.com", "password": "pw1",
	})
	assert.Equal(t, fiber.StatusBadRequest, wrongStatus)
	assert.Equal(t, wrongStatus, unknownStatus)
	assert.JSONEq(t, string(wrongBody), string(unknownBody))
	assert.Equal(t, "Invalid credentials", decode[errorJSON](t, wrongBody).Error.Message)

	status, body = s.do(t, fiber.MethodPost, "/api/auth/login", "", fiber.Map{
		"email": "a@x.com", "password": "pw1",
	})
	require.Equal(t, fiber.StatusOK, status, string(body))
	token := decode[map[string]any](t, body)["token"].(string)

	status, body = s.do(t, fiber.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, fiber.StatusOK, status, string(body))
	assert.Equal(t, "Ann", decode[map[string]any](t, body)["name"])
}

func TestMalformedBodyIsValidationError(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, fiber.MethodPost, "/api/auth/register", "", `{"name":`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", decode[errorJSON](t, body).Error.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)

	expired := auth.NewTokenManager("test-secret", time.Nanosecond)
	stale, _, err := expired.Issue(uuid.NewString())
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	foreign, _, err := auth.NewTokenManager("other-secret", time.Hour).Issue(uuid.NewString())
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"wrong signature", foreign},
		{"expired", stale},
	}
	for _, tc := range cases {
		for _, path := range []string{"/api/tasks", "/api/tasks/stats", "/api/auth/me"} {
			status, body := s.do(t, fiber.MethodGet, path, tc.token, nil)
			assert.Equal(t, fiber.StatusUnauthorized, status, "%s %s", tc.name, path)
			assert.Equal(t, "UNAUTHORIZED", decode[errorJSON](t, body).Error.Code)
		}
	}
}

func TestCrossUserIsolationOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register(t, "Alice", "alice@x.com", "pw")
	bob := s.register(t, "Bob", "bob@x.com", "pw")

	status, body := s.do(t, fiber.MethodPost, "/api/tasks", alice, fiber.Map{"title": "private"})
	require.Equal(t, fiber.StatusCreated, status, string(body))
	task := decode[taskJSON](t, body)

	status, body = s.do(t, fiber.MethodGet, "/api/tasks", bob, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	for _, method := range []string{fiber.MethodGet, fiber.MethodPut, fiber.MethodDelete} {
		var payload any
		if method == fiber.MethodPut {
			payload = fiber.Map{"title": "mine"}
		}
		status, body = s.do(t, method, "/api/tasks/"+task.ID, bob, payload)
		assert.Equal(t, fiber.StatusNotFound, status, method)
		assert.Equal(t, "NOT_FOUND", decode[errorJSON](t, body).Error.Code)
	}

	status, body = s.do(t, fiber.MethodGet, "/api/tasks/"+task.ID, alice, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "private", decode[taskJSON](t, body).Title)
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.register(t, "Ann", "a@x.com", "pw")

	status, body := s.do(t, fiber.MethodPost, "/api/tasks", token, fiber.Map{
		"title": "Report", "category": "Work", "priority": "High", "dueDate": "2026-02-01",
	})
	require.Equal(t, fiber.StatusCreated, status, string(body))
	task := decode[taskJSON](t, body)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, "2026-02-01T00:00:00Z", *task.DueDate)

	status, body = s.do(t, fiber.MethodPost, "/api/tasks", token, fiber.Map{"description": "no title"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "title is required", decode[errorJSON](t, body).Error.Message)

	status, body = s.do(t, fiber.MethodGet, "/api/tasks?priority=High&search=rep", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, decode[[]taskJSON](t, body), 1)

	status, _ = s.do(t, fiber.MethodGet, "/api/tasks?status=Done", token, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.do(t, fiber.MethodPut, "/api/tasks/"+task.ID, token, `{"dueDate":null}`)
	require.Equal(t, fiber.StatusOK, status, string(body))
	cleared := decode[taskJSON](t, body)
	assert.Nil(t, cleared.DueDate)
	assert.Equal(t, "High", cleared.Priority)
	assert.Equal(t, "Work", cleared.Category)

	status, body = s.do(t, fiber.MethodDelete, "/api/tasks/"+task.ID, token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"message":"Task deleted successfully"}`, string(body))

	status, _ = s.do(t, fiber.MethodDelete, "/api/tasks/"+task.ID, token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = s.do(t, fiber.MethodGet, "/api/tasks/not-a-uuid", token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, fiber.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", decode[errorJSON](t, body).Error.Code)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

func TestHealthAndIndex(t *testing.T) {
	s := newTestServer(t, map[string]handlers.Pinger{"postgres": stubPinger{}})

	status, body := s.do(t, fiber.MethodGet, "/", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "API is running...", string(body))

	status, _ = s.do(t, fiber.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, body = s.do(t, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(body), `"postgres":"ok"`)

	status, body = s.do(t, fiber.MethodGet, "/metrics", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(body), "task_service_http_requests_total")

	down := newTestServer(t, map[string]handlers.Pinger{"redis": stubPinger{err: errors.New("refused")}})
	status, body = down.do(t, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), "refused")
}
