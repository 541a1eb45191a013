package router_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskboard/backend/internal/cache"
	"taskboard/backend/internal/config"
	"taskboard/backend/internal/database"
	"taskboard/backend/internal/models"
	"taskboard/backend/internal/router"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		Cache: config.CacheConfig{
			Enabled:     true,
			TaskListTTL: time.Minute,
			L1MaxTTL:    time.Second,
		},
		Auth: config.AuthConfig{
			JWTSecret:  "router-test-secret",
			TokenTTL:   time.Hour,
			BCryptCost: 4,
		},
		RateLimit: config.RateLimitConfig{Enabled: false},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}},
		Telemetry: config.TelemetryConfig{ServiceName: "taskboard-test"},
	}
}

type testServer struct {
	engine *gin.Engine
	redis  *miniredis.Miniredis
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:       database.DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
		LogLevel:     logger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, pool.AutoMigrate())
	t.Cleanup(func() { pool.Close() })

	mr := miniredis.RunT(t)
	c := cache.NewMultiLevelCache(cache.NewRedisCache(&cache.RedisConfig{Addr: mr.Addr()}), cache.Options{
		L1MaxTTL: cfg.Cache.L1MaxTTL,
	})
	t.Cleanup(func() { c.Close() })

	engine := router.New(router.Deps{Config: cfg, Pool: pool, Cache: c})
	return &testServer{engine: engine, redis: mr}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

type authData struct {
	User  models.PublicUser `json:"user"`
	Token string            `json:"token"`
}

type taskData struct {
	Task models.Task `json:"task"`
}

func (s *testServer) register(t *testing.T, name, email string) authData {
	t.Helper()
	w, env := s.do(t, "POST", "/auth/register", "", gin.H{"name": name, "email": email, "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var data authData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

func (s *testServer) createTask(t *testing.T, token string, body gin.H) models.Task {
	t.Helper()
	w, env := s.do(t, "POST", "/tasks", token, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var data taskData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Task
}

func (s *testServer) list(t *testing.T, token, query string) models.TaskPage {
	t.Helper()
	w, env := s.do(t, "GET", "/tasks"+query, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page models.TaskPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	return page
}

func TestFullTaskLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig())

	registered := s.register(t, "Ada", "  Ada@Example.com ")
	assert.Equal(t, "ada@example.com", registered.User.Email)
	assert.NotEmpty(t, registered.Token)

	w, env := s.do(t, "POST", "/auth/register", "", gin.H{"name": "Ada", "email": "ada@example.com", "password": "password123"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "An account with this email already exists", env.Message)

	w, env = s.do(t, "POST", "/auth/login", "", gin.H{"email": "ADA@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Login successful", env.Message)
	var login authData
	require.NoError(t, json.Unmarshal(env.Data, &login))
	token := login.Token

	w, _ = s.do(t, "POST", "/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(t, "GET", "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"email":"ada@example.com"`)
	assert.NotContains(t, string(env.Data), "password")

	first := s.createTask(t, token, gin.H{"title": "Write report", "description": "Q3 numbers", "priority": "High"})
	assert.Equal(t, models.StatusPending, first.Status)
	second := s.createTask(t, token, gin.H{"title": "Call bank", "description": "mortgage", "dueDate": "2026-05-01"})
	assert.Equal(t, models.PriorityMedium, second.Priority)
	s.createTask(t, token, gin.H{"title": "Buy milk", "description": "2 liters"})

	page := s.list(t, token, "")
	assert.Len(t, page.Tasks, 3)
	assert.Equal(t, models.Pagination{Page: 1, Limit: 50, Total: 3, Pages: 1}, page.Pagination)

	w, env = s.do(t, "PUT", "/tasks/"+second.ID.String(), token, gin.H{"status": "Completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Task updated successfully", env.Message)

	completed := s.list(t, token, "?status=Completed")
	require.Len(t, completed.Tasks, 1)
	assert.Equal(t, second.ID, completed.Tasks[0].ID)
	assert.Equal(t, "Call bank", completed.Tasks[0].Title)

	page = s.list(t, token, "")
	statuses := map[string]models.TaskStatus{}
	for _, task := range page.Tasks {
		statuses[task.ID.String()] = task.Status
	}
	assert.Equal(t, models.StatusCompleted, statuses[second.ID.String()], "cached list must be invalidated by update")

	w, env = s.do(t, "DELETE", "/tasks/"+first.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Task deleted successfully", env.Message)

	w, _ = s.do(t, "GET", "/tasks/"+first.ID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, "DELETE", "/tasks/"+first.ID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	page = s.list(t, token, "")
	assert.Equal(t, int64(2), page.Pagination.Total)
}

func TestOwnerIsolation(t *testing.T) {
	s := newTestServer(t, testConfig())

	alice := s.register(t, "Alice", "alice@example.com")
	bob := s.register(t, "Bob", "bob@example.com")

	task := s.createTask(t, alice.Token, gin.H{"title": "secret", "description": "alice only"})

	assert.Empty(t, s.list(t, bob.Token, "").Tasks)

	w, env := s.do(t, "GET", "/tasks/"+task.ID.String(), bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	notFoundMessage := env.Message

	w, env = s.do(t, "GET", "/tasks/00000000-0000-0000-0000-000000000000", bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, notFoundMessage, env.Message, "foreign and missing tasks are indistinguishable")

	w, _ = s.do(t, "PUT", "/tasks/"+task.ID.String(), bob.Token, gin.H{"title": "pwned"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, "DELETE", "/tasks/"+task.ID.String(), bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(t, "GET", "/tasks/"+task.ID.String(), alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"title":"secret"`)
}

func TestListPaginationAndSearch(t *testing.T) {
	s := newTestServer(t, testConfig())
	user := s.register(t, "Ada", "ada@example.com")

	for i := 0; i < 5; i++ {
		s.createTask(t, user.Token, gin.H{"title": fmt.Sprintf("task %d", i), "description": "plain"})
	}
	s.createTask(t, user.Token, gin.H{"title": "100% done", "description": "literal percent"})

	page := s.list(t, user.Token, "?limit=2&page=2")
	assert.Len(t, page.Tasks, 2)
	assert.Equal(t, models.Pagination{Page: 2, Limit: 2, Total: 6, Pages: 3}, page.Pagination)

	page = s.list(t, user.Token, "?limit=0")
	assert.Equal(t, 1, page.Pagination.Limit)
	assert.Equal(t, 6, page.Pagination.Pages)

	page = s.list(t, user.Token, "?limit=1000&page=-4")
	assert.Equal(t, 100, page.Pagination.Limit)
	assert.Equal(t, 1, page.Pagination.Page)

	page = s.list(t, user.Token, fmt.Sprintf("?page=%d&limit=100", math.MaxInt))
	assert.Empty(t, page.Tasks)
	assert.Equal(t, math.MaxInt/100, page.Pagination.Page)
	assert.Equal(t, int64(6), page.Pagination.Total)

	page = s.list(t, user.Token, "?search=%25")
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, "100% done", page.Tasks[0].Title)

	page = s.list(t, user.Token, "?status=bogus&priority=Urgent&sort=sideways")
	assert.Equal(t, int64(6), page.Pagination.Total)

	page = s.list(t, user.Token, "?page=9")
	assert.NotNil(t, page.Tasks)
	assert.Empty(t, page.Tasks)
}

func TestVersionedPrefix(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, env := s.do(t, "POST", "/api/v1/auth/register", "", gin.H{"name": "Ada", "email": "ada@example.com", "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code)
	var data authData
	require.NoError(t, json.Unmarshal(env.Data, &data))

	w, _ = s.do(t, "POST", "/api/v1/tasks", data.Token, gin.H{"title": "t", "description": "d"})
	assert.Equal(t, http.StatusCreated, w.Code)

	assert.Len(t, s.list(t, data.Token, "").Tasks, 1)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, path := range []string{"/tasks", "/auth/me", "/api/v1/tasks"} {
		w, env := s.do(t, "GET", path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.False(t, env.Success)
	}

	w, _ := s.do(t, "GET", "/tasks", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOperationalRoutes(t *testing.T) {
	s := newTestServer(t, testConfig())

	w, _ := s.do(t, "GET", "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Task Management REST API","version":"1.0.0"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w, _ = s.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, "GET", "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.redis.Close()
	w, _ = s.do(t, "GET", "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "cache outage degrades but does not fail readiness")
	assert.Contains(t, w.Body.String(), `"degraded"`)

	w, _ = s.do(t, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "taskboard_http_requests_total")
	assert.Contains(t, w.Body.String(), "taskboard_cache_misses_total")
}

func TestRedisOutageFallsThrough(t *testing.T) {
	s := newTestServer(t, testConfig())
	user := s.register(t, "Ada", "ada@example.com")

	s.redis.Close()

	s.createTask(t, user.Token, gin.H{"title": "t", "description": "d"})
	assert.Len(t, s.list(t, user.Token, "").Tasks, 1)
}

func TestRateLimitOnAuthRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstSize: 2}
	s := newTestServer(t, cfg)

	body := gin.H{"email": "nobody@example.com", "password": "password123"}
	for i := 0; i < 2; i++ {
		w, _ := s.do(t, "POST", "/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w, env := s.do(t, "POST", "/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.False(t, env.Success)
}

func TestRateLimitRunsBeforeAuthOnTaskRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstSize: 2}
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		w, _ := s.do(t, "GET", "/tasks", "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w, _ := s.do(t, "GET", "/tasks", "not-a-token", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, testConfig())

	req, _ := http.NewRequest("OPTIONS", "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
