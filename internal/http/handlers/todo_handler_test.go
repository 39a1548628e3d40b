package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-todo-backend/internal/domain"
	"github.com/tbourn/go-todo-backend/internal/http/envelope"
	"github.com/tbourn/go-todo-backend/internal/http/middleware"
	"github.com/tbourn/go-todo-backend/internal/repo"
	"github.com/tbourn/go-todo-backend/internal/services"
)

const testAPIKey = "test-key"

// ---------- test wiring ----------

type successEnv struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func silenceLogs(t *testing.T) {
	t.Helper()
	prev := log.Logger
	log.Logger = zerolog.Nop()
	t.Cleanup(func() { log.Logger = prev })
}

// mount wires the todo routes the same way the router does, minus the
// transport-level middleware that is tested elsewhere.
func mount(t *testing.T, svc TodoService, idem IdempotencyStore, extra ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	silenceLogs(t)

	h := New(svc, idem, time.Hour)
	r := gin.New()
	r.Use(middleware.ErrorFunnel(middleware.FunnelOptions{}))
	r.Use(extra...)
	r.GET("/health", Health)

	api := r.Group("/api/v1",
		middleware.APIKey("", testAPIKey),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil),
	)
	api.GET("/todos", h.ListTodos)
	api.GET("/todos/:id", h.GetTodo)
	api.POST("/todos", ValidateCreate(), h.CreateTodo)
	api.PUT("/todos/:id", ValidateUpdate(), h.UpdateTodo)
	api.PATCH("/todos/:id", ValidateUpdate(), h.UpdateTodo)
	api.DELETE("/todos/:id", h.DeleteTodo)
	return r
}

// newSQLiteAPI builds the full stack over a file-backed SQLite database.
func newSQLiteAPI(t *testing.T, extra ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "todos.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	svc := services.NewTodoService(repo.NewGormTodoStore(db))
	return mount(t, svc, repo.NewGormIdempotencyStore(db), extra...)
}

func do(r *gin.Engine, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.DefaultAPIKeyHeader, testAPIKey)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeOK(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, out any) successEnv {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d: %s", w.Code, wantStatus, w.Body.String())
	}
	var env successEnv
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Success || env.Status != wantStatus {
		t.Fatalf("bad envelope: %+v", env)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) envelope.ErrorBody {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d: %s", w.Code, wantStatus, w.Body.String())
	}
	var body envelope.ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Status != wantStatus || body.Error.Code != wantCode {
		t.Fatalf("bad error envelope: %+v", body)
	}
	return body
}

func createTodo(t *testing.T, r *gin.Engine, body string) domain.Todo {
	t.Helper()
	var td domain.Todo
	decodeOK(t, do(r, http.MethodPost, "/api/v1/todos", body), http.StatusCreated, &td)
	return td
}

// ---------- scenarios ----------

func TestCreateTodo_DefaultsAndEnvelope(t *testing.T) {
	r := newSQLiteAPI(t)

	w := do(r, http.MethodPost, "/api/v1/todos", `{"title":"  Buy milk  ","extra":"dropped"}`)
	var td domain.Todo
	env := decodeOK(t, w, http.StatusCreated, &td)
	if env.Message != "Todo created successfully" {
		t.Fatalf("message = %q", env.Message)
	}
	if td.ID == "" || td.Title != "Buy milk" || td.Description != "" || td.Completed {
		t.Fatalf("unexpected todo: %+v", td)
	}
	if !td.CreatedAt.Equal(td.UpdatedAt) {
		t.Fatalf("created_at %v != updated_at %v", td.CreatedAt, td.UpdatedAt)
	}
	if strings.Contains(string(env.Data), "extra") {
		t.Fatal("unknown field leaked into the record")
	}

	other := createTodo(t, r, `{"title":"Walk dog","completed":true}`)
	if other.ID == td.ID || !other.Completed {
		t.Fatalf("unexpected second todo: %+v", other)
	}
}

func TestCreateTodo_ReportsEveryViolation(t *testing.T) {
	r := newSQLiteAPI(t)

	body := fmt.Sprintf(`{"title":"","description":%q,"completed":"yes"}`, strings.Repeat("d", 501))
	e := decodeErr(t, do(r, http.MethodPost, "/api/v1/todos", body), http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	raw, _ := json.Marshal(e.Error.Details)
	var details []struct{ Field, Message string }
	_ = json.Unmarshal(raw, &details)
	want := []string{"title", "description", "completed"}
	if len(details) != len(want) {
		t.Fatalf("details = %+v", details)
	}
	for i, f := range want {
		if details[i].Field != f {
			t.Fatalf("details[%d].Field = %q, want %q", i, details[i].Field, f)
		}
	}

	var page services.TodoPage
	decodeOK(t, do(r, http.MethodGet, "/api/v1/todos", ""), http.StatusOK, &page)
	if page.Pagination.Total != 0 {
		t.Fatal("rejected payload must not be stored")
	}
}

func TestCreateTodo_MalformedAndOversizedBodies(t *testing.T) {
	limit := func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 64)
		c.Next()
	}
	r := newSQLiteAPI(t, limit)

	e := decodeErr(t, do(r, http.MethodPost, "/api/v1/todos", `{"title":`), http.StatusBadRequest, "BAD_REQUEST")
	if e.Error.Message != "Invalid JSON body" {
		t.Fatalf("message = %q", e.Error.Message)
	}
	decodeErr(t, do(r, http.MethodPost, "/api/v1/todos", `["x"]`), http.StatusBadRequest, "BAD_REQUEST")

	big := fmt.Sprintf(`{"title":%q}`, strings.Repeat("t", 100))
	decodeErr(t, do(r, http.MethodPost, "/api/v1/todos", big), http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE")
}

func TestGetTodo_DeletedAndInvalid(t *testing.T) {
	r := newSQLiteAPI(t)
	td := createTodo(t, r, `{"title":"Temp"}`)
	path := "/api/v1/todos/" + td.ID

	var got domain.Todo
	decodeOK(t, do(r, http.MethodGet, path, ""), http.StatusOK, &got)
	if got.ID != td.ID || got.Title != "Temp" {
		t.Fatalf("unexpected todo: %+v", got)
	}

	env := decodeOK(t, do(r, http.MethodDelete, path, ""), http.StatusOK, nil)
	if env.Message != "Todo deleted successfully" || string(env.Data) != "null" {
		t.Fatalf("unexpected delete envelope: %+v", env)
	}

	e := decodeErr(t, do(r, http.MethodGet, path, ""), http.StatusNotFound, "NOT_FOUND")
	if e.Error.Message != fmt.Sprintf("Todo with ID %s not found", td.ID) {
		t.Fatalf("message = %q", e.Error.Message)
	}
	decodeErr(t, do(r, http.MethodDelete, path, ""), http.StatusNotFound, "NOT_FOUND")

	decodeErr(t, do(r, http.MethodGet, "/api/v1/todos/not-an-id", ""), http.StatusBadRequest, "INVALID_ID")
}

func TestUpdateTodo_PartialMergeAndMonotonicTimestamps(t *testing.T) {
	r := newSQLiteAPI(t)
	td := createTodo(t, r, `{"title":"Read book","description":"chapter 1"}`)
	path := "/api/v1/todos/" + td.ID

	var upd domain.Todo
	env := decodeOK(t, do(r, http.MethodPatch, path, `{"completed":true}`), http.StatusOK, &upd)
	if env.Message != "Todo updated successfully" {
		t.Fatalf("message = %q", env.Message)
	}
	if !upd.Completed || upd.Title != "Read book" || upd.Description != "chapter 1" {
		t.Fatalf("unexpected merge: %+v", upd)
	}
	if !upd.UpdatedAt.After(td.UpdatedAt) || !upd.CreatedAt.Equal(td.CreatedAt) {
		t.Fatalf("timestamps: before=%+v after=%+v", td, upd)
	}

	var again domain.Todo
	decodeOK(t, do(r, http.MethodPut, path, `{}`), http.StatusOK, &again)
	if !again.UpdatedAt.After(upd.UpdatedAt) {
		t.Fatal("updated_at must strictly increase on every update")
	}

	e := decodeErr(t, do(r, http.MethodPut, path, `{"title":"   "}`), http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	if e.Error.Message != "Validation failed" {
		t.Fatalf("message = %q", e.Error.Message)
	}

	decodeErr(t, do(r, http.MethodPatch, "/api/v1/todos/00000000-0000-4000-8000-000000000000", `{"title":"x"}`), http.StatusNotFound, "NOT_FOUND")
}

func TestListTodos_PaginationFilterAndBounds(t *testing.T) {
	r := newSQLiteAPI(t)
	for i := 0; i < 3; i++ {
		createTodo(t, r, fmt.Sprintf(`{"title":"t%d","completed":%t}`, i, i == 0))
	}

	var page services.TodoPage
	env := decodeOK(t, do(r, http.MethodGet, "/api/v1/todos?page=1&limit=2", ""), http.StatusOK, &page)
	if env.Message != "Todos retrieved successfully" {
		t.Fatalf("message = %q", env.Message)
	}
	want := services.Pagination{Total: 3, Page: 1, Limit: 2, TotalPages: 2, HasNextPage: true}
	if len(page.Todos) != 2 || page.Pagination != want {
		t.Fatalf("page = %+v", page)
	}

	decodeOK(t, do(r, http.MethodGet, "/api/v1/todos?completed=true", ""), http.StatusOK, &page)
	if page.Pagination.Total != 1 || page.Pagination.Limit != services.DefaultLimit || page.Todos[0].Title != "t0" {
		t.Fatalf("filtered page = %+v", page)
	}

	decodeOK(t, do(r, http.MethodGet, "/api/v1/todos?page=9", ""), http.StatusOK, &page)
	if len(page.Todos) != 0 || !page.Pagination.HasPrevPage || page.Pagination.HasNextPage {
		t.Fatalf("out-of-range page = %+v", page)
	}

	cases := []struct{ query, msg string }{
		{"page=0", "Page must be a positive integer"},
		{"limit=0", "Limit must be between 1 and 100"},
		{"limit=101", "Limit must be between 1 and 100"},
		{"completed=maybe", "Completed must be true or false"},
	}
	for _, tc := range cases {
		e := decodeErr(t, do(r, http.MethodGet, "/api/v1/todos?"+tc.query, ""), http.StatusBadRequest, "BAD_REQUEST")
		if e.Error.Message != tc.msg {
			t.Fatalf("%s: message = %q", tc.query, e.Error.Message)
		}
	}
}

func TestCreateTodo_IdempotentReplay(t *testing.T) {
	r := newSQLiteAPI(t)

	w1 := do(r, http.MethodPost, "/api/v1/todos", `{"title":"Pay rent"}`, middleware.HeaderIdempotencyKey, "rent-2025-01")
	var first domain.Todo
	decodeOK(t, w1, http.StatusCreated, &first)
	if w1.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatal("first request must not be marked as replay")
	}

	w2 := do(r, http.MethodPost, "/api/v1/todos", `{"title":"Pay rent"}`, middleware.HeaderIdempotencyKey, "rent-2025-01")
	var second domain.Todo
	decodeOK(t, w2, http.StatusCreated, &second)
	if w2.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" || second.ID != first.ID {
		t.Fatalf("expected replay of %s, got %s (header %q)", first.ID, second.ID, w2.Header().Get(middleware.HeaderIdempotencyReplayed))
	}

	createTodo(t, r, `{"title":"Pay rent"}`)
	var page services.TodoPage
	decodeOK(t, do(r, http.MethodGet, "/api/v1/todos", ""), http.StatusOK, &page)
	if page.Pagination.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Pagination.Total)
	}
}

func TestCreateTodo_ReplayOfDeletedTodoIsNotFound(t *testing.T) {
	r := newSQLiteAPI(t)
	key := []string{middleware.HeaderIdempotencyKey, "gym-monday"}

	var first domain.Todo
	decodeOK(t, do(r, http.MethodPost, "/api/v1/todos", `{"title":"Gym"}`, key...), http.StatusCreated, &first)
	decodeOK(t, do(r, http.MethodDelete, "/api/v1/todos/"+first.ID, ""), http.StatusOK, nil)

	for i := 0; i < 2; i++ {
		w := do(r, http.MethodPost, "/api/v1/todos", `{"title":"Gym"}`, key...)
		body := decodeErr(t, w, http.StatusNotFound, "NOT_FOUND")
		if body.Error.Message != "Todo with ID "+first.ID+" not found" {
			t.Fatalf("retry %d: unexpected message %q", i, body.Error.Message)
		}
	}

	var page services.TodoPage
	decodeOK(t, do(r, http.MethodGet, "/api/v1/todos", ""), http.StatusOK, &page)
	if page.Pagination.Total != 0 {
		t.Fatalf("retries must not create todos, total = %d", page.Pagination.Total)
	}
}

// brokenIdem fails every lookup; creates still go through.
type brokenIdem struct{ creates int }

func (b *brokenIdem) Get(context.Context, string, string, time.Time) (*domain.Idempotency, error) {
	return nil, errors.New("idempotency store offline")
}

func (b *brokenIdem) Create(context.Context, string, string, string, int, time.Duration) (*domain.Idempotency, error) {
	b.creates++
	return nil, errors.New("idempotency store offline")
}

func TestCreateTodo_IdempotencyStoreDownStillCreates(t *testing.T) {
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "todos.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	idem := &brokenIdem{}
	r := mount(t, services.NewTodoService(repo.NewGormTodoStore(db)), idem)

	w := do(r, http.MethodPost, "/api/v1/todos", `{"title":"Call mum"}`, middleware.HeaderIdempotencyKey, "mum-1")
	decodeOK(t, w, http.StatusCreated, nil)
	if idem.creates != 1 || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatalf("creates=%d replayed=%q", idem.creates, w.Header().Get(middleware.HeaderIdempotencyReplayed))
	}
}

// ---------- gate and wiring ----------

// countingService records every call; it must stay untouched behind the gate.
type countingService struct{ calls int }

func (s *countingService) List(context.Context, services.ListParams) (*services.TodoPage, error) {
	s.calls++
	return &services.TodoPage{Todos: []domain.Todo{}}, nil
}

func (s *countingService) Get(context.Context, string) (*domain.Todo, error) {
	s.calls++
	return &domain.Todo{}, nil
}

func (s *countingService) Create(context.Context, domain.NewTodo) (*domain.Todo, error) {
	s.calls++
	return &domain.Todo{}, nil
}

func (s *countingService) Update(context.Context, string, domain.TodoPatch) (*domain.Todo, error) {
	s.calls++
	return &domain.Todo{}, nil
}

func (s *countingService) Delete(context.Context, string) (bool, error) {
	s.calls++
	return true, nil
}

func TestUnauthorized_ServiceNeverInvoked(t *testing.T) {
	svc := &countingService{}
	r := mount(t, svc, nil)

	reqs := []struct{ method, path, body string }{
		{http.MethodGet, "/api/v1/todos", ""},
		{http.MethodGet, "/api/v1/todos/1", ""},
		{http.MethodPost, "/api/v1/todos", `{"title":"x"}`},
		{http.MethodPut, "/api/v1/todos/1", `{}`},
		{http.MethodDelete, "/api/v1/todos/1", ""},
	}
	for _, rq := range reqs {
		req := httptest.NewRequest(rq.method, rq.path, strings.NewReader(rq.body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		e := decodeErr(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
		if e.Error.Message != "Invalid or missing API key" {
			t.Fatalf("message = %q", e.Error.Message)
		}
	}
	if svc.calls != 0 {
		t.Fatalf("service invoked %d times", svc.calls)
	}

	decodeOK(t, do(r, http.MethodGet, "/api/v1/todos", ""), http.StatusOK, nil)
	if svc.calls != 1 {
		t.Fatalf("service calls = %d, want 1", svc.calls)
	}
}

func TestHandlers_MissingValidatedInput(t *testing.T) {
	gin.SetMode(gin.TestMode)
	silenceLogs(t)
	h := New(&countingService{}, nil, 0)
	r := gin.New()
	r.Use(middleware.ErrorFunnel(middleware.FunnelOptions{}))
	r.POST("/todos", h.CreateTodo)
	r.PATCH("/todos/:id", h.UpdateTodo)

	for _, rq := range []struct{ method, path string }{{http.MethodPost, "/todos"}, {http.MethodPatch, "/todos/1"}} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(rq.method, rq.path, strings.NewReader(`{}`)))
		e := decodeErr(t, w, http.StatusInternalServerError, "SERVER_ERROR")
		if e.Error.Message != "Internal server error" {
			t.Fatalf("message = %q", e.Error.Message)
		}
	}
}

func TestHealth(t *testing.T) {
	r := mount(t, &countingService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var hs HealthStatus
	env := decodeOK(t, w, http.StatusOK, &hs)
	if env.Message != "Service is healthy" || hs.Status != "UP" || hs.Service != ServiceName {
		t.Fatalf("unexpected health: %+v %+v", env, hs)
	}
	if _, err := time.Parse(time.RFC3339, hs.Timestamp); err != nil {
		t.Fatalf("timestamp %q: %v", hs.Timestamp, err)
	}
}
