// Todo HTTP handlers.
//
// This file exposes REST endpoints for todo resources:
//   - GET          /todos        (list, paginated, optional completed filter)
//   - GET          /todos/{id}   (read)
//   - POST         /todos        (create, optional Idempotency-Key)
//   - PUT | PATCH  /todos/{id}   (partial update)
//   - DELETE       /todos/{id}   (delete)
//
// Handlers are transport-thin: validated input arrives from ValidateCreate
// and ValidateUpdate, results leave through the success envelope, and every
// failure is handed to the error funnel with fail().
//
// Idempotency:
// If the client supplies an Idempotency-Key header on create and a live
// record exists for (method+route, key), the handler returns the todo created
// by the first request and sets `Idempotency-Replayed: true`. When that todo
// has since been deleted the request fails with NotFound until the record
// expires.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-todo-backend/internal/apperr"
	"github.com/tbourn/go-todo-backend/internal/domain"
	"github.com/tbourn/go-todo-backend/internal/http/middleware"
	"github.com/tbourn/go-todo-backend/internal/services"
	"github.com/tbourn/go-todo-backend/internal/utils"
)

// Success messages.
const (
	msgListed    = "Todos retrieved successfully"
	msgRetrieved = "Todo retrieved successfully"
	msgCreated   = "Todo created successfully"
	msgUpdated   = "Todo updated successfully"
	msgDeleted   = "Todo deleted successfully"
)

//
// Service contracts (context-aware)
//

// TodoService defines the todo operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TodoService interface {
	// List returns one page of todos and its pagination metadata.
	List(ctx context.Context, p services.ListParams) (*services.TodoPage, error)
	// Get returns the todo with id.
	Get(ctx context.Context, id string) (*domain.Todo, error)
	// Create persists a new todo.
	Create(ctx context.Context, in domain.NewTodo) (*domain.Todo, error)
	// Update merges patch onto the todo with id.
	Update(ctx context.Context, id string, patch domain.TodoPatch) (*domain.Todo, error)
	// Delete removes the todo with id.
	Delete(ctx context.Context, id string) (bool, error)
}

// IdempotencyStore records the outcome of keyed create requests.
type IdempotencyStore interface {
	Get(ctx context.Context, scope, key string, now time.Time) (*domain.Idempotency, error)
	Create(ctx context.Context, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error)
}

//
// Handler wiring
//

// Handlers groups the todo endpoints.
type Handlers struct {
	svc     TodoService
	idem    IdempotencyStore
	idemTTL time.Duration
}

// New constructs Handlers. idem may be nil, which disables create replay.
func New(svc TodoService, idem IdempotencyStore, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{svc: svc, idem: idem, idemTTL: idemTTL}
}

var errMissingInput = errors.New("validated input missing from context")

//
// Handlers
//

// ListTodos godoc
// @ID          listTodos
// @Summary     List todos (paginated)
// @Description Returns a page of todos, newest first, with pagination metadata.
// @Tags        Todos
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       page       query  int     false  "Page number (>= 1)"        default(1)
// @Param       limit      query  int     false  "Page size (1..100)"        default(10)
// @Param       completed  query  bool    false  "Filter by completion state"
//
// @Success     200  {object}  envelope.SuccessBody{data=services.TodoPage}
// @Failure     400  {object}  envelope.ErrorBody  "Bad pagination"
// @Failure     401  {object}  envelope.ErrorBody  "Missing or invalid API key"
// @Failure     500  {object}  envelope.ErrorBody  "Internal error"
// @Router      /todos [get]
func (h *Handlers) ListTodos(c *gin.Context) {
	completed, err := utils.ParseOptionalBool(c.Query("completed"))
	if err != nil {
		fail(c, apperr.BadRequest("Completed must be true or false"))
		return
	}
	p := services.ListParams{
		Page:      utils.AtoiDefault(c.Query("page"), services.DefaultPage),
		Limit:     utils.AtoiDefault(c.Query("limit"), services.DefaultLimit),
		Completed: completed,
	}

	page, err := h.svc.List(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, msgListed, page)
}

// GetTodo godoc
// @ID          getTodo
// @Summary     Get a todo
// @Tags        Todos
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       id   path  string  true  "Todo ID"
//
// @Success     200  {object}  envelope.SuccessBody{data=domain.Todo}
// @Failure     400  {object}  envelope.ErrorBody  "Invalid ID format"
// @Failure     401  {object}  envelope.ErrorBody  "Missing or invalid API key"
// @Failure     404  {object}  envelope.ErrorBody  "Todo not found"
// @Router      /todos/{id} [get]
func (h *Handlers) GetTodo(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, msgRetrieved, t)
}

// CreateTodo godoc
// @ID          createTodo
// @Summary     Create a todo
// @Description Supports idempotency via the Idempotency-Key header (same key → same todo).
// @Tags        Todos
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       Idempotency-Key  header  string                      false  "Idempotency key for safe retries"
// @Param       body             body    handlers.CreateTodoRequest  true   "Todo payload"
//
// @Success     201  {object}  envelope.SuccessBody{data=domain.Todo}
// @Failure     400  {object}  envelope.ErrorBody  "Malformed body or Idempotency-Key"
// @Failure     401  {object}  envelope.ErrorBody  "Missing or invalid API key"
// @Failure     413  {object}  envelope.ErrorBody  "Body too large"
// @Failure     422  {object}  envelope.ErrorBody  "Validation failed"
// @Router      /todos [post]
func (h *Handlers) CreateTodo(c *gin.Context) {
	ctx := c.Request.Context()
	in, found := createInput(c)
	if !found {
		fail(c, apperr.Internal(errMissingInput))
		return
	}

	key, keyed := middleware.GetIdempotencyKey(c)
	scope := middleware.IdempotencyScope(c)
	keyed = keyed && h.idem != nil

	// Replay path. A live record binds the key to its todo: if that todo is
	// gone the replay reports it instead of creating another one.
	if keyed {
		rec, err := h.idem.Get(ctx, scope, key, time.Now().UTC())
		switch {
		case err != nil:
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Str("scope", scope).Msg("idempotency lookup failed")
		case rec != nil:
			prev, err := h.svc.Get(ctx, rec.ResourceID)
			if err != nil {
				fail(c, err)
				return
			}
			lg := middleware.LoggerFrom(c)
			lg.Debug().Str("scope", scope).Bool("lookup_hit", middleware.IsReplay(c)).Msg("idempotent replay")
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, rec.Status, msgCreated, prev)
			return
		}
	}

	t, err := h.svc.Create(ctx, in)
	if err != nil {
		fail(c, err)
		return
	}

	// Store path, best effort.
	if keyed {
		if _, err := h.idem.Create(ctx, scope, key, t.ID, http.StatusCreated, h.idemTTL); err != nil {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Str("scope", scope).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusCreated, msgCreated, t)
}

// UpdateTodo godoc
// @ID          updateTodo
// @Summary     Update a todo
// @Description Merges the supplied fields; omitted fields are unchanged. PUT and PATCH behave the same.
// @Tags        Todos
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       id    path  string                      true  "Todo ID"
// @Param       body  body  handlers.UpdateTodoRequest  true  "Fields to change"
//
// @Success     200  {object}  envelope.SuccessBody{data=domain.Todo}
// @Failure     400  {object}  envelope.ErrorBody  "Invalid ID format"
// @Failure     401  {object}  envelope.ErrorBody  "Missing or invalid API key"
// @Failure     404  {object}  envelope.ErrorBody  "Todo not found"
// @Failure     422  {object}  envelope.ErrorBody  "Validation failed"
// @Router      /todos/{id} [put]
// @Router      /todos/{id} [patch]
func (h *Handlers) UpdateTodo(c *gin.Context) {
	patch, found := updateInput(c)
	if !found {
		fail(c, apperr.Internal(errMissingInput))
		return
	}
	t, err := h.svc.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, msgUpdated, t)
}

// DeleteTodo godoc
// @ID          deleteTodo
// @Summary     Delete a todo
// @Tags        Todos
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       id   path  string  true  "Todo ID"
//
// @Success     200  {object}  envelope.SuccessBody  "data is null"
// @Failure     400  {object}  envelope.ErrorBody    "Invalid ID format"
// @Failure     401  {object}  envelope.ErrorBody    "Missing or invalid API key"
// @Failure     404  {object}  envelope.ErrorBody    "Todo not found"
// @Router      /todos/{id} [delete]
func (h *Handlers) DeleteTodo(c *gin.Context) {
	if _, err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, msgDeleted, nil)
}

//
// DTOs (documentation only; bodies are decoded by the validation stage)
//

// CreateTodoRequest is the JSON payload for creating a todo.
type CreateTodoRequest struct {
	Title       string `json:"title"                 example:"Buy milk"`
	Description string `json:"description,omitempty" example:"Two litres"`
	Completed   bool   `json:"completed,omitempty"   example:"false"`
}

// UpdateTodoRequest is the JSON payload for updating a todo.
type UpdateTodoRequest struct {
	Title       *string `json:"title,omitempty"       example:"Buy oat milk"`
	Description *string `json:"description,omitempty" example:"One litre"`
	Completed   *bool   `json:"completed,omitempty"   example:"true"`
}
