// Package services – TodoService
//
// This file implements the TodoService, which owns the todo lifecycle:
// paginated listing, lookup, creation, partial update and deletion. The
// service holds no state between calls; every operation re-fetches from or
// delegates to the TodoStore.
//
// Expected outcomes (not found, bad pagination) are returned as *apperr.Error
// so the error funnel can render them verbatim. Store-specific failures such
// as malformed identifiers, duplicate keys or store-level validation pass
// through untouched with a stack attached.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-todo-backend/internal/apperr"
	"github.com/tbourn/go-todo-backend/internal/domain"
	"github.com/tbourn/go-todo-backend/internal/repo"
)

// Pagination bounds.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// TodoStore is the document store contract the service depends on. The GORM
// and Mongo stores in package repo both satisfy it.
type TodoStore interface {
	// Find returns the todos matching q.
	Find(ctx context.Context, q domain.TodoQuery) ([]domain.Todo, error)

	// Count returns how many todos match f.
	Count(ctx context.Context, f domain.TodoFilter) (int64, error)

	// FindByID returns repo.ErrNotFound when the todo does not exist.
	FindByID(ctx context.Context, id string) (*domain.Todo, error)

	// Insert assigns the identifier and persists t.
	Insert(ctx context.Context, t *domain.Todo) error

	// UpdateByID applies patch, stamps updated_at and returns the result.
	UpdateByID(ctx context.Context, id string, patch domain.TodoPatch, at time.Time) (*domain.Todo, error)

	// DeleteByID removes the todo and returns it.
	DeleteByID(ctx context.Context, id string) (*domain.Todo, error)
}

// TodoService provides the todo operations exposed over HTTP.
type TodoService struct {
	Store TodoStore

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewTodoService constructs a TodoService over store.
func NewTodoService(store TodoStore) *TodoService {
	return &TodoService{Store: store, Now: time.Now}
}

// ListParams selects one page of todos. Completed, when set, filters by status.
type ListParams struct {
	Page      int
	Limit     int
	Completed *bool
}

// Pagination describes the position of a page within the full result set.
type Pagination struct {
	Total       int64 `json:"total"         example:"42"`
	Page        int   `json:"page"          example:"1"`
	Limit       int   `json:"limit"         example:"10"`
	TotalPages  int   `json:"total_pages"   example:"5"`
	HasNextPage bool  `json:"has_next_page" example:"true"`
	HasPrevPage bool  `json:"has_prev_page" example:"false"`
}

// TodoPage is a page of todos plus its pagination metadata.
type TodoPage struct {
	Todos      []domain.Todo `json:"todos"`
	Pagination Pagination    `json:"pagination"`
}

// NewPagination derives the pagination metadata for total records.
func NewPagination(total int64, page, limit int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// List returns one page of todos, newest first. The page query and the count
// run concurrently; if either fails the whole call fails.
func (s *TodoService) List(ctx context.Context, p ListParams) (*TodoPage, error) {
	if p.Page < 1 {
		return nil, apperr.BadRequest("Page must be a positive integer")
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return nil, apperr.BadRequest(fmt.Sprintf("Limit must be between 1 and %d", MaxLimit))
	}

	filter := domain.TodoFilter{Completed: p.Completed}
	q := domain.TodoQuery{
		Filter: filter,
		Sort:   domain.TodoSort{Field: domain.SortByCreatedAt, Desc: true},
		Skip:   (p.Page - 1) * p.Limit,
		Limit:  p.Limit,
	}

	var (
		todos []domain.Todo
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		todos, err = s.Store.Find(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.Store.Count(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.WithStack(err)
	}
	if todos == nil {
		todos = []domain.Todo{}
	}

	return &TodoPage{Todos: todos, Pagination: NewPagination(total, p.Page, p.Limit)}, nil
}

// Get returns the todo with id.
func (s *TodoService) Get(ctx context.Context, id string) (*domain.Todo, error) {
	t, err := s.Store.FindByID(ctx, id)
	if err := notFound(id, t, err); err != nil {
		return nil, err
	}
	return t, nil
}

// Create persists a new todo built from validated input.
func (s *TodoService) Create(ctx context.Context, in domain.NewTodo) (*domain.Todo, error) {
	now := s.now()
	t := &domain.Todo{
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Completed != nil {
		t.Completed = *in.Completed
	}
	if err := s.Store.Insert(ctx, t); err != nil {
		return nil, errors.WithStack(err)
	}
	return t, nil
}

// Update merges patch onto the todo with id. UpdatedAt always moves forward,
// even when two updates land within the same millisecond.
func (s *TodoService) Update(ctx context.Context, id string, patch domain.TodoPatch) (*domain.Todo, error) {
	cur, err := s.Store.FindByID(ctx, id)
	if err := notFound(id, cur, err); err != nil {
		return nil, err
	}

	at := s.now()
	if floor := cur.UpdatedAt.Add(time.Millisecond); at.Before(floor) {
		at = floor
	}

	t, err := s.Store.UpdateByID(ctx, id, patch, at)
	if err := notFound(id, t, err); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes the todo with id and reports success.
func (s *TodoService) Delete(ctx context.Context, id string) (bool, error) {
	t, err := s.Store.DeleteByID(ctx, id)
	if err := notFound(id, t, err); err != nil {
		return false, err
	}
	return true, nil
}

func (s *TodoService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC().Truncate(time.Millisecond)
	}
	return s.Now().UTC().Truncate(time.Millisecond)
}

// notFound folds store misses into the NotFound kind; a nil record with no
// error counts as a miss.
func notFound(id string, t *domain.Todo, err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound), err == nil && t == nil:
		return apperr.NotFound(fmt.Sprintf("Todo with ID %s not found", id))
	case err != nil:
		return errors.WithStack(err)
	}
	return nil
}
