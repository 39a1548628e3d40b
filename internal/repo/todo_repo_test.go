package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-todo-backend/internal/domain"
)

func seedTodo(t *testing.T, s *GormTodoStore, title string, completed bool, at time.Time) domain.Todo {
	t.Helper()
	td := domain.Todo{Title: title, Completed: completed, CreatedAt: at, UpdatedAt: at}
	if err := s.Insert(context.Background(), &td); err != nil {
		t.Fatalf("insert %q: %v", title, err)
	}
	return td
}

func TestGormTodoStore_InsertAndFindByID(t *testing.T) {
	s := NewGormTodoStore(newTestDB(t))
	now := time.Now().UTC().Truncate(time.Millisecond)

	td := seedTodo(t, s, "Buy milk", false, now)
	if _, err := uuid.Parse(td.ID); err != nil {
		t.Fatalf("expected uuid id, got %q", td.ID)
	}

	got, err := s.FindByID(context.Background(), td.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Title != "Buy milk" || got.Completed || !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected readback: %+v", got)
	}
}

func TestGormTodoStore_InsertRejectsInvalidRecord(t *testing.T) {
	s := NewGormTodoStore(newTestDB(t))
	td := domain.Todo{Title: strings.Repeat("a", 101)}
	var ve *domain.ValidationError
	if err := s.Insert(context.Background(), &td); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestGormTodoStore_FindByID_Errors(t *testing.T) {
	s := NewGormTodoStore(newTestDB(t))
	if _, err := s.FindByID(context.Background(), "abc"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := s.FindByID(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGormTodoStore_FindFilterSortPage(t *testing.T) {
	s := NewGormTodoStore(newTestDB(t))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"a", "b", "c", "d", "e"} {
		seedTodo(t, s, title, i%2 == 0, base.Add(time.Duration(i)*time.Minute))
	}
	ctx := context.Background()

	got, err := s.Find(ctx, domain.TodoQuery{
		Sort:  domain.TodoSort{Field: domain.SortByCreatedAt, Desc: true},
		Skip:  1,
		Limit: 2,
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 2 || got[0].Title != "d" || got[1].Title != "c" {
		t.Fatalf("unexpected page: %+v", got)
	}

	done := true
	got, err = s.Find(ctx, domain.TodoQuery{Filter: domain.TodoFilter{Completed: &done}, Sort: domain.TodoSort{Field: domain.SortByTitle}})
	if err != nil {
		t.Fatalf("Find filtered: %v", err)
	}
	if len(got) != 3 || got[0].Title != "a" || got[2].Title != "e" {
		t.Fatalf("unexpected filtered result: %+v", got)
	}

	n, err := s.Count(ctx, domain.TodoFilter{Completed: &done})
	if err != nil || n != 3 {
		t.Fatalf("Count completed = %d, %v", n, err)
	}
	n, err = s.Count(ctx, domain.TodoFilter{})
	if err != nil || n != 5 {
		t.Fatalf("Count all = %d, %v", n, err)
	}

	got, err = s.Find(ctx, domain.TodoQuery{Skip: 10, Limit: 10})
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice past the end, got %v, %v", got, err)
	}
}

func TestGormTodoStore_UpdateByID(t *testing.T) {
	s := NewGormTodoStore(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	td := seedTodo(t, s, "Buy milk", false, now)

	title := "Buy oat milk"
	done := true
	later := now.Add(time.Second)
	got, err := s.UpdateByID(ctx, td.ID, domain.TodoPatch{Title: &title, Completed: &done}, later)
	if err != nil {
		t.Fatalf("UpdateByID: %v", err)
	}
	if got.Title != title || !got.Completed || !got.UpdatedAt.Equal(later) || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected update result: %+v", got)
	}

	reread, _ := s.FindByID(ctx, td.ID)
	if reread.Title != title || !reread.UpdatedAt.Equal(later) {
		t.Fatalf("update not persisted: %+v", reread)
	}

	empty := ""
	var ve *domain.ValidationError
	if _, err := s.UpdateByID(ctx, td.ID, domain.TodoPatch{Title: &empty}, later); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := s.UpdateByID(ctx, uuid.NewString(), domain.TodoPatch{}, later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.UpdateByID(ctx, "nope", domain.TodoPatch{}, later); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestGormTodoStore_DeleteByID(t *testing.T) {
	s := NewGormTodoStore(newTestDB(t))
	ctx := context.Background()
	td := seedTodo(t, s, "x", false, time.Now().UTC())

	got, err := s.DeleteByID(ctx, td.ID)
	if err != nil || got.ID != td.ID {
		t.Fatalf("DeleteByID = %+v, %v", got, err)
	}
	if _, err := s.DeleteByID(ctx, td.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
	if _, err := s.DeleteByID(ctx, "bad-id"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}
