// Package repo implements the data persistence layer for domain entities.
// This file provides the GORM-backed todo store.
//
// All methods are context-aware and follow the "thin repository" approach:
// no business rules beyond the record's own schema check on write.
//
// Identifiers are UUIDs generated by the store on Insert; any identifier that
// is not a UUID yields ErrInvalidID without touching the database.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-todo-backend/internal/domain"
)

// GormTodoStore persists todos through GORM (SQLite or PostgreSQL).
type GormTodoStore struct {
	DB *gorm.DB
}

// NewGormTodoStore returns a store bound to db.
func NewGormTodoStore(db *gorm.DB) *GormTodoStore {
	return &GormTodoStore{DB: db}
}

// sortColumns whitelists the columns a query may order by.
var sortColumns = map[domain.SortField]string{
	domain.SortByCreatedAt: "created_at",
	domain.SortByUpdatedAt: "updated_at",
	domain.SortByTitle:     "title",
}

func applyFilter(tx *gorm.DB, f domain.TodoFilter) *gorm.DB {
	if f.Completed != nil {
		tx = tx.Where("completed = ?", *f.Completed)
	}
	return tx
}

// Find returns the todos matching q. The id column breaks ties so paging is
// stable when timestamps collide.
func (s *GormTodoStore) Find(ctx context.Context, q domain.TodoQuery) ([]domain.Todo, error) {
	col, ok := sortColumns[q.Sort.Field]
	if !ok {
		col = "created_at"
	}
	tx := applyFilter(s.DB.WithContext(ctx).Model(&domain.Todo{}), q.Filter).
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: q.Sort.Desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: q.Sort.Desc})
	if q.Skip > 0 {
		tx = tx.Offset(q.Skip)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	out := []domain.Todo{}
	if err := tx.Find(&out).Error; err != nil {
		return nil, translateGormErr(err)
	}
	return out, nil
}

// Count returns the number of todos matching f.
func (s *GormTodoStore) Count(ctx context.Context, f domain.TodoFilter) (int64, error) {
	var total int64
	err := applyFilter(s.DB.WithContext(ctx).Model(&domain.Todo{}), f).Count(&total).Error
	return total, translateGormErr(err)
}

// FindByID fetches one todo, or ErrNotFound.
func (s *GormTodoStore) FindByID(ctx context.Context, id string) (*domain.Todo, error) {
	if !validUUID(id) {
		return nil, ErrInvalidID
	}
	var t domain.Todo
	if err := s.DB.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translateGormErr(err)
	}
	return &t, nil
}

// Insert assigns a UUID to t, checks its schema and persists it.
func (s *GormTodoStore) Insert(ctx context.Context, t *domain.Todo) error {
	t.ID = uuid.NewString()
	if err := t.Validate(); err != nil {
		return err
	}
	return translateGormErr(s.DB.WithContext(ctx).Create(t).Error)
}

// UpdateByID merges patch into the stored todo, stamps UpdatedAt with at,
// re-validates the merged record and returns it.
func (s *GormTodoStore) UpdateByID(ctx context.Context, id string, patch domain.TodoPatch, at time.Time) (*domain.Todo, error) {
	if !validUUID(id) {
		return nil, ErrInvalidID
	}
	var out domain.Todo
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out, "id = ?", id).Error; err != nil {
			return err
		}
		patch.Apply(&out)
		out.UpdatedAt = at
		if err := out.Validate(); err != nil {
			return err
		}
		res := tx.Model(&domain.Todo{}).
			Where("id = ?", id).
			UpdateColumns(map[string]any{
				"title":       out.Title,
				"description": out.Description,
				"completed":   out.Completed,
				"updated_at":  out.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, translateGormErr(err)
	}
	return &out, nil
}

// DeleteByID removes a todo and returns the removed record, or ErrNotFound.
func (s *GormTodoStore) DeleteByID(ctx context.Context, id string) (*domain.Todo, error) {
	if !validUUID(id) {
		return nil, ErrInvalidID
	}
	var out domain.Todo
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out, "id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Todo{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, translateGormErr(err)
	}
	return &out, nil
}

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
