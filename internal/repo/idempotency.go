// Package repo implements the data persistence layer for domain entities.
// This file provides the GORM store for Idempotency records used to
// implement safe-retry semantics for POST /todos.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-todo-backend/internal/domain"
)

// GormIdempotencyStore keeps idempotency records in a relational table.
type GormIdempotencyStore struct {
	DB *gorm.DB
}

// NewGormIdempotencyStore returns a store bound to db.
func NewGormIdempotencyStore(db *gorm.DB) *GormIdempotencyStore {
	return &GormIdempotencyStore{DB: db}
}

// Get returns a non-expired record for (scope, key) or ErrNotFound.
func (s *GormIdempotencyStore) Get(ctx context.Context, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := s.DB.WithContext(ctx).
		Where("scope = ? AND key = ? AND expires_at > ?", scope, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a record and returns ErrDuplicate when (scope, key) is taken.
// An expired record holding the same pair is replaced.
func (s *GormIdempotencyStore) Create(ctx context.Context, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scope = ? AND key = ? AND expires_at <= ?", scope, key, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if errors.Is(translateGormErr(err), ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// Purge removes records that expired before now and reports how many.
func (s *GormIdempotencyStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
