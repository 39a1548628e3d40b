// Package domain defines the persistence models of the todo API. The types
// carry GORM tags for the relational stores; the Mongo store maps them onto
// its own BSON documents.
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits shared by request validation and store-level validation.
const (
	TitleMaxLen       = 100
	DescriptionMaxLen = 500
)

// Todo is a single task record.
//
// Fields:
//   - ID: store-assigned identifier (UUID for SQL stores, ObjectID hex for Mongo).
//   - Title: required, 1..100 runes after trimming.
//   - Description: optional, at most 500 runes.
//   - Completed: defaults to false.
//   - CreatedAt / UpdatedAt: UTC, millisecond precision; UpdatedAt >= CreatedAt.
type Todo struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"             example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Title       string    `json:"title"       gorm:"type:varchar(100);not null"           example:"Buy milk"`
	Description string    `json:"description" gorm:"type:varchar(500);not null;default:''" example:"Two litres, semi-skimmed"`
	Completed   bool      `json:"completed"   gorm:"not null;default:false;index"`
	CreatedAt   time.Time `json:"created_at"  gorm:"index"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Todo.
func (Todo) TableName() string { return "todos" }

// NewTodo is the validated input of a create operation.
type NewTodo struct {
	Title       string
	Description string
	Completed   *bool
}

// TodoPatch is a partial update; nil fields are left unchanged.
type TodoPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}

// IsEmpty reports whether the patch changes no field.
func (p TodoPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil
}

// Apply merges the patch onto t.
func (p TodoPatch) Apply(t *Todo) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
}

// Validate checks the patched fields only.
func (p TodoPatch) Validate() error {
	var v ValidationError
	if p.Title != nil {
		v.add(checkTitle(*p.Title))
	}
	if p.Description != nil {
		v.add(checkDescription(*p.Description))
	}
	return v.errOrNil()
}

// Validate enforces the record invariants at write time, independently of
// request validation.
func (t *Todo) Validate() error {
	var v ValidationError
	v.add(checkTitle(t.Title))
	v.add(checkDescription(t.Description))
	if !t.CreatedAt.IsZero() && t.UpdatedAt.Before(t.CreatedAt) {
		v.add(&FieldViolation{Field: "updated_at", Message: "updated_at must not precede created_at"})
	}
	return v.errOrNil()
}

func checkTitle(s string) *FieldViolation {
	switch n := utf8.RuneCountInString(strings.TrimSpace(s)); {
	case n == 0:
		return &FieldViolation{Field: "title", Message: "Title is required"}
	case n > TitleMaxLen:
		return &FieldViolation{Field: "title", Message: fmt.Sprintf("Title cannot exceed %d characters", TitleMaxLen)}
	}
	return nil
}

func checkDescription(s string) *FieldViolation {
	if utf8.RuneCountInString(s) > DescriptionMaxLen {
		return &FieldViolation{Field: "description", Message: fmt.Sprintf("Description cannot exceed %d characters", DescriptionMaxLen)}
	}
	return nil
}

// FieldViolation is one failed store-level constraint.
type FieldViolation struct {
	Field   string
	Message string
}

// ValidationError is returned by stores when a record fails its schema on
// write.
type ValidationError struct {
	Fields []FieldViolation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(f *FieldViolation) {
	if f != nil {
		e.Fields = append(e.Fields, *f)
	}
}

func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
