// Package repo implements the document-store collaborators of the API.
//
// Two families of stores satisfy the same contract:
//   - GORM stores (SQLite via glebarez/sqlite, PostgreSQL via gorm's pgx
//     driver) for self-contained deployments and tests;
//   - Mongo stores (go.mongodb.org/mongo-driver) for the document database
//     the API was designed around.
//
// Error semantics shared by every store:
//   - ErrNotFound when an identifier-addressed record does not exist;
//   - ErrInvalidID when the identifier cannot be parsed by the store;
//   - *DuplicateKeyError on a uniqueness violation, naming the field;
//   - *domain.ValidationError when a record fails its schema on write;
//   - any other driver error is returned as is.
package repo

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrInvalidID is returned when an identifier does not match the store's
// identifier format.
var ErrInvalidID = errors.New("invalid identifier")

// ErrDuplicate indicates a uniqueness violation whose field is unknown.
var ErrDuplicate = errors.New("duplicate")

// DuplicateKeyError reports a uniqueness violation on Field.
type DuplicateKeyError struct {
	Field string
	Err   error
}

func (e *DuplicateKeyError) Error() string { return "duplicate key on " + e.Field }

// Unwrap lets errors.Is(err, ErrDuplicate) match.
func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicate }

var (
	// "UNIQUE constraint failed: todos.title" (sqlite)
	sqliteUniqueRE = regexp.MustCompile(`(?i)unique constraint failed: [\w]+\.(\w+)`)
	// "Key (title)=(x) already exists." (postgres detail)
	pgKeyRE = regexp.MustCompile(`Key \(([^)]+)\)=`)
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// translateGormErr maps driver errors onto the package's error semantics.
func translateGormErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		field := "key"
		if m := pgKeyRE.FindStringSubmatch(pgErr.Detail); m != nil {
			field = m[1]
		}
		return &DuplicateKeyError{Field: field, Err: err}
	}

	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	if m := sqliteUniqueRE.FindStringSubmatch(err.Error()); m != nil {
		return &DuplicateKeyError{Field: m[1], Err: err}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(low, "constraint failed: unique") {
		return &DuplicateKeyError{Field: "key", Err: err}
	}
	return err
}
