// Package validation checks and normalizes incoming todo payloads.
//
// Each operation has its own schema: create requires a title, update makes
// every field optional. Validation never stops at the first problem; all
// violations are collected and reported in schema declaration order
// (title, description, completed). Unknown fields are dropped and string
// fields are trimmed and NFC-normalized before constraints are checked.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-todo-backend/internal/apperr"
	"github.com/tbourn/go-todo-backend/internal/domain"
)

// field kinds accepted by the schemas.
const (
	kindString = "string"
	kindBool   = "boolean"
)

// schemaField declares one payload member in declaration order.
type schemaField struct {
	name  string // JSON name
	label string // capitalized name used in messages
	kind  string
}

var todoFields = []schemaField{
	{name: "title", label: "Title", kind: kindString},
	{name: "description", label: "Description", kind: kindString},
	{name: "completed", label: "Completed", kind: kindBool},
}

// createSchema is the constraint view of a create payload.
type createSchema struct {
	Title       string `json:"title"       validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// updateSchema is the constraint view of an update payload.
type updateSchema struct {
	Title       *string `json:"title"       validate:"omitnil,min=1,max=100"`
	Description *string `json:"description" validate:"omitnil,max=500"`
}

// messages maps "field.tag" to the message for each schema.
var (
	createMessages = map[string]string{
		"title.required":  "Title is required",
		"title.max":       "Title cannot exceed 100 characters",
		"description.max": "Description cannot exceed 500 characters",
	}
	updateMessages = map[string]string{
		"title.min":       "Title cannot be empty",
		"title.max":       "Title cannot exceed 100 characters",
		"description.max": "Description cannot exceed 500 characters",
	}
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// payload holds the decoded, type-checked and normalized members.
type payload struct {
	title       *string
	description *string
	completed   *bool

	typeErrs map[string]apperr.FieldError
}

// CreateTodo validates a create payload.
func CreateTodo(raw []byte) (domain.NewTodo, error) {
	p, err := decode(raw)
	if err != nil {
		return domain.NewTodo{}, err
	}
	s := createSchema{Title: deref(p.title), Description: deref(p.description)}
	if err := report(p, validate.Struct(s), createMessages); err != nil {
		return domain.NewTodo{}, err
	}
	return domain.NewTodo{Title: s.Title, Description: s.Description, Completed: p.completed}, nil
}

// UpdateTodo validates an update payload.
func UpdateTodo(raw []byte) (domain.TodoPatch, error) {
	p, err := decode(raw)
	if err != nil {
		return domain.TodoPatch{}, err
	}
	s := updateSchema{Title: p.title, Description: p.description}
	if err := report(p, validate.Struct(s), updateMessages); err != nil {
		return domain.TodoPatch{}, err
	}
	return domain.TodoPatch{Title: p.title, Description: p.description, Completed: p.completed}, nil
}

// decode parses raw as a JSON object and type-checks known members. An empty
// body is treated as {}.
func decode(raw []byte) (*payload, error) {
	p := &payload{typeErrs: map[string]apperr.FieldError{}}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return p, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, apperr.BadRequest("Request body must be a JSON object")
		}
		return nil, apperr.BadRequest("Invalid JSON body")
	}

	for _, f := range todoFields {
		v, ok := obj[f.name]
		if !ok || string(v) == "null" {
			continue
		}
		switch f.kind {
		case kindString:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				p.typeErrs[f.name] = apperr.FieldError{Field: f.name, Message: f.label + " must be a string"}
				continue
			}
			s = normalize(s)
			if f.name == "title" {
				p.title = &s
			} else {
				p.description = &s
			}
		case kindBool:
			var b bool
			if err := json.Unmarshal(v, &b); err != nil {
				p.typeErrs[f.name] = apperr.FieldError{Field: f.name, Message: f.label + " must be a boolean"}
				continue
			}
			p.completed = &b
		}
	}
	return p, nil
}

// report merges type errors and constraint errors in declaration order.
func report(p *payload, verr error, messages map[string]string) error {
	byField := map[string][]apperr.FieldError{}
	var ves validator.ValidationErrors
	if errors.As(verr, &ves) {
		for _, fe := range ves {
			msg, ok := messages[fe.Field()+"."+fe.Tag()]
			if !ok {
				msg = fe.Field() + " is invalid"
			}
			byField[fe.Field()] = append(byField[fe.Field()], apperr.FieldError{Field: fe.Field(), Message: msg})
		}
	} else if verr != nil {
		return verr
	}

	var details []apperr.FieldError
	for _, f := range todoFields {
		if te, ok := p.typeErrs[f.name]; ok {
			details = append(details, te)
			continue
		}
		details = append(details, byField[f.name]...)
	}
	if len(details) == 0 {
		return nil
	}
	return apperr.Validation("Validation failed", details)
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
