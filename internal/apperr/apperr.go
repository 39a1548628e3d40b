// Package apperr defines the operational error taxonomy of the API.
//
// Every failure that reaches a client is an *Error tagged with a Kind. The
// Kind alone decides the HTTP status and the stable machine-readable code, so
// adding a kind means adding one case to kindInfo and nothing else.
//
// Conventions:
//   - Codes are UPPER_SNAKE_CASE and never change once published.
//   - Messages are safe to show to API consumers.
//   - Details is optional: a []FieldError for validation failures, a string
//     for duplicate keys, nil otherwise.
//
// Constructors record a stack trace (github.com/pkg/errors) so the error
// funnel can log where a failure was raised.
package apperr

import (
	"errors"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// Kind tags an Error with one entry of the taxonomy.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
	KindValidation
	KindConflict
	KindInvalidID
	KindPayloadTooLarge
	KindTooManyRequests
)

// Stable error codes.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeDuplicateKey    = "DUPLICATE_KEY"
	CodeInvalidID       = "INVALID_ID"
	CodeServerError     = "SERVER_ERROR"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeRateLimited     = "RATE_LIMITED"
)

// kindInfo is the single mapping from kind to wire status and code.
func kindInfo(k Kind) (status int, code string) {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest, CodeBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized, CodeUnauthorized
	case KindNotFound:
		return http.StatusNotFound, CodeNotFound
	case KindValidation:
		return http.StatusUnprocessableEntity, CodeValidation
	case KindConflict:
		return http.StatusConflict, CodeDuplicateKey
	case KindInvalidID:
		return http.StatusBadRequest, CodeInvalidID
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case KindTooManyRequests:
		return http.StatusTooManyRequests, CodeRateLimited
	default:
		return http.StatusInternalServerError, CodeServerError
	}
}

// String returns the kind's name as used in logs.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BadRequest"
	case KindUnauthorized:
		return "Unauthorized"
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	case KindConflict:
		return "Conflict"
	case KindInvalidID:
		return "InvalidIdentifier"
	case KindPayloadTooLarge:
		return "PayloadTooLarge"
	case KindTooManyRequests:
		return "TooManyRequests"
	default:
		return "ServerError"
	}
}

// FieldError describes one violated constraint of a request payload.
type FieldError struct {
	Field   string `json:"field"   example:"title"`
	Message string `json:"message" example:"Title is required"`
}

// Error is an operational error carrying everything needed to render it.
type Error struct {
	Kind    Kind
	Message string
	Details any

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// Unwrap exposes the underlying cause (which carries the stack trace).
func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status for the error's kind.
func (e *Error) Status() int {
	s, _ := kindInfo(e.Kind)
	return s
}

// Code returns the stable error code for the error's kind.
func (e *Error) Code() string {
	_, c := kindInfo(e.Kind)
	return c
}

// Render returns the wire representation of the error.
func (e *Error) Render() (status int, code, message string, details any) {
	status, code = kindInfo(e.Kind)
	return status, code, e.Message, e.Details
}

func newError(k Kind, msg string, details any) *Error {
	return &Error{Kind: k, Message: msg, Details: details, cause: pkgerrors.New(msg)}
}

// BadRequest reports malformed input not covered by a schema.
func BadRequest(msg string) *Error {
	if msg == "" {
		msg = "Bad request"
	}
	return newError(KindBadRequest, msg, nil)
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(msg string) *Error {
	if msg == "" {
		msg = "Unauthorized"
	}
	return newError(KindUnauthorized, msg, nil)
}

// NotFound reports an operation targeting a missing resource.
func NotFound(msg string) *Error {
	if msg == "" {
		msg = "Resource not found"
	}
	return newError(KindNotFound, msg, nil)
}

// Validation reports schema violations; details keeps the declaration order.
func Validation(msg string, details []FieldError) *Error {
	if msg == "" {
		msg = "Validation error"
	}
	if details == nil {
		details = []FieldError{}
	}
	return newError(KindValidation, msg, details)
}

// Conflict reports a uniqueness violation on field.
func Conflict(field string) *Error {
	return newError(KindConflict, "Duplicate key error", "The "+field+" already exists")
}

// InvalidID reports an identifier the store cannot parse.
func InvalidID() *Error {
	return newError(KindInvalidID, "Invalid ID format", nil)
}

// PayloadTooLarge reports a request body over the configured limit.
func PayloadTooLarge() *Error {
	return newError(KindPayloadTooLarge, "Request body too large", nil)
}

// TooManyRequests reports a rate-limited client.
func TooManyRequests() *Error {
	return newError(KindTooManyRequests, "Rate limit exceeded", nil)
}

// Internal wraps an unclassified failure. The message is the raw cause;
// callers decide whether to expose it.
func Internal(err error) *Error {
	if err == nil {
		err = errors.New("Internal server error")
	}
	return &Error{Kind: KindInternal, Message: err.Error(), cause: pkgerrors.WithStack(err)}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err's chain holds an *Error of kind k.
func IsKind(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}
