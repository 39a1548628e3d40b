// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements ErrorFunnel, the single place where failures become
// HTTP responses. Handlers and other middleware never write error bodies;
// they call c.Error(err) and abort. After the chain returns, the funnel
// classifies the last recorded error, logs it with its stack and writes the
// error envelope.
//
// Classification, in priority order:
//  1. *apperr.Error anywhere in the chain: rendered verbatim.
//  2. Schema failures (*domain.ValidationError from a store write, or
//     validator.ValidationErrors): 422 VALIDATION_ERROR with flattened
//     {field, message} details.
//  3. repo.ErrInvalidID: 400 INVALID_ID.
//  4. Uniqueness violations: 409 DUPLICATE_KEY, "The <field> already exists".
//  5. *http.MaxBytesError: 413; anything else: 500 SERVER_ERROR.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-todo-backend/internal/apperr"
	"github.com/tbourn/go-todo-backend/internal/domain"
	"github.com/tbourn/go-todo-backend/internal/http/envelope"
	"github.com/tbourn/go-todo-backend/internal/repo"
)

// FunnelOptions configures ErrorFunnel.
type FunnelOptions struct {
	// ExposeInternal returns the raw message of unclassified failures to the
	// client. Leave false in production; the message is always logged.
	ExposeInternal bool
}

const genericInternalMessage = "Internal server error"

// Classify maps err onto the taxonomy. Internal failures keep their raw
// message only when exposeInternal is set.
func Classify(err error, exposeInternal bool) *apperr.Error {
	if ae, ok := apperr.As(err); ok {
		if ae.Kind == apperr.KindInternal && !exposeInternal {
			hidden := *ae
			hidden.Message = genericInternalMessage
			return &hidden
		}
		return ae
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		details := make([]apperr.FieldError, 0, len(ve.Fields))
		for _, f := range ve.Fields {
			details = append(details, apperr.FieldError{Field: f.Field, Message: f.Message})
		}
		return apperr.Validation("Validation Error", details)
	}
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		details := make([]apperr.FieldError, 0, len(vErrs))
		for _, fe := range vErrs {
			details = append(details, apperr.FieldError{Field: fe.Field(), Message: fe.Error()})
		}
		return apperr.Validation("Validation Error", details)
	}

	if errors.Is(err, repo.ErrInvalidID) {
		return apperr.InvalidID()
	}

	var dup *repo.DuplicateKeyError
	if errors.As(err, &dup) {
		return apperr.Conflict(dup.Field)
	}
	if errors.Is(err, repo.ErrDuplicate) {
		return apperr.Conflict("key")
	}

	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apperr.PayloadTooLarge()
	}

	ae := apperr.Internal(err)
	if !exposeInternal {
		ae.Message = genericInternalMessage
	}
	return ae
}

// ErrorFunnel renders the last error recorded on the context. It is a no-op
// when the chain recorded no error or a response was already written.
func ErrorFunnel(opts FunnelOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}
		err := last.Err
		ae := Classify(err, opts.ExposeInternal)
		status, code, msg, _ := ae.Render()

		lg := LoggerFrom(c)
		ev := lg.Warn()
		if status >= http.StatusInternalServerError {
			ev = lg.Error()
		}
		ev.Stack().Err(err).
			Str("kind", ae.Kind.String()).
			Str("code", code).
			Int("status", status).
			Msg(msg)
		apiErrors.WithLabelValues(code).Inc()

		if c.Writer.Written() {
			return
		}
		envelope.WriteError(c, envelope.FromError(ae))
	}
}
