// Package envelope defines the uniform JSON wrapper returned by every
// endpoint, success or failure.
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "success": true, "status": 200, "message": "Todo retrieved successfully", "data": {...} }
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{ "success": false, "status": 404,
//	  "error": { "code": "NOT_FOUND", "message": "Resource not found", "details": null } }
//
// The HTTP status code always equals the "status" field of the body.
package envelope

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-todo-backend/internal/apperr"
)

// SuccessBody is the envelope for successful responses.
type SuccessBody struct {
	Success bool   `json:"success" example:"true"`
	Status  int    `json:"status"  example:"200"`
	Message string `json:"message" example:"Operation successful"`
	Data    any    `json:"data"`
}

// ErrorDetail is the "error" member of an ErrorBody.
type ErrorDetail struct {
	Code    string `json:"code"    example:"NOT_FOUND"`
	Message string `json:"message" example:"Resource not found"`
	Details any    `json:"details"`
}

// ErrorBody is the envelope for failed responses.
type ErrorBody struct {
	Success bool        `json:"success" example:"false"`
	Status  int         `json:"status"  example:"404"`
	Error   ErrorDetail `json:"error"`
}

// Success builds a success envelope. A zero status defaults to 200.
func Success(message string, data any, status int) SuccessBody {
	if status == 0 {
		status = http.StatusOK
	}
	if message == "" {
		message = "Operation successful"
	}
	return SuccessBody{Success: true, Status: status, Message: message, Data: data}
}

// Error builds an error envelope. A zero status defaults to 500 and an empty
// code to SERVER_ERROR.
func Error(message string, status int, code string, details any) ErrorBody {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if code == "" {
		code = apperr.CodeServerError
	}
	if message == "" {
		message = "Internal server error"
	}
	return ErrorBody{
		Success: false,
		Status:  status,
		Error:   ErrorDetail{Code: code, Message: message, Details: details},
	}
}

// FromError renders a taxonomy error into an envelope.
func FromError(e *apperr.Error) ErrorBody {
	status, code, msg, details := e.Render()
	return Error(msg, status, code, details)
}

// WriteSuccess writes a success envelope with its status.
func WriteSuccess(c *gin.Context, status int, message string, data any) {
	body := Success(message, data, status)
	c.JSON(body.Status, body)
}

// WriteError aborts the chain and writes an error envelope with its status.
func WriteError(c *gin.Context, body ErrorBody) {
	c.AbortWithStatusJSON(body.Status, body)
}
