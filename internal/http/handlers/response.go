// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response helpers shared by all endpoints. Success
// bodies go out through the envelope package; failures are never written
// here. fail records the error on the Gin context and aborts, leaving the
// error funnel middleware to classify, log and render it.
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "success": true, "status": 200, "message": "Todo retrieved successfully", "data": {...} }
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-todo-backend/internal/http/envelope"
)

// ok writes a success envelope with the given status, message and data.
func ok(c *gin.Context, status int, message string, data any) {
	envelope.WriteSuccess(c, status, message, data)
}

// fail hands err to the error funnel and stops the chain.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router fallbacks) use it so every failure takes
// the same path to the client.
func Fail(c *gin.Context, err error) { fail(c, err) }
