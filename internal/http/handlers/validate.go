package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-todo-backend/internal/domain"
	"github.com/tbourn/go-todo-backend/internal/validation"
)

const (
	ctxCreateInput = "todo.create"
	ctxUpdateInput = "todo.patch"
)

// ValidateCreate reads the request body, runs the create schema and stashes
// the normalized input for the handler. On failure the handler never runs.
func ValidateCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			fail(c, err)
			return
		}
		in, err := validation.CreateTodo(raw)
		if err != nil {
			fail(c, err)
			return
		}
		c.Set(ctxCreateInput, in)
		c.Next()
	}
}

// ValidateUpdate is the update counterpart of ValidateCreate. Every field is
// optional; an empty object is a valid no-op patch.
func ValidateUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			fail(c, err)
			return
		}
		patch, err := validation.UpdateTodo(raw)
		if err != nil {
			fail(c, err)
			return
		}
		c.Set(ctxUpdateInput, patch)
		c.Next()
	}
}

func createInput(c *gin.Context) (domain.NewTodo, bool) {
	v, ok := c.Get(ctxCreateInput)
	if !ok {
		return domain.NewTodo{}, false
	}
	in, ok := v.(domain.NewTodo)
	return in, ok
}

func updateInput(c *gin.Context) (domain.TodoPatch, bool) {
	v, ok := c.Get(ctxUpdateInput)
	if !ok {
		return domain.TodoPatch{}, false
	}
	p, ok := v.(domain.TodoPatch)
	return p, ok
}
