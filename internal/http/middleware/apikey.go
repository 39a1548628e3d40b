package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-todo-backend/internal/apperr"
)

// DefaultAPIKeyHeader is the header checked by APIKey when none is configured.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKey gates a route group on a static shared secret. The request's header
// value must equal secret exactly; anything else aborts with Unauthorized
// before validation or handlers run. An empty secret rejects every request.
func APIKey(header, secret string) gin.HandlerFunc {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	want := []byte(secret)
	return func(c *gin.Context) {
		got := c.GetHeader(header)
		if secret == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			_ = c.Error(apperr.Unauthorized("Invalid or missing API key"))
			c.Abort()
			return
		}
		c.Next()
	}
}
