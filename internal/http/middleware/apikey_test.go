package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAPIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_ = captureLogger(t)

	called := 0
	r := gin.New()
	r.Use(ErrorFunnel(FunnelOptions{}))
	g := r.Group("/api", APIKey("", "s3cret"))
	g.GET("/x", func(c *gin.Context) {
		called++
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong", DefaultAPIKeyHeader, "nope", http.StatusUnauthorized},
		{"prefix", DefaultAPIKeyHeader, "s3cre", http.StatusUnauthorized},
		{"other header", "Authorization", "s3cret", http.StatusUnauthorized},
		{"ok", DefaultAPIKeyHeader, "s3cret", http.StatusNoContent},
		{"ok lowercase header", "x-api-key", "s3cret", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if tc.status == http.StatusUnauthorized {
				body := decodeErrorBody(t, w)
				if body.Error.Code != "UNAUTHORIZED" || body.Error.Message != "Invalid or missing API key" {
					t.Fatalf("unexpected error: %+v", body.Error)
				}
			}
		})
	}
	if called != 2 {
		t.Fatalf("handler ran %d times, want 2", called)
	}
}

func TestAPIKey_EmptySecretRejectsAll(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_ = captureLogger(t)

	r := gin.New()
	r.Use(ErrorFunnel(FunnelOptions{}))
	r.GET("/x", APIKey("X-Custom", ""), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Custom", "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
