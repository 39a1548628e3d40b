package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedactingLogger_MasksCredentialsAndIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{"X-API-Key"}}))
	r.GET("/todos/:id", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside")
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/todos/141add05-4415-4938-b5a1-17e0d3171aff?owner=jane@example.com", nil)
	req.Header.Set("X-Request-ID", "rid-9")
	req.Header.Set("X-API-Key", "super-secret")
	req.Header.Set("Authorization", "Bearer abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := buf.String()
	for _, leaked := range []string{"super-secret", "Bearer abc", "jane@example.com", "141add05-4415"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("log leaked %q: %s", leaked, out)
		}
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected handler line and access line, got %d: %s", len(lines), out)
	}
	var inside, access map[string]any
	_ = json.Unmarshal([]byte(lines[0]), &inside)
	_ = json.Unmarshal([]byte(lines[1]), &access)
	if inside["request_id"] != "rid-9" || inside["path"] != "/todos/:id" {
		t.Fatalf("handler log missing request fields: %v", inside)
	}
	if access["level"] != "info" || access["message"] != "http_request" || access["status"] != float64(200) {
		t.Fatalf("unexpected access log: %v", access)
	}
	if q, _ := access["query"].(string); !strings.Contains(q, "[REDACTED:email]") {
		t.Fatalf("query not redacted: %v", access["query"])
	}
}

func TestRedactingLogger_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/warn", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/err", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for path, level := range map[string]string{"/warn": "warn", "/err": "error"} {
		buf.Reset()
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		var m map[string]any
		if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
			t.Fatalf("%s: decode log: %v", path, err)
		}
		if m["level"] != level {
			t.Fatalf("%s: level = %v, want %s", path, m["level"], level)
		}
	}
}
