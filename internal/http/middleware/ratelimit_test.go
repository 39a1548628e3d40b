package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyByClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req

	if key := KeyByClientIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestNewRateLimiter_Defaults_AndVisitorReuse(t *testing.T) {
	rl := NewRateLimiter(2.0, 0, nil)
	if rl.burst != 1 || rl.keyFn == nil {
		t.Fatalf("defaults not applied: burst=%d", rl.burst)
	}
	if rl.getVisitor("k1") != rl.getVisitor("k1") {
		t.Fatal("expected the same limiter for the same key")
	}
	if rl.getVisitor("k1") == rl.getVisitor("k2") {
		t.Fatal("expected distinct limiters per key")
	}
}

func TestRateLimiter_getVisitor_GC(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.ttl = time.Millisecond
	_ = rl.getVisitor("old")
	rl.visitors["old"].lastSeen = time.Now().Add(-time.Hour)
	rl.cleanupN = 4999

	_ = rl.getVisitor("new")
	if _, ok := rl.visitors["old"]; ok {
		t.Fatal("idle visitor should have been evicted")
	}
	if rl.cleanupN != 0 {
		t.Fatalf("cleanup counter not reset: %d", rl.cleanupN)
	}
}

func TestRateLimiter_Handler_DenyRendersEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_ = captureLogger(t)

	r := gin.New()
	r.Use(ErrorFunnel(FunnelOptions{}))
	r.Use(NewRateLimiter(0.001, 1, func(*gin.Context) string { return "same" }).Handler())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
	if body := decodeErrorBody(t, w); body.Error.Code != "RATE_LIMITED" {
		t.Fatalf("unexpected error: %+v", body.Error)
	}
}
