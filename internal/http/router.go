// Package httpapi wires the HTTP transport (Gin) to the todo service,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, compression, panic
// recovery, error rendering, metrics, CORS, security headers, idempotency,
// rate limiting and the API-key gate.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Every failure, from any layer, leaves through the error funnel
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-todo-backend/internal/apperr"
	"github.com/tbourn/go-todo-backend/internal/config"
	"github.com/tbourn/go-todo-backend/internal/http/handlers"
	"github.com/tbourn/go-todo-backend/internal/http/middleware"
)

// Deps are the collaborators the HTTP layer needs. Idempotency may be nil.
type Deps struct {
	Todos       handlers.TodoService
	Idempotency handlers.IdempotencyStore
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), the error funnel,
// rate limiting, CORS and security headers, health, metrics
// and docs endpoints, and then mounts the gated todo API under
// cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Metrics: observes the final status of every request
//  5. Gzip: response compression
//  6. Recovery: panics become a 500 envelope
//  7. ErrorFunnel: renders whatever the rest of the chain recorded
//  8. Body size limiter
//  9. Security headers and CORS
//  10. Rate limiter (per IP)
//  11. API-key gate on the API group only
//  12. Idempotency validator, behind the gate
//
// Gzip swaps the response writer and does not restore it, so everything that
// writes a body (Recovery, the funnel, handlers) sits after it.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	// Unmatched methods fall through to NoRoute: every unmatched request is a 404.
	r.HandleMethodNotAllowed = false

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{cfg.APIKeyHeader},
	}))

	// 4) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())

	// 5) Compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 6) Panic recovery to a JSON 500 envelope
	r.Use(middleware.Recovery())

	// 7) Single exit for failures
	r.Use(middleware.ErrorFunnel(middleware.FunnelOptions{
		ExposeInternal: cfg.ExposeInternalErrors(),
	}))

	// 8) Global body size limit
	r.Use(limitBody(cfg.MaxBodyBytes))

	// 9) Security headers (HSTS only when enabled and request is HTTPS) and CORS
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))
	useCORS(r, cfg)

	// 10) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// Fallback
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, apperr.NotFound("Resource not found"))
	})

	// Public endpoints
	r.GET("/health", handlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
			ginSwagger.DefaultModelsExpandDepth(-1),
			ginSwagger.PersistAuthorization(true),
		))
	}

	h := handlers.New(deps.Todos, deps.Idempotency, cfg.IdempotencyTTL)

	// 11) Gated API; 12) idempotency header checks run only once the caller
	// is authenticated.
	var lookup middleware.IdempotencyLookup
	if deps.Idempotency != nil {
		lookup = func(ctx context.Context, scope, key string, now time.Time) (bool, error) {
			rec, err := deps.Idempotency.Get(ctx, scope, key, now)
			if err != nil || rec == nil {
				return false, err
			}
			return true, nil
		}
	}
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		middleware.APIKey(cfg.APIKeyHeader, cfg.APIKey),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, lookup),
	)
	{
		api.GET("/todos", h.ListTodos)
		api.GET("/todos/:id", h.GetTodo)
		api.POST("/todos", handlers.ValidateCreate(), h.CreateTodo)
		api.PUT("/todos/:id", handlers.ValidateUpdate(), h.UpdateTodo)
		api.PATCH("/todos/:id", handlers.ValidateUpdate(), h.UpdateTodo)
		api.DELETE("/todos/:id", h.DeleteTodo)
	}
}

// useCORS installs the CORS posture: allow all origins when none are
// configured, otherwise echo allowlisted origins.
func useCORS(r *gin.Engine, cfg config.Config) {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", cfg.APIKeyHeader, middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", middleware.HeaderIdempotencyReplayed}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
	for _, o := range cfg.CORS.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	corsMW := cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
	// Unknown origins get no CORS headers and are left to the browser;
	// cors.New would answer them with a bare 403 outside the envelope.
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; !ok {
				c.Next()
				return
			}
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		corsMW(c)
	})
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Reads past the cap fail
// with *http.MaxBytesError, which the funnel renders as 413.
func limitBody(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
