package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/benchbook/benchbook/internal/auth"
	"github.com/benchbook/benchbook/internal/ratelimit"
	"github.com/benchbook/benchbook/internal/storage"
)

// Server is the Benchbook HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	Store  storage.Store
	JWTMgr *auth.JWTManager
	Logger *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// RateLimiter is optional; nil disables limiting.
	RateLimiter ratelimit.Limiter
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		JWTMgr:              cfg.JWTMgr,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Auth endpoint (no auth required).
	mux.HandleFunc("POST /v1/auth/token", h.HandleAuthToken)

	// Protocol entries.
	mux.HandleFunc("POST /v1/entries", h.HandleCreateEntry)
	mux.HandleFunc("GET /v1/entries", h.HandleListEntries)
	mux.HandleFunc("GET /v1/entries/{id}", h.HandleGetEntry)
	mux.HandleFunc("PUT /v1/entries/{id}", h.HandleUpdateEntry)

	// Protocol runs.
	mux.HandleFunc("POST /v1/protocol-runs", h.HandleCreateRun)
	mux.HandleFunc("GET /v1/protocol-runs", h.HandleListRuns)
	mux.HandleFunc("GET /v1/protocol-runs/{id}", h.HandleGetRun)
	mux.HandleFunc("PUT /v1/protocol-runs/{id}", h.HandleUpdateRun)

	// Health (no auth).
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → rate limit → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = ratelimit.Middleware(cfg.RateLimiter, rateLimitKey, RequestIDFromRequest)(handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// rateLimitKey buckets authenticated requests per actor and falls back to
// the client IP for unauthenticated paths. Health checks are never limited.
func rateLimitKey(r *http.Request) string {
	if r.URL.Path == "/healthz" {
		return ""
	}
	if actor := ActorFromContext(r.Context()); actor.ID != "" {
		return "actor:" + actor.ID
	}
	return "ip:" + ratelimit.IPKeyFunc(r)
}

// RequestIDFromRequest adapts RequestIDFromContext to the rate limiter's
// request-scoped lookup.
func RequestIDFromRequest(r *http.Request) string {
	return RequestIDFromContext(r.Context())
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
