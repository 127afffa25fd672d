// Package server provides the HTTP server setup and wiring.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	agentsDomain "github.com/agentbook/agentbook/internal/agents/domain"
	agentsTransport "github.com/agentbook/agentbook/internal/agents/transport"
	"github.com/agentbook/agentbook/internal/auth"
	"github.com/agentbook/agentbook/internal/config"
	deploymentsDomain "github.com/agentbook/agentbook/internal/deployments/domain"
	deploymentsTransport "github.com/agentbook/agentbook/internal/deployments/transport"
	"github.com/agentbook/agentbook/internal/middleware/logging"
	"github.com/agentbook/agentbook/internal/middleware/ratelimit"
	"github.com/agentbook/agentbook/internal/middleware/realip"
	"github.com/agentbook/agentbook/internal/middleware/security"
	"github.com/agentbook/agentbook/internal/observability/metrics"
	"github.com/agentbook/agentbook/internal/storage"
	verificationDomain "github.com/agentbook/agentbook/internal/verification/domain"
	verificationTransport "github.com/agentbook/agentbook/internal/verification/transport"
)

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	// Services typed via transport interfaces
	agentsSvc       agentsTransport.Service
	deploymentsSvc  deploymentsTransport.Service
	verificationSvc verificationTransport.Service
}

// New creates a new server. The verifier is shared with the background
// worker so on-demand checks and the pipeline agree on semantics.
func New(cfg *config.Config, store storage.Store, sources storage.SourceStore, verifier verificationDomain.Verifier, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}

	s.agentsSvc = agentsDomain.NewService(store, store)
	s.deploymentsSvc = deploymentsDomain.NewService(store, store, sources)
	s.verificationSvc = verificationDomain.NewService(store, sources, verifier)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

func (s *Server) setupMiddleware() {
	// Order matters! Security middleware runs first to block malicious requests early.

	// 1. Real IP extraction (must be first to set client IP for other middleware)
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))

	// 2. Security filter (blocks malicious patterns, bypasses health checks)
	s.router.Use(security.FilterMiddleware(s.cfg.Security.FilterEnabled))

	// 3. Body size limit
	s.router.Use(security.MaxBodySizeMiddleware(s.cfg.Security.MaxBodySizeMB))

	// 4. Rate limiting (bypasses health checks)
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))

	// 5. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// 6. CORS
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	// OpenAPI spec
	s.router.Get("/api/openapi.yaml", s.handleOpenAPISpec)

	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleHealth)

	agentsHandler := agentsTransport.NewHandler(s.agentsSvc)
	deploymentsHandler := deploymentsTransport.NewHandler(s.deploymentsSvc)
	verificationHandler := verificationTransport.NewHandler(s.verificationSvc)

	// Auth middleware for write operations
	requireAuth := func(r chi.Router) {
		if s.cfg.Auth.Type == "api-key" {
			r.Use(auth.Middleware(s.store, writeError))
		}
	}

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Agents - reads and registration are open; registration is how
		// an agent obtains its key in the first place.
		r.Route("/agents", func(r chi.Router) {
			agentsHandler.RegisterReadRoutes(r)
			agentsHandler.RegisterWriteRoutes(r)
		})

		// Deployments - split read/write
		r.Route("/deployments", func(r chi.Router) {
			deploymentsHandler.RegisterReadRoutes(r)

			r.Group(func(r chi.Router) {
				requireAuth(r)
				deploymentsHandler.RegisterWriteRoutes(r)
			})
		})

		// On-demand verification checks - read only (no auth)
		verificationHandler.RegisterRoutes(r)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleOpenAPISpec serves the OpenAPI specification.
func (s *Server) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, "spec/openapi.yaml")
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
