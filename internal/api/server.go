// Package api provides the HTTP surface for return eligibility scoring.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/engine"
	"github.com/opensource-commerce/kestrel/internal/predict"
	"github.com/opensource-commerce/kestrel/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.ScoringEngine, flagRules *rules.Engine, predictor *predict.Predictor, modelPath string, version string) *Server {
	handler := NewHandler(repo, cache, bus, eng, flagRules, predictor, modelPath, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no merchant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (merchant required)
	router.Route("/", func(r chi.Router) {
		r.Use(MerchantMiddleware)

		// Return scoring
		r.Post("/score", handler.Score)
		r.Post("/score/async", handler.ScoreAsync)

		// Decision retrieval
		r.Get("/returns/{id}", handler.GetReturn)

		// Buyer aggregates
		r.Get("/buyers/{id}", handler.GetBuyer)

		// Merchant policy
		r.Get("/policy", handler.GetPolicy)
		r.Put("/policy", handler.UpdatePolicy)

		// Custom flag rules
		r.Get("/flag-rules", handler.ListFlagRules)
		r.Post("/flag-rules", handler.CreateFlagRule)
		r.Post("/flag-rules/reload", handler.ReloadFlagRules)

		// Model management
		r.Post("/model/reload", handler.ReloadModel)

		// Dashboard
		r.Get("/dashboard/stats", handler.DashboardStats)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
