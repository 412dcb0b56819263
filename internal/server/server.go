// Package server exposes the validation service over HTTP: session
// CRUD, per-source refresh, refinements, improvements, and an SSE
// status stream for progressive rendering.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/ideascope/ideascope/internal/logger"
	"github.com/ideascope/ideascope/internal/sources"
	"github.com/ideascope/ideascope/internal/storage"
)

// Config holds the HTTP server settings.
type Config struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
	SSEHeartbeat    time.Duration
	AdvisorTarget   float64
}

// Server wires the aggregator and storage behind the HTTP API.
type Server struct {
	config     Config
	aggregator *sources.Aggregator
	store      *storage.Storage
}

// New creates a server around an aggregator and its storage.
func New(config Config, aggregator *sources.Aggregator, store *storage.Storage) *Server {
	if config.SSEHeartbeat <= 0 {
		config.SSEHeartbeat = 10 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	return &Server{config: config, aggregator: aggregator, store: store}
}

// Handler builds the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1/validations", func(r chi.Router) {
		r.Post("/", s.handleCreateValidation)
		r.Get("/latest", s.handleLatest)
		r.Get("/{id}", s.handleGetValidation)
		r.Get("/{id}/events", s.handleEvents)
		r.Get("/{id}/improvements", s.handleImprovements)
		r.Put("/{id}/refinements", s.handlePutRefinement)
		r.Post("/{id}/sources/{source}/refresh", s.handleRefresh)
	})
	return r
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: s.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening on %s", s.config.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// requestLogger logs each request through the service logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("%s %s -> %d (%v)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
