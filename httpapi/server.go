package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/isdmx/plotbox/artifact"
	"github.com/isdmx/plotbox/config"
	"github.com/isdmx/plotbox/storage"
	"github.com/isdmx/plotbox/visualize"
)

// Generator runs visualization requests.
type Generator interface {
	Generate(ctx context.Context, req visualize.Request) (visualize.Result, error)
}

// Server is the HTTP surface of the service.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	generator Generator
	ledger    storage.Store
	artifacts *artifact.Store
	router    chi.Router
	http      *http.Server
}

// New creates a new Server. ledger may be nil, which disables the /runs routes.
func New(cfg *config.Config, logger *zap.Logger, generator Generator, ledger storage.Store, artifacts *artifact.Store) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		generator: generator,
		ledger:    ledger,
		artifacts: artifacts,
		router:    chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/healthz", s.handleHealth)
	r.Get(s.cfg.Server.OutputRoute+"/{id}", s.handleArtifact)

	r.Group(func(r chi.Router) {
		r.Use(jsonContentType)
		r.With(middleware.RequestSize(int64(s.cfg.Server.MaxBodyKB)*1024)).
			Post("/generate-visualization", s.handleGenerate)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on server.http_port and blocks until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
