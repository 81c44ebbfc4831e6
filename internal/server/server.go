// Package server wires the router, middleware, and handlers together and
// owns the listener lifecycle. It is the composition root: every service,
// repository, and engine is constructed here, so main stays minimal and the
// full stack can be assembled in tests without a process.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/makolabs/mako/internal/config"
	"github.com/makolabs/mako/internal/dataset"
	"github.com/makolabs/mako/internal/executor/sandbox"
	"github.com/makolabs/mako/internal/handler"
	"github.com/makolabs/mako/internal/middleware"
	"github.com/makolabs/mako/internal/observability"
	sqliteRepo "github.com/makolabs/mako/internal/repository/sqlite"
	"github.com/makolabs/mako/internal/service"
	"github.com/makolabs/mako/internal/sqlcell"
)

// Server holds the router and the resources it must release on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	store  *dataset.Store
}

// New assembles the full dependency chain: database, dataset store, services,
// sandbox runner, SQL cell engine, handlers, routes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	db, err := sqliteRepo.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store, err := dataset.NewStore(cfg.Datasets.Dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening dataset store: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		store:  store,
	}
	s.setupRoutes()

	// Seed the gauge so a restart doesn't report zero datasets until the
	// first mutation.
	if names, err := store.Names(); err == nil {
		observability.DatasetsStored.Set(float64(len(names)))
	}

	return s, nil
}

// setupRoutes configures middleware and binds every route.
//
// Middleware order matters: RequestID must precede the logger so request ids
// appear in log lines, and Recoverer sits innermost so panics are logged
// with full request context.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(observability.MetricsMiddleware)
	s.router.Use(chimiddleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	functionService := service.NewFunctionService(s.db, s.logger)
	versionService := service.NewVersionService(s.db, s.logger)

	runner := sandbox.New(sandbox.Config{
		Timeout:        s.config.Executor.Timeout,
		MaxConcurrent:  s.config.Executor.MaxConcurrent,
		MaxOutputBytes: s.config.Executor.MaxOutputBytes,
		MaxSteps:       s.config.Executor.MaxSteps,
		MaxRecursion:   s.config.Executor.MaxRecursion,
	}, s.logger, s.store, functionService)
	sqlEngine := sqlcell.NewEngine(s.store, s.config.Executor.Timeout)

	executeHandler := handler.NewExecuteHandler(runner, sqlEngine, runner,
		s.config.Executor.MaxSourceBytes, s.logger)
	datasetHandler := handler.NewDatasetHandler(s.store, s.logger)
	functionHandler := handler.NewFunctionHandler(functionService, s.logger)
	versionHandler := handler.NewVersionHandler(versionService, s.logger)

	s.router.Post("/execute", executeHandler.HandleExecute)
	s.router.Post("/lint", executeHandler.HandleLint)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/list-datasets", datasetHandler.HandleList)
		r.Post("/upload", datasetHandler.HandleUpload)
		r.Delete("/delete-dataset/{name}", datasetHandler.HandleDelete)
		r.Get("/get-dataset-data/{name}", datasetHandler.HandleData)
		r.Get("/get-dataset-schema/{name}", datasetHandler.HandleSchema)
		r.Post("/save-dataset-context/{name}", datasetHandler.HandleSaveContext)
		r.Get("/get-dataset-context/{name}", datasetHandler.HandleGetContext)

		r.Post("/save-function", functionHandler.HandleSave)
		r.Get("/list-functions", functionHandler.HandleList)
		r.Delete("/delete-function/{name}", functionHandler.HandleDelete)

		r.Post("/save-version", versionHandler.HandleSave)
		r.Get("/list-versions/{tab}", versionHandler.HandleListByTab)
		r.Get("/get-version/{id}", versionHandler.HandleGetByID)
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)
}

// Handler exposes the router, mainly for tests that drive the full stack
// through httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until SIGINT/SIGTERM or a listener error, then
// shuts down gracefully and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	// The write timeout must outlast the execution budget or long-running
	// snippets would have their responses cut off.
	writeTimeout := 15 * time.Second
	if t := s.config.Executor.Timeout + 10*time.Second; t > writeTimeout {
		writeTimeout = t
	}

	srv := &http.Server{
		Addr:         s.config.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("environment", s.config.Server.Environment),
			slog.String("database", s.config.Storage.Path),
			slog.String("datasets", s.store.Dir()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
