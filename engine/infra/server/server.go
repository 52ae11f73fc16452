package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/compozy/nutrilens/engine/knowledge/ingest"
	"github.com/compozy/nutrilens/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	readHeaderTimeout      = 10 * time.Second
	idleTimeout            = 120 * time.Second
)

// Server serves the analysis API over HTTP.
type Server struct {
	deps       *Dependencies
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer builds the router for an assembled dependency graph. The graph
// must include the pipeline.
func NewServer(ctx context.Context, deps *Dependencies) (*Server, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("server requires dependencies")
	}
	r, err := buildRouter(ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	cfg := deps.Config.Server
	return &Server{
		deps:   deps,
		router: r,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
	}, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run prepares the knowledge base, starts listening and blocks until ctx ends
// or SIGINT/SIGTERM arrives, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	stopSchedule, err := s.startIngestion(ctx)
	if err != nil {
		return err
	}
	defer stopSchedule()

	errCh := make(chan error, 1)
	go func() {
		cfg := s.deps.Config.Server
		log.Info("Starting HTTP server", "address", s.httpServer.Addr)
		log.Info(startupBanner(cfg.Host, cfg.Port, s.metricsPath()))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}
	return s.shutdown(context.WithoutCancel(ctx))
}

// startIngestion runs the startup pass and arms the optional schedule. A
// failed startup pass is logged; the server still serves with whatever the
// index already holds.
func (s *Server) startIngestion(ctx context.Context) (func(), error) {
	log := logger.FromContext(ctx)
	cfg := s.deps.Config.Knowledge
	if cfg.IngestOnStart {
		summary, err := s.deps.Ingest.Run(ctx)
		if err != nil {
			log.Error("Startup knowledge ingestion failed", "error", err)
		} else {
			log.Info("Startup knowledge ingestion finished",
				"ingested", summary.Ingested,
				"skipped_duplicate", summary.SkippedDuplicate,
				"failed", summary.Failed,
				"chunks", summary.Chunks,
			)
		}
	}
	var stops []func()
	stopAll := func() {
		for _, stop := range stops {
			stop()
		}
	}
	if cfg.Schedule != "" {
		stop, err := s.deps.Ingest.Schedule(ctx, cfg.Schedule)
		if err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}
	if cfg.Watch {
		stop, err := s.deps.Ingest.Watch(ctx, ingest.WatchOptions{Debounce: cfg.WatchDebounce})
		if err != nil {
			stopAll()
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stopAll, nil
}

func (s *Server) shutdown(ctx context.Context) error {
	log := logger.FromContext(ctx)
	timeout := s.deps.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		return err
	}
	log.Info("Server shutdown completed successfully")
	return nil
}

func (s *Server) metricsPath() string {
	if s.deps.Monitoring == nil || !s.deps.Monitoring.IsInitialized() {
		return ""
	}
	return s.deps.Monitoring.Path()
}
