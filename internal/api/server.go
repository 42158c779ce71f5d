package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/wanderlist/imagebackfill/internal/api/middleware"
	"github.com/wanderlist/imagebackfill/internal/backfill"
	"github.com/wanderlist/imagebackfill/internal/logger"
)

// Runner executes one backfill run.
type Runner interface {
	Run(ctx context.Context) *backfill.RunReport
}

// Server is the HTTP trigger surface.
type Server struct {
	echo    *echo.Echo
	config  *Config
	runner  Runner
	metrics http.Handler
	log     logger.Logger
	version string

	startTime time.Time
	// runMu allows a single run at a time.
	runMu sync.Mutex
	// runCtx outlives requests and is cancelled by Shutdown.
	runCtx   context.Context
	stopRuns context.CancelFunc
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithVersion sets the version reported by the health check.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// New creates a server that triggers runs on runner.
func New(cfg *Config, runner Runner, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}

	s := &Server{
		config:    cfg,
		runner:    runner,
		log:       logger.NewDiscard(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runCtx, s.stopRuns = context.WithCancel(context.Background())

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = cfg.Debug
	s.echo.Server.ReadTimeout = cfg.ReadTimeout
	s.echo.Server.WriteTimeout = cfg.WriteTimeout
	s.echo.Server.IdleTimeout = cfg.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Pre(echomw.RemoveTrailingSlash())
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/metrics"
	}))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders())
}

func (s *Server) setupRoutes() {
	v1 := s.echo.Group("/api/v1")
	v1.GET("/health", s.healthCheck)
	v1.POST("/backfill", s.triggerBackfill)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.version,
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// triggerBackfill runs a backfill and responds with its report. The run is
// detached from the request so a client disconnect does not cut it short;
// only Shutdown interrupts it.
func (s *Server) triggerBackfill(c echo.Context) error {
	if !s.runMu.TryLock() {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "a backfill run is already in progress",
		})
	}
	defer s.runMu.Unlock()

	report := s.runner.Run(s.runCtx)
	return c.JSON(report.HTTPStatus(), report)
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", s.config.Listen))
		errCh <- s.echo.Start(s.config.Listen)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutdown signal received, initiating graceful shutdown")
	if err := s.Shutdown(); err != nil {
		return err
	}
	<-errCh
	return nil
}

// Shutdown stops accepting requests, interrupts a running backfill at its
// next chunk boundary and waits for in-flight requests up to the shutdown
// timeout. It returns only once no backfill is running, so callers may
// release the runner's backends afterwards.
func (s *Server) Shutdown() error {
	s.stopRuns()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	shutdownErr := s.echo.Shutdown(ctx)
	if shutdownErr != nil {
		s.log.Error("error during server shutdown", logger.Error(shutdownErr))
	}

	if !s.runMu.TryLock() {
		s.log.Info("waiting for running backfill to finish")
		s.runMu.Lock()
	}
	s.runMu.Unlock()

	if shutdownErr != nil {
		return fmt.Errorf("shutdown error: %w", shutdownErr)
	}
	s.log.Info("server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
