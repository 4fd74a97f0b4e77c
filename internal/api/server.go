// Package api serves the classifier control surface over HTTP: selector
// and per-classifier controls, the detection history, a server-sent event
// stream of the active classifier and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/pagd-project/pagd-go/internal/buildinfo"
	"github.com/pagd-project/pagd-go/internal/datastore"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
	"github.com/pagd-project/pagd-go/internal/observability"
	"github.com/pagd-project/pagd-go/internal/selector"
)

// Server timeouts. WriteTimeout is zero so event streams stay open.
const (
	readTimeout     = 30 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 10 * time.Second
	bodyLimit       = "64K"
)

// History is the detection history the API reads.
type History interface {
	Recent(ctx context.Context, limit int) ([]datastore.Detection, error)
	Between(ctx context.Context, from, to time.Time) ([]datastore.Detection, error)
}

// Options configures a Server.
type Options struct {
	Listen   string
	Selector *selector.Selector
	History  History // nil disables /detections
	Metrics  *observability.Metrics
	Build    buildinfo.BuildInfo // nil reports unknown version

	// HeartbeatInterval between stream heartbeats, 30s when zero.
	HeartbeatInterval time.Duration
}

// Server is the HTTP control API.
type Server struct {
	echo      *echo.Echo
	listen    string
	selector  *selector.Selector
	history   History
	metrics   *observability.Metrics
	build     buildinfo.BuildInfo
	heartbeat time.Duration
	log       logger.Logger
	startTime time.Time

	closing chan struct{}
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Selector == nil {
		return nil, errors.Newf("api server needs a selector").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		echo:      echo.New(),
		listen:    opts.Listen,
		selector:  opts.Selector,
		history:   opts.History,
		metrics:   opts.Metrics,
		build:     opts.Build,
		heartbeat: opts.HeartbeatInterval,
		log:       GetLogger(),
		startTime: time.Now(),
		closing:   make(chan struct{}),
	}
	if s.build == nil {
		s.build = (*buildinfo.Context)(nil)
	}
	if s.heartbeat <= 0 {
		s.heartbeat = 30 * time.Second
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = readTimeout
	s.echo.Server.IdleTimeout = idleTimeout
	s.echo.HTTPErrorHandler = s.httpErrorHandler

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.log))
	if s.metrics != nil {
		s.echo.Use(newMetricsMiddleware(s.metrics.HTTP))
	}
	s.echo.Use(echomw.BodyLimit(bodyLimit))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/classifiers", s.listClassifiers)
	v1.GET("/classifiers/active", s.getActive)
	v1.PUT("/classifiers/active", s.switchActive)

	c := v1.Group("/classifiers/:name")
	c.GET("", s.getClassifier)
	c.POST("/start", s.startClassifier)
	c.POST("/stop", s.stopClassifier)
	c.GET("/threshold", s.getThreshold)
	c.PUT("/threshold", s.setThreshold)
	c.GET("/delay", s.getDelay)
	c.PUT("/delay", s.setDelay)
	c.GET("/categories", s.getCategories)
	c.PUT("/categories/:category", s.setCategory)
	c.POST("/categories/include-all", s.includeAll)
	c.POST("/categories/exclude-all", s.excludeAll)
	c.GET("/latest", s.getLatest)
	c.GET("/summary", s.getSummary)

	v1.GET("/detections", s.listDetections)
	v1.GET("/stream", s.streamResults)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server starting", logger.String("address", s.listen))
		errCh <- s.echo.Start(s.listen)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.New(fmt.Errorf("server error: %w", err)).
				Component("api").
				Category(errors.CategoryHTTP).
				Context("address", s.listen).
				Build()
		}
		return nil
	case <-ctx.Done():
	}

	err := s.Shutdown()
	<-errCh
	return err
}

// Shutdown ends open event streams and stops the server.
func (s *Server) Shutdown() error {
	select {
	case <-s.closing:
	default:
		close(s.closing)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return errors.New(fmt.Errorf("server shutdown: %w", err)).
			Component("api").
			Category(errors.CategoryHTTP).
			Build()
	}
	s.log.Info("HTTP server stopped")
	return nil
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	active, _ := s.selector.Active()
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"active":         active,
		"version":        s.build.GetVersion(),
		"node":           s.build.GetNodeName(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}
