// Package api exposes the classifier over HTTP with echo.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	gommonlog "github.com/labstack/gommon/log"

	"github.com/skinscan/skinscan/internal/buildinfo"
	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/events"
	"github.com/skinscan/skinscan/internal/history"
	"github.com/skinscan/skinscan/internal/inference"
	"github.com/skinscan/skinscan/internal/logger"
	"github.com/skinscan/skinscan/internal/observability"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
	cacheCleanup      = 10 * time.Minute
	historySaveBudget = 5 * time.Second
)

// Server is the HTTP front of the classifier.
type Server struct {
	echo      *echo.Echo
	settings  *conf.Settings
	service   *inference.Service
	store     history.Interface
	events    *events.Dispatcher
	metrics   *observability.Metrics
	build     *buildinfo.Context
	listCache *pageCache
	startTime time.Time
}

// ServerOption configures optional collaborators.
type ServerOption func(*Server)

// WithHistory enables the history endpoints and per-request recording.
func WithHistory(store history.Interface) ServerOption {
	return func(s *Server) { s.store = store }
}

// WithEvents publishes each successful classification.
func WithEvents(d *events.Dispatcher) ServerOption {
	return func(s *Server) { s.events = d }
}

// WithMetrics records HTTP and history cache metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithBuildInfo sets the version reported by the health endpoint.
func WithBuildInfo(b *buildinfo.Context) ServerOption {
	return func(s *Server) { s.build = b }
}

// New builds the echo instance with middleware and routes.
func New(settings *conf.Settings, service *inference.Service, opts ...ServerOption) (*Server, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("inference service cannot be nil")
	}

	s := &Server{
		settings:  settings,
		service:   service,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.listCache = newPageCache(settings.History.CacheTTL)

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.httpErrorHandler
	if settings.WebServer.Debug {
		s.echo.Debug = true
		s.echo.Logger.SetLevel(gommonlog.DEBUG)
	} else {
		s.echo.Logger.SetLevel(gommonlog.ERROR)
	}

	s.setupMiddleware()
	s.setupRoutes()

	GetLogger().Info("HTTP server initialized",
		logger.String("address", settings.WebServer.Address()),
		logger.Bool("history", s.store != nil),
		logger.Bool("events", s.events != nil))
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.settings.WebServer.Address()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run with a caller supplied listener. In-flight requests get
// shutdownTimeout to finish after ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		GetLogger().Info("Starting HTTP server", logger.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	GetLogger().Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-errCh
	s.listCache.invalidate()
	return err
}
