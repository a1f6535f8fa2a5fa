package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Server is the operational HTTP surface: probes, version, metrics and the
// EventSub callback.
type Server struct {
	echo *echo.Echo
	port string

	webhookHandler http.Handler
	metricsHandler http.Handler
	httpMetrics    echo.MiddlewareFunc

	healthChecks []HealthCheck
	startTime    time.Time
}

type Option func(*Server)

// WithWebhookHandler mounts POST /webhooks/eventsub. Without it the route
// is not registered.
func WithWebhookHandler(h http.Handler) Option {
	return func(s *Server) { s.webhookHandler = h }
}

func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithHTTPMetrics installs request instrumentation ahead of every route.
func WithHTTPMetrics(mw echo.MiddlewareFunc) Option {
	return func(s *Server) { s.httpMetrics = mw }
}

func WithHealthChecks(checks ...HealthCheck) Option {
	return func(s *Server) { s.healthChecks = checks }
}

func NewServer(port string, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		port:      port,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()
	return srv
}

// Start blocks until the server stops. A shutdown is not reported as an error.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
