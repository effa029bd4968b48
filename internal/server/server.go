// Package server provides the HTTP listener and the middleware chain shared
// by every route.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server owns the router and the listener.
type Server struct {
	Router *chi.Mux
	Port   int

	logger     *slog.Logger
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	requestTimeout time.Duration
	serviceName    string
}

// WithRequestTimeout bounds each request's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *serverConfig) {
		c.requestTimeout = d
	}
}

// WithServiceName names the inbound spans.
func WithServiceName(name string) Option {
	return func(c *serverConfig) {
		c.serviceName = name
	}
}

// New creates a server listening on port with the standard middleware chain.
func New(port int, logger *slog.Logger, opts ...Option) *Server {
	cfg := &serverConfig{
		requestTimeout: 30 * time.Second,
		serviceName:    "edge-proxy",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(cfg.requestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, cfg.serviceName)
	})

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start listens until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
