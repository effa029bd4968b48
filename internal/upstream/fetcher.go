// Package upstream sends prepared requests to regional backends.
package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/region"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/response"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/telemetry"
)

// CacheMode controls how intermediaries may cache a fetch.
type CacheMode int

const (
	// CacheDefault leaves caching to the backend's response headers.
	CacheDefault CacheMode = iota
	// CachePass asks every intermediary to go to the origin.
	CachePass
)

func (m CacheMode) String() string {
	if m == CachePass {
		return "pass"
	}
	return "default"
}

// Options describe a single fetch.
type Options struct {
	Cache CacheMode

	// Route and Region label the request in metrics and logs.
	Route  string
	Region string
}

// Fetcher forwards requests to backends. Failures are returned, never retried.
type Fetcher struct {
	client  *http.Client
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Fetcher.
type Option func(*fetcherConfig)

type fetcherConfig struct {
	transport http.RoundTripper
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// WithTransport sets the base transport. It is wrapped for tracing.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *fetcherConfig) {
		c.transport = rt
	}
}

// WithTimeout bounds each fetch including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *fetcherConfig) {
		c.timeout = d
	}
}

// WithLogger sets the logger for the fetcher.
func WithLogger(logger *slog.Logger) Option {
	return func(c *fetcherConfig) {
		c.logger = logger
	}
}

// WithMetrics records upstream requests on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *fetcherConfig) {
		c.metrics = m
	}
}

// New creates a fetcher.
func New(opts ...Option) *Fetcher {
	cfg := &fetcherConfig{
		transport: http.DefaultTransport,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Fetcher{
		client: &http.Client{
			Transport: otelhttp.NewTransport(cfg.transport),
			Timeout:   cfg.timeout,
			// Redirects belong to the client, not the proxy.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}
}

// Fetch sends req to backend. Only the path and query of req.URL are used;
// scheme and host come from the backend. req is not modified.
func (f *Fetcher) Fetch(ctx context.Context, backend region.Backend, req *http.Request, opts Options) (*http.Response, error) {
	if backend.URL == nil {
		return nil, fmt.Errorf("backend %q has no URL", backend.Name)
	}

	out := req.Clone(ctx)
	out.RequestURI = ""
	out.URL.Scheme = backend.URL.Scheme
	out.URL.Host = backend.URL.Host
	out.URL.Path = joinPath(backend.URL.Path, req.URL.Path)
	out.URL.RawPath = ""
	out.Host = backend.URL.Host
	response.StripHopByHop(out.Header)

	if opts.Cache == CachePass {
		out.Header.Set("Cache-Control", "no-cache")
		out.Header.Set("Pragma", "no-cache")
	}

	start := time.Now()
	resp, err := f.client.Do(out)
	elapsed := time.Since(start)

	if err != nil {
		f.metrics.ObserveUpstream(opts.Route, opts.Region, req.Method, 0, elapsed.Seconds())
		f.logger.ErrorContext(ctx, "upstream request failed",
			slog.String("backend", backend.Name),
			slog.String("method", req.Method),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("fetch %s: %w", backend.Name, err)
	}

	f.metrics.ObserveUpstream(opts.Route, opts.Region, req.Method, resp.StatusCode, elapsed.Seconds())
	f.logger.DebugContext(ctx, "upstream response",
		slog.String("backend", backend.Name),
		slog.String("method", req.Method),
		slog.Int("status", resp.StatusCode),
		slog.String("cache", opts.Cache.String()),
		slog.Duration("duration", elapsed))

	return resp, nil
}

func joinPath(base, p string) string {
	base = strings.TrimSuffix(base, "/")
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return base + p
}
