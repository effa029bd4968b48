// Package runtime assembles the proxy from configuration and manages its
// lifecycle.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	configfile "github.com/tjfontaine/fingerprint-edge-proxy/internal/adapters/configstore/file"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/adapters/secretstore"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/detached"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/ingress"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/pkg/config"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/plugin"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/postprocess"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/region"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/registration"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/server"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/storage"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/telemetry"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/upstream"
)

// Version is reported upstream in the traffic attribution parameter.
// Overridden at build time with -ldflags.
var Version = "dev"

// IntegrationName identifies this proxy to the backends.
const IntegrationName = "fingerprint-edge-proxy"

// Gateway is the proxy: the ingress router, its post-processing pipeline and
// the HTTP server in front of them.
type Gateway struct {
	// Dependencies (injected via options)
	cfg               *config.Config
	configStore       ports.ConfigStore
	secrets           ports.SecretStore
	results           ports.ResultStore
	extraPlugins      []plugin.Plugin
	upstreamTransport http.RoundTripper
	metrics           *telemetry.Metrics
	logger            *slog.Logger

	// Built by New
	registry *plugin.Registry
	executor *detached.Executor
	ingress  *ingress.Handler
	server   *server.Server

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	done   chan error
}

// New builds a Gateway. Dependencies not set by options are derived from
// the bootstrap configuration.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if gw.cfg == nil {
		return nil, fmt.Errorf("config required (use WithConfigFile or WithConfig)")
	}

	if err := gw.applyDefaults(); err != nil {
		return nil, err
	}
	if err := gw.build(); err != nil {
		return nil, err
	}
	return gw, nil
}

func (g *Gateway) applyDefaults() error {
	cfg := g.cfg

	if g.configStore == nil {
		store, err := configfile.New(cfg.Stores.Config.Path, configfile.WithLogger(g.logger))
		if err != nil {
			return fmt.Errorf("create config store: %w", err)
		}
		g.configStore = store
	}
	if g.secrets == nil {
		g.secrets = secretstore.New(secretstore.DefaultEnvPrefix, cfg.Stores.Secrets.Dir)
	}
	if g.results == nil {
		store, err := storage.New(cfg.Storage)
		if err != nil {
			return fmt.Errorf("create result store: %w", err)
		}
		g.results = store
	}
	if g.metrics == nil && cfg.Telemetry.Metrics {
		g.metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	}
	if g.upstreamTransport == nil {
		g.upstreamTransport = http.DefaultTransport
	}
	return nil
}

func (g *Gateway) build() error {
	cfg := g.cfg

	regions, err := newRegionMap(cfg.Upstream.Backends)
	if err != nil {
		return err
	}

	builtins, err := registration.Builtins(cfg.Plugins, g.results)
	if err != nil {
		return fmt.Errorf("register plugins: %w", err)
	}
	g.registry, err = plugin.NewRegistry(append(builtins, g.extraPlugins...)...)
	if err != nil {
		return fmt.Errorf("build plugin registry: %w", err)
	}

	dispatcher := plugin.NewDispatcher(g.registry,
		plugin.WithLogger(g.logger),
		plugin.WithMetrics(g.metrics))

	processor := postprocess.New(g.secrets, dispatcher,
		postprocess.WithLogger(g.logger),
		postprocess.WithMetrics(g.metrics))

	g.executor = detached.New(cfg.Detached.Limit,
		detached.WithTimeout(cfg.Detached.TaskTimeout),
		detached.WithLogger(g.logger),
		detached.WithMetrics(g.metrics))

	fetcher := upstream.New(
		upstream.WithTransport(g.upstreamTransport),
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithLogger(g.logger),
		upstream.WithMetrics(g.metrics))

	ingressOpts := []ingress.Option{
		ingress.WithConfigStore(g.configStore),
		ingress.WithSecretStore(g.secrets),
		ingress.WithPostProcessing(g.executor, processor),
		ingress.WithClientIPHeader(cfg.Server.ClientIPHeader),
		ingress.WithIntegration(IntegrationName, Version),
		ingress.WithLogger(g.logger),
		ingress.WithMetrics(g.metrics),
	}
	if cfg.Upstream.CDN != "" {
		cdn, err := region.NewBackend("cdn", cfg.Upstream.CDN)
		if err != nil {
			return err
		}
		ingressOpts = append(ingressOpts, ingress.WithCDN(cdn))
	}
	g.ingress = ingress.NewHandler(regions, fetcher, ingressOpts...)

	g.server = server.New(cfg.Server.Port, g.logger,
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
		server.WithServiceName(cfg.Telemetry.ServiceName))
	g.mountRoutes(regions)

	g.logger.Info("gateway built",
		slog.Any("plugins", g.registry.Names()),
		slog.Int("detached_limit", cfg.Detached.Limit))
	return nil
}

func (g *Gateway) mountRoutes(regions *region.Map) {
	r := g.server.Router

	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"version": Version,
			"plugins": g.registry.Names(),
			"regions": regionNames(regions),
		})
		if err != nil {
			server.AddError(r.Context(), err)
			g.logger.WarnContext(r.Context(), "write health response failed",
				slog.String("request_id", server.GetRequestID(r.Context())),
				slog.String("error", err.Error()))
		}
	})
	r.Handle("/*", g.ingress)
}

// Handler returns the fully wired HTTP handler, including middleware.
func (g *Gateway) Handler() http.Handler {
	return g.server.Router
}

// Start serves HTTP in the background and, when configured, watches the
// config store for changes.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ctx, g.cancel = context.WithCancel(ctx)

	if g.cfg.Stores.Config.Watch {
		if watcher, ok := g.configStore.(ports.ConfigWatcher); ok {
			if err := watcher.Watch(g.ctx, func() {
				g.logger.Info("integration settings changed")
			}); err != nil {
				g.logger.Warn("config store watch failed", slog.String("error", err.Error()))
			}
		}
	}

	g.done = make(chan error, 1)
	go func() {
		err := g.server.Start()
		if err != nil {
			g.logger.Error("server error", slog.String("error", err.Error()))
		}
		g.done <- err
	}()

	g.logger.Info("gateway started", slog.Int("port", g.cfg.Server.Port))
	return nil
}

// Done receives the server's exit error once it stops. Nil before Start.
func (g *Gateway) Done() <-chan error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

// Shutdown stops the server, gives detached tasks up to the configured
// drain wait, then closes the stores.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	if g.cancel != nil {
		g.cancel()
	}

	if err := g.server.Shutdown(ctx); err != nil {
		g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		return err
	}

	drainCtx := ctx
	if wait := g.cfg.Detached.DrainWait; wait > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	if err := g.executor.Shutdown(drainCtx); err != nil {
		g.logger.Error("failed to drain detached tasks", slog.String("error", err.Error()))
	}

	if watcher, ok := g.configStore.(ports.ConfigWatcher); ok {
		if err := watcher.Close(); err != nil {
			g.logger.Error("failed to close config store", slog.String("error", err.Error()))
		}
	}
	if err := g.results.Close(); err != nil {
		g.logger.Error("failed to close result store", slog.String("error", err.Error()))
	}

	g.logger.Info("gateway shutdown complete")
	return nil
}
