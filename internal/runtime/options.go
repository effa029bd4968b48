package runtime

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	configfile "github.com/tjfontaine/fingerprint-edge-proxy/internal/adapters/configstore/file"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/adapters/secretstore"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/pkg/config"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/plugin"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/storage/memory"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/storage/sqlite"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/telemetry"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithConfigFile loads bootstrap configuration from path plus EDGE_
// environment overrides.
func WithConfigFile(path string) Option {
	return func(g *Gateway) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		g.cfg = cfg
		return nil
	}
}

// WithConfig uses an already loaded bootstrap configuration.
func WithConfig(cfg *config.Config) Option {
	return func(g *Gateway) error {
		if cfg == nil {
			return fmt.Errorf("config must not be nil")
		}
		g.cfg = cfg
		return nil
	}
}

// WithConfigStoreFile uses a hot-reloadable YAML file for integration
// settings.
func WithConfigStoreFile(path string) Option {
	return func(g *Gateway) error {
		store, err := configfile.New(path, configfile.WithLogger(g.logger))
		if err != nil {
			return fmt.Errorf("create config store: %w", err)
		}
		g.configStore = store
		return nil
	}
}

// WithConfigStore sets a custom integration config store.
func WithConfigStore(store ports.ConfigStore) Option {
	return func(g *Gateway) error {
		g.configStore = store
		return nil
	}
}

// WithSecretDir reads secrets from EDGE_SECRET_ variables and files in dir.
func WithSecretDir(dir string) Option {
	return func(g *Gateway) error {
		g.secrets = secretstore.New(secretstore.DefaultEnvPrefix, dir)
		return nil
	}
}

// WithSecretStore sets a custom secret store.
func WithSecretStore(store ports.SecretStore) Option {
	return func(g *Gateway) error {
		g.secrets = store
		return nil
	}
}

// WithSQLite stores results in the SQLite database at path.
func WithSQLite(path string) Option {
	return func(g *Gateway) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		g.results = store
		return nil
	}
}

// WithMemoryStorage keeps results in memory.
func WithMemoryStorage() Option {
	return func(g *Gateway) error {
		g.results = memory.New()
		return nil
	}
}

// WithResultStore sets a custom result store.
func WithResultStore(store ports.ResultStore) Option {
	return func(g *Gateway) error {
		g.results = store
		return nil
	}
}

// WithPlugins registers plugins after the built-in ones, in order.
func WithPlugins(plugins ...plugin.Plugin) Option {
	return func(g *Gateway) error {
		g.extraPlugins = append(g.extraPlugins, plugins...)
		return nil
	}
}

// WithUpstreamTransport sets the base transport for backend requests.
func WithUpstreamTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) error {
		g.upstreamTransport = rt
		return nil
	}
}

// WithMetricsRegistry records metrics on reg instead of a private registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(g *Gateway) error {
		g.metrics = telemetry.NewMetrics(reg)
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}
