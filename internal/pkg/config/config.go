// Package config loads the proxy's bootstrap configuration: listener,
// backends, stores and plugins. Integration settings that change at runtime
// live in the config and secret stores instead.
package config

import (
	"errors"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes bootstrap environment overrides. A double underscore
// separates nesting levels: EDGE_SERVER__PORT sets server.port.
const EnvPrefix = "EDGE_"

// Prefixes owned by the config and secret stores; ignored here.
const (
	ConfigStoreEnvPrefix = "EDGE_CONFIG_"
	SecretStoreEnvPrefix = "EDGE_SECRET_"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Stores    StoresConfig    `koanf:"stores"`
	Storage   StorageConfig   `koanf:"storage"`
	Detached  DetachedConfig  `koanf:"detached"`
	Plugins   PluginsConfig   `koanf:"plugins"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// ClientIPHeader names a header set by a trusted edge in front of the
	// proxy, e.g. Fastly-Client-IP. Empty means use the peer address.
	ClientIPHeader string `koanf:"client_ip_header"`
}

type UpstreamConfig struct {
	Timeout  time.Duration     `koanf:"timeout"`
	Backends map[string]string `koanf:"backends"` // region -> base URL
	CDN      string            `koanf:"cdn"`
}

type StoresConfig struct {
	Config  ConfigStoreConfig `koanf:"config"`
	Secrets SecretStoreConfig `koanf:"secrets"`
}

type ConfigStoreConfig struct {
	Path  string `koanf:"path"` // optional YAML file of integration settings
	Watch bool   `koanf:"watch"`
}

type SecretStoreConfig struct {
	Dir string `koanf:"dir"` // optional directory, one file per secret
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type DetachedConfig struct {
	Limit       int           `koanf:"limit"`
	TaskTimeout time.Duration `koanf:"task_timeout"`
	DrainWait   time.Duration `koanf:"drain_wait"`
}

type PluginsConfig struct {
	SaveToKVStore SaveToKVStoreConfig `koanf:"save_to_kv_store"`
	Webhook       WebhookConfig       `koanf:"webhook"`
}

type SaveToKVStoreConfig struct {
	Enabled bool `koanf:"enabled"`
}

type WebhookConfig struct {
	Enabled      bool              `koanf:"enabled"`
	URLs         []string          `koanf:"urls"`
	Headers      map[string]string `koanf:"headers"`
	Timeout      time.Duration     `koanf:"timeout"`
	AllowPrivate bool              `koanf:"allow_private"`
}

type TelemetryConfig struct {
	ServiceName string  `koanf:"service_name"`
	Tracing     bool    `koanf:"tracing"`
	SampleRatio float64 `koanf:"sample_ratio"`
	Metrics     bool    `koanf:"metrics"`
}

var defaults = map[string]any{
	"server.port":             8080,
	"server.request_timeout":  "30s",
	"upstream.timeout":        "10s",
	"upstream.backends.us":    "https://api.fpjs.io",
	"upstream.backends.eu":    "https://eu.api.fpjs.io",
	"upstream.backends.ap":    "https://ap.api.fpjs.io",
	"upstream.cdn":            "https://fpcdn.io",
	"storage.type":            "memory",
	"storage.sqlite.path":     "edgeproxy.db",
	"detached.limit":          64,
	"detached.task_timeout":   "30s",
	"detached.drain_wait":     "5s",
	"plugins.webhook.timeout": "5s",
	"telemetry.service_name":  "edge-proxy",
	"telemetry.sample_ratio":  1.0,
	"telemetry.metrics":       true,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (if it exists), overlays EDGE_ environment variables and
// fills defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i, u := range cfg.Plugins.Webhook.URLs {
		cfg.Plugins.Webhook.URLs[i] = substituteEnvVars(u)
	}
	for name, v := range cfg.Plugins.Webhook.Headers {
		cfg.Plugins.Webhook.Headers[name] = substituteEnvVars(v)
	}

	return &cfg, nil
}

func envKey(s string) string {
	if strings.HasPrefix(s, ConfigStoreEnvPrefix) || strings.HasPrefix(s, SecretStoreEnvPrefix) {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
