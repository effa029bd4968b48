// Package kvstore saves every unsealed identification result in a
// ResultStore, keyed by its request ID.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/plugin"
)

// Name is the plugin's registered name.
const Name = "save-to-kv-store"

// Option configures the plugin.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sets the logger for the plugin.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New returns the plugin writing to store. Events without
// products.identification.data.requestId are skipped.
func New(store ports.ResultStore, opts ...Option) plugin.Plugin {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	return plugin.Plugin{
		Name: Name,
		Type: plugin.HookProcessOpenClientResponse,
		Callback: func(ctx context.Context, pc *plugin.Context) error {
			requestID := pc.Event.RequestID()
			if requestID == "" {
				cfg.logger.DebugContext(ctx, "event has no request id, not saving",
					slog.String("plugin", Name))
				return nil
			}

			value, err := json.Marshal(pc.Event)
			if err != nil {
				return fmt.Errorf("encode event: %w", err)
			}
			return store.Put(ctx, requestID, value)
		},
	}
}
