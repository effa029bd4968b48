// Package registration declares the built-in plugins in one place. The list
// it returns is turned into the immutable plugin registry at startup.
package registration

import (
	"fmt"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/pkg/config"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/plugin"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/plugins/kvstore"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/plugins/webhook"
)

// Builtins returns the enabled built-in plugins in dispatch order: the
// result store first, then one webhook per configured URL.
func Builtins(cfg config.PluginsConfig, results ports.ResultStore) ([]plugin.Plugin, error) {
	var plugins []plugin.Plugin

	if cfg.SaveToKVStore.Enabled {
		if results == nil {
			return nil, fmt.Errorf("plugin %s: no result store configured", kvstore.Name)
		}
		plugins = append(plugins, kvstore.New(results))
	}

	if cfg.Webhook.Enabled {
		for i, u := range cfg.Webhook.URLs {
			if u == "" {
				return nil, fmt.Errorf("webhook %d: empty url", i)
			}
			wh := webhook.New(webhook.Config{
				Name:         fmt.Sprintf("webhook-%d", i),
				URL:          u,
				Timeout:      cfg.Webhook.Timeout,
				Headers:      cfg.Webhook.Headers,
				AllowPrivate: cfg.Webhook.AllowPrivate,
			})
			plugins = append(plugins, wh.Plugin())
		}
	}

	return plugins, nil
}
