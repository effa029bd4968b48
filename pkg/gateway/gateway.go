// Package gateway provides the public API for embedding the edge proxy.
// This is the stable API for external consumers.
package gateway

import (
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/plugin"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/runtime"
)

// Gateway is the main entry point for running the edge proxy.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// Plugin is a post-processing hook subscription, registered with WithPlugins.
type Plugin = plugin.Plugin

// PluginContext is the input handed to a plugin callback.
type PluginContext = plugin.Context

// HookProcessOpenClientResponse runs after a successful ingress response has
// been unsealed.
const HookProcessOpenClientResponse = plugin.HookProcessOpenClientResponse

// New creates a new Gateway with the given options.
// Example:
//
//	gw, err := gateway.New(
//	    gateway.WithConfigFile("config.yaml"),
//	    gateway.WithSQLite("./data/results.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Bootstrap config
	WithConfigFile = runtime.WithConfigFile
	WithConfig     = runtime.WithConfig

	// Integration settings and secrets
	WithConfigStoreFile = runtime.WithConfigStoreFile
	WithConfigStore     = runtime.WithConfigStore
	WithSecretDir       = runtime.WithSecretDir
	WithSecretStore     = runtime.WithSecretStore

	// Result storage
	WithSQLite        = runtime.WithSQLite
	WithMemoryStorage = runtime.WithMemoryStorage
	WithResultStore   = runtime.WithResultStore

	// Advanced options
	WithPlugins           = runtime.WithPlugins
	WithUpstreamTransport = runtime.WithUpstreamTransport
	WithMetricsRegistry   = runtime.WithMetricsRegistry
	WithLogger            = runtime.WithLogger
)
