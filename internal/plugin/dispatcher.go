package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/response"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/sealed"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/telemetry"
)

// Dispatcher invokes registry plugins for unsealed events.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger for the dispatcher.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics records plugin outcomes on m.
func WithMetrics(m *telemetry.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the HookProcessOpenClientResponse plugins for event.
func (d *Dispatcher) Dispatch(ctx context.Context, event sealed.Event, snap *response.Snapshot) {
	plugins := d.registry.ForHook(HookProcessOpenClientResponse)
	if len(plugins) == 0 {
		d.logger.DebugContext(ctx, "no plugins registered for hook",
			slog.String("hook", string(HookProcessOpenClientResponse)))
		return
	}

	for _, p := range plugins {
		start := time.Now()
		err := d.invoke(ctx, p, &Context{
			Event:        event,
			HTTPResponse: snap.HTTPResponse(),
		})
		elapsed := time.Since(start)

		if err != nil {
			d.metrics.ObservePlugin(p.Name, "error", elapsed.Seconds())
			d.logger.ErrorContext(ctx, "plugin failed",
				slog.String("plugin", p.Name),
				slog.String("error", err.Error()))
			continue
		}

		d.metrics.ObservePlugin(p.Name, "ok", elapsed.Seconds())
		d.logger.DebugContext(ctx, "plugin finished",
			slog.String("plugin", p.Name),
			slog.Duration("duration", elapsed))
	}
}

func (d *Dispatcher) invoke(ctx context.Context, p Plugin, pc *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	defer pc.HTTPResponse.Body.Close()

	return p.Callback(ctx, pc)
}
