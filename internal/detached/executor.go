// Package detached runs best-effort background work that outlives the
// request that scheduled it.
//
// Tasks are fire-and-forget: the caller gets no handle, no result and no
// way to cancel. They run with a context that keeps the request's values
// (request id, trace span) but not its cancellation. The number of tasks in
// flight is bounded; when the bound is reached new tasks are dropped rather
// than queued.
package detached

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/telemetry"
)

// DefaultLimit bounds concurrent tasks when no limit is configured.
const DefaultLimit = 64

// Executor is a bounded fire-and-forget task runner.
type Executor struct {
	group   *errgroup.Group
	timeout time.Duration
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu      sync.RWMutex
	stopped bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger for the executor.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics counts dropped tasks on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithTimeout bounds each task's run time. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// New creates an executor running at most limit tasks at once.
func New(limit int, opts ...Option) *Executor {
	if limit <= 0 {
		limit = DefaultLimit
	}

	e := &Executor{
		group:  new(errgroup.Group),
		logger: slog.Default(),
	}
	e.group.SetLimit(limit)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Go schedules fn and returns immediately. It reports whether the task was
// accepted; a rejected task is logged and counted, never queued.
func (e *Executor) Go(ctx context.Context, name string, fn func(context.Context)) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.stopped {
		e.drop(ctx, name, "executor stopped")
		return false
	}

	taskCtx := context.WithoutCancel(ctx)
	accepted := e.group.TryGo(func() error {
		e.run(taskCtx, name, fn)
		return nil
	})
	if !accepted {
		e.drop(ctx, name, "executor saturated")
	}
	return accepted
}

func (e *Executor) run(ctx context.Context, name string, fn func(context.Context)) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "detached task panicked",
				slog.String("task", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	fn(ctx)
}

func (e *Executor) drop(ctx context.Context, name, reason string) {
	e.metrics.TaskDropped()
	e.logger.WarnContext(ctx, "detached task dropped",
		slog.String("task", name),
		slog.String("reason", reason))
}

// Shutdown stops accepting tasks and waits for in-flight ones until ctx is
// done. Tasks still running when ctx expires are abandoned.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = e.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.logger.Warn("abandoning in-flight detached tasks", slog.String("reason", ctx.Err().Error()))
		return nil
	}
}
