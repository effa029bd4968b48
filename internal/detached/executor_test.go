package detached

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type ctxKey struct{}

func TestExecutor_RunsDetachedFromCancellation(t *testing.T) {
	e := New(4)

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "req-1"))

	got := make(chan string, 1)
	release := make(chan struct{})
	ok := e.Go(ctx, "test", func(taskCtx context.Context) {
		<-release
		if taskCtx.Err() != nil {
			got <- "cancelled"
			return
		}
		v, _ := taskCtx.Value(ctxKey{}).(string)
		got <- v
	})
	if !ok {
		t.Fatal("task rejected")
	}

	cancel()
	close(release)

	select {
	case v := <-got:
		if v != "req-1" {
			t.Errorf("task saw %q, want request value and live context", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestExecutor_DropsWhenSaturated(t *testing.T) {
	e := New(1)

	block := make(chan struct{})
	if !e.Go(context.Background(), "blocker", func(context.Context) { <-block }) {
		t.Fatal("first task rejected")
	}

	if e.Go(context.Background(), "overflow", func(context.Context) {}) {
		t.Error("expected second task to be dropped")
	}

	close(block)
	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestExecutor_RecoversPanics(t *testing.T) {
	e := New(2)

	var ran atomic.Bool
	e.Go(context.Background(), "panics", func(context.Context) { panic("boom") })
	e.Go(context.Background(), "fine", func(context.Context) { ran.Store(true) })

	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !ran.Load() {
		t.Error("sibling task did not run")
	}
}

func TestExecutor_RejectsAfterShutdown(t *testing.T) {
	e := New(2)
	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if e.Go(context.Background(), "late", func(context.Context) {}) {
		t.Error("expected task to be rejected after shutdown")
	}
}

func TestExecutor_ShutdownAbandonsStuckTasks(t *testing.T) {
	e := New(1)
	e.Go(context.Background(), "stuck", func(context.Context) { select {} })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Shutdown did not honour its context")
	}
}

func TestExecutor_TaskTimeout(t *testing.T) {
	e := New(1, WithTimeout(10*time.Millisecond))

	done := make(chan error, 1)
	e.Go(context.Background(), "slow", func(ctx context.Context) {
		<-ctx.Done()
		done <- ctx.Err()
	})

	select {
	case err := <-done:
		if err != context.DeadlineExceeded {
			t.Errorf("ctx.Err() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task deadline not applied")
	}
}
