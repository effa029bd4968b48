package plugin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/response"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/sealed"
)

func noop(context.Context, *Context) error { return nil }

func testSnapshot() *response.Snapshot {
	return response.FromBytes([]byte(`{"sealedResult":"x"}`), &http.Response{
		StatusCode: 200,
		Status:     "200 OK",
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	})
}

func testEvent() sealed.Event {
	return sealed.Event{"products": map[string]any{}}
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		plugins []Plugin
		wantErr string
	}{
		{
			name:    "missing name",
			plugins: []Plugin{{Type: HookProcessOpenClientResponse, Callback: noop}},
			wantErr: "name is required",
		},
		{
			name:    "missing callback",
			plugins: []Plugin{{Name: "a", Type: HookProcessOpenClientResponse}},
			wantErr: "callback is required",
		},
		{
			name:    "unknown hook",
			plugins: []Plugin{{Name: "a", Type: "otherType", Callback: noop}},
			wantErr: "unknown hook type",
		},
		{
			name: "duplicate",
			plugins: []Plugin{
				{Name: "a", Type: HookProcessOpenClientResponse, Callback: noop},
				{Name: "a", Type: HookProcessOpenClientResponse, Callback: noop},
			},
			wantErr: "duplicate name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.plugins...)
			var regErr *RegistrationError
			if !errors.As(err, &regErr) {
				t.Fatalf("expected RegistrationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRegistry_IsImmutable(t *testing.T) {
	input := []Plugin{
		{Name: "first", Type: HookProcessOpenClientResponse, Callback: noop},
		{Name: "second", Type: HookProcessOpenClientResponse, Callback: noop},
	}
	r, err := NewRegistry(input...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	input[0].Name = "changed"
	got := r.ForHook(HookProcessOpenClientResponse)
	got[1].Name = "also changed"

	names := r.Names()
	if len(names) != 2 || names[0] != "first" || names[1] != "second" {
		t.Errorf("Names() = %v", names)
	}
	if len(r.ForHook("otherType")) != 0 {
		t.Error("expected no plugins for unknown hook")
	}
}

func TestDispatch_SequentialInRegistrationOrder(t *testing.T) {
	var order []string
	record := func(name string) Callback {
		return func(ctx context.Context, pc *Context) error {
			order = append(order, name)
			return nil
		}
	}

	r, err := NewRegistry(
		Plugin{Name: "testPlugin1", Type: HookProcessOpenClientResponse, Callback: record("testPlugin1")},
		Plugin{Name: "testPlugin2", Type: HookProcessOpenClientResponse, Callback: record("testPlugin2")},
		Plugin{Name: "testPlugin3", Type: HookProcessOpenClientResponse, Callback: record("testPlugin3")},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	NewDispatcher(r).Dispatch(context.Background(), testEvent(), testSnapshot())

	want := []string{"testPlugin1", "testPlugin2", "testPlugin3"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestDispatch_FailureIsolation(t *testing.T) {
	secondCalled := false
	thirdCalled := false

	r, err := NewRegistry(
		Plugin{Name: "failing", Type: HookProcessOpenClientResponse, Callback: func(context.Context, *Context) error {
			return errors.New("plugin exploded")
		}},
		Plugin{Name: "panicking", Type: HookProcessOpenClientResponse, Callback: func(context.Context, *Context) error {
			secondCalled = true
			panic("unexpected")
		}},
		Plugin{Name: "healthy", Type: HookProcessOpenClientResponse, Callback: func(context.Context, *Context) error {
			thirdCalled = true
			return nil
		}},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	NewDispatcher(r, WithLogger(logger)).Dispatch(context.Background(), testEvent(), testSnapshot())

	if !secondCalled || !thirdCalled {
		t.Fatalf("later plugins not invoked: second=%v third=%v", secondCalled, thirdCalled)
	}
	out := logs.String()
	if !strings.Contains(out, "plugin=failing") || !strings.Contains(out, "plugin exploded") {
		t.Errorf("failure not logged with plugin name:\n%s", out)
	}
	if !strings.Contains(out, "plugin=panicking") {
		t.Errorf("panic not logged with plugin name:\n%s", out)
	}
}

func TestDispatch_EachPluginGetsOwnResponse(t *testing.T) {
	var bodies []string
	var seen []*http.Response

	consume := func(ctx context.Context, pc *Context) error {
		seen = append(seen, pc.HTTPResponse)
		b, err := io.ReadAll(pc.HTTPResponse.Body)
		if err != nil {
			return err
		}
		bodies = append(bodies, string(b))
		pc.HTTPResponse.Header.Set("Content-Type", "mutated")
		return nil
	}

	r, err := NewRegistry(
		Plugin{Name: "a", Type: HookProcessOpenClientResponse, Callback: consume},
		Plugin{Name: "b", Type: HookProcessOpenClientResponse, Callback: consume},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	snap := testSnapshot()
	NewDispatcher(r).Dispatch(context.Background(), testEvent(), snap)

	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[0] != `{"sealedResult":"x"}` {
		t.Errorf("bodies = %q", bodies)
	}
	if seen[0] == seen[1] {
		t.Error("plugins shared a response value")
	}
	if seen[1].Header.Get("Content-Type") != "mutated" || snap.Header.Get("Content-Type") != "application/json" {
		t.Error("header mutation leaked into snapshot")
	}
}

func TestDispatch_PassesEvent(t *testing.T) {
	var got sealed.Event
	r, err := NewRegistry(Plugin{Name: "a", Type: HookProcessOpenClientResponse, Callback: func(ctx context.Context, pc *Context) error {
		got = pc.Event
		return nil
	}})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	event := sealed.Event{"products": map[string]any{"identification": map[string]any{"data": map[string]any{"requestId": "req-1"}}}}
	NewDispatcher(r).Dispatch(context.Background(), event, testSnapshot())

	if got.RequestID() != "req-1" {
		t.Errorf("event RequestID = %q", got.RequestID())
	}
}

func TestDispatch_EmptyRegistry(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	NewDispatcher(r).Dispatch(context.Background(), testEvent(), testSnapshot())
	NewDispatcher(nil).Dispatch(context.Background(), testEvent(), testSnapshot())
}
