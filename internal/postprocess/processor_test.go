package postprocess

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/plugin"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/response"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/sealed"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/settings"
)

var testKey = bytes.Repeat([]byte{0x42}, sealed.KeySize)

func secrets(key []byte) ports.SecretStore {
	return ports.SecretStoreFunc(func(name string) ([]byte, bool) {
		if name != settings.KeyDecryptionKey || key == nil {
			return nil, false
		}
		return []byte(base64.StdEncoding.EncodeToString(key)), true
	})
}

type recorder struct {
	events []sealed.Event
	bodies []string
}

func (r *recorder) plugin() plugin.Plugin {
	return plugin.Plugin{
		Name: "recorder",
		Type: plugin.HookProcessOpenClientResponse,
		Callback: func(_ context.Context, pc *plugin.Context) error {
			b, _ := io.ReadAll(pc.HTTPResponse.Body)
			r.events = append(r.events, pc.Event)
			r.bodies = append(r.bodies, string(b))
			return nil
		},
	}
}

func newProcessor(t *testing.T, key []byte, rec *recorder) *Processor {
	t.Helper()
	reg, err := plugin.NewRegistry(rec.plugin())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return New(secrets(key), plugin.NewDispatcher(reg))
}

func sealedBody(t *testing.T, event map[string]any) string {
	t.Helper()
	s, err := sealed.Seal(event, testKey)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	b, err := json.Marshal(Body{SealedResult: s})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func snapshot(body string) *response.Snapshot {
	return response.FromBytes([]byte(body), &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{"Content-Type": {"application/json"}},
	})
}

func TestProcess_DispatchesUnsealedEvent(t *testing.T) {
	event := map[string]any{
		"products": map[string]any{
			"identification": map[string]any{
				"data": map[string]any{"requestId": "1700000000000.abc123", "visitorId": "v1"},
			},
		},
	}
	body := sealedBody(t, event)

	rec := &recorder{}
	p := newProcessor(t, testKey, rec)

	if err := p.Process(context.Background(), body, snapshot(body)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("plugin called %d times", len(rec.events))
	}
	if diff := cmp.Diff(sealed.Event(event), rec.events[0]); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
	if rec.bodies[0] != body {
		t.Errorf("plugin saw body %q", rec.bodies[0])
	}
}

func TestProcess_Failures(t *testing.T) {
	valid := sealedBody(t, map[string]any{"ok": true})

	tests := []struct {
		name    string
		key     []byte
		body    string
		wantErr error
	}{
		{name: "missing key", key: nil, body: valid, wantErr: ErrMissingDecryptionKey},
		{name: "not json", key: testKey, body: "<html>", wantErr: nil},
		{name: "no sealed result", key: testKey, body: `{"products":{}}`, wantErr: ErrMissingSealedResult},
		{name: "wrong key", key: bytes.Repeat([]byte{1}, sealed.KeySize), body: valid, wantErr: sealed.ErrDecrypt},
		{name: "bad header", key: testKey, body: `{"sealedResult":"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}`, wantErr: sealed.ErrInvalidHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			p := newProcessor(t, tt.key, rec)

			err := p.Process(context.Background(), tt.body, snapshot(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if len(rec.events) != 0 {
				t.Error("plugins must not run when processing fails")
			}
		})
	}
}

func TestProcess_BlankKeyIsMissing(t *testing.T) {
	store := ports.SecretStoreFunc(func(string) ([]byte, bool) { return []byte(" \n"), true })
	p := New(store, plugin.NewDispatcher(nil))

	err := p.Process(context.Background(), "{}", snapshot("{}"))
	if !errors.Is(err, ErrMissingDecryptionKey) {
		t.Errorf("error = %v", err)
	}
}
