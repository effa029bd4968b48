package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/region"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/telemetry"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/testutil"
)

func backend(t *testing.T, name, raw string) region.Backend {
	t.Helper()
	b, err := region.NewBackend(name, raw)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestFetcher_Cassette(t *testing.T) {
	rec := testutil.NewRecorder(t, "fetch")
	f := New(WithTransport(rec))

	t.Run("ingress post", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/?ii=fingerprint-edge-proxy%2F1.0.0%2Fingress", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("FPJS-Proxy-Secret", "proxy-secret")

		resp, err := f.Fetch(context.Background(), backend(t, "us", "https://api.fpjs.io"), req, Options{})
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), `"sealedResult":"ntzt"`) {
			t.Errorf("body = %s", body)
		}
		if got := resp.Header.Get("Set-Cookie"); !strings.HasPrefix(got, "_iidt=tok") {
			t.Errorf("Set-Cookie = %q", got)
		}
	})

	t.Run("cache pass", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v3/loader?apiKey=public", nil)

		resp, err := f.Fetch(context.Background(), backend(t, "eu", "https://eu.api.fpjs.io"), req, Options{Cache: CachePass})
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		defer resp.Body.Close()

		if resp.Header.Get("Content-Type") != "text/javascript" {
			t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
		}
	})

	t.Run("error status passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/missing", nil)

		resp, err := f.Fetch(context.Background(), backend(t, "us", "https://api.fpjs.io"), req, Options{})
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})
}

func TestFetcher_RewritesTarget(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	f := New()
	req := httptest.NewRequest(http.MethodGet, "http://edge.example.com/agent/v3?x=1", nil)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("X-Custom", "kept")

	resp, err := f.Fetch(context.Background(), backend(t, "test", srv.URL+"/base/"), req, Options{Cache: CachePass})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	resp.Body.Close()

	if got.URL.Path != "/base/agent/v3" || got.URL.RawQuery != "x=1" {
		t.Errorf("upstream URL = %s", got.URL)
	}
	if got.Header.Get("X-Custom") != "kept" {
		t.Error("custom header dropped")
	}
	if got.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q", got.Header.Get("Cache-Control"))
	}
	if req.URL.Host != "edge.example.com" {
		t.Error("original request was modified")
	}
}

func TestFetcher_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	resp, err := New().Fetch(context.Background(), backend(t, "test", srv.URL), httptest.NewRequest(http.MethodGet, "/", nil), Options{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestFetcher_FailureIsReturnedAndCounted(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	f := New(WithTransport(failingTransport{}), WithMetrics(m))

	_, err := f.Fetch(context.Background(), backend(t, "us", "https://api.fpjs.io"),
		httptest.NewRequest(http.MethodPost, "/", nil), Options{Route: "ingress", Region: "us"})
	if err == nil {
		t.Fatal("expected error")
	}

	count, err := promtest.GatherAndCount(m.Registry(), "edgeproxy_upstream_requests_total")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("series = %d, want 1", count)
	}
}

func TestFetcher_RequiresBackendURL(t *testing.T) {
	_, err := New().Fetch(context.Background(), region.Backend{Name: "none"}, httptest.NewRequest(http.MethodGet, "/", nil), Options{})
	if err == nil {
		t.Error("expected error")
	}
}
