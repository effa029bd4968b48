package ingress

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/region"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/upstream"
)

func TestAgentPath(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantPath string
		wantRest string
		wantErr  error
	}{
		{"defaults", "apiKey=pub", "/v3/pub", "", nil},
		{"loader", "apiKey=pub&version=4&loaderVersion=4.1.0", "/v4/pub/loader_v4.1.0.js", "", nil},
		{"extra params kept", "apiKey=pub&foo=bar", "/v3/pub", "foo=bar", nil},
		{"missing key", "version=3", "", "", errMissingAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			p, rest, err := agentPath(q)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if p != tt.wantPath {
				t.Errorf("path = %q, want %q", p, tt.wantPath)
			}
			if rest.Encode() != tt.wantRest {
				t.Errorf("rest = %q, want %q", rest.Encode(), tt.wantRest)
			}
		})
	}
}

func TestAgentDownload(t *testing.T) {
	f := &stubFetcher{respond: backendResponse(http.StatusOK, `/* agent */`)}
	cdn, err := region.NewBackend("cdn", region.DefaultCDNHost)
	if err != nil {
		t.Fatal(err)
	}
	h := newTestHandler(t, f, WithCDN(cdn))

	req := httptest.NewRequest(http.MethodGet, "/agent?apiKey=pub&loaderVersion=3.9.0", nil)
	req.Header.Set("Cookie", "_iidt=tok")
	resp := capture(t, h.Handle(req))

	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d", resp.Status)
	}
	call := f.last(t)
	if call.backend.Name != "cdn" {
		t.Errorf("backend = %q", call.backend.Name)
	}
	if call.req.URL.Path != "/v3/pub/loader_v3.9.0.js" {
		t.Errorf("path = %q", call.req.URL.Path)
	}
	if got := call.req.URL.Query().Get(TrafficParam); got != "fingerprint-edge-proxy/1.0.0/procdn" {
		t.Errorf("%s = %q", TrafficParam, got)
	}
	if call.opts.Cache != upstream.CachePass {
		t.Error("agent downloads bypass the cache")
	}
	if _, ok := call.req.Header["Cookie"]; ok {
		t.Error("cookies should not reach the CDN")
	}
}

func TestAgentDownload_Errors(t *testing.T) {
	f := &stubFetcher{respond: backendResponse(http.StatusOK, ``)}

	unconfigured := newTestHandler(t, f)
	if resp := capture(t, unconfigured.Handle(httptest.NewRequest(http.MethodGet, "/agent?apiKey=pub", nil))); resp.Status != http.StatusInternalServerError {
		t.Errorf("unconfigured CDN: status = %d", resp.Status)
	}

	cdn, _ := region.NewBackend("cdn", region.DefaultCDNHost)
	h := newTestHandler(t, f, WithCDN(cdn))
	if resp := capture(t, h.Handle(httptest.NewRequest(http.MethodGet, "/agent", nil))); resp.Status != http.StatusInternalServerError {
		t.Errorf("missing api key: status = %d", resp.Status)
	}
	if resp := capture(t, h.Handle(httptest.NewRequest(http.MethodPost, "/agent?apiKey=pub", nil))); resp.Status != http.StatusNotFound {
		t.Errorf("POST to agent path: status = %d", resp.Status)
	}
	if len(f.calls) != 0 {
		t.Error("fetcher should not be called")
	}
}
