// Package webhook forwards unsealed identification results to HTTP
// endpoints as JSON.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/pkg/safehttp"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/plugin"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/sealed"
)

// maxErrorBody bounds how much of a failed webhook response is reported.
const maxErrorBody = 512

// Config configures one webhook.
type Config struct {
	Name    string
	URL     string
	Timeout time.Duration
	Headers map[string]string

	// AllowPrivate permits loopback and private destinations.
	AllowPrivate bool

	// Transport overrides the outbound transport, mainly for tests.
	Transport http.RoundTripper
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Event    sealed.Event `json:"event"`
	Response Response     `json:"response"`
}

// Response describes the backend response the event was unsealed from.
type Response struct {
	Status  int         `json:"status"`
	Headers http.Header `json:"headers"`
}

// Webhook posts events to a single URL. Each event is attempted once.
type Webhook struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates a webhook.
func New(cfg Config) *Webhook {
	transport := cfg.Transport
	if transport == nil {
		if cfg.AllowPrivate {
			transport = http.DefaultTransport
		} else {
			transport = safehttp.NewTransport(cfg.Timeout)
		}
	}

	name := cfg.Name
	if name == "" {
		name = "webhook"
	}

	return &Webhook{
		name:    name,
		url:     cfg.URL,
		headers: cfg.Headers,
		client: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   cfg.Timeout,
		},
	}
}

// Plugin returns the webhook as a registrable plugin.
func (w *Webhook) Plugin() plugin.Plugin {
	return plugin.Plugin{
		Name:     w.name,
		Type:     plugin.HookProcessOpenClientResponse,
		Callback: w.Send,
	}
}

// Send posts the event in pc.
func (w *Webhook) Send(ctx context.Context, pc *plugin.Context) error {
	payload := Payload{Event: pc.Event}
	if pc.HTTPResponse != nil {
		payload.Response = Response{
			Status:  pc.HTTPResponse.StatusCode,
			Headers: pc.HTTPResponse.Header,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
