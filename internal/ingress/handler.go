package ingress

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/cookie"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/pkg/codec"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/region"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/response"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/server"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/settings"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/telemetry"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/upstream"
)

// Route labels used in logs and metrics.
const (
	RouteIngress = "ingress"
	RouteCache   = "cache"
	RouteAgent   = "agent"
)

// TrafficParam is the query parameter that attributes proxied traffic.
const TrafficParam = "ii"

// Fetcher sends a prepared request to a backend.
type Fetcher interface {
	Fetch(ctx context.Context, backend region.Backend, req *http.Request, opts upstream.Options) (*http.Response, error)
}

// Scheduler runs fire-and-forget work after the handler has returned.
type Scheduler interface {
	Go(ctx context.Context, name string, fn func(context.Context)) bool
}

// PostProcessor consumes the decoded body of a successful submission.
type PostProcessor interface {
	Process(ctx context.Context, body string, snap *response.Snapshot) error
}

// Handler is the ingress router. Settings are resolved from the stores on
// every request.
type Handler struct {
	regions   *region.Map
	cdn       region.Backend
	fetcher   Fetcher
	config    ports.ConfigStore
	secrets   ports.SecretStore
	scheduler Scheduler
	processor PostProcessor

	clientIPHeader string
	integration    string
	version        string

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithConfigStore sets the integration config lookup.
func WithConfigStore(s ports.ConfigStore) Option {
	return func(h *Handler) {
		h.config = s
	}
}

// WithSecretStore sets the secret lookup.
func WithSecretStore(s ports.SecretStore) Option {
	return func(h *Handler) {
		h.secrets = s
	}
}

// WithPostProcessing sets where and how successful submissions are processed.
func WithPostProcessing(s Scheduler, p PostProcessor) Option {
	return func(h *Handler) {
		h.scheduler = s
		h.processor = p
	}
}

// WithCDN sets the backend serving the agent script.
func WithCDN(b region.Backend) Option {
	return func(h *Handler) {
		h.cdn = b
	}
}

// WithClientIPHeader trusts the named header for the visitor address.
func WithClientIPHeader(name string) Option {
	return func(h *Handler) {
		h.clientIPHeader = name
	}
}

// WithIntegration sets the integration name and version reported upstream.
func WithIntegration(name, version string) Option {
	return func(h *Handler) {
		h.integration = name
		h.version = version
	}
}

// WithLogger sets the logger for the handler.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics records post-processing outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler creates an ingress router over regions.
func NewHandler(regions *region.Map, fetcher Fetcher, opts ...Option) *Handler {
	h := &Handler{
		regions:     regions,
		fetcher:     fetcher,
		integration: "fingerprint-edge-proxy",
		version:     "dev",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := response.Write(w, h.Handle(r)); err != nil {
		server.AddError(r.Context(), err)
		h.logger.WarnContext(r.Context(), "write response failed",
			slog.String("request_id", server.GetRequestID(r.Context())),
			slog.String("error", err.Error()))
	}
}

// Handle routes r and returns the response for the client. It always
// returns a response; failures become error responses.
func (h *Handler) Handle(r *http.Request) *http.Response {
	s := settings.Resolve(h.config, h.secrets)

	if m := s.ResultPathPattern().FindStringSubmatch(r.URL.Path); m != nil {
		if r.Method == http.MethodGet {
			server.AddLogField(r.Context(), "route", RouteCache)
			return h.handleCacheable(r, m[1])
		}
		server.AddLogField(r.Context(), "route", RouteIngress)
		return h.handleIngress(r, s)
	}

	if r.URL.Path == s.ScriptDownloadPath() && r.Method == http.MethodGet {
		server.AddLogField(r.Context(), "route", RouteAgent)
		return h.handleAgentDownload(r)
	}

	return notFoundResponse(r)
}

// handleCacheable forwards a GET under the result path with the sub-path as
// the backend path, no cookies and no intermediary caching.
func (h *Handler) handleCacheable(r *http.Request, subPath string) *http.Response {
	ctx := r.Context()

	out := r.Clone(ctx)
	out.URL.Path = subPath
	out.URL.RawPath = ""
	if out.URL.Path == "" {
		out.URL.Path = "/"
	}
	out.Header.Del("Cookie")

	reg, backend := h.regions.Select(r.URL)
	resp, err := h.fetcher.Fetch(ctx, backend, out, upstream.Options{
		Cache:  upstream.CachePass,
		Route:  RouteCache,
		Region: string(reg),
	})
	if err != nil {
		server.AddError(ctx, err)
		return fallbackErrorResponse(r, err.Error())
	}
	return resp
}

// handleIngress proxies an identification submission and delivers the
// backend response.
func (h *Handler) handleIngress(r *http.Request, s settings.Settings) *http.Response {
	ctx := r.Context()

	out := r.Clone(ctx)
	out.URL.Path = "/"
	out.URL.RawPath = ""
	out.URL.RawQuery = h.withTrafficParam(r.URL.Query(), "ingress").Encode()
	cookie.ApplyFilter(out.Header, cookie.KeepTracking)

	if !addProvenanceHeaders(out.Header, s.ProxySecret, clientIP(r, h.clientIPHeader), requestHost(r)) {
		h.logger.WarnContext(ctx, "proxy secret is not configured, backend cannot verify this proxy",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("secret", settings.KeyProxySecret))
	}

	reg, backend := h.regions.Select(r.URL)
	resp, err := h.fetcher.Fetch(ctx, backend, out, upstream.Options{
		Route:  RouteIngress,
		Region: string(reg),
	})
	if err != nil {
		server.AddError(ctx, err)
		return ingressErrorResponse(r, err.Error())
	}

	delivered, err := h.deliver(ctx, s, resp)
	if err != nil {
		server.AddError(ctx, err)
		return ingressErrorResponse(r, err.Error())
	}
	return delivered
}

// deliver returns the response for the client and, for successful responses
// with plugins enabled, schedules post-processing of the same bytes. The
// returned response does not depend on the scheduled work.
func (h *Handler) deliver(ctx context.Context, s settings.Settings, resp *http.Response) (*http.Response, error) {
	if !s.OpenClientResponseEnabled() || h.processor == nil || h.scheduler == nil {
		return resp, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.logger.DebugContext(ctx, "skipping open client response for unsuccessful response",
			slog.Int("status", resp.StatusCode))
		return resp, nil
	}

	snap, err := response.Buffer(resp)
	if errors.Is(err, response.ErrBodyTooLarge) {
		h.metrics.ObservePostProcess(telemetry.StageDecode, "error")
		h.logger.WarnContext(ctx, "response body too large, skipping open client response",
			slog.String("request_id", server.GetRequestID(ctx)))
		return resp, nil
	}
	if err != nil {
		return nil, err
	}

	// The client gets the bytes as the backend encoded them; only the
	// post-processing input is decoded.
	plain, err := codec.DecodeContent(snap.Header.Get("Content-Encoding"), snap.Body(), response.MaxBodySize)
	if err != nil {
		h.metrics.ObservePostProcess(telemetry.StageDecode, "error")
		h.logger.WarnContext(ctx, "cannot decode response body, skipping open client response",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("content_encoding", snap.Header.Get("Content-Encoding")),
			slog.String("error", err.Error()))
		return snap.HTTPResponse(), nil
	}

	text, err := codec.DecodeUTF8(plain)
	if err != nil {
		h.metrics.ObservePostProcess(telemetry.StageDecode, "error")
		h.logger.WarnContext(ctx, "response body is not text, skipping open client response",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("error", err.Error()))
		return snap.HTTPResponse(), nil
	}

	client := snap.HTTPResponse()

	requestID := server.GetRequestID(ctx)
	h.scheduler.Go(ctx, "open-client-response", func(taskCtx context.Context) {
		if err := h.processor.Process(taskCtx, text, snap); err != nil {
			h.logger.ErrorContext(taskCtx, "processing open client response failed",
				slog.String("request_id", requestID),
				slog.String("error", err.Error()))
		}
	})

	return client, nil
}

func (h *Handler) withTrafficParam(q url.Values, kind string) url.Values {
	q.Add(TrafficParam, strings.Join([]string{h.integration, h.version, kind}, "/"))
	return q
}
