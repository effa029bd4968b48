package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Post-processing stages reported by ObservePostProcess.
const (
	StageDecode   = "decode"
	StageConfig   = "config"
	StageParse    = "parse"
	StageUnseal   = "unseal"
	StageDispatch = "dispatch"
)

// Metrics holds the proxy's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	postProcess      *prometheus.CounterVec
	pluginCalls      *prometheus.CounterVec
	pluginDuration   *prometheus.HistogramVec
	tasksDropped     prometheus.Counter
}

// NewMetrics registers all collectors on registry. A nil registry gets a
// fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Name:      "upstream_requests_total",
			Help:      "Requests forwarded to regional backends.",
		}, []string{"route", "region", "method", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edgeproxy",
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of backend round trips.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "region"}),
		postProcess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Name:      "open_client_response_total",
			Help:      "Outcomes of the detached unseal and dispatch pipeline.",
		}, []string{"stage", "outcome"}),
		pluginCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Name:      "plugin_invocations_total",
			Help:      "Plugin callback invocations.",
		}, []string{"plugin", "outcome"}),
		pluginDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edgeproxy",
			Name:      "plugin_duration_seconds",
			Help:      "Plugin callback latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"plugin"}),
		tasksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edgeproxy",
			Name:      "detached_tasks_dropped_total",
			Help:      "Background tasks dropped because the executor was saturated or stopped.",
		}),
	}

	registry.MustRegister(
		m.upstreamRequests,
		m.upstreamDuration,
		m.postProcess,
		m.pluginCalls,
		m.pluginDuration,
		m.tasksDropped,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// ObserveUpstream records one backend round trip. status 0 means the
// request failed before a response arrived.
func (m *Metrics) ObserveUpstream(route, region, method string, status int, seconds float64) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.upstreamRequests.WithLabelValues(route, region, method, code).Inc()
	m.upstreamDuration.WithLabelValues(route, region).Observe(seconds)
}

// ObservePostProcess records the outcome of one post-processing stage.
func (m *Metrics) ObservePostProcess(stage, outcome string) {
	if m == nil {
		return
	}
	m.postProcess.WithLabelValues(stage, outcome).Inc()
}

// ObservePlugin records one plugin invocation.
func (m *Metrics) ObservePlugin(name, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.pluginCalls.WithLabelValues(name, outcome).Inc()
	m.pluginDuration.WithLabelValues(name).Observe(seconds)
}

// TaskDropped counts a dropped background task.
func (m *Metrics) TaskDropped() {
	if m == nil {
		return
	}
	m.tasksDropped.Inc()
}
