package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveUpstream("ingress", "us", "POST", 200, 0.1)
	m.ObservePostProcess(StageUnseal, "error")
	m.ObservePlugin("p", "ok", 0.01)
	m.TaskDropped()
	if m.Registry() != nil {
		t.Error("expected nil registry")
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(nil)

	m.ObserveUpstream("ingress", "eu", "POST", 200, 0.05)
	m.ObserveUpstream("ingress", "eu", "POST", 0, 0.05)
	m.ObservePlugin("save", "error", 0.01)
	m.ObservePlugin("save", "error", 0.01)
	m.TaskDropped()

	if got := testutil.ToFloat64(m.upstreamRequests.WithLabelValues("ingress", "eu", "POST", "200")); got != 1 {
		t.Errorf("upstream 200 = %v", got)
	}
	if got := testutil.ToFloat64(m.upstreamRequests.WithLabelValues("ingress", "eu", "POST", "error")); got != 1 {
		t.Errorf("upstream error = %v", got)
	}
	if got := testutil.ToFloat64(m.pluginCalls.WithLabelValues("save", "error")); got != 2 {
		t.Errorf("plugin errors = %v", got)
	}
	if got := testutil.ToFloat64(m.tasksDropped); got != 1 {
		t.Errorf("dropped = %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(nil)
	m.ObservePostProcess(StageDispatch, "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "edgeproxy_open_client_response_total") {
		t.Errorf("metric missing from exposition:\n%s", rec.Body.String())
	}
}
