package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.CommandCompleted("system.ping", "any", "ok", time.Millisecond)
	m.QueueDepth(3)
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.Backpressure()
	m.EventPublished("asset.changed")
	m.EventDropped()
	m.Malformed()
}

func TestCounters(t *testing.T) {
	m := New()
	m.CommandCompleted("blueprint.compile", "main", "ok", 20*time.Millisecond)
	m.CommandCompleted("blueprint.compile", "main", "ok", 30*time.Millisecond)
	m.CommandCompleted("blueprint.compile", "main", "HANDLER_FAILURE", time.Millisecond)
	m.Backpressure()
	m.QueueDepth(4)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	if got := testutil.ToFloat64(m.commands.WithLabelValues("blueprint.compile", "main", "ok")); got != 2 {
		t.Errorf("metrics:metrics_test - ok commands = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.backpressure); got != 1 {
		t.Errorf("metrics:metrics_test - backpressure = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.queueDepth); got != 4 {
		t.Errorf("metrics:metrics_test - queue depth = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.connections); got != 1 {
		t.Errorf("metrics:metrics_test - connections = %v, want 1", got)
	}
}

func TestHandler_ServesTextFormat(t *testing.T) {
	m := New()
	m.EventPublished("asset.changed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `agentlink_events_published_total{topic="asset.changed"} 1`) {
		t.Errorf("metrics:metrics_test - /metrics missing published counter:\n%s", body)
	}
}
