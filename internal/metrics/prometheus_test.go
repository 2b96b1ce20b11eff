package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.Reconnects.Inc()
	prom.Metrics.DecodeFailures.Inc()
	prom.Metrics.SnapshotsApplied.Inc()
	prom.Metrics.TicksDropped.Inc()
	prom.Metrics.TradesPlaced.Inc()
	prom.Metrics.TradesRejected.Inc()
	prom.Metrics.UnmatchedResults.Inc()
	prom.Metrics.HeartbeatTimeouts.Inc()

	assertCounter(t, prom.reconnects, 1)
	assertCounter(t, prom.decodeFailures, 1)
	assertCounter(t, prom.snapshotsApplied, 1)
	assertCounter(t, prom.ticksDropped, 1)
	assertCounter(t, prom.tradesPlaced, 1)
	assertCounter(t, prom.tradesRejected, 1)
	assertCounter(t, prom.unmatchedResults, 1)
	assertCounter(t, prom.heartbeatTimeouts, 1)
}

func TestNoopMetricsAreSafe(t *testing.T) {
	m := NewNoop()
	m.Reconnects.Inc()
	m.TradesRejected.Inc()
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
