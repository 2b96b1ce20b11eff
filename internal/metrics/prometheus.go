package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "boxhit_client"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry          *prometheus.Registry
	reconnects        prometheus.Counter
	decodeFailures    prometheus.Counter
	snapshotsApplied  prometheus.Counter
	ticksDropped      prometheus.Counter
	tradesPlaced      prometheus.Counter
	tradesRejected    prometheus.Counter
	unmatchedResults  prometheus.Counter
	heartbeatTimeouts prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	newCounter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	p := &Prometheus{
		registry:          registry,
		reconnects:        newCounter("reconnects_total", "Total number of scheduled reconnect attempts."),
		decodeFailures:    newCounter("decode_failures_total", "Total number of inbound frames dropped as malformed."),
		snapshotsApplied:  newCounter("snapshots_applied_total", "Total number of full snapshots applied."),
		ticksDropped:      newCounter("ticks_dropped_total", "Total number of price ticks dropped for non-advancing timestamps."),
		tradesPlaced:      newCounter("trades_placed_total", "Total number of place_trade commands sent."),
		tradesRejected:    newCounter("trades_rejected_total", "Total number of place_trade commands rejected by the engine."),
		unmatchedResults:  newCounter("unmatched_trade_results_total", "Total number of trade_result messages matching no known position."),
		heartbeatTimeouts: newCounter("heartbeat_timeouts_total", "Total number of forced reconnects after heartbeat silence."),
	}
	p.Metrics = &Metrics{
		Reconnects:        promCounter{p.reconnects},
		DecodeFailures:    promCounter{p.decodeFailures},
		SnapshotsApplied:  promCounter{p.snapshotsApplied},
		TicksDropped:      promCounter{p.ticksDropped},
		TradesPlaced:      promCounter{p.tradesPlaced},
		TradesRejected:    promCounter{p.tradesRejected},
		UnmatchedResults:  promCounter{p.unmatchedResults},
		HeartbeatTimeouts: promCounter{p.heartbeatTimeouts},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
