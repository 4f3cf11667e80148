package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the counters the transfer engine and orchestrator
// update. NewTransferEngine and NewOrchestrator substitute NopMetrics for
// a nil *Metrics in their config, so tests can use the engine without
// standing up a registry.
type Metrics struct {
	BlocksSent     prometheus.Counter
	BlocksRetried  prometheus.Counter
	BlocksMissing  prometheus.Counter
	DecodeFixpoint prometheus.Counter
	Reinserts      prometheus.Counter
}

// NewMetrics registers the proxy's counters on reg and returns the
// handle used by TransferEngine and Orchestrator.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlocksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anarcast_blocks_sent_total",
			Help: "Blocks successfully delivered to the fleet during insert.",
		}),
		BlocksRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anarcast_blocks_retried_total",
			Help: "Per-block transfer attempts beyond the first.",
		}),
		BlocksMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anarcast_blocks_missing_total",
			Help: "Blocks left missing after the request retry budget was exhausted.",
		}),
		DecodeFixpoint: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anarcast_decode_fixpoints_total",
			Help: "Times iterative decode reached a fixed point (whether or not it recovered everything).",
		}),
		Reinserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anarcast_reinserts_total",
			Help: "Reconstructed blocks re-inserted into the fleet after a request.",
		}),
	}
	for _, c := range []prometheus.Collector{m.BlocksSent, m.BlocksRetried, m.BlocksMissing, m.DecodeFixpoint, m.Reinserts} {
		reg.MustRegister(c)
	}
	return m
}

// NopMetrics returns a Metrics whose counters are registered against a
// private registry, safe to update from tests without touching the
// process-wide default registry.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
