// Package metrics defines the Prometheus collectors exposed at GET
// /metrics. Shape grounded on internal/escrow/metrics.go: a struct of
// promauto-registered vectors plus small Record* methods that hide the
// label plumbing from callers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the firewall and proxy emit,
// plus the registry they were registered against. Each Metrics owns a
// dedicated registry rather than registering into the global default
// one, so a process that constructs more than one Proxy (as the test
// suite does) never hits promauto's duplicate-registration panic.
type Metrics struct {
	Registry *prometheus.Registry

	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	EngineBlocksTotal  *prometheus.CounterVec
	SeveredGauge       *prometheus.GaugeVec
	SlashedGauge       *prometheus.GaugeVec
	ConfigCacheHits    *prometheus.CounterVec
	UpstreamDuration   prometheus.Histogram
}

// New constructs a fresh registry and registers every collector against it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plimsoll_evaluations_total",
				Help: "Total number of firewall evaluations",
			},
			[]string{"principal", "verdict"}, // verdict: allow, block
		),
		EvaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plimsoll_evaluation_duration_seconds",
				Help:    "Duration of a full firewall pipeline evaluation",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"principal"},
		),
		EngineBlocksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plimsoll_engine_blocks_total",
				Help: "Total BLOCK verdicts per engine",
			},
			[]string{"engine", "code"},
		),
		SeveredGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plimsoll_severed",
				Help: "Whether a principal's firewall is currently in a Cognitive Sever lockout",
			},
			[]string{"principal"},
		),
		SlashedGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plimsoll_slashed",
				Help: "Whether a principal is permanently slashed by Paymaster Slashing",
			},
			[]string{"principal"},
		),
		ConfigCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plimsoll_config_cache_requests_total",
				Help: "Config cache lookups by outcome",
			},
			[]string{"outcome"}, // fresh, refreshed, fallback
		),
		UpstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "plimsoll_upstream_rpc_duration_seconds",
				Help:    "Duration of forwarded upstream RPC calls",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordEvaluation records one firewall evaluation outcome and its
// wall-clock duration.
func (m *Metrics) RecordEvaluation(principal string, blocked bool, durationSecs float64) {
	verdict := "allow"
	if blocked {
		verdict = "block"
	}
	m.EvaluationsTotal.WithLabelValues(principal, verdict).Inc()
	m.EvaluationDuration.WithLabelValues(principal).Observe(durationSecs)
}

// RecordEngineBlock increments the per-engine, per-code block counter.
func (m *Metrics) RecordEngineBlock(engine, code string) {
	m.EngineBlocksTotal.WithLabelValues(engine, code).Inc()
}

// SetSevered updates the sever gauge for a principal.
func (m *Metrics) SetSevered(principal string, severed bool) {
	m.SeveredGauge.WithLabelValues(principal).Set(boolToFloat(severed))
}

// SetSlashed updates the slash gauge for a principal.
func (m *Metrics) SetSlashed(principal string, slashed bool) {
	m.SlashedGauge.WithLabelValues(principal).Set(boolToFloat(slashed))
}

// RecordConfigCacheLookup tags a config cache Get() call with its outcome.
func (m *Metrics) RecordConfigCacheLookup(outcome string) {
	m.ConfigCacheHits.WithLabelValues(outcome).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
