// Package metrics holds the prometheus collectors shared by the scoring,
// gating and governance layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScoredEntities counts per-entity scoring outcomes, labelled ok|error.
	ScoredEntities = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heatwatch",
		Name:      "scoring_pass_entities_total",
		Help:      "Entities processed by scoring passes, by result.",
	}, []string{"result"})

	// ScoringPassDuration tracks wall time of whole scoring passes.
	ScoringPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "heatwatch",
		Name:      "scoring_pass_duration_seconds",
		Help:      "Duration of scoring passes.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// GateEvaluations counts trend-gate evaluations, labelled pass|fail.
	GateEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heatwatch",
		Name:      "gate_evaluations_total",
		Help:      "Trend gate evaluations, by outcome.",
	}, []string{"result"})

	// Alerts counts alert dispositions: dispatched, debounced, suppressed,
	// delivery_failed.
	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heatwatch",
		Name:      "alerts_total",
		Help:      "Alert candidates by final disposition.",
	}, []string{"disposition"})

	// RateLimitDenials counts token-bucket denials per resource key.
	RateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heatwatch",
		Name:      "ratelimit_denials_total",
		Help:      "Token bucket acquisitions denied, by resource key.",
	}, []string{"key"})

	// CircuitOpen reflects the durable circuit state per source (1 = open).
	CircuitOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "heatwatch",
		Name:      "circuit_open",
		Help:      "Whether the per-source circuit is currently open.",
	}, []string{"source"})

	// SignalsWritten counts accepted signal rows per source.
	SignalsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heatwatch",
		Name:      "signals_written_total",
		Help:      "Signal rows accepted at the ingestion boundary.",
	}, []string{"source"})

	// SignalsRejected counts rejected writes (unknown metric, bad entity).
	SignalsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heatwatch",
		Name:      "signals_rejected_total",
		Help:      "Signal writes rejected at the ingestion boundary.",
	}, []string{"source", "reason"})
)
