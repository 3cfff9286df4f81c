package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pharmatlas/internal/upstream"
)

var (
	// upstreamCallsTotal counts outbound calls by service and outcome.
	// Labels: service (ncbi, knowledge_graph), outcome (ok, not_found, transport_error, decode_error, rejected)
	upstreamCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pharmatlas",
		Subsystem: "upstream",
		Name:      "calls_total",
		Help:      "Total outbound calls by service and outcome",
	}, []string{"service", "outcome"})

	upstreamLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pharmatlas",
		Subsystem: "upstream",
		Name:      "latency_seconds",
		Help:      "Outbound call latency including rate-limiter wait",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"service"})

	// engineOperationsTotal counts engine entry points.
	// Labels: operation (lookup, diseases, interactions, aggregate)
	engineOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pharmatlas",
		Subsystem: "engine",
		Name:      "operations_total",
		Help:      "Total engine operations by kind",
	}, []string{"operation"})

	engineGenesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pharmatlas",
		Subsystem: "engine",
		Name:      "genes_skipped_total",
		Help:      "Genes excluded from an aggregation because they could not be resolved",
	})
)

// Upstream is an upstream.Observer that feeds the outbound-call instruments.
type Upstream struct{}

func (Upstream) Observe(o upstream.Observation) {
	upstreamCallsTotal.WithLabelValues(o.Service, string(o.Outcome)).Inc()
	upstreamLatencySeconds.WithLabelValues(o.Service).Observe(o.Duration.Seconds())
}

// RecordOperation counts one engine operation.
func RecordOperation(operation string) {
	engineOperationsTotal.WithLabelValues(operation).Inc()
}

// RecordSkippedGenes counts genes dropped from an aggregation.
func RecordSkippedGenes(n int) {
	if n > 0 {
		engineGenesSkippedTotal.Add(float64(n))
	}
}
