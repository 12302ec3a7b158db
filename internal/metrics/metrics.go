// Package metrics defines the Prometheus counters the admin HTTP surface
// exposes at /metrics, and the small helpers workflows use to populate
// them without importing prometheus directly everywhere.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ivod_engine"

// Registry is a private registry rather than the global default, so
// that /metrics reports only the engine's own counters registered below.
var Registry = prometheus.NewRegistry()

var (
	RecordsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_processed_total",
		Help:      "Records successfully upserted, by workflow.",
	}, []string{"workflow"})

	RecordsFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_failed_total",
		Help:      "Records that failed fetch, parse, assembly, or batch upsert, by workflow.",
	}, []string{"workflow"})

	BatchesCommittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_committed_total",
		Help:      "Batch transactions committed, by workflow.",
	}, []string{"workflow"})

	BatchesRolledBackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_rolled_back_total",
		Help:      "Batch transactions rolled back due to an upsert failure, by workflow.",
	}, []string{"workflow"})

	CircuitBreakerStopsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_stops_total",
		Help:      "Retry circuit breaker trips, by transcript kind.",
	}, []string{"kind"})

	AlignUpdatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "align_updated_total",
		Help:      "Search index documents created or updated by the aligner.",
	})

	AlignSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "align_skipped_total",
		Help:      "Candidates the aligner found already in sync.",
	})

	AlignErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "align_errors_total",
		Help:      "Aligner per-document failures.",
	})
)

func init() {
	Registry.MustRegister(
		RecordsProcessedTotal,
		RecordsFailedTotal,
		BatchesCommittedTotal,
		BatchesRolledBackTotal,
		CircuitBreakerStopsTotal,
		AlignUpdatedTotal,
		AlignSkippedTotal,
		AlignErrorsTotal,
	)
}
