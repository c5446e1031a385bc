// Package telemetry registers the Prometheus metrics that give the
// external dashboards referenced in spec.md §6 a machine-readable
// companion to SyncAttempt.summaryBlob, grounded on jordigilh/kubernaut's
// use of prometheus/client_golang for its own per-resource counters.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters/histogram the orchestrator and event
// processor update as they run. Construct one with NewMetrics and
// register it against a prometheus.Registerer of the caller's choosing
// (production code should not rely on the global default registry).
type Metrics struct {
	RecordsProcessed *prometheus.CounterVec
	RecordsUpdated   *prometheus.CounterVec
	RecordsFailed    *prometheus.CounterVec
	AttemptDuration  *prometheus.HistogramVec
	SchoolsInFlight  prometheus.Gauge
}

// NewMetrics constructs a Metrics bundle with the roster_sync namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		RecordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster_sync",
			Name:      "records_processed_total",
			Help:      "Records observed from upstream, per entity kind.",
		}, []string{"entity_kind"}),
		RecordsUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster_sync",
			Name:      "records_updated_total",
			Help:      "Records that produced a change, per entity kind.",
		}, []string{"entity_kind"}),
		RecordsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster_sync",
			Name:      "records_failed_total",
			Help:      "Per-record failures that did not abort the attempt, per entity kind.",
		}, []string{"entity_kind"}),
		AttemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "roster_sync",
			Name:      "sync_attempt_duration_seconds",
			Help:      "Wall-clock duration of one SyncAttempt, per entity kind and mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity_kind", "mode"}),
		SchoolsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roster_sync",
			Name:      "schools_in_flight",
			Help:      "Number of SyncSchool calls currently executing.",
		}),
	}
}

// MustRegister registers every collector against reg, panicking on a
// duplicate-registration error (the same fail-fast convention
// kubernaut uses at process startup).
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.RecordsProcessed, m.RecordsUpdated, m.RecordsFailed, m.AttemptDuration, m.SchoolsInFlight)
}
