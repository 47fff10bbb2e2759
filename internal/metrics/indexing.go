// Package metrics holds the Prometheus collectors of the indexing engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

var (
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contentindex",
			Name:      "notifications_total",
			Help:      "Content notifications processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	MappingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "contentindex",
			Name:      "mapping_errors_total",
			Help:      "Content items skipped because they could not be mapped",
		},
	)

	EngineErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contentindex",
			Name:      "engine_errors_total",
			Help:      "Physical index failures by operation",
		},
		[]string{"op"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "contentindex",
			Name:      "commit_duration_seconds",
			Help:      "Index write lease duration including commit",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	DocumentsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contentindex",
			Name:      "documents_written_total",
			Help:      "Search documents upserted or deleted",
		},
		[]string{"op"},
	)

	ReindexDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contentindex",
			Name:      "reindex_duration_seconds",
			Help:      "Full tenant reindex duration by mode",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(MappingErrorsTotal)
	prometheus.MustRegister(EngineErrorsTotal)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(DocumentsWritten)
	prometheus.MustRegister(ReindexDuration)
}
