package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "contentindex",
			Name:      "search_duration_seconds",
			Help:      "Search duration in seconds, cache hits included",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contentindex",
			Name:      "search_cache_total",
			Help:      "Search result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

func init() {
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchCacheTotal)
}
