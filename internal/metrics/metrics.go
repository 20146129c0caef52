// internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// DatasetEntries is the number of reference entries currently loaded.
	DatasetEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mealfootprint",
		Subsystem: "dataset",
		Name:      "entries",
		Help:      "Number of reference foods loaded from the dataset file.",
	})

	// DatasetRowsSkipped counts dataset rows dropped during load.
	DatasetRowsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mealfootprint",
		Subsystem: "dataset",
		Name:      "rows_skipped_total",
		Help:      "Total number of malformed dataset rows skipped while loading.",
	})

	// AnalysesTotal counts analyses by outcome.
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealfootprint",
		Subsystem: "analyzer",
		Name:      "analyses_total",
		Help:      "Total number of meal analyses, labeled by result.",
	}, []string{"result"})

	// WarningsTotal counts recovered problems by kind.
	WarningsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealfootprint",
		Subsystem: "analyzer",
		Name:      "warnings_total",
		Help:      "Total number of dropped items and unresolved detections, labeled by kind.",
	}, []string{"kind"})

	// RecognitionDurationSeconds is the time spent waiting on the recognition service.
	RecognitionDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mealfootprint",
		Subsystem: "recognition",
		Name:      "duration_seconds",
		Help:      "Time spent waiting for the image recognition service.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 60},
	})

	// RecognitionCacheHits counts payloads served from the recognition cache.
	RecognitionCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mealfootprint",
		Subsystem: "recognition",
		Name:      "cache_hits_total",
		Help:      "Total number of recognition payloads served from cache.",
	})
)

// Register registers the collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			DatasetEntries,
			DatasetRowsSkipped,
			AnalysesTotal,
			WarningsTotal,
			RecognitionDurationSeconds,
			RecognitionCacheHits,
		)
	})
}
