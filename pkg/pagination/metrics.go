package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch status labels.
const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

// Prometheus metrics for paginated fetches.
var (
	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagefetch_pages_total",
		Help: "Total number of pages fetched successfully",
	})

	recordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagefetch_records_total",
		Help: "Total number of records fetched",
	})

	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefetch_fetches_total",
		Help: "Total number of collection fetches by status",
	}, []string{"status"})

	fetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagefetch_fetch_duration_seconds",
		Help:    "Duration of collection fetches",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	})

	partitionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagefetch_partitions_in_flight",
		Help: "Number of partitions currently being fetched",
	})
)
