// Package metrics provides Prometheus metrics for the aggregator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aggregator"

var (
	// RunsTotal counts batch runs by kind and outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of dedup and merge runs",
		},
		[]string{"kind", "status"},
	)

	// RunDuration measures batch run duration.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of dedup and merge runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// WorkingSetSize observes how many records a dedup run loaded.
	WorkingSetSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "working_set_size",
			Help:      "Distribution of dedup working set sizes",
			Buckets:   []float64{0, 10, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	AggregationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_created_total",
			Help:      "Total number of aggregations created",
		},
	)

	DuplicatesMarkedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_marked_total",
			Help:      "Total number of content records marked as duplicates",
		},
	)

	AggregationsMergedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_merged_total",
			Help:      "Total number of aggregation merges by trigger",
		},
		[]string{"reason"},
	)

	// CandidateSimilarity observes similarity scores of accepted candidates.
	CandidateSimilarity = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_similarity",
			Help:      "Distribution of similarity scores for accepted candidates",
			Buckets:   prometheus.LinearBuckets(0.5, 0.05, 11),
		},
	)

	// ErrorsTotal counts skipped items by stage.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of per-item failures",
		},
		[]string{"stage"},
	)

	RecordsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Total number of intake payloads by result",
		},
		[]string{"result"},
	)
)

// RecordRun records a finished batch run.
func RecordRun(kind, status string, duration time.Duration) {
	RunsTotal.WithLabelValues(kind, status).Inc()
	RunDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAggregation records one committed aggregation.
func RecordAggregation(duplicates int, similarities []float64) {
	AggregationsCreatedTotal.Inc()
	DuplicatesMarkedTotal.Add(float64(duplicates))
	for _, score := range similarities {
		CandidateSimilarity.Observe(score)
	}
}

func RecordMerge(reason string) {
	AggregationsMergedTotal.WithLabelValues(reason).Inc()
}

// RecordError records a per-item failure.
func RecordError(stage string) {
	ErrorsTotal.WithLabelValues(stage).Inc()
}

func RecordIngest(result string) {
	RecordsIngestedTotal.WithLabelValues(result).Inc()
}
