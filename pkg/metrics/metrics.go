// Package metrics provides Prometheus metrics for the thistle service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal counts resolution outcomes by decision and tier
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Total number of ingest records resolved by decision and tier",
		},
		[]string{"decision", "tier"},
	)

	// ResolutionConfidence tracks fuzzy match confidence
	ResolutionConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "thistle",
			Subsystem: "resolver",
			Name:      "fuzzy_confidence",
			Help:      "Best candidate similarity of fuzzy resolutions",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1},
		},
	)

	// VetoesTotal counts candidates dropped by the structural veto, by facet
	VetoesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "veto",
			Name:      "vetoes_total",
			Help:      "Total number of candidate pairs rejected by the structural veto",
		},
		[]string{"stage", "reason"},
	)

	// CacheLookupsTotal counts resolution cache hits and misses
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of resolution cache lookups by result",
		},
		[]string{"result"},
	)

	// BatchDuration tracks batch run duration
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "thistle",
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Duration of batch stages in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		},
		[]string{"stage"},
	)

	// BatchRecordsTotal counts ingest records per batch outcome
	BatchRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "batch",
			Name:      "records_total",
			Help:      "Total number of ingest records handled by status",
		},
		[]string{"status"},
	)

	// MergeSuggestionsTotal counts scan suggestions by tier
	MergeSuggestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "merge",
			Name:      "suggestions_total",
			Help:      "Total number of merge suggestions by recommendation tier",
		},
		[]string{"tier"},
	)

	// MergesAppliedTotal counts written merge edges
	MergesAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "merge",
			Name:      "applied_total",
			Help:      "Total number of merges applied by source",
		},
		[]string{"source"},
	)

	// ScanPairsTotal counts evaluated cohort pairs
	ScanPairsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "merge",
			Name:      "scan_pairs_total",
			Help:      "Total number of team pairs evaluated by merge scans",
		},
	)

	// ResolverEdges reports the merge resolver snapshot size
	ResolverEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "thistle",
			Subsystem: "merge",
			Name:      "resolver_edges",
			Help:      "Number of deprecated teams in the loaded merge resolver snapshot",
		},
	)

	// ReviewDecisionsTotal counts human review decisions
	ReviewDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "thistle",
			Subsystem: "review",
			Name:      "decisions_total",
			Help:      "Total number of review queue decisions",
		},
		[]string{"status"},
	)
)

// RecordResolution records one resolution outcome
func RecordResolution(decision, tier string) {
	ResolutionsTotal.WithLabelValues(decision, tier).Inc()
}

// RecordVeto records one vetoed pair
func RecordVeto(stage, reason string) {
	VetoesTotal.WithLabelValues(stage, reason).Inc()
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordBatchStage records a batch stage duration
func RecordBatchStage(stage string, durationSeconds float64) {
	BatchDuration.WithLabelValues(stage).Observe(durationSeconds)
}
