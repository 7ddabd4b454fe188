package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_records_processed_total",
		Help: "The total number of reconciled records by outcome",
	}, []string{"source", "outcome"})

	UnitsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_units_fetched_total",
		Help: "The total number of fetched units by result",
	}, []string{"source", "result"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvester_fetch_duration_seconds",
		Help:    "Duration of source fetches including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	FetchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_fetch_retries_total",
		Help: "Total number of retried fetch attempts by HTTP status (0 for network errors)",
	}, []string{"source", "status"})

	HashesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_hashes_rejected_total",
		Help: "Total number of hash candidates discarded as malformed",
	}, []string{"kind"})

	ConflictRaces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_conflict_races_total",
		Help: "Total number of book creations that lost a fingerprint race",
	})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvester_run_duration_seconds",
		Help:    "Duration of source runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"source"})

	RunsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_runs_skipped_total",
		Help: "Total number of runs skipped because another run held the lock",
	}, []string{"source"})

	CursorPosition = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "harvester_cursor_position",
		Help: "Next unit address per source",
	}, []string{"source"})

	GapsFound = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "harvester_gap_ids_pending",
		Help: "Number of missing external ids returned by the last gap scan",
	}, []string{"source"})

	ReportsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_reports_published_total",
		Help: "Total number of run summaries handed to reporters",
	}, []string{"reporter", "status"})
)
