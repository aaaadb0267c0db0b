// Package metrics holds the process-wide Prometheus collectors. They are exposed on
// /metrics by the HTTP layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swstarter_http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swstarter_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Job queue
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swstarter_jobs_processed_total",
			Help: "Jobs finished per lane and outcome (completed, failed)",
		},
		[]string{"lane", "outcome"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swstarter_job_duration_seconds",
			Help:    "Time from claim to acknowledgement",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
		[]string{"lane"},
	)

	EnqueueFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swstarter_enqueue_failures_total",
			Help: "Fire-and-forget enqueues that could not reach the queue",
		},
		[]string{"lane"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swstarter_queue_jobs",
			Help: "Jobs per lane and state, sampled by the maintenance scheduler",
		},
		[]string{"lane", "state"},
	)

	StalledRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swstarter_stalled_jobs_recovered_total",
			Help: "Jobs whose lease expired, requeued or failed once out of attempts",
		},
		[]string{"lane"},
	)

	// Aggregation
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swstarter_aggregation_duration_seconds",
			Help:    "Duration of a full stats recomputation",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		},
	)

	AggregationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swstarter_aggregation_failures_total",
			Help: "Stats recomputations that were aborted",
		},
	)

	SnapshotTotalQueries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swstarter_snapshot_total_queries",
			Help: "totalQueries of the latest cached snapshot",
		},
	)

	SnapshotComputedAt = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swstarter_snapshot_computed_timestamp_seconds",
			Help: "Unix time of the latest cached snapshot",
		},
	)

	// Upstream
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swstarter_upstream_requests_total",
			Help: "SWAPI calls by category and result (success, not_found, failure, rejected)",
		},
		[]string{"category", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swstarter_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Maintenance
	CronRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swstarter_cron_runs_total",
			Help: "Maintenance job runs by name and outcome",
		},
		[]string{"name", "outcome"},
	)
)

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordJob records a finished job attempt.
func RecordJob(lane string, duration time.Duration, err error) {
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	JobsProcessed.WithLabelValues(lane, outcome).Inc()
	JobDuration.WithLabelValues(lane).Observe(duration.Seconds())
}

// RecordCronRun records a maintenance job run.
func RecordCronRun(name string, err error) {
	outcome := "fulfill"
	if err != nil {
		outcome = "reject"
	}
	CronRuns.WithLabelValues(name, outcome).Inc()
}

// RecordSnapshot publishes the latest snapshot's headline numbers.
func RecordSnapshot(totalQueries int, computedAt time.Time) {
	SnapshotTotalQueries.Set(float64(totalQueries))
	SnapshotComputedAt.Set(float64(computedAt.Unix()))
}
