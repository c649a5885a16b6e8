package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RatingAggregations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_rating_aggregations_total",
			Help: "Movie aggregate updates, by the rate mutation that caused them",
		},
		[]string{"source"}, // "create", "update", "delete", "cascade"
	)

	RatingAggregationsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_rating_aggregations_skipped_total",
			Help: "Folds skipped because the rated movie no longer exists",
		},
	)

	CascadeRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_cascade_runs_total",
			Help: "Cascade deletion plans executed",
		},
		[]string{"plan", "outcome"},
	)

	CascadeRecordsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_cascade_records_deleted_total",
			Help: "Records removed by cascade plans",
		},
		[]string{"collection"},
	)

	SessionsInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_sessions_invalidated_total",
			Help: "Sessions dropped because their user was deleted",
		},
	)

	TMDBRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_tmdb_requests_total",
			Help: "Requests sent to TMDB",
		},
		[]string{"outcome"}, // "ok", "not_found", "error", "rejected"
	)

	TMDBCircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marquee_tmdb_circuit_state",
			Help: "TMDB circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordCascade(plan string, err error) {
	outcome := "committed"
	if err != nil {
		outcome = "aborted"
	}
	CascadeRuns.WithLabelValues(plan, outcome).Inc()
}
