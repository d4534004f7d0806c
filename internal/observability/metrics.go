package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heartline_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heartline_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// LikeMutations counts like rows written by the authority, by action.
	LikeMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heartline_like_mutations_total",
		Help: "Total like/unlike mutations applied by the server",
	}, []string{"action"})

	// LikeToggleOutcomes counts client toggle outcomes by kind and failure reason.
	LikeToggleOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heartline_like_toggle_outcomes_total",
		Help: "Optimistic like toggles by outcome and reason",
	}, []string{"outcome", "reason"})

	// LikeToggleLatency records remote round trip time for toggles.
	LikeToggleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heartline_like_toggle_latency_seconds",
		Help:    "Latency of remote like toggles in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// LikeTogglesInFlight is the number of toggles awaiting the remote.
	LikeTogglesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heartline_like_toggles_in_flight",
		Help: "Like toggles currently awaiting a remote response",
	})

	// LikeTogglesRejected counts toggles refused because one was already pending.
	LikeTogglesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartline_like_toggles_rejected_total",
		Help: "Like toggles rejected while another was pending",
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
