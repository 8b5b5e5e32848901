package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// UnitOfWorkDuration records how long store transactions stay open, by outcome.
	UnitOfWorkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "murmur_unit_of_work_duration_seconds",
		Help:    "Duration of store transactions in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// FanoutNotifications counts notification rows written by kind.
	FanoutNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_fanout_notifications_total",
		Help: "Total number of notifications materialized by the fan-out engine",
	}, []string{"kind"})

	// FanoutAudienceSize observes the audience size per event type.
	FanoutAudienceSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "murmur_fanout_audience_size",
		Help:    "Number of recipients computed per fan-out event",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
	}, []string{"event"})

	// FanoutFailures counts fan-out events that aborted their unit of work.
	FanoutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_fanout_failures_total",
		Help: "Total number of fan-out events that failed",
	}, []string{"event"})

	// MediaStaged counts stage attempts by result.
	MediaStaged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_media_staged_total",
		Help: "Image stage attempts by result",
	}, []string{"result"})

	// MediaPromoted counts promotions and reverts.
	MediaPromoted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_media_promoted_total",
		Help: "Image promotions by result",
	}, []string{"result"})

	// MediaReclaimed counts quarantine files removed by the sweep, and per-file failures.
	MediaReclaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_media_reclaimed_total",
		Help: "Quarantine files processed by the reclaim sweep",
	}, []string{"result"})

	// CacheLookups counts cache-aside hits and misses.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_cache_lookups_total",
		Help: "Cache-aside lookups by result",
	}, []string{"result"})
)

// ObserveSince records the seconds elapsed since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
