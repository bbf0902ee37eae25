package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "threadsync"

// Cache read results.
const (
	ReadHit     = "hit"
	ReadMiss    = "miss"
	ReadExpired = "expired"
	ReadError   = "error"
)

var (
	CacheReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_reads_total",
			Help:      "Cache entry reads by kind and result.",
		},
		[]string{"kind", "result"},
	)

	CacheWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache entry writes by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	MessagesMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_merged_total",
			Help:      "Messages passed into the merge path.",
		},
	)

	MessagesEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_evicted_total",
			Help:      "Messages dropped by the per-thread cap.",
		},
	)

	RemoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Remote source requests by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	RemoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_seconds",
			Help:      "Remote source request latency.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 3, 5},
		},
		[]string{"op"},
	)

	PollTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Polling ticks by outcome (skipped, ok, failed, truncated).",
		},
		[]string{"outcome"},
	)

	BackgroundRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_refreshes_total",
			Help:      "Background refreshes by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	Fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fallbacks_total",
			Help:      "Remote failures answered from cache.",
		},
		[]string{"kind"},
	)

	JanitorPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "janitor_purged_total",
			Help:      "Expired entries purged by the janitor.",
		},
	)

	LastGlobalSync = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_global_sync_timestamp_seconds",
			Help:      "Unix time of the global sync watermark.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CacheReads,
		CacheWrites,
		MessagesMerged,
		MessagesEvicted,
		RemoteRequests,
		RemoteLatency,
		PollTicks,
		BackgroundRefreshes,
		Fallbacks,
		JanitorPurged,
		LastGlobalSync,
	)
}

// Outcome maps an error onto the "ok"/"failed" label.
func Outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
