package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Trove op metrics

	TroveOpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trove_op_duration_seconds",
			Help:    "Latency of a Trove op from post to completion, by op type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	TroveOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trove_ops_total",
			Help: "Total Trove ops completed, by op type and status",
		},
		[]string{"op", "status"},
	)

	BytesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trove_bytes_read_total",
			Help: "Total bytes read from bstreams",
		},
	)

	BytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trove_bytes_written_total",
			Help: "Total bytes written to bstreams",
		},
	)

	LiveHandles = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trove_live_handles",
			Help: "Live handle count per collection",
		},
		[]string{"collection"},
	)

	// Scheduler metrics

	SchedulerWaitLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trove_scheduler_wait_seconds",
			Help:    "Time from post to token-ready",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulerWaiters = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trove_scheduler_waiters",
			Help: "Current waiters per mode",
		},
		[]string{"mode"},
	)

	SchedulerForcedReleases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trove_scheduler_forced_releases_total",
			Help: "Total tokens forcibly released after their op_ref was reaped",
		},
	)

	SchedulerTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trove_scheduler_timeouts_total",
			Help: "Total posts that expired before becoming ready",
		},
	)

	// Flow engine metrics

	FlowBuffersInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trove_flow_buffers_in_flight",
			Help: "Buffers currently checked out of a flow's pool",
		},
		[]string{"flow_id"},
	)

	FlowBytesTransferred = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trove_flow_bytes_transferred_total",
			Help: "Total bytes moved by the flow engine",
		},
	)

	FlowsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trove_flows_cancelled_total",
			Help: "Total flows cancelled before completion",
		},
	)

	// SID cache metrics

	SidRecordsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trove_sidcache_records",
			Help: "Current number of SID records in the cache",
		},
	)

	SidLookupLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trove_sidcache_lookup_seconds",
			Help:    "Latency of lookup_by_type calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		TroveOpLatency,
		TroveOpsTotal,
		BytesRead,
		BytesWritten,
		LiveHandles,
		SchedulerWaitLatency,
		SchedulerWaiters,
		SchedulerForcedReleases,
		SchedulerTimeouts,
		FlowBuffersInFlight,
		FlowBytesTransferred,
		FlowsCancelled,
		SidRecordsTotal,
		SidLookupLatency,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
