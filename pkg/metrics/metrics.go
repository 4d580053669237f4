package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event engine metrics
	EventsPushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneclient_events_pushed_total",
			Help: "Total number of local events pushed into an event stream by kind",
		},
		[]string{"kind"},
	)

	EventsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneclient_events_emitted_total",
			Help: "Total number of aggregated events emitted to the provider by kind",
		},
		[]string{"kind"},
	)

	EventEmissionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oneclient_event_emission_latency_seconds",
			Help:    "Time from a push satisfying the emission rule to the batch being handed to the transport",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	EventEngineActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oneclient_event_engine_active",
			Help: "Whether the event engine is currently in the active state (1) or idle (0)",
		},
	)

	// Metadata cache metrics
	AttributeCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oneclient_attribute_cache_hits_total",
			Help: "Total number of attribute cache lookups that found a live entry",
		},
	)

	AttributeCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oneclient_attribute_cache_misses_total",
			Help: "Total number of attribute cache lookups that found no live entry",
		},
	)

	LocationCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oneclient_location_cache_size",
			Help: "Current number of cached file location mappings",
		},
	)

	LocationRenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneclient_location_renewals_total",
			Help: "Total number of location renewal attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Storage-helper cache metrics
	HelperProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneclient_helper_probes_total",
			Help: "Total number of storage access probes by resolved access type",
		},
		[]string{"access"},
	)

	HelperCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oneclient_helper_cache_size",
			Help: "Current number of cached storage helpers",
		},
	)

	// Streaming transport metrics
	StreamBufferDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oneclient_stream_buffer_depth",
			Help: "Current number of unacknowledged messages buffered per stream",
		},
		[]string{"stream_id"},
	)

	StreamRepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneclient_stream_replays_total",
			Help: "Total number of messages replayed in response to a MessageRequest",
		},
		[]string{"stream_id"},
	)

	PoolConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oneclient_pool_connections_active",
			Help: "Current number of open connections in the transport pool",
		},
	)

	// Scheduler metrics
	ScheduledTasksRunTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oneclient_scheduled_tasks_run_total",
			Help: "Total number of deferred tasks executed by the scheduler",
		},
	)

	// Auth/session metrics
	HandshakeAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneclient_handshake_attempts_total",
			Help: "Total number of handshake attempts by outcome",
		},
		[]string{"outcome"},
	)

	TokenRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneclient_token_refreshes_total",
			Help: "Total number of token refresh attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		EventsPushedTotal,
		EventsEmittedTotal,
		EventEmissionLatency,
		EventEngineActive,
		AttributeCacheHits,
		AttributeCacheMisses,
		LocationCacheSize,
		LocationRenewalsTotal,
		HelperProbesTotal,
		HelperCacheSize,
		StreamBufferDepth,
		StreamRepliesTotal,
		PoolConnectionsActive,
		ScheduledTasksRunTotal,
		HandshakeAttemptsTotal,
		TokenRefreshesTotal,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
