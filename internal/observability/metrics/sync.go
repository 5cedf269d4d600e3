package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics contains Prometheus metrics for the retry coordinator
type SyncMetrics struct {
	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	pushesTotal     *prometheus.CounterVec
	backoffSeconds  prometheus.Histogram
	transitions     *prometheus.CounterVec
	inflight        prometheus.Gauge

	registryResponses *prometheus.CounterVec
	registryLatency   prometheus.Histogram

	collectors []prometheus.Collector
}

// NewSyncMetrics creates and registers new sync metrics
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SyncMetrics) initMetrics() {
	m.attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalsync_sync_attempts_total",
			Help: "Total number of single push attempts by result",
		},
		[]string{"result"}, // result: success, http_error, transport_error
	)

	m.attemptDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "evalsync_sync_attempt_duration_seconds",
		Help:    "Duration of a single push attempt including the HTTP round trip",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~20s
	})

	m.pushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalsync_sync_pushes_total",
			Help: "Total number of push invocations by final outcome",
		},
		[]string{"outcome"},
	)

	m.backoffSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "evalsync_sync_backoff_seconds",
		Help:    "Backoff waits scheduled between attempts",
		Buckets: prometheus.ExponentialBuckets(BucketStart1s, BucketFactor2, BucketCount8), // 1s to 128s
	})

	m.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalsync_sync_status_transitions_total",
			Help: "Record status transitions made by the coordinator",
		},
		[]string{"from", "to"},
	)

	m.inflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "evalsync_sync_pushes_in_flight",
		Help: "Number of push invocations currently running",
	})

	m.registryResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalsync_sync_registry_responses_total",
			Help: "HTTP exchanges with the remote registry by status code",
		},
		[]string{"code"}, // "none" when no response arrived
	)

	m.registryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "evalsync_sync_registry_latency_seconds",
		Help:    "Round trip time of registry requests up to the response headers",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
	})

	m.collectors = []prometheus.Collector{
		m.registryResponses,
		m.registryLatency,
		m.attemptsTotal,
		m.attemptDuration,
		m.pushesTotal,
		m.backoffSeconds,
		m.transitions,
		m.inflight,
	}
}

// Describe implements the Collector interface
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordAttempt records one attempt and how long it took
func (m *SyncMetrics) RecordAttempt(result string, seconds float64) {
	m.attemptsTotal.WithLabelValues(result).Inc()
	m.attemptDuration.Observe(seconds)
}

// RecordPush records the final outcome of a push invocation
func (m *SyncMetrics) RecordPush(outcome string) {
	m.pushesTotal.WithLabelValues(outcome).Inc()
}

// RecordBackoff records a scheduled wait
func (m *SyncMetrics) RecordBackoff(seconds float64) {
	m.backoffSeconds.Observe(seconds)
}

// RecordTransition records a status change
func (m *SyncMetrics) RecordTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// PushStarted increments the in-flight gauge
func (m *SyncMetrics) PushStarted() {
	m.inflight.Inc()
}

// RecordRegistryResponse records one HTTP exchange with the registry. A zero
// code means the request failed before a response arrived.
func (m *SyncMetrics) RecordRegistryResponse(code int, seconds float64) {
	label := "none"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.registryResponses.WithLabelValues(label).Inc()
	m.registryLatency.Observe(seconds)
}

// PushFinished decrements the in-flight gauge
func (m *SyncMetrics) PushFinished() {
	m.inflight.Dec()
}
