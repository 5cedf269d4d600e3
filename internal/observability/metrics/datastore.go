package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for record store operations
type DatastoreMetrics struct {
	registry *prometheus.Registry

	operationsTotal     *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	operationErrors     *prometheus.CounterVec
	recordsByStatus     *prometheus.GaugeVec
	collectionSizeBytes prometheus.Histogram

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalsync_store_operations_total",
			Help: "Total number of record store operations",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evalsync_store_operation_duration_seconds",
			Help:    "Time taken for record store operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
		},
		[]string{"operation"},
	)

	m.operationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalsync_store_operation_errors_total",
			Help: "Total number of record store errors by category",
		},
		[]string{"operation", "error_type"},
	)

	m.recordsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evalsync_store_records",
			Help: "Number of stored records by sync status, as of the last full listing",
		},
		[]string{"status"},
	)

	m.collectionSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "evalsync_store_collection_size_bytes",
		Help:    "Size of the serialized record collection written per mutation",
		Buckets: prometheus.ExponentialBuckets(BucketStart64B*16, BucketFactor2*2, BucketCount12), // 1KB upwards
	})

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.operationErrors,
		m.recordsByStatus,
		m.collectionSizeBytes,
	}
}

// Describe implements the Collector interface
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation implements Recorder
func (m *DatastoreMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder
func (m *DatastoreMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder
func (m *DatastoreMetrics) RecordError(operation, errorType string) {
	m.operationErrors.WithLabelValues(operation, errorType).Inc()
}

// SetRecordCount sets the gauge for one status
func (m *DatastoreMetrics) SetRecordCount(status string, count int) {
	m.recordsByStatus.WithLabelValues(status).Set(float64(count))
}

// ObserveCollectionSize records the size of a written record collection
func (m *DatastoreMetrics) ObserveCollectionSize(bytes int) {
	m.collectionSizeBytes.Observe(float64(bytes))
}
