package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Record store operation metrics
	StorageOperationTotal    *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Catalog bulk load metrics
	BulkLoadTotal    *prometheus.CounterVec
	BulkLoadDuration *prometheus.HistogramVec
	BulkLoadSize     *prometheus.HistogramVec

	// Dataset validation metrics
	ValidationTotal    *prometheus.CounterVec
	ValidationDuration *prometheus.HistogramVec

	// Change feed metrics
	FeedBatchTotal *prometheus.CounterVec
	FeedBatchSize  *prometheus.HistogramVec
}

// Global metrics instance with mutex for thread safety
var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics creates a new Metrics instance with all required metrics
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	// Return existing instance if already created
	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		// HTTP request metrics
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		// Record store operation metrics
		StorageOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of ingestion record store operations",
		}, []string{"operation", "status"}),

		StorageOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Ingestion record store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),

		// Catalog bulk load metrics
		BulkLoadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_load_total",
			Help: "Total number of catalog bulk load calls",
		}, []string{"status"}),

		BulkLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulk_load_duration_seconds",
			Help:    "Catalog bulk load duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),

		BulkLoadSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulk_load_size",
			Help:    "Number of items per catalog bulk load",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}, []string{"status"}),

		// Dataset validation metrics
		ValidationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "validation_total",
			Help: "Total number of dataset validation runs",
		}, []string{"kind", "status"}),

		ValidationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "validation_duration_seconds",
			Help:    "Dataset validation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "status"}),

		// Change feed metrics
		FeedBatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_batch_total",
			Help: "Total number of consumed change-feed batches",
		}, []string{"status"}),

		FeedBatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feed_batch_size",
			Help:    "Number of events per consumed change-feed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}, []string{"status"}),
	}

	// Register metrics with the default registry
	registerMetrics(m)

	// Store as global instance
	globalMetrics = m

	return m
}

// registerMetrics registers all metrics with the default registry
func registerMetrics(m *Metrics) {
	// Try to register each metric, ignore if already registered
	registerOrGet(m.HTTPRequestTotal)
	registerOrGet(m.HTTPRequestDuration)
	registerOrGet(m.StorageOperationTotal)
	registerOrGet(m.StorageOperationDuration)
	registerOrGet(m.BulkLoadTotal)
	registerOrGet(m.BulkLoadDuration)
	registerOrGet(m.BulkLoadSize)
	registerOrGet(m.ValidationTotal)
	registerOrGet(m.ValidationDuration)
	registerOrGet(m.FeedBatchTotal)
	registerOrGet(m.FeedBatchSize)
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		// If already registered, return the existing collector
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
