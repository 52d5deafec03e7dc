package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// HistoryMetrics tracks scan history storage and its response cache.
type HistoryMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec
	CacheRequests     *prometheus.CounterVec
	registry          *prometheus.Registry
}

// NewHistoryMetrics creates and registers the history collectors.
func NewHistoryMetrics(registry *prometheus.Registry) (*HistoryMetrics, error) {
	m := &HistoryMetrics{registry: registry}

	m.OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skinscan_history_operations_total",
		Help: "Scan history operations by operation and status",
	}, []string{"operation", "status"})

	m.OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skinscan_history_operation_duration_seconds",
		Help:    "Scan history operation latency",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"operation"})

	m.ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skinscan_history_errors_total",
		Help: "Scan history errors by operation and category",
	}, []string{"operation", "category"})

	m.CacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skinscan_history_cache_requests_total",
		Help: "History list cache lookups by result",
	}, []string{"result"})

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register history metrics: %w", err)
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *HistoryMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.OperationsTotal.Describe(ch)
	m.OperationDuration.Describe(ch)
	m.ErrorsTotal.Describe(ch)
	m.CacheRequests.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *HistoryMetrics) Collect(ch chan<- prometheus.Metric) {
	m.OperationsTotal.Collect(ch)
	m.OperationDuration.Collect(ch)
	m.ErrorsTotal.Collect(ch)
	m.CacheRequests.Collect(ch)
}

func (m *HistoryMetrics) RecordOperation(operation, status string) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
}

func (m *HistoryMetrics) RecordDuration(operation string, seconds float64) {
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *HistoryMetrics) RecordError(operation, errorType string) {
	m.ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordCacheLookup counts a list cache hit or miss.
func (m *HistoryMetrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}
