package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// HTTPMetrics tracks requests served by the API.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	registry        *prometheus.Registry
}

// NewHTTPMetrics creates and registers the HTTP collectors.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skinscan_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skinscan_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skinscan_http_requests_in_flight",
		Help: "Requests currently being served",
	})

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.requestDuration.Describe(ch)
	m.inFlight.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.requestDuration.Collect(ch)
	m.inFlight.Collect(ch)
}

// RequestStarted increments the in-flight gauge.
func (m *HTTPMetrics) RequestStarted() { m.inFlight.Inc() }

// RecordHTTPRequest records a finished request and decrements in-flight.
func (m *HTTPMetrics) RecordHTTPRequest(method, route string, statusCode int, seconds float64) {
	m.inFlight.Dec()
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(seconds)
}

// InFlight returns the current in-flight request count.
func (m *HTTPMetrics) InFlight() float64 {
	metric := &dto.Metric{}
	if err := m.inFlight.Write(metric); err != nil {
		return 0
	}
	return metric.GetGauge().GetValue()
}
