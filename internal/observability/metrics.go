// Package observability wires the Prometheus collectors and serves them.
// Sentry error reporting lives in the telemetry package.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skinscan/skinscan/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Inference *metrics.InferenceMetrics
	History   *metrics.HistoryMetrics
	MQTT      *metrics.MQTTMetrics
	HTTP      *metrics.HTTPMetrics
}

// NewMetrics creates a registry with every SkinScan collector plus the Go
// runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	inferenceMetrics, err := metrics.NewInferenceMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference metrics: %w", err)
	}

	historyMetrics, err := metrics.NewHistoryMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create history metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Inference: inferenceMetrics,
		History:   historyMetrics,
		MQTT:      mqttMetrics,
		HTTP:      httpMetrics,
	}, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RegisterHandlers mounts /metrics on mux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}
