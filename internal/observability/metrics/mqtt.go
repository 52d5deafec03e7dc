package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains all Prometheus metrics related to MQTT operations.
type MQTTMetrics struct {
	ConnectionStatus  prometheus.Gauge
	MessagesDelivered prometheus.Counter
	Errors            prometheus.Counter
	ReconnectAttempts prometheus.Counter
	MessageSize       prometheus.Histogram
	PublishLatency    prometheus.Histogram
	registry          *prometheus.Registry
}

// NewMQTTMetrics creates and registers the MQTT collectors.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{registry: registry}

	m.ConnectionStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skinscan_mqtt_connection_status",
		Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
	})
	m.MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skinscan_mqtt_messages_delivered_total",
		Help: "Classification events delivered to the broker",
	})
	m.Errors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skinscan_mqtt_errors_total",
		Help: "MQTT connect and publish failures",
	})
	m.ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skinscan_mqtt_reconnect_attempts_total",
		Help: "MQTT reconnection attempts",
	})
	m.MessageSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "skinscan_mqtt_message_size_bytes",
		Help:    "Size of published event payloads",
		Buckets: prometheus.ExponentialBuckets(64, 2, 8),
	})
	m.PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "skinscan_mqtt_publish_latency_seconds",
		Help:    "Time until the broker acknowledged a publish",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// UpdateConnectionStatus sets the connection gauge.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.ConnectionStatus.Set(1)
		return
	}
	m.ConnectionStatus.Set(0)
}

func (m *MQTTMetrics) IncrementMessagesDelivered() { m.MessagesDelivered.Inc() }
func (m *MQTTMetrics) IncrementErrors()            { m.Errors.Inc() }
func (m *MQTTMetrics) IncrementReconnectAttempts() { m.ReconnectAttempts.Inc() }

// ObserveMessageSize records the size of a payload.
func (m *MQTTMetrics) ObserveMessageSize(sizeBytes int) {
	m.MessageSize.Observe(float64(sizeBytes))
}

// StartPublishTimer starts measuring one publish.
func (m *MQTTMetrics) StartPublishTimer() *PublishTimer {
	return &PublishTimer{startTime: time.Now(), metrics: m}
}

// PublishTimer measures publish latency.
type PublishTimer struct {
	startTime time.Time
	metrics   *MQTTMetrics
}

// ObserveDuration records the elapsed time since StartPublishTimer.
func (pt *PublishTimer) ObserveDuration() {
	pt.metrics.PublishLatency.Observe(time.Since(pt.startTime).Seconds())
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ConnectionStatus
	ch <- m.MessagesDelivered
	ch <- m.Errors
	ch <- m.ReconnectAttempts
	ch <- m.MessageSize
	ch <- m.PublishLatency
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ConnectionStatus.Describe(ch)
	m.MessagesDelivered.Describe(ch)
	m.Errors.Describe(ch)
	m.ReconnectAttempts.Describe(ch)
	m.MessageSize.Describe(ch)
	m.PublishLatency.Describe(ch)
}
