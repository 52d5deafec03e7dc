package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// InferenceMetrics tracks the classification pipeline and the loaded model.
type InferenceMetrics struct {
	ClassificationsTotal *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	ClassifyDuration     prometheus.Histogram
	LabelsTotal          *prometheus.CounterVec
	Confidence           prometheus.Histogram
	ModelLoaded          prometheus.Gauge
	ModelLoadsTotal      *prometheus.CounterVec
	ErrorsTotal          *prometheus.CounterVec
	registry             *prometheus.Registry
}

// NewInferenceMetrics creates and registers the inference collectors.
func NewInferenceMetrics(registry *prometheus.Registry) (*InferenceMetrics, error) {
	m := &InferenceMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register inference metrics: %w", err)
	}
	return m, nil
}

func (m *InferenceMetrics) initMetrics() {
	m.ClassificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skinscan_classifications_total",
		Help: "Classification requests by outcome",
	}, []string{"outcome"})

	m.StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skinscan_stage_duration_seconds",
		Help:    "Duration of each classification pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"stage"})

	m.ClassifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "skinscan_classify_duration_seconds",
		Help:    "End-to-end duration of successful classifications",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	m.LabelsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skinscan_predicted_labels_total",
		Help: "Predicted conditions by label",
	}, []string{"label"})

	m.Confidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "skinscan_prediction_confidence",
		Help:    "Probability assigned to the selected class",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	m.ModelLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skinscan_model_loaded",
		Help: "1 when a model is loaded and serving, 0 otherwise",
	})

	m.ModelLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skinscan_model_loads_total",
		Help: "Model load attempts by status",
	}, []string{"status"})

	m.ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skinscan_inference_errors_total",
		Help: "Pipeline errors by operation and category",
	}, []string{"operation", "category"})
}

func (m *InferenceMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ClassificationsTotal,
		m.StageDuration,
		m.ClassifyDuration,
		m.LabelsTotal,
		m.Confidence,
		m.ModelLoaded,
		m.ModelLoadsTotal,
		m.ErrorsTotal,
	}
}

// Describe implements prometheus.Collector.
func (m *InferenceMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *InferenceMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// RecordClassification counts one finished request.
func (m *InferenceMetrics) RecordClassification(outcome string) {
	m.ClassificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records a pipeline stage duration.
func (m *InferenceMetrics) ObserveStage(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordPrediction counts the label and observes its confidence and the
// total request time.
func (m *InferenceMetrics) RecordPrediction(label string, confidence, seconds float64) {
	m.LabelsTotal.WithLabelValues(label).Inc()
	m.Confidence.Observe(confidence)
	m.ClassifyDuration.Observe(seconds)
}

// SetModelLoaded flips the model gauge.
func (m *InferenceMetrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.ModelLoaded.Set(1)
		return
	}
	m.ModelLoaded.Set(0)
}

// RecordOperation implements Recorder. Model loads have their own counter.
func (m *InferenceMetrics) RecordOperation(operation, status string) {
	switch operation {
	case OpModelLoad:
		m.ModelLoadsTotal.WithLabelValues(status).Inc()
	case OpClassify:
		m.RecordClassification(status)
	}
}

// RecordDuration implements Recorder; operation is a stage name.
func (m *InferenceMetrics) RecordDuration(operation string, seconds float64) {
	m.ObserveStage(operation, seconds)
}

// RecordError implements Recorder.
func (m *InferenceMetrics) RecordError(operation, errorType string) {
	m.ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}
