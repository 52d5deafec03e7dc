package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecorder captures recorded values for assertions in other packages' tests.
type TestRecorder struct {
	mu         sync.Mutex
	operations map[string]map[string]int
	durations  map[string][]float64
	errors     map[string]map[string]int
}

func NewTestRecorder() *TestRecorder {
	return &TestRecorder{
		operations: make(map[string]map[string]int),
		durations:  make(map[string][]float64),
		errors:     make(map[string]map[string]int),
	}
}

func (r *TestRecorder) RecordOperation(operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.operations[operation] == nil {
		r.operations[operation] = make(map[string]int)
	}
	r.operations[operation][status]++
}

func (r *TestRecorder) RecordDuration(operation string, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[operation] = append(r.durations[operation], seconds)
}

func (r *TestRecorder) RecordError(operation, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errors[operation] == nil {
		r.errors[operation] = make(map[string]int)
	}
	r.errors[operation][errorType]++
}

func TestRecorderInterface(t *testing.T) {
	t.Parallel()

	var _ Recorder = NewTestRecorder()

	r := NewTestRecorder()
	r.RecordOperation(OpHistorySave, StatusSuccess)
	r.RecordOperation(OpHistorySave, StatusSuccess)
	r.RecordDuration(OpHistorySave, 0.01)
	r.RecordError(OpHistorySave, "database")

	assert.Equal(t, 2, r.operations[OpHistorySave][StatusSuccess])
	assert.Len(t, r.durations[OpHistorySave], 1)
	assert.Equal(t, 1, r.errors[OpHistorySave]["database"])
}

func TestInferenceMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewInferenceMetrics(registry)
	require.NoError(t, err)

	m.RecordClassification(OutcomeSuccess)
	m.RecordClassification(OutcomeSuccess)
	m.RecordClassification(OutcomeInputError)
	m.RecordPrediction("acne", 0.9, 0.05)
	m.ObserveStage(StageDecode, 0.001)
	m.RecordOperation(OpModelLoad, StatusSuccess)
	m.RecordError(OpClassify, "image-decode")
	m.SetModelLoaded(true)

	assert.InDelta(t, 2, testutil.ToFloat64(m.ClassificationsTotal.WithLabelValues(OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ClassificationsTotal.WithLabelValues(OutcomeInputError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.LabelsTotal.WithLabelValues("acne")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ModelLoadsTotal.WithLabelValues(StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(OpClassify, "image-decode")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ModelLoaded), 0)

	m.SetModelLoaded(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ModelLoaded), 0)

	count, err := testutil.GatherAndCount(registry, "skinscan_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewHistoryMetrics(registry)
	require.NoError(t, err)
	_, err = NewHistoryMetrics(registry)
	require.Error(t, err)
}

func TestHistoryMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewHistoryMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordOperation(OpHistoryList, StatusSuccess)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)

	assert.InDelta(t, 1, testutil.ToFloat64(m.OperationsTotal.WithLabelValues(OpHistoryList, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")), 0)
}

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	m.IncrementMessagesDelivered()
	m.IncrementErrors()
	m.ObserveMessageSize(300)
	m.StartPublishTimer().ObserveDuration()

	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectionStatus), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesDelivered), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors), 0)
}

func TestHTTPMetricsInFlight(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RequestStarted()
	m.RequestStarted()
	assert.InDelta(t, 2, m.InFlight(), 0)

	m.RecordHTTPRequest("POST", "/disease-detection", 200, 0.1)
	assert.InDelta(t, 1, m.InFlight(), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/disease-detection", "200")), 0)
}
