package metrics

// Recorder is the narrow interface components depend on so tests can swap
// in a capturing implementation.
type Recorder interface {
	// RecordOperation counts an operation with its status ("success", "error").
	RecordOperation(operation, status string)
	// RecordDuration observes how long an operation took, in seconds.
	RecordDuration(operation string, seconds float64)
	// RecordError counts a failure by error category.
	RecordError(operation, errorType string)
}

// NoOpRecorder discards everything.
type NoOpRecorder struct{}

func (NoOpRecorder) RecordOperation(string, string) {}
func (NoOpRecorder) RecordDuration(string, float64) {}
func (NoOpRecorder) RecordError(string, string)     {}

var (
	_ Recorder = NoOpRecorder{}
	_ Recorder = (*InferenceMetrics)(nil)
	_ Recorder = (*HistoryMetrics)(nil)
)
