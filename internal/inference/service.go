// Package inference runs the classification pipeline: decode, prepare,
// score and decide. It owns the client/server error split.
package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/skinscan/skinscan/internal/classifier"
	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/diagnosis"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/imaging"
	"github.com/skinscan/skinscan/internal/logger"
	"github.com/skinscan/skinscan/internal/observability/metrics"
)

// Stage names a pipeline step.
type Stage string

const (
	StageDecode     Stage = metrics.StageDecode
	StagePreprocess Stage = metrics.StagePreprocess
	StageScore      Stage = metrics.StageScore
	StageDecide     Stage = metrics.StageDecide
)

// Metrics receives pipeline measurements. *metrics.InferenceMetrics
// satisfies it.
type Metrics interface {
	RecordClassification(outcome string)
	ObserveStage(stage string, seconds float64)
	RecordPrediction(label string, confidence, seconds float64)
	RecordError(operation, errorType string)
}

type noopMetrics struct{}

func (noopMetrics) RecordClassification(string)               {}
func (noopMetrics) ObserveStage(string, float64)              {}
func (noopMetrics) RecordPrediction(string, float64, float64) {}
func (noopMetrics) RecordError(string, string)                {}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	MaxUploadBytes int64 // <= 0 disables the byte cap
	MaxPixels      int   // <= 0 means imaging.DefaultMaxPixels
	Metrics        Metrics
	Logger         logger.Logger
}

// OptionsFromSettings maps the decoder section of the settings.
func OptionsFromSettings(settings *conf.Settings) Options {
	return Options{
		MaxUploadBytes: settings.Decoder.MaxUploadBytes,
		MaxPixels:      settings.Decoder.MaxPixels,
	}
}

// Result is the two-field answer returned to callers.
type Result struct {
	PredictedCondition diagnosis.Label `json:"predicted_condition"`
	Recommendation     string          `json:"recommendation"`
}

// Outcome is everything the service learned about one request. Only Result
// leaves the process boundary; the rest feeds history, events and metrics.
type Outcome struct {
	Result
	Confidence    float32
	Probabilities []float32
	Format        string
	Width         int
	Height        int
	ImageSHA256   string
	ModelName     string
	Durations     map[Stage]time.Duration
	Total         time.Duration
}

// Service holds the loaded model and nothing per request, so one instance
// is shared by all handlers.
type Service struct {
	model          classifier.Model
	decoder        imaging.Decoder
	maxUploadBytes int64
	metrics        Metrics
	log            logger.Logger
}

// NewService wires a loaded model into a pipeline. The model is owned by the
// caller and must outlive the service.
func NewService(model classifier.Model, opts Options) (*Service, error) {
	if model == nil {
		return nil, fmt.Errorf("inference: model cannot be nil")
	}
	s := &Service{
		model:          model,
		decoder:        imaging.Decoder{MaxPixels: opts.MaxPixels},
		maxUploadBytes: opts.MaxUploadBytes,
		metrics:        opts.Metrics,
		log:            opts.Logger,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	return s, nil
}

// LoadModel loads the configured model and wraps any failure in a
// StartupError.
func LoadModel(settings *conf.ModelSettings) (classifier.Model, error) {
	model, err := classifier.Load(settings)
	if err != nil {
		return nil, &StartupError{Err: err}
	}
	return model, nil
}

// ModelInfo describes the model behind the service.
func (s *Service) ModelInfo() classifier.Info {
	return s.model.Info()
}

// MaxUploadBytes is the byte cap applied by Classify, or 0 when unbounded.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Classify runs the whole pipeline on data. Errors are always *InputError
// or *InferenceError.
func (s *Service) Classify(data []byte) (*Outcome, error) {
	start := time.Now()
	outcome, err := s.classify(data)
	s.record(outcome, err, time.Since(start))
	return outcome, err
}

// ClassifyContext is Classify bounded by ctx. On expiry it returns
// ErrTimeout immediately; the pipeline keeps running to completion in the
// background and its result is dropped, since a half-scored tensor cannot
// be abandoned safely.
func (s *Service) ClassifyContext(ctx context.Context, data []byte) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		s.metrics.RecordClassification(metrics.OutcomeTimeout)
		return nil, newTimeoutError(err)
	}

	type reply struct {
		outcome *Outcome
		err     error
		elapsed time.Duration
	}
	start := time.Now()
	done := make(chan reply, 1)
	go func() {
		outcome, err := s.classify(data)
		done <- reply{outcome, err, time.Since(start)}
	}()

	select {
	case r := <-done:
		s.record(r.outcome, r.err, r.elapsed)
		return r.outcome, r.err
	case <-ctx.Done():
		s.metrics.RecordClassification(metrics.OutcomeTimeout)
		s.log.WithContext(ctx).Warn("Classification exceeded caller deadline",
			logger.Error(ctx.Err()))
		return nil, newTimeoutError(ctx.Err())
	}
}

func (s *Service) classify(data []byte) (*Outcome, error) {
	if len(data) == 0 {
		return nil, newInputError(MsgNoImage, nil)
	}
	if s.maxUploadBytes > 0 && int64(len(data)) > s.maxUploadBytes {
		return nil, newLimitError(s.maxUploadBytes)
	}

	durations := make(map[Stage]time.Duration, 4)

	t := time.Now()
	decoded, err := s.decode(data)
	durations[StageDecode] = time.Since(t)
	if err != nil {
		return nil, newInputError(decodeMessage(err), err)
	}

	t = time.Now()
	tensor, err := prepare(decoded)
	durations[StagePreprocess] = time.Since(t)
	if err != nil {
		return nil, newInferenceError(StagePreprocess, err)
	}

	t = time.Now()
	probs, err := s.score(tensor)
	durations[StageScore] = time.Since(t)
	if err != nil {
		return nil, newInferenceError(StageScore, err)
	}

	t = time.Now()
	decision, err := diagnosis.Decide(probs)
	durations[StageDecide] = time.Since(t)
	if err != nil {
		return nil, newInferenceError(StageDecide, err)
	}

	digest := sha256.Sum256(data)
	return &Outcome{
		Result: Result{
			PredictedCondition: decision.Label,
			Recommendation:     decision.Recommendation,
		},
		Confidence:    decision.Confidence,
		Probabilities: probs,
		Format:        decoded.Format,
		Width:         decoded.Width(),
		Height:        decoded.Height(),
		ImageSHA256:   hex.EncodeToString(digest[:]),
		ModelName:     s.model.Info().Name,
		Durations:     durations,
	}, nil
}

// decode recovers decoder panics. ClassifyContext runs the pipeline on its
// own goroutine, where the HTTP recover middleware cannot reach.
func (s *Service) decode(data []byte) (decoded *imaging.Decoded, err error) {
	defer func() {
		if r := recover(); r != nil {
			decoded = nil
			err = &imaging.DecodeError{Err: fmt.Errorf("decoder panicked: %v", r)}
		}
	}()
	return s.decoder.Decode(data)
}

func prepare(decoded *imaging.Decoded) (tensor *imaging.Tensor, err error) {
	defer func() {
		if r := recover(); r != nil {
			tensor = nil
			err = fmt.Errorf("preprocessing panicked: %v", r)
		}
	}()
	return imaging.Prepare(decoded), nil
}

// score turns a runtime panic into an error so one bad request cannot take
// the server down.
func (s *Service) score(tensor *imaging.Tensor) (probs []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()
	return s.model.Score(tensor)
}

func (s *Service) record(outcome *Outcome, err error, elapsed time.Duration) {
	if outcome != nil {
		outcome.Total = elapsed
		for stage, d := range outcome.Durations {
			s.metrics.ObserveStage(string(stage), d.Seconds())
		}
		s.metrics.RecordClassification(metrics.OutcomeSuccess)
		s.metrics.RecordPrediction(string(outcome.PredictedCondition), float64(outcome.Confidence), elapsed.Seconds())

		s.log.Info("Image classified",
			logger.String("label", string(outcome.PredictedCondition)),
			logger.Float32("confidence", outcome.Confidence),
			logger.String("format", outcome.Format),
			logger.Int("width", outcome.Width),
			logger.Int("height", outcome.Height),
			logger.Duration("elapsed", elapsed))
		s.log.Debug("Class probabilities", logger.Any("probabilities", outcome.Probabilities))
		return
	}

	var inputErr *InputError
	var inferErr *InferenceError
	switch {
	case errors.As(err, &inputErr):
		s.metrics.RecordClassification(metrics.OutcomeInputError)
		s.metrics.RecordError(metrics.OpClassify, "input")
		s.log.Debug("Rejected image", logger.String("reason", inputErr.Message), logger.Error(inputErr.Err))
	case errors.As(err, &inferErr):
		s.metrics.RecordClassification(metrics.OutcomeInferenceError)
		s.metrics.RecordError(metrics.OpClassify, string(inferErr.Stage))
		s.log.Error("Classification failed",
			logger.String("stage", string(inferErr.Stage)),
			logger.Error(inferErr.Err),
			logger.Duration("elapsed", elapsed))
	}
}
