// Package classifier loads the pretrained skin-lesion model and exposes it
// as a pure scoring function.
package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/cpuspec"
	"github.com/skinscan/skinscan/internal/diagnosis"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/imaging"
	"github.com/skinscan/skinscan/internal/logger"
)

// Model scores a prepared tensor. Implementations must be safe for
// concurrent use and must not retain the tensor.
type Model interface {
	// Score returns one probability per diagnosis label, in label order.
	Score(t *imaging.Tensor) ([]float32, error)
	Info() Info
	Close() error
}

// Info describes a loaded model.
type Info struct {
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	Runtime    string    `json:"runtime"`
	Path       string    `json:"path"`
	Threads    int       `json:"threads"`
	OutputSize int       `json:"output_size"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// ErrShapeMismatch is wrapped when the artifact's tensors do not match the
// preprocessing geometry or the label table.
var ErrShapeMismatch = errors.NewStd("model tensor shape mismatch")

// Load opens the model described by settings with the configured runtime.
// Any error is fatal for the process.
func Load(settings *conf.ModelSettings) (Model, error) {
	start := time.Now()
	runtimeName := strings.ToLower(settings.Runtime)
	if runtimeName == "" {
		runtimeName = conf.RuntimeTFLite
	}

	path, err := ResolveModelPath(settings.Path, runtimeName)
	if err != nil {
		return nil, err
	}

	threads := cpuspec.ResolveThreads(settings.Threads)

	var model Model
	switch runtimeName {
	case conf.RuntimeTFLite:
		model, err = NewTFLiteModel(path, TFLiteOptions{Threads: threads, UseXNNPACK: settings.UseXNNPACK})
	case conf.RuntimeONNX:
		model, err = NewONNXModel(path, ONNXOptions{
			Threads:     threads,
			LibraryPath: settings.ONNXLibraryPath,
			InputName:   settings.InputName,
			OutputName:  settings.OutputName,
		})
	default:
		return nil, errors.Newf("unknown model runtime %q", settings.Runtime).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}

	info := model.Info()
	GetLogger().Info("Model loaded",
		logger.String("model", info.Name),
		logger.String("runtime", info.Runtime),
		logger.String("path", info.Path),
		logger.Int("threads", info.Threads),
		logger.Duration("elapsed", time.Since(start)))

	return withVersion(model, settings.Version), nil
}

// versioned overrides the Version reported by a model.
type versioned struct {
	Model
	version string
}

func (v versioned) Info() Info {
	info := v.Model.Info()
	info.Version = v.version
	return info
}

func withVersion(m Model, version string) Model {
	if version == "" {
		return m
	}
	return versioned{Model: m, version: version}
}

// checkInputDims accepts [1|-1, 224, 224, 3].
func checkInputDims(dims []int64) error {
	want := [4]int64{1, imaging.InputSize, imaging.InputSize, imaging.Channels}
	if len(dims) != len(want) {
		return fmt.Errorf("%w: input has %d dimensions, want %d", ErrShapeMismatch, len(dims), len(want))
	}
	for i, d := range dims {
		if i == 0 && d <= 0 {
			continue
		}
		if d != want[i] {
			return fmt.Errorf("%w: input shape %v, want %v", ErrShapeMismatch, dims, want)
		}
	}
	return nil
}

// checkOutputDims requires the last dimension to equal the label count and
// every leading dimension to be 1 (or dynamic).
func checkOutputDims(dims []int64) error {
	if len(dims) == 0 {
		return fmt.Errorf("%w: output tensor has no dimensions", ErrShapeMismatch)
	}
	for _, d := range dims[:len(dims)-1] {
		if d != 1 && d > 0 {
			return fmt.Errorf("%w: output shape %v has batch > 1", ErrShapeMismatch, dims)
		}
	}
	if last := dims[len(dims)-1]; last != diagnosis.NumClasses {
		return fmt.Errorf("%w: model outputs %d classes, label table has %d", ErrShapeMismatch, last, diagnosis.NumClasses)
	}
	return nil
}

func startupError(err error, category errors.ErrorCategory, path, runtimeName, operation string, start time.Time) error {
	return errors.New(err).
		Component("classifier").
		Category(category).
		Priority(errors.PriorityCritical).
		ModelContext(path, runtimeName).
		Timing(operation, time.Since(start)).
		Build()
}
