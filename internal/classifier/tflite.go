package classifier

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/imaging"
	"github.com/skinscan/skinscan/internal/logger"
)

// TFLiteOptions configures the TensorFlow Lite interpreter.
type TFLiteOptions struct {
	Threads    int
	UseXNNPACK bool
}

// TFLiteModel runs a .tflite artifact. The interpreter is not reentrant, so
// Score holds mu for the duration of one invocation only.
type TFLiteModel struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	info        Info
}

// NewTFLiteModel loads path, allocates tensors and validates the input and
// output shapes against the preprocessing geometry and label table.
func NewTFLiteModel(path string, opts TFLiteOptions) (*TFLiteModel, error) {
	start := time.Now()

	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config or the standard search paths
	if err != nil {
		return nil, startupError(err, errors.CategoryModelLoad, path, conf.RuntimeTFLite, "model-file-read", start)
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, startupError(fmt.Errorf("cannot load TensorFlow Lite model (%d bytes)", len(data)),
			errors.CategoryModelInit, path, conf.RuntimeTFLite, "model-init", start)
	}

	threads := max(opts.Threads, 1)
	options := tflite.NewInterpreterOptions()
	if opts.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(threads)}) //nolint:gosec // bounded by CPU count
		if delegate == nil {
			GetLogger().Warn("Failed to create XNNPACK delegate, falling back to default CPU kernels")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	m := &TFLiteModel{model: model, options: options}

	m.interpreter = tflite.NewInterpreter(model, options)
	if m.interpreter == nil {
		m.release()
		return nil, startupError(fmt.Errorf("cannot create interpreter"),
			errors.CategoryModelInit, path, conf.RuntimeTFLite, "interpreter-create", start)
	}
	if status := m.interpreter.AllocateTensors(); status != tflite.OK {
		m.release()
		return nil, startupError(fmt.Errorf("tensor allocation failed: %v", status),
			errors.CategoryModelInit, path, conf.RuntimeTFLite, "allocate-tensors", start)
	}

	outputSize, err := m.validate()
	if err != nil {
		m.release()
		return nil, startupError(err, errors.CategoryValidation, path, conf.RuntimeTFLite, "validate-shapes", start)
	}

	m.info = Info{
		Name:       filepath.Base(path),
		Runtime:    conf.RuntimeTFLite,
		Path:       path,
		Threads:    threads,
		OutputSize: outputSize,
		LoadedAt:   time.Now(),
	}
	return m, nil
}

func (m *TFLiteModel) validate() (int, error) {
	input := m.interpreter.GetInputTensor(0)
	if input == nil {
		return 0, fmt.Errorf("%w: model has no input tensor", ErrShapeMismatch)
	}
	if input.Type() != tflite.Float32 {
		return 0, fmt.Errorf("%w: input type %v, want float32", ErrShapeMismatch, input.Type())
	}
	if err := checkInputDims(tensorDims(input)); err != nil {
		return 0, err
	}

	output := m.interpreter.GetOutputTensor(0)
	if output == nil {
		return 0, fmt.Errorf("%w: model has no output tensor", ErrShapeMismatch)
	}
	if output.Type() != tflite.Float32 {
		return 0, fmt.Errorf("%w: output type %v, want float32", ErrShapeMismatch, output.Type())
	}
	dims := tensorDims(output)
	if err := checkOutputDims(dims); err != nil {
		return 0, err
	}
	return int(dims[len(dims)-1]), nil
}

func tensorDims(t *tflite.Tensor) []int64 {
	dims := make([]int64, t.NumDims())
	for i := range dims {
		dims[i] = int64(t.Dim(i))
	}
	return dims
}

// Score copies the tensor into the interpreter, runs it and returns a copy
// of the output vector.
func (m *TFLiteModel) Score(t *imaging.Tensor) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interpreter == nil {
		return nil, fmt.Errorf("model is closed")
	}

	input := m.interpreter.GetInputTensor(0).Float32s()
	if len(input) != len(t.Data) {
		return nil, fmt.Errorf("%w: input holds %d values, tensor has %d", ErrShapeMismatch, len(input), len(t.Data))
	}
	copy(input, t.Data)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tflite invoke failed: %v", status)
	}

	output := m.interpreter.GetOutputTensor(0).Float32s()
	probs := make([]float32, len(output))
	copy(probs, output)
	return probs, nil
}

// Info describes the loaded model.
func (m *TFLiteModel) Info() Info { return m.info }

// Close releases the interpreter. Score fails afterwards.
func (m *TFLiteModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
	return nil
}

func (m *TFLiteModel) release() {
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
	if m.options != nil {
		m.options.Delete()
		m.options = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
}
