package classifier

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/diagnosis"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/imaging"
)

// ONNXOptions configures ONNX Runtime.
type ONNXOptions struct {
	Threads     int
	LibraryPath string // onnxruntime shared library, empty for the platform default
	InputName   string
	OutputName  string
}

// ONNXModel runs an .onnx artifact. The session is bound to one input and
// one output tensor, so Score serializes on mu.
type ONNXModel struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	info    Info
}

// onnxEnv tracks the process-wide runtime environment.
var onnxEnv struct {
	sync.Mutex
	refs int
}

func acquireONNXEnvironment(libraryPath string) error {
	onnxEnv.Lock()
	defer onnxEnv.Unlock()

	if onnxEnv.refs == 0 && !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	onnxEnv.refs++
	return nil
}

func releaseONNXEnvironment() {
	onnxEnv.Lock()
	defer onnxEnv.Unlock()

	onnxEnv.refs--
	if onnxEnv.refs <= 0 {
		onnxEnv.refs = 0
		_ = ort.DestroyEnvironment()
	}
}

// NewONNXModel initialises the runtime, checks the declared tensor shapes
// and creates a session bound to preallocated tensors.
func NewONNXModel(path string, opts ONNXOptions) (*ONNXModel, error) {
	start := time.Now()

	if err := acquireONNXEnvironment(opts.LibraryPath); err != nil {
		return nil, startupError(err, errors.CategoryModelInit, path, conf.RuntimeONNX, "environment-init", start)
	}

	m, err := newONNXModel(path, opts)
	if err != nil {
		releaseONNXEnvironment()
		return nil, startupError(err, onnxErrorCategory(err), path, conf.RuntimeONNX, "session-create", start)
	}
	return m, nil
}

func newONNXModel(path string, opts ONNXOptions) (*ONNXModel, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}
	if err := checkONNXInfo(inputs, opts.InputName, checkInputDims); err != nil {
		return nil, err
	}
	if err := checkONNXInfo(outputs, opts.OutputName, checkOutputDims); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, imaging.InputSize, imaging.InputSize, imaging.Channels))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, diagnosis.NumClasses))
	if err != nil {
		_ = input.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() { _ = sessionOptions.Destroy() }()

	threads := max(opts.Threads, 1)
	if err := sessionOptions.SetIntraOpNumThreads(threads); err != nil {
		GetLogger().Warn("Failed to set ONNX intra-op threads")
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		sessionOptions)
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXModel{
		session: session,
		input:   input,
		output:  output,
		info: Info{
			Name:       filepath.Base(path),
			Runtime:    conf.RuntimeONNX,
			Path:       path,
			Threads:    threads,
			OutputSize: diagnosis.NumClasses,
			LoadedAt:   time.Now(),
		},
	}, nil
}

func checkONNXInfo(infos []ort.InputOutputInfo, name string, check func([]int64) error) error {
	for _, info := range infos {
		if info.Name != name {
			continue
		}
		if info.DataType != ort.TensorElementDataTypeFloat {
			return fmt.Errorf("%w: tensor %q has element type %v, want float32", ErrShapeMismatch, name, info.DataType)
		}
		return check(info.Dimensions)
	}
	return fmt.Errorf("%w: model has no tensor named %q", ErrShapeMismatch, name)
}

func onnxErrorCategory(err error) errors.ErrorCategory {
	if errors.Is(err, ErrShapeMismatch) {
		return errors.CategoryValidation
	}
	return errors.CategoryModelInit
}

// Score copies the tensor into the bound input and runs the session.
func (m *ONNXModel) Score(t *imaging.Tensor) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, fmt.Errorf("model is closed")
	}

	input := m.input.GetData()
	if len(input) != len(t.Data) {
		return nil, fmt.Errorf("%w: input holds %d values, tensor has %d", ErrShapeMismatch, len(input), len(t.Data))
	}
	copy(input, t.Data)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx session run failed: %w", err)
	}

	output := m.output.GetData()
	probs := make([]float32, len(output))
	copy(probs, output)
	return probs, nil
}

// Info describes the loaded model.
func (m *ONNXModel) Info() Info { return m.info }

// Close destroys the session and its tensors and releases the runtime.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}

	var errs []error
	if err := m.session.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := m.input.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := m.output.Destroy(); err != nil {
		errs = append(errs, err)
	}
	m.session, m.input, m.output = nil, nil, nil
	releaseONNXEnvironment()

	return errors.Join(errs...)
}
