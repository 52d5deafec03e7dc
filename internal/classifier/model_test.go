package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/imaging"
)

func TestCheckInputDims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dims    []int64
		wantErr bool
	}{
		{"exact", []int64{1, 224, 224, 3}, false},
		{"dynamic batch", []int64{-1, 224, 224, 3}, false},
		{"channels first", []int64{1, 3, 224, 224}, true},
		{"wrong size", []int64{1, 299, 299, 3}, true},
		{"batch of two", []int64{2, 224, 224, 3}, true},
		{"rank three", []int64{224, 224, 3}, true},
		{"empty", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := checkInputDims(tt.dims)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrShapeMismatch)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCheckOutputDims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dims    []int64
		wantErr bool
	}{
		{"batch and classes", []int64{1, 9}, false},
		{"dynamic batch", []int64{-1, 9}, false},
		{"flat", []int64{9}, false},
		{"too few classes", []int64{1, 7}, true},
		{"too many classes", []int64{1, 1000}, true},
		{"batch of four", []int64{4, 9}, true},
		{"empty", []int64{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := checkOutputDims(tt.dims)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrShapeMismatch)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestResolveModelPath_Explicit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "custom.tflite")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	got, err := ResolveModelPath(path, conf.RuntimeTFLite)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = ResolveModelPath(filepath.Join(dir, "missing.tflite"), conf.RuntimeTFLite)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
}

func TestResolveModelPath_ExpandsEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "env.onnx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	t.Setenv("SKINSCAN_TEST_MODEL_DIR", dir)

	got, err := ResolveModelPath("$SKINSCAN_TEST_MODEL_DIR/env.onnx", conf.RuntimeONNX)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestResolveModelPath_SearchesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	modelDir := filepath.Join(dir, "skinscan", DefaultModelDirectory)
	require.NoError(t, os.MkdirAll(modelDir, 0o750))
	want := filepath.Join(modelDir, DefaultONNXModelName)
	require.NoError(t, os.WriteFile(want, []byte("x"), 0o600))

	got, err := ResolveModelPath("", conf.RuntimeONNX)
	if err != nil {
		t.Skipf("a model in a higher priority location shadows the test: %v", err)
	}
	if got != want {
		t.Skipf("model found in higher priority location %s", got)
	}
	assert.Equal(t, want, got)
}

func TestDefaultModelName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultTFLiteModelName, DefaultModelName(conf.RuntimeTFLite))
	assert.Equal(t, DefaultONNXModelName, DefaultModelName(conf.RuntimeONNX))
	assert.Equal(t, DefaultTFLiteModelName, DefaultModelName(""))
}

func TestLoad_UnknownRuntime(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := Load(&conf.ModelSettings{Runtime: "coreml", Path: path})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoad_MissingArtifact(t *testing.T) {
	t.Parallel()

	_, err := Load(&conf.ModelSettings{Runtime: conf.RuntimeTFLite, Path: filepath.Join(t.TempDir(), "absent.tflite")})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
}

type stubModel struct{ info Info }

func (s stubModel) Score(*imaging.Tensor) ([]float32, error) { return nil, nil }
func (s stubModel) Info() Info                               { return s.info }
func (s stubModel) Close() error                             { return nil }

func TestWithVersion(t *testing.T) {
	t.Parallel()

	base := stubModel{info: Info{Name: "m.tflite", Version: ""}}
	assert.Equal(t, base, withVersion(base, ""))
	assert.Equal(t, "v2", withVersion(base, "v2").Info().Version)
	assert.Equal(t, "m.tflite", withVersion(base, "v2").Info().Name)
}
