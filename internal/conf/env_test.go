package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		validate func(string) error
		value    string
		wantErr  bool
	}{
		{"bool true", validateEnvBool, "true", false},
		{"bool padded", validateEnvBool, " 0 ", false},
		{"bool yes rejected", validateEnvBool, "yes", true},
		{"runtime tflite", validateEnvRuntime, "tflite", false},
		{"runtime upper onnx", validateEnvRuntime, "ONNX", false},
		{"runtime unknown", validateEnvRuntime, "torch", true},
		{"threads zero", validateEnvThreads, "0", false},
		{"threads negative", validateEnvThreads, "-1", true},
		{"threads text", validateEnvThreads, "four", true},
		{"positive int", validateEnvPositiveInt, "10", false},
		{"positive int zero", validateEnvPositiveInt, "0", true},
		{"port ok", validateEnvPort, "5000", false},
		{"port too high", validateEnvPort, "65536", true},
		{"port zero", validateEnvPort, "0", true},
		{"path ok", validateEnvPath, "/models/skin.tflite", false},
		{"path traversal", validateEnvPath, "../../etc/passwd", true},
		{"path empty", validateEnvPath, "", true},
		{"listen ok", validateListen, "0.0.0.0:8090", false},
		{"listen missing port", validateListen, "localhost", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBindEnvVars_ReportsAllProblems(t *testing.T) {
	resetViper(t)
	t.Setenv("SKINSCAN_PORT", "abc")
	t.Setenv("SKINSCAN_MODEL_THREADS", "-2")
	t.Setenv(maxUploadEnv, "0")

	err := bindEnvVars()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SKINSCAN_PORT")
	assert.Contains(t, err.Error(), "SKINSCAN_MODEL_THREADS")
	assert.Contains(t, err.Error(), maxUploadEnv)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(maxUploadEnv, "bogus")
	settings := &Settings{Decoder: DecoderSettings{MaxUploadBytes: 123}}
	applyEnvOverrides(settings)
	assert.Equal(t, int64(123), settings.Decoder.MaxUploadBytes)

	t.Setenv(maxUploadEnv, "5")
	applyEnvOverrides(settings)
	assert.Equal(t, int64(5<<20), settings.Decoder.MaxUploadBytes)
}
