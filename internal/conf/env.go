// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix is prepended to every automatic environment key.
const envPrefix = "SKINSCAN"

// maxUploadEnv is handled outside viper because it is expressed in MiB.
const maxUploadEnv = "SKINSCAN_MAX_UPLOAD_MB"

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // viper config key
	EnvVar    string             // environment variable name
	Validate  func(string) error // optional validation function
}

// getEnvBindings returns all explicit environment variable bindings
func getEnvBindings() []envBinding {
	return []envBinding{
		{"model.runtime", "SKINSCAN_MODEL_RUNTIME", validateEnvRuntime},
		{"model.path", "SKINSCAN_MODEL_PATH", validateEnvPath},
		{"model.threads", "SKINSCAN_MODEL_THREADS", validateEnvThreads},
		{"model.usexnnpack", "SKINSCAN_MODEL_XNNPACK", validateEnvBool},
		{"model.onnxlibrarypath", "SKINSCAN_ONNX_LIBRARY", validateEnvPath},

		{"webserver.host", "SKINSCAN_HOST", nil},
		{"webserver.port", "SKINSCAN_PORT", validateEnvPort},

		{"decoder.maxpixels", "SKINSCAN_MAX_PIXELS", validateEnvPositiveInt},

		{"history.enabled", "SKINSCAN_HISTORY_ENABLED", validateEnvBool},
		{"history.sqlite.path", "SKINSCAN_SQLITE_PATH", nil},

		{"mqtt.enabled", "SKINSCAN_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "SKINSCAN_MQTT_BROKER", nil},
		{"mqtt.password", "SKINSCAN_MQTT_PASSWORD", nil},

		{"sentry.enabled", "SKINSCAN_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "SKINSCAN_SENTRY_DSN", nil},
	}
}

// loadDotEnv reads .env from the working directory if present. Variables
// already set in the process environment win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// bindEnvVars binds every explicit variable and validates the ones that are
// set. All problems are returned together.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, value, err))
			}
		}
	}

	if value := os.Getenv(maxUploadEnv); value != "" {
		if err := validateEnvPositiveInt(value); err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", maxUploadEnv, value, err))
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// configureEnvironmentVariables loads .env and sets up viper's environment support.
func configureEnvironmentVariables() error {
	if err := loadDotEnv(); err != nil {
		return err
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return bindEnvVars()
}

// applyEnvOverrides handles variables that do not map 1:1 to a config key.
func applyEnvOverrides(settings *Settings) {
	value := strings.TrimSpace(os.Getenv(maxUploadEnv))
	if value == "" {
		return
	}
	mb, err := strconv.Atoi(value)
	if err != nil || mb <= 0 {
		return
	}
	settings.Decoder.MaxUploadBytes = int64(mb) << 20
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value: %s", value)
	}
	return nil
}

func validateEnvRuntime(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case RuntimeTFLite, RuntimeONNX:
		return nil
	default:
		return fmt.Errorf("runtime must be %q or %q", RuntimeTFLite, RuntimeONNX)
	}
}

func validateEnvThreads(value string) error {
	threads, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer value: %s", value)
	}
	if threads < 0 {
		return fmt.Errorf("threads must be >= 0, got %d", threads)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer value: %s", value)
	}
	if n <= 0 {
		return fmt.Errorf("value must be > 0, got %d", n)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid port: %s", value)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// validateEnvPath rejects traversal; a missing file is not an error here,
// the classifier reports it at startup.
func validateEnvPath(value string) error {
	if value == "" {
		return fmt.Errorf("path cannot be empty")
	}
	for part := range strings.SplitSeq(filepath.ToSlash(value), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal detected: %s", value)
		}
	}
	return nil
}

// validateListen checks a host:port pair.
func validateListen(value string) error {
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", value, err)
	}
	return validateEnvPort(port)
}
