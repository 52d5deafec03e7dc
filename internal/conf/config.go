// config.go: settings struct for SkinScan and the functions to load and save it.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/skinscan/skinscan/internal/logger"
	"github.com/skinscan/skinscan/internal/secrets"
)

// Model runtimes understood by the classifier package.
const (
	RuntimeTFLite = "tflite"
	RuntimeONNX   = "onnx"
)

// MainSettings contains general application settings.
type MainSettings struct {
	Name string // instance name reported in health output and events
}

// ModelSettings describes the classifier artifact and how to run it.
type ModelSettings struct {
	Runtime         string // "tflite" or "onnx"
	Path            string // model file; empty means search the default locations
	Version         string // free-form artifact version recorded in history and events
	Threads         int    // interpreter threads, 0 for automatic
	UseXNNPACK      bool   // tflite only: enable the XNNPACK delegate
	ONNXLibraryPath string // onnx only: path to the onnxruntime shared library
	InputName       string // onnx only: input tensor name
	OutputName      string // onnx only: output tensor name
}

// DecoderSettings bounds the resources a single upload may consume.
type DecoderSettings struct {
	MaxUploadBytes int64 // largest accepted request body
	MaxPixels      int   // largest accepted width*height before full decode
}

// RateLimitSettings configures per-client throttling of the detection endpoint.
type RateLimitSettings struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// WebServerSettings contains settings for the HTTP server.
type WebServerSettings struct {
	Enabled        bool
	Host           string        // listen host, empty for all interfaces
	Port           string        // listen port
	Debug          bool          // verbose echo logging
	CORSOrigins    []string      // allowed browser origins
	RequestTimeout time.Duration // caller-level timeout around one classification
	RateLimit      RateLimitSettings
}

// Address returns the host:port the server listens on.
func (w *WebServerSettings) Address() string {
	return w.Host + ":" + w.Port
}

// SQLiteSettings configures the sqlite history backend.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings configures the mysql history backend.
type MySQLSettings struct {
	Enabled      bool
	Username     string
	Password     string // literal or ${ENV} reference
	PasswordFile string // mounted secret file, wins over Password
	Database     string
	Host         string
	Port         string
}

// HistorySettings controls scan history persistence.
type HistorySettings struct {
	Enabled  bool
	CacheTTL time.Duration // lifetime of cached list responses
	SQLite   SQLiteSettings
	MySQL    MySQLSettings
}

// MQTTSettings contains settings for publishing classification events.
type MQTTSettings struct {
	Enabled      bool
	Broker       string // tcp://host:port
	Topic        string
	ClientID     string
	Username     string
	Password     string // literal or ${ENV} reference
	PasswordFile string // mounted secret file, wins over Password
	QoS          byte
	Retain       bool
}

// TelemetrySettings contains settings for the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string
}

// SentrySettings contains settings for error reporting.
type SentrySettings struct {
	Enabled     bool
	DSN         string // literal or ${ENV} reference
	DSNFile     string // mounted secret file, wins over DSN
	Environment string
	SampleRate  float64
}

// Settings contains all configuration options.
type Settings struct {
	Debug bool

	Main      MainSettings
	Model     ModelSettings
	Decoder   DecoderSettings
	WebServer WebServerSettings
	History   HistorySettings
	MQTT      MQTTSettings
	Telemetry TelemetrySettings
	Sentry    SentrySettings
	Logging   logger.LoggingConfig
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads config.yaml from the default locations, applies .env and
// environment overrides, validates the result and stores it as the current
// settings. A missing config file is created with defaults.
func Load() (*Settings, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations.
func LoadFile(configPath string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configPath); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	applyEnvOverrides(settings)

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and environment bindings, then reads the
// config file.
func initViper(configPath string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		GetLogger().Warn("Environment configuration issues", logger.Error(err))
	}

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the defaults to dir/config.yaml and reads it back.
func createDefaultConfig(dir string) error {
	defaults := &Settings{}
	if err := viper.Unmarshal(defaults); err != nil {
		return fmt.Errorf("error building default settings: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := SaveYAMLConfig(configPath, defaults); err != nil {
		return err
	}

	GetLogger().Info("Created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// resolveSecrets replaces credential fields with their file or environment
// values.
func resolveSecrets(settings *Settings) error {
	fields := []struct {
		name  string
		file  string
		value *string
	}{
		{"history.mysql.password", settings.History.MySQL.PasswordFile, &settings.History.MySQL.Password},
		{"mqtt.password", settings.MQTT.PasswordFile, &settings.MQTT.Password},
		{"sentry.dsn", settings.Sentry.DSNFile, &settings.Sentry.DSN},
	}

	var problems []string
	for _, f := range fields {
		resolved, err := secrets.Resolve(f.file, *f.value)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", f.name, err))
			continue
		}
		*f.value = resolved
	}
	if len(problems) > 0 {
		return ValidationError{Errors: problems}
	}
	return nil
}

// GetSettings returns the current settings instance, or nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath through a temporary file in
// the same directory so readers never observe a partial file.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Chmod(tempFileName, 0o600); err != nil {
		return fmt.Errorf("error setting config file permissions: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
