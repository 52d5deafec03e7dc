// Package telemetry sets up opt-in error reporting to Sentry.
package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/logger"
	"github.com/skinscan/skinscan/internal/privacy"
)

const flushTimeout = 2 * time.Second

var sentryInitialized atomic.Bool

// PlatformInfo is the host description attached to every event.
type PlatformInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"arch"`
	Container    bool   `json:"container"`
	NumCPU       int    `json:"num_cpu"`
	GoVersion    string `json:"go_version"`
}

func collectPlatformInfo() PlatformInfo {
	return PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		Container:    conf.RunningInContainer(),
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
}

// InitSentry initialises the SDK and installs the error reporter when
// settings.Sentry.Enabled is set. It is a no-op otherwise.
func InitSentry(settings *conf.Settings, version string) error {
	return initSentry(settings, version, nil)
}

func initSentry(settings *conf.Settings, version string, transport sentry.Transport) error {
	if !settings.Sentry.Enabled {
		GetLogger().Debug("Sentry telemetry is disabled (opt-in required)")
		errors.SetTelemetryReporter(nil)
		return nil
	}

	sampleRate := settings.Sentry.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	environment := settings.Sentry.Environment
	if environment == "" {
		environment = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       sampleRate,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "",
		Release:          fmt.Sprintf("skinscan@%s", version),
		BeforeSend:       beforeSend,
		Transport:        transport,
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	platform := collectPlatformInfo()
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("app", "skinscan")
		scope.SetTag("model_runtime", settings.Model.Runtime)
		scope.SetContext("platform", map[string]any{
			"os":         platform.OS,
			"arch":       platform.Architecture,
			"container":  platform.Container,
			"num_cpu":    platform.NumCPU,
			"go_version": platform.GoVersion,
		})
	})

	errors.SetPrivacyScrubber(scrub)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	sentryInitialized.Store(true)

	GetLogger().Info("Sentry telemetry initialized",
		logger.String("environment", environment),
		logger.Float64("sample_rate", sampleRate))
	return nil
}

// beforeSend strips anything that could identify the host or a user.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = scrub(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = scrub(event.Exception[i].Value)
	}
	return event
}

// scrub anonymizes connection strings and identifiers first, then applies
// the generic path and secret rules.
func scrub(message string) string {
	return errors.BasicScrub(privacy.ScrubMessage(message))
}

// Flush waits for queued events. Safe to call when Sentry is disabled.
func Flush() {
	if !sentryInitialized.Load() {
		return
	}
	if !sentry.Flush(flushTimeout) {
		GetLogger().Warn("Sentry flush timed out", logger.Duration("timeout", flushTimeout))
	}
}

// IsEnabled reports whether Sentry was initialised.
func IsEnabled() bool {
	return sentryInitialized.Load()
}
