// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError collects every settings problem found in one pass
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateModelSettings(&s.Model) },
		func(s *Settings) error { return validateDecoderSettings(&s.Decoder) },
		func(s *Settings) error { return validateWebServerSettings(&s.WebServer) },
		func(s *Settings) error { return validateHistorySettings(&s.History) },
		func(s *Settings) error { return validateMQTTSettings(&s.MQTT) },
		func(s *Settings) error { return validateTelemetrySettings(&s.Telemetry) },
		func(s *Settings) error { return validateSentrySettings(&s.Sentry) },
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateModelSettings(m *ModelSettings) error {
	m.Runtime = strings.ToLower(strings.TrimSpace(m.Runtime))
	if err := validateEnvRuntime(m.Runtime); err != nil {
		return fmt.Errorf("model.runtime: %w", err)
	}
	if m.Threads < 0 {
		return fmt.Errorf("model.threads must be >= 0, got %d", m.Threads)
	}
	if m.Runtime == RuntimeONNX && (m.InputName == "" || m.OutputName == "") {
		return fmt.Errorf("model.inputname and model.outputname are required for the onnx runtime")
	}
	return nil
}

func validateDecoderSettings(d *DecoderSettings) error {
	if d.MaxUploadBytes <= 0 {
		return fmt.Errorf("decoder.maxuploadbytes must be > 0, got %d", d.MaxUploadBytes)
	}
	if d.MaxPixels <= 0 {
		return fmt.Errorf("decoder.maxpixels must be > 0, got %d", d.MaxPixels)
	}
	return nil
}

func validateWebServerSettings(w *WebServerSettings) error {
	if !w.Enabled {
		return nil
	}
	if err := validateEnvPort(w.Port); err != nil {
		return fmt.Errorf("webserver.port: %w", err)
	}
	if w.RequestTimeout <= 0 {
		return fmt.Errorf("webserver.requesttimeout must be positive, got %s", w.RequestTimeout)
	}
	if w.RateLimit.Enabled && (w.RateLimit.RequestsPerSecond <= 0 || w.RateLimit.Burst <= 0) {
		return fmt.Errorf("webserver.ratelimit requires positive requestspersecond and burst")
	}
	for _, origin := range w.CORSOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webserver.corsorigins: invalid origin %q", origin)
		}
	}
	return nil
}

func validateHistorySettings(h *HistorySettings) error {
	if !h.Enabled {
		return nil
	}
	switch {
	case h.SQLite.Enabled && h.MySQL.Enabled:
		return fmt.Errorf("history: enable either sqlite or mysql, not both")
	case !h.SQLite.Enabled && !h.MySQL.Enabled:
		return fmt.Errorf("history: enabled but no backend selected")
	case h.SQLite.Enabled && h.SQLite.Path == "":
		return fmt.Errorf("history.sqlite.path is required")
	case h.MySQL.Enabled && (h.MySQL.Host == "" || h.MySQL.Database == ""):
		return fmt.Errorf("history.mysql requires host and database")
	}
	if h.CacheTTL < 0 {
		return fmt.Errorf("history.cachettl must be >= 0")
	}
	return nil
}

func validateMQTTSettings(m *MQTTSettings) error {
	if !m.Enabled {
		return nil
	}
	if m.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	u, err := url.Parse(m.Broker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("mqtt.broker: invalid broker URL %q", m.Broker)
	}
	if m.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
	}
	if m.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", m.QoS)
	}
	return nil
}

func validateTelemetrySettings(t *TelemetrySettings) error {
	if !t.Enabled {
		return nil
	}
	if err := validateListen(t.Listen); err != nil {
		return fmt.Errorf("telemetry.listen: %w", err)
	}
	return nil
}

func validateSentrySettings(s *SentrySettings) error {
	if !s.Enabled {
		return nil
	}
	if s.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	if s.SampleRate < 0 || s.SampleRate > 1 {
		return fmt.Errorf("sentry.samplerate must be between 0 and 1, got %g", s.SampleRate)
	}
	return nil
}
