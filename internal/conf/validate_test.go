package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Model: ModelSettings{Runtime: RuntimeTFLite, InputName: "input", OutputName: "output"},
		Decoder: DecoderSettings{
			MaxUploadBytes: DefaultMaxUploadBytes,
			MaxPixels:      DefaultMaxPixels,
		},
		WebServer: WebServerSettings{
			Enabled:        true,
			Port:           DefaultPort,
			CORSOrigins:    []string{"http://localhost:3000"},
			RequestTimeout: 30 * time.Second,
			RateLimit:      RateLimitSettings{Enabled: true, RequestsPerSecond: 2, Burst: 10},
		},
		History: HistorySettings{
			Enabled: true,
			SQLite:  SQLiteSettings{Enabled: true, Path: "skinscan.db"},
		},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid defaults", func(*Settings) {}, ""},
		{"runtime normalised", func(s *Settings) { s.Model.Runtime = " TFLite " }, ""},
		{"unknown runtime", func(s *Settings) { s.Model.Runtime = "coreml" }, "model.runtime"},
		{"onnx without names", func(s *Settings) {
			s.Model.Runtime = RuntimeONNX
			s.Model.OutputName = ""
		}, "model.inputname"},
		{"negative threads", func(s *Settings) { s.Model.Threads = -1 }, "model.threads"},
		{"zero upload cap", func(s *Settings) { s.Decoder.MaxUploadBytes = 0 }, "decoder.maxuploadbytes"},
		{"zero pixel cap", func(s *Settings) { s.Decoder.MaxPixels = 0 }, "decoder.maxpixels"},
		{"bad port", func(s *Settings) { s.WebServer.Port = "http" }, "webserver.port"},
		{"webserver disabled skips port", func(s *Settings) {
			s.WebServer.Enabled = false
			s.WebServer.Port = ""
		}, ""},
		{"zero timeout", func(s *Settings) { s.WebServer.RequestTimeout = 0 }, "requesttimeout"},
		{"bad rate limit", func(s *Settings) { s.WebServer.RateLimit.Burst = 0 }, "ratelimit"},
		{"bad origin", func(s *Settings) { s.WebServer.CORSOrigins = []string{"localhost"} }, "corsorigins"},
		{"wildcard origin", func(s *Settings) { s.WebServer.CORSOrigins = []string{"*"} }, ""},
		{"two history backends", func(s *Settings) {
			s.History.MySQL = MySQLSettings{Enabled: true, Host: "db", Database: "skinscan"}
		}, "not both"},
		{"no history backend", func(s *Settings) { s.History.SQLite.Enabled = false }, "no backend"},
		{"mqtt without broker", func(s *Settings) {
			s.MQTT = MQTTSettings{Enabled: true, Topic: "t"}
		}, "mqtt.broker"},
		{"mqtt bad qos", func(s *Settings) {
			s.MQTT = MQTTSettings{Enabled: true, Broker: "tcp://broker:1883", Topic: "t", QoS: 3}
		}, "mqtt.qos"},
		{"telemetry bad listen", func(s *Settings) {
			s.Telemetry = TelemetrySettings{Enabled: true, Listen: "nowhere"}
		}, "telemetry.listen"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			settings := validSettings()
			tt.mutate(settings)
			err := ValidateSettings(settings)

			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettings_CollectsAll(t *testing.T) {
	t.Parallel()

	settings := validSettings()
	settings.Model.Runtime = "coreml"
	settings.Decoder.MaxPixels = -1
	settings.Sentry.Enabled = true

	err := ValidateSettings(settings)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}
