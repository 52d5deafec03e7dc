package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/skinscan/skinscan/internal/conf"
)

func TestWrite(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Main.Name = "clinic-a"
	settings.Model.Runtime = conf.RuntimeONNX
	settings.MQTT.Password = "hunter2"
	settings.Sentry.DSN = "https://key@sentry.example/1"

	tests := []struct {
		name        string
		showSecrets bool
		wantPass    string
	}{
		{"masked", false, redacted},
		{"shown", true, "hunter2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			require.NoError(t, Write(&out, settings, tt.showSecrets))

			var decoded conf.Settings
			require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
			assert.Equal(t, "clinic-a", decoded.Main.Name)
			assert.Equal(t, conf.RuntimeONNX, decoded.Model.Runtime)
			assert.Equal(t, tt.wantPass, decoded.MQTT.Password)
			assert.Empty(t, decoded.History.MySQL.Password, "empty secrets stay empty")
		})
	}

	// The caller's settings are never modified.
	assert.Equal(t, "hunter2", settings.MQTT.Password)
}
