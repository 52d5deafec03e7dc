package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/errors"
)

type captureTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *captureTransport) Configure(sentry.ClientOptions) {} //nolint:gocritic // interface signature

func (t *captureTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *captureTransport) Flush(time.Duration) bool              { return true }
func (t *captureTransport) FlushWithContext(context.Context) bool { return true }
func (t *captureTransport) Close()                                {}

func (t *captureTransport) captured() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func TestInitSentry_Disabled(t *testing.T) {
	require.NoError(t, InitSentry(&conf.Settings{}, "test"))
	assert.Nil(t, errors.GetTelemetryReporter())
	Flush()
}

func TestInitSentry_ReportsScrubbedErrors(t *testing.T) {
	transport := &captureTransport{}

	settings := &conf.Settings{}
	settings.Sentry.Enabled = true
	settings.Sentry.DSN = "https://public@sentry.example.com/1"
	settings.Model.Runtime = conf.RuntimeTFLite

	require.NoError(t, initSentry(settings, "1.0.0", transport))
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })
	assert.True(t, IsEnabled())

	_ = errors.Newf("cannot open /var/lib/skinscan/model.tflite").
		Component("classifier").
		Category(errors.CategoryModelLoad).
		Build()
	Flush()

	events := transport.captured()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.NotContains(t, last.Message, "/var/lib/skinscan")
	assert.Empty(t, last.ServerName)
	assert.Equal(t, "skinscan@1.0.0", last.Release)
}

func TestBeforeSend(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		Message:    "token=abc123 failed",
		ServerName: "host-1",
		User:       sentry.User{ID: "u1"},
		Contexts:   map[string]sentry.Context{"os": {}, "platform": {}},
		Extra:      map[string]any{"component": "api", "secret": "x"},
		Tags:       map[string]string{"hostname": "h", "category": "database"},
		Exception:  []sentry.Exception{{Value: "open /home/user/file.db"}},
	}

	got := beforeSend(event, nil)
	assert.Empty(t, got.ServerName)
	assert.True(t, got.User.IsEmpty())
	assert.NotContains(t, got.Contexts, "os")
	assert.Contains(t, got.Contexts, "platform")
	assert.Equal(t, map[string]any{"component": "api"}, got.Extra)
	assert.NotContains(t, got.Tags, "hostname")
	assert.Contains(t, got.Tags, "category")
	assert.NotContains(t, got.Message, "abc123")
	assert.NotContains(t, got.Exception[0].Value, "/home/user")
}

func TestScrub_ConnectionDetails(t *testing.T) {
	t.Parallel()

	got := scrub("mqtt connect to tcp://svc:pw@broker.example.net:1883 failed for owner=alice")
	assert.NotContains(t, got, "broker.example.net")
	assert.NotContains(t, got, "pw@")
	assert.NotContains(t, got, "alice")
	assert.Contains(t, got, "mqtt connect to url-")
}
