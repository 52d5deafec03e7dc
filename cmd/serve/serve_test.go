package serve

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skinscan/skinscan/internal/buildinfo"
	"github.com/skinscan/skinscan/internal/classifier"
	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/events"
	"github.com/skinscan/skinscan/internal/imaging"
	"github.com/skinscan/skinscan/internal/inference"
	"github.com/skinscan/skinscan/internal/observability"
)

func TestRun_MissingModelAborts(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Model.Runtime = conf.RuntimeTFLite
	settings.Model.Path = filepath.Join(t.TempDir(), "absent.tflite")
	settings.WebServer.Host = "127.0.0.1"
	settings.WebServer.Port = "0"

	err := Run(context.Background(), settings, buildinfo.New("test", ""))
	require.Error(t, err)

	var startupErr *inference.StartupError
	assert.True(t, errors.As(err, &startupErr), "want StartupError, got %v", err)
}

func TestLoadModel_RecordsFailure(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Model.Runtime = conf.RuntimeTFLite
	settings.Model.Path = filepath.Join(t.TempDir(), "absent.tflite")

	_, err = loadModel(settings, m)
	require.Error(t, err)
}

func TestConnectEvents_Disabled(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)
	assert.Nil(t, connectEvents(context.Background(), &conf.Settings{}, m))

	settings := &conf.Settings{}
	settings.MQTT.Enabled = true // no broker configured
	assert.Nil(t, connectEvents(context.Background(), settings, m))
}

type closingPublisher struct {
	mu     sync.Mutex
	closed int
}

func (p *closingPublisher) Publish(context.Context, events.Event) error { return nil }

func (p *closingPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
}

func (p *closingPublisher) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type uniformModel struct{}

func (uniformModel) Score(*imaging.Tensor) ([]float32, error) {
	probs := make([]float32, 9)
	for i := range probs {
		probs[i] = 1.0 / 9
	}
	return probs, nil
}

func (uniformModel) Info() classifier.Info { return classifier.Info{Name: "uniform", OutputSize: 9} }
func (uniformModel) Close() error          { return nil }

func localSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.WebServer.Host = "127.0.0.1"
	settings.WebServer.Port = "0"
	settings.Telemetry.Enabled = true
	settings.Telemetry.Listen = "127.0.0.1:0"
	return settings
}

func TestBuildComponents_FailureReleasesDispatcher(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)
	pub := &closingPublisher{}

	// A nil service makes the HTTP server constructor fail after the
	// metrics endpoint was built.
	c, err := buildComponents(localSettings(), nil, m, events.NewDispatcher(pub, 4))
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Equal(t, 1, pub.closeCount())
}

func TestBuildComponents_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)
	service, err := inference.NewService(uniformModel{}, inference.Options{})
	require.NoError(t, err)
	pub := &closingPublisher{}

	c, err := buildComponents(localSettings(), service, m, events.NewDispatcher(pub, 4))
	require.NoError(t, err)
	require.NotNil(t, c.endpoint)
	require.NotNil(t, c.dispatcher)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- c.run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("components did not stop")
	}
	assert.Equal(t, 1, pub.closeCount())
}
