package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skinscan/skinscan/internal/classifier"
	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/events"
	"github.com/skinscan/skinscan/internal/history"
	"github.com/skinscan/skinscan/internal/imaging"
	"github.com/skinscan/skinscan/internal/inference"
	"github.com/skinscan/skinscan/internal/testutil"
)

var nevusVector = []float32{0.01, 0.01, 0.02, 0.01, 0.90, 0.02, 0.01, 0.01, 0.01}

type stubModel struct {
	probs []float32
	err   error
	block chan struct{}
}

func (m *stubModel) Score(*imaging.Tensor) ([]float32, error) {
	if m.block != nil {
		<-m.block
	}
	if m.err != nil {
		return nil, m.err
	}
	return append([]float32(nil), m.probs...), nil
}

func (m *stubModel) Info() classifier.Info {
	return classifier.Info{Name: "stub", Runtime: "test", OutputSize: len(m.probs)}
}

func (m *stubModel) Close() error { return nil }

// memoryPublisher collects published events.
type memoryPublisher struct {
	mu     sync.Mutex
	events []events.Event
	closed bool
}

func (p *memoryPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *memoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *memoryPublisher) snapshot() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Main.Name = "skinscan-test"
	s.Decoder.MaxUploadBytes = 10 << 20
	s.WebServer.Host = "127.0.0.1"
	s.WebServer.Port = "0"
	s.WebServer.RequestTimeout = 5 * time.Second
	s.History.CacheTTL = time.Minute
	return s
}

func newTestServer(t *testing.T, settings *conf.Settings, model classifier.Model, opts ...ServerOption) *Server {
	t.Helper()
	svc, err := inference.NewService(model, inference.OptionsFromSettings(settings))
	require.NoError(t, err)
	srv, err := New(settings, svc, opts...)
	require.NoError(t, err)
	return srv
}

func openHistory(t *testing.T, settings *conf.Settings) history.Interface {
	t.Helper()
	settings.History.Enabled = true
	settings.History.SQLite.Enabled = true
	settings.History.SQLite.Path = filepath.Join(t.TempDir(), "history.db")
	store := history.New(settings, nil)
	require.NotNil(t, store)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	return testutil.JPEG(t, w, h)
}

// uploadRequest builds a multipart POST. A nil image omits the file part.
func uploadRequest(t *testing.T, path string, img []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if img != nil {
		part, err := mw.CreateFormFile(formFieldImage, "lesion.jpg")
		require.NoError(t, err)
		_, err = part.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}
