package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skinscan/skinscan/internal/buildinfo"
	"github.com/skinscan/skinscan/internal/diagnosis"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/history"
	"github.com/skinscan/skinscan/internal/observability"
	"github.com/skinscan/skinscan/internal/testutil"
)

func mustRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, target, http.NoBody)
}

func historyListOptions(owner string) history.ListOptions {
	return history.ListOptions{Owner: owner}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil)
	require.Error(t, err)

	_, err = New(testSettings(), nil)
	require.Error(t, err)
}

func TestLabels(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testSettings(), &stubModel{probs: nevusVector})
	rec := serve(srv, mustRequest(t, http.MethodGet, "/api/v1/labels"))
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []diagnosis.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 9)
	assert.Equal(t, diagnosis.Label("actinic_keratosis"), entries[0].Label)
	assert.Equal(t, diagnosis.Label("vascular_lesion"), entries[8].Label)
	for _, e := range entries {
		assert.NotEmpty(t, e.Recommendation, e.Label)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	t.Run("history disabled", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, testSettings(), &stubModel{probs: nevusVector},
			WithBuildInfo(buildinfo.New("1.2.3", "2026-10-01")))
		rec := serve(srv, mustRequest(t, http.MethodGet, "/api/v1/health"))
		require.Equal(t, http.StatusOK, rec.Code)

		var body HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, statusHealthy, body.Status)
		assert.Equal(t, "1.2.3", body.Version)
		assert.Equal(t, "skinscan-test", body.Name)
		assert.Equal(t, storeDisabled, body.History)
		assert.Equal(t, "stub", body.Model.Name)
		require.NotNil(t, body.System)
		assert.Positive(t, body.System.CPUs)
	})

	t.Run("history ok", func(t *testing.T) {
		t.Parallel()

		settings := testSettings()
		store := openHistory(t, settings)
		srv := newTestServer(t, settings, &stubModel{probs: nevusVector}, WithHistory(store))

		rec := serve(srv, mustRequest(t, http.MethodGet, "/api/v1/health"))
		var body HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, storeOK, body.History)
		assert.Equal(t, statusHealthy, body.Status)
	})

	t.Run("history closed", func(t *testing.T) {
		t.Parallel()

		settings := testSettings()
		store := openHistory(t, settings)
		require.NoError(t, store.Close())
		srv := newTestServer(t, settings, &stubModel{probs: nevusVector}, WithHistory(store))

		rec := serve(srv, mustRequest(t, http.MethodGet, "/api/v1/health"))
		require.Equal(t, http.StatusOK, rec.Code)
		var body HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, storeError, body.History)
		assert.Equal(t, statusDegraded, body.Status)
	})
}

func TestHistoryEndpoints_Disabled(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testSettings(), &stubModel{probs: nevusVector})

	for _, req := range []*http.Request{
		mustRequest(t, http.MethodGet, "/api/v1/history"),
		mustRequest(t, http.MethodGet, "/api/v1/history/abc"),
		mustRequest(t, http.MethodDelete, "/api/v1/history/abc"),
	} {
		rec := serve(srv, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, req.Method+" "+req.URL.Path)
		assert.Equal(t, msgHistoryDisabled, decodeError(t, rec))
	}
}

func TestHistoryEndpoints_Lifecycle(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	store := openHistory(t, settings)
	m, err := observability.NewMetrics()
	require.NoError(t, err)
	srv := newTestServer(t, settings, &stubModel{probs: nevusVector}, WithHistory(store), WithMetrics(m))

	img := jpegBytes(t, 48, 48)
	for _, owner := range []string{"alice", "alice", "bob"} {
		rec := serve(srv, uploadRequest(t, "/disease-detection", img, map[string]string{"owner": owner}))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	list := func(target string) history.Page {
		t.Helper()
		rec := serve(srv, mustRequest(t, http.MethodGet, target))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page history.Page
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		return page
	}

	page := list("/api/v1/history?owner=alice")
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "alice", page.Records[0].Owner)

	// Same query again is served from cache.
	list("/api/v1/history?owner=alice")
	assert.InDelta(t, 1, promtestutil.ToFloat64(m.History.CacheRequests.WithLabelValues("hit")), 0)

	paged := list("/api/v1/history?limit=1&offset=1")
	assert.EqualValues(t, 3, paged.Total)
	assert.Len(t, paged.Records, 1)

	id := page.Records[0].ID
	rec := serve(srv, mustRequest(t, http.MethodGet, "/api/v1/history/"+id))
	require.Equal(t, http.StatusOK, rec.Code)
	var got history.ScanRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "melanocytic_nevus", got.Label)

	rec = serve(srv, mustRequest(t, http.MethodDelete, "/api/v1/history/"+id))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(srv, mustRequest(t, http.MethodGet, "/api/v1/history/"+id))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgRecordNotFound, decodeError(t, rec))

	rec = serve(srv, mustRequest(t, http.MethodDelete, "/api/v1/history/"+id))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Delete flushed the cache, so the list reflects it.
	page = list("/api/v1/history?owner=alice")
	assert.EqualValues(t, 1, page.Total)
}

func TestHistoryEndpoints_InvalidQuery(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	store := openHistory(t, settings)
	srv := newTestServer(t, settings, &stubModel{probs: nevusVector}, WithHistory(store))

	for _, target := range []string{
		"/api/v1/history?limit=abc",
		"/api/v1/history?limit=-1",
		"/api/v1/history?offset=1.5",
	} {
		rec := serve(srv, mustRequest(t, http.MethodGet, target))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, decodeError(t, rec), msgInvalidQuery)
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testSettings(), &stubModel{probs: nevusVector})
	rec := serve(srv, mustRequest(t, http.MethodGet, "/nope"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec))
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testSettings(), &stubModel{probs: nevusVector})
	req := mustRequest(t, http.MethodOptions, "/disease-detection")
	req.Header.Set("Origin", defaultCORSOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := serve(srv, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, defaultCORSOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testSettings(), &stubModel{probs: nevusVector})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = client.Get("http://" + ln.Addr().String() + "/api/v1/labels")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
	client.CloseIdleConnections()

	cancel()
	require.NoError(t, testutil.WaitFor(t, done, shutdownTimeout+time.Second, "server did not stop"))
}

func TestHTTPFailure_TagsRoute(t *testing.T) {
	t.Parallel()

	cause := errors.NewStd("handler exploded")
	c := echo.New().NewContext(mustRequest(t, http.MethodGet, "/api/v1/health"), httptest.NewRecorder())
	c.SetPath("/api/v1/health")

	err := httpFailure(cause, c)
	require.ErrorIs(t, err, cause)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "/api/v1/health", ee.GetContext()["route"])
	assert.Equal(t, http.MethodGet, ee.GetContext()["method"])
}
