package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/metrics"
	"github.com/JakeFAU/news-harvester/internal/progress"
	"github.com/JakeFAU/news-harvester/internal/progress/sinks"
)

func statusWithWindows(t *testing.T) *sinks.StatusSink {
	t.Helper()
	s := sinks.NewStatusSink()
	now := time.Now().UTC()
	run := [16]byte{7}
	require.NoError(t, s.Consume(context.Background(), []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageRunStart, Label: "kbs"},
		{RunID: run, TS: now, Stage: progress.StageWindowDone, Label: "kbs", Window: "2024-01-01_2024-01-10", Records: 4},
		{RunID: run, TS: now, Stage: progress.StageWindowStart, Label: "kbs", Window: "2024-01-11_2024-01-20", Slot: 1},
	}))
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	s := NewServer(sinks.NewStatusSink(), nil)
	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/readyz").Code)
	s.SetReady(true)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/readyz").Code)
}

func TestRunSummary(t *testing.T) {
	t.Parallel()

	s := NewServer(statusWithWindows(t), nil)
	rec := get(t, s.Handler(), "/v1/run/")
	require.Equal(t, http.StatusOK, rec.Code)

	var body sinks.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "running", body.State)
	assert.Equal(t, 1, body.Done)
	assert.Equal(t, 1, body.Running)
	assert.Equal(t, int64(4), body.Records)
	assert.Empty(t, body.Windows)
}

func TestListWindowsFiltersByStage(t *testing.T) {
	t.Parallel()

	s := NewServer(statusWithWindows(t), nil)
	rec := get(t, s.Handler(), "/v1/run/windows?stage=window_done")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Windows []sinks.WindowStatus `json:"windows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Windows, 1)
	assert.Equal(t, "2024-01-01_2024-01-10", body.Windows[0].Window)

	rec = get(t, s.Handler(), "/v1/run/windows")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Windows, 2)
}

func TestStatusUnavailable(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/v1/run/").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/v1/run/windows").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics.ObserveWindow("done")
	rec := get(t, NewServer(nil, nil).Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "harvest_windows_total"))
}

func TestListenAndServeStopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(nil, nil).ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
