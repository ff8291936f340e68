package control

import (
	"encoding/json"
	"image"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteorwatch/internal/auth"
	"meteorwatch/internal/evaluate"
	"meteorwatch/internal/frame"
	"meteorwatch/internal/mask"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

func newTestServer() *Server {
	surface := New(evaluate.Defaults(), mask.NewStore(), 64, 64)
	hub := NewEventHub("cam0", testLogger())
	return NewServer(surface, hub, auth.NewAuthenticator(), testLogger())
}

func TestSnapshotReturns503WithoutFrame(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshotReturnsJPEGAfterFrame(t *testing.T) {
	srv := newTestServer()
	srv.surface.UpdateFrame(&frame.Frame{Img: image.NewRGBA(image.Rect(0, 0, 8, 8))})

	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Greater(t, rec.Body.Len(), 0)
}

func TestStatsReflectsSurfaceState(t *testing.T) {
	srv := newTestServer()
	srv.surface.SetStreamAlive(true)
	srv.surface.IncrementDetections()

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.True(t, stats.StreamAlive)
	assert.EqualValues(t, 1, stats.DetectionCount)
}

func TestSettingsAppliesSensitivityThenOverrides(t *testing.T) {
	srv := newTestServer()
	body := `{"sensitivity": "fireball", "min_speed": 5}`
	req := httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got evaluate.DetectionParams
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint8(15), got.DiffThreshold) // from fireball preset
	assert.Equal(t, 5.0, got.MinSpeed)            // explicit override wins
}

func TestSettingsClampsOutOfRangeValue(t *testing.T) {
	srv := newTestServer()
	body := `{"diff_threshold": 9999}`
	req := httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got evaluate.DetectionParams
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint8(255), got.DiffThreshold)
}

func TestUpdateAndResetMask(t *testing.T) {
	srv := newTestServer()
	srv.surface.UpdateFrame(&frame.Frame{Img: image.NewRGBA(image.Rect(0, 0, 64, 64))})

	req := httptest.NewRequest(http.MethodPost, "/update_mask", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, srv.surface.Masks().Active())

	req2 := httptest.NewRequest(http.MethodPost, "/reset_mask", nil)
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.False(t, srv.surface.Masks().Active())
}

func TestRestartSetsFlag(t *testing.T) {
	srv := newTestServer()
	assert.False(t, srv.surface.RestartRequested())

	req := httptest.NewRequest(http.MethodPost, "/restart", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, srv.surface.RestartRequested())
}

func TestHealthzAndReadyz(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusServiceUnavailable, rec2.Code)

	srv.surface.UpdateFrame(&frame.Frame{Img: image.NewRGBA(image.Rect(0, 0, 4, 4))})
	req3 := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec3 := httptest.NewRecorder()
	srv.ServeHTTP(rec3, req3)
	assert.Equal(t, http.StatusOK, rec3.Code)
}
