package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fentz26/dormindo/internal/audit"
	"github.com/fentz26/dormindo/internal/broadcast"
	"github.com/fentz26/dormindo/internal/engine"
	"github.com/fentz26/dormindo/internal/media"
	"github.com/fentz26/dormindo/internal/models"
	"github.com/fentz26/dormindo/internal/notify"
	"github.com/fentz26/dormindo/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server  *Server
	service *Service
	store   *store.Store
	gateway *media.Simulated
	handler http.Handler
}

func TestHealthEndpoint_OK(t *testing.T) {
	env := newTestEnv(t)

	// Create a test request
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	// Call the handler
	env.server.handleHealth(w, req)

	// Check response
	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !health.OK {
		t.Error("Expected health.OK to be true")
	}
	if health.DB != "ok" {
		t.Errorf("Expected DB status 'ok', got '%s'", health.DB)
	}
	if health.Version == "" {
		t.Error("Expected version to be set")
	}
	if health.Time == "" {
		t.Error("Expected time to be set")
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()

	env.server.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint_DBError(t *testing.T) {
	env := newTestEnv(t)

	// Close the store to simulate DB error
	env.store.Close()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	env.server.handleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if health.OK {
		t.Error("Expected health.OK to be false when DB is down")
	}
	if health.DB == "ok" {
		t.Error("Expected DB status to indicate error")
	}
}

func TestStartWithoutMediaIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.SetSession(nil)

	w := env.do(t, http.MethodPost, "/timer/start", `{"minutes":10}`)
	require.Equal(t, http.StatusConflict, w.Code)

	var body errorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.NotEmpty(t, body.Error)
	assert.Contains(t, body.Error, "no media is playing")

	st := env.status(t)
	assert.False(t, st.Active)
	assert.Equal(t, models.PhaseIdle, st.Phase)

	recs, err := env.store.ListAudit(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, audit.OutcomeRejected, recs[0].Outcome)
}

func TestStartWithPausedMediaIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.SetSession(&models.MediaInfo{AppID: "vlc", AppName: "VLC", IsPlaying: false})

	w := env.do(t, http.MethodPost, "/timer/start", `{"seconds":30}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, env.status(t).Active)
}

func TestStartUsesDefaultDuration(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/timer/start", "")
	require.Equal(t, http.StatusOK, w.Code)

	st := decodeStatus(t, w)
	assert.Equal(t, models.PhaseRunning, st.Phase)
	assert.Equal(t, int64(30*60), st.RemainingSeconds)
	assert.NotEmpty(t, st.RunID)
}

func TestStartRejectsNegativeDuration(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/timer/start", `{"minutes":-5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/timer/start", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartRejectsOversizedDuration(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"minutes":9223372036854775807}`,
		`{"seconds":604801}`,
	} {
		w := env.do(t, http.MethodPost, "/timer/start", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.False(t, env.status(t).Active)
}

func TestAddRejectsOverflow(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/timer/start", `{"minutes":1}`).Code)

	w := env.do(t, http.MethodPost, "/timer/add", `{"minutes":153722867280912931}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	st := env.status(t)
	assert.Equal(t, int64(60), st.RemainingSeconds)
	assert.Equal(t, models.PhaseRunning, st.Phase)
}

func TestStartSurfacesMediaQueryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.FailQuery(errors.New("session bus unavailable"))

	w := env.do(t, http.MethodPost, "/timer/start", `{"minutes":10}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "session bus unavailable")
	assert.False(t, env.status(t).Active)

	recs, err := env.store.ListAudit(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, audit.OutcomeError, recs[0].Outcome)
}

func TestTimerCommands(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/timer/start", `{"minutes":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(120), decodeStatus(t, w).RemainingSeconds)

	w = env.do(t, http.MethodPost, "/timer/pause", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeStatus(t, w).IsPaused)

	w = env.do(t, http.MethodPost, "/timer/add", `{"minutes":5}`)
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeStatus(t, w)
	assert.Equal(t, int64(420), st.RemainingSeconds)
	assert.Equal(t, int64(120), st.TotalSeconds)

	w = env.do(t, http.MethodPost, "/timer/resume", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PhaseRunning, decodeStatus(t, w).Phase)

	w = env.do(t, http.MethodPost, "/timer/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(420), decodeStatus(t, w).RemainingSeconds)

	w = env.do(t, http.MethodGet, "/timer", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeStatus(t, w).Active)

	w = env.do(t, http.MethodPost, "/timer/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	st = decodeStatus(t, w)
	assert.Equal(t, models.PhaseCancelled, st.Phase)
	assert.Equal(t, int64(0), st.RemainingSeconds)
	assert.Equal(t, 0, env.gateway.StopCalls())
}

func TestCommandsWithoutTimer(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/timer/pause", "/timer/resume"} {
		w := env.do(t, http.MethodPost, path, "")
		assert.Equal(t, http.StatusConflict, w.Code, path)
	}

	w := env.do(t, http.MethodPost, "/timer/cancel", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/timer/add", `{"minutes":5}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/timer/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/timer/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCancelStopsMedia(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/timer/start", `{"minutes":1}`).Code)

	w := env.do(t, http.MethodPost, "/timer/cancel", `{"stop_media":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.gateway.StopCalls())
	assert.False(t, env.status(t).Active)
}

func TestCancelSurfacesGatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/timer/start", `{"minutes":1}`).Code)
	env.gateway.FailStop(errors.New("player vanished"))

	w := env.do(t, http.MethodPost, "/timer/cancel", `{"stop_media":true}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "player vanished")

	// The timer is cancelled even though media could not be stopped.
	assert.False(t, env.status(t).Active)
}

func TestStopMediaWithoutTimer(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/timer/cancel", `{"stop_media":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.gateway.StopCalls())
}

func TestMediaEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/media", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info models.MediaInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.Equal(t, "VLC", info.AppName)
	assert.True(t, info.IsPlaying)

	env.gateway.SetSession(nil)
	w = env.do(t, http.MethodGet, "/media", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettingsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Settings
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, models.DefaultSettings(), got)

	w = env.do(t, http.MethodPut, "/settings", `{"default_duration_minutes":0,"notifications_enabled":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/settings", `{"default_duration_minutes":5,"notifications_enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/timer/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(300), decodeStatus(t, w).RemainingSeconds)
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.store.CreateRun(ctx, "run-1", 60, models.MediaInfo{AppName: "VLC"})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/history?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var runs []models.TimerRun
	require.NoError(t, json.NewDecoder(w.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	w = env.do(t, http.MethodGet, "/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsDisabledWithoutSSEServer(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/events", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/timer/start", nil)
	req.Header.Set("Origin", "http://localhost")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleAction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.StartTimer(ctx, 60)
	require.NoError(t, err)

	st, err := env.service.HandleAction(ctx, notify.ActionAdd15)
	require.NoError(t, err)
	assert.Equal(t, int64(60+15*60), st.RemainingSeconds)

	st, err = env.service.HandleAction(ctx, notify.ActionPause)
	require.NoError(t, err)
	assert.True(t, st.IsPaused)

	st, err = env.service.HandleAction(ctx, notify.ActionResume)
	require.NoError(t, err)
	assert.False(t, st.IsPaused)

	st, err = env.service.HandleAction(ctx, notify.ActionCancel)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCancelled, st.Phase)

	_, err = env.service.HandleAction(ctx, notify.ActionKey("snooze"))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrInvalidRequest, http.StatusBadRequest},
		{engine.ErrInvalidDuration, http.StatusBadRequest},
		{engine.ErrNoActiveTimer, http.StatusNotFound},
		{ErrNoMediaPlaying, http.StatusConflict},
		{&media.OpError{Op: "stop", Err: errors.New("boom")}, http.StatusBadGateway},
		{engine.ErrStopped, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	st, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	hub := broadcast.NewHub()
	gw := media.NewSimulated(&models.MediaInfo{AppID: "vlc", AppName: "VLC", IsPlaying: true})
	eng := engine.New(gw, notify.NewManager(), hub, engine.Options{Clock: clockwork.NewFakeClock()})

	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)

	service := NewService(eng, gw, st, audit.NewRecorder(st), hub)
	server := NewServer(service, nil, "127.0.0.1:0", nil)

	t.Cleanup(func() {
		cancel()
		<-eng.Done()
		st.Close()
	})

	return &testEnv{server: server, service: service, store: st, gateway: gw, handler: server.Handler()}
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

func (env *testEnv) status(t *testing.T) models.TimerStatus {
	t.Helper()
	w := env.do(t, http.MethodGet, "/timer", "")
	require.Equal(t, http.StatusOK, w.Code)
	return decodeStatus(t, w)
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) models.TimerStatus {
	t.Helper()
	var st models.TimerStatus
	require.NoError(t, json.NewDecoder(strings.NewReader(w.Body.String())).Decode(&st))
	return st
}
