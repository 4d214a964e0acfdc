package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/liveshard/internal/api"
	"github.com/mcoot/liveshard/internal/api/apierr"
	"github.com/mcoot/liveshard/internal/api/middleware"
	"github.com/mcoot/liveshard/internal/api/response"
	"github.com/mcoot/liveshard/internal/config"
	"github.com/mcoot/liveshard/internal/factory"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/services/character"
)

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithSettings(t, factory.TestSettings())
}

func newTestServerWithSettings(t *testing.T, settings config.Config) *testServer {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	app := factory.NewTestAppWithSettings(settings)
	app.Start(t.Context())
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	router := api.NewRouter(api.RouterConfig{
		Logger:       logger,
		Players:      app.Players,
		Store:        app.Store,
		Characters:   app.Characters,
		World:        app.World,
		Mtx:          app.Mtx,
		Sync:         app.Sync,
		Moderation:   app.Platform,
		Metrics:      app.Metrics,
		Gatherer:     app.Gatherer,
		IsDeveloper:  app.Settings.IsDeveloper,
		ReadyTimeout: time.Second,
	})

	return &testServer{handler: router, app: app}
}

func (ts *testServer) request(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	return ts.requestWithContext(context.Background(), method, path, body, headers...)
}

func (ts *testServer) requestWithContext(ctx context.Context, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequestWithContext(ctx, method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) connect(t *testing.T, id int64) response.Session {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/sessions", map[string]any{"user_id": id, "name": "player"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var s response.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	return s
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	ts.connect(t, 1)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp response.Health
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Sessions)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestConnectAndGetSession(t *testing.T) {
	ts := newTestServer(t)

	s := ts.connect(t, 7)
	assert.Equal(t, int64(7), s.UserID)
	require.NotNil(t, s.Data)
	assert.Equal(t, int64(0), s.Data.Balance.Money)

	rr := ts.request(http.MethodGet, "/api/v1/sessions/7", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list response.SessionList
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, int64(7), list.Sessions[0].UserID)
}

func TestConnectErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.connect(t, 1)

	rr := ts.request(http.MethodPost, "/api/v1/sessions", map[string]any{"user_id": 1, "name": "again"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeAlreadyConnected, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/sessions", map[string]any{"user_id": 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierr.CodeInvalidRequest, errorCode(t, rec))
}

func TestConnectRejectedWhenRecordLocked(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.app.MemoryStorage.AcquireLock(t.Context(), "PlayerData", 5, "elsewhere", time.Hour))

	rr := ts.request(http.MethodPost, "/api/v1/sessions", map[string]any{"user_id": 5, "name": "p"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeJoinRejected, errorCode(t, rr))
}

func TestDisconnect(t *testing.T) {
	ts := newTestServer(t)
	ts.connect(t, 3)

	rr := ts.request(http.MethodDelete, "/api/v1/sessions/3", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodDelete, "/api/v1/sessions/3", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/sessions/3", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeNotConnected, errorCode(t, rr))

	rr = ts.request(http.MethodGet, "/api/v1/sessions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDisconnectCompletesWhenClientGoesAway(t *testing.T) {
	ts := newTestServer(t)
	ts.connect(t, 3)
	assert.Eventually(t, func() bool {
		rr := ts.request(http.MethodGet, "/api/v1/sessions/3/character", nil)
		var c response.Character
		_ = json.Unmarshal(rr.Body.Bytes(), &c)
		return rr.Code == http.StatusOK && c.State == string(character.StateReady)
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := ts.app.Store.Update(3, model.AddBalance(12))
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rr := ts.requestWithContext(ctx, http.MethodDelete, "/api/v1/sessions/3", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rec, err := ts.app.MemoryStorage.GetRecord(context.Background(), "PlayerData", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(12), rec.Data.Balance.Money)
	_, locked := ts.app.MemoryStorage.LockOwner("PlayerData", 3)
	assert.False(t, locked)

	rr = ts.request(http.MethodGet, "/metrics", nil)
	assert.NotContains(t, rr.Body.String(), `liveshard_handler_faults_total{registry="player-leave"}`)
}

func TestUpdateAudioSettings(t *testing.T) {
	ts := newTestServer(t)
	ts.connect(t, 6)

	rr := ts.request(http.MethodPut, "/api/v1/sessions/6/settings/audio", map[string]any{"music_volume": 0.25, "sfx_volume": 3})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var s response.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	require.NotNil(t, s.Data)
	assert.Equal(t, 0.25, s.Data.Settings.Audio.MusicVolume)
	assert.Equal(t, 1.0, s.Data.Settings.Audio.SFXVolume)

	rr = ts.request(http.MethodPut, "/api/v1/sessions/6/settings/audio", map[string]any{"sfx_volume": 0.5})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	assert.Equal(t, 0.25, s.Data.Settings.Audio.MusicVolume)
	assert.Equal(t, 0.5, s.Data.Settings.Audio.SFXVolume)

	rr = ts.request(http.MethodPut, "/api/v1/sessions/6/settings/audio", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidRequest, errorCode(t, rr))

	rr = ts.request(http.MethodPut, "/api/v1/sessions/8/settings/audio", map[string]any{"music_volume": 0})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeNotConnected, errorCode(t, rr))

	rr = ts.request(http.MethodDelete, "/api/v1/sessions/6", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rec, err := ts.app.MemoryStorage.GetRecord(context.Background(), "PlayerData", 6)
	require.NoError(t, err)
	assert.Equal(t, 0.25, rec.Data.Settings.Audio.MusicVolume)
	assert.Equal(t, 0.5, rec.Data.Settings.Audio.SFXVolume)
}

func TestCharacterLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.connect(t, 2)

	assert.Eventually(t, func() bool {
		rr := ts.request(http.MethodGet, "/api/v1/sessions/2/character", nil)
		if rr.Code != http.StatusOK {
			return false
		}
		var c response.Character
		_ = json.Unmarshal(rr.Body.Bytes(), &c)
		return c.State == string(character.StateReady) && c.CollisionGroup == character.CollisionGroupCharacter
	}, 2*time.Second, 10*time.Millisecond)

	rr := ts.request(http.MethodDelete, "/api/v1/sessions/2/character", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/sessions/2/character", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeCharacterNotFound, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/sessions/2/character", map[string]any{
		"parts": []map[string]string{{"name": "Head", "class": "Part"}},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var c response.Character
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.NotEmpty(t, c.RigID)
	assert.Equal(t, map[string]string{"Head": "Part"}, c.Parts)
}

func TestSpawnCharacterRequiresSession(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/sessions/9/character", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeNotConnected, errorCode(t, rr))
}

func TestProcessReceipt(t *testing.T) {
	ts := newTestServer(t)
	product := string(ts.app.Catalog.Products[model.ProductExample])
	receipt := map[string]any{"purchase_id": "r-1", "player_id": 4, "product_id": product, "currency_spent": 25}

	rr := ts.request(http.MethodPost, "/api/v1/receipts", receipt)
	require.Equal(t, http.StatusOK, rr.Code)
	var d response.Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	assert.Equal(t, model.NotProcessedYet, d.Decision)

	ts.connect(t, 4)
	for range 2 {
		rr = ts.request(http.MethodPost, "/api/v1/receipts", receipt)
		require.Equal(t, http.StatusOK, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
		assert.Equal(t, model.PurchaseGranted, d.Decision)
	}

	data, ok := ts.app.Store.Get(4)
	require.True(t, ok)
	assert.Equal(t, int64(100), data.Balance.Money)

	rr = ts.request(http.MethodPost, "/api/v1/receipts", map[string]any{"player_id": 4})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGamePassEndpoints(t *testing.T) {
	ts := newTestServer(t)
	pass := string(ts.app.Catalog.GamePasses[model.GamePassExample])
	ts.connect(t, 6)

	rr := ts.request(http.MethodPut, "/api/v1/sessions/6/gamepasses/"+pass+"/active", map[string]bool{"active": true})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, apierr.CodeGamePassNotOwned, errorCode(t, rr))

	rr = ts.request(http.MethodPut, "/api/v1/sessions/6/gamepasses/nope/active", map[string]bool{"active": true})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/sessions/6/gamepasses/"+pass+"/purchase-finished", map[string]bool{"purchased": true})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	data, _ := ts.app.Store.Get(6)
	assert.True(t, data.Mtx.GamePasses[model.GamePassID(pass)].Active)

	rr = ts.request(http.MethodPut, "/api/v1/sessions/6/gamepasses/"+pass+"/active", map[string]bool{"active": false})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	data, _ = ts.app.Store.Get(6)
	assert.False(t, data.Mtx.GamePasses[model.GamePassID(pass)].Active)
}

func TestModerationInDevelopment(t *testing.T) {
	ts := newTestServer(t)
	ts.connect(t, 8)

	rr := ts.request(http.MethodPost, "/api/v1/moderation/kick", map[string]any{"user_id": 8, "reason": "spam"})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Eventually(t, func() bool { return !ts.app.Players.IsConnected(8) }, 2*time.Second, 5*time.Millisecond)

	rr = ts.request(http.MethodPost, "/api/v1/moderation/ban", map[string]any{"user_id": 8, "reason": "spam", "duration_seconds": 60})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	ban, ok := ts.app.LocalPlatform.BanOf(8)
	require.True(t, ok)
	assert.Equal(t, time.Minute, ban.Duration)

	rr = ts.request(http.MethodPost, "/api/v1/moderation/unban", map[string]any{"user_id": 8})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	_, ok = ts.app.LocalPlatform.BanOf(8)
	assert.False(t, ok)
}

func TestModerationRequiresDeveloperInProduction(t *testing.T) {
	settings := factory.TestSettings()
	settings.Environment = string(model.EnvironmentProduction)
	settings.Developers = []int64{42}
	ts := newTestServerWithSettings(t, settings)

	body := map[string]any{"user_id": 8}
	rr := ts.request(http.MethodPost, "/api/v1/moderation/unban", body)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, apierr.CodeForbidden, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/moderation/unban", body, middleware.ExecutorHeader, "7")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/moderation/unban", body, middleware.ExecutorHeader, "42")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.connect(t, 1)

	rr := ts.request(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "liveshard_sessions_live 1")
	assert.Contains(t, body, `liveshard_http_requests_total{method="POST",route="/api/v1/sessions",status="201"} 1`)
}
