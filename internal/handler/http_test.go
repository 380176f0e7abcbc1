package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/push"
	"github.com/roster-sync/internal/remote"
	"github.com/roster-sync/internal/service"
	"github.com/roster-sync/internal/store"
	"github.com/roster-sync/internal/websocket"
)

var testNow = time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)

type fakeSync struct {
	teamID string
	err    error
}

func (f *fakeSync) Start(_ context.Context, teamID string) error {
	if f.err != nil {
		return f.err
	}
	f.teamID = teamID
	return nil
}

func (f *fakeSync) Stop() error {
	f.teamID = ""
	return nil
}

func (f *fakeSync) TeamID() string  { return f.teamID }
func (f *fakeSync) IsRunning() bool { return f.teamID != "" }

type noReleases struct{}

func (noReleases) RunOnce(context.Context) store.ReleaseResult { return store.ReleaseResult{} }

type testAPI struct {
	router http.Handler
	store  *store.Store
	remote *remote.Memory
	pusher *push.Pusher
	sync   *fakeSync
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := 0
	st := store.New(
		store.WithClock(func() time.Time { return testNow }),
		store.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
		store.WithLogger(logger),
	)
	mem := remote.NewMemory()
	p := push.NewPusher(mem, &config.PushConfig{QueueSize: 64, Timeout: time.Second}, logger)
	sync := &fakeSync{}
	svc := service.NewRosterService(st, p, sync, noReleases{}, logger)
	require.NoError(t, p.Start(context.Background()))

	hub := websocket.NewHub(logger)
	go hub.Run()
	t.Cleanup(func() {
		hub.Stop()
		_ = p.Stop()
	})

	h := NewHandler(svc, hub, p, sync, logger)
	return &testAPI{router: h.Router(), store: st, remote: mem, pusher: p, sync: sync}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (int, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func (a *testAPI) createTeam(t *testing.T) {
	t.Helper()
	code, _ := a.do(t, http.MethodPost, "/api/v1/teams", map[string]any{
		"team":    map[string]any{"id": "team-a", "name": "Ice Hogs", "sport": "hockey"},
		"creator": map[string]any{"id": "p1", "first_name": "Sam", "email": "sam@example.com"},
	})
	require.Equal(t, http.StatusCreated, code)
}

// dataMap re-decodes the response payload into a generic map
func dataMap(t *testing.T, resp APIResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestHealthAndReady(t *testing.T) {
	a := newTestAPI(t)

	code, resp := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	code, _ = a.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/session", map[string]any{"email": "sam@example.com"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/session", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateTeamAndActive(t *testing.T) {
	a := newTestAPI(t)
	a.createTeam(t)
	assert.Equal(t, "team-a", a.sync.TeamID())

	code, resp := a.do(t, http.MethodGet, "/api/v1/teams/active", nil)
	require.Equal(t, http.StatusOK, code)
	team := dataMap(t, resp)["team"].(map[string]any)
	assert.Equal(t, "Ice Hogs", team["name"])

	code, resp = a.do(t, http.MethodPost, "/api/v1/teams", map[string]any{
		"team": map[string]any{"id": "team-a", "name": "Again"},
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, resp.Success)

	code, _ = a.do(t, http.MethodPost, "/api/v1/teams", map[string]any{"team": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNoActiveTeamConflicts(t *testing.T) {
	a := newTestAPI(t)

	code, _ := a.do(t, http.MethodGet, "/api/v1/teams/active", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp := a.do(t, http.MethodPost, "/api/v1/players", map[string]any{"first_name": "Alex"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, domain.ErrNoActiveTeam.Error(), resp.Error)
}

func TestSwitchTeam_SyncFailureIsAccepted(t *testing.T) {
	a := newTestAPI(t)
	a.createTeam(t)

	a.sync.err = errors.New("remote unreachable")
	code, resp := a.do(t, http.MethodPost, "/api/v1/teams/team-b/switch", nil)
	assert.Equal(t, http.StatusAccepted, code)
	body := dataMap(t, resp)
	assert.Equal(t, "team-b", body["active_team_id"])
	assert.Equal(t, false, body["synced"])
	assert.Equal(t, "team-b", a.store.ActiveTeamID())

	a.sync.err = nil
	code, resp = a.do(t, http.MethodPost, "/api/v1/teams/team-a/switch", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, dataMap(t, resp)["synced"])
}

func TestGameLifecycle(t *testing.T) {
	a := newTestAPI(t)
	a.createTeam(t)

	code, _ := a.do(t, http.MethodPost, "/api/v1/players", map[string]any{"id": "p2", "first_name": "Alex"})
	require.Equal(t, http.StatusCreated, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/games", map[string]any{
		"id": "g1", "opponent": "Hawks", "date": "2025-03-01", "invite_release": "now",
	})
	require.Equal(t, http.StatusCreated, code)

	code, resp := a.do(t, http.MethodPost, "/api/v1/games/g1/responses", map[string]any{
		"player_id": "p2", "response": "in",
	})
	require.Equal(t, http.StatusOK, code, resp.Error)

	g, ok := a.store.Game("g1")
	require.True(t, ok)
	assert.Equal(t, domain.ResponseIn, g.Roster.ResponseOf("p2"))

	code, _ = a.do(t, http.MethodPost, "/api/v1/games/g1/responses", map[string]any{
		"player_id": "p2", "response": "sometimes",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/games/missing/responses", map[string]any{
		"player_id": "p2", "response": "out",
	})
	assert.Equal(t, http.StatusNotFound, code)

	require.NoError(t, a.pusher.Flush(context.Background()))
	_, ok = a.remote.Get(remote.TableGameResponses, "g1:p2")
	assert.True(t, ok)

	code, _ = a.do(t, http.MethodDelete, "/api/v1/games/g1", nil)
	assert.Equal(t, http.StatusOK, code)
	_, ok = a.store.Game("g1")
	assert.False(t, ok)
}

func TestPaymentsAndNotifications(t *testing.T) {
	a := newTestAPI(t)
	a.createTeam(t)

	code, resp := a.do(t, http.MethodPost, "/api/v1/payments/periods", map[string]any{
		"id": "per1", "title": "Ice time", "amount": 400,
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)

	code, resp = a.do(t, http.MethodPost, "/api/v1/payments/periods/per1/entries", map[string]any{
		"player_id": "p1", "amount": 150, "method": "venmo",
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	assert.Equal(t, string(domain.PaymentPartial), dataMap(t, resp)["status"])

	code, _ = a.do(t, http.MethodPost, "/api/v1/payments/periods/per1/entries", map[string]any{
		"player_id": "p1", "amount": 0,
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/notifications", map[string]any{
		"to_player_id": "p1", "type": "payment_due", "title": "Dues",
	})
	require.Equal(t, http.StatusCreated, code)

	code, resp = a.do(t, http.MethodGet, "/api/v1/notifications?player_id=p1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Data, 1)

	code, resp = a.do(t, http.MethodPost, "/api/v1/notifications/read?player_id=p1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), dataMap(t, resp)["marked"])
}

func TestSyncStatus(t *testing.T) {
	a := newTestAPI(t)
	a.createTeam(t)
	require.NoError(t, a.pusher.Flush(context.Background()))

	code, resp := a.do(t, http.MethodGet, "/api/v1/sync", nil)
	require.Equal(t, http.StatusOK, code)
	body := dataMap(t, resp)
	assert.Equal(t, "team-a", body["team_id"])
	assert.Equal(t, true, body["running"])
}

func TestLogoutStopsSync(t *testing.T) {
	a := newTestAPI(t)
	a.createTeam(t)

	code, _ := a.do(t, http.MethodDelete, "/api/v1/session", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, a.sync.IsRunning())
	assert.Empty(t, a.store.ActiveTeamID())
}
