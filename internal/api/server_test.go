package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classboard/internal/gateway"
	"classboard/internal/history"
	"classboard/internal/registry"
	"classboard/internal/transfer"
)

func newTestServer(t *testing.T, hist *history.Log) (*Server, *registry.Registry, *transfer.Coordinator) {
	t.Helper()
	reg := registry.New()
	transfers := transfer.New(10 * time.Second)
	gw := gateway.New(reg, transfers, hist, gateway.Options{
		MaxFrameBytes: 1 << 20,
		PingInterval:  30 * time.Second,
		PongWait:      60 * time.Second,
		WriteWait:     5 * time.Second,
		SweepInterval: time.Second,
	})
	return NewServer(gw, reg, transfers, hist), reg, transfers
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	rec := doGet(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestStatsReflectRegistry(t *testing.T) {
	s, reg, transfers := newTestServer(t, nil)

	code, err := reg.CreateRoom("t1")
	require.NoError(t, err)
	_, err = reg.JoinRoom(code, "s1", "Alice")
	require.NoError(t, err)
	require.NoError(t, transfers.Request(code, "t1", "s1", "Alice"))

	rec := doGet(t, s, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rooms            map[string]int `json:"rooms"`
		Connections      int            `json:"connections"`
		PendingTransfers int            `json:"pending_transfers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Rooms["active_rooms"])
	assert.Equal(t, 2, body.Rooms["bound_connections"])
	assert.Equal(t, 1, body.Rooms["students"])
	assert.Equal(t, 0, body.Connections)
	assert.Equal(t, 1, body.PendingTransfers)
}

func TestRoomEventsWithHistoryDisabled(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	rec := doGet(t, s, "/api/rooms/AB23XZ/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
}

func TestRoomEventsFromHistory(t *testing.T) {
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	s, _, _ := newTestServer(t, hist)

	hist.Record("AB23XZ", history.KindRoomCreated, "t1", "")
	hist.Record("AB23XZ", history.KindStudentJoined, "s1", "Alice")

	require.Eventually(t, func() bool {
		rec := doGet(t, s, "/api/rooms/AB23XZ/events")
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Events []history.Event `json:"events"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return len(body.Events) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Limit is honored.
	rec := doGet(t, s, "/api/rooms/AB23XZ/events?limit=1")
	var body struct {
		Events []history.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, history.KindRoomCreated, body.Events[0].Kind)
}

func TestUnknownRouteIs404(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	rec := doGet(t, s, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
