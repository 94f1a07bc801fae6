package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoslabs/chronos/internal/relay"
	"github.com/chronoslabs/chronos/internal/roster"
)

func startFeed(t *testing.T) (*Feed, *httptest.Server) {
	t.Helper()
	f := NewFeed(clockwork.NewFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.Run(ctx)
	srv := httptest.NewServer(f.Handler())
	t.Cleanup(srv.Close)
	return f, srv
}

func dialFeed(t *testing.T, f *Feed, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.clients) == 1
	}, time.Second, 5*time.Millisecond, "client never registered")
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestFeed_BroadcastsRosterEvents(t *testing.T) {
	f, srv := startFeed(t)
	conn := dialFeed(t, f, srv)

	f.OnEntryAdded(roster.Entry{Username: "alice", DeclaredDelayMs: 1000})

	ev := readEvent(t, conn)
	assert.Equal(t, EventRosterAdded, ev.Type)
	assert.NotEmpty(t, ev.ID)
	payload, ok := ev.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", payload["username"])
}

func TestFeed_BroadcastsMessageLog(t *testing.T) {
	f, srv := startFeed(t)
	conn := dialFeed(t, f, srv)

	f.OnMessage(relay.DirectionSent, "ABCDE/alice", []byte(`{"action":"JOIN"}`), time.Unix(0, 0))

	ev := readEvent(t, conn)
	assert.Equal(t, EventMessage, ev.Type)
	payload, ok := ev.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sent", payload["direction"])
	assert.Equal(t, "ABCDE/alice", payload["topic"])
	assert.Equal(t, `{"action":"JOIN"}`, payload["payload"])
}

func TestFeed_Healthz(t *testing.T) {
	_, srv := startFeed(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
