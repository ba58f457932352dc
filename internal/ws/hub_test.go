package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	first := dialHub(t, srv)
	second := dialHub(t, srv)
	time.Sleep(50 * time.Millisecond) // let the server register both

	hub.Emit("update_scheduled", map[string]any{"agent_id": "agent-1"})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg envelope
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "update_scheduled", msg.Event)
		assert.False(t, msg.TS.IsZero())

		data, ok := msg.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "agent-1", data["agent_id"])
	}
}

func TestHubDropsDeadConnections(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv)
	time.Sleep(50 * time.Millisecond)
	conn.Close()

	// Both emits survive the dead peer; the second one sees it gone.
	hub.Emit("update_progress", nil)
	hub.Emit("update_progress", nil)
}
