package internal

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// newSocketPair returns the server side Client, with the given queue size and
// no pumps running, and the dialling peer.
func newSocketPair(t *testing.T, buffer int) (*Client, *websocket.Conn) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	clients := make(chan *Client, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		clients <- newClient(conn, buffer, log)
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	select {
	case client := <-clients:
		t.Cleanup(func() { _ = client.conn.Close() })
		return client, peer
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

// A full queue evicts the client, later sends see it closed and the write
// pump drains what was queued before exiting.
func TestClientSendEvictsSlowConsumer(t *testing.T) {
	client, peer := newSocketPair(t, 1)

	require.NoError(t, client.Send([]byte("first")))
	require.ErrorIs(t, client.Send([]byte("second")), ErrSlowConsumer)
	require.ErrorIs(t, client.Send([]byte("third")), ErrConnectionClosed)

	done := make(chan struct{})
	go func() {
		client.writePump()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("write pump did not exit after eviction")
	}

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, payload, err := peer.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "first", string(payload))
	_, _, err = peer.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure), "got %v", err)
}

func TestClientSendAfterClose(t *testing.T) {
	client, _ := newSocketPair(t, 4)

	client.Close()
	client.Close()

	require.ErrorIs(t, client.Send([]byte("late")), ErrConnectionClosed)
}

// An evicted client fails the broadcast without disturbing its peers.
func TestBroadcastSkipsEvictedClient(t *testing.T) {
	slow, _ := newSocketPair(t, 1)
	fast, _ := newSocketPair(t, 8)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, registry.Register(slow))
	require.NoError(t, registry.Register(fast))

	require.Equal(t, 2, registry.Broadcast([]byte("one")))
	require.Equal(t, 1, registry.Broadcast([]byte("two")))
	require.Equal(t, 1, registry.Broadcast([]byte("three")))
}
