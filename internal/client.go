package internal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 16 * 1024
)

// Client wraps a single websocket connection and its buffered send queue.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	mutex  sync.Mutex
	closed bool
	log    *slog.Logger
}

func newClient(conn *websocket.Conn, buffer int, log *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, buffer),
		log:  log.With("conn_id", id),
	}
}

func (client *Client) ID() string { return client.id }

// Send queues payload for the write pump. A client that cannot keep up is
// closed instead of stalling the broadcaster.
func (client *Client) Send(payload []byte) error {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	if client.closed {
		return ErrConnectionClosed
	}
	select {
	case client.send <- payload:
		return nil
	default:
		client.closeLocked()
		return ErrSlowConsumer
	}
}

// Close stops the write pump, which then closes the socket.
func (client *Client) Close() {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	client.closeLocked()
}

func (client *Client) closeLocked() {
	if client.closed {
		return
	}
	client.closed = true
	close(client.send)
}

func (client *Client) readPump(ctx context.Context, relay *Relay, registry *Registry, onDisconnect func()) {
	defer func() {
		registry.Unregister(client)
		client.Close()
		client.conn.Close()
		if onDisconnect != nil {
			onDisconnect()
		}
	}()
	client.conn.SetReadLimit(maxMsgSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.log.Warn("unexpected close", "error", err)
			}
			break
		}
		var envelope Envelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			client.replyError("frame is not a JSON event envelope")
			continue
		}
		switch envelope.Event {
		case EventSendMessage:
			client.handleSend(ctx, relay, envelope.Data)
		default:
			client.replyError("unknown event " + envelope.Event)
		}
	}
}

func (client *Client) handleSend(ctx context.Context, relay *Relay, data json.RawMessage) {
	err := relay.HandleIncoming(ctx, client, data)
	if err == nil {
		return
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		client.replyError(verr.Error())
		return
	}
	client.log.Error("message not relayed", "error", err)
	client.replyError("message could not be saved")
}

func (client *Client) replyError(text string) {
	payload, err := encodeEvent(EventError, map[string]string{"error": text})
	if err != nil {
		return
	}
	if err := client.Send(payload); err != nil {
		client.log.Debug("error reply dropped", "error", err)
	}
}

func (client *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				client.Close()
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		}
	}
}
