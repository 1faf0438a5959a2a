package gateway

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"recast/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 32
)

// clientCommand is what a websocket client sends to manage its room
// membership.
type clientCommand struct {
	Action      string `json:"action"`
	RecordingID string `json:"recording_id"`
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	// dropped guards against a double close of send; only mutated by
	// Hub.drop while holding the hub lock.
	dropped bool
}

func newClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *client {
	return &client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger,
	}
}

// readPump consumes join/leave commands until the connection closes. The
// hub owns the send channel: drop closes it under the hub lock so an
// in-flight Deliver can never send on a closed channel.
func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("client read error", logging.Error(err))
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.logger.Debug("ignoring malformed client command", logging.Error(err))
			continue
		}
		switch cmd.Action {
		case "join":
			if cmd.RecordingID != "" {
				c.hub.join(cmd.RecordingID, c)
			}
		case "leave":
			if cmd.RecordingID != "" {
				c.hub.leave(cmd.RecordingID, c)
			}
		default:
			c.logger.Debug("unknown client action",
				logging.String("action", cmd.Action),
			)
		}
	}
}

// writePump forwards delivered events and keeps the connection alive with
// pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
