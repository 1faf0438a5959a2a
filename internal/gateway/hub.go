// Package gateway fans recording status events out to websocket clients.
// It runs as its own process: the worker daemon publishes to Redis pub/sub
// and the gateway subscribes, so status delivery survives either process
// restarting independently.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"recast/internal/events"
	"recast/internal/logging"
)

// Envelope is the message format delivered to websocket clients.
type Envelope struct {
	Type  string             `json:"type"`
	Event events.StatusEvent `json:"event"`
}

const (
	envelopeUpdate = "status_update"
	envelopeError  = "status_error"
)

// Hub tracks which client subscribed to which recording room and delivers
// events to the matching room only.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logging.NewComponentLogger(logger, "gateway-hub"),
		rooms:  make(map[string]map[*client]struct{}),
	}
}

func (h *Hub) join(recordingID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[recordingID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[recordingID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) leave(recordingID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[recordingID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, recordingID)
		}
	}
}

// drop removes a disconnecting client from every room and closes its send
// channel. Closing under the write lock excludes Deliver, which only sends
// while holding the read lock.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for recordingID, room := range h.rooms {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, recordingID)
		}
	}
	if !c.dropped {
		c.dropped = true
		close(c.send)
	}
}

// Deliver sends the event to every client in the recording's room. Clients
// with a full send buffer are skipped; they recover by re-reading status.
func (h *Hub) Deliver(ctx context.Context, envelopeType string, event events.StatusEvent) {
	payload, err := json.Marshal(Envelope{Type: envelopeType, Event: event})
	if err != nil {
		h.logger.Error("encode envelope", logging.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[event.RecordingID] {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("dropping event for slow client",
				logging.String(logging.FieldRecordingID, event.RecordingID),
			)
		}
	}
}

// RoomSize reports the subscriber count for one recording.
func (h *Hub) RoomSize(recordingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[recordingID])
}
