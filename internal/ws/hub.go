package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-room-service/internal/models"
	"chat-room-service/internal/observability"
)

const (
	wsEventsRoutingKey = "ws_events.rooms"

	// Bounds how long a stalled subscriber can hold up a broadcast before it
	// is dropped.
	defaultWriteTimeout = 5 * time.Second
)

// Hub maintains the live subscribers of each room topic. State is purely
// in-memory: entries appear on first subscribe, disappear on disconnect, and
// nothing survives a restart. Late joiners catch up through history.
type Hub struct {
	rooms        map[int]map[*websocket.Conn]bool
	connInfo     map[int]map[*websocket.Conn]ConnInfo
	writeLocks   map[*websocket.Conn]*sync.Mutex
	writeTimeout time.Duration
	mu           sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:        make(map[int]map[*websocket.Conn]bool),
		connInfo:     make(map[int]map[*websocket.Conn]ConnInfo),
		writeLocks:   make(map[*websocket.Conn]*sync.Mutex),
		writeTimeout: defaultWriteTimeout,
	}
}

// AddClient registers a websocket connection as a subscriber of the room.
func (h *Hub) AddClient(roomID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*websocket.Conn]bool)
	}
	h.rooms[roomID][conn] = true
	if _, ok := h.connInfo[roomID]; !ok {
		h.connInfo[roomID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.connInfo[roomID][conn] = info
	if _, ok := h.writeLocks[conn]; !ok {
		h.writeLocks[conn] = &sync.Mutex{}
	}
}

// RemoveClient removes a websocket connection from the room.
func (h *Hub) RemoveClient(roomID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if infos, ok := h.connInfo[roomID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.connInfo, roomID)
		}
	}
	delete(h.writeLocks, conn)
}

// Subscribers reports how many connections are attached to the room topic.
func (h *Hub) Subscribers(roomID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

type subscriber struct {
	conn *websocket.Conn
	mu   *sync.Mutex
}

// BroadcastMessage delivers a persisted message to every subscriber of the
// room's topic. Best-effort: a failing or stalled connection is dropped, the
// rest still receive the message, and the caller never waits longer than the
// write timeout per connection. The per-connection lock keeps concurrent
// broadcasts from interleaving writes on a shared connection.
func (h *Hub) BroadcastMessage(roomID int, msg models.Message) {
	h.mu.RLock()
	subs := make([]subscriber, 0, len(h.rooms[roomID]))
	for conn := range h.rooms[roomID] {
		subs = append(subs, subscriber{conn: conn, mu: h.writeLocks[conn]})
	}
	h.mu.RUnlock()

	event := models.RoomEvent{Type: "message", Message: &msg}
	payload, _ := json.Marshal(event)

	delivered := 0
	for _, sub := range subs {
		sub.mu.Lock()
		sub.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		err := sub.conn.WriteMessage(websocket.TextMessage, payload)
		sub.mu.Unlock()
		if err != nil {
			log.Printf("websocket write error topic=%s: %v", TopicForRoom(roomID), err)
			info, known := h.getConnInfo(roomID, sub.conn)
			sub.conn.Close()
			h.RemoveClient(roomID, sub.conn)
			if known {
				h.publishWSError(roomID, info, err)
			}
			continue
		}
		delivered++
	}
	observability.AddBroadcastDeliveries(delivered)
}

func (h *Hub) publishWSError(roomID int, info ConnInfo, err error) {
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   wsEventPayload(roomID, "ws_error", info, time.Since(info.ConnectedAt), err.Error()),
	}, headers)
	observability.IncWSEvent("ws_error")
}

func (h *Hub) getConnInfo(roomID int, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.connInfo[roomID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}

func wsEventPayload(roomID int, event string, info ConnInfo, duration time.Duration, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"topic":       TopicForRoom(roomID),
			"room_id":     roomID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration.Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
