package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-room-service/internal/models"
	"chat-room-service/internal/observability"
	"chat-room-service/internal/repositories"
	"chat-room-service/internal/services"
)

// RoomWebSocketHandler attaches clients to a room topic and routes inbound
// send frames through the chat service.
type RoomWebSocketHandler struct {
	hub      *Hub
	roomRepo repositories.RoomRepository
	chat     *services.ChatService
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, roomRepo repositories.RoomRepository, chat *services.ChatService) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, roomRepo: roomRepo, chat: chat}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client on the room topic.
// Only current members may subscribe; a subscriber attached after a publish
// does not see that message on the live channel.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	userID, err := strconv.Atoi(c.Query("user_id"))
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	ctx, span := otel.Tracer("chat-room-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	member, err := h.roomRepo.IsMember(c.Request.Context(), roomID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	meta := observability.MetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(roomID, conn, info)

	observability.IncWSActive()
	publishWSEvent(ctx, roomID, "ws_connect", info, 0, "")

	// The request context is canceled as soon as this handler returns, so the
	// loop gets one that survives the handshake but keeps its values.
	go h.readLoop(context.WithoutCancel(ctx), roomID, conn, info)
}

// readLoop consumes frames until the client disconnects. Each well-formed
// send frame goes through the full send path; malformed frames and failed
// sends are logged and the connection stays up.
func (h *RoomWebSocketHandler) readLoop(ctx context.Context, roomID int, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(roomID, conn)
		observability.DecWSActive()
		publishWSEvent(ctx, roomID, "ws_disconnect", info, time.Since(info.ConnectedAt), closeReason)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(ctx, roomID, "ws_error", info, time.Since(info.ConnectedAt), closeReason)
			}
			return
		}

		var frame models.SendFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("websocket bad frame topic=%s: %v", TopicForRoom(roomID), err)
			continue
		}
		senderID := frame.SenderID
		if senderID == 0 {
			senderID = info.UserID
		}
		if _, err := h.chat.Send(ctx, roomID, senderID, frame.Content); err != nil {
			log.Printf("websocket send rejected topic=%s sender=%d: %v", TopicForRoom(roomID), senderID, err)
		}
	}
}

func publishWSEvent(ctx context.Context, roomID int, event string, info ConnInfo, duration time.Duration, reason string) {
	observability.IncWSEvent(event)
	_ = observability.PublishEvent(ctx, wsEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   wsEventPayload(roomID, event, info, duration, reason),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
