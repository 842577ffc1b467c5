package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-room-service/internal/repositories"
	"chat-room-service/internal/services"
	"chat-room-service/internal/telemetry"
)

const defaultHistoryPageSize = 50

// ChatHandler exposes the chat room endpoints.
type ChatHandler struct {
	chat    *services.ChatService
	emitter *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chat *services.ChatService, emitter *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{chat: chat, emitter: emitter}
}

// StartDirectRoom creates or returns the existing 1:1 room for a user pair.
func (h *ChatHandler) StartDirectRoom(c *gin.Context) {
	userA, errA := strconv.Atoi(c.Query("userA"))
	userB, errB := strconv.Atoi(c.Query("userB"))
	if errA != nil || errB != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ids"})
		return
	}

	room, created, err := h.chat.GetOrCreateDirectRoom(c.Request.Context(), userA, userB)
	if err != nil {
		if errors.Is(err, services.ErrSelfChat) || errors.Is(err, services.ErrInvalidUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	if created {
		h.audit(c, "room_created", fmt.Sprintf("direct room %d created for pair %s", room.ID, room.ChatKey), userA, room.ID)
	}

	// The caller is userA, so the peer is always userB.
	c.JSON(http.StatusOK, gin.H{
		"room_id":    room.ID,
		"chat_key":   room.ChatKey,
		"name":       room.Name,
		"type":       room.Type,
		"created_at": room.CreatedAt,
		"peer_id":    userB,
	})
}

// MyRooms lists the rooms the user belongs to with one representative peer each.
func (h *ChatHandler) MyRooms(c *gin.Context) {
	userID, err := strconv.Atoi(c.Query("me"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	rooms, err := h.chat.ListRooms(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}

	c.JSON(http.StatusOK, rooms)
}

// SendMessage stores a message and broadcasts it to the room's subscribers.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		RoomID   int    `json:"room_id" binding:"required"`
		SenderID int    `json:"sender_id" binding:"required"`
		Content  string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), req.RoomID, req.SenderID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyContent), errors.Is(err, services.ErrInvalidUser):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repositories.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		case errors.Is(err, repositories.ErrNotMember):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		}
		return
	}

	h.audit(c, "message_sent", fmt.Sprintf("message %d stored in room %d", msg.ID, msg.RoomID), req.SenderID, msg.RoomID)
	c.JSON(http.StatusCreated, msg)
}

// GetHistory pages backwards through a room's messages, newest first.
func (h *ChatHandler) GetHistory(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	size := defaultHistoryPageSize
	if raw := c.Query("size"); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size"})
			return
		}
	}

	var beforeID *int
	if raw := c.Query("before_id"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before_id"})
			return
		}
		beforeID = &parsed
	}

	msgs, err := h.chat.History(c.Request.Context(), roomID, beforeID, size)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPageSize):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repositories.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		}
		return
	}

	c.JSON(http.StatusOK, msgs)
}

// LeaveRoom removes the caller's membership; the last member out removes the
// room and its messages.
func (h *ChatHandler) LeaveRoom(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	userID, err := strconv.Atoi(c.Query("me"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	removed, err := h.chat.LeaveRoom(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave room"})
		return
	}

	if removed {
		h.audit(c, "room_removed", fmt.Sprintf("room %d removed after last member %d left", roomID, userID), userID, roomID)
	}

	c.JSON(http.StatusOK, gin.H{
		"left":         true,
		"room_removed": removed,
	})
}

func (h *ChatHandler) audit(c *gin.Context, eventType, text string, userID, roomID int) {
	if h.emitter == nil {
		return
	}
	user := int64(userID)
	room := int64(roomID)
	h.emitter.Emit(c.Request.Context(), eventType, "INFO", text, requestIDFromContext(c), &user, &room)
}
