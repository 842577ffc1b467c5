package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"chat-room-service/internal/cache"
	"chat-room-service/internal/models"
	"chat-room-service/internal/observability"
	"chat-room-service/internal/repositories"
)

var (
	ErrSelfChat        = errors.New("cannot create a direct room with yourself")
	ErrInvalidUser     = errors.New("user id must be positive")
	ErrEmptyContent    = errors.New("message content is empty")
	ErrInvalidPageSize = errors.New("page size must be positive")
)

// MaxHistoryPageSize caps a single history page.
const MaxHistoryPageSize = 100

// Broadcaster fans a persisted message out to the room's live subscribers.
// Delivery is fire-and-forget; Send never fails because of it.
type Broadcaster interface {
	BroadcastMessage(roomID int, msg models.Message)
}

// ChatService validates requests and orchestrates rooms, messages, broadcast
// and cache maintenance.
type ChatService struct {
	roomRepo    repositories.RoomRepository
	messageRepo repositories.MessageRepository
	broadcaster Broadcaster
	history     *cache.HistoryCache
}

// NewChatService builds a ChatService. broadcaster and history may be nil.
func NewChatService(roomRepo repositories.RoomRepository, messageRepo repositories.MessageRepository, broadcaster Broadcaster, history *cache.HistoryCache) *ChatService {
	return &ChatService{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		broadcaster: broadcaster,
		history:     history,
	}
}

// GetOrCreateDirectRoom returns the single DIRECT room for the unordered
// pair, creating it when absent. Both call orders resolve to the same room;
// racing creators all end up with the winner's room. The second return value
// reports whether this call created the room.
func (s *ChatService) GetOrCreateDirectRoom(ctx context.Context, userA, userB int) (models.Room, bool, error) {
	if userA <= 0 || userB <= 0 {
		return models.Room{}, false, ErrInvalidUser
	}
	if userA == userB {
		return models.Room{}, false, ErrSelfChat
	}

	room, created, err := s.roomRepo.GetOrCreateDirect(ctx, userA, userB)
	if err != nil {
		return models.Room{}, false, err
	}
	if created {
		observability.IncRoomCreated()
	}
	return room, created, nil
}

// Send persists a message for a room member and fans it out to live
// subscribers. Persistence is authoritative: broadcast and cache failures
// never roll it back or surface to the caller.
func (s *ChatService) Send(ctx context.Context, roomID, senderID int, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyContent
	}
	if senderID <= 0 {
		return models.Message{}, ErrInvalidUser
	}

	if _, err := s.roomRepo.GetRoom(ctx, roomID); err != nil {
		return models.Message{}, err
	}

	msg, err := s.messageRepo.CreateMessage(ctx, roomID, senderID, content)
	if err != nil {
		return models.Message{}, err
	}
	observability.IncMessageSent()

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessage(msg.RoomID, msg)
	}
	if s.history != nil {
		if err := s.history.Append(ctx, msg); err != nil {
			log.Printf("history cache append failed room=%d: %v", msg.RoomID, err)
		}
	}
	return msg, nil
}

// History returns up to size messages of the room, newest first. beforeID,
// when set, restricts results to strictly smaller ids (backward cursor).
// An empty room yields an empty slice, not an error.
func (s *ChatService) History(ctx context.Context, roomID int, beforeID *int, size int) ([]models.Message, error) {
	if size <= 0 {
		return nil, ErrInvalidPageSize
	}
	if size > MaxHistoryPageSize {
		size = MaxHistoryPageSize
	}

	if _, err := s.roomRepo.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	if beforeID == nil && s.history != nil {
		if msgs, ok := s.history.Recent(ctx, roomID, size); ok {
			return msgs, nil
		}
	}
	return s.messageRepo.ListBefore(ctx, roomID, beforeID, size)
}

// LeaveRoom removes the user's membership; the last member to leave takes the
// room and its messages with them. Leaving a room one is not a member of is a
// no-op. Returns true only when this call removed the room.
func (s *ChatService) LeaveRoom(ctx context.Context, roomID, userID int) (bool, error) {
	removed, err := s.roomRepo.LeaveRoom(ctx, roomID, userID)
	if err != nil {
		return false, err
	}
	if removed {
		observability.IncRoomRemoved()
		if s.history != nil {
			if err := s.history.ClearRoom(ctx, roomID); err != nil {
				log.Printf("history cache clear failed room=%d: %v", roomID, err)
			}
		}
	}
	return removed, nil
}

// ListRooms returns the rooms the user belongs to, each with a single
// representative peer.
func (s *ChatService) ListRooms(ctx context.Context, userID int) ([]models.RoomSummary, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	return s.roomRepo.ListRoomsForUser(ctx, userID)
}
