package models

import (
	"fmt"
	"time"
)

// RoomType distinguishes 1:1 rooms from group rooms.
type RoomType string

const (
	RoomTypeDirect RoomType = "DIRECT"
	RoomTypeGroup  RoomType = "GROUP"
)

// Room is a chat container with membership and message history.
type Room struct {
	ID        int       `db:"id" json:"room_id"`
	ChatKey   string    `db:"chat_key" json:"chat_key"`
	Name      string    `db:"name" json:"name"`
	Type      RoomType  `db:"type" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoomSummary is the per-user view of a room: the room plus a single
// representative peer. PeerID is nil for a degenerate single-member room.
type RoomSummary struct {
	RoomID int  `db:"room_id" json:"room_id"`
	PeerID *int `db:"peer_id" json:"peer_id,omitempty"`
}

// DirectChatKey returns the canonical key for the unordered pair {a, b}.
// Both call orders yield the same key.
func DirectChatKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
