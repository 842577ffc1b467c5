package models

import "time"

// Message is an immutable chat message. The id is assigned by the store and
// is monotonically increasing, which is what history cursors rely on.
type Message struct {
	ID        int       `db:"id" json:"id"`
	RoomID    int       `db:"room_id" json:"room_id"`
	SenderID  int       `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"time"`
}

// RoomEvent is broadcast through websockets to room subscribers.
type RoomEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}

// SendFrame is the inbound websocket frame for sending a message to the
// room the connection is attached to.
type SendFrame struct {
	SenderID int    `json:"sender_id"`
	Content  string `json:"content"`
}
