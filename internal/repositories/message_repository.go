package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-room-service/internal/models"
)

var ErrNotMember = errors.New("sender is not a room member")

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID int, senderID int, content string) (models.Message, error)
	ListBefore(ctx context.Context, roomID int, beforeID *int, size int) ([]models.Message, error)
	DeleteAllForRoom(ctx context.Context, roomID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage persists a message with a store-assigned id and timestamp.
// The sender's membership is checked by the insert statement itself, so the
// check and the write cannot interleave with a concurrent leave; a sender
// without a membership row gets ErrNotMember and no message is stored.
func (r *MessageRepo) CreateMessage(ctx context.Context, roomID int, senderID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (room_id, sender_id, content)
         SELECT $1, $2, $3
         WHERE EXISTS (SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)
         RETURNING id, room_id, sender_id, content, created_at`,
		roomID, senderID, content).
		Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrNotMember
	}
	return msg, err
}

// ListBefore returns up to size messages of the room, newest first. When
// beforeID is set only messages with a strictly smaller id are eligible,
// which is what makes repeated calls walk history without gaps or duplicates
// while new messages keep arriving.
func (r *MessageRepo) ListBefore(ctx context.Context, roomID int, beforeID *int, size int) ([]models.Message, error) {
	msgs := []models.Message{}
	var err error
	if beforeID != nil {
		err = r.db.SelectContext(ctx, &msgs,
			`SELECT id, room_id, sender_id, content, created_at FROM messages
             WHERE room_id=$1 AND id < $2 ORDER BY id DESC LIMIT $3`,
			roomID, *beforeID, size)
	} else {
		err = r.db.SelectContext(ctx, &msgs,
			`SELECT id, room_id, sender_id, content, created_at FROM messages
             WHERE room_id=$1 ORDER BY id DESC LIMIT $2`,
			roomID, size)
	}
	return msgs, err
}

// DeleteAllForRoom removes every message of the room.
func (r *MessageRepo) DeleteAllForRoom(ctx context.Context, roomID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE room_id=$1`, roomID)
	return err
}
