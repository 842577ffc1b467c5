package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-room-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

const pqUniqueViolation = "23505"

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	GetOrCreateDirect(ctx context.Context, userA int, userB int) (models.Room, bool, error)
	GetRoom(ctx context.Context, roomID int) (models.Room, error)
	IsMember(ctx context.Context, roomID int, userID int) (bool, error)
	CountMembers(ctx context.Context, roomID int) (int, error)
	ListRoomsForUser(ctx context.Context, userID int) ([]models.RoomSummary, error)
	LeaveRoom(ctx context.Context, roomID int, userID int) (bool, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetOrCreateDirect returns the DIRECT room for the unordered pair, creating
// it together with both memberships when absent. The second return value
// reports whether this call created the room.
//
// Two callers racing on the same pair are resolved by the partial unique
// index on chat_key: the loser's insert fails with a unique violation and the
// winner's room is re-read and returned.
func (r *RoomRepo) GetOrCreateDirect(ctx context.Context, userA int, userB int) (models.Room, bool, error) {
	key := models.DirectChatKey(userA, userB)

	room, err := r.findDirectByKey(ctx, key)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, false, err
	}

	room, err = r.createDirect(ctx, key, userA, userB)
	if err == nil {
		return room, true, nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		// Lost the race; the winner's room is authoritative.
		room, err = r.findDirectByKey(ctx, key)
		if err != nil {
			return models.Room{}, false, err
		}
		return room, false, nil
	}
	return models.Room{}, false, err
}

func (r *RoomRepo) findDirectByKey(ctx context.Context, key string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT id, chat_key, name, type, created_at FROM rooms WHERE chat_key=$1 AND type=$2`,
		key, models.RoomTypeDirect)
	return room, err
}

func (r *RoomRepo) createDirect(ctx context.Context, key string, userA int, userB int) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var room models.Room
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO rooms (chat_key, name, type) VALUES ($1, $2, $3) RETURNING id, chat_key, name, type, created_at`,
		key, key, models.RoomTypeDirect).
		Scan(&room.ID, &room.ChatKey, &room.Name, &room.Type, &room.CreatedAt); err != nil {
		return models.Room{}, err
	}

	for _, userID := range []int{userA, userB} {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, userID); err != nil {
			return models.Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT id, chat_key, name, type, created_at FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// IsMember checks whether the user belongs to the room.
func (r *RoomRepo) IsMember(ctx context.Context, roomID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// CountMembers returns the number of active members in the room.
func (r *RoomRepo) CountMembers(ctx context.Context, roomID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM room_members WHERE room_id=$1`, roomID)
	return count, err
}

// ListRoomsForUser returns every room the user belongs to, each with a single
// representative peer (lowest other member id, nil when the user is alone).
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID int) ([]models.RoomSummary, error) {
	query := `SELECT rm.room_id,
            (SELECT MIN(p.user_id) FROM room_members p WHERE p.room_id = rm.room_id AND p.user_id <> $1) AS peer_id
        FROM room_members rm
        WHERE rm.user_id = $1
        ORDER BY rm.room_id`
	var result []models.RoomSummary
	err := r.db.SelectContext(ctx, &result, query, userID)
	return result, err
}

// LeaveRoom removes the user's membership and, when the room is left empty,
// deletes the room's messages and the room itself in the same transaction.
// Returns true only when this call removed the room. Leaving a room the user
// is not a member of (or a room that no longer exists) is a no-op.
func (r *RoomRepo) LeaveRoom(ctx context.Context, roomID int, userID int) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Serialize concurrent leaves on the same room so the remaining-member
	// count cannot change between the delete and the cleanup decision.
	var lockedID int
	if err = tx.GetContext(ctx, &lockedID, `SELECT id FROM rooms WHERE id=$1 FOR UPDATE`, roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			return false, tx.Commit()
		}
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if err != nil {
		return false, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if removed == 0 {
		return false, tx.Commit()
	}

	var remaining int
	if err = tx.GetContext(ctx, &remaining,
		`SELECT COUNT(*) FROM room_members WHERE room_id=$1`, roomID); err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, tx.Commit()
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE room_id=$1`, roomID); err != nil {
		return false, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM rooms WHERE id=$1`, roomID); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
