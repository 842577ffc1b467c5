package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-room-service/internal/models"
)

const (
	// Newest messages kept per room; one REST page never exceeds this.
	maxCachedMessages = 100
	cacheTTL          = 24 * time.Hour
)

// HistoryCache keeps the newest messages of each room in Redis so first-page
// history reads can skip the database. Entries are scored by message id, so a
// page reads back in id order no matter how concurrent appends interleave.
// Strictly best-effort: callers treat every error as a cache miss.
type HistoryCache struct {
	rdb *redis.Client
}

// NewHistoryCache connects to Redis. Returns nil (cache disabled) when addr
// is empty or Redis is unreachable.
func NewHistoryCache(ctx context.Context, addr, password string, db int) *HistoryCache {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return &HistoryCache{rdb: client}
}

func messageKey(roomID int) string {
	return fmt.Sprintf("room:%d:messages", roomID)
}

// Append stores a newly persisted message and trims the set to the newest
// maxCachedMessages entries. A failed append drops the whole key: a partial
// set must never serve a page with a message missing from the middle.
func (c *HistoryCache) Append(ctx context.Context, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := messageKey(msg.RoomID)
	if err := c.append(ctx, key, msg.ID, data); err != nil {
		_ = c.rdb.Del(ctx, key).Err()
		return err
	}
	return nil
}

func (c *HistoryCache) append(ctx context.Context, key string, id int, data []byte) error {
	if err := c.rdb.ZAdd(ctx, key, redis.Z{Score: float64(id), Member: data}).Err(); err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	if err := c.rdb.ZRemRangeByRank(ctx, key, 0, int64(-maxCachedMessages-1)).Err(); err != nil {
		return fmt.Errorf("trim messages: %w", err)
	}
	return c.rdb.Expire(ctx, key, cacheTTL).Err()
}

// Recent returns the newest size messages of the room in descending id
// order. The second return value is false when the cache cannot serve the
// request (empty, fewer entries than asked for, or a page that is not
// strictly id-descending).
func (c *HistoryCache) Recent(ctx context.Context, roomID int, size int) ([]models.Message, bool) {
	values, err := c.rdb.ZRevRange(ctx, messageKey(roomID), 0, int64(size-1)).Result()
	if err != nil {
		return nil, false
	}
	return decodePage(values, size)
}

// decodePage decodes a newest-first page, refusing one that is short or not
// strictly id-descending.
func decodePage(values []string, size int) ([]models.Message, bool) {
	if len(values) < size {
		return nil, false
	}
	msgs := make([]models.Message, 0, len(values))
	for _, value := range values {
		var msg models.Message
		if err := json.Unmarshal([]byte(value), &msg); err != nil {
			return nil, false
		}
		if n := len(msgs); n > 0 && msgs[n-1].ID <= msg.ID {
			return nil, false
		}
		msgs = append(msgs, msg)
	}
	return msgs, true
}

// ClearRoom drops the cached history, called when a room is removed so no
// stale history outlives it.
func (c *HistoryCache) ClearRoom(ctx context.Context, roomID int) error {
	return c.rdb.Del(ctx, messageKey(roomID)).Err()
}

// Close releases the Redis connection.
func (c *HistoryCache) Close() error {
	return c.rdb.Close()
}
