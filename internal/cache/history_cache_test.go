package cache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-room-service/internal/models"
)

func encodePage(t *testing.T, msgs ...models.Message) []string {
	t.Helper()
	values := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		values = append(values, string(data))
	}
	return values
}

func TestDecodePageNewestFirst(t *testing.T) {
	values := encodePage(t,
		models.Message{ID: 9, RoomID: 1, Content: "c"},
		models.Message{ID: 7, RoomID: 1, Content: "b"},
		models.Message{ID: 4, RoomID: 1, Content: "a"},
	)

	msgs, ok := decodePage(values, 3)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	assert.Equal(t, 9, msgs[0].ID)
	assert.Equal(t, 7, msgs[1].ID)
	assert.Equal(t, 4, msgs[2].ID)
}

func TestDecodePageShortIsMiss(t *testing.T) {
	values := encodePage(t, models.Message{ID: 2, RoomID: 1})

	_, ok := decodePage(values, 2)
	assert.False(t, ok)
}

func TestDecodePageRejectsUnorderedIDs(t *testing.T) {
	// an out-of-order or duplicated entry falls through to the database
	values := encodePage(t,
		models.Message{ID: 5, RoomID: 1},
		models.Message{ID: 7, RoomID: 1},
	)
	_, ok := decodePage(values, 2)
	assert.False(t, ok)

	values = encodePage(t,
		models.Message{ID: 5, RoomID: 1},
		models.Message{ID: 5, RoomID: 1},
	)
	_, ok = decodePage(values, 2)
	assert.False(t, ok)
}

func TestDecodePageRejectsBadJSON(t *testing.T) {
	_, ok := decodePage([]string{"{", "{"}, 2)
	assert.False(t, ok)
}
