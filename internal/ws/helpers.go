package ws

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// TopicForRoom names the per-room publish-subscribe channel.
func TopicForRoom(roomID int) string {
	return "/topic/rooms/" + strconv.Itoa(roomID)
}
