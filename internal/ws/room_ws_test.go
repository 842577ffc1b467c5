package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-room-service/internal/mocks"
	"chat-room-service/internal/models"
	"chat-room-service/internal/services"
)

func TestInboundFramePersistsAfterHandshakeReturns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	chat := services.NewChatService(roomRepo, messageRepo, hub, nil)
	handler := NewRoomWebSocketHandler(hub, roomRepo, chat)

	stored := models.Message{ID: 3, RoomID: 7, SenderID: 1, Content: "hi"}
	ctxErrs := make(chan error, 1)
	roomRepo.On("IsMember", mock.Anything, 7, 1).Return(true, nil).Once()
	roomRepo.On("GetRoom", mock.Anything, 7).Return(models.Room{ID: 7}, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 7, 1, "hi").
		Run(func(args mock.Arguments) { ctxErrs <- args.Get(0).(context.Context).Err() }).
		Return(stored, nil).Once()

	r := gin.New()
	r.GET("/ws/rooms/:room_id", handler.Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/7?user_id=1"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers(7) == 1 }, time.Second, 10*time.Millisecond)

	// by now the handshake handler has returned and its request context died
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id":1,"content":"hi"}`)))

	select {
	case err := <-ctxErrs:
		require.NoError(t, err, "store call must not run on a canceled context")
	case <-time.After(2 * time.Second):
		t.Fatal("send frame never reached the store")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var event models.RoomEvent
	require.NoError(t, json.Unmarshal(data, &event))
	require.NotNil(t, event.Message)
	require.Equal(t, stored.ID, event.Message.ID)
	require.Equal(t, stored.Content, event.Message.Content)
}

func TestHandleRejectsNonMember(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	roomRepo := new(mocks.RoomRepositoryMock)
	chat := services.NewChatService(roomRepo, new(mocks.MessageRepositoryMock), hub, nil)
	handler := NewRoomWebSocketHandler(hub, roomRepo, chat)

	roomRepo.On("IsMember", mock.Anything, 7, 9).Return(false, nil).Once()

	r := gin.New()
	r.GET("/ws/rooms/:room_id", handler.Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/7?user_id=9"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	require.Equal(t, 403, resp.StatusCode)
	resp.Body.Close()
	require.Equal(t, 0, hub.Subscribers(7))
}
