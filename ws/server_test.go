package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/mocks"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func dialTestGateway(t *testing.T, router contract.Router) *websocket.Conn {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	gateway := NewGateway(ctx, log, router, 16)

	server := httptest.NewServer(http.HandlerFunc(gateway.ServeWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGateway_InboundFrameReachesRouter(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := mocks.NewMockRouter(ctrl)

	router.EXPECT().Connected(gomock.Any(), gomock.Any()).Times(1)
	router.EXPECT().Disconnected(gomock.Any(), gomock.Any()).AnyTimes()

	handled := make(chan domain.Command, 1)
	router.EXPECT().Handle(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, _ contract.EventSink, cmd domain.Command) {
			handled <- cmd
		}).
		Times(1)

	conn := dialTestGateway(t, router)

	req.NoError(conn.WriteJSON(map[string]any{
		"event": "join",
		"data":  map[string]any{"username": "alice", "room": "general"},
	}))

	select {
	case cmd := <-handled:
		req.Equal(domain.JoinCommand{Username: "alice", Room: "general"}, cmd)
	case <-time.After(time.Second):
		req.Fail("Command never reached the router")
	}
}

func TestGateway_MalformedFrameIsDroppedConnectionSurvives(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := mocks.NewMockRouter(ctrl)

	router.EXPECT().Connected(gomock.Any(), gomock.Any()).Times(1)
	router.EXPECT().Disconnected(gomock.Any(), gomock.Any()).AnyTimes()

	handled := make(chan domain.Command, 1)
	router.EXPECT().Handle(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, _ contract.EventSink, cmd domain.Command) {
			handled <- cmd
		}).
		Times(1)

	conn := dialTestGateway(t, router)

	// An unknown event is dropped without killing the connection
	req.NoError(conn.WriteJSON(map[string]any{"event": "self_destruct", "data": map[string]any{}}))
	// The next valid frame still goes through
	req.NoError(conn.WriteJSON(map[string]any{
		"event": "register_user",
		"data":  map[string]any{"username": "alice"},
	}))

	select {
	case cmd := <-handled:
		req.Equal(domain.RegisterUserCommand{Username: "alice"}, cmd)
	case <-time.After(time.Second):
		req.Fail("Valid frame after a malformed one never arrived")
	}
}

func TestGateway_OutboundEventIsFramed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := mocks.NewMockRouter(ctrl)

	sinks := make(chan contract.EventSink, 1)
	router.EXPECT().Connected(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, sink contract.EventSink) {
			sinks <- sink
		}).
		Times(1)
	router.EXPECT().Disconnected(gomock.Any(), gomock.Any()).AnyTimes()

	conn := dialTestGateway(t, router)

	var sink contract.EventSink
	select {
	case sink = <-sinks:
	case <-time.After(time.Second):
		req.Fail("Connection never registered")
	}

	req.NoError(sink.Consume(context.Background(), event.UserOnline{Username: "alice"}))

	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, payload, err := conn.ReadMessage()
	req.NoError(err)

	var frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	req.NoError(json.Unmarshal(payload, &frame))
	req.Equal("user_online", frame.Event)
	req.JSONEq(`{"username":"alice"}`, string(frame.Data))
}

func TestGateway_DisconnectReachesRouter(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := mocks.NewMockRouter(ctrl)

	router.EXPECT().Connected(gomock.Any(), gomock.Any()).Times(1)

	disconnected := make(chan struct{})
	router.EXPECT().Disconnected(gomock.Any(), gomock.Any()).
		Do(func(context.Context, contract.EventSink) { close(disconnected) }).
		Times(1)

	conn := dialTestGateway(t, router)
	req.NoError(conn.Close())

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		req.Fail("Router never told about the disconnect")
	}
}
