package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-hub/domain"
	"chat-hub/mocks"
	"chat-hub/runtime"
	"chat-hub/search"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestServer(t *testing.T, index *search.Index) (*httptest.Server, *runtime.RoomRegistry) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRoomStore(ctrl)
	store.EXPECT().SaveRoom(gomock.Any()).Return(nil).AnyTimes()
	store.EXPECT().DeleteRoom(gomock.Any()).Return(nil).AnyTimes()

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	rooms := runtime.NewRoomRegistry(log, store, 0)

	server := httptest.NewServer(NewHandler(log, rooms, index).Routes())
	t.Cleanup(server.Close)
	return server, rooms
}

func postJSON(t *testing.T, url, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHandler_CreateRoom(t *testing.T) {
	req := require.New(t)
	server, _ := newTestServer(t, nil)

	out := postJSON(t, server.URL+"/create_room", `{"name":"ops","isPrivate":true,"key":"s3cret"}`)
	req.Equal(true, out["success"])
	req.Equal("Room created successfully", out["message"])

	out = postJSON(t, server.URL+"/create_room", `{"name":"ops"}`)
	req.Equal(false, out["success"])
	req.Equal("Room already exists", out["message"])

	out = postJSON(t, server.URL+"/create_room", `{"name":""}`)
	req.Equal(false, out["success"])
	req.Equal("Room name is required", out["message"])
}

func TestHandler_ListRoomsHidesPrivate(t *testing.T) {
	req := require.New(t)
	server, rooms := newTestServer(t, nil)

	req.NoError(rooms.Create("general", false, ""))
	req.NoError(rooms.Create("hidden", true, "key"))

	var items []map[string]any
	getJSON(t, server.URL+"/rooms", &items)
	req.Len(items, 1)
	req.Equal("general", items[0]["name"])
	req.Equal(false, items[0]["private"])
}

func TestHandler_ListRoomsEmpty(t *testing.T) {
	req := require.New(t)
	server, _ := newTestServer(t, nil)

	var items []map[string]any
	getJSON(t, server.URL+"/rooms", &items)
	req.NotNil(items)
	req.Empty(items)
}

func TestHandler_JoinPrivate(t *testing.T) {
	req := require.New(t)
	server, rooms := newTestServer(t, nil)

	req.NoError(rooms.Create("general", false, ""))
	req.NoError(rooms.Create("locked", true, "1234"))

	out := postJSON(t, server.URL+"/join_private", `{"room":"locked","key":"1234"}`)
	req.Equal(true, out["success"])
	req.Equal("Key accepted", out["message"])

	out = postJSON(t, server.URL+"/join_private", `{"room":"locked","key":"0000"}`)
	req.Equal(false, out["success"])
	req.Equal("Invalid key", out["message"])

	out = postJSON(t, server.URL+"/join_private", `{"room":"general","key":"whatever"}`)
	req.Equal(true, out["success"])
	req.Equal("Room is public", out["message"])

	out = postJSON(t, server.URL+"/join_private", `{"room":"ghost","key":"x"}`)
	req.Equal(false, out["success"])
	req.Equal("Room not found", out["message"])
}

func TestHandler_CheckRoom(t *testing.T) {
	req := require.New(t)
	server, rooms := newTestServer(t, nil)

	req.NoError(rooms.Create("general", false, ""))
	_, err := rooms.Join("general", "alice")
	req.NoError(err)

	// Public rooms report private explicitly, never by omission
	var out map[string]any
	getJSON(t, server.URL+"/check_room/general", &out)
	req.Equal(true, out["exists"])
	req.Contains(out, "private")
	req.Equal(false, out["private"])
	req.Equal(float64(1), out["user_count"])

	getJSON(t, server.URL+"/check_room/ghost", &out)
	req.Equal(false, out["exists"])
}

func TestHandler_Search(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	index, err := search.OpenInMemory(log)
	req.NoError(err)
	t.Cleanup(func() { _ = index.Close() })

	server, _ := newTestServer(t, index)

	req.NoError(index.Index(domain.Message{
		ID: uuid.New(), Sender: "alice", Room: "general",
		Body: "the deploy finished", At: time.Now().UTC(),
	}))

	var out struct {
		Results []search.Hit `json:"results"`
	}
	getJSON(t, server.URL+"/search?q=deploy", &out)
	req.Len(out.Results, 1)
	req.Equal("alice", out.Results[0].Sender)

	getJSON(t, server.URL+"/search?q=", &out)
	req.Empty(out.Results)
}

func TestHandler_SearchDisabledWithoutIndex(t *testing.T) {
	req := require.New(t)
	server, _ := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/search?q=anything")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusNotFound, resp.StatusCode)
}
