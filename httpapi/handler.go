// Package httpapi exposes the room management surface consumed by the
// client before it opens a websocket: room creation, listing, key
// checks, occupancy, and message search.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"chat-hub/errors"
	"chat-hub/runtime"
	"chat-hub/search"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"
)

type Handler struct {
	log   *slog.Logger
	rooms *runtime.RoomRegistry
	index *search.Index
}

func NewHandler(log *slog.Logger, rooms *runtime.RoomRegistry, index *search.Index) *Handler {
	return &Handler{log: log, rooms: rooms, index: index}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/create_room", h.createRoom)
	r.Get("/rooms", h.listRooms)
	r.Post("/join_private", h.joinPrivate)
	r.Get("/check_room/{room}", h.checkRoom)
	r.Get("/search", h.searchMessages)
	return r
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type createRoomRequest struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"isPrivate"`
	Key       string `json:"key"`
}

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, statusResponse{Success: false, Message: "Invalid request"})
		return
	}

	switch err := h.rooms.Create(req.Name, req.IsPrivate, req.Key); err {
	case nil:
		writeJSON(w, statusResponse{Success: true, Message: "Room created successfully"})
	case errors.ErrRoomNameRequired:
		writeJSON(w, statusResponse{Success: false, Message: "Room name is required"})
	case errors.ErrRoomExists:
		writeJSON(w, statusResponse{Success: false, Message: "Room already exists"})
	default:
		h.log.Error("Failed to create room", "room", req.Name, "error", err)
		writeJSON(w, statusResponse{Success: false, Message: "Failed to create room"})
	}
}

type roomItem struct {
	Name    string `json:"name"`
	Private bool   `json:"private"`
}

func (h *Handler) listRooms(w http.ResponseWriter, _ *http.Request) {
	summaries := h.rooms.ListPublic()
	items := lo.Map(summaries, func(s runtime.RoomSummary, _ int) roomItem {
		return roomItem{Name: s.Name, Private: s.Private}
	})
	if items == nil {
		items = []roomItem{}
	}
	writeJSON(w, items)
}

type joinPrivateRequest struct {
	Room string `json:"room"`
	Key  string `json:"key"`
}

func (h *Handler) joinPrivate(w http.ResponseWriter, r *http.Request) {
	var req joinPrivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, statusResponse{Success: false, Message: "Invalid request"})
		return
	}

	switch h.rooms.CheckAccess(req.Room, req.Key) {
	case runtime.AccessPublicOK:
		writeJSON(w, statusResponse{Success: true, Message: "Room is public"})
	case runtime.AccessKeyAccepted:
		writeJSON(w, statusResponse{Success: true, Message: "Key accepted"})
	case runtime.AccessKeyRejected:
		writeJSON(w, statusResponse{Success: false, Message: "Invalid key"})
	default:
		writeJSON(w, statusResponse{Success: false, Message: "Room not found"})
	}
}

type checkRoomResponse struct {
	Exists    bool `json:"exists"`
	Private   bool `json:"private"`
	UserCount int  `json:"user_count"`
}

func (h *Handler) checkRoom(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room")
	exists, private, count := h.rooms.Occupancy(name)
	if !exists {
		writeJSON(w, map[string]bool{"exists": false})
		return
	}
	writeJSON(w, checkRoomResponse{Exists: true, Private: private, UserCount: count})
}

type searchResponse struct {
	Results []search.Hit `json:"results"`
}

func (h *Handler) searchMessages(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		http.Error(w, "search disabled", http.StatusNotFound)
		return
	}
	terms := r.URL.Query().Get("q")
	if terms == "" {
		writeJSON(w, searchResponse{Results: []search.Hit{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	hits, err := h.index.Search(r.Context(), search.Query{
		Terms: terms,
		Room:  r.URL.Query().Get("room"),
		Limit: limit,
	})
	if err != nil {
		h.log.Error("Search failed", "terms", terms, "error", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	writeJSON(w, searchResponse{Results: hits})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
