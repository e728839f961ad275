// Package runtime owns the live routing state: rooms, presence, direct
// message buckets, and the router that drives fan-out. Each shared
// structure guards itself; in-memory state is authoritative for live
// behavior, the durable store only for history replay.
package runtime

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/errors"
)

// AccessResult is the outcome of a room access check.
type AccessResult int

const (
	AccessNotFound AccessResult = iota
	AccessPublicOK
	AccessKeyAccepted
	AccessKeyRejected
)

// RoomSummary is the listing form of a room.
type RoomSummary struct {
	Name    string
	Private bool
}

// RoomRegistry owns the room table. All mutations are serialized behind
// one mutex so that concurrent joins can never race a roster past its
// capacity, and roster snapshots for fan-out are always taken against a
// consistent state.
type RoomRegistry struct {
	mu       sync.Mutex
	rooms    map[string]*domain.Room
	capacity int
	store    contract.RoomStore
	log      *slog.Logger
}

func NewRoomRegistry(log *slog.Logger, store contract.RoomStore, capacity int) *RoomRegistry {
	if capacity <= 0 {
		capacity = domain.DefaultRoomCapacity
	}
	return &RoomRegistry{
		rooms:    make(map[string]*domain.Room),
		capacity: capacity,
		store:    store,
		log:      log,
	}
}

// LoadPersisted fills the registry from the stored room definitions.
// Called once at startup, before any connection is accepted.
func (g *RoomRegistry) LoadPersisted() error {
	defs, err := g.store.ListRooms()
	if err != nil {
		return fmt.Errorf("store.ListRooms: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, def := range defs {
		g.rooms[def.Name] = domain.FromDefinition(def)
	}
	g.log.Info("Loaded persisted rooms", "count", len(defs))
	return nil
}

// Create registers a new room and writes its definition through.
// The key is kept only for private rooms that actually supplied one;
// a private room without a key stays effectively unlocked (see
// CheckAccess).
func (g *RoomRegistry) Create(name string, private bool, key string) error {
	if name == "" {
		return errors.ErrRoomNameRequired
	}
	if !private {
		key = ""
	}

	g.mu.Lock()
	if _, ok := g.rooms[name]; ok {
		g.mu.Unlock()
		return errors.ErrRoomExists
	}
	room := domain.NewRoom(name, private, key)
	g.rooms[name] = room
	def := room.Definition()
	g.mu.Unlock()

	// Write-through outside the lock. A store failure is logged and the
	// in-memory room stands: live behavior never rolls back on
	// persistence trouble.
	if err := g.store.SaveRoom(def); err != nil {
		g.log.Error("Failed to persist room definition", "room", name, "error", err)
	}
	return nil
}

// ListPublic enumerates public rooms only, sorted by name so a single
// snapshot is stable.
func (g *RoomRegistry) ListPublic() []RoomSummary {
	g.mu.Lock()
	defer g.mu.Unlock()

	var summaries []RoomSummary
	for _, room := range g.rooms {
		if room.Private {
			continue
		}
		summaries = append(summaries, RoomSummary{Name: room.Name, Private: room.Private})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries
}

// CheckAccess applies the room access rule in one place. Public rooms
// accept regardless of the supplied key. A private room with no stored
// key accepts any supplied key; this mirrors the product's observable
// behavior for keyless private rooms and is isolated here so a future
// decision changes a single function.
func (g *RoomRegistry) CheckAccess(name, suppliedKey string) AccessResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[name]
	if !ok {
		return AccessNotFound
	}
	if !room.Private {
		return AccessPublicOK
	}
	if room.Key == "" || room.Key == suppliedKey {
		return AccessKeyAccepted
	}
	return AccessKeyRejected
}

// Join adds a username to a roster, idempotently, and returns the new
// size. The size check and the insert happen under the same lock:
// capacity+k simultaneous joins admit exactly capacity members.
func (g *RoomRegistry) Join(name, username string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[name]
	if !ok {
		return 0, errors.ErrRoomNotFound
	}
	if !room.HasMember(username) && room.Size() >= g.capacity {
		return room.Size(), errors.ErrRoomFull
	}
	return room.AddMember(username), nil
}

// Leave removes a username from a roster. Emptying a private room
// deletes the room; the deletion is reported so the caller can
// broadcast it, and the stored definition is removed best-effort.
func (g *RoomRegistry) Leave(name, username string) (count int, deleted bool, err error) {
	g.mu.Lock()
	room, ok := g.rooms[name]
	if !ok {
		g.mu.Unlock()
		return 0, false, errors.ErrRoomNotFound
	}
	count = room.RemoveMember(username)
	if count == 0 && room.Private {
		delete(g.rooms, name)
		deleted = true
	}
	g.mu.Unlock()

	if deleted {
		if storeErr := g.store.DeleteRoom(name); storeErr != nil {
			g.log.Error("Failed to delete room definition", "room", name, "error", storeErr)
		}
	}
	return count, deleted, nil
}

// RosterSnapshot returns a copy of the roster, atomic with respect to
// concurrent joins and leaves.
func (g *RoomRegistry) RosterSnapshot(name string) ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[name]
	if !ok {
		return nil, false
	}
	return room.Members(), true
}

// Occupancy reports existence, visibility, and member count for the
// HTTP room-check surface.
func (g *RoomRegistry) Occupancy(name string) (exists bool, private bool, count int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room, ok := g.rooms[name]
	if !ok {
		return false, false, 0
	}
	return true, room.Private, room.Size()
}

// RoomsOf lists every room whose roster still contains the username.
// Used to run the leave path for a disconnecting user.
func (g *RoomRegistry) RoomsOf(username string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var names []string
	for name, room := range g.rooms {
		if room.HasMember(username) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
