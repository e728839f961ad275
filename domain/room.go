package domain

import (
	"time"

	"github.com/samber/lo"
)

// DefaultRoomCapacity bounds every roster.
const DefaultRoomCapacity = 50

// Room is a named channel with a roster of member usernames.
// A Room is not safe for concurrent use on its own; the registry owning
// it serializes all access.
type Room struct {
	Name      string
	Private   bool
	Key       string
	CreatedAt time.Time

	roster map[string]struct{}
}

func NewRoom(name string, private bool, key string) *Room {
	return &Room{
		Name:      name,
		Private:   private,
		Key:       key,
		CreatedAt: time.Now().UTC(),
		roster:    make(map[string]struct{}),
	}
}

// FromDefinition rebuilds an empty-rostered room from its persisted form.
func FromDefinition(def RoomDefinition) *Room {
	return &Room{
		Name:      def.Name,
		Private:   def.Private,
		Key:       def.Key,
		CreatedAt: def.CreatedAt,
		roster:    make(map[string]struct{}),
	}
}

// AddMember adds a username to the roster and returns the new size.
// Re-adding an existing member is a no-op, not an error.
func (r *Room) AddMember(username string) int {
	r.roster[username] = struct{}{}
	return len(r.roster)
}

// RemoveMember removes a username if present and returns the new size.
func (r *Room) RemoveMember(username string) int {
	delete(r.roster, username)
	return len(r.roster)
}

func (r *Room) HasMember(username string) bool {
	_, ok := r.roster[username]
	return ok
}

func (r *Room) Size() int {
	return len(r.roster)
}

// Members returns a copy of the roster.
func (r *Room) Members() []string {
	return lo.Keys(r.roster)
}

// RoomDefinition is the persisted form of a room. The roster is live
// state only and never persisted.
type RoomDefinition struct {
	Name      string    `json:"name"`
	Private   bool      `json:"private"`
	Key       string    `json:"key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Room) Definition() RoomDefinition {
	return RoomDefinition{
		Name:      r.Name,
		Private:   r.Private,
		Key:       r.Key,
		CreatedAt: r.CreatedAt,
	}
}
