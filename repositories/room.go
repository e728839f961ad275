package repositories

import (
	"encoding/json"
	"log/slog"
	"time"

	"chat-hub/domain"

	"github.com/dgraph-io/badger/v4"
)

const roomKeyPrefix = "room:"

// RoomRepository persists room definitions. Rosters are live state and
// are never written here.
type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) RoomRepository {
	return RoomRepository{db: db, log: log}
}

func (r RoomRepository) SaveRoom(def domain.RoomDefinition) error {
	bytes, err := json.Marshal(def)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(roomKeyPrefix+def.Name), bytes)
	})
}

func (r RoomRepository) DeleteRoom(name string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(roomKeyPrefix + name))
	})
}

func (r RoomRepository) ListRooms() ([]domain.RoomDefinition, error) {
	var defs []domain.RoomDefinition
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(roomKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var def domain.RoomDefinition
				if err := json.Unmarshal(value, &def); err != nil {
					return err
				}
				defs = append(defs, def)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return defs, nil
}

// SeedDefaults creates the initial room set on a fresh store: two public
// rooms and one key-protected private room. A store that already holds
// any room definition is left untouched.
func (r RoomRepository) SeedDefaults() error {
	existing, err := r.ListRooms()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC()
	defaults := []domain.RoomDefinition{
		{Name: "general", Private: false, CreatedAt: now},
		{Name: "tech_talk", Private: false, CreatedAt: now},
		{Name: "dev_group", Private: true, Key: "1234", CreatedAt: now},
	}
	for _, def := range defaults {
		if err := r.SaveRoom(def); err != nil {
			return err
		}
	}
	r.log.Info("Seeded default rooms", "count", len(defaults))
	return nil
}
