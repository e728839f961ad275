package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-hub/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// MessageRepository persists chat messages in BadgerDB.
//
// Keys are formatted as "{prefix}:{scope}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the message UUID as a collision
//     disconnector if two messages arrive at the same nanosecond.
//
// Room messages use the "msg" prefix scoped by room name; direct
// messages use the "dm" prefix scoped by the canonical user pair.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// storedMessage is the durable JSON form. Bodies are stored verbatim so
// that a file payload round-trips as its own JSON document.
type storedMessage struct {
	ID        string `json:"id"`
	Room      string `json:"room,omitempty"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient,omitempty"`
	Body      string `json:"message"`
	Direct    bool   `json:"is_dm"`
	System    bool   `json:"system"`
	At        int64  `json:"at"`
}

func (m MessageRepository) StoreMessage(message domain.Message) error {
	key := messageKey(message)
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// DMHistory returns every message between the two users, timestamp
// ascending. Symmetric in its arguments: the canonical pair key makes
// (a,b) and (b,a) scan the same prefix.
func (m MessageRepository) DMHistory(userA, userB string) ([]domain.Message, error) {
	pair := domain.CanonicalPair(userA, userB)
	prefix := []byte(fmt.Sprintf("dm:%s:%s:", keySegment(pair.A), keySegment(pair.B)))

	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
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

	messages := make([]domain.Message, 0, len(raw))
	for _, b := range raw {
		var stored storedMessage
		if err = json.Unmarshal(b, &stored); err != nil {
			return nil, err
		}
		message, err := toMessage(stored)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// keySegment escapes the key separator inside user-supplied names so
// that a username or room name containing ':' cannot collide into
// another scope's prefix. Keys are never decoded; the stored value
// carries the original strings.
var keySegment = strings.NewReplacer("%", "%25", ":", "%3a").Replace

func messageKey(message domain.Message) string {
	if message.Direct {
		pair := domain.CanonicalPair(message.Sender, message.Recipient)
		return fmt.Sprintf("dm:%s:%s:%019d:%s",
			keySegment(pair.A), keySegment(pair.B), message.At.UnixNano(), message.ID)
	}
	return fmt.Sprintf("msg:%s:%019d:%s",
		keySegment(message.Room), message.At.UnixNano(), message.ID)
}

func fromMessage(message domain.Message) storedMessage {
	return storedMessage{
		ID:        message.ID.String(),
		Room:      message.Room,
		Sender:    message.Sender,
		Recipient: message.Recipient,
		Body:      message.Body,
		Direct:    message.Direct,
		System:    message.System,
		At:        message.At.UnixNano(),
	}
}

func toMessage(stored storedMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        parsedID,
		Room:      stored.Room,
		Sender:    stored.Sender,
		Recipient: stored.Recipient,
		Body:      stored.Body,
		Direct:    stored.Direct,
		System:    stored.System,
		At:        time.Unix(0, stored.At).UTC(),
	}, nil
}
