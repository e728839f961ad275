package runtime

import (
	"log/slog"
	"sync"

	"chat-hub/contract"
	"chat-hub/domain"
)

// bucketCap bounds each in-memory conversation bucket. Durability never
// depends on the cache; the cap only limits the fallback window when
// the store yields nothing.
const bucketCap = 200

// DirectMessageIndex owns the pairwise conversation buckets. Appends
// write through to the durable store; reads prefer the store and fall
// back to the bucket.
type DirectMessageIndex struct {
	mu      sync.Mutex
	buckets map[domain.PairKey][]domain.Message
	store   contract.MessageStore
	log     *slog.Logger
}

func NewDirectMessageIndex(log *slog.Logger, store contract.MessageStore) *DirectMessageIndex {
	return &DirectMessageIndex{
		buckets: make(map[domain.PairKey][]domain.Message),
		store:   store,
		log:     log,
	}
}

// Append records a direct message in the pair's bucket and writes it
// through. A store failure is logged; the in-memory append stands.
func (d *DirectMessageIndex) Append(message domain.Message) {
	key := domain.CanonicalPair(message.Sender, message.Recipient)

	d.mu.Lock()
	bucket := append(d.buckets[key], message)
	if len(bucket) > bucketCap {
		bucket = bucket[len(bucket)-bucketCap:]
	}
	d.buckets[key] = bucket
	d.mu.Unlock()

	if err := d.store.StoreMessage(message); err != nil {
		d.log.Error("Failed to persist direct message",
			"sender", message.Sender, "recipient", message.Recipient, "error", err)
	}
}

// History resolves the conversation between two users, timestamp
// ascending. The durable store is the primary source; the in-memory
// bucket serves only when the store yields nothing.
func (d *DirectMessageIndex) History(userA, userB string) []domain.Message {
	stored, err := d.store.DMHistory(userA, userB)
	if err != nil {
		d.log.Error("Failed to read direct message history",
			"user_a", userA, "user_b", userB, "error", err)
	}
	if len(stored) > 0 {
		return stored
	}

	key := domain.CanonicalPair(userA, userB)
	d.mu.Lock()
	defer d.mu.Unlock()
	bucket := d.buckets[key]
	out := make([]domain.Message, len(bucket))
	copy(out, bucket)
	return out
}
