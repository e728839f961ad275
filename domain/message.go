// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// Messages are immutable once created and are never mutated or deleted.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SystemSender is the reserved author of server-synthesized messages.
const SystemSender = "System"

// Message is an immutable chat record. Exactly one of Room or Recipient
// is set, matching the Direct flag.
type Message struct {
	ID        uuid.UUID
	Sender    string
	Room      string
	Recipient string
	Body      string
	Direct    bool
	System    bool
	At        time.Time
}

// UnixSeconds converts a time to the float-seconds representation used on
// the wire and for display ordering.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// IsFileBody reports whether a stored body is a structured file payload.
// Detection is a decode attempt on the body, not a stored flag: a body
// that parses as a JSON object is treated as a file payload, anything
// else as text. Requiring an object keeps bare numerals like "42" plain.
func IsFileBody(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed))
}

// FilePayload is the structured body of a file attachment message.
// Data carries the attachment content as a data URL produced by the client.
type FilePayload struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// PairKey identifies a direct-message conversation independently of who
// is sender and who is recipient in any individual message.
type PairKey struct {
	A string
	B string
}

// CanonicalPair sorts the two usernames so that (a,b) and (b,a) map to
// the same conversation bucket.
func CanonicalPair(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}
