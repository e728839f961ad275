//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-hub/domain"
	"chat-hub/domain/event"
	"context"
)

// EventSink is one live client connection, able to accept outbound
// events. Implementations must not block indefinitely in Consume; slow
// consumers are allowed to drop.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// MessageStore is the durable append-only message log. Failures degrade
// history replay only; live delivery never depends on it.
type MessageStore interface {
	StoreMessage(m domain.Message) error
	DMHistory(userA, userB string) ([]domain.Message, error)
}

// RoomStore persists room definitions across restarts.
type RoomStore interface {
	SaveRoom(def domain.RoomDefinition) error
	DeleteRoom(name string) error
	ListRooms() ([]domain.RoomDefinition, error)
}

// MessageIndex is the optional full-text index over room messages.
type MessageIndex interface {
	Index(m domain.Message) error
}

// Router is the routing core as seen by a transport gateway.
type Router interface {
	Connected(ctx context.Context, sink EventSink)
	Disconnected(ctx context.Context, sink EventSink)
	Handle(ctx context.Context, sink EventSink, cmd domain.Command)
}

// Delivery is one outbound event paired with its computed recipient
// set. Recipients are resolved at enqueue time so that fan-out never
// observes a roster mid-mutation.
type Delivery struct {
	Sinks []EventSink
	Event event.Event
}
