package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/responder"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const maxMessageRunes = 1000

// Router is the orchestration core: it receives inbound commands from
// the transport gateway, validates them against the room and presence
// state, writes accepted messages through, and enqueues each outbound
// event with its recipient set already resolved. A single delivery
// worker drains the queue, which preserves the order events were
// produced in.
//
// Malformed or incomplete commands are dropped silently; this is a
// deliberate fail-soft policy for a best-effort chat feed. Only
// capacity and length violations are reported back to the requester.
type Router struct {
	log        *slog.Logger
	rooms      *RoomRegistry
	presence   *PresenceTracker
	dms        *DirectMessageIndex
	store      contract.MessageStore
	index      contract.MessageIndex
	greetings  *responder.Detector
	help       *responder.Detector
	deliveries chan contract.Delivery
	replyDelay time.Duration

	mu    sync.Mutex
	conns map[contract.EventSink]struct{}
}

func NewRouter(log *slog.Logger, rooms *RoomRegistry, presence *PresenceTracker,
	dms *DirectMessageIndex, store contract.MessageStore, index contract.MessageIndex,
	greetings, help *responder.Detector, bufferSize int, replyDelay time.Duration) *Router {
	return &Router{
		log:        log,
		rooms:      rooms,
		presence:   presence,
		dms:        dms,
		store:      store,
		index:      index,
		greetings:  greetings,
		help:       help,
		deliveries: make(chan contract.Delivery, bufferSize),
		replyDelay: replyDelay,
		conns:      make(map[contract.EventSink]struct{}),
	}
}

// Deliveries exposes the outbound queue for the delivery worker.
func (r *Router) Deliveries() chan contract.Delivery {
	return r.deliveries
}

// QueueDepth reports the current outbound backlog, for telemetry.
func (r *Router) QueueDepth() int {
	return len(r.deliveries)
}

// Connected tracks a fresh, still-anonymous connection and greets it.
func (r *Router) Connected(_ context.Context, sink contract.EventSink) {
	r.mu.Lock()
	r.conns[sink] = struct{}{}
	r.mu.Unlock()

	r.enqueue(event.ConnectionEstablished{Status: "connected"}, sink)
}

// Disconnected runs the terminal cleanup for a connection: presence
// bindings go away, a user_offline broadcast goes out for each departed
// username, and every roster the username still occupied is left the
// same way an explicit leave would have left it.
func (r *Router) Disconnected(_ context.Context, sink contract.EventSink) {
	r.mu.Lock()
	delete(r.conns, sink)
	r.mu.Unlock()

	for _, username := range r.presence.Unregister(sink) {
		r.enqueue(event.UserOffline{Username: username}, r.allSinks()...)
		for _, room := range r.rooms.RoomsOf(username) {
			r.leaveRoom(username, room)
		}
	}
}

// Handle dispatches one inbound command. A failure inside any handler
// is contained here: it is logged and answered with a best-effort error
// notification to the originating connection only, so a single bad
// event never affects other connections.
func (r *Router) Handle(_ context.Context, sink contract.EventSink, cmd domain.Command) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Event handler failed", "kind", cmd.Kind(), "panic", rec)
			r.enqueue(event.Error{Message: fmt.Sprintf("Failed to handle %s", cmd.Kind())}, sink)
		}
	}()

	switch c := cmd.(type) {
	case domain.JoinCommand:
		r.handleJoin(sink, c)
	case domain.LeaveCommand:
		r.handleLeave(c)
	case domain.PostMessageCommand:
		r.handlePost(sink, c)
	case domain.RegisterUserCommand:
		r.handleRegister(sink, c)
	case domain.OnlineUsersCommand:
		r.enqueue(event.OnlineUsers{Users: r.presence.Online()}, sink)
	case domain.DirectMessageCommand:
		r.handleDirect(sink, c)
	case domain.DMHistoryCommand:
		r.handleDMHistory(sink, c)
	case domain.TypingCommand:
		r.handleTyping(c)
	case domain.StaringCommand:
		r.handleStaring(c)
	case domain.FileMessageCommand:
		r.handleFile(sink, c)
	default:
		r.log.Debug("Unknown command dropped", "kind", cmd.Kind())
	}
}

func (r *Router) handleJoin(sink contract.EventSink, c domain.JoinCommand) {
	if c.Username == "" || c.Room == "" {
		return
	}

	count, err := r.rooms.Join(c.Room, c.Username)
	switch err {
	case nil:
	case errors.ErrRoomFull:
		r.enqueue(event.RoomFull{Room: c.Room}, sink)
		return
	default:
		return
	}

	r.presence.Register(c.Username, sink)

	roster, _ := r.rooms.RosterSnapshot(c.Room)
	r.enqueue(event.UsersList{Users: roster, Room: c.Room}, r.roomSinks(c.Room)...)
	r.enqueue(event.UserJoined{
		Username:  c.Username,
		Count:     count,
		Timestamp: domain.UnixSeconds(time.Now()),
	}, r.roomSinks(c.Room)...)

	welcome := r.systemRoomMessage(c.Room, fmt.Sprintf("Welcome to %s, %s!", c.Room, c.Username))
	r.persistRoomMessage(welcome)
	r.broadcastRoomMessage(welcome)
}

func (r *Router) handleLeave(c domain.LeaveCommand) {
	if c.Username == "" || c.Room == "" {
		return
	}
	r.leaveRoom(c.Username, c.Room)
}

// leaveRoom is shared by explicit leave and disconnect cleanup.
func (r *Router) leaveRoom(username, room string) {
	count, deleted, err := r.rooms.Leave(room, username)
	if err != nil {
		return
	}

	r.enqueue(event.UserLeft{
		Username:  username,
		Count:     count,
		Timestamp: domain.UnixSeconds(time.Now()),
	}, r.roomSinks(room)...)

	if deleted {
		// The room no longer exists for listing purposes, so every
		// connection hears about it, not just former members.
		r.enqueue(event.RoomDeleted{Room: room}, r.allSinks()...)
	}
}

func (r *Router) handlePost(sink contract.EventSink, c domain.PostMessageCommand) {
	if c.Username == "" || c.Room == "" {
		return
	}
	if exists, _, _ := r.rooms.Occupancy(c.Room); !exists {
		return
	}

	body := strings.TrimSpace(c.Body)
	if utf8.RuneCountInString(body) > maxMessageRunes {
		r.enqueue(event.Error{Message: "Message too long (max 1000 characters)"}, sink)
		return
	}
	if body == "" {
		return
	}

	message := domain.Message{
		ID:     uuid.New(),
		Sender: c.Username,
		Room:   c.Room,
		Body:   body,
		At:     time.Now().UTC(),
	}
	r.persistRoomMessage(message)
	r.broadcastRoomMessage(message)

	if r.greetings != nil && r.greetings.Match(body) {
		r.deferred(func() {
			reply := r.systemRoomMessage(c.Room, fmt.Sprintf(
				"Hello %s! Welcome to the %s chat room. Feel free to ask if you need help!",
				c.Username, c.Room))
			r.persistRoomMessage(reply)
			r.broadcastRoomMessage(reply)
		})
	}
}

func (r *Router) handleRegister(sink contract.EventSink, c domain.RegisterUserCommand) {
	if c.Username == "" {
		return
	}
	r.presence.Register(c.Username, sink)
	r.enqueue(event.UserOnline{Username: c.Username}, r.allSinks()...)
}

func (r *Router) handleDirect(sink contract.EventSink, c domain.DirectMessageCommand) {
	if c.Sender == "" || c.Recipient == "" || c.Body == "" {
		return
	}

	message := domain.Message{
		ID:        uuid.New(),
		Sender:    c.Sender,
		Recipient: c.Recipient,
		Body:      c.Body,
		Direct:    true,
		At:        time.Now().UTC(),
	}
	r.dms.Append(message)

	evt := event.DirectMessage{
		Sender:    c.Sender,
		Recipient: c.Recipient,
		Message:   c.Body,
		Timestamp: domain.UnixSeconds(message.At),
	}
	if recipientSink, ok := r.presence.Lookup(c.Recipient); ok {
		r.enqueue(evt, recipientSink)
	}
	// The sender always gets an echo confirmation, online recipient or
	// not; an offline recipient simply misses real-time delivery.
	r.enqueue(evt, sink)

	if r.help != nil && r.help.Match(c.Body) {
		r.deferred(func() {
			reply := domain.Message{
				ID:        uuid.New(),
				Sender:    domain.SystemSender,
				Recipient: c.Sender,
				Body: fmt.Sprintf(
					"Hello %s! I see you're asking %s for help. You can also find general help in the \"general\" room.",
					c.Sender, c.Recipient),
				Direct: true,
				System: true,
				At:     time.Now().UTC(),
			}
			r.dms.Append(reply)
			r.enqueue(event.DirectMessage{
				Sender:    reply.Sender,
				Recipient: reply.Recipient,
				Message:   reply.Body,
				System:    true,
				Timestamp: domain.UnixSeconds(reply.At),
			}, sink)
		})
	}
}

func (r *Router) handleDMHistory(sink contract.EventSink, c domain.DMHistoryCommand) {
	if c.User1 == "" || c.User2 == "" {
		return
	}

	history := r.dms.History(c.User1, c.User2)
	entries := lo.Map(history, func(m domain.Message, _ int) event.HistoryEntry {
		return event.HistoryEntry{
			Sender:    m.Sender,
			Message:   m.Body,
			Timestamp: domain.UnixSeconds(m.At),
			System:    m.System,
			File:      domain.IsFileBody(m.Body),
		}
	})
	r.enqueue(event.DMHistory{History: entries}, sink)

	if len(history) == 0 {
		opener := domain.Message{
			ID:        uuid.New(),
			Sender:    domain.SystemSender,
			Recipient: c.User1,
			Body: fmt.Sprintf(
				"This is the start of your direct message history with %s. Your messages are private and secure.",
				c.User2),
			Direct: true,
			System: true,
			At:     time.Now().UTC(),
		}
		r.dms.Append(opener)
		r.enqueue(event.DirectMessage{
			Sender:    opener.Sender,
			Recipient: opener.Recipient,
			Message:   opener.Body,
			System:    true,
			Timestamp: domain.UnixSeconds(opener.At),
		}, sink)
	}
}

func (r *Router) handleTyping(c domain.TypingCommand) {
	if c.Username == "" || c.Room == "" {
		return
	}
	r.enqueue(event.UserTyping{Username: c.Username}, r.roomSinks(c.Room)...)
}

func (r *Router) handleStaring(c domain.StaringCommand) {
	if c.Username == "" || c.Target == "" || c.Room == "" {
		return
	}
	targetSink, ok := r.presence.Lookup(c.Target)
	if !ok {
		return
	}
	r.enqueue(event.StaringAlert{
		Username:  c.Username,
		Target:    c.Target,
		Timestamp: domain.UnixSeconds(time.Now()),
	}, targetSink)
}

func (r *Router) handleFile(sink contract.EventSink, c domain.FileMessageCommand) {
	if c.File.Data == "" {
		return
	}
	file := c.File
	if sniffed := sniffFileType(file.Data); file.Type == "" && sniffed != "" {
		file.Type = sniffed
	}
	body, err := encodeFilePayload(file)
	if err != nil {
		r.log.Error("Failed to encode file payload", "name", file.Name, "error", err)
		return
	}
	now := time.Now().UTC()

	if c.IsDM {
		if c.Sender == "" || c.Recipient == "" {
			return
		}
		message := domain.Message{
			ID:        uuid.New(),
			Sender:    c.Sender,
			Recipient: c.Recipient,
			Body:      body,
			Direct:    true,
			At:        now,
		}
		r.dms.Append(message)

		evt := event.FileMessage{
			Sender:    c.Sender,
			Recipient: c.Recipient,
			File:      file,
			IsDM:      true,
			Timestamp: domain.UnixSeconds(now),
		}
		if recipientSink, ok := r.presence.Lookup(c.Recipient); ok {
			r.enqueue(evt, recipientSink)
		}
		r.enqueue(evt, sink)
		return
	}

	if c.Username == "" || c.Room == "" {
		return
	}
	if exists, _, _ := r.rooms.Occupancy(c.Room); !exists {
		return
	}
	message := domain.Message{
		ID:     uuid.New(),
		Sender: c.Username,
		Room:   c.Room,
		Body:   body,
		At:     now,
	}
	if err := r.store.StoreMessage(message); err != nil {
		r.log.Error("Failed to persist file message", "room", c.Room, "error", err)
	}
	r.enqueue(event.FileMessage{
		Username:  c.Username,
		Room:      c.Room,
		File:      file,
		IsDM:      false,
		Timestamp: domain.UnixSeconds(now),
	}, r.roomSinks(c.Room)...)
}

func (r *Router) systemRoomMessage(room, body string) domain.Message {
	return domain.Message{
		ID:     uuid.New(),
		Sender: domain.SystemSender,
		Room:   room,
		Body:   body,
		System: true,
		At:     time.Now().UTC(),
	}
}

// persistRoomMessage writes a room message through to the store and the
// text index. Both are best-effort: failures degrade history and search
// only, never live delivery.
func (r *Router) persistRoomMessage(message domain.Message) {
	if err := r.store.StoreMessage(message); err != nil {
		r.log.Error("Failed to persist message", "room", message.Room, "error", err)
	}
	if r.index != nil {
		if err := r.index.Index(message); err != nil {
			r.log.Error("Failed to index message", "room", message.Room, "error", err)
		}
	}
}

func (r *Router) broadcastRoomMessage(message domain.Message) {
	r.enqueue(event.ChatMessage{
		Username:  message.Sender,
		Room:      message.Room,
		Message:   message.Body,
		System:    message.System,
		Timestamp: domain.UnixSeconds(message.At),
	}, r.roomSinks(message.Room)...)
}

// deferred schedules a synthesized reply after the pacing delay without
// holding any lock or stalling the calling handler.
func (r *Router) deferred(fn func()) {
	time.AfterFunc(r.replyDelay, func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("Deferred reply failed", "panic", rec)
			}
		}()
		fn()
	})
}

// roomSinks resolves the current roster to live connections. The roster
// snapshot itself is atomic; members without a live binding are skipped.
func (r *Router) roomSinks(room string) []contract.EventSink {
	roster, ok := r.rooms.RosterSnapshot(room)
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for _, username := range roster {
		if sink, online := r.presence.Lookup(username); online {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// allSinks snapshots every live connection, identified or not.
func (r *Router) allSinks() []contract.EventSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.conns)
}

// enqueue pushes one delivery onto the outbound queue. A full queue
// drops the event with a log line rather than blocking the handler.
func (r *Router) enqueue(evt event.Event, sinks ...contract.EventSink) {
	if len(sinks) == 0 {
		return
	}
	select {
	case r.deliveries <- contract.Delivery{Sinks: sinks, Event: evt}:
	default:
		r.log.Warn("Outbound queue full, dropping event", "event", evt.Name())
	}
}
