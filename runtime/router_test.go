package runtime

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/mocks"
	"chat-hub/responder"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// recordingSink captures every event it consumes, in delivery order.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) named(name string) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, e := range s.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSink) count(name string) int {
	return len(s.named(name))
}

type routerHarness struct {
	router *Router
	rooms  *RoomRegistry
	store  *mocks.MockMessageStore
	ctx    context.Context
}

// newRouterHarness wires a router against mocked persistence and spins
// up a drain goroutine standing in for the delivery worker.
func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	roomStore := mocks.NewMockRoomStore(ctrl)
	roomStore.EXPECT().SaveRoom(gomock.Any()).Return(nil).AnyTimes()
	roomStore.EXPECT().DeleteRoom(gomock.Any()).Return(nil).AnyTimes()

	messageStore := mocks.NewMockMessageStore(ctrl)

	rooms := NewRoomRegistry(log, roomStore, 0)
	presence := NewPresenceTracker()
	dms := NewDirectMessageIndex(log, messageStore)

	greetings, err := responder.NewDetector([]string{"hello", "hi", "hey"})
	require.NoError(t, err)
	help, err := responder.NewDetector([]string{"help"})
	require.NoError(t, err)

	router := NewRouter(log, rooms, presence, dms, messageStore, nil,
		greetings, help, 128, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery := <-router.Deliveries():
				for _, sink := range delivery.Sinks {
					_ = sink.Consume(ctx, delivery.Event)
				}
			}
		}
	}()

	return &routerHarness{router: router, rooms: rooms, store: messageStore, ctx: ctx}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestRouter_JoinScenario(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()
	req.NoError(h.rooms.Create("general", false, ""))

	sink := &recordingSink{}
	h.router.Connected(h.ctx, sink)
	eventually(t, func() bool { return sink.count("connection_established") == 1 },
		"connection greeting not delivered")

	h.router.Handle(h.ctx, sink, domain.JoinCommand{Username: "alice", Room: "general"})

	eventually(t, func() bool { return sink.count("users_list") == 1 }, "users_list not delivered")
	eventually(t, func() bool { return sink.count("user_joined") == 1 }, "user_joined not delivered")
	eventually(t, func() bool { return sink.count("message") == 1 }, "welcome message not delivered")

	list := sink.named("users_list")[0].(event.UsersList)
	req.Equal("general", list.Room)
	req.Equal([]string{"alice"}, list.Users)

	joined := sink.named("user_joined")[0].(event.UserJoined)
	req.Equal("alice", joined.Username)
	req.Equal(1, joined.Count)
	req.Positive(joined.Timestamp)

	welcome := sink.named("message")[0].(event.ChatMessage)
	req.Equal(domain.SystemSender, welcome.Username)
	req.True(welcome.System)
	req.Equal("Welcome to general, alice!", welcome.Message)
}

func TestRouter_JoinFullRoom(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()
	req.NoError(h.rooms.Create("tiny", false, ""))

	// Fill the room to capacity out of band
	for i := 0; i < domain.DefaultRoomCapacity; i++ {
		_, err := h.rooms.Join("tiny", strings.Repeat("x", i+1))
		req.NoError(err)
	}

	sink := &recordingSink{}
	h.router.Connected(h.ctx, sink)
	h.router.Handle(h.ctx, sink, domain.JoinCommand{Username: "late", Room: "tiny"})

	eventually(t, func() bool { return sink.count("room_full") == 1 }, "room_full not delivered")
	req.Zero(sink.count("users_list"))

	// The rejected user never made it onto the roster
	roster, ok := h.rooms.RosterSnapshot("tiny")
	req.True(ok)
	req.NotContains(roster, "late")
}

func TestRouter_PostGreetingTriggersExactlyOneReply(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()
	req.NoError(h.rooms.Create("general", false, ""))

	alice := &recordingSink{}
	bob := &recordingSink{}
	h.router.Connected(h.ctx, alice)
	h.router.Connected(h.ctx, bob)
	h.router.Handle(h.ctx, alice, domain.JoinCommand{Username: "alice", Room: "general"})
	h.router.Handle(h.ctx, bob, domain.JoinCommand{Username: "bob", Room: "general"})
	// alice hears both welcomes, bob only his own
	eventually(t, func() bool { return alice.count("message") == 2 }, "welcomes not delivered")
	eventually(t, func() bool { return bob.count("message") == 1 }, "bob welcome not delivered")

	h.router.Handle(h.ctx, bob, domain.PostMessageCommand{Username: "bob", Room: "general", Body: "hello everyone"})

	// Both members receive the chat message, then exactly one deferred
	// greeting each, never one per recipient
	eventually(t, func() bool { return alice.count("message") == 4 }, "greeting reply not delivered to alice")
	eventually(t, func() bool { return bob.count("message") == 3 }, "greeting reply not delivered to bob")
	time.Sleep(100 * time.Millisecond)
	req.Equal(4, alice.count("message"))
	req.Equal(3, bob.count("message"))

	greeting := bob.named("message")[2].(event.ChatMessage)
	req.True(greeting.System)
	req.Equal("Hello bob! Welcome to the general chat room. Feel free to ask if you need help!", greeting.Message)
}

func TestRouter_PostLengthLimit(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	// Only the join welcome and the accepted post may reach the store
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).Times(2)
	req.NoError(h.rooms.Create("general", false, ""))

	sink := &recordingSink{}
	h.router.Connected(h.ctx, sink)
	h.router.Handle(h.ctx, sink, domain.JoinCommand{Username: "alice", Room: "general"})
	eventually(t, func() bool { return sink.count("message") == 1 }, "welcome not delivered")

	// Exactly the limit passes
	h.router.Handle(h.ctx, sink, domain.PostMessageCommand{
		Username: "alice", Room: "general", Body: strings.Repeat("a", 1000)})
	eventually(t, func() bool { return sink.count("message") == 2 }, "limit-length post not delivered")

	// One rune over is rejected with an error, and never persisted
	h.router.Handle(h.ctx, sink, domain.PostMessageCommand{
		Username: "alice", Room: "general", Body: strings.Repeat("a", 1001)})
	eventually(t, func() bool { return sink.count("error") == 1 }, "length error not delivered")

	errEvt := sink.named("error")[0].(event.Error)
	req.Equal("Message too long (max 1000 characters)", errEvt.Message)
	req.Equal(2, sink.count("message"))
}

func TestRouter_PostWhitespaceOnlyIsDropped(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).Times(1) // welcome only
	req.NoError(h.rooms.Create("general", false, ""))

	sink := &recordingSink{}
	h.router.Connected(h.ctx, sink)
	h.router.Handle(h.ctx, sink, domain.JoinCommand{Username: "alice", Room: "general"})
	eventually(t, func() bool { return sink.count("message") == 1 }, "welcome not delivered")

	h.router.Handle(h.ctx, sink, domain.PostMessageCommand{Username: "alice", Room: "general", Body: "   \n\t  "})

	time.Sleep(100 * time.Millisecond)
	req.Equal(1, sink.count("message"))
	req.Zero(sink.count("error"))
}

func TestRouter_OnlineUsersSnapshotGoesToRequesterOnly(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)

	alice := &recordingSink{}
	bob := &recordingSink{}
	h.router.Connected(h.ctx, alice)
	h.router.Connected(h.ctx, bob)
	h.router.Handle(h.ctx, alice, domain.RegisterUserCommand{Username: "alice"})
	h.router.Handle(h.ctx, bob, domain.RegisterUserCommand{Username: "bob"})

	h.router.Handle(h.ctx, alice, domain.OnlineUsersCommand{})

	eventually(t, func() bool { return alice.count("online_users") == 1 }, "snapshot not delivered")
	snapshot := alice.named("online_users")[0].(event.OnlineUsers)
	req.ElementsMatch([]string{"alice", "bob"}, snapshot.Users)

	time.Sleep(100 * time.Millisecond)
	req.Zero(bob.count("online_users"))
}

func TestRouter_DirectMessageToOfflineRecipient(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()
	h.store.EXPECT().DMHistory(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	alice := &recordingSink{}
	h.router.Connected(h.ctx, alice)
	h.router.Handle(h.ctx, alice, domain.RegisterUserCommand{Username: "alice"})

	// Bob is offline; alice still gets her echo
	h.router.Handle(h.ctx, alice, domain.DirectMessageCommand{
		Sender: "alice", Recipient: "bob", Body: "are you there?"})

	eventually(t, func() bool { return alice.count("direct_message") == 1 }, "sender echo not delivered")
	echo := alice.named("direct_message")[0].(event.DirectMessage)
	req.Equal("alice", echo.Sender)
	req.Equal("bob", echo.Recipient)
	req.Equal("are you there?", echo.Message)

	// Bob connects later and replays the conversation from the bucket
	bob := &recordingSink{}
	h.router.Connected(h.ctx, bob)
	h.router.Handle(h.ctx, bob, domain.RegisterUserCommand{Username: "bob"})
	h.router.Handle(h.ctx, bob, domain.DMHistoryCommand{User1: "bob", User2: "alice"})

	eventually(t, func() bool { return bob.count("dm_history") == 1 }, "dm_history not delivered")
	history := bob.named("dm_history")[0].(event.DMHistory)
	req.Len(history.History, 1)
	req.Equal("are you there?", history.History[0].Message)
}

func TestRouter_DirectMessageHelpReply(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()

	alice := &recordingSink{}
	bob := &recordingSink{}
	h.router.Connected(h.ctx, alice)
	h.router.Connected(h.ctx, bob)
	h.router.Handle(h.ctx, alice, domain.RegisterUserCommand{Username: "alice"})
	h.router.Handle(h.ctx, bob, domain.RegisterUserCommand{Username: "bob"})

	h.router.Handle(h.ctx, alice, domain.DirectMessageCommand{
		Sender: "alice", Recipient: "bob", Body: "can you help me?"})

	// Echo + live delivery + one deferred system reply to the asker only
	eventually(t, func() bool { return alice.count("direct_message") == 2 }, "help reply not delivered")
	eventually(t, func() bool { return bob.count("direct_message") == 1 }, "recipient copy not delivered")

	reply := alice.named("direct_message")[1].(event.DirectMessage)
	req.True(reply.System)
	req.Equal(domain.SystemSender, reply.Sender)
	req.Equal(`Hello alice! I see you're asking bob for help. You can also find general help in the "general" room.`, reply.Message)

	time.Sleep(100 * time.Millisecond)
	req.Equal(1, bob.count("direct_message"))
}

func TestRouter_EmptyHistoryGetsOpener(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()
	h.store.EXPECT().DMHistory("alice", "bob").Return(nil, nil).Times(1)

	alice := &recordingSink{}
	h.router.Connected(h.ctx, alice)
	h.router.Handle(h.ctx, alice, domain.RegisterUserCommand{Username: "alice"})

	h.router.Handle(h.ctx, alice, domain.DMHistoryCommand{User1: "alice", User2: "bob"})

	eventually(t, func() bool { return alice.count("dm_history") == 1 }, "dm_history not delivered")
	eventually(t, func() bool { return alice.count("direct_message") == 1 }, "opener not delivered")

	history := alice.named("dm_history")[0].(event.DMHistory)
	req.Empty(history.History)

	opener := alice.named("direct_message")[0].(event.DirectMessage)
	req.True(opener.System)
	req.Equal("This is the start of your direct message history with bob. Your messages are private and secure.", opener.Message)
}

func TestRouter_RoomDeletedReachesEveryConnection(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()
	req.NoError(h.rooms.Create("secret", true, "key"))

	alice := &recordingSink{}
	bystander := &recordingSink{}
	h.router.Connected(h.ctx, alice)
	h.router.Connected(h.ctx, bystander)

	h.router.Handle(h.ctx, alice, domain.JoinCommand{Username: "alice", Room: "secret"})
	eventually(t, func() bool { return alice.count("users_list") == 1 }, "join not processed")

	h.router.Handle(h.ctx, alice, domain.LeaveCommand{Username: "alice", Room: "secret"})

	// The bystander never joined the room yet still hears the deletion
	eventually(t, func() bool { return bystander.count("room_deleted") == 1 }, "room_deleted not broadcast")
	deleted := bystander.named("room_deleted")[0].(event.RoomDeleted)
	req.Equal("secret", deleted.Room)
}

func TestRouter_DisconnectCleansRosters(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()
	req.NoError(h.rooms.Create("general", false, ""))

	alice := &recordingSink{}
	bob := &recordingSink{}
	h.router.Connected(h.ctx, alice)
	h.router.Connected(h.ctx, bob)
	h.router.Handle(h.ctx, alice, domain.JoinCommand{Username: "alice", Room: "general"})
	h.router.Handle(h.ctx, bob, domain.JoinCommand{Username: "bob", Room: "general"})
	eventually(t, func() bool { return bob.count("users_list") == 1 }, "bob join not processed")

	// Alice's connection dies without an explicit leave
	h.router.Disconnected(h.ctx, alice)

	eventually(t, func() bool { return bob.count("user_offline") == 1 }, "user_offline not delivered")
	eventually(t, func() bool { return bob.count("user_left") == 1 }, "user_left not delivered")

	offline := bob.named("user_offline")[0].(event.UserOffline)
	req.Equal("alice", offline.Username)

	roster, ok := h.rooms.RosterSnapshot("general")
	req.True(ok)
	req.Equal([]string{"bob"}, roster)
}

func TestRouter_TypingReachesRoomMembers(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()
	req.NoError(h.rooms.Create("general", false, ""))

	alice := &recordingSink{}
	bob := &recordingSink{}
	h.router.Connected(h.ctx, alice)
	h.router.Connected(h.ctx, bob)
	h.router.Handle(h.ctx, alice, domain.JoinCommand{Username: "alice", Room: "general"})
	h.router.Handle(h.ctx, bob, domain.JoinCommand{Username: "bob", Room: "general"})
	eventually(t, func() bool { return bob.count("users_list") == 1 }, "bob join not processed")

	h.router.Handle(h.ctx, alice, domain.TypingCommand{Username: "alice", Room: "general"})

	eventually(t, func() bool { return bob.count("user_typing") == 1 }, "user_typing not delivered")
	typing := bob.named("user_typing")[0].(event.UserTyping)
	req.Equal("alice", typing.Username)
}

func TestRouter_StaringGoesToTargetOnly(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()
	req.NoError(h.rooms.Create("general", false, ""))

	alice := &recordingSink{}
	bob := &recordingSink{}
	h.router.Connected(h.ctx, alice)
	h.router.Connected(h.ctx, bob)
	h.router.Handle(h.ctx, alice, domain.JoinCommand{Username: "alice", Room: "general"})
	h.router.Handle(h.ctx, bob, domain.JoinCommand{Username: "bob", Room: "general"})
	eventually(t, func() bool { return bob.count("users_list") == 1 }, "bob join not processed")

	h.router.Handle(h.ctx, alice, domain.StaringCommand{Username: "alice", Target: "bob", Room: "general"})

	eventually(t, func() bool { return bob.count("staring_alert") == 1 }, "staring_alert not delivered")
	alert := bob.named("staring_alert")[0].(event.StaringAlert)
	req.Equal("alice", alert.Username)
	req.Equal("bob", alert.Target)
	req.Zero(alice.count("staring_alert"))
}

func TestRouter_FileMessageInRoom(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()
	req.NoError(h.rooms.Create("general", false, ""))

	alice := &recordingSink{}
	h.router.Connected(h.ctx, alice)
	h.router.Handle(h.ctx, alice, domain.JoinCommand{Username: "alice", Room: "general"})
	eventually(t, func() bool { return alice.count("users_list") == 1 }, "join not processed")

	h.router.Handle(h.ctx, alice, domain.FileMessageCommand{
		Username: "alice",
		Room:     "general",
		File: domain.FilePayload{
			Name: "notes.txt",
			Size: 12,
			Type: "text/plain",
			Data: "data:text/plain;base64,aGVsbG8gd29ybGQh",
		},
	})

	eventually(t, func() bool { return alice.count("file_message") == 1 }, "file_message not delivered")
	fm := alice.named("file_message")[0].(event.FileMessage)
	req.Equal("alice", fm.Username)
	req.Equal("general", fm.Room)
	req.False(fm.IsDM)
	req.Equal("notes.txt", fm.File.Name)
}

func TestRouter_FileMessageAsDM(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)
	h.store.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()

	alice := &recordingSink{}
	bob := &recordingSink{}
	h.router.Connected(h.ctx, alice)
	h.router.Connected(h.ctx, bob)
	h.router.Handle(h.ctx, alice, domain.RegisterUserCommand{Username: "alice"})
	h.router.Handle(h.ctx, bob, domain.RegisterUserCommand{Username: "bob"})

	h.router.Handle(h.ctx, alice, domain.FileMessageCommand{
		Sender:    "alice",
		Recipient: "bob",
		IsDM:      true,
		File: domain.FilePayload{
			Name: "pic.png",
			Size: 4,
			Data: "data:image/png;base64,iVBORw0KGgo=",
		},
	})

	eventually(t, func() bool { return bob.count("file_message") == 1 }, "recipient copy not delivered")
	eventually(t, func() bool { return alice.count("file_message") == 1 }, "sender echo not delivered")

	fm := bob.named("file_message")[0].(event.FileMessage)
	req.True(fm.IsDM)
	req.Equal("alice", fm.Sender)
	req.Equal("bob", fm.Recipient)
}

func TestRouter_PostToUnknownRoomIsDropped(t *testing.T) {
	req := require.New(t)
	h := newRouterHarness(t)

	sink := &recordingSink{}
	h.router.Connected(h.ctx, sink)
	h.router.Handle(h.ctx, sink, domain.PostMessageCommand{Username: "alice", Room: "nowhere", Body: "anyone?"})

	time.Sleep(100 * time.Millisecond)
	req.Zero(sink.count("message"))
	req.Zero(sink.count("error"))
}

var _ contract.EventSink = (*recordingSink)(nil)
