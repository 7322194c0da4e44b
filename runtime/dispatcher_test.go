package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"chat-relay/observability"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// recordingSink captures every event a connection would receive.
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

func (s *recordingSink) names() []event.Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]event.Name, 0, len(s.events))
	for _, e := range s.events {
		names = append(names, e.EventName())
	}
	return names
}

func (s *recordingSink) last() event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

func (s *recordingSink) waitFor(name event.Name, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, n := range s.names() {
			if n == name {
				return true
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func (s *recordingSink) countOf(name event.Name) int {
	count := 0
	for _, n := range s.names() {
		if n == name {
			count++
		}
	}
	return count
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	registry   *Registry
	lifecycle  *mocks.MockMessageLifecycle
	monitoring *observability.Monitoring
}

func newDispatcherFixture(t *testing.T, typingTTL time.Duration) *dispatcherFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	registry := NewRegistry()
	lifecycle := mocks.NewMockMessageLifecycle(ctrl)
	monitoring := observability.NewMonitoring()
	dispatcher := NewDispatcher(slog.Default(), registry, registry, lifecycle, monitoring, typingTTL)
	return &dispatcherFixture{
		dispatcher: dispatcher,
		registry:   registry,
		lifecycle:  lifecycle,
		monitoring: monitoring,
	}
}

// connect wires a recording sink and optionally announces + joins rooms.
func (f *dispatcherFixture) connect(ctx context.Context, connID, userID string, rooms ...string) *recordingSink {
	sink := &recordingSink{}
	f.dispatcher.HandleConnect(connID, sink)
	if userID != "" {
		f.dispatcher.Dispatch(ctx, connID, event.NameUserOnline, raw(event.UserOnline{UserID: userID}))
	}
	for _, room := range rooms {
		f.dispatcher.Dispatch(ctx, connID, event.NameJoinRoom, raw(event.JoinRoom{RoomID: room, UserID: userID}))
	}
	return sink
}

func raw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func TestDispatcher_UserOnline_BroadcastToAll(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	// Given two connected sockets, one not yet announced
	alice := f.connect(ctx, "conn-a", "")
	bob := f.connect(ctx, "conn-b", "")

	// When alice announces online
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameUserOnline, raw(event.UserOnline{UserID: "alice"}))

	// Then everyone hears it, the announcer included
	req.Equal([]event.Name{event.NameUserStatus}, alice.names())
	req.Equal([]event.Name{event.NameUserStatus}, bob.names())
	status, ok := bob.last().(event.UserStatus)
	req.True(ok)
	req.Equal("alice", status.UserID)
	req.Equal("online", status.Status)
}

func TestDispatcher_JoinRoom_NotifiesOthersOnly(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	bob := f.connect(ctx, "conn-b", "", "general")
	outsider := f.connect(ctx, "conn-c", "")
	alice := &recordingSink{}
	f.dispatcher.HandleConnect("conn-a", alice)

	// When alice joins the room
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameJoinRoom, raw(event.JoinRoom{RoomID: "general", UserID: "alice"}))

	// Then only the existing members are notified
	req.Equal(1, bob.countOf(event.NameUserJoined))
	req.Zero(alice.countOf(event.NameUserJoined))
	req.Zero(outsider.countOf(event.NameUserJoined))

	joined, ok := bob.last().(event.UserJoined)
	req.True(ok)
	req.Equal("alice", joined.UserID)
	req.Equal("general", joined.RoomID)
}

func TestDispatcher_LeaveRoom_NotifiesRemainingMembers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	alice := f.connect(ctx, "conn-a", "alice", "general")
	bob := f.connect(ctx, "conn-b", "bob", "general")

	// When alice leaves
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameLeaveRoom, raw(event.LeaveRoom{RoomID: "general", UserID: "alice"}))

	// Then only bob is told, and alice is out of the fan-out set
	req.Equal(1, bob.countOf(event.NameUserLeft))
	req.Zero(alice.countOf(event.NameUserLeft))
	req.Empty(f.registry.SinksForRoomExcept("general", "conn-b"))
}

func TestDispatcher_SendMessage_FanOutExcludesSender(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	alice := f.connect(ctx, "conn-a", "alice", "general")
	bob := f.connect(ctx, "conn-b", "bob", "general")
	carol := f.connect(ctx, "conn-c", "carol", "general")
	outsider := f.connect(ctx, "conn-d", "dave", "random")

	messageID := uuid.New()
	f.lifecycle.EXPECT().
		Send(gomock.Any(), domain.SendMessageCommand{
			RoomID:   "general",
			SenderID: "alice",
			UserName: "Alice",
			Text:     "hello",
		}).
		Return(domain.Message{
			ID:        messageID,
			SenderID:  "alice",
			RoomID:    "general",
			Text:      "hello",
			CreatedAt: time.Now(),
		}, nil)

	// When alice sends a message
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameSendMessage,
		raw(event.SendMessage{RoomID: "general", UserID: "alice", UserName: "Alice", Text: "hello"}))

	// Then the other members receive it, flagged delivered but not seen
	req.Equal(1, bob.countOf(event.NameReceiveMessage))
	req.Equal(1, carol.countOf(event.NameReceiveMessage))
	received, ok := bob.last().(event.ReceiveMessage)
	req.True(ok)
	req.Equal(messageID.String(), received.ID)
	req.Equal("alice", received.SenderID)
	req.Equal("hello", received.Text)
	req.True(received.Delivered)
	req.False(received.Seen)

	// Then the sender gets the confirmation, not their own message
	req.Zero(alice.countOf(event.NameReceiveMessage))
	req.Equal(1, alice.countOf(event.NameMessageSent))
	sent, ok := alice.last().(event.MessageSent)
	req.True(ok)
	req.Equal(messageID.String(), sent.ID)
	req.Equal("sent", sent.Status)

	// Then other rooms hear nothing
	req.Zero(outsider.countOf(event.NameReceiveMessage))
	req.Equal(uint64(1), f.monitoring.GetLatest().MessagesSent)
}

func TestDispatcher_SendMessage_FailureReachesSenderOnly(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	alice := f.connect(ctx, "conn-a", "alice", "general")
	bob := f.connect(ctx, "conn-b", "bob", "general")

	f.lifecycle.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return(domain.Message{}, errors.New("disk on fire"))

	// When persistence fails
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameSendMessage,
		raw(event.SendMessage{RoomID: "general", UserID: "alice", Text: "hello"}))

	// Then the sender gets an opaque error and the room hears nothing
	req.Equal(1, alice.countOf(event.NameMessageError))
	failure, ok := alice.last().(event.MessageError)
	req.True(ok)
	req.Equal("Failed to send message", failure.Error)
	req.NotContains(failure.Error, "disk")
	req.Zero(bob.countOf(event.NameReceiveMessage))
	req.Equal(uint64(1), f.monitoring.GetLatest().MessagesFailed)
}

func TestDispatcher_MarkDelivered_BroadcastExcludesOrigin(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	alice := f.connect(ctx, "conn-a", "alice", "general")
	bob := f.connect(ctx, "conn-b", "bob", "general")

	messageID := uuid.New()
	f.lifecycle.EXPECT().MarkDelivered(gomock.Any(), messageID).Return(nil)

	// When bob acknowledges delivery
	f.dispatcher.Dispatch(ctx, "conn-b", event.NameMarkDelivered,
		raw(event.MarkDelivered{MessageID: messageID.String(), RoomID: "general"}))

	// Then the rest of the room is told, the acknowledger is not
	req.Equal(1, alice.countOf(event.NameMessageDelivered))
	req.Zero(bob.countOf(event.NameMessageDelivered))
	delivered, ok := alice.last().(event.MessageDelivered)
	req.True(ok)
	req.Equal(messageID.String(), delivered.MessageID)
}

func TestDispatcher_MarkSeen_Broadcast(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	alice := f.connect(ctx, "conn-a", "alice", "general")
	f.connect(ctx, "conn-b", "bob", "general")

	messageID := uuid.New()
	f.lifecycle.EXPECT().MarkSeen(gomock.Any(), messageID).Return(nil)

	f.dispatcher.Dispatch(ctx, "conn-b", event.NameMarkSeen,
		raw(event.MarkSeen{MessageID: messageID.String(), RoomID: "general"}))

	req.Equal(1, alice.countOf(event.NameMessageSeen))
}

func TestDispatcher_MarkFlag_UnknownMessageIsSilent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	alice := f.connect(ctx, "conn-a", "alice", "general")
	f.connect(ctx, "conn-b", "bob", "general")

	messageID := uuid.New()
	f.lifecycle.EXPECT().
		MarkDelivered(gomock.Any(), messageID).
		Return(errors.New("message not found"))

	// When the acknowledgment targets a message that does not exist
	f.dispatcher.Dispatch(ctx, "conn-b", event.NameMarkDelivered,
		raw(event.MarkDelivered{MessageID: messageID.String(), RoomID: "general"}))

	// Then the failure is counted and swallowed, no event, no crash
	req.Zero(alice.countOf(event.NameMessageDelivered))
	req.Equal(uint64(1), f.monitoring.GetLatest().DeliveredUpdateFailed)

	// Then the connection stays fully functional
	f.dispatcher.Dispatch(ctx, "conn-b", event.NameTyping,
		raw(event.Typing{RoomID: "general", UserID: "bob"}))
	req.Equal(1, alice.countOf(event.NameUserTyping))
}

func TestDispatcher_MarkFlag_GarbageIDNeverHitsStore(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)
	f.connect(ctx, "conn-a", "alice", "general")

	// When the message id is not a UUID, no lifecycle call is expected
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameMarkSeen,
		raw(event.MarkSeen{MessageID: "not-a-uuid", RoomID: "general"}))

	req.Equal(uint64(1), f.monitoring.GetLatest().SeenUpdateFailed)
}

func TestDispatcher_Typing_BroadcastAndAutoStop(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, 50*time.Millisecond)

	alice := f.connect(ctx, "conn-a", "alice", "general")
	bob := f.connect(ctx, "conn-b", "bob", "general")

	// When alice starts typing and goes silent
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameTyping,
		raw(event.Typing{RoomID: "general", UserID: "alice"}))

	// Then bob sees the indicator
	req.Equal(1, bob.countOf(event.NameUserTyping))
	req.Zero(alice.countOf(event.NameUserTyping))

	// Then the indicator clears by itself, exactly once
	req.True(bob.waitFor(event.NameUserStopTyping, 2*time.Second))
	time.Sleep(100 * time.Millisecond)
	req.Equal(1, bob.countOf(event.NameUserStopTyping))
	req.Zero(alice.countOf(event.NameUserStopTyping))
}

func TestDispatcher_Typing_ExplicitStopPreventsExpiry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, 50*time.Millisecond)

	f.connect(ctx, "conn-a", "alice", "general")
	bob := f.connect(ctx, "conn-b", "bob", "general")

	// Given a typing episode ended explicitly
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameTyping,
		raw(event.Typing{RoomID: "general", UserID: "alice"}))
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameStopTyping,
		raw(event.StopTyping{RoomID: "general", UserID: "alice"}))

	// When the expiry window elapses anyway
	time.Sleep(150 * time.Millisecond)

	// Then exactly one stop event was delivered
	req.Equal(1, bob.countOf(event.NameUserStopTyping))
}

func TestDispatcher_StopTyping_WithoutEpisodeIsSilent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	f.connect(ctx, "conn-a", "alice", "general")
	bob := f.connect(ctx, "conn-b", "bob", "general")

	// When a stop arrives with no typing episode running
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameStopTyping,
		raw(event.StopTyping{RoomID: "general", UserID: "alice"}))

	// Then no stop is broadcast
	req.Zero(bob.countOf(event.NameUserStopTyping))
}

func TestDispatcher_Typing_RepeatRefreshesBroadcast(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	f.connect(ctx, "conn-a", "alice", "general")
	bob := f.connect(ctx, "conn-b", "bob", "general")

	// When alice keeps typing
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameTyping,
		raw(event.Typing{RoomID: "general", UserID: "alice"}))
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameTyping,
		raw(event.Typing{RoomID: "general", UserID: "alice"}))

	// Then recipients see every refresh
	req.Equal(2, bob.countOf(event.NameUserTyping))
}

func TestDispatcher_Disconnect_AnnouncedGoesOffline(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	f.connect(ctx, "conn-a", "alice", "general")
	bob := f.connect(ctx, "conn-b", "bob", "general")
	before := bob.countOf(event.NameUserStatus)

	// When alice's connection drops
	f.dispatcher.HandleDisconnect(ctx, "conn-a")

	// Then everyone is told she went offline
	req.Equal(before+1, bob.countOf(event.NameUserStatus))
	status, ok := bob.last().(event.UserStatus)
	req.True(ok)
	req.Equal("alice", status.UserID)
	req.Equal("offline", status.Status)
}

func TestDispatcher_Disconnect_UnannouncedIsSilent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	bob := f.connect(ctx, "conn-b", "bob")
	anonymous := &recordingSink{}
	f.dispatcher.HandleConnect("conn-x", anonymous)
	before := bob.countOf(event.NameUserStatus)

	// When a connection that never announced drops
	f.dispatcher.HandleDisconnect(ctx, "conn-x")

	// Then no offline status goes out
	req.Equal(before, bob.countOf(event.NameUserStatus))
}

func TestDispatcher_Reconnect_SupersededDisconnectIsSilent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)

	f.connect(ctx, "conn-old", "alice")
	bob := f.connect(ctx, "conn-b", "bob")

	// Given alice reconnected on a fresh socket
	f.connect(ctx, "conn-new", "alice")
	before := bob.countOf(event.NameUserStatus)

	// When the stale socket finally closes
	f.dispatcher.HandleDisconnect(ctx, "conn-old")

	// Then no offline status is broadcast for the still-online user
	req.Equal(before, bob.countOf(event.NameUserStatus))
}

func TestDispatcher_MalformedPayloadIsCountedAndDropped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)
	f.connect(ctx, "conn-a", "alice", "general")

	// When garbage arrives on a known event name
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameSendMessage, json.RawMessage(`{"roomId": 42`))

	// Then it is counted, and the connection keeps working
	req.Equal(uint64(1), f.monitoring.GetLatest().MalformedInboundEvents)
	f.lifecycle.EXPECT().Send(gomock.Any(), gomock.Any()).
		Return(domain.Message{ID: uuid.New(), RoomID: "general"}, nil)
	f.dispatcher.Dispatch(ctx, "conn-a", event.NameSendMessage,
		raw(event.SendMessage{RoomID: "general", UserID: "alice", Text: "still here"}))
	req.Equal(uint64(1), f.monitoring.GetLatest().MessagesSent)
}

func TestDispatcher_UnknownEventName(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newDispatcherFixture(t, time.Minute)
	f.connect(ctx, "conn-a", "alice")

	f.dispatcher.Dispatch(ctx, "conn-a", "self-destruct", json.RawMessage(`{}`))

	req.Equal(uint64(1), f.monitoring.GetLatest().MalformedInboundEvents)
}
