package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// sendFailureMessage is the opaque error reported to the sender. Storage
// details never leak to clients.
const sendFailureMessage = "Failed to send message"

// Dispatcher is the composition root of the realtime core. It demultiplexes
// inbound named events to the registry, the typing tracker, and the message
// lifecycle, and scopes every outbound emission to exactly one of: a single
// connection, a room minus the sender, or all connections. It owns no state
// of its own.
//
// No inbound event may bring the dispatcher down: handler errors end at the
// originating connection or in a counter, never in a panic or a dropped
// unrelated connection.
type Dispatcher struct {
	log        *slog.Logger
	presence   contract.Presence
	broadcast  contract.Broadcaster
	lifecycle  contract.MessageLifecycle
	typing     *TypingTracker
	monitoring *observability.Monitoring
}

func NewDispatcher(
	log *slog.Logger,
	presence contract.Presence,
	broadcast contract.Broadcaster,
	lifecycle contract.MessageLifecycle,
	monitoring *observability.Monitoring,
	typingTTL time.Duration,
) *Dispatcher {
	d := &Dispatcher{
		log:        log,
		presence:   presence,
		broadcast:  broadcast,
		lifecycle:  lifecycle,
		monitoring: monitoring,
	}
	d.typing = NewTypingTracker(typingTTL, d.onTypingExpired)
	return d
}

// HandleConnect registers a fresh transport session. No event is emitted:
// presence starts at the user-online announcement, not at the socket.
func (d *Dispatcher) HandleConnect(connID string, sink contract.EventSink) {
	d.presence.AddConnection(connID, sink)
	d.monitoring.IncrConnectionsOpened()
	d.log.Debug("connection established", "conn_id", connID)
}

// HandleDisconnect tears the session down. A connection that never announced
// a user disappears silently; an announced one produces exactly one offline
// status to all connections and leaves every room it had joined.
func (d *Dispatcher) HandleDisconnect(ctx context.Context, connID string) {
	userID, announced := d.presence.RemoveConnection(connID)
	d.monitoring.IncrConnectionsClosed()
	if !announced {
		return
	}
	d.log.Info("user disconnected", "user_id", userID, "conn_id", connID)
	d.emitAll(ctx, event.UserStatus{UserID: userID, Status: string(domain.StatusOffline)})
}

// Dispatch routes one inbound envelope. Unknown names and malformed payloads
// are counted and dropped; the connection itself is never penalized.
func (d *Dispatcher) Dispatch(ctx context.Context, connID string, name event.Name, data json.RawMessage) {
	switch name {
	case event.NameUserOnline:
		var p event.UserOnline
		if !d.decode(connID, name, data, &p) {
			return
		}
		d.handleOnline(ctx, connID, p)
	case event.NameJoinRoom:
		var p event.JoinRoom
		if !d.decode(connID, name, data, &p) {
			return
		}
		d.handleJoin(ctx, connID, p)
	case event.NameLeaveRoom:
		var p event.LeaveRoom
		if !d.decode(connID, name, data, &p) {
			return
		}
		d.handleLeave(ctx, connID, p)
	case event.NameTyping:
		var p event.Typing
		if !d.decode(connID, name, data, &p) {
			return
		}
		d.handleTyping(ctx, connID, p)
	case event.NameStopTyping:
		var p event.StopTyping
		if !d.decode(connID, name, data, &p) {
			return
		}
		d.handleStopTyping(ctx, connID, p)
	case event.NameSendMessage:
		var p event.SendMessage
		if !d.decode(connID, name, data, &p) {
			return
		}
		d.handleSendMessage(ctx, connID, p)
	case event.NameMarkDelivered:
		var p event.MarkDelivered
		if !d.decode(connID, name, data, &p) {
			return
		}
		d.handleMarkFlag(ctx, connID, p.MessageID, p.RoomID, domain.FlagDelivered)
	case event.NameMarkSeen:
		var p event.MarkSeen
		if !d.decode(connID, name, data, &p) {
			return
		}
		d.handleMarkFlag(ctx, connID, p.MessageID, p.RoomID, domain.FlagSeen)
	default:
		d.monitoring.IncrMalformedInbound()
		d.log.Warn("unknown inbound event", "event", string(name), "conn_id", connID)
	}
}

func (d *Dispatcher) handleOnline(ctx context.Context, connID string, p event.UserOnline) {
	if p.UserID == "" {
		d.monitoring.IncrMalformedInbound()
		return
	}
	if superseded := d.presence.AnnounceOnline(p.UserID, connID); superseded {
		d.log.Info("presence superseded by a newer connection", "user_id", p.UserID)
	}
	d.log.Info("user online", "user_id", p.UserID, "conn_id", connID)
	d.emitAll(ctx, event.UserStatus{UserID: p.UserID, Status: string(domain.StatusOnline)})
}

func (d *Dispatcher) handleJoin(ctx context.Context, connID string, p event.JoinRoom) {
	if p.RoomID == "" {
		d.monitoring.IncrMalformedInbound()
		return
	}
	d.presence.Join(domain.RoomID(p.RoomID), p.UserID, connID)
	d.log.Debug("user joined room", "user_id", p.UserID, "room_id", p.RoomID)
	d.emitRoomExcept(ctx, domain.RoomID(p.RoomID), connID,
		event.UserJoined{UserID: p.UserID, RoomID: p.RoomID})
}

func (d *Dispatcher) handleLeave(ctx context.Context, connID string, p event.LeaveRoom) {
	if p.RoomID == "" {
		d.monitoring.IncrMalformedInbound()
		return
	}
	d.presence.Leave(domain.RoomID(p.RoomID), p.UserID, connID)
	d.log.Debug("user left room", "user_id", p.UserID, "room_id", p.RoomID)
	d.emitRoomExcept(ctx, domain.RoomID(p.RoomID), connID,
		event.UserLeft{UserID: p.UserID, RoomID: p.RoomID})
}

// handleTyping broadcasts the indicator on every inbound typing event, even
// while an episode is already running: recipients treat repeats as a refresh.
func (d *Dispatcher) handleTyping(ctx context.Context, connID string, p event.Typing) {
	if p.RoomID == "" || p.UserID == "" {
		d.monitoring.IncrMalformedInbound()
		return
	}
	d.typing.Start(domain.RoomID(p.RoomID), p.UserID)
	d.emitRoomExcept(ctx, domain.RoomID(p.RoomID), connID,
		event.UserTyping{UserID: p.UserID, RoomID: p.RoomID})
}

// handleStopTyping ends the episode early. The stop event goes out only when
// the user actually had one running, so explicit stop and natural expiry
// produce exactly one user-stop-typing between them.
func (d *Dispatcher) handleStopTyping(ctx context.Context, connID string, p event.StopTyping) {
	if p.RoomID == "" || p.UserID == "" {
		d.monitoring.IncrMalformedInbound()
		return
	}
	if d.typing.Stop(domain.RoomID(p.RoomID), p.UserID) {
		d.emitRoomExcept(ctx, domain.RoomID(p.RoomID), connID,
			event.UserStopTyping{UserID: p.UserID, RoomID: p.RoomID})
	}
}

// onTypingExpired runs on the timer goroutine after the tracker cleared the
// key. The typer's own connection is excluded when it is still resolvable.
func (d *Dispatcher) onTypingExpired(roomID domain.RoomID, userID string) {
	connID, _ := d.presence.Lookup(userID)
	d.emitRoomExcept(context.Background(), roomID, connID,
		event.UserStopTyping{UserID: userID, RoomID: string(roomID)})
}

// handleSendMessage persists first, then fans out to the members present at
// that moment. Recipients are told delivered=true eagerly: here "delivered"
// means handed to a live connection, while the persisted flag stays false
// until an explicit mark-delivered acknowledgment.
func (d *Dispatcher) handleSendMessage(ctx context.Context, connID string, p event.SendMessage) {
	cmd := domain.SendMessageCommand{
		RoomID:   p.RoomID,
		SenderID: p.UserID,
		UserName: p.UserName,
		Text:     p.Text,
	}
	message, err := d.lifecycle.Send(ctx, cmd)
	if err != nil {
		d.monitoring.IncrMessagesFailed()
		d.log.Error("send failed", "user_id", p.UserID, "room_id", p.RoomID, "error", err)
		d.emitToConn(ctx, connID, event.MessageError{Error: sendFailureMessage})
		return
	}

	d.monitoring.IncrMessagesSent()
	d.emitRoomExcept(ctx, message.RoomID, connID, event.ReceiveMessage{
		ID:        message.ID.String(),
		SenderID:  message.SenderID,
		UserName:  p.UserName,
		RoomID:    string(message.RoomID),
		Text:      message.Text,
		Delivered: true,
		Seen:      false,
		CreatedAt: message.CreatedAt,
	})
	d.emitToConn(ctx, connID, event.MessageSent{ID: message.ID.String(), Status: "sent"})
}

// handleMarkFlag applies a delivered/seen transition. Failures here are
// best-effort by design: logged, counted, and swallowed, with no event and
// no error back to the caller.
func (d *Dispatcher) handleMarkFlag(ctx context.Context, connID, messageID, roomID string, flag domain.Flag) {
	id, err := uuid.Parse(messageID)
	if err == nil {
		switch flag {
		case domain.FlagSeen:
			err = d.lifecycle.MarkSeen(ctx, id)
		default:
			err = d.lifecycle.MarkDelivered(ctx, id)
		}
	}
	if err != nil {
		d.monitoring.IncrFlagUpdateFailed(string(flag))
		d.log.Warn("flag update dropped", "flag", string(flag), "message_id", messageID, "error", err)
		return
	}

	var evt event.Event
	if flag == domain.FlagSeen {
		evt = event.MessageSeen{MessageID: messageID}
	} else {
		evt = event.MessageDelivered{MessageID: messageID}
	}
	d.emitRoomExcept(ctx, domain.RoomID(roomID), connID, evt)
}

func (d *Dispatcher) decode(connID string, name event.Name, data json.RawMessage, target any) bool {
	if err := json.Unmarshal(data, target); err != nil {
		d.monitoring.IncrMalformedInbound()
		d.log.Warn(fmt.Sprintf("malformed %s payload", name), "conn_id", connID, "error", err)
		return false
	}
	return true
}

func (d *Dispatcher) emitAll(ctx context.Context, e event.Event) {
	for _, sink := range d.broadcast.AllSinks() {
		d.emit(ctx, sink, e)
	}
}

func (d *Dispatcher) emitRoomExcept(ctx context.Context, roomID domain.RoomID, exceptConnID string, e event.Event) {
	for _, sink := range d.broadcast.SinksForRoomExcept(roomID, exceptConnID) {
		d.emit(ctx, sink, e)
	}
}

func (d *Dispatcher) emitToConn(ctx context.Context, connID string, e event.Event) {
	sink, ok := d.broadcast.Sink(connID)
	if !ok {
		// The connection vanished between the inbound event and the reply.
		d.monitoring.IncrEventsDropped()
		return
	}
	d.emit(ctx, sink, e)
}

func (d *Dispatcher) emit(ctx context.Context, sink contract.EventSink, e event.Event) {
	if err := sink.Consume(ctx, e); err != nil {
		d.monitoring.IncrEventsDropped()
		d.log.Debug("event dropped by sink", "event", string(e.EventName()), "error", err)
	}
}
