// Package event defines the named events exchanged over client connections.
// Outbound events are fanned out by the dispatcher to a scoped set of
// connections: one connection, a room minus the sender, or everyone.
package event

import "time"

// Name identifies an event on the wire.
type Name string

// Outbound event names.
const (
	NameUserStatus       Name = "user-status"
	NameUserJoined       Name = "user-joined"
	NameUserLeft         Name = "user-left"
	NameUserTyping       Name = "user-typing"
	NameUserStopTyping   Name = "user-stop-typing"
	NameReceiveMessage   Name = "receive-message"
	NameMessageSent      Name = "message-sent"
	NameMessageError     Name = "message-error"
	NameMessageDelivered Name = "message-delivered"
	NameMessageSeen      Name = "message-seen"
)

// Event is any outbound payload. EventName is the envelope discriminator.
type Event interface {
	EventName() Name
}

// UserStatus announces presence changes to every connection.
type UserStatus struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

func (UserStatus) EventName() Name { return NameUserStatus }

// UserJoined is sent to the other members of a room when a user joins it.
type UserJoined struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

func (UserJoined) EventName() Name { return NameUserJoined }

type UserLeft struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

func (UserLeft) EventName() Name { return NameUserLeft }

type UserTyping struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

func (UserTyping) EventName() Name { return NameUserTyping }

type UserStopTyping struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

func (UserStopTyping) EventName() Name { return NameUserStopTyping }

// ReceiveMessage is the full message payload broadcast to the other room
// members after a successful send. Delivered reports transmission to a live
// connection, not the persisted acknowledgment flag.
type ReceiveMessage struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	UserName  string    `json:"userName"`
	RoomID    string    `json:"roomId"`
	Text      string    `json:"text"`
	Delivered bool      `json:"delivered"`
	Seen      bool      `json:"seen"`
	CreatedAt time.Time `json:"createdAt"`
}

func (ReceiveMessage) EventName() Name { return NameReceiveMessage }

// MessageSent confirms persistence to the sender only.
type MessageSent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (MessageSent) EventName() Name { return NameMessageSent }

// MessageError reports a send failure to the sender only, never to the room.
type MessageError struct {
	Error string `json:"error"`
}

func (MessageError) EventName() Name { return NameMessageError }

type MessageDelivered struct {
	MessageID string `json:"messageId"`
}

func (MessageDelivered) EventName() Name { return NameMessageDelivered }

type MessageSeen struct {
	MessageID string `json:"messageId"`
}

func (MessageSeen) EventName() Name { return NameMessageSeen }
