// Package domain contains core concepts of the realtime chat coordination layer.
// This file defines the persisted Message entity and its lifecycle flags.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Flag is one of the two monotonic delivery-state flags of a Message.
type Flag string

const (
	FlagDelivered Flag = "delivered"
	FlagSeen      Flag = "seen"
)

// Message is the persisted chat message. Delivered and Seen are monotonic:
// once true they are never reset within the entity's lifetime.
type Message struct {
	ID        uuid.UUID
	SenderID  string
	RoomID    RoomID
	Text      string
	Delivered bool
	Seen      bool
	CreatedAt time.Time
}
