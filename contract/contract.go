//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"

	"github.com/google/uuid"
)

// EventSink is one live client connection seen from the coordination core.
// Consume must not block the caller indefinitely: a sink that cannot keep up
// drops the event rather than stalling the dispatcher.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Presence is the write side of the connection registry.
type Presence interface {
	AddConnection(connID string, sink EventSink)
	AnnounceOnline(userID, connID string) bool
	RemoveConnection(connID string) (userID string, announced bool)
	Lookup(userID string) (connID string, ok bool)
	Join(roomID domain.RoomID, userID, connID string)
	Leave(roomID domain.RoomID, userID, connID string)
}

// Broadcaster is the read side used for fan-out. Keeping it separate from
// Presence lets the in-memory registry be swapped for a shared store without
// touching the lifecycle coordinator.
type Broadcaster interface {
	Sink(connID string) (EventSink, bool)
	AllSinks() []EventSink
	SinksForRoom(roomID domain.RoomID) []EventSink
	SinksForRoomExcept(roomID domain.RoomID, connID string) []EventSink
}

// MessageStore is the persistence collaborator. CreateMessage and
// UpdateMessageFlag are the only operations the realtime core calls; the
// read-side CRUD serves the REST layer.
type MessageStore interface {
	CreateMessage(ctx context.Context, senderID string, roomID domain.RoomID, text string) (domain.Message, error)
	UpdateMessageFlag(ctx context.Context, id uuid.UUID, flag domain.Flag) error
	GetRoomMessages(ctx context.Context, roomID domain.RoomID) ([]domain.Message, error)
	GetUnseenMessages(ctx context.Context, userID string) ([]domain.Message, error)
	MarkRoomSeen(ctx context.Context, roomID domain.RoomID, userID string) (int, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error
}

// MessageLifecycle drives the created -> delivered -> seen state machine.
type MessageLifecycle interface {
	Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkSeen(ctx context.Context, id uuid.UUID) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
