// Package runtime contains the in-memory coordination state of the chat
// service: who is connected, which rooms they occupy, and who is typing.
// It propagates nothing itself; the dispatcher drives it and owns fan-out.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sync"
)

type Set map[string]struct{}

// Registry maps live connections to users and rooms. All three maps are
// guarded by a single mutex: operations are small and contention is cheaper
// than keeping the maps mutually consistent across separate locks.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]contract.EventSink       // connID -> live sink
	users       map[string]*domain.PresenceEntry    // userID -> presence
	byConn      map[string]string                   // connID -> announced userID
	roomMembers map[domain.RoomID]Set               // roomID -> member connIDs
	connRooms   map[string]map[domain.RoomID]struct{} // connID -> transport-joined rooms
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]contract.EventSink),
		users:       make(map[string]*domain.PresenceEntry),
		byConn:      make(map[string]string),
		roomMembers: make(map[domain.RoomID]Set),
		connRooms:   make(map[string]map[domain.RoomID]struct{}),
	}
}

// AddConnection registers a transport session before any announcement.
// A connection may disconnect again without ever announcing a user.
func (r *Registry) AddConnection(connID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connID] = sink
}

// AnnounceOnline binds userID to connID, superseding any earlier connection
// for the same user. The old transport is not evicted; it simply no longer
// resolves from the presence entry. Returns true when a previous different
// connection was superseded.
func (r *Registry) AnnounceOnline(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	superseded := false
	if prev, ok := r.users[userID]; ok && prev.ConnectionID != connID {
		delete(r.byConn, prev.ConnectionID)
		superseded = true
	}
	r.users[userID] = &domain.PresenceEntry{
		UserID:       userID,
		ConnectionID: connID,
		Rooms:        make(map[domain.RoomID]struct{}),
	}
	r.byConn[connID] = userID
	return superseded
}

// RemoveConnection drops the transport session and every room membership the
// connection held. The presence entry is deleted only when it still points at
// this connection: a superseded connection disconnects silently.
func (r *Registry) RemoveConnection(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, connID)

	for roomID := range r.connRooms[connID] {
		if members, ok := r.roomMembers[roomID]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.roomMembers, roomID)
			}
		}
	}
	delete(r.connRooms, connID)

	userID, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)

	if entry, exists := r.users[userID]; exists && entry.ConnectionID == connID {
		delete(r.users, userID)
		return userID, true
	}
	return "", false
}

// Lookup resolves a user to their live connection. Absence means the user is
// not reachable; it is never an error.
func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.users[userID]
	if !ok {
		return "", false
	}
	return entry.ConnectionID, true
}

// Join adds the connection to the room's broadcast group. Presence room
// tracking only happens when the user announced online first; the transport
// join always does. Joining an occupied room is idempotent.
func (r *Registry) Join(roomID domain.RoomID, userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][connID] = struct{}{}

	if _, ok := r.connRooms[connID]; !ok {
		r.connRooms[connID] = make(map[domain.RoomID]struct{})
	}
	r.connRooms[connID][roomID] = struct{}{}

	if entry, ok := r.users[userID]; ok {
		entry.Rooms[roomID] = struct{}{}
	}
}

// Leave is the inverse of Join. Empty room entries are removed so the map
// does not leak rooms over time.
func (r *Registry) Leave(roomID domain.RoomID, userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.roomMembers[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
	if rooms, ok := r.connRooms[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.connRooms, connID)
		}
	}
	if entry, ok := r.users[userID]; ok {
		delete(entry.Rooms, roomID)
	}
}

// Sink resolves a single connection.
func (r *Registry) Sink(connID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.sessions[connID]
	return sink, ok
}

// AllSinks snapshots every live connection for a global broadcast.
func (r *Registry) AllSinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.EventSink, 0, len(r.sessions))
	for _, sink := range r.sessions {
		sinks = append(sinks, sink)
	}
	return sinks
}

// SinksForRoom snapshots the room's current members. Returns nil when the
// room doesn't exist or has no members.
func (r *Registry) SinksForRoom(roomID domain.RoomID) []contract.EventSink {
	return r.SinksForRoomExcept(roomID, "")
}

// SinksForRoomExcept snapshots the room's members minus one connection,
// typically the sender of the event being fanned out.
func (r *Registry) SinksForRoomExcept(roomID domain.RoomID, exceptConnID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for connID := range members {
		if connID == exceptConnID {
			continue
		}
		if sink, exists := r.sessions[connID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// Counts reports gauge values for the stats reporter.
func (r *Registry) Counts() (sessions, users, rooms int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), len(r.users), len(r.roomMembers)
}

// Rooms returns the rooms a user currently tracks in their presence entry.
func (r *Registry) Rooms(userID string) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.users[userID]
	if !ok {
		return nil
	}
	rooms := make([]domain.RoomID, 0, len(entry.Rooms))
	for roomID := range entry.Rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}
