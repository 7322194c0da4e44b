package runtime

import (
	"chat-relay/domain"
	"sync"
	"time"
)

type typingKey struct {
	roomID domain.RoomID
	userID string
}

// TypingTracker holds the set of currently-typing users per room, each with a
// cancellable expiry task. A typing episode ends exactly once: either the
// explicit stop cancels the timer, or the timer fires and clears the key.
// The onExpire callback runs outside the lock, on the timer's goroutine.
type TypingTracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	timers   map[typingKey]*time.Timer
	onExpire func(roomID domain.RoomID, userID string)
}

func NewTypingTracker(ttl time.Duration, onExpire func(roomID domain.RoomID, userID string)) *TypingTracker {
	return &TypingTracker{
		ttl:      ttl,
		timers:   make(map[typingKey]*time.Timer),
		onExpire: onExpire,
	}
}

// Start marks the user as typing and (re)schedules the expiry. A second Start
// while already typing is not an error: it restarts the inactivity window.
// Returns true when the user was not typing before.
func (t *TypingTracker) Start(roomID domain.RoomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{roomID: roomID, userID: userID}
	if timer, ok := t.timers[key]; ok {
		timer.Reset(t.ttl)
		return false
	}
	t.timers[key] = time.AfterFunc(t.ttl, func() {
		t.expire(key)
	})
	return true
}

// Stop cancels the pending expiry. Returns true when the user was typing, so
// the caller emits the stop event exactly once per episode.
func (t *TypingTracker) Stop(roomID domain.RoomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{roomID: roomID, userID: userID}
	timer, ok := t.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, key)
	return true
}

// IsTyping reports whether the user has an active typing episode in the room.
func (t *TypingTracker) IsTyping(roomID domain.RoomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.timers[typingKey{roomID: roomID, userID: userID}]
	return ok
}

// Typing returns the users currently typing in a room.
func (t *TypingTracker) Typing(roomID domain.RoomID) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var users []string
	for key := range t.timers {
		if key.roomID == roomID {
			users = append(users, key.userID)
		}
	}
	return users
}

func (t *TypingTracker) expire(key typingKey) {
	t.mu.Lock()
	// A racing explicit Stop may have cleared the key between the timer
	// firing and this lock; in that case the stop event was already emitted.
	_, ok := t.timers[key]
	if ok {
		delete(t.timers, key)
	}
	t.mu.Unlock()

	if ok && t.onExpire != nil {
		t.onExpire(key.roomID, key.userID)
	}
}
