// Package domain contains core concepts of the realtime chat coordination layer.
// This file defines presence, the link between a user and their live connection.
package domain

// Status is the wire value of a user-status event.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// PresenceEntry records a user's live connection and the rooms they joined.
// At most one live connection exists per user: a later online announcement
// supersedes an earlier one for the same user.
type PresenceEntry struct {
	UserID       string
	ConnectionID string
	Rooms        map[RoomID]struct{}
}
