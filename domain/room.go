package domain

// RoomID names a broadcast scope. Membership is dynamic and transport-joined;
// rooms have no existence beyond their current member set.
type RoomID string
