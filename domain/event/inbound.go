package event

// Inbound event names.
const (
	NameUserOnline    Name = "user-online"
	NameJoinRoom      Name = "join-room"
	NameLeaveRoom     Name = "leave-room"
	NameTyping        Name = "typing"
	NameStopTyping    Name = "stop-typing"
	NameSendMessage   Name = "send-message"
	NameMarkDelivered Name = "mark-delivered"
	NameMarkSeen      Name = "mark-seen"
)

// Inbound payloads, decoded by the dispatcher from the envelope's data field.

type UserOnline struct {
	UserID string `json:"userId"`
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type Typing struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type StopTyping struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type SendMessage struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Text     string `json:"text"`
}

type MarkDelivered struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

type MarkSeen struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}
