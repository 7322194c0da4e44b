package domain

// SendMessageCommand carries a message sending intent from the transport to
// the lifecycle coordinator. Validation tags are enforced by the service.
type SendMessageCommand struct {
	RoomID   string `validate:"required"`
	SenderID string `validate:"required"`
	UserName string
	Text     string `validate:"required"`
}
