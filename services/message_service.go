// Package services holds the use-case layer between transport and storage.
package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MessageService is the message lifecycle coordinator. It validates send
// commands, persists new messages with both flags down, and applies the
// monotonic delivered/seen transitions. It emits nothing itself; the
// dispatcher turns its results into scoped events.
type MessageService struct {
	store    contract.MessageStore
	validate *validator.Validate
	log      *slog.Logger
}

func NewMessageService(log *slog.Logger, store contract.MessageStore) *MessageService {
	return &MessageService{
		store:    store,
		validate: validator.New(),
		log:      log,
	}
}

// Send validates and persists a new message. The stored message always starts
// with delivered=false and seen=false, whatever the broadcast later claims.
func (s *MessageService) Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("invalid send command: %w", err)
	}

	message, err := s.store.CreateMessage(ctx, cmd.SenderID, domain.RoomID(cmd.RoomID), cmd.Text)
	if err != nil {
		return domain.Message{}, fmt.Errorf("persisting message: %w", err)
	}
	return message, nil
}

// MarkDelivered sets the delivered flag. Re-applying is a no-op on the
// persisted state; callers may still emit their event again (at-least-once).
func (s *MessageService) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	return s.store.UpdateMessageFlag(ctx, id, domain.FlagDelivered)
}

// MarkSeen sets the seen flag, symmetric to MarkDelivered.
func (s *MessageService) MarkSeen(ctx context.Context, id uuid.UUID) error {
	return s.store.UpdateMessageFlag(ctx, id, domain.FlagSeen)
}
