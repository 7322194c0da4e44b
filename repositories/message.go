// Package repositories contains the BadgerDB-backed persistence collaborators.
package repositories

import (
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	messagePrefix = "msg:"
	indexPrefix   = "msgid:"
)

// DiskMessage is the stored representation of a message.
type DiskMessage struct {
	ID        uuid.UUID     `json:"id"`
	Room      domain.RoomID `json:"room"`
	Author    string        `json:"author"`
	Text      string        `json:"text"`
	Delivered bool          `json:"delivered"`
	Seen      bool          `json:"seen"`
	At        time.Time     `json:"at"`
}

// MessageRepository persists messages in BadgerDB.
//
// The primary key is "msg:{room_id}:{timestamp_padded}:{uuid}":
//  1. The 19-digit zero-padded nanosecond timestamp makes lexicographical
//     order match chronological order within a room prefix.
//  2. The UUID suffix disambiguates two messages landing on the same
//     nanosecond.
//
// A secondary key "msgid:{uuid}" holds the primary key so flag updates and
// deletes resolve a message id without scanning.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

func primaryKey(roomID domain.RoomID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", messagePrefix, roomID, at.UnixNano(), id))
}

func indexKey(id uuid.UUID) []byte {
	return []byte(indexPrefix + id.String())
}

// CreateMessage persists a new message with both lifecycle flags down.
func (m MessageRepository) CreateMessage(_ context.Context, senderID string, roomID domain.RoomID, text string) (domain.Message, error) {
	record := DiskMessage{
		ID:     uuid.New(),
		Room:   roomID,
		Author: senderID,
		Text:   text,
		At:     time.Now().UTC(),
	}
	bytes, err := json.Marshal(record)
	if err != nil {
		return domain.Message{}, err
	}

	key := primaryKey(record.Room, record.At, record.ID)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(record.ID), key)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return toDomainMessage(record), nil
}

// UpdateMessageFlag raises one monotonic flag. Raising an already-raised flag
// leaves the record untouched; an unknown id returns ErrMessageNotFound.
func (m MessageRepository) UpdateMessageFlag(_ context.Context, id uuid.UUID, flag domain.Flag) error {
	return m.db.Update(func(txn *badger.Txn) error {
		record, key, err := getByID(txn, id)
		if err != nil {
			return err
		}

		switch flag {
		case domain.FlagDelivered:
			if record.Delivered {
				return nil
			}
			record.Delivered = true
		case domain.FlagSeen:
			if record.Seen {
				return nil
			}
			record.Seen = true
		default:
			return apperrors.ErrUnknownFlag
		}

		bytes, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
}

// GetRoomMessages returns a room's messages in chronological order, relying
// on the padded timestamp in the key rather than sorting in memory.
func (m MessageRepository) GetRoomMessages(_ context.Context, roomID domain.RoomID) ([]domain.Message, error) {
	var records []DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix + string(roomID) + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			record, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(records, func(item DiskMessage, _ int) domain.Message {
		return toDomainMessage(item)
	}), nil
}

// GetUnseenMessages returns every unseen message addressed to the user (that
// is, not authored by them), newest first. Rooms interleave, so this one does
// sort in memory.
func (m MessageRepository) GetUnseenMessages(_ context.Context, userID string) ([]domain.Message, error) {
	var records []DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			record, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			if record.Seen || record.Author == userID {
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].At.After(records[j].At)
	})
	return lo.Map(records, func(item DiskMessage, _ int) domain.Message {
		return toDomainMessage(item)
	}), nil
}

// MarkRoomSeen raises the seen flag on every message in the room not sent by
// the user. Returns the number of records actually updated.
func (m MessageRepository) MarkRoomSeen(_ context.Context, roomID domain.RoomID, userID string) (int, error) {
	updated := 0
	err := m.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix + string(roomID) + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		type pending struct {
			key   []byte
			value []byte
		}
		var writes []pending

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			record, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			if record.Seen || record.Author == userID {
				continue
			}
			record.Seen = true
			bytes, err := json.Marshal(record)
			if err != nil {
				return err
			}
			writes = append(writes, pending{key: it.Item().KeyCopy(nil), value: bytes})
		}

		// Writes happen after the iterator closes; badger forbids mutating
		// keys under an open iterator in the same transaction.
		it.Close()
		for _, w := range writes {
			if err := txn.Set(w.key, w.value); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// DeleteMessage removes a message and its id index entry.
func (m MessageRepository) DeleteMessage(_ context.Context, id uuid.UUID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		_, key, err := getByID(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(indexKey(id))
	})
}

func getByID(txn *badger.Txn, id uuid.UUID) (DiskMessage, []byte, error) {
	item, err := txn.Get(indexKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return DiskMessage{}, nil, apperrors.ErrMessageNotFound
		}
		return DiskMessage{}, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return DiskMessage{}, nil, err
	}

	primary, err := txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return DiskMessage{}, nil, apperrors.ErrMessageNotFound
		}
		return DiskMessage{}, nil, err
	}
	record, err := decodeItem(primary)
	if err != nil {
		return DiskMessage{}, nil, err
	}
	return record, key, nil
}

func decodeItem(item *badger.Item) (DiskMessage, error) {
	var record DiskMessage
	err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &record)
	})
	return record, err
}

func toDomainMessage(record DiskMessage) domain.Message {
	return domain.Message{
		ID:        record.ID,
		SenderID:  record.Author,
		RoomID:    record.Room,
		Text:      record.Text,
		Delivered: record.Delivered,
		Seen:      record.Seen,
		CreatedAt: record.At,
	}
}
