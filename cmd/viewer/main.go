package main

import (
	"chat-relay/domain"
	"chat-relay/internal"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// viewer dumps the persisted messages of one room (or all rooms) as a table.
// Usage: viewer [roomId]
func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Open Badger in read-only mode.
	// BypassLockGuard allows opening while the server holds the lock.
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repository := repositories.NewMessageRepository(db, slog.Default())
	ctx := context.Background()

	var rooms []domain.RoomID
	if len(os.Args) > 1 {
		rooms = []domain.RoomID{domain.RoomID(os.Args[1])}
	} else {
		rooms, err = listRooms(db)
		if err != nil {
			log.Fatalf("Failed to list rooms: %v", err)
		}
	}

	for _, roomID := range rooms {
		messages, err := repository.GetRoomMessages(ctx, roomID)
		if err != nil {
			log.Fatalf("Failed to read room %s: %v", roomID, err)
		}

		fmt.Printf("\nRoom %q (%d messages)\n", roomID, len(messages))
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Sender", "Text", "Delivered", "Seen", "Created At"})
		for _, m := range messages {
			table.Append([]string{
				m.ID.String()[:8],
				m.SenderID,
				m.Text,
				fmt.Sprintf("%t", m.Delivered),
				fmt.Sprintf("%t", m.Seen),
				m.CreatedAt.Format(time.RFC3339),
			})
		}
		table.Render()
	}
}

// listRooms scans the message keyspace and collects the distinct room ids
// from the "msg:{room}:{timestamp}:{uuid}" keys.
func listRooms(db *badger.DB) ([]domain.RoomID, error) {
	seen := make(map[domain.RoomID]struct{})
	err := db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte("msg:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			// msg:{room}:{19-digit timestamp}:{uuid}
			rest := key[len(prefix):]
			if idx := lastRoomSeparator(rest); idx > 0 {
				seen[domain.RoomID(rest[:idx])] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Keys(seen), nil
}

// lastRoomSeparator finds the colon before the timestamp segment, scanning
// from the end so room ids containing colons keep working: the final two
// segments are always fixed-shape (19 digits, then a uuid).
func lastRoomSeparator(rest string) int {
	// strip ":{uuid}" (36 chars) and ":{timestamp}" (19 digits)
	const tail = 1 + 36 + 1 + 19
	if len(rest) <= tail {
		return -1
	}
	return len(rest) - tail
}
