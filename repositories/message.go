//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"livehub/domain"
)

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	RecentAscending(roomID string, limit int) ([]domain.Message, error)
	CountAfter(roomID string, after time.Time) (int, error)
	PurgeRoom(roomID string) error
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// diskMessage is the stored shape of a message. Timestamps are kept as
// UnixNano so the value round-trips without timezone surprises.
type diskMessage struct {
	ID         string `json:"id"`
	RoomID     string `json:"room_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Body       string `json:"body"`
	Kind       string `json:"kind"`
	At         int64  `json:"at"`
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	key := messageKey(message.RoomID, message.CreatedAt, message.ID)
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// RecentAscending returns the newest messages of a room, oldest first.
// Thanks to the padded timestamp in the key a reverse prefix scan yields the
// newest entries; the slice is flipped before returning so callers receive
// the store's delivery order.
func (m MessageRepository) RecentAscending(roomID string, limit int) ([]domain.Message, error) {
	var raw [][]byte
	prefix := []byte(fmt.Sprintf("msg:%s:", roomID))

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible timestamp, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, b := range raw {
		message, err := toMessage(b)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return lo.Reverse(messages), nil
}

// CountAfter counts the room's durable messages strictly newer than the given
// timestamp. This backs unread counts, so the comparison must stay exclusive.
func (m MessageRepository) CountAfter(roomID string, after time.Time) (int, error) {
	count := 0
	prefix := []byte(fmt.Sprintf("msg:%s:", roomID))
	seekKey := []byte(fmt.Sprintf("msg:%s:%019d", roomID, after.UnixNano()+1))

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// PurgeRoom removes the room's entire durable history. Used when the room
// itself is deleted, never by cache eviction.
func (m MessageRepository) PurgeRoom(roomID string) error {
	prefix := []byte(fmt.Sprintf("msg:%s:", roomID))

	var keys [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Info("Purging room history", "room_id", roomID, "messages", len(keys))
	wb := m.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func messageKey(roomID string, at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("msg:%s:%019d:%s", roomID, at.UnixNano(), id)
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:         message.ID.String(),
		RoomID:     message.RoomID,
		SenderID:   message.SenderID,
		SenderName: message.SenderName,
		Body:       message.Body,
		Kind:       string(message.Kind),
		At:         message.CreatedAt.UnixNano(),
	}
}

func toMessage(value []byte) (domain.Message, error) {
	var dm diskMessage
	if err := json.Unmarshal(value, &dm); err != nil {
		return domain.Message{}, err
	}
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:         parsedID,
		RoomID:     dm.RoomID,
		SenderID:   dm.SenderID,
		SenderName: dm.SenderName,
		Body:       dm.Body,
		Kind:       domain.Kind(dm.Kind),
		CreatedAt:  time.Unix(0, dm.At).UTC(),
	}, nil
}
