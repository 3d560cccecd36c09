//go:generate go run go.uber.org/mock/mockgen -source=readstate.go -destination=../mocks/mock_readstate_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"livehub/domain"
)

type IReadStateRepository interface {
	Get(userID, roomID string) (domain.ReadState, error)
	MarkRead(userID, roomID string, at time.Time) (domain.ReadState, bool, error)
	Delete(userID, roomID string) error
}

type ReadStateRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewReadStateRepository(db *badger.DB, log *slog.Logger) ReadStateRepository {
	return ReadStateRepository{db: db, log: log}
}

type diskReadState struct {
	UserID    string `json:"user_id"`
	RoomID    string `json:"room_id"`
	LastRead  int64  `json:"last_read"`
	UpdatedAt int64  `json:"updated_at"`
}

// Get returns the marker for a (user, room) pair. A pair that was never
// marked yields the zero marker, under which every message counts as unread.
func (r ReadStateRepository) Get(userID, roomID string) (domain.ReadState, error) {
	state := domain.ReadState{UserID: userID, RoomID: roomID}
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(readKey(userID, roomID)))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			parsed, err := toReadState(value)
			if err != nil {
				return err
			}
			state = parsed
			return nil
		})
	})
	return state, err
}

// MarkRead advances the marker to at. The marker is monotonic: an older or
// equal timestamp leaves the stored state untouched and reports moved=false.
// Read-modify-write runs inside one Update transaction so concurrent marks
// from two sessions of the same user cannot interleave.
func (r ReadStateRepository) MarkRead(userID, roomID string, at time.Time) (domain.ReadState, bool, error) {
	var (
		state domain.ReadState
		moved bool
	)
	err := r.db.Update(func(txn *badger.Txn) error {
		key := []byte(readKey(userID, roomID))
		current := domain.ReadState{UserID: userID, RoomID: roomID}

		item, err := txn.Get(key)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			verr := item.Value(func(value []byte) error {
				parsed, perr := toReadState(value)
				if perr != nil {
					return perr
				}
				current = parsed
				return nil
			})
			if verr != nil {
				return verr
			}
		}

		if !at.After(current.LastRead) {
			state = current
			return nil
		}

		state = domain.ReadState{
			UserID:    userID,
			RoomID:    roomID,
			LastRead:  at.UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		moved = true
		bytes, merr := json.Marshal(diskReadState{
			UserID:    state.UserID,
			RoomID:    state.RoomID,
			LastRead:  state.LastRead.UnixNano(),
			UpdatedAt: state.UpdatedAt.UnixNano(),
		})
		if merr != nil {
			return merr
		}
		return txn.Set(key, bytes)
	})
	return state, moved, err
}

// Delete removes the marker, typically when the user leaves the room.
func (r ReadStateRepository) Delete(userID, roomID string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(readKey(userID, roomID)))
	})
}

func readKey(userID, roomID string) string {
	return fmt.Sprintf("read:%s:%s", userID, roomID)
}

func toReadState(value []byte) (domain.ReadState, error) {
	var drs diskReadState
	if err := json.Unmarshal(value, &drs); err != nil {
		return domain.ReadState{}, err
	}
	return domain.ReadState{
		UserID:    drs.UserID,
		RoomID:    drs.RoomID,
		LastRead:  time.Unix(0, drs.LastRead).UTC(),
		UpdatedAt: time.Unix(0, drs.UpdatedAt).UTC(),
	}, nil
}
