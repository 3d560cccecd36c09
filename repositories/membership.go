//go:generate go run go.uber.org/mock/mockgen -source=membership.go -destination=../mocks/mock_membership_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"livehub/domain"
)

// IMembershipRepository is the authoritative room↔user relation.
// Authorization decisions read this store, never the in-memory index.
type IMembershipRepository interface {
	Add(membership domain.Membership) error
	Remove(roomID, userID string) error
	IsMember(roomID, userID string) (bool, error)
	RoomsOf(userID string) ([]string, error)
	MembersOf(roomID string) ([]string, error)
	All() ([]domain.Membership, error)
}

type MembershipRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMembershipRepository(db *badger.DB, log *slog.Logger) MembershipRepository {
	return MembershipRepository{db: db, log: log}
}

type diskMembership struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	JoinedAt int64  `json:"joined_at"`
}

// Add writes both directions of the relation in one transaction:
// "member:{room}:{user}" answers "who is in this room?" and
// "userroom:{user}:{room}" answers "which rooms is this user in?".
// Either both keys land or neither does.
func (m MembershipRepository) Add(membership domain.Membership) error {
	bytes, err := json.Marshal(diskMembership{
		RoomID:   membership.RoomID,
		UserID:   membership.UserID,
		JoinedAt: membership.JoinedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(memberKey(membership.RoomID, membership.UserID)), bytes); err != nil {
			return err
		}
		return txn.Set([]byte(userRoomKey(membership.UserID, membership.RoomID)), bytes)
	})
}

// Remove deletes both directions atomically. Removing an absent membership
// is not an error.
func (m MembershipRepository) Remove(roomID, userID string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(memberKey(roomID, userID))); err != nil {
			return err
		}
		return txn.Delete([]byte(userRoomKey(userID, roomID)))
	})
}

func (m MembershipRepository) IsMember(roomID, userID string) (bool, error) {
	found := false
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(memberKey(roomID, userID)))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (m MembershipRepository) RoomsOf(userID string) ([]string, error) {
	return m.scanSuffix(fmt.Sprintf("userroom:%s:", userID))
}

func (m MembershipRepository) MembersOf(roomID string) ([]string, error) {
	return m.scanSuffix(fmt.Sprintf("member:%s:", roomID))
}

// All returns every stored membership, used to warm the in-memory index at
// startup. One direction of the relation is enough.
func (m MembershipRepository) All() ([]domain.Membership, error) {
	var out []domain.Membership
	prefix := []byte("member:")
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var disk diskMembership
				if err := json.Unmarshal(val, &disk); err != nil {
					return err
				}
				out = append(out, domain.Membership{
					RoomID:   disk.RoomID,
					UserID:   disk.UserID,
					JoinedAt: time.Unix(0, disk.JoinedAt).UTC(),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// scanSuffix collects the trailing segment of every key under a prefix.
// Both key schemes put the looked-up identifier last, so one scan serves
// both directions.
func (m MembershipRepository) scanSuffix(prefix string) ([]string, error) {
	var out []string
	p := []byte(prefix)
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			key := string(it.Item().Key())
			out = append(out, strings.TrimPrefix(key, prefix))
		}
		return nil
	})
	return out, err
}

func memberKey(roomID, userID string) string {
	return fmt.Sprintf("member:%s:%s", roomID, userID)
}

func userRoomKey(userID, roomID string) string {
	return fmt.Sprintf("userroom:%s:%s", userID, roomID)
}
