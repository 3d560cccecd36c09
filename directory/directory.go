// Package directory answers the social questions the hub asks around a
// message: which rooms a user belongs to, who their friends are, and
// whether two users have blocked each other.
package directory

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"livehub/repositories"
)

type Store struct {
	db          *badger.DB
	memberships repositories.IMembershipRepository
	log         *slog.Logger
}

func NewStore(db *badger.DB, memberships repositories.IMembershipRepository, log *slog.Logger) *Store {
	return &Store{db: db, memberships: memberships, log: log}
}

// GetUserRooms delegates to the authoritative membership relation.
func (s *Store) GetUserRooms(userID string) ([]string, error) {
	return s.memberships.RoomsOf(userID)
}

// AddFriend writes the friendship in both directions atomically, friendship
// is symmetric here.
func (s *Store) AddFriend(userID, friendID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(friendKey(userID, friendID)), nil); err != nil {
			return err
		}
		return txn.Set([]byte(friendKey(friendID, userID)), nil)
	})
}

func (s *Store) RemoveFriend(userID, friendID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(friendKey(userID, friendID))); err != nil {
			return err
		}
		return txn.Delete([]byte(friendKey(friendID, userID)))
	})
}

func (s *Store) GetFriendIds(userID string) ([]string, error) {
	prefix := fmt.Sprintf("friend:%s:", userID)
	var friends []string
	p := []byte(prefix)
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			friends = append(friends, strings.TrimPrefix(string(it.Item().Key()), prefix))
		}
		return nil
	})
	return friends, err
}

// Block is directional: userID no longer wants to hear from otherID.
func (s *Store) Block(userID, otherID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(blockKey(userID, otherID)), nil)
	})
}

func (s *Store) Unblock(userID, otherID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(blockKey(userID, otherID)))
	})
}

// IsBlocked reports whether either side has blocked the other.
func (s *Store) IsBlocked(userID, otherID string) (bool, error) {
	blocked := false
	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range []string{blockKey(userID, otherID), blockKey(otherID, userID)} {
			_, err := txn.Get([]byte(key))
			if err == nil {
				blocked = true
				return nil
			}
			if err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
	return blocked, err
}

func friendKey(userID, friendID string) string {
	return fmt.Sprintf("friend:%s:%s", userID, friendID)
}

func blockKey(userID, otherID string) string {
	return fmt.Sprintf("block:%s:%s", userID, otherID)
}
