package services

import (
	"log/slog"
	"sync"
	"time"

	"livehub/contract"
	"livehub/domain"
	"livehub/domain/event"
	"livehub/repositories"
	"livehub/runtime"
)

type IMessageStore interface {
	Append(message domain.Message) error
	AppendAndPublish(message domain.Message) (domain.Message, error)
	Recent(roomID string, limit int) ([]domain.Message, error)
	CountAfter(roomID string, after time.Time) (int, error)
	PurgeRoom(roomID string) error
}

// MessageStore is the write-through message layer: every append lands in the
// durable store first, then in the bounded room cache. A reader therefore
// never sees a message that could be lost on restart.
//
// Writes are serialized per room, and for live posts the critical section
// spans timestamping, the durable write, the cache insert and the publish,
// so announce order always matches key order on disk. Different rooms
// proceed in parallel.
type MessageStore struct {
	log   *slog.Logger
	repo  repositories.IMessageRepository
	cache *runtime.RoomCache
	bus   contract.IBus

	mu        sync.Mutex
	roomLocks map[string]*sync.Mutex
}

func NewMessageStore(log *slog.Logger, repo repositories.IMessageRepository, cache *runtime.RoomCache, bus contract.IBus) *MessageStore {
	return &MessageStore{
		log:       log,
		repo:      repo,
		cache:     cache,
		bus:       bus,
		roomLocks: make(map[string]*sync.Mutex),
	}
}

func (s *MessageStore) roomLock(roomID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.roomLocks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		s.roomLocks[roomID] = lock
	}
	return lock
}

// Append stores one message durably and mirrors it into the cache, keeping
// the caller's timestamp and announcing nothing. This is the re-ingestion
// path for history that already happened. If the durable write fails the
// cache is left untouched and the error surfaces to the caller.
func (s *MessageStore) Append(message domain.Message) error {
	lock := s.roomLock(message.RoomID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.StoreMessage(message); err != nil {
		return err
	}
	s.cache.Append(message)
	return nil
}

// AppendAndPublish is the live post path: it stamps the message, stores it
// durably, mirrors it into the cache and publishes the posted fact, all
// inside the room's critical section. Two concurrent posts can therefore
// never announce themselves in the opposite order of their durable keys.
// Nothing is published for a message that failed to persist.
func (s *MessageStore) AppendAndPublish(message domain.Message) (domain.Message, error) {
	lock := s.roomLock(message.RoomID)
	lock.Lock()
	defer lock.Unlock()

	message.CreatedAt = time.Now().UTC()
	if err := s.repo.StoreMessage(message); err != nil {
		return domain.Message{}, err
	}
	s.cache.Append(message)
	s.bus.Publish(event.MessagePosted{Message: message})
	return message, nil
}

// Recent returns the newest messages of a room, oldest first. The cache only
// answers when its window covers the request; a narrower warm window falls
// through to the durable store, which widens the cache on the way out.
// limit <= 0 means the cached window as-is.
func (s *MessageStore) Recent(roomID string, limit int) ([]domain.Message, error) {
	cached := s.cache.Recent(roomID, limit)
	if limit <= 0 || len(cached) >= limit {
		return cached, nil
	}

	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	messages, err := s.repo.RecentAscending(roomID, limit)
	if err != nil {
		return nil, err
	}
	for _, message := range messages {
		s.cache.Append(message)
	}
	return messages, nil
}

// CountAfter counts durable messages strictly newer than the marker. Unread
// math always runs against the durable store, never the bounded cache.
func (s *MessageStore) CountAfter(roomID string, after time.Time) (int, error) {
	return s.repo.CountAfter(roomID, after)
}

// PurgeRoom drops the room's history from disk and memory.
func (s *MessageStore) PurgeRoom(roomID string) error {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.PurgeRoom(roomID); err != nil {
		return err
	}
	s.cache.Drop(roomID)
	return nil
}
