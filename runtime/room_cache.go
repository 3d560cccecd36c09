package runtime

import (
	"sync"

	"github.com/google/uuid"

	"livehub/domain"
)

// RoomCache keeps the most recent messages of each room in memory so the
// common "open a room" read never hits disk. Each room holds at most bound
// messages; appending past the bound evicts the oldest cache entries only,
// durable history is untouched.
//
// Rooms are locked independently, a burst in one room does not serialize
// reads in another.
type RoomCache struct {
	mu    sync.RWMutex
	bound int
	rooms map[string]*roomEntries
}

type roomEntries struct {
	mu       sync.RWMutex
	messages []domain.Message
	seen     map[uuid.UUID]struct{}
}

func NewRoomCache(bound int) *RoomCache {
	return &RoomCache{
		bound: bound,
		rooms: make(map[string]*roomEntries),
	}
}

func (c *RoomCache) room(roomID string) *roomEntries {
	c.mu.RLock()
	entry, ok := c.rooms[roomID]
	c.mu.RUnlock()
	if ok {
		return entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok = c.rooms[roomID]; ok {
		return entry
	}
	entry = &roomEntries{seen: make(map[uuid.UUID]struct{})}
	c.rooms[roomID] = entry
	return entry
}

// Append adds one message at the tail, evicting from the head once the room
// is full. A message id already present is skipped so replays and reloads
// cannot duplicate entries.
func (c *RoomCache) Append(message domain.Message) {
	entry := c.room(message.RoomID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if _, dup := entry.seen[message.ID]; dup {
		return
	}
	entry.seen[message.ID] = struct{}{}
	entry.messages = append(entry.messages, message)

	if len(entry.messages) > c.bound {
		evicted := entry.messages[0]
		delete(entry.seen, evicted.ID)
		entry.messages = entry.messages[1:]
	}
}

// Recent returns up to limit of the room's newest cached messages, oldest
// first. limit <= 0 means the whole cached window.
func (c *RoomCache) Recent(roomID string, limit int) []domain.Message {
	entry := c.room(roomID)
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	messages := entry.messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	out := make([]domain.Message, len(messages))
	copy(out, messages)
	return out
}

// Len reports how many messages the room currently caches.
func (c *RoomCache) Len(roomID string) int {
	entry := c.room(roomID)
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return len(entry.messages)
}

// Drop forgets a room entirely. Used when the room is deleted.
func (c *RoomCache) Drop(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}
