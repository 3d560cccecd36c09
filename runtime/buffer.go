package runtime

import (
	"sync"
)

// OfflineBuffer holds frames addressed to users who have no live connection.
// Each user gets a bounded FIFO: when the buffer is full the oldest frame is
// dropped, a user who stays away long enough loses the head of their backlog,
// never the tail. Drain empties and returns the backlog on reconnect.
type OfflineBuffer struct {
	mu      sync.Mutex
	bound   int
	byUser  map[string][][]byte
	dropped uint64
}

func NewOfflineBuffer(bound int) *OfflineBuffer {
	return &OfflineBuffer{
		bound:  bound,
		byUser: make(map[string][][]byte),
	}
}

// Push queues one frame for an offline user. Returns true when an older
// frame had to be dropped to make room.
func (b *OfflineBuffer) Push(userID string, frame []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := append(b.byUser[userID], frame)
	evicted := false
	if len(queue) > b.bound {
		queue = queue[1:]
		evicted = true
		b.dropped++
	}
	b.byUser[userID] = queue
	return evicted
}

// Drain removes and returns the user's backlog in arrival order.
func (b *OfflineBuffer) Drain(userID string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.byUser[userID]
	delete(b.byUser, userID)
	return queue
}

// Pending reports the user's current backlog size.
func (b *OfflineBuffer) Pending(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byUser[userID])
}

// Dropped reports how many frames have been evicted since startup.
func (b *OfflineBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
