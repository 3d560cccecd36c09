package runtime

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"livehub/domain"
)

func cachedMessage(roomID, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		SenderID:  "alice",
		Body:      body,
		Kind:      domain.KindText,
		CreatedAt: at,
	}
}

func TestRoomCache_Append_Preserves_Order(t *testing.T) {
	req := require.New(t)
	cache := NewRoomCache(10)
	at := time.Now().UTC()

	for i := 0; i < 3; i++ {
		cache.Append(cachedMessage("general", fmt.Sprintf("msg-%d", i), at.Add(time.Duration(i)*time.Second)))
	}

	recent := cache.Recent("general", 0)
	req.Len(recent, 3)
	req.Equal("msg-0", recent[0].Body)
	req.Equal("msg-2", recent[2].Body)
}

func TestRoomCache_Evicts_Oldest_At_Bound(t *testing.T) {
	req := require.New(t)
	cache := NewRoomCache(3)
	at := time.Now().UTC()

	for i := 0; i < 5; i++ {
		cache.Append(cachedMessage("general", fmt.Sprintf("msg-%d", i), at.Add(time.Duration(i)*time.Second)))
	}

	// Then: only the three newest remain, oldest first
	recent := cache.Recent("general", 0)
	req.Len(recent, 3)
	req.Equal("msg-2", recent[0].Body)
	req.Equal("msg-4", recent[2].Body)
	req.Equal(3, cache.Len("general"))
}

func TestRoomCache_Duplicate_Id_Is_Skipped(t *testing.T) {
	req := require.New(t)
	cache := NewRoomCache(10)
	message := cachedMessage("general", "once", time.Now().UTC())

	cache.Append(message)
	cache.Append(message)

	req.Equal(1, cache.Len("general"))
}

func TestRoomCache_Recent_Limit_Returns_Newest(t *testing.T) {
	req := require.New(t)
	cache := NewRoomCache(10)
	at := time.Now().UTC()

	for i := 0; i < 5; i++ {
		cache.Append(cachedMessage("general", fmt.Sprintf("msg-%d", i), at.Add(time.Duration(i)*time.Second)))
	}

	recent := cache.Recent("general", 2)
	req.Len(recent, 2)
	req.Equal("msg-3", recent[0].Body)
	req.Equal("msg-4", recent[1].Body)
}

func TestRoomCache_Rooms_Are_Isolated(t *testing.T) {
	req := require.New(t)
	cache := NewRoomCache(2)
	at := time.Now().UTC()

	cache.Append(cachedMessage("a", "for a", at))
	cache.Append(cachedMessage("b", "for b", at))
	cache.Append(cachedMessage("b", "also b", at.Add(time.Second)))

	req.Equal(1, cache.Len("a"))
	req.Equal(2, cache.Len("b"))

	cache.Drop("b")
	req.Equal(0, cache.Len("b"))
	req.Equal(1, cache.Len("a"))
}
