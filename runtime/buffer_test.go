package runtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfflineBuffer_Drain_Returns_Arrival_Order(t *testing.T) {
	req := require.New(t)
	buffer := NewOfflineBuffer(10)

	req.False(buffer.Push("alice", []byte("first")))
	req.False(buffer.Push("alice", []byte("second")))

	frames := buffer.Drain("alice")
	req.Len(frames, 2)
	req.Equal("first", string(frames[0]))
	req.Equal("second", string(frames[1]))

	// Drain empties the backlog
	req.Zero(buffer.Pending("alice"))
	req.Empty(buffer.Drain("alice"))
}

func TestOfflineBuffer_Full_Drops_Oldest(t *testing.T) {
	req := require.New(t)
	buffer := NewOfflineBuffer(3)

	for i := 0; i < 5; i++ {
		buffer.Push("alice", []byte(fmt.Sprintf("frame-%d", i)))
	}

	frames := buffer.Drain("alice")
	req.Len(frames, 3)
	req.Equal("frame-2", string(frames[0]))
	req.Equal("frame-4", string(frames[2]))
	req.Equal(uint64(2), buffer.Dropped())
}

func TestOfflineBuffer_Users_Are_Isolated(t *testing.T) {
	req := require.New(t)
	buffer := NewOfflineBuffer(10)

	buffer.Push("alice", []byte("for alice"))
	buffer.Push("bob", []byte("for bob"))

	req.Equal(1, buffer.Pending("alice"))
	req.Equal(1, buffer.Pending("bob"))

	frames := buffer.Drain("alice")
	req.Len(frames, 1)
	req.Equal(1, buffer.Pending("bob"))
}
