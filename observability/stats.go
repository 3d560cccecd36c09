// Package observability aggregates runtime counters and periodically logs a
// health snapshot of the process. Counters are cheap atomics bumped from the
// hot paths; nothing here blocks message delivery.
package observability

import (
	"sync/atomic"
)

// Stats holds the live counters of the hub.
type Stats struct {
	connectionsOpened uint64
	connectionsClosed uint64
	messagesPosted    uint64
	framesSent        uint64
	framesBuffered    uint64
	heartbeatTimeouts uint64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) IncrConnectionsOpened() { atomic.AddUint64(&s.connectionsOpened, 1) }
func (s *Stats) IncrConnectionsClosed() { atomic.AddUint64(&s.connectionsClosed, 1) }
func (s *Stats) IncrMessagesPosted()    { atomic.AddUint64(&s.messagesPosted, 1) }
func (s *Stats) IncrFramesSent()        { atomic.AddUint64(&s.framesSent, 1) }
func (s *Stats) IncrFramesBuffered()    { atomic.AddUint64(&s.framesBuffered, 1) }
func (s *Stats) IncrHeartbeatTimeouts() { atomic.AddUint64(&s.heartbeatTimeouts, 1) }

// Snapshot is one consistent-enough read of all counters.
type Snapshot struct {
	ConnectionsOpened uint64
	ConnectionsClosed uint64
	MessagesPosted    uint64
	FramesSent        uint64
	FramesBuffered    uint64
	HeartbeatTimeouts uint64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsOpened: atomic.LoadUint64(&s.connectionsOpened),
		ConnectionsClosed: atomic.LoadUint64(&s.connectionsClosed),
		MessagesPosted:    atomic.LoadUint64(&s.messagesPosted),
		FramesSent:        atomic.LoadUint64(&s.framesSent),
		FramesBuffered:    atomic.LoadUint64(&s.framesBuffered),
		HeartbeatTimeouts: atomic.LoadUint64(&s.heartbeatTimeouts),
	}
}
