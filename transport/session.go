package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle position of one connection. Transitions only move
// forward: CONNECTING → AUTHENTICATED → ACTIVE → CLOSING → CLOSED.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

const (
	maxFrameBytes     = 64 * 1024
	writeTimeout      = 10 * time.Second
	sendQueueCapacity = 256
)

// Session owns one live socket: its read/write pumps, its outbound queue,
// and the application-level heartbeat. Chat handling and pong processing
// never share a goroutine, so a slow handler cannot delay liveness.
type Session struct {
	id          string
	userID      string
	displayName string

	conn       *websocket.Conn
	hub        *Hub
	dispatcher *Dispatcher
	log        *slog.Logger

	heartbeatInterval time.Duration
	maxMissedPongs    int32

	state       atomic.Int32
	missedPongs atomic.Int32

	mu     sync.Mutex
	closed bool
	send   chan []byte
	done   chan struct{}

	closeOnce sync.Once
}

func newSession(
	id, userID, displayName string,
	conn *websocket.Conn,
	hub *Hub,
	dispatcher *Dispatcher,
	log *slog.Logger,
	heartbeatInterval time.Duration,
	maxMissedPongs int32,
) *Session {
	s := &Session{
		id:                id,
		userID:            userID,
		displayName:       displayName,
		conn:              conn,
		hub:               hub,
		dispatcher:        dispatcher,
		log:               log,
		heartbeatInterval: heartbeatInterval,
		maxMissedPongs:    maxMissedPongs,
		send:              make(chan []byte, sendQueueCapacity),
		done:              make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) ID() string          { return s.id }
func (s *Session) UserID() string      { return s.userID }
func (s *Session) DisplayName() string { return s.displayName }
func (s *Session) State() State        { return State(s.state.Load()) }

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Enqueue queues one outbound frame without blocking. Returns false when the
// session is closing or its queue is full; a full queue marks the consumer
// as too slow and closes the session, the caller re-routes the frame to the
// buffer.
func (s *Session) Enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		s.log.Warn("Send queue full, closing slow consumer",
			"conn_id", s.id, "user_id", s.userID)
		go s.Close()
		return false
	}
}

// EnqueueBlocking queues one outbound frame, waiting for queue room instead
// of treating pressure as slowness. This is the backlog replay path of
// attach: a reconnecting user can legitimately have more buffered frames
// than the queue holds, and the write pump is already draining them to the
// socket at that point. Returns false once the session is closing; frames
// already accepted stay queued.
func (s *Session) EnqueueBlocking(frame []byte) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	select {
	case s.send <- frame:
		return true
	case <-s.done:
		return false
	}
}

// PongReceived resets the heartbeat miss counter. Any pong counts.
func (s *Session) PongReceived() {
	s.missedPongs.Store(0)
}

// open starts the write pump and heartbeat. Called before attach so that
// backlog replay and resync frames already flow to the socket while attach
// is still in progress.
func (s *Session) open() {
	go s.writePump()
}

// run services the connection until it dies, blocking in the read pump.
func (s *Session) run(ctx context.Context) {
	s.setState(StateActive)
	s.readPump(ctx)
}

func (s *Session) readPump(ctx context.Context) {
	defer s.Close()

	s.conn.SetReadLimit(maxFrameBytes)
	readTimeout := s.heartbeatInterval * time.Duration(s.maxMissedPongs+2)
	_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Socket read failed", "conn_id", s.id, "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		s.dispatcher.Dispatch(ctx, s, raw)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				go s.Close()
				return
			}
			s.hub.stats.IncrFramesSent()

		case <-ticker.C:
			if s.missedPongs.Load() >= s.maxMissedPongs {
				// Half-open connection: the transport never errored but the
				// peer stopped answering. Treat as dead.
				s.log.Info("Heartbeat timed out, forcing close",
					"conn_id", s.id, "user_id", s.userID)
				s.hub.stats.IncrHeartbeatTimeouts()
				go s.Close()
				return
			}
			ping, err := NewFrame(TypePing, struct{}{})
			if err != nil {
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				go s.Close()
				return
			}
			s.missedPongs.Add(1)

		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close tears the session down exactly once; duplicate calls are no-ops.
// Order matters: read state is flushed durably first, then the heartbeat
// stops, then the registry drops the connection, so a presence-offline fact
// is only published after read state is safe.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)

		s.hub.flushReadState(s.userID)

		// The send channel is never closed; the write pump exits through done
		// and a blocked EnqueueBlocking unblocks the same way.
		s.mu.Lock()
		s.closed = true
		close(s.done)
		s.mu.Unlock()

		s.hub.detach(s)
		_ = s.conn.Close()
		s.setState(StateClosed)
	})
}
