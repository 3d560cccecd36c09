package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"livehub/contract"
	"livehub/domain/event"
	"livehub/observability"
	"livehub/repositories"
	"livehub/runtime"
	"livehub/services"
)

// Hub is the fan-out center: it tracks live sessions, implements the
// outbound surface other modules call (send to user, broadcast to room),
// and consumes bus facts to turn them into frames on the right sockets.
//
// Online delivery reads only in-memory structures; the sole durable read on
// the fan-out path is the room member list, and that happens on the bus
// worker goroutine, never on the message write path.
type Hub struct {
	log         *slog.Logger
	registry    *runtime.Registry
	index       *runtime.MembershipIndex
	memberships repositories.IMembershipRepository
	buffer      *runtime.OfflineBuffer
	readStates  *services.ReadStateService
	directory   contract.Directory
	bus         contract.IBus
	stats       *observability.Stats

	mu     sync.RWMutex
	byConn map[string]*Session
	byUser map[string]map[string]*Session
}

func NewHub(
	log *slog.Logger,
	registry *runtime.Registry,
	index *runtime.MembershipIndex,
	memberships repositories.IMembershipRepository,
	buffer *runtime.OfflineBuffer,
	readStates *services.ReadStateService,
	directory contract.Directory,
	bus contract.IBus,
	stats *observability.Stats,
) *Hub {
	return &Hub{
		log:         log,
		registry:    registry,
		index:       index,
		memberships: memberships,
		buffer:      buffer,
		readStates:  readStates,
		directory:   directory,
		bus:         bus,
		stats:       stats,
		byConn:      make(map[string]*Session),
		byUser:      make(map[string]map[string]*Session),
	}
}

// attach wires an authenticated session in. The order is the reconnect
// contract: flush the offline backlog first, then rebuild the membership
// index from durable truth, then push recomputed unread counts. Read state
// from before the disconnect is never trusted.
func (h *Hub) attach(s *Session) {
	_, wasOffline := h.registry.Register(s.userID, s.id, s.displayName)
	h.stats.IncrConnectionsOpened()

	h.mu.Lock()
	h.byConn[s.id] = s
	if h.byUser[s.userID] == nil {
		h.byUser[s.userID] = make(map[string]*Session)
	}
	h.byUser[s.userID][s.id] = s
	h.mu.Unlock()

	backlog := h.buffer.Drain(s.userID)
	for i, frame := range backlog {
		if !s.EnqueueBlocking(frame) {
			// The session died mid-replay; keep the rest for the next attach.
			for _, rest := range backlog[i:] {
				h.buffer.Push(s.userID, rest)
			}
			break
		}
	}

	rooms, err := h.memberships.RoomsOf(s.userID)
	if err != nil {
		// The index self-heals on the next attach; online fan-out for this
		// user degrades until then.
		h.log.Error("Membership restore failed", "user_id", s.userID, "error", err)
	}
	for _, roomID := range rooms {
		h.index.Add(roomID, s.userID)

		count, err := h.readStates.UnreadCount(s.userID, roomID)
		if err != nil {
			h.log.Warn("Unread resync failed", "user_id", s.userID, "room_id", roomID, "error", err)
			continue
		}
		// Still the attach burst: the queue may be full of backlog, so this
		// must not count as slow-consumer pressure either.
		if frame, err := NewFrame(TypeUnread, UnreadPayload{RoomID: roomID, Count: count}); err == nil {
			s.EnqueueBlocking(frame)
		}
	}

	if wasOffline {
		h.bus.Publish(event.PresenceChanged{
			UserID:      s.userID,
			DisplayName: s.displayName,
			Online:      true,
			At:          time.Now().UTC(),
		})
	}
	h.log.Info("Session attached", "conn_id", s.id, "user_id", s.userID)
}

// flushReadState performs the implicit mark-read of session teardown: time
// spent connected counts as read, for every room the user is in.
func (h *Hub) flushReadState(userID string) {
	now := time.Now().UTC()
	for _, roomID := range h.index.RoomsOf(userID) {
		if _, err := h.readStates.MarkRead(userID, roomID, now); err != nil {
			h.log.Warn("Implicit mark-read failed", "user_id", userID, "room_id", roomID, "error", err)
		}
	}
}

// detach removes a closed session and publishes the offline edge when it was
// the user's last connection.
func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	delete(h.byConn, s.id)
	if conns := h.byUser[s.userID]; conns != nil {
		delete(conns, s.id)
		if len(conns) == 0 {
			delete(h.byUser, s.userID)
		}
	}
	h.mu.Unlock()

	ok, nowOffline := h.registry.Unregister(s.id)
	if !ok {
		return
	}
	h.stats.IncrConnectionsClosed()

	if nowOffline != "" {
		h.bus.Publish(event.PresenceChanged{
			UserID:      s.userID,
			DisplayName: s.displayName,
			Online:      false,
			At:          time.Now().UTC(),
		})
	}
	h.log.Info("Session detached", "conn_id", s.id, "user_id", s.userID)
}

func (h *Hub) sessionsOf(userID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := make([]*Session, 0, len(h.byUser[userID]))
	for _, s := range h.byUser[userID] {
		sessions = append(sessions, s)
	}
	return sessions
}

// SendToUser delivers a frame to every live connection of a user, or queues
// it in the offline buffer when there is none. A connection that cannot
// accept the frame gets it buffered too; that connection is already closing.
func (h *Hub) SendToUser(userID string, payload []byte) {
	sessions := h.sessionsOf(userID)
	if len(sessions) == 0 {
		if h.buffer.Push(userID, payload) {
			h.log.Debug("Offline buffer full, oldest frame dropped", "user_id", userID)
		}
		h.stats.IncrFramesBuffered()
		return
	}
	for _, s := range sessions {
		if !s.Enqueue(payload) {
			h.buffer.Push(userID, payload)
			h.stats.IncrFramesBuffered()
		}
	}
}

// BroadcastToRoom fans a frame out to the room's members as known by the
// in-memory index. Best-effort: no durable lookup, no error.
func (h *Hub) BroadcastToRoom(roomID string, payload []byte) {
	for _, userID := range h.index.MembersOf(roomID) {
		h.SendToUser(userID, payload)
	}
}

// Consume turns bus facts into outbound frames. Runs on the bus worker
// goroutine, so the durable member-list read for message fan-out stays off
// the write path.
func (h *Hub) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePosted:
		return h.fanoutMessage(evt)

	case event.UnreadCountChanged:
		frame, err := NewFrame(TypeUnread, UnreadPayload{RoomID: evt.RoomID, Count: evt.Count})
		if err != nil {
			return err
		}
		h.SendToUser(evt.UserID, frame)
		return nil

	case event.PresenceChanged:
		return h.fanoutPresence(evt)

	case event.FriendRequestSent:
		return h.notify(evt.To, e)
	case event.FriendRequestAnswered:
		return h.notify(evt.From, e)
	case event.RoomInvitation:
		return h.notify(evt.To, e)
	case event.FriendListChanged:
		return h.notify(evt.UserID, e)

	default:
		h.log.Debug(fmt.Sprintf("Not implemented event : %v", evt))
		return nil
	}
}

// fanoutMessage delivers a posted message to every member of its room,
// buffering for the offline ones. Membership comes from the durable
// relation so members who never connected to this process still get their
// backlog.
func (h *Hub) fanoutMessage(evt event.MessagePosted) error {
	frame, err := NewFrame(TypeMessage, toMessagePayload(evt.Message))
	if err != nil {
		return err
	}
	members, err := h.memberships.MembersOf(evt.Message.RoomID)
	if err != nil {
		return err
	}
	for _, userID := range members {
		h.SendToUser(userID, frame)
	}
	return nil
}

// fanoutPresence tells a user's friends they came or went. Blocked pairs
// are skipped in both directions.
func (h *Hub) fanoutPresence(evt event.PresenceChanged) error {
	frame, err := NewFrame(TypePresence, PresencePayload{
		UserID:      evt.UserID,
		DisplayName: evt.DisplayName,
		Online:      evt.Online,
	})
	if err != nil {
		return err
	}

	friends, err := h.directory.GetFriendIds(evt.UserID)
	if err != nil {
		return err
	}
	for _, friendID := range friends {
		blocked, err := h.directory.IsBlocked(evt.UserID, friendID)
		if err != nil {
			h.log.Warn("Blocked lookup failed", "user_id", evt.UserID, "friend_id", friendID, "error", err)
			continue
		}
		if blocked {
			continue
		}
		if h.registry.IsOnline(friendID) {
			h.SendToUser(friendID, frame)
		}
	}
	return nil
}

// notify forwards a social fact to its target user as a notification frame.
func (h *Hub) notify(userID string, e event.DomainEvent) error {
	frame, err := NewFrame(TypeNotification, NotificationPayload{
		Kind: string(e.Kind()),
		Data: e,
	})
	if err != nil {
		return err
	}
	h.SendToUser(userID, frame)
	return nil
}
