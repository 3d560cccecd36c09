package services

import (
	"log/slog"
	"time"

	"livehub/contract"
	"livehub/domain/event"
	"livehub/repositories"
)

// ReadStateService sits between the transport and the read-state markers.
// It enforces monotonic mark-read, recomputes unread counts against the
// durable store, and publishes the count change so every session of the
// user converges.
type ReadStateService struct {
	log      *slog.Logger
	states   repositories.IReadStateRepository
	messages IMessageStore
	bus      contract.IBus
}

func NewReadStateService(
	log *slog.Logger,
	states repositories.IReadStateRepository,
	messages IMessageStore,
	bus contract.IBus,
) *ReadStateService {
	return &ReadStateService{log: log, states: states, messages: messages, bus: bus}
}

// MarkRead advances the (user, room) marker to at and returns the unread
// count under the resulting marker. A stale timestamp changes nothing and
// publishes nothing.
func (s *ReadStateService) MarkRead(userID, roomID string, at time.Time) (int, error) {
	state, moved, err := s.states.MarkRead(userID, roomID, at)
	if err != nil {
		return 0, err
	}

	count, err := s.messages.CountAfter(roomID, state.LastRead)
	if err != nil {
		return 0, err
	}

	if moved {
		s.bus.Publish(event.UnreadCountChanged{UserID: userID, RoomID: roomID, Count: count})
	} else {
		s.log.Debug("Stale mark-read ignored", "user_id", userID, "room_id", roomID)
	}
	return count, nil
}

// UnreadCount computes the user's unread count for one room from the stored
// marker. A room never marked yields the full durable history count.
func (s *ReadStateService) UnreadCount(userID, roomID string) (int, error) {
	state, err := s.states.Get(userID, roomID)
	if err != nil {
		return 0, err
	}
	return s.messages.CountAfter(roomID, state.LastRead)
}

// Forget drops the marker, used when the user leaves the room.
func (s *ReadStateService) Forget(userID, roomID string) error {
	return s.states.Delete(userID, roomID)
}
