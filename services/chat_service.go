package services

import (
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"livehub/domain"
	"livehub/errors"
	"livehub/moderation"
	"livehub/repositories"
	"livehub/runtime"
)

type PostMessageCommand struct {
	RoomID     string
	SenderID   string
	SenderName string
	Body       string
	// Attachment carries the leading bytes of an uploaded payload, used only
	// to sniff the message kind. Nil means plain text.
	Attachment []byte
}

type IChatService interface {
	PostMessage(cmd PostMessageCommand) (domain.Message, error)
	RoomHistory(userID, roomID string, limit int) ([]domain.Message, error)
	JoinRoom(roomID, userID string) error
	LeaveRoom(roomID, userID string) error
	DeleteRoom(roomID string) error
}

// ChatService is the write path of the room subsystem. Authorization is
// fail-closed: the durable membership relation decides, and any storage
// error rejects the post rather than letting it through.
type ChatService struct {
	log         *slog.Logger
	memberships repositories.IMembershipRepository
	index       *runtime.MembershipIndex
	store       IMessageStore
	readStates  *ReadStateService
	moderator   moderation.Moderator
}

func NewChatService(
	log *slog.Logger,
	memberships repositories.IMembershipRepository,
	index *runtime.MembershipIndex,
	store IMessageStore,
	readStates *ReadStateService,
	moderator moderation.Moderator,
) *ChatService {
	return &ChatService{
		log:         log,
		memberships: memberships,
		index:       index,
		store:       store,
		readStates:  readStates,
		moderator:   moderator,
	}
}

// PostMessage validates membership, censors the body, then hands the message
// to the store, which stamps, appends and publishes it atomically per room.
// The published message is the censored one; the raw body never leaves this
// method.
func (s *ChatService) PostMessage(cmd PostMessageCommand) (domain.Message, error) {
	isMember, err := s.memberships.IsMember(cmd.RoomID, cmd.SenderID)
	if err != nil {
		return domain.Message{}, err
	}
	if !isMember {
		return domain.Message{}, errors.ErrNotAMember
	}

	censored, matched := s.moderator.Censor(cmd.Body)
	if len(matched) > 0 {
		s.log.Info("Message censored",
			"room_id", cmd.RoomID, "sender_id", cmd.SenderID, "words", len(matched))
	}

	info := whatlanggo.Detect(censored)
	s.log.Debug("Message language detected",
		"room_id", cmd.RoomID, "lang", info.Lang.Iso6391())

	return s.store.AppendAndPublish(domain.Message{
		ID:         uuid.New(),
		RoomID:     cmd.RoomID,
		SenderID:   cmd.SenderID,
		SenderName: cmd.SenderName,
		Body:       censored,
		Kind:       domain.KindFromHint(cmd.Attachment),
	})
}

// RoomHistory returns the newest messages of a room for a member, oldest
// first. Non-members get nothing, not even cached entries.
func (s *ChatService) RoomHistory(userID, roomID string, limit int) ([]domain.Message, error) {
	isMember, err := s.memberships.IsMember(roomID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, errors.ErrNotAMember
	}
	return s.store.Recent(roomID, limit)
}

// JoinRoom records the membership durably and mirrors it into the index.
func (s *ChatService) JoinRoom(roomID, userID string) error {
	err := s.memberships.Add(domain.Membership{
		RoomID:   roomID,
		UserID:   userID,
		JoinedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	s.index.Add(roomID, userID)
	return nil
}

// LeaveRoom removes the membership everywhere, including the user's
// read-state marker for the room.
func (s *ChatService) LeaveRoom(roomID, userID string) error {
	if err := s.memberships.Remove(roomID, userID); err != nil {
		return err
	}
	s.index.Remove(roomID, userID)
	return s.readStates.Forget(userID, roomID)
}

// DeleteRoom purges history and drops every membership of the room.
func (s *ChatService) DeleteRoom(roomID string) error {
	members, err := s.memberships.MembersOf(roomID)
	if err != nil {
		return err
	}
	for _, userID := range members {
		if err := s.memberships.Remove(roomID, userID); err != nil {
			return err
		}
		if err := s.readStates.Forget(userID, roomID); err != nil {
			return err
		}
	}
	s.index.DropRoom(roomID)
	return s.store.PurgeRoom(roomID)
}
