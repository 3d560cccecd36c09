package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"livehub/errors"
	"livehub/repositories"
	"livehub/services"
)

// Error frame codes, one per error class.
const (
	CodeProtocol       = "protocol"
	CodeAuthorization  = "authorization"
	CodeInfrastructure = "infrastructure"
)

// replyTarget is the slice of a session the dispatcher needs: identity, an
// outbound queue, and the heartbeat reset hook.
type replyTarget interface {
	UserID() string
	DisplayName() string
	Enqueue(frame []byte) bool
	PongReceived()
}

// Dispatcher decodes inbound frames and routes them to the owning module.
// Every failure is answered with a targeted error frame to the sender only;
// no inbound frame ever closes the connection from here.
type Dispatcher struct {
	log         *slog.Logger
	chat        services.IChatService
	readStates  *services.ReadStateService
	memberships repositories.IMembershipRepository
	search      repositories.ISearchRepository
}

func NewDispatcher(
	log *slog.Logger,
	chat services.IChatService,
	readStates *services.ReadStateService,
	memberships repositories.IMembershipRepository,
	search repositories.ISearchRepository,
) *Dispatcher {
	return &Dispatcher{
		log:         log,
		chat:        chat,
		readStates:  readStates,
		memberships: memberships,
		search:      search,
	}
}

// Dispatch handles one raw inbound frame on behalf of a session.
func (d *Dispatcher) Dispatch(ctx context.Context, sess replyTarget, raw []byte) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		sess.Enqueue(ErrorFrame(CodeProtocol, "", "malformed frame"))
		return
	}

	switch frame.Type {
	case TypeChat:
		d.handleChat(sess, frame)
	case TypeSync:
		d.handleSync(sess, frame)
	case TypeRead:
		d.handleRead(sess, frame)
	case TypeSearch:
		d.handleSearch(ctx, sess, frame)
	case TypePing:
		d.handlePing(sess, frame)
	case TypePong:
		sess.PongReceived()
	default:
		d.log.Debug("Unknown frame type", "type", frame.Type, "user_id", sess.UserID())
		sess.Enqueue(ErrorFrame(CodeProtocol, frame.ID,
			fmt.Sprintf("%s : %s", errors.ErrUnknownFrameType, frame.Type)))
	}
}

func (d *Dispatcher) handleChat(sess replyTarget, frame Frame) {
	var payload ChatPayload
	if err := decodePayload(frame, &payload); err != nil {
		sess.Enqueue(ErrorFrame(CodeProtocol, frame.ID, "chat frame requires room_id and body"))
		return
	}

	_, err := d.chat.PostMessage(services.PostMessageCommand{
		RoomID:     payload.RoomID,
		SenderID:   sess.UserID(),
		SenderName: sess.DisplayName(),
		Body:       payload.Body,
		Attachment: payload.Hint,
	})
	if err != nil {
		d.replyError(sess, frame, err)
		return
	}
	// Delivery to the room, sender included, rides the message-posted fact.
}

// handleSync answers with a room snapshot and advances the requester's read
// marker to the snapshot instant: what the client is about to render counts
// as seen.
func (d *Dispatcher) handleSync(sess replyTarget, frame Frame) {
	var payload SyncPayload
	if err := decodePayload(frame, &payload); err != nil {
		sess.Enqueue(ErrorFrame(CodeProtocol, frame.ID, "sync frame requires room_id"))
		return
	}

	limit := payload.Limit
	if limit <= 0 {
		limit = 50
	}
	messages, err := d.chat.RoomHistory(sess.UserID(), payload.RoomID, limit)
	if err != nil {
		d.replyError(sess, frame, err)
		return
	}
	members, err := d.memberships.MembersOf(payload.RoomID)
	if err != nil {
		d.replyError(sess, frame, err)
		return
	}
	unread, err := d.readStates.MarkRead(sess.UserID(), payload.RoomID, time.Now().UTC())
	if err != nil {
		d.replyError(sess, frame, err)
		return
	}

	reply, err := NewFrame(TypeSnapshot, SnapshotPayload{
		RoomID:   payload.RoomID,
		Messages: toMessagePayloads(messages),
		Members:  members,
		Unread:   unread,
	})
	if err != nil {
		d.replyError(sess, frame, err)
		return
	}
	sess.Enqueue(reply)
}

func (d *Dispatcher) handleRead(sess replyTarget, frame Frame) {
	var payload ReadPayload
	if err := decodePayload(frame, &payload); err != nil {
		sess.Enqueue(ErrorFrame(CodeProtocol, frame.ID, "read frame requires room_id and timestamp"))
		return
	}

	at := time.UnixMilli(payload.Timestamp).UTC()
	count, err := d.readStates.MarkRead(sess.UserID(), payload.RoomID, at)
	if err != nil {
		d.replyError(sess, frame, err)
		return
	}

	reply, err := NewFrame(TypeUnread, UnreadPayload{RoomID: payload.RoomID, Count: count})
	if err != nil {
		d.replyError(sess, frame, err)
		return
	}
	sess.Enqueue(reply)
}

func (d *Dispatcher) handleSearch(ctx context.Context, sess replyTarget, frame Frame) {
	var payload SearchPayload
	if err := decodePayload(frame, &payload); err != nil {
		sess.Enqueue(ErrorFrame(CodeProtocol, frame.ID, "search frame requires room_id and query"))
		return
	}

	isMember, err := d.memberships.IsMember(payload.RoomID, sess.UserID())
	if err != nil {
		d.replyError(sess, frame, err)
		return
	}
	if !isMember {
		d.replyError(sess, frame, errors.ErrNotAMember)
		return
	}

	limit := payload.Limit
	if limit <= 0 {
		limit = 20
	}
	hits, total, err := d.search.Search(ctx, payload.RoomID, payload.Query, limit)
	if err != nil {
		d.replyError(sess, frame, err)
		return
	}

	results := make([]MessagePayload, 0, len(hits))
	for _, hit := range hits {
		results = append(results, hitToMessagePayload(hit))
	}
	reply, err := NewFrame(TypeSearchResult, SearchResultPayload{
		RoomID: payload.RoomID,
		Query:  payload.Query,
		Total:  total,
		Hits:   results,
	})
	if err != nil {
		d.replyError(sess, frame, err)
		return
	}
	sess.Enqueue(reply)
}

func (d *Dispatcher) handlePing(sess replyTarget, frame Frame) {
	latency := time.Now().UnixMilli() - frame.Timestamp
	if latency < 0 {
		latency = 0
	}
	reply, err := NewFrame(TypePong, PongPayload{EchoID: frame.ID, LatencyMs: latency})
	if err != nil {
		return
	}
	sess.Enqueue(reply)
}

func (d *Dispatcher) replyError(sess replyTarget, frame Frame, err error) {
	code := CodeInfrastructure
	if stderrors.Is(err, errors.ErrNotAMember) {
		code = CodeAuthorization
		d.log.Info("Rejected frame from non-member",
			"type", frame.Type, "user_id", sess.UserID())
	} else {
		d.log.Warn("Frame handling failed", "type", frame.Type, "error", err)
	}
	sess.Enqueue(ErrorFrame(code, frame.ID, err.Error()))
}
