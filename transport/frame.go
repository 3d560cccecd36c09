// Package transport owns the socket-facing half of the hub: the JSON frame
// protocol, the per-connection session state machine with its heartbeat, and
// the fan-out surface other modules use to reach connected users.
package transport

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"livehub/domain"
	"livehub/errors"
	"livehub/repositories"
)

// FrameVersion is the protocol revision stamped on every outbound frame.
const FrameVersion = "1"

// Inbound frame types.
const (
	TypeChat   = "chat"
	TypeSync   = "sync"
	TypeRead   = "read"
	TypeSearch = "search"
	TypePing   = "ping"
	TypePong   = "pong"
)

// Outbound frame types.
const (
	TypeMessage      = "message"
	TypeSnapshot     = "snapshot"
	TypeUnread       = "unread"
	TypePresence     = "presence"
	TypeSearchResult = "search-result"
	TypeNotification = "notification"
	TypeError        = "error"
)

// Frame is the wire envelope. Payload shape depends on Type.
type Frame struct {
	ID        string          `json:"id" validate:"required,uuid"`
	Timestamp int64           `json:"timestamp" validate:"required"` // unix millis
	Version   string          `json:"version" validate:"required"`
	Type      string          `json:"type" validate:"required"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type ChatPayload struct {
	RoomID string `json:"room_id" validate:"required"`
	Body   string `json:"body" validate:"required"`
	// Hint carries the leading bytes of an attachment, used to sniff the
	// message kind. Empty means plain text.
	Hint []byte `json:"hint,omitempty"`
}

type SyncPayload struct {
	RoomID string `json:"room_id" validate:"required"`
	Limit  int    `json:"limit"`
}

type ReadPayload struct {
	RoomID    string `json:"room_id" validate:"required"`
	Timestamp int64  `json:"timestamp" validate:"required"` // unix millis
}

type SearchPayload struct {
	RoomID string `json:"room_id" validate:"required"`
	Query  string `json:"query" validate:"required"`
	Limit  int    `json:"limit"`
}

type MessagePayload struct {
	MessageID  string `json:"message_id"`
	RoomID     string `json:"room_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Body       string `json:"body"`
	Kind       string `json:"kind"`
	CreatedAt  int64  `json:"created_at"` // unix millis
}

type SnapshotPayload struct {
	RoomID   string           `json:"room_id"`
	Messages []MessagePayload `json:"messages"`
	Members  []string         `json:"members"`
	Unread   int              `json:"unread"`
}

type UnreadPayload struct {
	RoomID string `json:"room_id"`
	Count  int    `json:"count"`
}

type PresencePayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Online      bool   `json:"online"`
}

type PongPayload struct {
	// EchoID is the id of the ping being answered.
	EchoID string `json:"echo_id"`
	// LatencyMs is how long the ping frame spent in flight and in queue,
	// computed from its timestamp.
	LatencyMs int64 `json:"latency_ms"`
}

type SearchResultPayload struct {
	RoomID string           `json:"room_id"`
	Query  string           `json:"query"`
	Total  uint64           `json:"total"`
	Hits   []MessagePayload `json:"hits"`
}

// NotificationPayload wraps a social fact (friend request, room invitation)
// for its target user. Data keeps the fact's own field names.
type NotificationPayload struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

type ErrorPayload struct {
	// Code is one of "protocol", "authorization", "infrastructure".
	Code string `json:"code"`
	// InReplyTo carries the offending frame's id when known.
	InReplyTo string `json:"in_reply_to,omitempty"`
	Message   string `json:"message"`
}

var validate = validator.New()

// DecodeFrame parses and validates one inbound envelope. The payload is left
// raw; each handler decodes and validates its own shape.
func DecodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, err
	}
	if err := validate.Struct(frame); err != nil {
		return Frame{}, errors.ErrMissingField
	}
	return frame, nil
}

func decodePayload(frame Frame, out any) error {
	if len(frame.Payload) == 0 {
		return errors.ErrMissingField
	}
	if err := json.Unmarshal(frame.Payload, out); err != nil {
		return err
	}
	if err := validate.Struct(out); err != nil {
		return errors.ErrMissingField
	}
	return nil
}

// NewFrame builds an outbound envelope around an already-marshalable payload.
func NewFrame(frameType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UnixMilli(),
		Version:   FrameVersion,
		Type:      frameType,
		Payload:   raw,
	})
}

// ErrorFrame builds the targeted error reply for one sender.
func ErrorFrame(code, inReplyTo, message string) []byte {
	frame, err := NewFrame(TypeError, ErrorPayload{Code: code, InReplyTo: inReplyTo, Message: message})
	if err != nil {
		return nil
	}
	return frame
}

func toMessagePayload(message domain.Message) MessagePayload {
	return MessagePayload{
		MessageID:  message.ID.String(),
		RoomID:     message.RoomID,
		SenderID:   message.SenderID,
		SenderName: message.SenderName,
		Body:       message.Body,
		Kind:       string(message.Kind),
		CreatedAt:  message.CreatedAt.UnixMilli(),
	}
}

func toMessagePayloads(messages []domain.Message) []MessagePayload {
	out := make([]MessagePayload, 0, len(messages))
	for _, message := range messages {
		out = append(out, toMessagePayload(message))
	}
	return out
}

func hitToMessagePayload(hit repositories.SearchHit) MessagePayload {
	return MessagePayload{
		MessageID:  hit.MessageID.String(),
		RoomID:     hit.RoomID,
		SenderName: hit.SenderName,
		Body:       hit.Body,
		Kind:       string(domain.KindText),
		CreatedAt:  hit.At.UnixMilli(),
	}
}
