// Package event defines the facts the system publishes on the internal bus.
// Events have no persisted identity; they exist only for the duration of
// dispatch. Every payload is statically typed so each consumer knows exactly
// what it receives.
package event

import (
	"time"

	"livehub/domain"
)

// Kind discriminates fact types; the bus keeps one topic per kind.
type Kind string

const (
	KindMessagePosted         Kind = "message-posted"
	KindFriendRequestSent     Kind = "friend-request-sent"
	KindFriendRequestAnswered Kind = "friend-request-answered"
	KindRoomInvitation        Kind = "room-invitation"
	KindUnreadCountChanged    Kind = "unread-count-changed"
	KindPresenceChanged       Kind = "presence-changed"
	KindFriendListChanged     Kind = "friend-list-changed"
)

type DomainEvent interface {
	Kind() Kind
}

// MessagePosted is published after a message has been durably appended.
// Subscribers fan it out to sockets, buffers, and the search index.
type MessagePosted struct {
	Message domain.Message
}

func (MessagePosted) Kind() Kind { return KindMessagePosted }

type FriendRequestSent struct {
	RequestID string
	From      string
	FromName  string
	To        string
	At        time.Time
}

func (FriendRequestSent) Kind() Kind { return KindFriendRequestSent }

type FriendRequestAnswered struct {
	RequestID string
	From      string
	To        string
	Accepted  bool
	At        time.Time
}

func (FriendRequestAnswered) Kind() Kind { return KindFriendRequestAnswered }

type RoomInvitation struct {
	RoomID   string
	RoomName string
	From     string
	To       string
	At       time.Time
}

func (RoomInvitation) Kind() Kind { return KindRoomInvitation }

type UnreadCountChanged struct {
	UserID string
	RoomID string
	Count  int
}

func (UnreadCountChanged) Kind() Kind { return KindUnreadCountChanged }

type PresenceChanged struct {
	UserID      string
	DisplayName string
	Online      bool
	At          time.Time
}

func (PresenceChanged) Kind() Kind { return KindPresenceChanged }

type FriendListChanged struct {
	UserID string
	At     time.Time
}

func (FriendListChanged) Kind() Kind { return KindFriendListChanged }
