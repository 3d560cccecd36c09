// Package domain contains core concepts of the presence and messaging system.
// This file defines Message records and related rules.
// Messages are immutable once appended and deduplicated by ID, never by content.
package domain

import (
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Kind classifies a message body.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// Message represents an immutable chat record.
// Two messages may share a CreatedAt; ID is the only identity.
type Message struct {
	ID         uuid.UUID
	RoomID     string
	SenderID   string
	SenderName string
	Body       string
	Kind       Kind
	CreatedAt  time.Time
}

// KindFromHint resolves a message kind from a client-provided attachment hint,
// the leading bytes of the attachment payload. Detection relies on MIME
// sniffing so a renamed binary still classifies as a file, not as text.
// An empty hint means plain text.
func KindFromHint(hint []byte) Kind {
	if len(hint) == 0 {
		return KindText
	}

	detected := mimetype.Detect(hint)
	switch {
	case strings.HasPrefix(detected.String(), "image/"):
		return KindImage
	case strings.HasPrefix(detected.String(), "text/"):
		return KindText
	default:
		return KindFile
	}
}

// ValidKind reports whether the wire value names a supported message kind.
func ValidKind(k string) bool {
	switch Kind(k) {
	case KindText, KindImage, KindFile:
		return true
	}
	return false
}
