package domain

import "time"

// ReadState is the per (user, room) marker separating seen from unseen
// messages. LastRead only moves forward; a mark-read carrying an older
// timestamp than the stored one is a no-op.
type ReadState struct {
	UserID    string
	RoomID    string
	LastRead  time.Time
	UpdatedAt time.Time
}

// Unread reports whether a message created at the given time is still
// unseen under this marker.
func (r ReadState) Unread(createdAt time.Time) bool {
	return createdAt.After(r.LastRead)
}
