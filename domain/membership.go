package domain

import "time"

// Membership is the durable, authoritative room↔user relation.
// The in-memory index derived from it is a cache and is never consulted
// for authorization decisions.
type Membership struct {
	RoomID   string
	UserID   string
	JoinedAt time.Time
}
