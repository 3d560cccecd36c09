package domain

import "time"

// Connection identifies one live socket of a user. A user may hold several
// connections at once (multi-device); presence is defined over the set.
type Connection struct {
	ID            string
	UserID        string
	DisplayName   string
	EstablishedAt time.Time
}
