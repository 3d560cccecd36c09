package runtime

import (
	"sync"
	"time"

	"livehub/domain"
)

// Registry tracks which users currently hold live connections. A user with
// multiple devices appears once per connection; presence is derived from the
// connection set being non-empty, so only the first Register and the last
// Unregister cross the OFFLINE↔ONLINE edge.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]domain.Connection
	byUser map[string]map[string]domain.Connection // userID -> connID -> conn
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]domain.Connection),
		byUser: make(map[string]map[string]domain.Connection),
	}
}

// Register adds a connection and reports whether the user was offline before
// this call. The caller publishes the presence fact; the registry only
// detects the edge.
func (r *Registry) Register(userID, connID, displayName string) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := domain.Connection{
		ID:            connID,
		UserID:        userID,
		DisplayName:   displayName,
		EstablishedAt: time.Now().UTC(),
	}

	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]domain.Connection)
		r.byUser[userID] = conns
	}
	wasOffline := len(conns) == 0

	conns[connID] = conn
	r.byConn[connID] = conn
	return conn, wasOffline
}

// Unregister removes a connection. ok is false for an unknown connection id;
// nowOffline carries the user id when this was their last connection, empty
// otherwise. Unregistering an unknown id is a no-op, so a double close is
// safe.
func (r *Registry) Unregister(connID string) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byConn[connID]
	if !ok {
		return false, ""
	}
	delete(r.byConn, connID)

	conns := r.byUser[conn.UserID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, conn.UserID)
		return true, conn.UserID
	}
	return true, ""
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) ConnectionsOf(userID string) []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]domain.Connection, 0, len(r.byUser[userID]))
	for _, conn := range r.byUser[userID] {
		conns = append(conns, conn)
	}
	return conns
}

func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	return users
}
