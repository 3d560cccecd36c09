package runtime

import (
	"sync"

	"livehub/domain"
)

type set map[string]struct{}

// MembershipIndex is the in-memory mirror of the durable membership
// relation, kept for the hot broadcast path. It answers "who should receive
// this room's frames" without touching disk. It is a cache: authorization
// always goes to the durable store, and the index is rebuilt from it on
// startup and on session attach.
type MembershipIndex struct {
	mu          sync.RWMutex
	roomMembers map[string]set // roomID -> userIDs
	userRooms   map[string]set // userID -> roomIDs
}

func NewMembershipIndex() *MembershipIndex {
	return &MembershipIndex{
		roomMembers: make(map[string]set),
		userRooms:   make(map[string]set),
	}
}

// Load seeds the index from durable memberships, typically at startup.
func (m *MembershipIndex) Load(memberships []domain.Membership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, membership := range memberships {
		m.add(membership.RoomID, membership.UserID)
	}
}

func (m *MembershipIndex) Add(roomID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(roomID, userID)
}

func (m *MembershipIndex) add(roomID, userID string) {
	if _, ok := m.roomMembers[roomID]; !ok {
		m.roomMembers[roomID] = make(set)
	}
	m.roomMembers[roomID][userID] = struct{}{}

	if _, ok := m.userRooms[userID]; !ok {
		m.userRooms[userID] = make(set)
	}
	m.userRooms[userID][roomID] = struct{}{}
}

// Remove drops one membership from both directions. Empty sets are deleted
// so abandoned rooms do not accumulate.
func (m *MembershipIndex) Remove(roomID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if members, ok := m.roomMembers[roomID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(m.roomMembers, roomID)
		}
	}
	if rooms, ok := m.userRooms[userID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.userRooms, userID)
		}
	}
}

// DropRoom removes the room and every membership pointing at it.
func (m *MembershipIndex) DropRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID := range m.roomMembers[roomID] {
		rooms := m.userRooms[userID]
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.userRooms, userID)
		}
	}
	delete(m.roomMembers, roomID)
}

func (m *MembershipIndex) MembersOf(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]string, 0, len(m.roomMembers[roomID]))
	for userID := range m.roomMembers[roomID] {
		members = append(members, userID)
	}
	return members
}

func (m *MembershipIndex) RoomsOf(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]string, 0, len(m.userRooms[userID]))
	for roomID := range m.userRooms[userID] {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (m *MembershipIndex) Contains(roomID, userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.roomMembers[roomID][userID]
	return ok
}
