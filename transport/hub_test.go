package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"livehub/contract"
	"livehub/domain"
	"livehub/domain/event"
	"livehub/observability"
	"livehub/repositories"
	"livehub/runtime"
	"livehub/services"
)

type fakeDirectory struct {
	friends map[string][]string
	blocked map[string]bool
}

func (f *fakeDirectory) GetUserRooms(string) ([]string, error) { return nil, nil }
func (f *fakeDirectory) GetFriendIds(userID string) ([]string, error) {
	return f.friends[userID], nil
}
func (f *fakeDirectory) IsBlocked(userID, otherID string) (bool, error) {
	return f.blocked[userID+"/"+otherID] || f.blocked[otherID+"/"+userID], nil
}

type capturingBus struct {
	mu        sync.Mutex
	published []event.DomainEvent
}

func (b *capturingBus) Subscribe(event.Kind, contract.EventSink) {}

func (b *capturingBus) Publish(e event.DomainEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
}

type hubFixture struct {
	hub         *Hub
	registry    *runtime.Registry
	memberships repositories.MembershipRepository
	store       *services.MessageStore
	buffer      *runtime.OfflineBuffer
	stats       *observability.Stats
	bus         *capturingBus
	directory   *fakeDirectory
}

func newHubUnderTest(t *testing.T) *hubFixture {
	return newHubUnderTestWithBuffer(t, 10)
}

func newHubUnderTestWithBuffer(t *testing.T, bufferBound int) *hubFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	memberships := repositories.NewMembershipRepository(db, log)
	messages := repositories.NewMessageRepository(db, log)
	readStates := repositories.NewReadStateRepository(db, log)

	bus := &capturingBus{}
	store := services.NewMessageStore(log, messages, runtime.NewRoomCache(100), bus)
	readService := services.NewReadStateService(log, readStates, store, bus)

	registry := runtime.NewRegistry()
	buffer := runtime.NewOfflineBuffer(bufferBound)
	stats := observability.NewStats()
	directory := &fakeDirectory{friends: map[string][]string{}, blocked: map[string]bool{}}

	hub := NewHub(log, registry, runtime.NewMembershipIndex(),
		memberships, buffer, readService, directory, bus, stats)

	return &hubFixture{
		hub:         hub,
		registry:    registry,
		memberships: memberships,
		store:       store,
		buffer:      buffer,
		stats:       stats,
		bus:         bus,
		directory:   directory,
	}
}

func storedMessage(roomID, senderID, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderID,
		Body:       body,
		Kind:       domain.KindText,
		CreatedAt:  at,
	}
}

// liveSession builds a session that is attachable but never runs its pumps,
// so outbound frames can be read straight off its queue.
func liveSession(f *hubFixture, connID, userID, displayName string) *Session {
	return newSession(connID, userID, displayName, nil, f.hub, nil, slog.Default(), time.Minute, 3)
}

func drainQueue(s *Session) []Frame {
	var frames []Frame
	for {
		select {
		case raw := <-s.send:
			var frame Frame
			if json.Unmarshal(raw, &frame) == nil {
				frames = append(frames, frame)
			}
		default:
			return frames
		}
	}
}

func TestHub_SendToUser_Buffers_For_Offline_Users(t *testing.T) {
	req := require.New(t)
	f := newHubUnderTest(t)

	frame, err := NewFrame(TypeUnread, UnreadPayload{RoomID: "general", Count: 1})
	req.NoError(err)
	f.hub.SendToUser("bob", frame)

	req.Equal(1, f.buffer.Pending("bob"))
	req.Equal(uint64(1), f.stats.Snapshot().FramesBuffered)
}

func TestHub_Attach_Drains_The_Backlog_In_Order(t *testing.T) {
	req := require.New(t)
	f := newHubUnderTest(t)

	for _, body := range []string{"one", "two"} {
		frame, err := NewFrame(TypeMessage, MessagePayload{RoomID: "general", Body: body})
		req.NoError(err)
		f.hub.SendToUser("bob", frame)
	}

	sess := liveSession(f, "conn-1", "bob", "Bob")
	f.hub.attach(sess)

	frames := drainQueue(sess)
	req.Len(frames, 2)
	var first, second MessagePayload
	req.NoError(json.Unmarshal(frames[0].Payload, &first))
	req.NoError(json.Unmarshal(frames[1].Payload, &second))
	req.Equal("one", first.Body)
	req.Equal("two", second.Body)
	req.Zero(f.buffer.Pending("bob"))
}

func TestHub_Attach_Resyncs_Unread_Counts_From_Durable_State(t *testing.T) {
	req := require.New(t)
	f := newHubUnderTest(t)
	now := time.Now().UTC()

	req.NoError(f.memberships.Add(domain.Membership{RoomID: "general", UserID: "bob", JoinedAt: now}))
	req.NoError(f.store.Append(storedMessage("general", "alice", "missed this", now)))

	sess := liveSession(f, "conn-1", "bob", "Bob")
	f.hub.attach(sess)

	frames := drainQueue(sess)
	req.Len(frames, 1)
	req.Equal(TypeUnread, frames[0].Type)
	var unread UnreadPayload
	req.NoError(json.Unmarshal(frames[0].Payload, &unread))
	req.Equal("general", unread.RoomID)
	req.Equal(1, unread.Count)

	// Membership was restored into the in-memory index
	req.True(f.hub.index.Contains("general", "bob"))
}

func TestHub_Attach_Publishes_Presence_Only_On_The_Offline_Edge(t *testing.T) {
	req := require.New(t)
	f := newHubUnderTest(t)

	first := liveSession(f, "conn-1", "bob", "Bob")
	f.hub.attach(first)
	req.Len(f.bus.published, 1)
	presence, ok := f.bus.published[0].(event.PresenceChanged)
	req.True(ok)
	req.True(presence.Online)

	// A second device does not cross the edge again
	second := liveSession(f, "conn-2", "bob", "Bob")
	f.hub.attach(second)
	req.Len(f.bus.published, 1)

	// Last connection going away publishes the offline fact
	f.hub.detach(first)
	req.Len(f.bus.published, 1)
	f.hub.detach(second)
	req.Len(f.bus.published, 2)
	presence, ok = f.bus.published[1].(event.PresenceChanged)
	req.True(ok)
	req.False(presence.Online)
}

func TestHub_Message_Fanout_Covers_Offline_Members(t *testing.T) {
	req := require.New(t)
	f := newHubUnderTest(t)
	now := time.Now().UTC()

	req.NoError(f.memberships.Add(domain.Membership{RoomID: "general", UserID: "alice", JoinedAt: now}))
	req.NoError(f.memberships.Add(domain.Membership{RoomID: "general", UserID: "bob", JoinedAt: now}))

	alice := liveSession(f, "conn-1", "alice", "Alice")
	f.hub.attach(alice)
	drainQueue(alice)

	message := storedMessage("general", "alice", "anyone here?", now)
	req.NoError(f.hub.Consume(context.Background(), event.MessagePosted{Message: message}))

	// Alice got it live
	frames := drainQueue(alice)
	req.Len(frames, 1)
	req.Equal(TypeMessage, frames[0].Type)

	// Bob, offline, got it buffered
	req.Equal(1, f.buffer.Pending("bob"))
}

func TestHub_Presence_Fanout_Skips_Blocked_Friends(t *testing.T) {
	req := require.New(t)
	f := newHubUnderTest(t)

	f.directory.friends["bob"] = []string{"alice", "carol"}
	f.directory.blocked["bob/carol"] = true

	alice := liveSession(f, "conn-1", "alice", "Alice")
	f.hub.attach(alice)
	carol := liveSession(f, "conn-2", "carol", "Carol")
	f.hub.attach(carol)
	drainQueue(alice)
	drainQueue(carol)

	err := f.hub.Consume(context.Background(), event.PresenceChanged{
		UserID: "bob", DisplayName: "Bob", Online: true, At: time.Now().UTC(),
	})
	req.NoError(err)

	frames := drainQueue(alice)
	req.Len(frames, 1)
	req.Equal(TypePresence, frames[0].Type)
	req.Empty(drainQueue(carol))
}

func TestHub_Forwards_Social_Facts_To_Their_Target(t *testing.T) {
	req := require.New(t)
	f := newHubUnderTest(t)

	bob := liveSession(f, "conn-1", "bob", "Bob")
	f.hub.attach(bob)
	drainQueue(bob)

	err := f.hub.Consume(context.Background(), event.FriendRequestSent{
		RequestID: "r-1", From: "alice", FromName: "Alice", To: "bob", At: time.Now().UTC(),
	})
	req.NoError(err)

	frames := drainQueue(bob)
	req.Len(frames, 1)
	req.Equal(TypeNotification, frames[0].Type)
	var notification NotificationPayload
	req.NoError(json.Unmarshal(frames[0].Payload, &notification))
	req.Equal(string(event.KindFriendRequestSent), notification.Kind)
}
