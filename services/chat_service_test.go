package services

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"livehub/domain"
	"livehub/domain/event"
	"livehub/errors"
	"livehub/moderation"
	"livehub/repositories"
	"livehub/runtime"
)

func newChatUnderTest(t *testing.T) (*ChatService, *capturingBus) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	bus := &capturingBus{}
	messages := NewMessageStore(log,
		repositories.NewMessageRepository(db, log),
		runtime.NewRoomCache(100), bus)
	readStates := NewReadStateService(log,
		repositories.NewReadStateRepository(db, log), messages, bus)
	moderator, err := moderation.NewModerator([]string{"secret"}, '*')
	require.NoError(t, err)

	service := NewChatService(log,
		repositories.NewMembershipRepository(db, log),
		runtime.NewMembershipIndex(),
		messages, readStates, moderator)
	return service, bus
}

func TestChatService_PostMessage_Requires_Membership(t *testing.T) {
	req := require.New(t)
	service, bus := newChatUnderTest(t)

	// When: a non-member posts
	_, err := service.PostMessage(PostMessageCommand{
		RoomID:   "general",
		SenderID: "intruder",
		Body:     "hello",
	})

	// Then: rejected, nothing stored, nothing published
	req.ErrorIs(err, errors.ErrNotAMember)
	req.Empty(bus.published())
}

func TestChatService_PostMessage_Appends_And_Publishes(t *testing.T) {
	req := require.New(t)
	service, bus := newChatUnderTest(t)
	req.NoError(service.JoinRoom("general", "alice"))

	message, err := service.PostMessage(PostMessageCommand{
		RoomID:     "general",
		SenderID:   "alice",
		SenderName: "Alice",
		Body:       "hello room",
	})
	req.NoError(err)
	req.NotEqual("", message.ID.String())
	req.Equal(domain.KindText, message.Kind)

	history, err := service.RoomHistory("alice", "general", 10)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("hello room", history[0].Body)

	published := bus.published()
	req.Len(published, 1)
	posted, ok := published[0].(event.MessagePosted)
	req.True(ok)
	req.Equal(message.ID, posted.Message.ID)
}

func TestChatService_PostMessage_Censors_Body(t *testing.T) {
	req := require.New(t)
	service, bus := newChatUnderTest(t)
	req.NoError(service.JoinRoom("general", "alice"))

	message, err := service.PostMessage(PostMessageCommand{
		RoomID:     "general",
		SenderID:   "alice",
		SenderName: "Alice",
		Body:       "this is a secret plan",
	})
	req.NoError(err)

	// The stored and published body both carry the censored form
	req.Equal("this is a ****** plan", message.Body)
	posted := bus.published()[0].(event.MessagePosted)
	req.Equal(message.Body, posted.Message.Body)
}

func TestChatService_RoomHistory_Requires_Membership(t *testing.T) {
	req := require.New(t)
	service, _ := newChatUnderTest(t)
	req.NoError(service.JoinRoom("general", "alice"))

	_, err := service.RoomHistory("stranger", "general", 10)
	req.ErrorIs(err, errors.ErrNotAMember)
}

func TestChatService_LeaveRoom_Revokes_Access(t *testing.T) {
	req := require.New(t)
	service, _ := newChatUnderTest(t)
	req.NoError(service.JoinRoom("general", "alice"))
	req.NoError(service.LeaveRoom("general", "alice"))

	_, err := service.PostMessage(PostMessageCommand{
		RoomID:   "general",
		SenderID: "alice",
		Body:     "am I still here?",
	})
	req.ErrorIs(err, errors.ErrNotAMember)
}

func TestChatService_DeleteRoom_Clears_Everything(t *testing.T) {
	req := require.New(t)
	service, _ := newChatUnderTest(t)
	req.NoError(service.JoinRoom("doomed", "alice"))
	req.NoError(service.JoinRoom("doomed", "bob"))

	_, err := service.PostMessage(PostMessageCommand{
		RoomID: "doomed", SenderID: "alice", SenderName: "Alice", Body: "last words",
	})
	req.NoError(err)

	req.NoError(service.DeleteRoom("doomed"))

	// Memberships are gone, so even former members cannot read
	_, err = service.RoomHistory("alice", "doomed", 10)
	req.ErrorIs(err, errors.ErrNotAMember)
}

func TestChatService_Concurrent_Posts_Publish_In_Timestamp_Order(t *testing.T) {
	req := require.New(t)
	service, bus := newChatUnderTest(t)
	req.NoError(service.JoinRoom("general", "alice"))
	req.NoError(service.JoinRoom("general", "bob"))

	const postsPerSender = 200
	senders := []string{"alice", "bob"}
	errs := make(chan error, len(senders)*postsPerSender)

	var wg sync.WaitGroup
	for _, sender := range senders {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < postsPerSender; i++ {
				_, err := service.PostMessage(PostMessageCommand{
					RoomID: "general", SenderID: sender, SenderName: sender, Body: "race",
				})
				if err != nil {
					errs <- err
				}
			}
		}(sender)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	// The posted facts must come out in the same order the room stored them:
	// no announcement may carry an earlier timestamp than its predecessor.
	published := bus.published()
	req.Len(published, len(senders)*postsPerSender)
	var previous time.Time
	for _, e := range published {
		posted, ok := e.(event.MessagePosted)
		req.True(ok)
		req.False(posted.Message.CreatedAt.Before(previous))
		previous = posted.Message.CreatedAt
	}
}

func TestChatService_PostMessage_CreatedAt_Is_Monotonic_Per_Room(t *testing.T) {
	req := require.New(t)
	service, _ := newChatUnderTest(t)
	req.NoError(service.JoinRoom("general", "alice"))

	var previous time.Time
	for i := 0; i < 5; i++ {
		message, err := service.PostMessage(PostMessageCommand{
			RoomID: "general", SenderID: "alice", SenderName: "Alice", Body: "tick",
		})
		req.NoError(err)
		req.False(message.CreatedAt.Before(previous))
		previous = message.CreatedAt
	}

	history, err := service.RoomHistory("alice", "general", 10)
	req.NoError(err)
	req.Len(history, 5)
	for i := 1; i < len(history); i++ {
		req.False(history[i].CreatedAt.Before(history[i-1].CreatedAt))
	}
}
