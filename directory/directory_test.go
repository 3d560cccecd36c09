package directory

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"livehub/domain"
	"livehub/repositories"
)

func newStoreUnderTest(t *testing.T) (*Store, repositories.MembershipRepository) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	memberships := repositories.NewMembershipRepository(db, slog.Default())
	return NewStore(db, memberships, slog.Default()), memberships
}

func TestDirectory_Friendship_Is_Symmetric(t *testing.T) {
	req := require.New(t)
	store, _ := newStoreUnderTest(t)

	req.NoError(store.AddFriend("alice", "bob"))

	friends, err := store.GetFriendIds("alice")
	req.NoError(err)
	req.Equal([]string{"bob"}, friends)

	friends, err = store.GetFriendIds("bob")
	req.NoError(err)
	req.Equal([]string{"alice"}, friends)

	req.NoError(store.RemoveFriend("bob", "alice"))

	friends, err = store.GetFriendIds("alice")
	req.NoError(err)
	req.Empty(friends)
}

func TestDirectory_Block_Works_Both_Ways(t *testing.T) {
	req := require.New(t)
	store, _ := newStoreUnderTest(t)

	req.NoError(store.Block("alice", "bob"))

	// Either direction of the pair reports blocked
	blocked, err := store.IsBlocked("alice", "bob")
	req.NoError(err)
	req.True(blocked)

	blocked, err = store.IsBlocked("bob", "alice")
	req.NoError(err)
	req.True(blocked)

	req.NoError(store.Unblock("alice", "bob"))
	blocked, err = store.IsBlocked("bob", "alice")
	req.NoError(err)
	req.False(blocked)
}

func TestDirectory_GetUserRooms_Uses_Memberships(t *testing.T) {
	req := require.New(t)
	store, memberships := newStoreUnderTest(t)
	now := time.Now().UTC()

	req.NoError(memberships.Add(domain.Membership{RoomID: "general", UserID: "alice", JoinedAt: now}))
	req.NoError(memberships.Add(domain.Membership{RoomID: "random", UserID: "alice", JoinedAt: now}))

	rooms, err := store.GetUserRooms("alice")
	req.NoError(err)
	req.ElementsMatch([]string{"general", "random"}, rooms)
}
