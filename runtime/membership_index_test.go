package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livehub/domain"
)

func TestMembershipIndex_Add_And_Remove_Stay_Symmetric(t *testing.T) {
	req := require.New(t)
	index := NewMembershipIndex()

	index.Add("general", "alice")
	index.Add("general", "bob")
	index.Add("random", "alice")

	req.ElementsMatch([]string{"alice", "bob"}, index.MembersOf("general"))
	req.ElementsMatch([]string{"general", "random"}, index.RoomsOf("alice"))
	req.True(index.Contains("general", "alice"))

	index.Remove("general", "alice")

	req.ElementsMatch([]string{"bob"}, index.MembersOf("general"))
	req.ElementsMatch([]string{"random"}, index.RoomsOf("alice"))
	req.False(index.Contains("general", "alice"))
}

func TestMembershipIndex_Load_From_Durable(t *testing.T) {
	req := require.New(t)
	index := NewMembershipIndex()
	now := time.Now().UTC()

	index.Load([]domain.Membership{
		{RoomID: "general", UserID: "alice", JoinedAt: now},
		{RoomID: "general", UserID: "bob", JoinedAt: now},
		{RoomID: "random", UserID: "bob", JoinedAt: now},
	})

	req.ElementsMatch([]string{"alice", "bob"}, index.MembersOf("general"))
	req.ElementsMatch([]string{"general", "random"}, index.RoomsOf("bob"))
}

func TestMembershipIndex_DropRoom_Cleans_Every_User(t *testing.T) {
	req := require.New(t)
	index := NewMembershipIndex()
	index.Add("doomed", "alice")
	index.Add("doomed", "bob")
	index.Add("kept", "alice")

	index.DropRoom("doomed")

	req.Empty(index.MembersOf("doomed"))
	req.ElementsMatch([]string{"kept"}, index.RoomsOf("alice"))
	req.Empty(index.RoomsOf("bob"))
}

func TestMembershipIndex_Remove_Absent_Is_NoOp(t *testing.T) {
	index := NewMembershipIndex()
	index.Remove("ghost-room", "nobody")
	require.Empty(t, index.MembersOf("ghost-room"))
}
