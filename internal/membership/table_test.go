package membership

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	table := NewTable()

	req.Equal([]string{"alice"}, table.Join("general", "alice"))
	req.Equal([]string{"alice"}, table.Join("general", "alice"))
	req.Equal([]string{"alice", "bob"}, table.Join("general", "bob"))
	req.Equal([]string{"alice", "bob"}, table.Join("general", "alice"))

	req.Equal([]string{"alice", "bob"}, table.MembersOf("general"))
}

func TestTable_MembersOf_Unknown_Channel(t *testing.T) {
	req := require.New(t)
	table := NewTable()

	members := table.MembersOf("nowhere")
	req.NotNil(members)
	req.Empty(members)
}

func TestTable_Leave_Absent_Is_NoOp(t *testing.T) {
	req := require.New(t)
	table := NewTable()

	// Unknown channel
	members, removed := table.Leave("nowhere", "alice")
	req.False(removed)
	req.Empty(members)

	// Known channel, unknown member
	table.Join("general", "bob")
	members, removed = table.Leave("general", "alice")
	req.False(removed)
	req.Equal([]string{"bob"}, members)
}

func TestTable_Leave_Keeps_Empty_Channel(t *testing.T) {
	req := require.New(t)
	table := NewTable()
	table.Join("general", "alice")

	members, removed := table.Leave("general", "alice")

	req.True(removed)
	req.Empty(members)
	req.Equal([]string{"general"}, table.Channels())
}

func TestTable_Order_Survives_Rejoin(t *testing.T) {
	req := require.New(t)
	table := NewTable()
	table.Join("general", "alice")
	table.Join("general", "bob")
	table.Join("general", "clara")

	table.Leave("general", "alice")
	table.Join("general", "alice")

	req.Equal([]string{"bob", "clara", "alice"}, table.MembersOf("general"))
}

func TestTable_RemoveEverywhere(t *testing.T) {
	req := require.New(t)
	table := NewTable()
	table.Join("general", "alice")
	table.Join("random", "bob")
	table.Join("random", "alice")
	table.Join("music", "bob")

	updates := table.RemoveEverywhere("alice")

	req.Equal([]Update{
		{Channel: "general", Members: []string{}},
		{Channel: "random", Members: []string{"bob"}},
	}, updates)
	req.Equal([]string{"bob"}, table.MembersOf("music"))

	// Nothing left to remove
	req.Empty(table.RemoveEverywhere("alice"))
}

func TestTable_Returned_Slices_Are_Copies(t *testing.T) {
	req := require.New(t)
	table := NewTable()
	members := table.Join("general", "alice")

	members[0] = "mallory"

	req.Equal([]string{"alice"}, table.MembersOf("general"))
}
