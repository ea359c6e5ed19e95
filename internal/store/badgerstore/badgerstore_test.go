package badgerstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chathive/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_Rejects_Empty_Path(t *testing.T) {
	_, err := Open("", slog.Default())
	require.Error(t, err)
}

func TestUsers_Create_Find_And_Duplicate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newTestStore(t)

	// Given
	alice, err := s.CreateUser(ctx, "alice", []byte("hash"))
	req.NoError(err)

	// When
	byName, errName := s.FindUserByName(ctx, "alice")
	byID, errID := s.FindUserByID(ctx, alice.ID)
	_, errDup := s.CreateUser(ctx, "alice", []byte("other"))

	// Then
	req.NoError(errName)
	req.NoError(errID)
	req.Equal(alice.ID, byName.ID)
	req.Equal([]byte("hash"), byName.PasswordHash)
	req.Equal("alice", byID.Username)
	req.ErrorIs(errDup, store.ErrUsernameTaken)

	_, err = s.FindUserByName(ctx, "bob")
	req.ErrorIs(err, store.ErrNotFound)
	_, err = s.FindUserByID(ctx, "missing")
	req.ErrorIs(err, store.ErrNotFound)
}

func TestChannels_Listed_By_Creation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newTestStore(t)

	channels, err := s.ListChannels(ctx)
	req.NoError(err)
	req.Empty(channels)

	for _, name := range []string{"general", "random", "music"} {
		_, err := s.CreateChannel(ctx, name)
		req.NoError(err)
		time.Sleep(time.Millisecond)
	}

	channels, err = s.ListChannels(ctx)
	req.NoError(err)
	req.Len(channels, 3)
	req.Equal("general", channels[0].Name)
	req.Equal("music", channels[2].Name)
}

func TestMessages_Query_Paginates_Oldest_First(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newTestStore(t)
	alice, err := s.CreateUser(ctx, "alice", []byte("hash"))
	req.NoError(err)

	for _, content := range []string{"one", "two", "three", "four", "five"} {
		_, err := s.CreateMessage(ctx, "general", alice.ID, content)
		req.NoError(err)
		time.Sleep(time.Millisecond)
	}
	_, err = s.CreateMessage(ctx, "gen", alice.ID, "prefix sibling")
	req.NoError(err)

	page, err := s.QueryMessages(ctx, store.MessageQuery{ChannelID: "general", Limit: 2})
	req.NoError(err)
	req.Equal([]string{"four", "five"}, contents(page))
	req.Equal("alice", page[0].Username)

	before := page[0].CreatedAt
	page, err = s.QueryMessages(ctx, store.MessageQuery{ChannelID: "general", Before: &before, Limit: 2})
	req.NoError(err)
	req.Equal([]string{"two", "three"}, contents(page))

	page, err = s.QueryMessages(ctx, store.MessageQuery{ChannelID: "general"})
	req.NoError(err)
	req.Equal([]string{"one", "two", "three", "four", "five"}, contents(page))

	page, err = s.QueryMessages(ctx, store.MessageQuery{ChannelID: "gen"})
	req.NoError(err)
	req.Equal([]string{"prefix sibling"}, contents(page))
}

func TestMessages_Unknown_Author_Has_Empty_Username(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	msg, err := s.CreateMessage(context.Background(), "general", "ghost", "boo")

	req.NoError(err)
	req.Empty(msg.Username)
	req.Equal("ghost", msg.UserID)
}

func contents(msgs []store.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
