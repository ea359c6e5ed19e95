package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chathive/internal/membership"
	"chathive/internal/presence"
	"chathive/internal/protocol"
	"chathive/internal/store/sqlstore"
)

type testServer struct {
	*httptest.Server
	handler *Handler
	coord   *Coordinator
	hub     *Hub
}

func newTestServer(t *testing.T, origins ...string) *testServer {
	t.Helper()
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	ctx := context.Background()
	st, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { _ = st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub()
	coord := NewCoordinator(hub, presence.NewRegistry(), membership.NewTable(), st, st, Options{}, log)
	h := NewHandler(coord, HandlerConfig{AllowedOrigins: origins}, log)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, handler: h, coord: coord, hub: hub}
}

func (s *testServer) dial(t *testing.T, userID, username string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?userId=" + userID + "&username=" + username
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ protocol.EventType, data any) {
	t.Helper()
	frame, err := protocol.Encode(typ, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// next reads frames until one of the wanted type arrives.
func next(t *testing.T, conn *websocket.Conn, typ protocol.EventType, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type == typ {
			require.NoError(t, json.Unmarshal(env.Data, v))
			return
		}
	}
}

func TestHandler_Chat_Roundtrip(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	var online []protocol.OnlineUser
	var members protocol.ChannelMembers

	alice := srv.dial(t, "u1", "alice")
	next(t, alice, protocol.TypeOnlineUsers, &online)
	req.Equal([]protocol.OnlineUser{{ID: "u1", Username: "alice"}}, online)

	bob := srv.dial(t, "u2", "bob")
	next(t, bob, protocol.TypeOnlineUsers, &online)
	req.Len(online, 2)

	send(t, alice, protocol.TypeJoinChannel, protocol.JoinChannel{ChannelID: "general"})
	next(t, alice, protocol.TypeChannelMembersUpdated, &members)
	req.Equal([]string{"alice"}, members.Members)

	send(t, bob, protocol.TypeJoinChannel, protocol.JoinChannel{ChannelID: "general"})
	next(t, bob, protocol.TypeChannelMembersUpdated, &members)
	req.Equal(protocol.ChannelMembers{Channel: "general", Count: 2, Members: []string{"alice", "bob"}}, members)

	send(t, alice, protocol.TypeSendMessage, protocol.SendMessage{ChannelID: "general", Content: "hi"})
	var msg protocol.Message
	next(t, bob, protocol.TypeMessage, &msg)
	req.Equal("hi", msg.Content)
	req.Equal("u1", msg.UserID)
	req.Equal("alice", msg.Username)
	req.NotEmpty(msg.ID)

	// abrupt disconnect
	req.NoError(alice.Close())
	next(t, bob, protocol.TypeOnlineUsers, &online)
	req.Equal([]protocol.OnlineUser{{ID: "u2", Username: "bob"}}, online)
	next(t, bob, protocol.TypeChannelMembersUpdated, &members)
	req.Equal(protocol.ChannelMembers{Channel: "general", Count: 1, Members: []string{"bob"}}, members)
}

func TestHandler_Rejects_Disallowed_Origin(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, "https://chat.example")
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://evil.example"}})
	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://CHAT.example"}})
	req.NoError(err)
	_ = conn.Close()
}

func TestHandler_Shutdown_Closes_Sessions(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)
	conn := srv.dial(t, "u1", "alice")
	var online []protocol.OnlineUser
	next(t, conn, protocol.TypeOnlineUsers, &online)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.NoError(srv.handler.Shutdown(ctx))

	req.Zero(srv.hub.Connections())
	req.Empty(srv.coord.Presence())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	resp, err := http.Get(srv.URL + "/ws")
	req.NoError(err)
	_ = resp.Body.Close()
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}
