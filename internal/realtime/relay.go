package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chathive/internal/protocol"
	"chathive/internal/store"
)

// DefaultSendTimeout bounds how long a message insert may take.
const DefaultSendTimeout = 5 * time.Second

// UserLookup resolves message authors.
type UserLookup interface {
	FindUserByID(ctx context.Context, id string) (store.User, error)
}

// MessageRelay persists a chat line and fans it out to the channel, sender
// included. Nothing is broadcast when persistence fails.
type MessageRelay struct {
	messages store.MessageStore
	users    UserLookup
	hub      *Hub
	timeout  time.Duration
	log      *slog.Logger
}

func NewMessageRelay(messages store.MessageStore, users UserLookup, hub *Hub, timeout time.Duration, log *slog.Logger) *MessageRelay {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &MessageRelay{messages: messages, users: users, hub: hub, timeout: timeout, log: log}
}

func (r *MessageRelay) Relay(ctx context.Context, sess *Session, channelID, userID, content string) (store.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.messages.CreateMessage(ctx, channelID, userID, content)
	if err != nil {
		return store.Message{}, fmt.Errorf("persist message: %w", err)
	}
	if msg.Username == "" {
		msg.Username = r.author(ctx, sess, userID)
	}

	frame, err := protocol.Encode(protocol.TypeMessage, wireMessage(msg))
	if err != nil {
		return msg, err
	}
	r.hub.broadcast(channelID, frame, nil)
	return msg, nil
}

func (r *MessageRelay) author(ctx context.Context, sess *Session, userID string) string {
	if r.users != nil {
		u, err := r.users.FindUserByID(ctx, userID)
		if err == nil {
			return u.Username
		}
		r.log.Warn("Author lookup failed", "user_id", userID, "error", err)
	}
	return sess.DisplayName
}

func wireMessage(m store.Message) protocol.Message {
	return protocol.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		UserID:    m.UserID,
		Username:  m.Username,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// typingRelay forwards typing indicators to everyone in the channel except
// the sender. Nothing is stored.
type typingRelay struct {
	hub *Hub
	log *slog.Logger
}

func (r typingRelay) relay(sess *Session, t protocol.Typing) {
	if t.Username == "" {
		t.Username = sess.DisplayName
	}
	frame, err := protocol.Encode(protocol.TypeTyping, t)
	if err != nil {
		r.log.Error("Encoding typing failed", "channel_id", t.ChannelID, "error", err)
		return
	}
	r.hub.broadcast(t.ChannelID, frame, sess)
}
