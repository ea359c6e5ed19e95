package realtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chathive/internal/membership"
	"chathive/internal/presence"
	"chathive/internal/protocol"
	"chathive/internal/store"
)

const DefaultMaxContentLength = 2000

// Error codes carried by outbound error events.
const (
	CodeInvalidMessage = "invalid_message"
	CodeSendFailed     = "send_failed"
)

type Options struct {
	MaxContentLength int
	SendTimeout      time.Duration
}

// Coordinator drives every session through connect, join, leave and
// disconnect. Each state change and the broadcast it causes happen under one
// lock so all clients observe membership snapshots in mutation order.
// Message persistence runs outside that lock.
type Coordinator struct {
	mu sync.Mutex

	hub        *Hub
	registry   *presence.Registry
	members    *membership.Table
	presence   presenceBroadcaster
	membership membershipBroadcaster
	messages   *MessageRelay
	typing     typingRelay
	maxContent int
	log        *slog.Logger
}

func NewCoordinator(
	hub *Hub,
	registry *presence.Registry,
	members *membership.Table,
	messages store.MessageStore,
	users UserLookup,
	opts Options,
	log *slog.Logger,
) *Coordinator {
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = DefaultMaxContentLength
	}
	return &Coordinator{
		hub:        hub,
		registry:   registry,
		members:    members,
		presence:   presenceBroadcaster{hub: hub, registry: registry, log: log},
		membership: membershipBroadcaster{hub: hub, log: log},
		messages:   NewMessageRelay(messages, users, hub, opts.SendTimeout, log),
		typing:     typingRelay{hub: hub, log: log},
		maxContent: opts.MaxContentLength,
		log:        log,
	}
}

func (c *Coordinator) Connect(sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hub.add(sess)
	if !sess.tracked() {
		// not announced to others, but the newcomer still gets the list
		c.sendTo(sess, protocol.TypeOnlineUsers, c.presence.snapshot())
		c.log.Debug("Session connected without identity", "session_id", sess.ID)
		return
	}
	c.registry.Register(sess.UserID, sess.DisplayName)
	c.presence.broadcast()
	c.log.Debug("Session connected", "session_id", sess.ID, "user_id", sess.UserID)
}

// JoinChannel subscribes the session to a channel. Channels joined earlier
// stay joined.
func (c *Coordinator) JoinChannel(sess *Session, channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !sess.enterChannel(channelID) {
		return
	}
	c.hub.subscribe(sess, channelID)

	var members []string
	if sess.DisplayName != "" {
		members = c.members.Join(channelID, sess.DisplayName)
	} else {
		members = c.members.Touch(channelID)
	}
	c.membership.broadcast(channelID, members)
}

func (c *Coordinator) LeaveChannel(sess *Session, channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !sess.exitChannel() {
		return
	}
	c.hub.unsubscribe(sess, channelID)

	members := c.members.MembersOf(channelID)
	if sess.DisplayName != "" {
		members, _ = c.members.Leave(channelID, sess.DisplayName)
	}
	c.membership.broadcast(channelID, members)
}

func (c *Coordinator) Typing(sess *Session, t protocol.Typing) {
	if !sess.alive() {
		return
	}
	c.typing.relay(sess, t)
}

// SendMessage validates, persists and relays one chat line. Failures are
// reported to the sender only.
func (c *Coordinator) SendMessage(ctx context.Context, sess *Session, m protocol.SendMessage) {
	if !sess.alive() {
		return
	}

	content := strings.TrimSpace(m.Content)
	switch {
	case content == "":
		c.sendError(sess, CodeInvalidMessage, "content required")
		return
	case utf8.RuneCountInString(content) > c.maxContent:
		c.sendError(sess, CodeInvalidMessage, "message too long")
		return
	}

	userID := m.UserID
	if userID == "" {
		userID = sess.UserID
	}
	if userID == "" {
		c.sendError(sess, CodeInvalidMessage, "user id required")
		return
	}

	if _, err := c.messages.Relay(ctx, sess, m.ChannelID, userID, content); err != nil {
		c.log.Error("Sending message failed", "session_id", sess.ID, "channel_id", m.ChannelID, "error", err)
		c.sendError(sess, CodeSendFailed, "failed to send message")
	}
}

// Disconnect releases everything the session held. Membership is scanned
// across every channel since the session may have joined several.
func (c *Coordinator) Disconnect(sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !sess.close() {
		return
	}
	c.hub.remove(sess)

	if sess.tracked() && c.registry.Deregister(sess.UserID) {
		c.presence.broadcast()
	}
	if sess.DisplayName != "" {
		for _, u := range c.members.RemoveEverywhere(sess.DisplayName) {
			c.membership.broadcast(u.Channel, u.Members)
		}
	}
	c.log.Debug("Session disconnected", "session_id", sess.ID, "user_id", sess.UserID)
}

// Handle decodes one inbound frame and dispatches it. Frames that cannot be
// decoded are dropped, except invalid sendMessage payloads which are
// answered with an error event.
func (c *Coordinator) Handle(ctx context.Context, sess *Session, raw []byte) {
	evt, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrInvalid) && evt != nil && evt.Type() == protocol.TypeSendMessage {
			c.sendError(sess, CodeInvalidMessage, "channel and content required")
			return
		}
		c.log.Debug("Dropping inbound frame", "session_id", sess.ID, "error", err)
		return
	}

	switch e := evt.(type) {
	case protocol.JoinChannel:
		c.JoinChannel(sess, e.ChannelID)
	case protocol.LeaveChannel:
		c.LeaveChannel(sess, e.ChannelID)
	case protocol.Typing:
		c.Typing(sess, e)
	case protocol.SendMessage:
		c.SendMessage(ctx, sess, e)
	}
}

// Presence is the current online list.
func (c *Coordinator) Presence() []protocol.OnlineUser {
	return c.presence.snapshot()
}

// Members is the current membership of a channel.
func (c *Coordinator) Members(channelID string) protocol.ChannelMembers {
	return channelMembers(channelID, c.members.MembersOf(channelID))
}

func (c *Coordinator) sendError(sess *Session, code, message string) {
	c.sendTo(sess, protocol.TypeError, protocol.Error{Code: code, Message: message})
}

func (c *Coordinator) sendTo(sess *Session, t protocol.EventType, data any) {
	frame, err := protocol.Encode(t, data)
	if err != nil {
		c.log.Error("Encoding frame failed", "type", t, "error", err)
		return
	}
	sess.send(frame)
}
