package realtime

import (
	"log/slog"

	"github.com/samber/lo"

	"chathive/internal/presence"
	"chathive/internal/protocol"
)

// presenceBroadcaster pushes the full online list to every connection.
type presenceBroadcaster struct {
	hub      *Hub
	registry *presence.Registry
	log      *slog.Logger
}

func (b presenceBroadcaster) snapshot() []protocol.OnlineUser {
	return lo.Map(b.registry.Snapshot(), func(u presence.User, _ int) protocol.OnlineUser {
		return protocol.OnlineUser{ID: u.ID, Username: u.DisplayName}
	})
}

func (b presenceBroadcaster) broadcast() {
	frame, err := protocol.Encode(protocol.TypeOnlineUsers, b.snapshot())
	if err != nil {
		b.log.Error("Encoding online users failed", "error", err)
		return
	}
	b.hub.broadcastAll(frame)
}

// membershipBroadcaster pushes a channel's member list to its subscribers.
type membershipBroadcaster struct {
	hub *Hub
	log *slog.Logger
}

func channelMembers(channelID string, members []string) protocol.ChannelMembers {
	if members == nil {
		members = []string{}
	}
	return protocol.ChannelMembers{Channel: channelID, Count: len(members), Members: members}
}

func (b membershipBroadcaster) broadcast(channelID string, members []string) {
	frame, err := protocol.Encode(protocol.TypeChannelMembersUpdated, channelMembers(channelID, members))
	if err != nil {
		b.log.Error("Encoding channel members failed", "channel_id", channelID, "error", err)
		return
	}
	b.hub.broadcast(channelID, frame, nil)
}
