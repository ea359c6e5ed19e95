// Package protocol defines the realtime wire format: every frame is a JSON
// envelope {"type": ..., "data": ...} and each type maps to exactly one Go
// struct. Anything else is rejected by Decode.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type EventType string

// Inbound event types.
const (
	TypeJoinChannel  EventType = "joinChannel"
	TypeLeaveChannel EventType = "leaveChannel"
	TypeTyping       EventType = "typing"
	TypeSendMessage  EventType = "sendMessage"
)

// Outbound event types. TypeTyping is shared with inbound.
const (
	TypeOnlineUsers           EventType = "onlineUsers"
	TypeChannelMembersUpdated EventType = "channelMembersUpdated"
	TypeMessage               EventType = "message"
	TypeError                 EventType = "error"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownEvent = errors.New("unknown event type")
	ErrInvalid      = errors.New("invalid event payload")
)

var validate = validator.New()

type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound is implemented by every client-initiated event.
type Inbound interface {
	Type() EventType
}

type JoinChannel struct {
	ChannelID string `json:"channelId" validate:"required,max=256"`
}

type LeaveChannel struct {
	ChannelID string `json:"channelId" validate:"required,max=256"`
}

// Typing travels in both directions: clients send it, and the server relays
// it unchanged (username filled in) to the rest of the channel.
type Typing struct {
	ChannelID string `json:"channelId" validate:"required,max=256"`
	IsTyping  bool   `json:"isTyping"`
	Username  string `json:"username,omitempty"`
}

type SendMessage struct {
	ChannelID string `json:"channelId" validate:"required,max=256"`
	UserID    string `json:"userId,omitempty"`
	Content   string `json:"content" validate:"required"`
}

func (JoinChannel) Type() EventType  { return TypeJoinChannel }
func (LeaveChannel) Type() EventType { return TypeLeaveChannel }
func (Typing) Type() EventType       { return TypeTyping }
func (SendMessage) Type() EventType  { return TypeSendMessage }

// OnlineUser is one element of the onlineUsers payload.
type OnlineUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type ChannelMembers struct {
	Channel string   `json:"channel"`
	Count   int      `json:"count"`
	Members []string `json:"members"`
}

type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decode parses one inbound frame. A payload that parses but fails
// validation is returned together with an error wrapping ErrInvalid so the
// caller can still tell which event it was.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var evt Inbound
	var err error
	switch env.Type {
	case TypeJoinChannel:
		var ref channelRef
		err = ref.decode(env.Data)
		evt = JoinChannel{ChannelID: ref.ChannelID}
	case TypeLeaveChannel:
		var ref channelRef
		err = ref.decode(env.Data)
		evt = LeaveChannel{ChannelID: ref.ChannelID}
	case TypeTyping:
		var t Typing
		err = decodeObject(env.Data, &t)
		evt = t
	case TypeSendMessage:
		var m SendMessage
		err = decodeObject(env.Data, &m)
		evt = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}

	if err := validate.Struct(evt); err != nil {
		return evt, fmt.Errorf("%w: %s: %v", ErrInvalid, env.Type, err)
	}
	return evt, nil
}

func decodeObject(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, v)
}

// channelRef accepts either {"channelId": "x"} or the bare string "x".
type channelRef struct {
	ChannelID string `json:"channelId"`
}

func (r *channelRef) decode(data json.RawMessage) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("missing data")
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.ChannelID)
	}
	return json.Unmarshal(data, r)
}

// Encode builds an outbound frame.
func Encode(t EventType, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: payload})
}
