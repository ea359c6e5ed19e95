package realtime

import (
	"sync"

	"github.com/google/uuid"
)

type State int

const (
	StateConnected State = iota
	StateInChannel
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInChannel:
		return "in_channel"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Sink receives encoded frames for one connection. Send must not block.
type Sink interface {
	Send(frame []byte)
}

// Session binds a live connection to the identity it announced at connect
// time. UserID and DisplayName never change after creation.
type Session struct {
	ID          string
	UserID      string
	DisplayName string

	sink Sink

	mu             sync.Mutex
	state          State
	currentChannel string
}

func NewSession(userID, displayName string, sink Sink) *Session {
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		sink:        sink,
		state:       StateConnected,
	}
}

// tracked reports whether the session takes part in presence.
func (s *Session) tracked() bool {
	return s.UserID != "" && s.DisplayName != ""
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentChannel is the last channel joined and not yet left. It is a hint
// for clients, the session may be subscribed to other channels too.
func (s *Session) CurrentChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentChannel
}

func (s *Session) enterChannel(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return false
	}
	s.state = StateInChannel
	s.currentChannel = channelID
	return true
}

func (s *Session) exitChannel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return false
	}
	s.state = StateConnected
	s.currentChannel = ""
	return true
}

// close moves the session to its terminal state. It returns false when the
// session was already closed.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return false
	}
	s.state = StateDisconnected
	s.currentChannel = ""
	return true
}

func (s *Session) alive() bool {
	return s.State() != StateDisconnected
}

func (s *Session) send(frame []byte) {
	if s.sink != nil {
		s.sink.Send(frame)
	}
}
