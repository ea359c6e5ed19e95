//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

// Package store declares the durable collaborators of the chat core: user
// credentials, channels and message history. Implementations live in the
// sqlstore and badgerstore subpackages.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// DefaultHistoryLimit is used when a MessageQuery carries no limit.
const DefaultHistoryLimit = 30

type User struct {
	ID           string
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

type Channel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is a persisted chat line. Username is resolved from the author's
// account at read time and is empty when the author no longer exists.
type Message struct {
	ID        string
	ChannelID string
	UserID    string
	Username  string
	Content   string
	CreatedAt time.Time
}

// MessageQuery selects at most Limit messages of a channel created strictly
// before Before (when set).
type MessageQuery struct {
	ChannelID string
	Before    *time.Time
	Limit     int
}

func (q MessageQuery) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return q.Limit
}

type UserStore interface {
	FindUserByName(ctx context.Context, name string) (User, error)
	FindUserByID(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, name string, passwordHash []byte) (User, error)
}

type ChannelStore interface {
	CreateChannel(ctx context.Context, name string) (Channel, error)
	ListChannels(ctx context.Context) ([]Channel, error)
}

// MessageStore persists messages. QueryMessages returns the newest matching
// messages ordered oldest-first.
type MessageStore interface {
	CreateMessage(ctx context.Context, channelID, userID, content string) (Message, error)
	QueryMessages(ctx context.Context, q MessageQuery) ([]Message, error)
}

// Store is the full backing store opened at startup.
type Store interface {
	UserStore
	ChannelStore
	MessageStore
	Migrate(ctx context.Context) error
	Close() error
}
