// Package badgerstore implements store.Store on an embedded BadgerDB.
//
// Key layout:
//
//	user:name:{username}                    -> user record
//	user:id:{id}                            -> username
//	channel:{created_unix_nano}:{ulid}      -> channel record
//	msg:{hex(channel)}:{created_unix_nano}:{ulid} -> message record
//
// Timestamps are zero padded to 19 digits so lexicographic key order is
// chronological, which lets history pages be served by a reverse prefix scan.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"chathive/internal/store"
)

type Store struct {
	db  *badger.DB
	log *slog.Logger
}

var _ store.Store = (*Store)(nil)

func Open(path string, log *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("badgerstore: empty path")
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate is a no-op: badger has no schema.
func (s *Store) Migrate(context.Context) error {
	return nil
}

type userRecord struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash []byte `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

type channelRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

type messageRecord struct {
	ID        string `json:"id"`
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

func userNameKey(name string) []byte { return []byte("user:name:" + name) }
func userIDKey(id string) []byte     { return []byte("user:id:" + id) }

func channelKey(createdAt int64, id string) []byte {
	return []byte(fmt.Sprintf("channel:%019d:%s", createdAt, id))
}

func messagePrefix(channelID string) []byte {
	return []byte(fmt.Sprintf("msg:%x:", channelID))
}

func messageKey(channelID string, createdAt int64, id string) []byte {
	return append(messagePrefix(channelID), []byte(fmt.Sprintf("%019d:%s", createdAt, id))...)
}

func (s *Store) CreateUser(ctx context.Context, name string, passwordHash []byte) (store.User, error) {
	if err := ctx.Err(); err != nil {
		return store.User{}, err
	}
	rec := userRecord{
		ID:           uuid.NewString(),
		Username:     name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().UnixNano(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return store.User{}, fmt.Errorf("marshal user: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(userNameKey(name))
		if err == nil {
			return store.ErrUsernameTaken
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(userNameKey(name), data); err != nil {
			return err
		}
		return txn.Set(userIDKey(rec.ID), []byte(name))
	})
	if err != nil {
		return store.User{}, err
	}
	return rec.toUser(), nil
}

func (s *Store) FindUserByName(ctx context.Context, name string) (store.User, error) {
	if err := ctx.Err(); err != nil {
		return store.User{}, err
	}
	var user store.User
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, name)
		return err
	})
	return user, err
}

func (s *Store) FindUserByID(ctx context.Context, id string) (store.User, error) {
	if err := ctx.Err(); err != nil {
		return store.User{}, err
	}
	var user store.User
	err := s.db.View(func(txn *badger.Txn) error {
		name, err := usernameOf(txn, id)
		if err != nil {
			return err
		}
		user, err = getUser(txn, name)
		return err
	})
	return user, err
}

func getUser(txn *badger.Txn, name string) (store.User, error) {
	item, err := txn.Get(userNameKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, err
	}
	var rec userRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return store.User{}, err
	}
	return rec.toUser(), nil
}

func usernameOf(txn *badger.Txn, id string) (string, error) {
	item, err := txn.Get(userIDKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (r userRecord) toUser() store.User {
	return store.User{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    time.Unix(0, r.CreatedAt).UTC(),
	}
}

func (s *Store) CreateChannel(ctx context.Context, name string) (store.Channel, error) {
	if err := ctx.Err(); err != nil {
		return store.Channel{}, err
	}
	rec := channelRecord{
		ID:        ulid.Make().String(),
		Name:      name,
		CreatedAt: time.Now().UTC().UnixNano(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return store.Channel{}, fmt.Errorf("marshal channel: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(channelKey(rec.CreatedAt, rec.ID), data)
	})
	if err != nil {
		return store.Channel{}, err
	}
	return rec.toChannel(), nil
}

func (s *Store) ListChannels(ctx context.Context) ([]store.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	channels := []store.Channel{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("channel:")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec channelRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			channels = append(channels, rec.toChannel())
		}
		return nil
	})
	return channels, err
}

func (r channelRecord) toChannel() store.Channel {
	return store.Channel{ID: r.ID, Name: r.Name, CreatedAt: time.Unix(0, r.CreatedAt).UTC()}
}

func (s *Store) CreateMessage(ctx context.Context, channelID, userID, content string) (store.Message, error) {
	if err := ctx.Err(); err != nil {
		return store.Message{}, err
	}
	rec := messageRecord{
		ID:        ulid.Make().String(),
		ChannelID: channelID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC().UnixNano(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return store.Message{}, fmt.Errorf("marshal message: %w", err)
	}

	var msg store.Message
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(channelID, rec.CreatedAt, rec.ID), data); err != nil {
			return err
		}
		msg = s.resolve(txn, rec)
		return nil
	})
	if err != nil {
		return store.Message{}, err
	}
	return msg, nil
}

// QueryMessages walks the channel prefix backwards from Before (exclusive)
// and returns the page oldest-first.
func (s *Store) QueryMessages(ctx context.Context, q store.MessageQuery) ([]store.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := q.EffectiveLimit()
	msgs := []store.Message{}

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(q.ChannelID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte{}, prefix...)
		if q.Before != nil {
			seek = append(seek, []byte(fmt.Sprintf("%019d", q.Before.UTC().UnixNano()))...)
		} else {
			seek = append(seek, 0xFF)
		}

		for it.Seek(seek); it.ValidForPrefix(prefix) && len(msgs) < limit; it.Next() {
			var rec messageRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			msgs = append(msgs, s.resolve(txn, rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) resolve(txn *badger.Txn, rec messageRecord) store.Message {
	msg := store.Message{
		ID:        rec.ID,
		ChannelID: rec.ChannelID,
		UserID:    rec.UserID,
		Content:   rec.Content,
		CreatedAt: time.Unix(0, rec.CreatedAt).UTC(),
	}
	name, err := usernameOf(txn, rec.UserID)
	switch {
	case err == nil:
		msg.Username = name
	case !errors.Is(err, store.ErrNotFound):
		s.log.Warn("Resolving message author failed", "message_id", rec.ID, "error", err)
	}
	return msg
}
