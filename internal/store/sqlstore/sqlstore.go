// Package sqlstore implements store.Store on database/sql, for SQLite
// (modernc.org/sqlite, no cgo) and MySQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"chathive/internal/store"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type Store struct {
	db     *sql.DB
	driver string
}

var _ store.Store = (*Store)(nil)

// Open connects to the database and checks it is reachable. The schema is
// not touched until Migrate is called.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverMySQL:
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("sqlstore: empty dsn")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer at a time, readers share the same connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	statements := sqliteSchema
	if s.driver == DriverMySQL {
		statements = mysqlSchema
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        username TEXT NOT NULL UNIQUE,
        password_hash BLOB NOT NULL,
        created_at INTEGER NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS channels (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        created_at INTEGER NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        channel_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        content TEXT NOT NULL,
        created_at INTEGER NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS messages_channel_created ON messages (channel_id, created_at)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id VARCHAR(36) PRIMARY KEY,
        username VARCHAR(255) NOT NULL UNIQUE,
        password_hash VARBINARY(255) NOT NULL,
        created_at BIGINT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS channels (
        id VARCHAR(26) PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        created_at BIGINT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS messages (
        id VARCHAR(26) PRIMARY KEY,
        channel_id VARCHAR(255) NOT NULL,
        user_id VARCHAR(255) NOT NULL,
        content TEXT NOT NULL,
        created_at BIGINT NOT NULL,
        INDEX messages_channel_created (channel_id, created_at)
    )`,
}

func (s *Store) FindUserByName(ctx context.Context, name string) (store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, name)
	return scanUser(row)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (store.User, error) {
	var u store.User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, store.ErrNotFound
		}
		return store.User{}, err
	}
	u.CreatedAt = fromNanos(createdAt)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, name string, passwordHash []byte) (store.User, error) {
	u := store.User{
		ID:           uuid.NewString(),
		Username:     name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return store.User{}, store.ErrUsernameTaken
		}
		return store.User{}, err
	}
	return u, nil
}

func (s *Store) CreateChannel(ctx context.Context, name string) (store.Channel, error) {
	ch := store.Channel{
		ID:        ulid.Make().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO channels (id, name, created_at) VALUES (?, ?, ?)`,
		ch.ID, ch.Name, ch.CreatedAt.UnixNano())
	if err != nil {
		return store.Channel{}, err
	}
	return ch, nil
}

func (s *Store) ListChannels(ctx context.Context) ([]store.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM channels ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []store.Channel{}
	for rows.Next() {
		var ch store.Channel
		var createdAt int64
		if err := rows.Scan(&ch.ID, &ch.Name, &createdAt); err != nil {
			return nil, err
		}
		ch.CreatedAt = fromNanos(createdAt)
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

const selectMessage = `
        SELECT m.id, m.channel_id, m.user_id, COALESCE(u.username, ''), m.content, m.created_at
        FROM messages m
        LEFT JOIN users u ON u.id = m.user_id`

func (s *Store) CreateMessage(ctx context.Context, channelID, userID, content string) (store.Message, error) {
	id := ulid.Make().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO messages (id, channel_id, user_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, channelID, userID, content, now.UnixNano())
	if err != nil {
		return store.Message{}, err
	}

	row := s.db.QueryRowContext(ctx, selectMessage+` WHERE m.id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		return store.Message{}, err
	}
	return msg, nil
}

func (s *Store) QueryMessages(ctx context.Context, q store.MessageQuery) ([]store.Message, error) {
	query := selectMessage + ` WHERE m.channel_id = ?`
	args := []any{q.ChannelID}
	if q.Before != nil {
		query += ` AND m.created_at < ?`
		args = append(args, q.Before.UnixNano())
	}
	query += ` ORDER BY m.created_at DESC, m.id DESC LIMIT ?`
	args = append(args, q.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []store.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (store.Message, error) {
	var msg store.Message
	var createdAt int64
	if err := row.Scan(&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Username, &msg.Content, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Message{}, store.ErrNotFound
		}
		return store.Message{}, err
	}
	msg.CreatedAt = fromNanos(createdAt)
	return msg, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
