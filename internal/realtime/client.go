package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// client pumps frames between one websocket and its Session.
type client struct {
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	maxMessage int64

	session *Session
	coord   *Coordinator
	log     *slog.Logger
}

func newClient(conn *websocket.Conn, coord *Coordinator, buffer int, maxMessage int64, log *slog.Logger) *client {
	return &client{
		conn:       conn,
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
		maxMessage: maxMessage,
		coord:      coord,
		log:        log,
	}
}

// Send queues a frame without blocking. When the queue is full the oldest
// frame is dropped to make room.
func (c *client) Send(frame []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- frame:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- frame:
		default:
		}
	}
}

func (c *client) readLoop(ctx context.Context) {
	defer func() {
		c.coord.Disconnect(c.session)
		c.close()
	}()

	c.conn.SetReadLimit(c.maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, raw, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				c.log.Warn("Inbound frame too large", "session_id", c.session.ID, "limit", c.maxMessage)
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure):
				c.log.Warn("Websocket read failed", "session_id", c.session.ID, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		c.coord.Handle(ctx, c.session, raw)
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// close stops the write loop, which sends a close frame and releases the
// connection.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
