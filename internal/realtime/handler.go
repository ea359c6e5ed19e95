package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const (
	DefaultSendBufferSize = 64
	DefaultMaxMessageSize = 64 * 1024
)

type HandlerConfig struct {
	// AllowedOrigins lists accepted Origin values as scheme://host. "*"
	// accepts any origin, including requests without one.
	AllowedOrigins []string
	SendBufferSize int
	MaxMessageSize int64
}

// Handler upgrades GET /ws?userId=&username= to a websocket session.
type Handler struct {
	coord      *Coordinator
	upgrader   websocket.Upgrader
	allowAll   bool
	origins    map[string]struct{}
	sendBuffer int
	maxMessage int64
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*client]struct{}
	wg      sync.WaitGroup
}

func NewHandler(coord *Coordinator, cfg HandlerConfig, log *slog.Logger) *Handler {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = DefaultSendBufferSize
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		coord:      coord,
		sendBuffer: cfg.SendBufferSize,
		maxMessage: cfg.MaxMessageSize,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		clients:    make(map[*client]struct{}),
	}
	h.origins, h.allowAll = normalizeOrigins(cfg.AllowedOrigins, log)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if !errors.Is(err, http.ErrHijacked) {
			h.log.Debug("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		}
		return
	}

	q := r.URL.Query()
	c := newClient(conn, h.coord, h.sendBuffer, h.maxMessage, h.log)
	c.session = NewSession(strings.TrimSpace(q.Get("userId")), strings.TrimSpace(q.Get("username")), c)

	if !h.track(c) {
		_ = conn.Close()
		return
	}
	defer h.untrack(c)

	h.coord.Connect(c.session)
	go c.writeLoop()
	c.readLoop(h.ctx)
}

func (h *Handler) track(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.wg.Done()
}

// Shutdown closes every open websocket and waits for their sessions to be
// released or for ctx to expire. http.Server.Shutdown does not cover
// hijacked connections.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.cancel()
	for c := range h.clients {
		c.close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.allowAll {
		return true
	}
	origin, ok := normalizeOrigin(r.Header.Get("Origin"))
	if ok {
		if _, allowed := h.origins[origin]; allowed {
			return true
		}
	}
	h.log.Warn("Blocked websocket from disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}

func normalizeOrigins(origins []string, log *slog.Logger) (map[string]struct{}, bool) {
	normalized := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			allowAll = true
			continue
		}
		n, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("Ignoring invalid origin", "origin", origin)
			continue
		}
		normalized[n] = struct{}{}
	}
	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
