// Package api exposes the HTTP surface: account and channel endpoints,
// message history, live presence snapshots and the websocket endpoint.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"chathive/internal/protocol"
	"chathive/internal/store"
)

const (
	DefaultHistoryLimit = store.DefaultHistoryLimit
	DefaultHistoryMax   = 100
)

var validate = validator.New()

type Accounts interface {
	Register(ctx context.Context, username, password string) (store.User, error)
	Login(ctx context.Context, username, password string) (store.User, error)
}

// Live reads the in-memory presence state.
type Live interface {
	Presence() []protocol.OnlineUser
	Members(channelID string) protocol.ChannelMembers
}

type Config struct {
	HistoryDefaultLimit int
	HistoryMaxLimit     int
	// StaticDir, when set, is served at the root for the browser client.
	StaticDir string
}

type Server struct {
	accounts Accounts
	channels store.ChannelStore
	messages store.MessageStore
	live     Live
	ws       http.Handler
	cfg      Config
	log      *slog.Logger
}

func New(
	accounts Accounts,
	channels store.ChannelStore,
	messages store.MessageStore,
	live Live,
	ws http.Handler,
	cfg Config,
	log *slog.Logger,
) *Server {
	if cfg.HistoryDefaultLimit <= 0 {
		cfg.HistoryDefaultLimit = DefaultHistoryLimit
	}
	if cfg.HistoryMaxLimit < cfg.HistoryDefaultLimit {
		cfg.HistoryMaxLimit = max(DefaultHistoryMax, cfg.HistoryDefaultLimit)
	}
	return &Server{
		accounts: accounts,
		channels: channels,
		messages: messages,
		live:     live,
		ws:       ws,
		cfg:      cfg,
		log:      log,
	}
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.log))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.ws != nil {
		r.Handle("/ws", s.ws).Methods(http.MethodGet)
	}

	a := r.PathPrefix("/api").Subrouter()
	a.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	a.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	a.HandleFunc("/channels", s.handleListChannels).Methods(http.MethodGet)
	a.HandleFunc("/channels", s.handleCreateChannel).Methods(http.MethodPost)
	a.HandleFunc("/channels/{id}/messages", s.handleMessages).Methods(http.MethodGet)
	a.HandleFunc("/channels/{id}/members", s.handleMembers).Methods(http.MethodGet)
	a.HandleFunc("/presence", s.handlePresence).Methods(http.MethodGet)

	if s.cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.StaticDir))).Methods(http.MethodGet, http.MethodHead)
	}
	return r
}

type errorResponse struct {
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Writing response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Message: message})
}

// serverError logs err and answers with a generic 500.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	s.writeError(w, http.StatusInternalServerError, "Server error")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
