package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"chathive/internal/account"
	"chathive/internal/protocol"
	"chathive/internal/store"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type channelRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Missing fields")
		return
	}

	u, err := s.accounts.Register(r.Context(), body.Username, body.Password)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusCreated, userResponse{ID: u.ID, Username: u.Username})
	case errors.Is(err, account.ErrMissingFields):
		s.writeError(w, http.StatusBadRequest, "Missing fields")
	case errors.Is(err, account.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, "Invalid fields")
	case errors.Is(err, store.ErrUsernameTaken):
		s.writeError(w, http.StatusConflict, "Username already taken")
	default:
		s.serverError(w, r, err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Missing fields")
		return
	}

	u, err := s.accounts.Login(r.Context(), body.Username, body.Password)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, userResponse{ID: u.ID, Username: u.Username})
	case errors.Is(err, account.ErrMissingFields):
		s.writeError(w, http.StatusBadRequest, "Missing fields")
	case errors.Is(err, account.ErrInvalidCredentials), errors.Is(err, account.ErrInvalidInput):
		s.writeError(w, http.StatusUnauthorized, "Invalid credentials")
	default:
		s.serverError(w, r, err)
	}
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var body channelRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "Name required")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if err := validate.Struct(body); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Tag() == "max" {
			s.writeError(w, http.StatusBadRequest, "Name too long")
			return
		}
		s.writeError(w, http.StatusBadRequest, "Name required")
		return
	}

	ch, err := s.channels.CreateChannel(r.Context(), body.Name)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.channels.ListChannels(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, channels)
}

// handleMessages serves one page of history, oldest first. Older pages are
// fetched by passing the createdAt of the first message as before.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	q := store.MessageQuery{
		ChannelID: mux.Vars(r)["id"],
		Limit:     s.cfg.HistoryDefaultLimit,
	}

	params := r.URL.Query()
	if raw := params.Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid before")
			return
		}
		q.Before = &before
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		q.Limit = min(limit, s.cfg.HistoryMaxLimit)
	}

	msgs, err := s.messages.QueryMessages(r.Context(), q)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, lo.Map(msgs, func(m store.Message, _ int) protocol.Message {
		return toMessageDTO(m)
	}))
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.live.Members(mux.Vars(r)["id"]))
}

func (s *Server) handlePresence(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.live.Presence())
}

func toMessageDTO(m store.Message) protocol.Message {
	return protocol.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		UserID:    m.UserID,
		Username:  m.Username,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
