// Package account registers users and checks their credentials.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"chathive/internal/store"
)

var (
	ErrMissingFields      = errors.New("missing fields")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// MinCost is the lowest bcrypt cost accepted for new hashes.
const MinCost = bcrypt.DefaultCost

var validate = validator.New()

type credentials struct {
	Username string `validate:"required,max=64"`
	Password string `validate:"required,max=72"`
}

type Service struct {
	users store.UserStore
	cost  int
	log   *slog.Logger
}

func NewService(users store.UserStore, cost int, log *slog.Logger) *Service {
	if cost < MinCost {
		cost = MinCost
	}
	return &Service{users: users, cost: cost, log: log}
}

// Register creates an account. Usernames are trimmed and lower-cased before
// being stored; store.ErrUsernameTaken is returned unchanged.
func (s *Service) Register(ctx context.Context, username, password string) (store.User, error) {
	c, err := normalize(username, password)
	if err != nil {
		return store.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return store.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.CreateUser(ctx, c.Username, hash)
	if err != nil {
		return store.User{}, err
	}
	s.log.Info("Account registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Login returns the account matching the credentials. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (store.User, error) {
	c, err := normalize(username, password)
	if err != nil {
		return store.User{}, err
	}

	u, err := s.users.FindUserByName(ctx, c.Username)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(c.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func normalize(username, password string) (credentials, error) {
	c := credentials{
		Username: strings.ToLower(strings.TrimSpace(username)),
		Password: password,
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "required" {
					return c, ErrMissingFields
				}
			}
		}
		return c, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return c, nil
}
