package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/alphabot-ai/blogapi/internal/model"
	"github.com/alphabot-ai/blogapi/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token is not valid")
)

// Service registers users, checks passwords and issues signed tokens.
type Service struct {
	users    store.UserStore
	secret   []byte
	tokenTTL time.Duration
	cost     int
	now      func() time.Time
}

func NewService(users store.UserStore, secret string, tokenTTL time.Duration, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		users:    users,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		cost:     cost,
		now:      time.Now,
	}
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register hashes the password and stores a new reader. The plaintext never
// reaches the store.
func (s *Service) Register(ctx context.Context, in Registration) (model.User, error) {
	if in.Password == "" {
		return model.User{}, errors.Wrap(model.ErrValidation, "password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return model.User{}, errors.Wrap(err, "hash password")
	}
	user := model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         model.RoleReader,
	}
	if _, err := s.users.CreateUser(ctx, &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// Login returns a signed token for the user. Unknown usernames and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.IssueToken(user)
}
