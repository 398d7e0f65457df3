package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNicknameTaken      = errors.New("nickname already taken")
	ErrInvalidCredentials = errors.New("invalid nickname or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrMissingFields      = errors.New("nickname and password are required")
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Nickname     string    `db:"nickname" json:"nickname"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// UserStore persists farm owners. CreateUser must fail with ErrNicknameTaken
// on a duplicate nickname.
type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	UserByNickname(ctx context.Context, nickname string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	ListNicknames(ctx context.Context) ([]string, error)
}

// Service handles registration, login and token issuance.
type Service struct {
	store    UserStore
	tokens   *TokenManager
	tokenTTL time.Duration
	log      *logrus.Logger
}

func NewService(store UserStore, secret string, log *logrus.Logger) *Service {
	return &Service{
		store:    store,
		tokens:   NewTokenManager(secret),
		tokenTTL: 24 * time.Hour,
		log:      log,
	}
}

func (s *Service) Register(ctx context.Context, nickname, password string) (User, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || password == "" {
		return User{}, ErrMissingFields
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           uuid.NewString(),
		Nickname:     nickname,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	return s.store.CreateUser(ctx, u)
}

// Login verifies credentials and returns a signed access token.
func (s *Service) Login(ctx context.Context, nickname, password string) (string, User, error) {
	u, err := s.store.UserByNickname(ctx, strings.TrimSpace(nickname))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", User{}, ErrInvalidCredentials
		}
		return "", User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", User{}, ErrInvalidCredentials
	}
	token, err := s.tokens.Generate(u.ID, u.Nickname, s.tokenTTL)
	if err != nil {
		return "", User{}, err
	}
	return token, u, nil
}

func (s *Service) Users(ctx context.Context) ([]string, error) {
	return s.store.ListNicknames(ctx)
}
