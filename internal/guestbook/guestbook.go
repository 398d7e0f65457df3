package guestbook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyMessage = errors.New("guestbook message is empty")
	ErrOwnFarm      = errors.New("cannot sign your own guestbook")
)

// Message is one note a visitor left on a farm.
type Message struct {
	ID             string    `db:"id" json:"id"`
	FarmOwnerID    string    `db:"farm_owner_id" json:"-"`
	SenderID       string    `db:"sender_id" json:"-"`
	SenderNickname string    `db:"sender_nickname" json:"sender"`
	Body           string    `db:"message" json:"message"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Store persists guestbook messages. MessagesForFarm returns newest first
// with SenderNickname resolved.
type Store interface {
	AddMessage(ctx context.Context, m Message) error
	MessagesForFarm(ctx context.Context, farmOwnerID string) ([]Message, error)
}

type Service struct {
	store Store
	log   *logrus.Logger
}

func NewService(store Store, log *logrus.Logger) *Service {
	return &Service{store: store, log: log}
}

// Post leaves a message on another user's farm.
func (s *Service) Post(ctx context.Context, farmOwnerID, senderID, senderNickname, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyMessage
	}
	if farmOwnerID == senderID {
		return Message{}, ErrOwnFarm
	}
	m := Message{
		ID:             uuid.NewString(),
		FarmOwnerID:    farmOwnerID,
		SenderID:       senderID,
		SenderNickname: senderNickname,
		Body:           body,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.AddMessage(ctx, m); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, farmOwnerID string) ([]Message, error) {
	return s.store.MessagesForFarm(ctx, farmOwnerID)
}
