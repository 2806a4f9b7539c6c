package messages

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidMessage = errors.New("messages: invalid message")

// Service posts call messages into a room feed.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Post(ctx context.Context, m Message) (Message, error) {
	if s.repo == nil {
		return Message{}, errors.New("messages: repository not configured")
	}
	if m.RoomID == "" || m.SenderID == "" || m.Content == "" {
		return Message{}, ErrInvalidMessage
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Type == "" {
		m.Type = MessageTypeCall
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock().UTC()
	}
	if err := s.repo.Append(ctx, m); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (s *Service) Recent(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListByRoom(ctx, roomID, limit)
}
