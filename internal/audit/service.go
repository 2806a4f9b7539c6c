package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"call-signaling/internal/calls"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; there are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Type == EventTypeCallTransition && (e.CallID == "" || e.ToStatus == "") {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCallTransition records one committed call status change.
func (s *Service) LogCallTransition(ctx context.Context, callID, roomID, actorUserID string, from, to calls.CallStatus) error {
	return s.Append(ctx, Event{
		Type:        EventTypeCallTransition,
		ActorUserID: actorUserID,
		CallID:      callID,
		RoomID:      roomID,
		FromStatus:  from,
		ToStatus:    to,
		Message:     fmt.Sprintf("%s -> %s", from, to),
	})
}

// LogAdminAction records an operator action against a user's call state.
func (s *Service) LogAdminAction(ctx context.Context, actorUserID, actorRole, ip, targetUserID, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:         EventTypeAdminAction,
		ActorUserID:  actorUserID,
		ActorRole:    actorRole,
		IPAddress:    ip,
		TargetUserID: targetUserID,
		Message:      message,
		Metadata:     metadata,
	})
}
