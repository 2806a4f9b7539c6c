package callhistory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"call-signaling/internal/calls"
)

const (
	DefaultHistoryLimit = 30
	MaxHistoryLimit     = 100
)

// HistoryStatuses are the outcomes shown in a user's call log.
var HistoryStatuses = []calls.CallStatus{
	calls.CallStatusCanceled,
	calls.CallStatusFinished,
	calls.CallStatusRejected,
	calls.CallStatusTimeout,
}

// Service exposes the per-user view of call history.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// History returns the user's finished calls, newest first.
func (s *Service) History(ctx context.Context, userID string, before time.Time, limit int) ([]calls.Call, error) {
	if s.repo == nil {
		return nil, errors.New("callhistory: repository not configured")
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", calls.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.repo.ListHistory(ctx, HistoryQuery{
		UserID:   userID,
		Statuses: HistoryStatuses,
		Before:   before,
		Limit:    limit,
	})
}

// DeleteAll hides every call of the user from their own history. Other participants are unaffected.
func (s *Service) DeleteAll(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id required", calls.ErrInvalidArgument)
	}
	return s.repo.HideForUser(ctx, userID, "", s.clock().UTC())
}

func (s *Service) DeleteOne(ctx context.Context, userID, callID string) error {
	if userID == "" || callID == "" {
		return fmt.Errorf("%w: user id and call id required", calls.ErrInvalidArgument)
	}
	return s.repo.HideForUser(ctx, userID, callID, s.clock().UTC())
}
