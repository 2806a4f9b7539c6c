package media

import (
	"context"
	"fmt"
	"time"

	"call-signaling/internal/calls"
	"call-signaling/internal/roomguard"
)

type CallLookup interface {
	GetCall(ctx context.Context, userID, callID string) (calls.Call, error)
}

type RoomAuthorizer interface {
	Authorize(ctx context.Context, roomID, userID string) (roomguard.Access, error)
}

// Access is returned to the client so it can join the media channel.
type Access struct {
	Channel   string             `json:"channel"`
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expiresAt"`
	Platform  calls.MeetPlatform `json:"meetPlatform,omitempty"`
}

type Service struct {
	issuer *Issuer
	calls  CallLookup
	rooms  RoomAuthorizer
	clock  func() time.Time
}

func NewService(issuer *Issuer, lookup CallLookup, rooms RoomAuthorizer) *Service {
	return &Service{issuer: issuer, calls: lookup, rooms: rooms, clock: time.Now}
}

// CallAccess issues a token for the call's channel. Only participants of a
// ringing or running call get one.
func (s *Service) CallAccess(ctx context.Context, userID, callID string) (Access, error) {
	if callID == "" {
		return Access{}, fmt.Errorf("%w: call id required", calls.ErrInvalidArgument)
	}
	call, err := s.calls.GetCall(ctx, userID, callID)
	if err != nil {
		return Access{}, err
	}
	if !call.Status.IsActive() {
		return Access{}, fmt.Errorf("%w: call is %s", calls.ErrInvalidTransition, call.Status)
	}
	a, err := s.issue(call.ID, userID)
	if err != nil {
		return Access{}, err
	}
	a.Platform = call.MeetPlatform
	return a, nil
}

// RoomAccess issues a token for a room-wide channel.
func (s *Service) RoomAccess(ctx context.Context, userID, roomID string) (Access, error) {
	if _, err := s.rooms.Authorize(ctx, roomID, userID); err != nil {
		return Access{}, err
	}
	return s.issue(roomID, userID)
}

func (s *Service) issue(channel, userID string) (Access, error) {
	token, exp, err := s.issuer.Issue(s.clock().UTC(), channel, userID)
	if err != nil {
		return Access{}, fmt.Errorf("media: sign token: %w", err)
	}
	return Access{Channel: channel, Token: token, ExpiresAt: exp}, nil
}
