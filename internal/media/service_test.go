package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-signaling/internal/calls"
	"call-signaling/internal/directory"
	"call-signaling/internal/roomguard"
)

type fakeCalls map[string]calls.Call

func (f fakeCalls) GetCall(ctx context.Context, userID, callID string) (calls.Call, error) {
	c, ok := f[callID]
	if !ok {
		return calls.Call{}, calls.ErrCallNotFound
	}
	if !c.HasParticipant(userID) {
		return calls.Call{}, calls.ErrNotParticipant
	}
	return c, nil
}

func newService(t *testing.T) (*Service, *Issuer) {
	t.Helper()
	iss, err := NewIssuer("media-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	dir := directory.NewMemory()
	dir.AddRoom(directory.Room{ID: "r1", Type: calls.RoomTypeGroup, Title: "Team"}, "a", "b")
	lookup := fakeCalls{
		"c-live":  {ID: "c-live", RoomID: "r1", Participants: []string{"a", "b"}, Status: calls.CallStatusInCall, MeetPlatform: calls.MeetPlatformWebRTC},
		"c-ended": {ID: "c-ended", RoomID: "r1", Participants: []string{"a", "b"}, Status: calls.CallStatusFinished},
	}
	return NewService(iss, lookup, roomguard.New(dir)), iss
}

func TestCallAccess_IssuesChannelToken(t *testing.T) {
	svc, iss := newService(t)
	acc, err := svc.CallAccess(context.Background(), "a", "c-live")
	if err != nil {
		t.Fatalf("CallAccess: %v", err)
	}
	if acc.Channel != "c-live" || acc.Platform != calls.MeetPlatformWebRTC {
		t.Fatalf("unexpected access: %+v", acc)
	}
	claims, err := iss.Parse(acc.Token, time.Now())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Channel != "c-live" || claims.UserID != "a" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestCallAccess_RequiresParticipantAndActiveCall(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.CallAccess(context.Background(), "z", "c-live"); !errors.Is(err, calls.ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := svc.CallAccess(context.Background(), "a", "c-ended"); !errors.Is(err, calls.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.CallAccess(context.Background(), "a", ""); !errors.Is(err, calls.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRoomAccess_RequiresMembership(t *testing.T) {
	svc, _ := newService(t)
	acc, err := svc.RoomAccess(context.Background(), "b", "r1")
	if err != nil {
		t.Fatalf("RoomAccess: %v", err)
	}
	if acc.Channel != "r1" || acc.Token == "" {
		t.Fatalf("unexpected access: %+v", acc)
	}
	if _, err := svc.RoomAccess(context.Background(), "z", "r1"); !errors.Is(err, calls.ErrNotRoomMember) {
		t.Fatalf("expected ErrNotRoomMember, got %v", err)
	}
}

func TestIssuer_RejectsExpiredAndForeignTokens(t *testing.T) {
	iss, _ := NewIssuer("media-secret", time.Minute)
	now := time.Now()
	tok, _, err := iss.Issue(now, "c1", "a")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := iss.Parse(tok, now.Add(2*time.Minute)); err == nil {
		t.Fatalf("expected expired token to fail")
	}
	other, _ := NewIssuer("other-secret", time.Minute)
	if _, err := other.Parse(tok, now); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}
