package roomguard

import (
	"context"
	"errors"
	"testing"

	"call-signaling/internal/calls"
	"call-signaling/internal/directory"
)

func newDirectory() *directory.Memory {
	d := directory.NewMemory()
	d.AddRoom(directory.Room{ID: "r1", Type: calls.RoomTypeSingle}, "a", "b")
	return d
}

func TestAuthorize_MemberAllowed(t *testing.T) {
	g := New(newDirectory())
	acc, err := g.Authorize(context.Background(), "r1", "a")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if acc.Room.Type != calls.RoomTypeSingle || acc.Member.UserID != "a" {
		t.Fatalf("unexpected access: %+v", acc)
	}
}

func TestAuthorize_NonMemberDenied(t *testing.T) {
	g := New(newDirectory())
	if _, err := g.Authorize(context.Background(), "r1", "z"); !errors.Is(err, calls.ErrNotRoomMember) {
		t.Fatalf("expected not member, got %v", err)
	}
}

func TestAuthorize_BannedDenied(t *testing.T) {
	d := newDirectory()
	d.SetBanned("r1", "b", true)
	g := New(d)
	_, err := g.Authorize(context.Background(), "r1", "b")
	if !errors.Is(err, calls.ErrBanned) {
		t.Fatalf("expected banned, got %v", err)
	}
	if !calls.IsAuthorization(err) {
		t.Fatalf("banned must be an authorization failure")
	}
}

func TestAuthorize_UnknownRoom(t *testing.T) {
	g := New(newDirectory())
	if _, err := g.Authorize(context.Background(), "nope", "a"); !errors.Is(err, calls.ErrRoomNotFound) {
		t.Fatalf("expected room not found, got %v", err)
	}
}
