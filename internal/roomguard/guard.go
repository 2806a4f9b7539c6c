// Package roomguard decides whether a user may perform a call action in a room.
package roomguard

import (
	"context"
	"errors"
	"fmt"

	"call-signaling/internal/calls"
	"call-signaling/internal/directory"
)

type Guard struct {
	rooms directory.Rooms
}

func New(rooms directory.Rooms) *Guard { return &Guard{rooms: rooms} }

// Access is what a successful authorization resolved.
type Access struct {
	Room   directory.Room
	Member directory.Member
}

// Authorize requires userID to be a non-banned member of roomID.
func (g *Guard) Authorize(ctx context.Context, roomID, userID string) (Access, error) {
	if g.rooms == nil {
		return Access{}, errors.New("roomguard: rooms directory not configured")
	}
	if roomID == "" || userID == "" {
		return Access{}, fmt.Errorf("%w: room id and user id required", calls.ErrInvalidArgument)
	}
	room, err := g.rooms.Room(ctx, roomID)
	if err != nil {
		return Access{}, err
	}
	member, ok, err := g.rooms.Member(ctx, roomID, userID)
	if err != nil {
		return Access{}, fmt.Errorf("roomguard: member lookup: %w", err)
	}
	if !ok {
		return Access{}, calls.ErrNotRoomMember
	}
	if member.Banned {
		return Access{}, calls.ErrBanned
	}
	return Access{Room: room, Member: member}, nil
}
