// Package directory reads the chat data owned by other services: rooms, their
// members, user profiles and push tokens. Call signaling never writes here.
package directory

import (
	"context"

	"call-signaling/internal/calls"
)

type Room struct {
	ID   string         `json:"id"`
	Type calls.RoomType `json:"roomType"`
	// Title is the group name; empty for direct rooms.
	Title string `json:"title,omitempty"`
	Image string `json:"image,omitempty"`
}

type Member struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Muted  bool   `json:"muted"`
	// Banned covers both a room-level ban and, for direct rooms, a block between the two users.
	Banned bool `json:"banned"`
}

type Profile struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Image    string `json:"userImage"`
}

type PushToken struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// Rooms resolves room metadata and membership.
type Rooms interface {
	Room(ctx context.Context, roomID string) (Room, error)
	Member(ctx context.Context, roomID, userID string) (Member, bool, error)
	// Peer returns the other member of a direct room.
	Peer(ctx context.Context, roomID, userID string) (string, error)
	Members(ctx context.Context, roomID string) ([]string, error)
}

type Users interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}

type PushTokens interface {
	PushTokens(ctx context.Context, userID string) ([]PushToken, error)
}

// Directory is the full read surface; both implementations satisfy it.
type Directory interface {
	Rooms
	Users
	PushTokens
}
