package messages

import (
	"time"

	"call-signaling/internal/calls"
)

type MessageType string

const (
	MessageTypeCall MessageType = "call"
	MessageTypeInfo MessageType = "info"
)

// Message is the companion chat line a call leaves in its room.
type Message struct {
	ID         string          `json:"id" db:"id"`
	RoomID     string          `json:"roomId" db:"room_id"`
	SenderID   string          `json:"senderId" db:"sender_id"`
	Type       MessageType     `json:"messageType" db:"message_type"`
	Content    string          `json:"content" db:"content"`
	Attachment *CallAttachment `json:"attachment,omitempty" db:"attachment"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}

type CallAttachment struct {
	CallID          string           `json:"callId"`
	CallStatus      calls.CallStatus `json:"callStatus"`
	WithVideo       bool             `json:"withVideo"`
	IsInvitation    bool             `json:"isInvitation,omitempty"`
	StartedAt       *time.Time       `json:"startAt,omitempty"`
	EndedAt         *time.Time       `json:"endAt,omitempty"`
	DurationSeconds int              `json:"durationSeconds,omitempty"`
}
