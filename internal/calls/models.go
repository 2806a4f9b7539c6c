package calls

import (
	"slices"
	"time"
)

// Call is one call session between two users (direct) or inside a group room.
//
// Invariants:
// - Participants always contains CallerID and, for direct calls, CalleeID.
// - Participants never shrinks after creation.
// - Status only moves along the edges of the transition table (see transitions.go).
type Call struct {
	ID       string `json:"id" db:"id"`
	CallerID string `json:"callerId" db:"caller_id"`
	// CalleeID is empty for group calls.
	CalleeID     string   `json:"calleeId,omitempty" db:"callee_id"`
	Participants []string `json:"participants" db:"participants"`

	RoomID       string       `json:"roomId" db:"room_id"`
	RoomType     RoomType     `json:"roomType" db:"room_type"`
	WithVideo    bool         `json:"withVideo" db:"with_video"`
	MeetPlatform MeetPlatform `json:"meetPlatform" db:"meet_platform"`

	Status CallStatus `json:"callStatus" db:"call_status"`

	// StartedAt is set when the call first reaches InCall.
	StartedAt *time.Time `json:"startedAt,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"endedAt,omitempty" db:"ended_at"`

	// DeleteFrom lists users who removed this call from their own history.
	DeleteFrom []string `json:"deleteFrom,omitempty" db:"delete_from"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

func (c Call) IsGroup() bool { return c.RoomType == RoomTypeGroup }

func (c Call) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

func (c Call) DeletedFor(userID string) bool {
	return slices.Contains(c.DeleteFrom, userID)
}

// Peer returns the other party of a direct call.
func (c Call) Peer(userID string) string {
	if c.CallerID == userID {
		return c.CalleeID
	}
	return c.CallerID
}

// Duration is zero until the call has both started and ended.
func (c Call) Duration() time.Duration {
	if c.StartedAt == nil || c.EndedAt == nil {
		return 0
	}
	d := c.EndedAt.Sub(*c.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

type CallStatus string

const (
	CallStatusRing     CallStatus = "ring"
	CallStatusInCall   CallStatus = "inCall"
	CallStatusFinished CallStatus = "finished"
	CallStatusCanceled CallStatus = "canceled"
	CallStatusRejected CallStatus = "rejected"
	CallStatusTimeout  CallStatus = "timeout"
	CallStatusOffline  CallStatus = "offline"
)

// IsActive reports whether the call still holds its parties (Ring or InCall).
func (s CallStatus) IsActive() bool {
	return s == CallStatusRing || s == CallStatusInCall
}

func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusFinished, CallStatusCanceled, CallStatusRejected, CallStatusTimeout, CallStatusOffline:
		return true
	default:
		return false
	}
}

type RoomType string

const (
	RoomTypeSingle RoomType = "single"
	RoomTypeGroup  RoomType = "group"
)

type MeetPlatform string

const (
	MeetPlatformWebRTC MeetPlatform = "webrtc"
	MeetPlatformAgora  MeetPlatform = "agora"
)

func (p MeetPlatform) Valid() bool {
	return p == MeetPlatformWebRTC || p == MeetPlatformAgora
}

// Membership records that a specific device of a user joined a call.
type Membership struct {
	ID           string    `json:"id" db:"id"`
	CallID       string    `json:"callId" db:"call_id"`
	UserID       string    `json:"userId" db:"user_id"`
	UserDeviceID string    `json:"userDeviceId" db:"user_device_id"`
	RoomID       string    `json:"roomId" db:"room_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// GlobalStatus is the per-user "currently in a call" marker.
// The zero value means the user is free.
type GlobalStatus struct {
	IsCaller bool   `json:"isCaller"`
	CallID   string `json:"callId"`
	// PeerOrRoomID is the peer user id for direct calls and the room id for group calls.
	PeerOrRoomID string    `json:"peerOrRoomId"`
	RoomID       string    `json:"roomId"`
	StartedAt    time.Time `json:"startedAt"`
}

func (s GlobalStatus) IsEmpty() bool { return s.CallID == "" }
