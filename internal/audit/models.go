package audit

import (
	"time"

	"call-signaling/internal/calls"
)

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block call flows on audit failures.
//
// Storage (Postgres): table audit_events, INSERT-only.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the user causing the event, or "system" for timer-driven transitions.
	ActorUserID string `json:"actorUserId,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actorRole,omitempty" db:"actor_role"`
	IPAddress   string `json:"ipAddress,omitempty" db:"ip_address"`

	CallID       string           `json:"callId,omitempty" db:"call_id"`
	RoomID       string           `json:"roomId,omitempty" db:"room_id"`
	FromStatus   calls.CallStatus `json:"fromStatus,omitempty" db:"from_status"`
	ToStatus     calls.CallStatus `json:"toStatus,omitempty" db:"to_status"`
	TargetUserID string           `json:"targetUserId,omitempty" db:"target_user_id"`

	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type EventType string

const (
	EventTypeCallTransition EventType = "call_transition"
	EventTypeAdminAction    EventType = "admin_action"
)
