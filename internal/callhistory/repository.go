package callhistory

import (
	"context"
	"time"

	"call-signaling/internal/calls"
)

// Repository persists call records.
//
// Status changes go through Transition only. Implementations must apply it as a
// single conditional update so that concurrent transitions out of the same status
// cannot both succeed.
type Repository interface {
	Create(ctx context.Context, c calls.Call) error
	Get(ctx context.Context, id string) (calls.Call, error)

	// Transition moves the call to `to` if its current status is one of `from`.
	// It returns calls.ErrStaleStatus when the status no longer matches and
	// calls.ErrCallNotFound when the id is unknown.
	Transition(ctx context.Context, id string, from []calls.CallStatus, to calls.CallStatus, at time.Time) (calls.Call, error)

	// AddParticipants appends user ids not already present, preserving order.
	AddParticipants(ctx context.Context, id string, userIDs []string, at time.Time) (calls.Call, error)

	// FindRinging returns the newest ringing call where userID participates but is not the caller.
	FindRinging(ctx context.Context, userID string) (calls.Call, bool, error)

	ListHistory(ctx context.Context, q HistoryQuery) ([]calls.Call, error)

	// HideForUser adds userID to deleteFrom of one call, or of all the user's calls when callID is empty.
	HideForUser(ctx context.Context, userID, callID string, at time.Time) error

	// ListCalls returns every call the user took part in, created within [from, to).
	ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Call, error)
}

type HistoryQuery struct {
	UserID   string
	Statuses []calls.CallStatus
	// Before pages backwards by creation time; zero means from the newest.
	Before time.Time
	Limit  int
}
