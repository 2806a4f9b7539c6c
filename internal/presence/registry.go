// Package presence owns the per-user "in a call" marker and the set of
// currently connected devices.
package presence

import (
	"context"

	"call-signaling/internal/calls"
)

// Registry stores at most one GlobalStatus per user.
//
// All methods are safe to call concurrently for the same user. Clearing an
// already empty status is not an error.
type Registry interface {
	Get(ctx context.Context, userID string) (calls.GlobalStatus, error)
	Set(ctx context.Context, userID string, st calls.GlobalStatus) error
	Clear(ctx context.Context, userID string) error

	// ClearIf clears the status only while it still points at callID.
	ClearIf(ctx context.Context, userID, callID string) (bool, error)

	// SetIfFree stores st when the user has no status or already holds st.CallID.
	// Otherwise it returns the status currently held and false.
	SetIfFree(ctx context.Context, userID string, st calls.GlobalStatus) (calls.GlobalStatus, bool, error)
}

// DeviceTracker knows which user devices currently hold a live socket.
type DeviceTracker interface {
	MarkOnline(ctx context.Context, userID, deviceID string) error
	MarkOffline(ctx context.Context, userID, deviceID string) error
	Touch(ctx context.Context, deviceID string) error
	IsOnline(ctx context.Context, deviceID string) (bool, error)
}
