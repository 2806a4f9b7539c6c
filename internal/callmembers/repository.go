package callmembers

import (
	"context"

	"call-signaling/internal/calls"
)

// Repository records which device of a user joined which call.
type Repository interface {
	Record(ctx context.Context, m calls.Membership) error

	// LatestDevice returns the most recent membership of userID in callID.
	LatestDevice(ctx context.Context, callID, userID string) (calls.Membership, bool, error)

	ListByCall(ctx context.Context, callID string) ([]calls.Membership, error)
}
