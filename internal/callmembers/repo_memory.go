package callmembers

import (
	"context"
	"sync"

	"call-signaling/internal/calls"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	members []calls.Membership
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Record(ctx context.Context, m calls.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = append(r.members, m)
	return nil
}

func (r *MemoryRepo) LatestDevice(ctx context.Context, callID, userID string) (calls.Membership, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.members) - 1; i >= 0; i-- {
		m := r.members[i]
		if m.CallID == callID && m.UserID == userID {
			return m, true, nil
		}
	}
	return calls.Membership{}, false, nil
}

func (r *MemoryRepo) ListByCall(ctx context.Context, callID string) ([]calls.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Membership, 0)
	for _, m := range r.members {
		if m.CallID == callID {
			out = append(out, m)
		}
	}
	return out, nil
}
