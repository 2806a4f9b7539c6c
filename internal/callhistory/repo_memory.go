package callhistory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"call-signaling/internal/calls"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]calls.Call
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{calls: map[string]calls.Call{}} }

func (r *MemoryRepo) Create(ctx context.Context, c calls.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[c.ID] = clone(c)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (calls.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return calls.Call{}, calls.ErrCallNotFound
	}
	return clone(c), nil
}

func (r *MemoryRepo) Transition(ctx context.Context, id string, from []calls.CallStatus, to calls.CallStatus, at time.Time) (calls.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return calls.Call{}, calls.ErrCallNotFound
	}
	if !slices.Contains(from, c.Status) {
		return calls.Call{}, calls.ErrStaleStatus
	}
	c.Status = to
	if to == calls.CallStatusInCall && c.StartedAt == nil {
		t := at
		c.StartedAt = &t
	}
	if to.IsTerminal() {
		t := at
		c.EndedAt = &t
	}
	c.UpdatedAt = at
	r.calls[id] = c
	return clone(c), nil
}

func (r *MemoryRepo) AddParticipants(ctx context.Context, id string, userIDs []string, at time.Time) (calls.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return calls.Call{}, calls.ErrCallNotFound
	}
	for _, u := range userIDs {
		if !slices.Contains(c.Participants, u) {
			c.Participants = append(c.Participants, u)
		}
	}
	c.UpdatedAt = at
	r.calls[id] = c
	return clone(c), nil
}

func (r *MemoryRepo) FindRinging(ctx context.Context, userID string) (calls.Call, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		best  calls.Call
		found bool
	)
	for _, c := range r.calls {
		if c.Status != calls.CallStatusRing || c.CallerID == userID || !c.HasParticipant(userID) {
			continue
		}
		if !found || c.CreatedAt.After(best.CreatedAt) {
			best, found = c, true
		}
	}
	return clone(best), found, nil
}

func (r *MemoryRepo) ListHistory(ctx context.Context, q HistoryQuery) ([]calls.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Call, 0)
	for _, c := range r.calls {
		if !c.HasParticipant(q.UserID) || c.DeletedFor(q.UserID) {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, c.Status) {
			continue
		}
		if !q.Before.IsZero() && !c.CreatedAt.Before(q.Before) {
			continue
		}
		out = append(out, clone(c))
	}
	sortNewestFirst(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) HideForUser(ctx context.Context, userID, callID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if callID != "" {
		c, ok := r.calls[callID]
		if !ok || !c.HasParticipant(userID) {
			return calls.ErrCallNotFound
		}
		r.calls[callID] = hide(c, userID, at)
		return nil
	}
	for id, c := range r.calls {
		if c.HasParticipant(userID) {
			r.calls[id] = hide(c, userID, at)
		}
	}
	return nil
}

func (r *MemoryRepo) ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Call, 0)
	for _, c := range r.calls {
		if !c.HasParticipant(userID) {
			continue
		}
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		out = append(out, clone(c))
	}
	sortNewestFirst(out)
	return out, nil
}

func hide(c calls.Call, userID string, at time.Time) calls.Call {
	if !c.DeletedFor(userID) {
		c.DeleteFrom = append(slices.Clone(c.DeleteFrom), userID)
		c.UpdatedAt = at
	}
	return c
}

func clone(c calls.Call) calls.Call {
	c.Participants = slices.Clone(c.Participants)
	c.DeleteFrom = slices.Clone(c.DeleteFrom)
	return c
}

func sortNewestFirst(cs []calls.Call) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].CreatedAt.After(cs[j].CreatedAt) })
}
