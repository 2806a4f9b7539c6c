package presence

import (
	"context"
	"sync"
	"time"

	"call-signaling/internal/calls"
)

// MemoryRegistry is a process-local Registry. Useful for tests and single-node dev runs.
type MemoryRegistry struct {
	mu       sync.Mutex
	statuses map[string]calls.GlobalStatus
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{statuses: map[string]calls.GlobalStatus{}}
}

func (r *MemoryRegistry) Get(ctx context.Context, userID string) (calls.GlobalStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[userID], nil
}

func (r *MemoryRegistry) Set(ctx context.Context, userID string, st calls.GlobalStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st.IsEmpty() {
		delete(r.statuses, userID)
		return nil
	}
	r.statuses[userID] = st
	return nil
}

func (r *MemoryRegistry) Clear(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.statuses, userID)
	return nil
}

func (r *MemoryRegistry) ClearIf(ctx context.Context, userID, callID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.statuses[userID]
	if !ok || cur.CallID != callID {
		return false, nil
	}
	delete(r.statuses, userID)
	return true, nil
}

func (r *MemoryRegistry) SetIfFree(ctx context.Context, userID string, st calls.GlobalStatus) (calls.GlobalStatus, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.statuses[userID]
	if ok && cur.CallID != st.CallID {
		return cur, false, nil
	}
	r.statuses[userID] = st
	return st, true, nil
}

// MemoryDevices is a process-local DeviceTracker. With a TTL it expires
// devices that stop sending heartbeats, like RedisDevices does.
type MemoryDevices struct {
	mu      sync.Mutex
	devices map[string]int
	expires map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryDevices() *MemoryDevices { return NewMemoryDevicesTTL(0) }

// NewMemoryDevicesTTL expires a device ttl after its last MarkOnline or Touch. Zero never expires.
func NewMemoryDevicesTTL(ttl time.Duration) *MemoryDevices {
	return &MemoryDevices{
		devices: map[string]int{},
		expires: map[string]time.Time{},
		ttl:     ttl,
		now:     time.Now,
	}
}

// MarkOnline counts connections so a device with two sockets stays online until both close.
func (d *MemoryDevices) MarkOnline(ctx context.Context, userID, deviceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expire(deviceID)
	d.devices[deviceID]++
	d.extend(deviceID)
	return nil
}

func (d *MemoryDevices) MarkOffline(ctx context.Context, userID, deviceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expire(deviceID)
	if d.devices[deviceID] <= 1 {
		delete(d.devices, deviceID)
		delete(d.expires, deviceID)
		return nil
	}
	d.devices[deviceID]--
	return nil
}

func (d *MemoryDevices) IsOnline(ctx context.Context, deviceID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expire(deviceID)
	return d.devices[deviceID] > 0, nil
}

func (d *MemoryDevices) Touch(ctx context.Context, deviceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expire(deviceID)
	if d.devices[deviceID] > 0 {
		d.extend(deviceID)
	}
	return nil
}

func (d *MemoryDevices) extend(deviceID string) {
	if d.ttl > 0 {
		d.expires[deviceID] = d.now().Add(d.ttl)
	}
}

// expire drops the counter once its deadline passed, as a Redis key expiry would.
func (d *MemoryDevices) expire(deviceID string) {
	exp, ok := d.expires[deviceID]
	if ok && !d.now().Before(exp) {
		delete(d.devices, deviceID)
		delete(d.expires, deviceID)
	}
}
