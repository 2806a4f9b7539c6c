package presence

import (
	"context"
	"testing"
	"time"

	"call-signaling/internal/calls"
)

func TestMemoryRegistry_SetIfFreeKeepsFirstCall(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	first := calls.GlobalStatus{IsCaller: true, CallID: "c1", PeerOrRoomID: "b", RoomID: "r", StartedAt: time.Now()}

	if _, ok, err := r.SetIfFree(ctx, "a", first); err != nil || !ok {
		t.Fatalf("expected first claim to succeed, ok=%v err=%v", ok, err)
	}
	// Same call id is idempotent.
	if _, ok, _ := r.SetIfFree(ctx, "a", first); !ok {
		t.Fatalf("expected re-claim of the same call to succeed")
	}
	held, ok, _ := r.SetIfFree(ctx, "a", calls.GlobalStatus{CallID: "c2"})
	if ok {
		t.Fatalf("expected second call to be refused")
	}
	if held.CallID != "c1" {
		t.Fatalf("expected held call c1, got %q", held.CallID)
	}
}

func TestMemoryRegistry_ClearIfOnlyClearsMatchingCall(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	_ = r.Set(ctx, "a", calls.GlobalStatus{CallID: "c2"})

	if cleared, _ := r.ClearIf(ctx, "a", "c1"); cleared {
		t.Fatalf("stale clear must not remove a newer call")
	}
	if cleared, _ := r.ClearIf(ctx, "a", "c2"); !cleared {
		t.Fatalf("expected clear")
	}
	// Already empty: benign.
	if cleared, err := r.ClearIf(ctx, "a", "c2"); cleared || err != nil {
		t.Fatalf("expected benign no-op, cleared=%v err=%v", cleared, err)
	}
	if err := r.Clear(ctx, "a"); err != nil {
		t.Fatalf("clear on empty: %v", err)
	}
	st, _ := r.Get(ctx, "a")
	if !st.IsEmpty() {
		t.Fatalf("expected empty status")
	}
}

func TestMemoryDevices_CountsConnections(t *testing.T) {
	d := NewMemoryDevices()
	ctx := context.Background()
	_ = d.MarkOnline(ctx, "u", "dev")
	_ = d.MarkOnline(ctx, "u", "dev")
	_ = d.MarkOffline(ctx, "u", "dev")
	if on, _ := d.IsOnline(ctx, "dev"); !on {
		t.Fatalf("expected device online while one socket remains")
	}
	_ = d.MarkOffline(ctx, "u", "dev")
	if on, _ := d.IsOnline(ctx, "dev"); on {
		t.Fatalf("expected device offline")
	}
}

func TestMemoryDevices_ExpireWithoutHeartbeat(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	d := NewMemoryDevicesTTL(90 * time.Second)
	d.now = func() time.Time { return now }

	_ = d.MarkOnline(ctx, "u", "dev")
	now = now.Add(60 * time.Second)
	_ = d.Touch(ctx, "dev")
	now = now.Add(60 * time.Second)
	if on, _ := d.IsOnline(ctx, "dev"); !on {
		t.Fatalf("expected touched device to stay online")
	}

	now = now.Add(91 * time.Second)
	if on, _ := d.IsOnline(ctx, "dev"); on {
		t.Fatalf("expected device to expire without heartbeats")
	}
	_ = d.Touch(ctx, "dev")
	if on, _ := d.IsOnline(ctx, "dev"); on {
		t.Fatalf("touch must not revive an expired device")
	}
}

func TestRedisScriptsCompile(t *testing.T) {
	if setIfFreeScript == nil || clearIfScript == nil || deviceOnlineScript == nil || deviceOfflineScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}
