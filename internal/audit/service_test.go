package audit

import (
	"context"
	"testing"

	"call-signaling/internal/calls"
)

func TestService_AppendValidatesEvents(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error for missing type")
	}
	if err := svc.Append(context.Background(), Event{Type: EventTypeCallTransition}); err == nil {
		t.Fatalf("expected error for transition without call id")
	}
}

func TestService_LogCallTransition(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogCallTransition(context.Background(), "c1", "r1", "system", calls.CallStatusRing, calls.CallStatusTimeout); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	e := evs[0]
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
	if e.FromStatus != calls.CallStatusRing || e.ToStatus != calls.CallStatusTimeout || e.Message != "ring -> timeout" {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestService_LogAdminAction(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogAdminAction(context.Background(), "ops", "admin", "1.2.3.4", "u1", "presence cleared", `{"callId":"c1"}`); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].IPAddress != "1.2.3.4" || evs[0].TargetUserID != "u1" || evs[0].Type != EventTypeAdminAction {
		t.Fatalf("unexpected events %+v", evs)
	}
}
