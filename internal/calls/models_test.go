package calls

import (
	"errors"
	"testing"
	"time"
)

func TestCallStatusTerminalSet(t *testing.T) {
	terminal := []CallStatus{
		CallStatusFinished,
		CallStatusCanceled,
		CallStatusRejected,
		CallStatusTimeout,
		CallStatusOffline,
	}
	for _, s := range terminal {
		if !s.IsTerminal() || s.IsActive() {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
	if CallStatusRing.IsTerminal() || CallStatusInCall.IsTerminal() {
		t.Fatalf("ring and inCall must not be terminal")
	}
}

func TestNext_FollowsStateGraph(t *testing.T) {
	cases := []struct {
		from   CallStatus
		action Action
		want   CallStatus
	}{
		{CallStatusRing, ActionAccept, CallStatusInCall},
		{CallStatusInCall, ActionAccept, CallStatusInCall},
		{CallStatusRing, ActionReject, CallStatusRejected},
		{CallStatusRing, ActionCancel, CallStatusCanceled},
		{CallStatusRing, ActionTimeout, CallStatusTimeout},
		{CallStatusRing, ActionOffline, CallStatusOffline},
		{CallStatusInCall, ActionEnd, CallStatusFinished},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.action)
		if err != nil {
			t.Fatalf("%s/%s: unexpected err: %v", tc.from, tc.action, err)
		}
		if got != tc.want {
			t.Fatalf("%s/%s: expected %q, got %q", tc.from, tc.action, tc.want, got)
		}
	}
}

func TestNext_RejectsLeavingTerminalStates(t *testing.T) {
	actions := []Action{ActionAccept, ActionReject, ActionCancel, ActionEnd, ActionTimeout, ActionOffline}
	for _, s := range []CallStatus{CallStatusFinished, CallStatusCanceled, CallStatusRejected, CallStatusTimeout, CallStatusOffline} {
		for _, a := range actions {
			if _, err := Next(s, a); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected invalid transition for %s/%s, got %v", s, a, err)
			}
		}
	}
}

func TestNext_EndNotAllowedWhileRinging(t *testing.T) {
	if _, err := Next(CallStatusRing, ActionEnd); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Next(CallStatusInCall, ActionCancel); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSources(t *testing.T) {
	got := Sources(ActionAccept)
	if len(got) != 2 {
		t.Fatalf("expected ring and inCall, got %v", got)
	}
	if got := Sources(ActionTimeout); len(got) != 1 || got[0] != CallStatusRing {
		t.Fatalf("expected only ring, got %v", got)
	}
}

func TestCallDuration(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	end := start.Add(90 * time.Second)
	c := Call{StartedAt: &start}
	if c.Duration() != 0 {
		t.Fatalf("expected zero duration before end")
	}
	c.EndedAt = &end
	if c.Duration() != 90*time.Second {
		t.Fatalf("expected 90s, got %s", c.Duration())
	}
}

func TestErrorTaxonomy(t *testing.T) {
	if !IsPrecondition(ErrPeerBusy) || IsAuthorization(ErrPeerBusy) {
		t.Fatalf("peer busy is a precondition failure")
	}
	if !IsAuthorization(ErrBanned) {
		t.Fatalf("banned is an authorization failure")
	}
	if !IsReachability(ErrPeerDeviceOffline) {
		t.Fatalf("device offline is a reachability failure")
	}
	if !IsNotFound(ErrCallNotFound) {
		t.Fatalf("call not found is a lookup failure")
	}
}
