package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_CountsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	r.Transition("ring", "inCall")
	r.Transition("ring", "inCall")
	r.RingTimeout(false)

	if got := testutil.ToFloat64(r.transitions.WithLabelValues("ring", "inCall")); got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := testutil.ToFloat64(r.timeouts.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("expected 1 skipped timeout, got %v", got)
	}
}

func TestRecorder_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewRecorder(reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := NewRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.CallCreated("single")
	r.Transition("ring", "timeout")
	r.SocketOpened()
	r.SetPendingRings(3)
}
