package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerScheduler_FiresOnce(t *testing.T) {
	s := NewTimerScheduler(nil, time.Second)
	defer s.Stop(context.Background())

	fired := make(chan struct{}, 2)
	s.Arm("c1", time.Now().Add(10*time.Millisecond), func(ctx context.Context) { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("callback did not fire")
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending timers after fire")
	}
}

func TestTimerScheduler_DisarmPreventsFire(t *testing.T) {
	s := NewTimerScheduler(nil, time.Second)
	defer s.Stop(context.Background())

	var n atomic.Int32
	s.Arm("c1", time.Now().Add(20*time.Millisecond), func(ctx context.Context) { n.Add(1) })
	s.Disarm("c1")
	// Disarming an unknown key is a no-op.
	s.Disarm("unknown")

	time.Sleep(60 * time.Millisecond)
	if n.Load() != 0 {
		t.Fatalf("expected disarmed callback not to fire")
	}
}

func TestTimerScheduler_ReArmReplaces(t *testing.T) {
	s := NewTimerScheduler(nil, time.Second)
	defer s.Stop(context.Background())

	got := make(chan string, 2)
	s.Arm("c1", time.Now().Add(20*time.Millisecond), func(ctx context.Context) { got <- "first" })
	s.Arm("c1", time.Now().Add(30*time.Millisecond), func(ctx context.Context) { got <- "second" })

	select {
	case v := <-got:
		if v != "second" {
			t.Fatalf("expected replacement callback, got %s", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("callback did not fire")
	}
	select {
	case v := <-got:
		t.Fatalf("unexpected extra callback %s", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimerScheduler_RecoversPanics(t *testing.T) {
	s := NewTimerScheduler(nil, time.Second)

	done := make(chan struct{})
	s.Arm("boom", time.Now(), func(ctx context.Context) {
		defer close(done)
		panic("boom")
	})
	<-done
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
