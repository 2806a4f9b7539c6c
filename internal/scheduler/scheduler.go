// Package scheduler runs one deferred callback per key, typically an unanswered ring timeout.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Callback is invoked at most once per Arm. It must re-validate whatever state it acts on;
// Disarm racing a firing timer is allowed to lose.
type Callback func(ctx context.Context)

type Scheduler interface {
	// Arm schedules cb at deadline, replacing any pending callback for the same key.
	Arm(key string, deadline time.Time, cb Callback)
	// Disarm drops the pending callback for key, if any.
	Disarm(key string)
}

// TimerScheduler is a process-local Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool

	running sync.WaitGroup
	base    context.Context
	cancel  context.CancelFunc

	log      *slog.Logger
	cbBudget time.Duration
}

// NewTimerScheduler creates a scheduler whose callbacks each get cbBudget to finish.
func NewTimerScheduler(log *slog.Logger, cbBudget time.Duration) *TimerScheduler {
	if log == nil {
		log = slog.Default()
	}
	if cbBudget <= 0 {
		cbBudget = 30 * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	return &TimerScheduler{
		timers:   map[string]*time.Timer{},
		base:     base,
		cancel:   cancel,
		log:      log.With("component", "scheduler"),
		cbBudget: cbBudget,
	}
}

func (s *TimerScheduler) Arm(key string, deadline time.Time, cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.log.Warn("arm after stop ignored", "key", key)
		return
	}
	if old, ok := s.timers[key]; ok {
		old.Stop()
	}

	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if cur, ok := s.timers[key]; !ok || cur != t {
			// Disarmed or replaced after the timer already fired.
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.running.Add(1)
		s.mu.Unlock()

		defer s.running.Done()
		s.fire(key, cb)
	})
	s.timers[key] = t
}

func (s *TimerScheduler) Disarm(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// Pending reports how many callbacks are armed and not yet fired.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop drops pending timers and waits for running callbacks until ctx is done.
func (s *TimerScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *TimerScheduler) fire(key string, cb Callback) {
	ctx, cancel := context.WithTimeout(s.base, s.cbBudget)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("scheduled callback panicked", "key", key, "panic", p)
		}
	}()
	cb(ctx)
}
