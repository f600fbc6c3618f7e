package sync

import (
	"sync"
	"time"
)

// scheduler runs functions immediately or after a delay, one pending task
// per key. Scheduling a key again replaces its pending task. It exists so
// retry kicks are cancellable and independent of any particular runtime's
// timer plumbing.
type scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	done   bool
}

func newScheduler() *scheduler {
	return &scheduler{timers: make(map[string]*time.Timer)}
}

// Schedule runs fn after d, replacing any pending task under the same key.
// A non-positive delay runs fn on a fresh goroutine right away.
func (s *scheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	if d <= 0 {
		delete(s.timers, key)
		go fn()
		return
	}
	s.timers[key] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending task for key, if any.
func (s *scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// Stop cancels everything and rejects future schedules.
func (s *scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
