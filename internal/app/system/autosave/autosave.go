// Package autosave runs keyed, debounced tasks. Scheduling a key again
// before its quiet period ends replaces the pending task and restarts the
// wait; cancelling a key drops whatever is pending for it.
package autosave

import (
	"sync"
	"time"
)

// Scheduler debounces tasks per key.
type Scheduler struct {
	quiet time.Duration

	mu      sync.Mutex
	pending map[string]*task
	stopped bool
	running sync.WaitGroup
}

type task struct {
	timer *time.Timer
	fn    func()
}

// New returns a scheduler that waits quiet after the latest Schedule call
// for a key before running that key's task.
func New(quiet time.Duration) *Scheduler {
	return &Scheduler{
		quiet:   quiet,
		pending: make(map[string]*task),
	}
}

// Quiet returns the configured quiet period.
func (s *Scheduler) Quiet() time.Duration { return s.quiet }

// Schedule replaces any pending task for key with fn and restarts the wait.
// It is a no-op after Stop.
func (s *Scheduler) Schedule(key string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.pending[key]; ok {
		old.timer.Stop()
	}
	t := &task{fn: fn}
	t.timer = time.AfterFunc(s.quiet, func() { s.fire(key, t) })
	s.pending[key] = t
}

func (s *Scheduler) fire(key string, t *task) {
	s.mu.Lock()
	if s.pending[key] != t {
		// Replaced or cancelled after the timer had already fired.
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	t.fn()
}

// Cancel drops the pending task for key. It reports whether one was
// pending. A task that has already started is not interrupted.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.pending, key)
	return true
}

// Flush runs the pending task for key now, on the caller's goroutine.
// It reports whether a task ran.
func (s *Scheduler) Flush(key string) bool {
	s.mu.Lock()
	t, ok := s.pending[key]
	if ok {
		t.timer.Stop()
		delete(s.pending, key)
		s.running.Add(1)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	defer s.running.Done()
	t.fn()
	return true
}

// Pending reports whether key has a task waiting.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending task and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key, t := range s.pending {
		t.timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()
	s.running.Wait()
}
