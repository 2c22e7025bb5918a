package workers

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeSweeper struct {
	calls atomic.Int32
	idle  atomic.Int64
}

func (f *fakeSweeper) Sweep(idle time.Duration) int {
	f.calls.Add(1)
	f.idle.Store(int64(idle))
	return 1
}

type fakePruner struct{ calls atomic.Int32 }

func (f *fakePruner) Prune(time.Duration) int {
	f.calls.Add(1)
	return 0
}

func TestViewCleanup_SweepsOnTick(t *testing.T) {
	views := &fakeSweeper{}
	jobs := &fakePruner{}
	w := NewViewCleanup(views, jobs, zap.NewNop(), 10*time.Millisecond, 30*time.Minute, time.Hour)
	w.Start()

	deadline := time.Now().Add(2 * time.Second)
	for views.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()

	if views.calls.Load() < 2 {
		t.Fatalf("sweeps = %d, want at least 2", views.calls.Load())
	}
	if time.Duration(views.idle.Load()) != 30*time.Minute {
		t.Errorf("idle = %v", time.Duration(views.idle.Load()))
	}
	if jobs.calls.Load() == 0 {
		t.Error("jobs never pruned")
	}

	after := views.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if views.calls.Load() != after {
		t.Error("worker kept running after Stop")
	}
}

func TestViewCleanup_NilJobs(t *testing.T) {
	views := &fakeSweeper{}
	w := NewViewCleanup(views, nil, zap.NewNop(), time.Hour, time.Minute, time.Minute)
	w.cleanup()
	if views.calls.Load() != 1 {
		t.Error("cleanup did not sweep")
	}
}
