// internal/app/system/workers/viewcleanup.go
package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ViewSweeper closes session views idle for longer than the given duration.
type ViewSweeper interface {
	Sweep(idle time.Duration) int
}

// JobPruner forgets finished dispatch jobs older than the given duration.
type JobPruner interface {
	Prune(keep time.Duration) int
}

// ViewCleanup is a background worker that closes idle session views,
// flushing their pending autosaves, and prunes finished dispatch jobs.
type ViewCleanup struct {
	views     ViewSweeper
	jobs      JobPruner
	log       *zap.Logger
	interval  time.Duration
	idleAfter time.Duration
	keepJobs  time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewViewCleanup creates a new view cleanup worker.
//
// Parameters:
//   - views: the open-view registry
//   - jobs: the dispatch job registry (may be nil)
//   - logger: zap logger for logging
//   - interval: how often to sweep (e.g., 1 minute)
//   - idleAfter: how long a view must be untouched before closing (e.g., 30 minutes)
//   - keepJobs: how long finished jobs stay pollable
func NewViewCleanup(views ViewSweeper, jobs JobPruner, logger *zap.Logger, interval, idleAfter, keepJobs time.Duration) *ViewCleanup {
	return &ViewCleanup{
		views:     views,
		jobs:      jobs,
		log:       logger,
		interval:  interval,
		idleAfter: idleAfter,
		keepJobs:  keepJobs,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background cleanup loop.
func (w *ViewCleanup) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("view cleanup worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("idle_after", w.idleAfter))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *ViewCleanup) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("view cleanup worker stopped")
}

func (w *ViewCleanup) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.cleanup()
		}
	}
}

func (w *ViewCleanup) cleanup() {
	if n := w.views.Sweep(w.idleAfter); n > 0 {
		w.log.Info("closed idle session views", zap.Int("count", n))
	}
	if w.jobs != nil {
		if n := w.jobs.Prune(w.keepJobs); n > 0 {
			w.log.Debug("pruned dispatch jobs", zap.Int("count", n))
		}
	}
}
