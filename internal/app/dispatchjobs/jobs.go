// Package dispatchjobs runs bulk response dispatches in the background and
// keeps their live counters and final results for polling.
package dispatchjobs

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/app/system/timeouts"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status of a job.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Job is a point-in-time copy of a dispatch job.
type Job struct {
	ID           string                 `json:"id"`
	Program      string                 `json:"program"`
	SessionIndex int                    `json:"session_index"`
	StartedBy    string                 `json:"started_by"`
	Status       string                 `json:"status"`
	Current      int                    `json:"current"`
	Total        int                    `json:"total"`
	Summary      string                 `json:"summary,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Result       *engine.DispatchResult `json:"result,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
}

// Registry tracks jobs by ID.
type Registry struct {
	log *zap.Logger

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// New returns an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{log: logger, jobs: make(map[string]*Job)}
}

// Start launches req on e in the background and returns the new job's ID.
// The dispatch is detached from the request that started it and bounded by
// timeouts.Batch.
func (r *Registry) Start(e *engine.Engine, actor engine.Actor, req engine.DispatchRequest) string {
	id := uuid.NewString()
	req.JobID = id

	job := &Job{
		ID:           id,
		Program:      e.Kind(),
		SessionIndex: req.SessionIndex,
		StartedBy:    actor.Name,
		Status:       StatusRunning,
		Total:        len(req.Recipients),
		StartedAt:    time.Now().UTC(),
	}
	r.mu.Lock()
	r.jobs[id] = job
	r.mu.Unlock()

	req.Progress = func(current, total int) {
		r.mu.Lock()
		job.Current, job.Total = current, total
		r.mu.Unlock()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeouts.Batch())
		defer cancel()

		res, err := e.Dispatch(ctx, actor, req)
		now := time.Now().UTC()

		r.mu.Lock()
		defer r.mu.Unlock()
		job.FinishedAt = &now
		if err != nil {
			job.Status = StatusFailed
			job.Error = err.Error()
			r.log.Error("dispatch job failed", zap.String("job_id", id), zap.Error(err))
			return
		}
		job.Status = StatusDone
		job.Total = res.Total
		job.Current = res.Total
		job.Summary = res.Summary()
		job.Result = &res
	}()
	return id
}

// Get returns a copy of the job.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Prune forgets finished jobs older than keep and returns how many.
func (r *Registry) Prune(keep time.Duration) int {
	cutoff := time.Now().UTC().Add(-keep)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n
}

// Wait blocks until every started job has finished.
func (r *Registry) Wait() {
	r.wg.Wait()
}
