// Package views keeps the open session views (Draft Coordinators) for
// signed-in participants, one per (program, session, participant).
package views

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ErrUnknownProgram is returned for a program kind without an engine.
var ErrUnknownProgram = errors.New("unknown program")

type key struct {
	program string
	session int
	user    primitive.ObjectID
}

// Registry owns the open coordinators.
type Registry struct {
	cat *engine.Catalog
	log *zap.Logger
	now func() time.Time

	mu    sync.Mutex
	views map[key]*engine.Coordinator

	reloads sync.WaitGroup
}

// New returns an empty registry over the engines in cat.
func New(cat *engine.Catalog, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cat:   cat,
		log:   logger,
		now:   time.Now,
		views: make(map[key]*engine.Coordinator),
	}
}

// Engine returns the engine for program.
func (r *Registry) Engine(program string) (*engine.Engine, error) {
	e, ok := r.cat.Get(program)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, program)
	}
	return e, nil
}

// Open returns the actor's view of a session, creating it on first use. The
// Access Guard runs on every call; a denial closes any view that was open
// and returns a nil coordinator with the decision.
func (r *Registry) Open(ctx context.Context, actor engine.Actor, program string, session int) (*engine.Coordinator, engine.Decision, error) {
	e, err := r.Engine(program)
	if err != nil {
		return nil, engine.Decision{}, err
	}
	k := key{program: program, session: session, user: actor.UserID}

	r.mu.Lock()
	c := r.views[k]
	r.mu.Unlock()

	if c != nil {
		d, err := e.CanEnter(ctx, actor, session)
		if err != nil {
			return nil, d, err
		}
		if !d.Permits() {
			r.drop(k, c)
			return nil, d, nil
		}
		c.SetDecision(d)
		return c, d, nil
	}

	c, d, err := e.Open(ctx, actor, session)
	if err != nil || c == nil {
		return nil, d, err
	}

	r.mu.Lock()
	if existing := r.views[k]; existing != nil {
		// A concurrent request opened the same view first.
		r.mu.Unlock()
		c.Close()
		existing.SetDecision(d)
		return existing, d, nil
	}
	r.views[k] = c
	r.mu.Unlock()
	return c, d, nil
}

func (r *Registry) drop(k key, c *engine.Coordinator) {
	r.mu.Lock()
	if r.views[k] == c {
		delete(r.views, k)
	}
	r.mu.Unlock()
	c.Close()
}

// Lookup returns an already-open view without running the guard.
func (r *Registry) Lookup(program string, session int, userID primitive.ObjectID) (*engine.Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.views[key{program: program, session: session, user: userID}]
	return c, ok
}

// Invalidate reloads every open view of (program, session). It returns the
// number of views that failed to reload.
func (r *Registry) Invalidate(ctx context.Context, program string, session int) int {
	failed := 0
	for _, c := range r.matching(program, session) {
		if err := c.Reload(ctx); err != nil {
			failed++
			r.log.Warn("view reload failed",
				zap.String("program", program),
				zap.Int("session", session),
				zap.String("key", c.Key()),
				zap.Error(err))
		}
	}
	return failed
}

// Notify schedules Invalidate in the background. It matches the engine's
// OnChange hook.
func (r *Registry) Notify(program string, session int) {
	r.reloads.Add(1)
	go func() {
		defer r.reloads.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeouts.Medium())
		defer cancel()
		r.Invalidate(ctx, program, session)
	}()
}

func (r *Registry) matching(program string, session int) []*engine.Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*engine.Coordinator
	for k, c := range r.views {
		if k.program == program && k.session == session {
			out = append(out, c)
		}
	}
	return out
}

// Sweep closes views idle for longer than idle, flushing their pending
// autosaves. It returns how many were closed.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*engine.Coordinator
	for k, c := range r.views {
		if c.LastActive().Before(cutoff) {
			stale = append(stale, c)
			delete(r.views, k)
		}
	}
	r.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	return len(stale)
}

// Len returns the number of open views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Close flushes and closes every view and waits for background reloads.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*engine.Coordinator, 0, len(r.views))
	for k, c := range r.views {
		all = append(all, c)
		delete(r.views, k)
	}
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	r.reloads.Wait()
}
