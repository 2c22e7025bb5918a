// Package engine implements the assignment and progress engine shared by
// every program: access guard, progress tracker, versioned submissions,
// the per-view draft coordinator and the bulk response dispatcher. One
// Engine serves one program; the program definition supplies collection
// bindings, weights and field schemas.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/dalemusser/mindpath/internal/app/system/auditlog"
	"github.com/dalemusser/mindpath/internal/app/system/autosave"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	"go.uber.org/zap"
)

// Defaults used when Options leaves a value zero.
const (
	DefaultQuietPeriod         = 1100 * time.Millisecond
	DefaultAutosaveRetries     = 3
	DefaultDispatchConcurrency = 4
)

// maxAppendAttempts bounds retries when a concurrent append takes the
// number computed from the fresh read.
const maxAppendAttempts = 5

// Deps are the backing stores for one program. Drafts may be nil, which
// disables autosave and draft restore.
type Deps struct {
	Progress    ProgressRepo
	Submissions SubmissionRepo
	Enrollments EnrollmentRepo
	Profiles    ProfileRepo
	Drafts      DraftRepo
}

// Options tune an Engine.
type Options struct {
	Logger *zap.Logger
	Audit  *auditlog.Logger

	// Now defaults to time.Now in UTC.
	Now func() time.Time

	QuietPeriod         time.Duration
	AutosaveRetries     int
	DispatchConcurrency int

	// OnChange is called after writes that other open views of the same
	// session should reload for (dispatch, response, delete).
	OnChange func(program string, session int)
}

// Engine runs one program.
type Engine struct {
	prog *programs.Program
	deps Deps

	log      *zap.Logger
	audit    *auditlog.Logger
	now      func() time.Time
	autosave *autosave.Scheduler
	retries  int
	workers  int
	onChange func(program string, session int)
}

// New builds an Engine for prog.
func New(prog *programs.Program, deps Deps, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.AutosaveRetries < 0 {
		opts.AutosaveRetries = 0
	} else if opts.AutosaveRetries == 0 {
		opts.AutosaveRetries = DefaultAutosaveRetries
	}
	if opts.DispatchConcurrency <= 0 {
		opts.DispatchConcurrency = DefaultDispatchConcurrency
	}
	return &Engine{
		prog:     prog,
		deps:     deps,
		log:      opts.Logger.With(zap.String("program", string(prog.Kind))),
		audit:    opts.Audit,
		now:      opts.Now,
		autosave: autosave.New(opts.QuietPeriod),
		retries:  opts.AutosaveRetries,
		workers:  opts.DispatchConcurrency,
		onChange: opts.OnChange,
	}
}

// Program returns the program definition this engine serves.
func (e *Engine) Program() *programs.Program { return e.prog }

// Kind is shorthand for Program().Kind as a string.
func (e *Engine) Kind() string { return string(e.prog.Kind) }

// Session returns the session definition or ErrUnknownSession.
func (e *Engine) Session(index int) (programs.Session, error) {
	s, ok := e.prog.Session(index)
	if !ok {
		return programs.Session{}, fmt.Errorf("%w: %s/%d", ErrUnknownSession, e.prog.Kind, index)
	}
	return s, nil
}

// Close stops pending autosaves. Views should be flushed first.
func (e *Engine) Close() {
	e.autosave.Stop()
}

func (e *Engine) changed(session int) {
	if e.onChange != nil {
		e.onChange(e.Kind(), session)
	}
}

func (e *Engine) scope(actor Actor, session int) auditlog.Scope {
	return auditlog.Scope{
		Program:      e.Kind(),
		SessionIndex: session,
		ActorID:      actor.UserID,
		IP:           actor.IP,
	}
}

// Catalog maps program kinds to their engines.
type Catalog struct {
	byKind map[string]*Engine
}

// NewCatalog indexes engines by program kind.
func NewCatalog(engines ...*Engine) *Catalog {
	c := &Catalog{byKind: make(map[string]*Engine, len(engines))}
	for _, e := range engines {
		c.byKind[e.Kind()] = e
	}
	return c
}

// Get looks up the engine for a program kind.
func (c *Catalog) Get(kind string) (*Engine, bool) {
	e, ok := c.byKind[kind]
	return e, ok
}

// All returns engines ordered by program kind.
func (c *Catalog) All() []*Engine {
	out := make([]*Engine, 0, len(c.byKind))
	for _, e := range c.byKind {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return out
}

// Close stops every engine.
func (c *Catalog) Close() {
	for _, e := range c.byKind {
		e.Close()
	}
}
