package engine

import (
	"context"

	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	"go.uber.org/zap"
)

// openState accumulates the results of the load steps.
type openState struct {
	actor    Actor
	index    int
	session  programs.Session
	decision Decision
	progress models.Progress
	history  []models.Submission
	draft    models.Answers
}

// loadStep is one stage of Open. Steps run in order, each reading what the
// earlier ones produced; a step may stop the sequence by returning false.
type loadStep struct {
	name string
	run  func(ctx context.Context, st *openState) (bool, error)
}

// Open runs the dependency-ordered load for a session view and returns a
// ready coordinator. The order is role, enrollment and guard, progress
// (marking the session opened), submission history, then the draft. Nothing
// is exposed until every step has finished.
//
// A denied decision is returned with a nil coordinator and a nil error.
func (e *Engine) Open(ctx context.Context, actor Actor, index int) (*Coordinator, Decision, error) {
	st := &openState{actor: actor, index: index}
	for _, step := range e.openSteps() {
		cont, err := step.run(ctx, st)
		if err != nil {
			e.log.Warn("open session failed",
				zap.String("step", step.name),
				zap.Int("session", index),
				zap.Error(err))
			return nil, st.decision, err
		}
		if !cont {
			return nil, st.decision, nil
		}
	}
	return e.hydrate(st), st.decision, nil
}

func (e *Engine) openSteps() []loadStep {
	return []loadStep{
		{"session", func(_ context.Context, st *openState) (bool, error) {
			s, err := e.Session(st.index)
			st.session = s
			return err == nil, err
		}},
		{"guard", func(ctx context.Context, st *openState) (bool, error) {
			d, err := e.CanEnter(ctx, st.actor, st.index)
			st.decision = d
			return err == nil && d.Permits(), err
		}},
		{"progress", func(ctx context.Context, st *openState) (bool, error) {
			p, _, err := e.EnsureOpened(ctx, st.actor.UserID, st.index)
			st.progress = p
			return err == nil, err
		}},
		{"history", func(ctx context.Context, st *openState) (bool, error) {
			h, err := e.History(ctx, st.actor.UserID, st.index)
			st.history = h
			return err == nil, err
		}},
		{"repair", func(ctx context.Context, st *openState) (bool, error) {
			// A submission exists, so the assignment is done even if the
			// flag write after it was lost.
			if len(st.history) == 0 || st.progress.AssignmentDone {
				return true, nil
			}
			done := true
			if err := e.deps.Progress.Upsert(ctx, st.actor.UserID, st.index, models.ProgressPatch{AssignmentDone: &done}); err != nil {
				e.log.Warn("assignment_done repair failed", zap.Error(err))
				return true, nil
			}
			st.progress.AssignmentDone = true
			return true, nil
		}},
		{"draft", func(ctx context.Context, st *openState) (bool, error) {
			if len(st.history) > 0 || e.deps.Drafts == nil {
				return true, nil
			}
			d, ok, err := e.deps.Drafts.Load(ctx, DraftKey(e.Kind(), st.index, st.actor.UserID))
			if err != nil {
				// A lost draft is tolerated; the participant starts from defaults.
				e.log.Warn("draft load failed", zap.Error(err))
				return true, nil
			}
			if ok {
				st.draft = d
			}
			return true, nil
		}},
	}
}

// hydrate builds the coordinator: Composing on defaults (overlaid with a
// stored draft) when there are no submissions, otherwise Locked on the
// newest one.
func (e *Engine) hydrate(st *openState) *Coordinator {
	c := &Coordinator{
		eng:      e,
		actor:    st.actor,
		session:  st.session,
		index:    st.index,
		key:      DraftKey(e.Kind(), st.index, st.actor.UserID),
		history:  st.history,
		progress: st.progress,
		decision: st.decision,
		touched:  e.now(),
	}
	if len(st.history) > 0 {
		c.state = Locked{}
		c.buffer = st.history[0].Answers.Clone()
		return c
	}
	c.state = Composing{}
	c.buffer = st.session.Defaults()
	for k, v := range st.draft.Normalize() {
		if _, ok := st.session.Field(k); ok {
			c.buffer[k] = v
			c.restored = true
		}
	}
	return c
}
