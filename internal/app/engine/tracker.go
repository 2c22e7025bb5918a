package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/mindpath/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// errResponseNeedsAssignment guards the Progress invariant that a mirrored
// response implies a completed assignment.
var errResponseNeedsAssignment = errors.New("assignment_done cannot be cleared while a response is recorded")

// Progress returns the stored record, or a zero record carrying the key
// when none exists yet.
func (e *Engine) Progress(ctx context.Context, userID primitive.ObjectID, session int) (models.Progress, error) {
	p, err := e.deps.Progress.Get(ctx, userID, session)
	if err != nil {
		return models.Progress{}, persistErr("read progress", err)
	}
	if p == nil {
		return models.Progress{UserID: userID, Program: e.Kind(), SessionIndex: session}, nil
	}
	return *p, nil
}

// EnsureOpened marks the session opened once. It reads first and writes
// only when session_opened is still false, so repeated renders cost one
// read each and no writes. It returns the progress after the call and
// whether a write happened.
func (e *Engine) EnsureOpened(ctx context.Context, userID primitive.ObjectID, session int) (models.Progress, bool, error) {
	p, err := e.Progress(ctx, userID, session)
	if err != nil {
		return p, false, err
	}
	if p.SessionOpened {
		return p, false, nil
	}
	patch := models.MilestonePatch(models.MilestoneSessionOpened, true)
	if err := e.deps.Progress.Upsert(ctx, userID, session, patch); err != nil {
		return p, false, persistErr("mark session opened", err)
	}
	return patch.Apply(p), true, nil
}

// SetMilestone writes exactly one milestone flag. Patches touch a single
// field, so concurrent calls for different milestones do not clobber each
// other.
func (e *Engine) SetMilestone(ctx context.Context, userID primitive.ObjectID, session int, m models.Milestone, v bool) error {
	if _, err := e.Session(session); err != nil {
		return err
	}
	if _, ok := models.ParseMilestone(string(m)); !ok {
		return fmt.Errorf("unknown milestone %q", m)
	}
	if m == models.MilestoneAssignmentDone && !v {
		p, err := e.Progress(ctx, userID, session)
		if err != nil {
			return err
		}
		if p.CounselorResponse != nil {
			return errResponseNeedsAssignment
		}
	}
	if err := e.deps.Progress.Upsert(ctx, userID, session, models.MilestonePatch(m, v)); err != nil {
		return persistErr("set "+string(m), err)
	}
	return nil
}

// Percentage is the program's pure progress formula.
func (e *Engine) Percentage(p models.Progress) int {
	return e.prog.Percentage(p)
}
