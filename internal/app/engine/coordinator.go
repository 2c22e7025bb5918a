package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/mindpath/internal/app/system/fieldcheck"
	"github.com/dalemusser/mindpath/internal/app/system/timeouts"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DraftKey is the draft-store and autosave key for one view.
func DraftKey(program string, session int, userID primitive.ObjectID) string {
	return fmt.Sprintf("draft:%s:%d:%s", program, session, userID.Hex())
}

// Coordinator is the state machine behind one open session view: a
// participant's buffer, their submission history and their progress for
// one session. It is safe for concurrent use; commands are serialized.
//
// Every command that replaces the buffer bumps gen. Autosaves and reloads
// capture gen when they start and drop their result if it moved, so a late
// write or read never lands on a newer buffer.
type Coordinator struct {
	eng     *Engine
	actor   Actor
	session programs.Session
	index   int
	key     string

	// saveMu is held for the duration of a draft write. Submit takes it
	// after cancelling the pending autosave, which orders any in-flight
	// draft write before the submission write.
	saveMu sync.Mutex

	mu       sync.Mutex
	state    State
	buffer   models.Answers
	history  []models.Submission
	progress models.Progress
	decision Decision
	restored bool
	gen      uint64
	failures int
	savedAt  time.Time
	touched  time.Time
	closed   bool
}

// View is a read-only snapshot for the presentation layer.
type View struct {
	Program      string              `json:"program"`
	SessionIndex int                 `json:"session_index"`
	Title        string              `json:"title"`
	State        StateKind           `json:"state"`
	Viewing      *int                `json:"viewing,omitempty"`
	Editable     bool                `json:"editable"`
	Buffer       models.Answers      `json:"buffer"`
	Valid        bool                `json:"valid"`
	Incomplete   []string            `json:"incomplete"`
	History      []models.Submission `json:"history"`
	Progress     models.Progress     `json:"progress"`
	Percentage   int                 `json:"percentage"`
	Decision     Decision            `json:"decision"`
	Restored     bool                `json:"draft_restored"`
	SavePending  bool                `json:"autosave_pending"`
	LastSavedAt  *time.Time          `json:"last_saved_at,omitempty"`
}

// Snapshot returns the current view.
func (c *Coordinator) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Program:      c.eng.Kind(),
		SessionIndex: c.index,
		Title:        c.session.Title,
		State:        c.state.Kind(),
		Editable:     c.state.Kind() == StateComposing,
		Buffer:       c.buffer.Clone(),
		History:      append([]models.Submission(nil), c.history...),
		Progress:     c.progress,
		Percentage:   c.eng.Percentage(c.progress),
		Decision:     c.decision,
		Restored:     c.restored,
		SavePending:  c.eng.autosave.Pending(c.key),
	}
	if vh, ok := c.state.(ViewingHistory); ok {
		n := vh.Submission.SubmissionNumber
		v.Viewing = &n
		v.Buffer = vh.Submission.Answers.Clone()
	}
	v.Incomplete = fieldcheck.Invalid(c.buffer, c.session.Fields)
	if v.Incomplete == nil {
		v.Incomplete = []string{}
	}
	v.Valid = len(v.Incomplete) == 0
	if !c.savedAt.IsZero() {
		t := c.savedAt
		v.LastSavedAt = &t
	}
	return v
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Key returns the view's draft/autosave key.
func (c *Coordinator) Key() string { return c.key }

// LastActive returns when a command last touched the view.
func (c *Coordinator) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.touched
}

// SetDecision records the latest Access Guard decision for the view.
func (c *Coordinator) SetDecision(d Decision) {
	c.mu.Lock()
	c.decision = d
	c.touched = c.eng.now()
	c.mu.Unlock()
}

// SetField replaces one answer in the buffer. Only valid while composing.
func (c *Coordinator) SetField(key string, value any) error {
	if _, ok := c.session.Field(key); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrViewClosed
	}
	if c.state.Kind() != StateComposing {
		return illegal("set_field", c.state.Kind())
	}
	c.buffer[key] = models.Answers{key: value}.Normalize()[key]
	c.touched = c.eng.now()
	c.scheduleAutosaveLocked()
	return nil
}

// StartNew begins a fresh submission from the session's field defaults.
func (c *Coordinator) StartNew() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrViewClosed
	}
	to, err := next(c.state.Kind(), "start_new")
	if err != nil {
		return err
	}
	c.gen++
	c.buffer = c.session.Defaults()
	c.restored = false
	c.state = stateFor(to)
	c.touched = c.eng.now()
	return nil
}

// CancelNew discards the buffer and returns to the newest submission.
func (c *Coordinator) CancelNew() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrViewClosed
	}
	to, err := next(c.state.Kind(), "cancel_new")
	if err != nil {
		return err
	}
	if len(c.history) == 0 {
		return illegal("cancel_new", c.state.Kind())
	}
	c.eng.autosave.Cancel(c.key)
	c.gen++
	c.buffer = c.history[0].Answers.Clone()
	c.restored = false
	c.state = stateFor(to)
	c.touched = c.eng.now()
	return nil
}

// ViewHistory shows submission number read-only.
func (c *Coordinator) ViewHistory(number int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrViewClosed
	}
	if _, err := next(c.state.Kind(), "view_history"); err != nil {
		return err
	}
	for _, s := range c.history {
		if s.SubmissionNumber == number {
			c.state = ViewingHistory{Submission: s}
			c.touched = c.eng.now()
			return nil
		}
	}
	return fmt.Errorf("submission %d: %w", number, models.ErrNotFound)
}

// CloseHistory returns from a history item to the newest submission.
func (c *Coordinator) CloseHistory() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrViewClosed
	}
	to, err := next(c.state.Kind(), "close_history")
	if err != nil {
		return err
	}
	c.state = stateFor(to)
	c.touched = c.eng.now()
	return nil
}

// Submit validates the buffer, appends it as a new submission and marks the
// assignment done. On success the view is Locked on the new submission. On
// a failed append the view returns to Composing with the buffer untouched.
//
// If the submission was written but marking the assignment done failed,
// Submit returns the submission together with a *PersistenceError; the
// view is Locked and the next Open repairs the flag.
func (c *Coordinator) Submit(ctx context.Context) (models.Submission, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.Submission{}, ErrViewClosed
	}
	if _, err := next(c.state.Kind(), "submit"); err != nil {
		c.mu.Unlock()
		return models.Submission{}, err
	}
	if key, bad := fieldcheck.FirstInvalid(c.buffer, c.session.Fields); bad {
		c.mu.Unlock()
		return models.Submission{}, &ValidationError{Field: key}
	}
	c.eng.autosave.Cancel(c.key)
	c.gen++
	gen := c.gen
	answers := c.buffer.Clone()
	c.state = Submitting{}
	c.touched = c.eng.now()
	c.mu.Unlock()

	// Wait for an in-flight draft write to finish.
	c.saveMu.Lock()
	c.saveMu.Unlock() //nolint:staticcheck

	sc := c.eng.scope(c.actor, c.index)
	sub, err := c.eng.Append(ctx, c.actor.UserID, c.index, answers)
	if err != nil {
		c.eng.log.Error("submit failed",
			zap.String("user_id", c.actor.UserID.Hex()),
			zap.Int("session", c.index),
			zap.Error(err))
		c.eng.audit.SubmissionFailed(ctx, sc, c.actor.UserID, err.Error())

		c.mu.Lock()
		if c.gen == gen && !c.closed {
			c.state = Composing{}
			c.scheduleAutosaveLocked()
		}
		c.mu.Unlock()
		return models.Submission{}, err
	}
	c.eng.audit.SubmissionCreated(ctx, sc, c.actor.UserID, sub.SubmissionNumber)

	// The new submission has no response yet, so the mirrored triple from
	// the previous one is cleared in the same write.
	done := true
	mark := models.ProgressPatch{AssignmentDone: &done, Response: &models.ResponsePatch{}}
	markErr := persistErr("mark assignment done",
		c.eng.deps.Progress.Upsert(ctx, c.actor.UserID, c.index, mark))
	if markErr != nil {
		c.eng.log.Error("submission saved but assignment_done not set",
			zap.String("user_id", c.actor.UserID.Hex()),
			zap.Int("session", c.index),
			zap.Error(markErr))
	}
	c.deleteDraft(ctx)

	c.mu.Lock()
	if c.gen == gen && !c.closed {
		c.history = append([]models.Submission{sub}, c.history...)
		SortNewestFirst(c.history)
		c.buffer = sub.Answers.Clone()
		c.restored = false
		if markErr == nil {
			c.progress = mark.Apply(c.progress)
		}
		c.state = Locked{}
	}
	c.mu.Unlock()
	return sub, markErr
}

// Reload re-reads progress and history. A reload that overlaps a command
// which replaced the buffer is dropped.
func (c *Coordinator) Reload(ctx context.Context) error {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	prog, err := c.eng.Progress(ctx, c.actor.UserID, c.index)
	if err != nil {
		return err
	}
	hist, err := c.eng.History(ctx, c.actor.UserID, c.index)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed || c.state.Kind() == StateSubmitting {
		return nil
	}
	c.progress = prog
	c.history = hist
	switch st := c.state.(type) {
	case Locked:
		if len(hist) == 0 {
			c.gen++
			c.buffer = c.session.Defaults()
			c.state = Composing{}
		} else {
			c.buffer = hist[0].Answers.Clone()
		}
	case ViewingHistory:
		found := false
		for _, s := range hist {
			if s.ID == st.Submission.ID {
				c.state = ViewingHistory{Submission: s}
				found = true
				break
			}
		}
		if !found {
			c.state = Locked{}
			if len(hist) == 0 {
				c.gen++
				c.buffer = c.session.Defaults()
				c.state = Composing{}
			} else {
				c.buffer = hist[0].Answers.Clone()
			}
		}
	}
	return nil
}

// Flush runs a pending autosave now.
func (c *Coordinator) Flush() bool {
	return c.eng.autosave.Flush(c.key)
}

// Close flushes any pending autosave and retires the view. Results of
// in-flight operations that finish later are ignored.
func (c *Coordinator) Close() {
	c.Flush()
	c.mu.Lock()
	c.closed = true
	c.gen++
	c.mu.Unlock()
	c.eng.autosave.Cancel(c.key)
}

// scheduleAutosaveLocked queues a draft write for the current buffer. It
// is a no-op once the assignment is done or without a draft store.
// Callers hold c.mu.
func (c *Coordinator) scheduleAutosaveLocked() {
	if c.eng.deps.Drafts == nil || c.progress.AssignmentDone {
		return
	}
	gen := c.gen
	c.eng.autosave.Schedule(c.key, func() { c.autosave(gen) })
}

func (c *Coordinator) autosave(gen uint64) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	if c.gen != gen || c.state.Kind() != StateComposing {
		c.mu.Unlock()
		return
	}
	snap := c.buffer.Clone()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Short())
	defer cancel()
	err := c.eng.deps.Drafts.Save(ctx, c.key, snap)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failures++
		c.eng.log.Warn("autosave failed",
			zap.String("key", c.key),
			zap.Int("attempt", c.failures),
			zap.Error(err))
		if c.failures <= c.eng.retries && c.gen == gen && !c.closed {
			c.eng.autosave.Schedule(c.key, func() { c.autosave(gen) })
		}
		return
	}
	c.failures = 0
	c.savedAt = c.eng.now()
}

func (c *Coordinator) deleteDraft(ctx context.Context) {
	if c.eng.deps.Drafts == nil {
		return
	}
	if err := c.eng.deps.Drafts.Delete(ctx, c.key); err != nil {
		c.eng.log.Warn("draft delete failed", zap.String("key", c.key), zap.Error(err))
	}
}

func stateFor(k StateKind) State {
	switch k {
	case StateComposing:
		return Composing{}
	case StateSubmitting:
		return Submitting{}
	default:
		return Locked{}
	}
}
