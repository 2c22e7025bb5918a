package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dalemusser/mindpath/internal/app/system/timeouts"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxOrdinal is the highest exact submission number a filter may target.
const MaxOrdinal = 7

// CohortMode selects participants by cohort.
type CohortMode string

const (
	CohortAll   CohortMode = "all"
	CohortGroup CohortMode = "group"
	CohortNone  CohortMode = "none" // participants without a cohort
)

// TargetFilter is the declarative part of a bulk dispatch.
type TargetFilter struct {
	SessionIndex int `json:"session_index"`
	// Number is 0 for each participant's latest submission, or an exact
	// submission number 1..MaxOrdinal.
	Number int        `json:"number"`
	Cohort CohortMode `json:"cohort"`
	Group  string     `json:"group,omitempty"`
}

func (e *Engine) checkFilter(f TargetFilter) error {
	if _, err := e.Session(f.SessionIndex); err != nil {
		return err
	}
	if f.Number < 0 || f.Number > MaxOrdinal {
		return fmt.Errorf("%w: number %d outside 0..%d", ErrBadFilter, f.Number, MaxOrdinal)
	}
	switch f.Cohort {
	case "", CohortAll, CohortNone:
	case CohortGroup:
		if !e.prog.HasGroup(f.Group) {
			return fmt.Errorf("%w: unknown group %q", ErrBadFilter, f.Group)
		}
	default:
		return fmt.Errorf("%w: cohort %q", ErrBadFilter, f.Cohort)
	}
	return nil
}

// ComputeTargets selects at most one submission per participant: the
// highest-numbered one for Number 0, or the one with exactly Number.
// Participants outside the cohort filter are dropped. The result is
// ordered by name and is the same for the same store contents.
func (e *Engine) ComputeTargets(ctx context.Context, f TargetFilter) ([]Entry, error) {
	if err := e.checkFilter(f); err != nil {
		return nil, err
	}
	subs, err := e.deps.Submissions.ListBySession(ctx, f.SessionIndex)
	if err != nil {
		return nil, persistErr("list submissions", err)
	}

	picked := make(map[primitive.ObjectID]models.Submission)
	for _, s := range subs {
		if f.Number > 0 {
			if s.SubmissionNumber == f.Number {
				picked[s.UserID] = s
			}
			continue
		}
		if cur, ok := picked[s.UserID]; !ok || s.SubmissionNumber > cur.SubmissionNumber {
			picked[s.UserID] = s
		}
	}

	chosen := make([]models.Submission, 0, len(picked))
	for _, s := range picked {
		chosen = append(chosen, s)
	}
	dir, err := e.directory(ctx, chosen)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(chosen))
	for _, en := range e.entries(chosen, dir) {
		switch f.Cohort {
		case CohortGroup:
			if en.Group != f.Group {
				continue
			}
		case CohortNone:
			if en.Group != "" {
				continue
			}
		}
		out = append(out, en)
	}
	return out, nil
}

// Recipients removes deselected participants from targets. Everything is
// selected by default.
func Recipients(targets []Entry, deselected []primitive.ObjectID) []Entry {
	if len(deselected) == 0 {
		return append([]Entry(nil), targets...)
	}
	skip := make(map[primitive.ObjectID]bool, len(deselected))
	for _, id := range deselected {
		skip[id] = true
	}
	out := make([]Entry, 0, len(targets))
	for _, t := range targets {
		if !skip[t.UserID] {
			out = append(out, t)
		}
	}
	return out
}

// DispatchRequest is the confirmed second phase of a bulk dispatch.
type DispatchRequest struct {
	JobID        string
	SessionIndex int
	Text         string
	Recipients   []Entry
	// SkipExisting drops recipients whose submission already carries a
	// response when the send starts.
	SkipExisting bool
	// Progress is called after each write with the running count. Calls
	// are serialized and current only increases.
	Progress func(current, total int)
}

// Failure is one recipient whose write failed.
type Failure struct {
	UserID       primitive.ObjectID `json:"user_id"`
	SubmissionID primitive.ObjectID `json:"submission_id"`
	Name         string             `json:"name"`
	Err          error              `json:"-"`
	Msg          string             `json:"error"`
}

// DispatchResult accounts for every recipient sent to.
type DispatchResult struct {
	Total     int                  `json:"total"`
	Skipped   []primitive.ObjectID `json:"skipped"`
	Succeeded []primitive.ObjectID `json:"succeeded"`
	Failed    []Failure            `json:"failed"`
	// MirrorFailed lists succeeded recipients whose response is stored on
	// the submission but whose Progress copy was not written.
	MirrorFailed []primitive.ObjectID `json:"mirror_failed"`
}

// Partial reports whether some writes failed.
func (r DispatchResult) Partial() bool { return len(r.Failed) > 0 }

// Summary is the operator-facing outcome line.
func (r DispatchResult) Summary() string {
	if len(r.Failed) > 0 {
		return fmt.Sprintf("Berhasil: %d, Gagal: %d", len(r.Succeeded), len(r.Failed))
	}
	return fmt.Sprintf("Berhasil: %d", len(r.Succeeded))
}

// Dispatch writes text as the counselor response on each recipient's
// submission, with bounded concurrency. A failed write is recorded and the
// rest continue; the result lists successes and failures in recipient
// order. A write whose only failure is the Progress mirror counts as a
// success and is also listed in MirrorFailed. The returned error is non-nil
// only when nothing was attempted.
func (e *Engine) Dispatch(ctx context.Context, actor Actor, req DispatchRequest) (DispatchResult, error) {
	res := DispatchResult{
		Skipped:      []primitive.ObjectID{},
		Succeeded:    []primitive.ObjectID{},
		Failed:       []Failure{},
		MirrorFailed: []primitive.ObjectID{},
	}
	if !actor.Privileged() {
		return res, ErrNotPrivileged
	}
	body := strings.TrimSpace(req.Text)
	if body == "" {
		return res, ErrEmptyResponse
	}
	if _, err := e.Session(req.SessionIndex); err != nil {
		return res, err
	}

	send := req.Recipients
	if req.SkipExisting {
		var err error
		send, res.Skipped, err = e.withoutResponses(ctx, req.SessionIndex, req.Recipients)
		if err != nil {
			return res, err
		}
	}
	res.Total = len(send)

	type outcome struct {
		err error
	}
	outcomes := make([]outcome, len(send))

	var (
		progMu  sync.Mutex
		current int
	)
	report := func() {
		progMu.Lock()
		defer progMu.Unlock()
		current++
		if req.Progress != nil {
			req.Progress(current, res.Total)
		}
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, r := range send {
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(ctx, timeouts.Short())
			defer cancel()
			_, err := e.SetCounselorResponse(wctx, r.Submission.ID, body, actor.Name)
			outcomes[i] = outcome{err: err}
			report()
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range send {
		err := outcomes[i].err
		if errors.Is(err, ErrMirrorFailed) {
			res.Succeeded = append(res.Succeeded, r.UserID)
			res.MirrorFailed = append(res.MirrorFailed, r.UserID)
			continue
		}
		if err != nil {
			res.Failed = append(res.Failed, Failure{
				UserID:       r.UserID,
				SubmissionID: r.Submission.ID,
				Name:         r.Name,
				Err:          err,
				Msg:          err.Error(),
			})
			continue
		}
		res.Succeeded = append(res.Succeeded, r.UserID)
	}

	e.log.Info("bulk dispatch finished",
		zap.String("job_id", req.JobID),
		zap.Int("session", req.SessionIndex),
		zap.Int("total", res.Total),
		zap.Int("succeeded", len(res.Succeeded)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("mirror_failed", len(res.MirrorFailed)),
		zap.Int("skipped", len(res.Skipped)))
	e.audit.DispatchCompleted(ctx, e.scope(actor, req.SessionIndex), req.JobID,
		len(res.Succeeded), len(res.Failed), req.SkipExisting)
	e.changed(req.SessionIndex)
	return res, nil
}

// withoutResponses re-reads the session and drops recipients whose
// submission already has a response.
func (e *Engine) withoutResponses(ctx context.Context, session int, recipients []Entry) ([]Entry, []primitive.ObjectID, error) {
	subs, err := e.deps.Submissions.ListBySession(ctx, session)
	if err != nil {
		return nil, nil, persistErr("re-read submissions", err)
	}
	answered := make(map[primitive.ObjectID]bool, len(subs))
	for _, s := range subs {
		if s.HasResponse() {
			answered[s.ID] = true
		}
	}
	send := make([]Entry, 0, len(recipients))
	skipped := []primitive.ObjectID{}
	for _, r := range recipients {
		if answered[r.Submission.ID] {
			skipped = append(skipped, r.UserID)
			continue
		}
		send = append(send, r)
	}
	return send, skipped, nil
}
