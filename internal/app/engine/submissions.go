package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dalemusser/mindpath/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SortNewestFirst orders submissions by submitted_at descending, ties by
// submission_number descending.
func SortNewestFirst(subs []models.Submission) {
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].NewerThan(subs[j]) })
}

// History lists a participant's submissions for a session, newest first.
func (e *Engine) History(ctx context.Context, userID primitive.ObjectID, session int) ([]models.Submission, error) {
	subs, err := e.deps.Submissions.ListByUser(ctx, userID, session)
	if err != nil {
		return nil, persistErr("list submissions", err)
	}
	SortNewestFirst(subs)
	return subs, nil
}

// Append writes a new immutable submission numbered 1 + the highest
// existing number for the key. The maximum is read fresh right before each
// insert; when a concurrent append wins the number, the read and insert
// are retried, so two appends never share a number.
func (e *Engine) Append(ctx context.Context, userID primitive.ObjectID, session int, answers models.Answers) (models.Submission, error) {
	if _, err := e.Session(session); err != nil {
		return models.Submission{}, err
	}
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		max, err := e.deps.Submissions.MaxNumber(ctx, userID, session)
		if err != nil {
			return models.Submission{}, persistErr("read submission numbers", err)
		}
		sub := models.Submission{
			UserID:           userID,
			Program:          e.Kind(),
			SessionIndex:     session,
			SubmissionNumber: max + 1,
			Answers:          answers.Clone(),
			SubmittedAt:      e.now(),
		}
		saved, err := e.deps.Submissions.Insert(ctx, sub)
		if errors.Is(err, models.ErrNumberTaken) {
			e.log.Info("submission number taken; retrying",
				zap.String("user_id", userID.Hex()),
				zap.Int("session", session),
				zap.Int("number", sub.SubmissionNumber))
			continue
		}
		if err != nil {
			return models.Submission{}, persistErr("insert submission", err)
		}
		return saved, nil
	}
	return models.Submission{}, persistErr("insert submission", models.ErrNumberTaken)
}

// SetCounselorResponse stamps the response triple on a submission with
// responded_at = now, and mirrors it into Progress when the submission is
// the participant's latest. Fails with models.ErrNotFound (wrapped) when
// the submission does not exist. When only the mirror write fails, the
// stored submission is returned together with an error wrapping
// ErrMirrorFailed.
func (e *Engine) SetCounselorResponse(ctx context.Context, id primitive.ObjectID, text, responder string) (models.Submission, error) {
	sub, err := e.deps.Submissions.Get(ctx, id)
	if err != nil {
		return models.Submission{}, persistErr("read submission", err)
	}
	return e.setResponse(ctx, sub, text, responder)
}

func (e *Engine) setResponse(ctx context.Context, sub models.Submission, text, responder string) (models.Submission, error) {
	at := e.now()
	if err := e.deps.Submissions.SetResponse(ctx, sub.ID, text, responder, at); err != nil {
		return models.Submission{}, persistErr("save response", err)
	}
	sub.CounselorResponse = &text
	sub.CounselorName = &responder
	sub.RespondedAt = &at

	if err := e.mirrorIfLatest(ctx, sub); err != nil {
		e.log.Error("response saved but progress mirror failed",
			zap.String("submission_id", sub.ID.Hex()),
			zap.String("user_id", sub.UserID.Hex()),
			zap.Int("session", sub.SessionIndex),
			zap.Error(err))
		return sub, fmt.Errorf("%w: %w", ErrMirrorFailed, err)
	}
	return sub, nil
}

// mirrorIfLatest copies the response triple into Progress when sub has the
// highest number for its key. assignment_done is set alongside to keep the
// Progress invariant.
func (e *Engine) mirrorIfLatest(ctx context.Context, sub models.Submission) error {
	max, err := e.deps.Submissions.MaxNumber(ctx, sub.UserID, sub.SessionIndex)
	if err != nil {
		return persistErr("read submission numbers", err)
	}
	if sub.SubmissionNumber != max {
		return nil
	}
	done := true
	patch := models.ProgressPatch{
		AssignmentDone: &done,
		Response: &models.ResponsePatch{
			Text: sub.CounselorResponse,
			Name: sub.CounselorName,
			At:   sub.RespondedAt,
		},
	}
	if err := e.deps.Progress.Upsert(ctx, sub.UserID, sub.SessionIndex, patch); err != nil {
		return persistErr("mirror response", err)
	}
	return nil
}

// RespondToSubmission is the single-response path used from the review
// screen. A submission that already carries a response may only be
// overwritten under the same responder name.
func (e *Engine) RespondToSubmission(ctx context.Context, actor Actor, id primitive.ObjectID, text string) (models.Submission, error) {
	if !actor.Privileged() {
		return models.Submission{}, ErrNotPrivileged
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Submission{}, ErrEmptyResponse
	}
	sub, err := e.deps.Submissions.Get(ctx, id)
	if err != nil {
		return models.Submission{}, persistErr("read submission", err)
	}
	sc := e.scope(actor, sub.SessionIndex)
	if sub.HasResponse() && sub.Responder() != actor.Name {
		e.audit.ResponseRejected(ctx, sc, sub.UserID, sub.ID, sub.Responder())
		return models.Submission{}, ErrResponderMismatch
	}

	saved, err := e.setResponse(ctx, sub, text, actor.Name)
	if err != nil && !errors.Is(err, ErrMirrorFailed) {
		e.log.Error("save counselor response failed",
			zap.String("submission_id", id.Hex()), zap.Error(err))
		return models.Submission{}, err
	}
	e.audit.ResponseSet(ctx, sc, sub.UserID, sub.ID, actor.Name)
	e.changed(sub.SessionIndex)
	return saved, err
}

// DeleteFailure records one id that could not be deleted.
type DeleteFailure struct {
	ID  primitive.ObjectID `json:"id"`
	Err error              `json:"-"`
	Msg string             `json:"error"`
}

// DeleteResult is the outcome of DeleteSubmissions.
type DeleteResult struct {
	Deleted []primitive.ObjectID `json:"deleted"`
	Failed  []DeleteFailure      `json:"failed"`
	// Cleared lists participants whose Progress response fields were reset
	// because their last submission for the session was removed.
	Cleared []primitive.ObjectID `json:"cleared"`
}

type sessionKey struct {
	user    primitive.ObjectID
	session int
}

// DeleteSubmissions removes the given submissions one by one; a failure on
// one id does not stop the rest. When no submissions remain for a
// (participant, session) touched by the call, that pair's mirrored response
// fields in Progress are cleared. A cascade failure is returned as an
// error next to the populated result.
func (e *Engine) DeleteSubmissions(ctx context.Context, actor Actor, ids []primitive.ObjectID, confirm bool) (DeleteResult, error) {
	res := DeleteResult{Deleted: []primitive.ObjectID{}, Failed: []DeleteFailure{}, Cleared: []primitive.ObjectID{}}
	if !actor.Privileged() {
		return res, ErrNotPrivileged
	}
	if !confirm {
		return res, ErrConfirmRequired
	}

	seen := make(map[primitive.ObjectID]bool, len(ids))
	var touched []sessionKey
	touchedSet := make(map[sessionKey]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		sub, err := e.deps.Submissions.Delete(ctx, id)
		if err != nil {
			res.Failed = append(res.Failed, DeleteFailure{ID: id, Err: err, Msg: err.Error()})
			continue
		}
		res.Deleted = append(res.Deleted, id)
		k := sessionKey{user: sub.UserID, session: sub.SessionIndex}
		if !touchedSet[k] {
			touchedSet[k] = true
			touched = append(touched, k)
		}
	}

	var cascadeErr error
	sessions := make(map[int]bool)
	for _, k := range touched {
		sessions[k.session] = true
		n, err := e.deps.Submissions.Count(ctx, k.user, k.session)
		if err != nil {
			cascadeErr = errors.Join(cascadeErr, persistErr("count remaining submissions", err))
			continue
		}
		if n > 0 {
			continue
		}
		if err := e.deps.Progress.Upsert(ctx, k.user, k.session, models.ClearResponsePatch()); err != nil {
			cascadeErr = errors.Join(cascadeErr, persistErr("clear progress response", err))
			continue
		}
		res.Cleared = append(res.Cleared, k.user)
	}

	if cascadeErr != nil {
		e.log.Error("progress cascade after delete incomplete", zap.Error(cascadeErr))
	}
	for s := range sessions {
		e.audit.SubmissionsDeleted(ctx, e.scope(actor, s), len(res.Deleted), len(res.Failed), len(res.Cleared))
		e.changed(s)
	}
	return res, cascadeErr
}
