package engine

import (
	"context"
	"time"

	"github.com/dalemusser/mindpath/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExportRow is one participant's line in the session export.
type ExportRow struct {
	UserID        primitive.ObjectID
	Name          string
	Group         string
	Submissions   int
	LastSubmitted time.Time
	Responded     bool
	Responder     string
	RespondedAt   *time.Time
}

// ExportRows derives one row per participant with at least one submission,
// describing their latest submission. Ordered like ComputeTargets.
func (e *Engine) ExportRows(ctx context.Context, session int) ([]ExportRow, error) {
	if _, err := e.Session(session); err != nil {
		return nil, err
	}
	subs, err := e.deps.Submissions.ListBySession(ctx, session)
	if err != nil {
		return nil, persistErr("list submissions", err)
	}

	latest := make(map[primitive.ObjectID]models.Submission)
	counts := make(map[primitive.ObjectID]int)
	for _, s := range subs {
		counts[s.UserID]++
		if cur, ok := latest[s.UserID]; !ok || s.SubmissionNumber > cur.SubmissionNumber {
			latest[s.UserID] = s
		}
	}
	chosen := make([]models.Submission, 0, len(latest))
	for _, s := range latest {
		chosen = append(chosen, s)
	}
	dir, err := e.directory(ctx, chosen)
	if err != nil {
		return nil, err
	}

	rows := make([]ExportRow, 0, len(chosen))
	for _, en := range e.entries(chosen, dir) {
		s := en.Submission
		rows = append(rows, ExportRow{
			UserID:        en.UserID,
			Name:          en.Name,
			Group:         en.Group,
			Submissions:   counts[en.UserID],
			LastSubmitted: s.SubmittedAt,
			Responded:     s.HasResponse(),
			Responder:     s.Responder(),
			RespondedAt:   s.RespondedAt,
		})
	}
	return rows, nil
}
