package engine

import (
	"context"
	"sort"

	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Entry is one submission as shown to counselors: the submission with its
// participant's display name and cohort.
type Entry struct {
	UserID     primitive.ObjectID `json:"user_id"`
	Name       string             `json:"name"`
	Group      string             `json:"group,omitempty"`
	Enrolled   bool               `json:"enrolled"`
	Submission models.Submission  `json:"submission"`
}

type member struct {
	name     string
	group    string
	enrolled bool
}

// directory resolves names and cohorts for the participants in subs.
func (e *Engine) directory(ctx context.Context, subs []models.Submission) (map[primitive.ObjectID]member, error) {
	ids := make([]primitive.ObjectID, 0, len(subs))
	seen := make(map[primitive.ObjectID]bool, len(subs))
	for _, s := range subs {
		if !seen[s.UserID] {
			seen[s.UserID] = true
			ids = append(ids, s.UserID)
		}
	}

	out := make(map[primitive.ObjectID]member, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	enrollments, err := e.deps.Enrollments.ListByProgram(ctx, e.Kind())
	if err != nil {
		return nil, persistErr("list enrollments", err)
	}
	for _, en := range enrollments {
		if seen[en.UserID] {
			out[en.UserID] = member{group: en.GroupName(), enrolled: true}
		}
	}

	profiles, err := e.deps.Profiles.ListProfiles(ctx, ids)
	if err != nil {
		return nil, persistErr("list profiles", err)
	}
	for _, p := range profiles {
		m := out[p.ID]
		m.name = p.DisplayName
		out[p.ID] = m
	}
	return out, nil
}

func (e *Engine) entries(subs []models.Submission, dir map[primitive.ObjectID]member) []Entry {
	out := make([]Entry, 0, len(subs))
	for _, s := range subs {
		m := dir[s.UserID]
		out = append(out, Entry{
			UserID:     s.UserID,
			Name:       m.name,
			Group:      m.group,
			Enrolled:   m.enrolled,
			Submission: s,
		})
	}
	sortEntries(out)
	return out
}

// sortEntries orders by case-folded name, then user id, then newest
// submission first.
func sortEntries(es []Entry) {
	sort.SliceStable(es, func(i, j int) bool {
		a, b := text.Fold(es[i].Name), text.Fold(es[j].Name)
		if a != b {
			return a < b
		}
		if es[i].UserID != es[j].UserID {
			return es[i].UserID.Hex() < es[j].UserID.Hex()
		}
		return es[i].Submission.NewerThan(es[j].Submission)
	})
}

// SessionSubmissions lists every submission for a session with participant
// names and cohorts, for the review screen.
func (e *Engine) SessionSubmissions(ctx context.Context, session int) ([]Entry, error) {
	if _, err := e.Session(session); err != nil {
		return nil, err
	}
	subs, err := e.deps.Submissions.ListBySession(ctx, session)
	if err != nil {
		return nil, persistErr("list submissions", err)
	}
	dir, err := e.directory(ctx, subs)
	if err != nil {
		return nil, err
	}
	return e.entries(subs, dir), nil
}
