package engine_test

import (
	"testing"
	"time"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	"github.com/dalemusser/mindpath/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testQuiet = 20 * time.Millisecond

func loadProgram(t *testing.T, kind programs.Kind) *programs.Program {
	t.Helper()
	reg, err := programs.Load()
	if err != nil {
		t.Fatalf("load programs: %v", err)
	}
	p, ok := reg.Get(kind)
	if !ok {
		t.Fatalf("program %s not registered", kind)
	}
	return p
}

func newEngine(t *testing.T, kind programs.Kind, opts engine.Options) (*engine.Engine, *testutil.MemBackend) {
	t.Helper()
	be := testutil.NewMemBackend(string(kind))
	if opts.QuietPeriod == 0 {
		opts.QuietPeriod = testQuiet
	}
	e := engine.New(loadProgram(t, kind), engine.Deps{
		Progress:    be.Progress,
		Submissions: be.Submissions,
		Enrollments: be.Enrollments,
		Profiles:    be.Profiles,
		Drafts:      be.Drafts,
	}, opts)
	t.Cleanup(e.Close)
	return e, be
}

func participant(id primitive.ObjectID, name string) engine.Actor {
	return engine.Actor{UserID: id, Name: name, Role: models.RoleMember}
}

func counselor(name string) engine.Actor {
	return engine.Actor{UserID: primitive.NewObjectID(), Name: name, Role: models.RoleCounselor}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func completed(userID primitive.ObjectID, session int) models.Progress {
	return models.Progress{UserID: userID, SessionIndex: session, SessionOpened: true, AssignmentDone: true}
}

func strPtr(s string) *string { return &s }
