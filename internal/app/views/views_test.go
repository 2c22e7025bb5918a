package views_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/app/views"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	"github.com/dalemusser/mindpath/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func setup(t *testing.T, opts engine.Options) (*views.Registry, *engine.Engine, *testutil.MemBackend) {
	t.Helper()
	reg, err := programs.Load()
	if err != nil {
		t.Fatalf("load programs: %v", err)
	}
	prog, _ := reg.Get(programs.KindSpiritual)
	be := testutil.NewMemBackend("spiritual")
	if opts.QuietPeriod == 0 {
		opts.QuietPeriod = time.Hour
	}
	e := engine.New(prog, engine.Deps{
		Progress:    be.Progress,
		Submissions: be.Submissions,
		Enrollments: be.Enrollments,
		Profiles:    be.Profiles,
		Drafts:      be.Drafts,
	}, opts)
	r := views.New(engine.NewCatalog(e), nil)
	t.Cleanup(func() {
		r.Close()
		e.Close()
	})
	return r, e, be
}

func member(id primitive.ObjectID) engine.Actor {
	return engine.Actor{UserID: id, Name: "Ayu", Role: models.RoleMember}
}

func TestRegistry_ReusesView(t *testing.T) {
	r, _, be := setup(t, engine.Options{})
	ctx := context.Background()
	id := be.Participant("spiritual", "Ayu", "A")

	a, d, err := r.Open(ctx, member(id), "spiritual", 0)
	if err != nil || a == nil || d != engine.Allowed {
		t.Fatalf("Open = %v, %s, %v", a, d, err)
	}
	b, _, _ := r.Open(ctx, member(id), "spiritual", 0)
	if a != b {
		t.Error("second Open built a new view")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d", r.Len())
	}
	if got, ok := r.Lookup("spiritual", 0, id); !ok || got != a {
		t.Error("Lookup did not find the view")
	}
}

func TestRegistry_GuardRunsOnEveryOpen(t *testing.T) {
	r, e, be := setup(t, engine.Options{})
	ctx := context.Background()
	id := be.Participant("spiritual", "Ayu", "A")
	be.Progress.Seed(models.Progress{UserID: id, SessionIndex: 0, AssignmentDone: true})

	if c, _, _ := r.Open(ctx, member(id), "spiritual", 1); c == nil {
		t.Fatal("expected session 1 to open")
	}

	// Revoke the prerequisite; the cached view must not bypass the guard.
	if err := e.SetMilestone(ctx, id, 0, models.MilestoneAssignmentDone, false); err != nil {
		t.Fatalf("SetMilestone err = %v", err)
	}
	c, d, err := r.Open(ctx, member(id), "spiritual", 1)
	if err != nil {
		t.Fatalf("Open err = %v", err)
	}
	if c != nil || d != engine.Denied(engine.PreviousIncomplete) {
		t.Errorf("Open = %v, %s", c, d)
	}
	if r.Len() != 0 {
		t.Error("denied view not dropped")
	}
}

func TestRegistry_UnknownProgram(t *testing.T) {
	r, _, _ := setup(t, engine.Options{})
	_, _, err := r.Open(context.Background(), member(primitive.NewObjectID()), "yoga", 0)
	if !errors.Is(err, views.ErrUnknownProgram) {
		t.Errorf("err = %v", err)
	}
}

func TestRegistry_InvalidateReloads(t *testing.T) {
	r, e, be := setup(t, engine.Options{})
	ctx := context.Background()
	id := be.Participant("spiritual", "Ayu", "A")
	sub := be.Submissions.Seed(models.Submission{UserID: id, SessionIndex: 0, SubmissionNumber: 1,
		Answers: models.Answers{"nilai_hidup": "keluarga"}})

	c, _, _ := r.Open(ctx, member(id), "spiritual", 0)
	if _, err := e.SetCounselorResponse(ctx, sub.ID, "Bagus", "Bu Sari"); err != nil {
		t.Fatalf("respond err = %v", err)
	}
	if c.Snapshot().Progress.HasResponse() {
		t.Fatal("view saw the response before reload")
	}
	if failed := r.Invalidate(ctx, "spiritual", 0); failed != 0 {
		t.Fatalf("failed reloads = %d", failed)
	}
	if !c.Snapshot().Progress.HasResponse() {
		t.Error("view not reloaded")
	}
}

func TestRegistry_SweepFlushesIdleViews(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	r, _, be := setup(t, engine.Options{Now: func() time.Time { return past }})
	ctx := context.Background()
	id := be.Participant("spiritual", "Ayu", "A")

	c, _, _ := r.Open(ctx, member(id), "spiritual", 0)
	if err := c.SetField("nilai_hidup", "keluarga"); err != nil {
		t.Fatalf("SetField err = %v", err)
	}

	if n := r.Sweep(30 * time.Minute); n != 1 {
		t.Fatalf("Sweep closed %d views, want 1", n)
	}
	if r.Len() != 0 {
		t.Error("view still registered")
	}
	if be.Drafts.Saves() != 1 {
		t.Errorf("pending autosave not flushed (saves=%d)", be.Drafts.Saves())
	}
}
