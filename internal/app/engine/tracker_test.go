package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestEnsureOpened_WritesOnce(t *testing.T) {
	e, be := newEngine(t, programs.KindSpiritual, engine.Options{})
	ctx := context.Background()
	id := primitive.NewObjectID()

	p, wrote, err := e.EnsureOpened(ctx, id, 1)
	if err != nil || !wrote || !p.SessionOpened {
		t.Fatalf("first EnsureOpened = %+v, %v, %v", p, wrote, err)
	}
	_, wrote, err = e.EnsureOpened(ctx, id, 1)
	if err != nil || wrote {
		t.Fatalf("second EnsureOpened wrote=%v err=%v", wrote, err)
	}
	if got := be.Progress.Writes(); got != 1 {
		t.Errorf("writes = %d, want 1", got)
	}
}

func TestProgress_ZeroRecordWhenAbsent(t *testing.T) {
	e, _ := newEngine(t, programs.KindSpiritual, engine.Options{})
	id := primitive.NewObjectID()

	p, err := e.Progress(context.Background(), id, 3)
	if err != nil {
		t.Fatalf("Progress err = %v", err)
	}
	if p.UserID != id || p.SessionIndex != 3 || p.Program != "spiritual" || p.SessionOpened {
		t.Errorf("zero record = %+v", p)
	}
}

func TestSetMilestone(t *testing.T) {
	e, be := newEngine(t, programs.KindSpiritual, engine.Options{})
	ctx := context.Background()
	id := primitive.NewObjectID()

	if err := e.SetMilestone(ctx, id, 1, models.MilestoneMeetingDone, true); err != nil {
		t.Fatalf("SetMilestone err = %v", err)
	}
	if err := e.SetMilestone(ctx, id, 1, models.MilestoneGuidanceRead, true); err != nil {
		t.Fatalf("SetMilestone err = %v", err)
	}
	p, _ := e.Progress(ctx, id, 1)
	if !p.MeetingDone || !p.GuidanceRead || p.AssignmentDone {
		t.Errorf("progress = %+v", p)
	}

	if err := e.SetMilestone(ctx, id, 1, models.Milestone("bogus"), true); err == nil {
		t.Error("unknown milestone accepted")
	}

	text, name := "Bagus", "Bu Sari"
	at := time.Now().UTC()
	p = completed(id, 2)
	p.CounselorResponse, p.CounselorName, p.RespondedAt = &text, &name, &at
	be.Progress.Seed(p)
	if err := e.SetMilestone(ctx, id, 2, models.MilestoneAssignmentDone, false); err == nil {
		t.Error("clearing assignment_done with a recorded response should fail")
	}
}

func TestPercentage(t *testing.T) {
	e, _ := newEngine(t, programs.KindSpiritual, engine.Options{})
	text := "ok"
	p := models.Progress{MeetingDone: true, AssignmentDone: true, CounselorResponse: &text}
	if got := e.Percentage(p); got != 100 {
		t.Errorf("weighted full = %d, want 100", got)
	}
	if got := e.Percentage(models.Progress{AssignmentDone: true}); got != 30 {
		t.Errorf("assignment only = %d, want 30", got)
	}
}
