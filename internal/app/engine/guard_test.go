package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDecide(t *testing.T) {
	member := engine.Actor{UserID: primitive.NewObjectID(), Role: models.RoleMember}
	admin := engine.Actor{UserID: primitive.NewObjectID(), Role: models.RoleAdmin}
	done := &models.Progress{AssignmentDone: true}
	notDone := &models.Progress{SessionOpened: true}

	tests := []struct {
		name string
		in   engine.GuardInput
		want engine.Decision
	}{
		{"no identity", engine.GuardInput{SessionIndex: 0}, engine.Denied(engine.NotAuthenticated)},
		{"session zero unenrolled", engine.GuardInput{Actor: member, SessionIndex: 0, Enrollment: engine.EnrollmentNone}, engine.Allowed},
		{"admin skips everything", engine.GuardInput{Actor: admin, SessionIndex: 5, Enrollment: engine.EnrollmentNone}, engine.Allowed},
		{"not enrolled", engine.GuardInput{Actor: member, SessionIndex: 2, Enrollment: engine.EnrollmentNone, Previous: done}, engine.Denied(engine.NotEnrolled)},
		{"previous missing", engine.GuardInput{Actor: member, SessionIndex: 2, Enrollment: engine.EnrollmentPresent}, engine.Denied(engine.PreviousIncomplete)},
		{"previous not done", engine.GuardInput{Actor: member, SessionIndex: 2, Enrollment: engine.EnrollmentPresent, Previous: notDone}, engine.Denied(engine.PreviousIncomplete)},
		{"previous done", engine.GuardInput{Actor: member, SessionIndex: 2, Enrollment: engine.EnrollmentPresent, Previous: done}, engine.Allowed},
		{"enrollment unknown", engine.GuardInput{Actor: member, SessionIndex: 2, Enrollment: engine.EnrollmentUnknown, Previous: done}, engine.Pending},
		{"unknown still needs previous", engine.GuardInput{Actor: member, SessionIndex: 2, Enrollment: engine.EnrollmentUnknown}, engine.Denied(engine.PreviousIncomplete)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.Decide(tt.in); got != tt.want {
				t.Errorf("Decide = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecision_Permits(t *testing.T) {
	if !engine.Allowed.Permits() || !engine.Pending.Permits() {
		t.Error("allowed and pending must permit")
	}
	if engine.Denied(engine.NotEnrolled).Permits() {
		t.Error("denied must not permit")
	}
	if got := engine.Denied(engine.NotEnrolled).String(); got != "denied:not_enrolled" {
		t.Errorf("String = %q", got)
	}
}

func TestCanEnter(t *testing.T) {
	e, be := newEngine(t, programs.KindNarrativeCBT, engine.Options{})
	ctx := context.Background()

	enrolled := be.Participant("narrative_cbt", "Ayu", "A")
	outsider := primitive.NewObjectID()

	d, err := e.CanEnter(ctx, participant(outsider, "Budi"), 0)
	if err != nil || d != engine.Allowed {
		t.Errorf("session 0 for unenrolled user = %s, %v; want allowed", d, err)
	}

	d, _ = e.CanEnter(ctx, participant(outsider, "Budi"), 1)
	if d != engine.Denied(engine.NotEnrolled) {
		t.Errorf("unenrolled session 1 = %s", d)
	}

	d, _ = e.CanEnter(ctx, participant(enrolled, "Ayu"), 1)
	if d != engine.Denied(engine.PreviousIncomplete) {
		t.Errorf("session 1 before session 0 done = %s", d)
	}

	be.Progress.Seed(completed(enrolled, 0))
	d, _ = e.CanEnter(ctx, participant(enrolled, "Ayu"), 1)
	if d != engine.Allowed {
		t.Errorf("session 1 after session 0 done = %s", d)
	}

	d, _ = e.CanEnter(ctx, counselor("Bu Sari"), 4)
	if d != engine.Allowed {
		t.Errorf("counselor = %s, want allowed", d)
	}

	d, _ = e.CanEnter(ctx, engine.Actor{}, 0)
	if d != engine.Denied(engine.NotAuthenticated) {
		t.Errorf("anonymous = %s", d)
	}

	if _, err := e.CanEnter(ctx, participant(enrolled, "Ayu"), 99); !errors.Is(err, engine.ErrUnknownSession) {
		t.Errorf("unknown session err = %v", err)
	}
}

func TestCanEnter_EnrollmentReadFailureIsPending(t *testing.T) {
	e, be := newEngine(t, programs.KindNarrativeCBT, engine.Options{})
	ctx := context.Background()

	id := be.Participant("narrative_cbt", "Ayu", "")
	be.Progress.Seed(completed(id, 0))
	be.Enrollments.Fail("get", errors.New("connection reset"))

	d, err := e.CanEnter(ctx, participant(id, "Ayu"), 1)
	if err != nil {
		t.Fatalf("CanEnter err = %v", err)
	}
	if d != engine.Pending {
		t.Errorf("decision = %s, want pending", d)
	}
}

func TestCanEnter_ProgressReadFailure(t *testing.T) {
	e, be := newEngine(t, programs.KindNarrativeCBT, engine.Options{})
	id := be.Participant("narrative_cbt", "Ayu", "")
	be.Progress.Fail("get", errors.New("timeout"))

	_, err := e.CanEnter(context.Background(), participant(id, "Ayu"), 1)
	var pe *engine.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PersistenceError", err)
	}
	if !errors.Is(err, engine.ErrPersistence) {
		t.Error("PersistenceError must match ErrPersistence")
	}
}
