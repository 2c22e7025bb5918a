package enrollmentstore_test

import (
	"errors"
	"testing"

	enrollmentstore "github.com/dalemusser/mindpath/internal/app/store/enrollments"
	"github.com/dalemusser/mindpath/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func strPtr(s string) *string { return &s }

func TestStore_EnrollAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := enrollmentstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}

	uid := primitive.NewObjectID()
	if _, err := store.Enroll(ctx, uid, "spiritual", strPtr(" B ")); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	got, err := store.Get(ctx, uid, "spiritual")
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.GroupName() != "B" {
		t.Errorf("group = %q, want B", got.GroupName())
	}

	none, err := store.Get(ctx, uid, "psychoeducation")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if none != nil {
		t.Error("expected nil for a program the user is not in")
	}

	_, err = store.Enroll(ctx, uid, "spiritual", nil)
	if !errors.Is(err, enrollmentstore.ErrDuplicateEnrollment) {
		t.Errorf("second Enroll err = %v, want ErrDuplicateEnrollment", err)
	}
}

func TestStore_SetGroupAndList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := enrollmentstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	if _, err := store.Enroll(ctx, a, "narrative_cbt", strPtr("A")); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if _, err := store.Enroll(ctx, b, "narrative_cbt", strPtr("")); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if err := store.SetGroup(ctx, a, "narrative_cbt", nil); err != nil {
		t.Fatalf("SetGroup failed: %v", err)
	}

	list, err := store.ListByProgram(ctx, "narrative_cbt")
	if err != nil {
		t.Fatalf("ListByProgram failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 enrollments, got %d", len(list))
	}
	for _, e := range list {
		if e.Group != nil {
			t.Errorf("user %s still has group %q", e.UserID.Hex(), *e.Group)
		}
	}
}
