package indexes_test

import (
	"context"
	"strings"
	"testing"

	"github.com/dalemusser/mindpath/internal/app/system/indexes"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	"github.com/dalemusser/mindpath/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func indexNames(t *testing.T, ctx context.Context, coll *mongo.Collection) map[string]bson.M {
	t.Helper()
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	out := map[string]bson.M{}
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			out[name] = idx
		}
	}
	return out
}

func TestEnsureAll_CreatesProgramIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	reg, err := programs.Load()
	if err != nil {
		t.Fatalf("Load programs: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db, reg); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	// Second run must be a no-op.
	if err := indexes.EnsureAll(ctx, db, reg); err != nil {
		t.Fatalf("second EnsureAll failed: %v", err)
	}

	for _, p := range reg.All() {
		got := indexNames(t, ctx, db.Collection(p.Collections.Submissions))
		if _, ok := got["uniq_submission_user_session_number"]; !ok {
			t.Errorf("%s: numbering index missing, have %v", p.Collections.Submissions, got)
		}
		got = indexNames(t, ctx, db.Collection(p.Collections.Progress))
		if _, ok := got["uniq_progress_user_session"]; !ok {
			t.Errorf("%s: progress index missing", p.Collections.Progress)
		}
	}

	got := indexNames(t, ctx, db.Collection("program_enrollments"))
	if _, ok := got["uniq_enrollment_user_program"]; !ok {
		t.Error("enrollment index missing")
	}
	got = indexNames(t, ctx, db.Collection("users"))
	if _, ok := got["uniq_users_email"]; !ok {
		t.Error("users email index missing")
	}
}

func TestReconcile_RenamesAndUpgrades(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	coll := db.Collection("cbt_user_progress")

	// Same keys under a legacy name, not unique.
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "session_index", Value: 1}},
		Options: options.Index().SetName("legacy_user_session"),
	})
	if err != nil {
		t.Fatalf("create legacy index: %v", err)
	}

	want := []mongo.IndexModel{{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "session_index", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_progress_user_session"),
	}}
	if err := indexes.Reconcile(ctx, coll, want); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	got := indexNames(t, ctx, coll)
	if _, ok := got["legacy_user_session"]; ok {
		t.Error("legacy index should have been dropped")
	}
	idx, ok := got["uniq_progress_user_session"]
	if !ok {
		t.Fatalf("desired index missing, have %v", got)
	}
	if u, _ := idx["unique"].(bool); !u {
		t.Error("desired index should be unique")
	}
}

func TestReconcile_ReportsDuplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	coll := db.Collection("users")

	for i := 0; i < 2; i++ {
		if _, err := coll.InsertOne(ctx, bson.M{"email": "dup@example.com"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	err := indexes.Reconcile(ctx, coll, []mongo.IndexModel{{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_users_email"),
	}})
	if err == nil || !strings.Contains(err.Error(), "duplicates present") {
		t.Fatalf("expected duplicates error, got %v", err)
	}
}
