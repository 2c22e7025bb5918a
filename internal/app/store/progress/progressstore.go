// internal/app/store/progress/progressstore.go
package progressstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/mindpath/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is one program's progress collection. Every program keeps its own
// collection; the program key is stamped on each document as well.
type Store struct {
	c       *mongo.Collection
	program string
}

// New binds a store to collection for program.
func New(db *mongo.Database, collection, program string) *Store {
	return &Store{c: db.Collection(collection), program: program}
}

// EnsureIndexes creates the unique (user_id, session_index) index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, Indexes())
	return err
}

// Indexes lists the indexes the collection is expected to carry.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "session_index", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_progress_user_session"),
		},
		{
			Keys:    bson.D{{Key: "session_index", Value: 1}},
			Options: options.Index().SetName("idx_progress_session"),
		},
	}
}

// Get returns the record for (userID, session), or nil, nil when none exists.
func (s *Store) Get(ctx context.Context, userID primitive.ObjectID, session int) (*models.Progress, error) {
	var p models.Progress
	err := s.c.FindOne(ctx, bson.M{"user_id": userID, "session_index": session}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert writes only the fields set in patch, creating the record on first
// write. An empty patch is a no-op.
func (s *Store) Upsert(ctx context.Context, userID primitive.ObjectID, session int, patch models.ProgressPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	now := time.Now().UTC()
	set := bson.M{"updated_at": now}
	if patch.SessionOpened != nil {
		set["session_opened"] = *patch.SessionOpened
	}
	if patch.MeetingDone != nil {
		set["meeting_done"] = *patch.MeetingDone
	}
	if patch.GuidanceRead != nil {
		set["guidance_read"] = *patch.GuidanceRead
	}
	if patch.AssignmentDone != nil {
		set["assignment_done"] = *patch.AssignmentDone
	}
	if r := patch.Response; r != nil {
		set["counselor_response"] = r.Text
		set["counselor_name"] = r.Name
		set["responded_at"] = r.At
	}

	setOnInsert := bson.M{
		"program":    s.program,
		"created_at": now,
	}
	// Milestones the patch leaves alone start out false on insert.
	for field, v := range map[string]*bool{
		"session_opened":  patch.SessionOpened,
		"meeting_done":    patch.MeetingDone,
		"guidance_read":   patch.GuidanceRead,
		"assignment_done": patch.AssignmentDone,
	} {
		if v == nil {
			setOnInsert[field] = false
		}
	}

	_, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": userID, "session_index": session},
		bson.M{"$set": set, "$setOnInsert": setOnInsert},
		options.Update().SetUpsert(true),
	)
	return err
}

// ListBySession returns every participant's record for session.
func (s *Store) ListBySession(ctx context.Context, session int) ([]models.Progress, error) {
	cur, err := s.c.Find(ctx, bson.M{"session_index": session})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Progress{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
