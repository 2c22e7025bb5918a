// internal/app/store/submissions/submissionstore.go
package submissionstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/mindpath/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is one program's append-only submission log. Documents are never
// edited after insert except for the counselor-response triple.
type Store struct {
	c       *mongo.Collection
	program string
}

// New binds a store to collection for program.
func New(db *mongo.Database, collection, program string) *Store {
	return &Store{c: db.Collection(collection), program: program}
}

// EnsureIndexes creates the unique numbering index that makes concurrent
// appends for the same key collide instead of sharing a number.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, Indexes())
	return err
}

// Indexes lists the indexes the collection is expected to carry.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "session_index", Value: 1},
				{Key: "submission_number", Value: -1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_submission_user_session_number"),
		},
		{
			Keys:    bson.D{{Key: "session_index", Value: 1}, {Key: "submitted_at", Value: -1}},
			Options: options.Index().SetName("idx_submission_session_submitted"),
		},
	}
}

var newestFirst = bson.D{{Key: "submitted_at", Value: -1}, {Key: "submission_number", Value: -1}}

// ListBySession returns every participant's submissions for session, newest first.
func (s *Store) ListBySession(ctx context.Context, session int) ([]models.Submission, error) {
	return s.find(ctx, bson.M{"session_index": session})
}

// ListByUser returns one participant's history for session, newest first.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID, session int) ([]models.Submission, error) {
	return s.find(ctx, bson.M{"user_id": userID, "session_index": session})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Submission, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Submission{}
	for cur.Next(ctx) {
		var sub models.Submission
		if err := cur.Decode(&sub); err != nil {
			return nil, err
		}
		sub.Answers = sub.Answers.Normalize()
		out = append(out, sub)
	}
	return out, cur.Err()
}

// MaxNumber returns the highest submission number for the key, 0 when none.
func (s *Store) MaxNumber(ctx context.Context, userID primitive.ObjectID, session int) (int, error) {
	var doc struct {
		N int `bson:"submission_number"`
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "submission_number", Value: -1}}).
		SetProjection(bson.M{"submission_number": 1})
	err := s.c.FindOne(ctx, bson.M{"user_id": userID, "session_index": session}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.N, nil
}

// Insert appends sub. A number collision yields models.ErrNumberTaken.
func (s *Store) Insert(ctx context.Context, sub models.Submission) (models.Submission, error) {
	if sub.ID.IsZero() {
		sub.ID = primitive.NewObjectID()
	}
	sub.Program = s.program
	if _, err := s.c.InsertOne(ctx, sub); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Submission{}, models.ErrNumberTaken
		}
		return models.Submission{}, err
	}
	return sub, nil
}

// Get loads one submission by ID.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.Submission, error) {
	var sub models.Submission
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Submission{}, models.ErrNotFound
	}
	if err != nil {
		return models.Submission{}, err
	}
	sub.Answers = sub.Answers.Normalize()
	return sub, nil
}

// SetResponse writes the counselor-response triple.
func (s *Store) SetResponse(ctx context.Context, id primitive.ObjectID, text, responder string, at time.Time) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"counselor_response": text,
		"counselor_name":     responder,
		"responded_at":       at.UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes one submission and returns what was removed.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (models.Submission, error) {
	var sub models.Submission
	err := s.c.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Submission{}, models.ErrNotFound
	}
	if err != nil {
		return models.Submission{}, err
	}
	return sub, nil
}

// Count returns how many submissions remain for the key.
func (s *Store) Count(ctx context.Context, userID primitive.ObjectID, session int) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user_id": userID, "session_index": session})
}
