// internal/app/store/enrollments/enrollmentstore.go
package enrollmentstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/mindpath/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the enrollments collection name.
const Collection = "program_enrollments"

// Store reads and writes program enrollments. The engine only reads them;
// enrolling is done by program staff tooling and test fixtures.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

var ErrDuplicateEnrollment = errors.New("user is already enrolled in this program")

// EnsureIndexes creates the unique (user_id, program) index and the cohort
// lookup index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, Indexes())
	return err
}

// Indexes lists the indexes the collection is expected to carry.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "program", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_enrollment_user_program"),
		},
		{
			Keys:    bson.D{{Key: "program", Value: 1}, {Key: "group", Value: 1}},
			Options: options.Index().SetName("idx_enrollment_program_group"),
		},
	}
}

// Enroll places userID in program, optionally in a cohort.
func (s *Store) Enroll(ctx context.Context, userID primitive.ObjectID, program string, group *string) (models.Enrollment, error) {
	e := models.Enrollment{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Program:   program,
		Group:     cleanGroup(group),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, e); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Enrollment{}, ErrDuplicateEnrollment
		}
		return models.Enrollment{}, err
	}
	return e, nil
}

// SetGroup moves an enrolled user to another cohort, or to none with nil.
func (s *Store) SetGroup(ctx context.Context, userID primitive.ObjectID, program string, group *string) error {
	var update bson.M
	if g := cleanGroup(group); g != nil {
		update = bson.M{"$set": bson.M{"group": *g}}
	} else {
		update = bson.M{"$unset": bson.M{"group": ""}}
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"user_id": userID, "program": program}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Get returns the user's enrollment, or nil, nil when not enrolled.
func (s *Store) Get(ctx context.Context, userID primitive.ObjectID, program string) (*models.Enrollment, error) {
	var e models.Enrollment
	err := s.c.FindOne(ctx, bson.M{"user_id": userID, "program": program}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByProgram returns every enrollment in program.
func (s *Store) ListByProgram(ctx context.Context, program string) ([]models.Enrollment, error) {
	cur, err := s.c.Find(ctx, bson.M{"program": program})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Enrollment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cleanGroup(g *string) *string {
	if g == nil {
		return nil
	}
	v := strings.TrimSpace(*g)
	if v == "" {
		return nil
	}
	return &v
}
