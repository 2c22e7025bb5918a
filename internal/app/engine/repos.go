package engine

import (
	"context"
	"time"

	"github.com/dalemusser/mindpath/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The repositories below are bound to one program: its progress and
// submission collections and its program key. Mongo and Redis stores
// satisfy them in production; testutil.MemBackend does in tests.

// ProgressRepo reads and patches Progress records.
type ProgressRepo interface {
	// Get returns nil, nil when no record exists yet.
	Get(ctx context.Context, userID primitive.ObjectID, session int) (*models.Progress, error)
	Upsert(ctx context.Context, userID primitive.ObjectID, session int, patch models.ProgressPatch) error
	ListBySession(ctx context.Context, session int) ([]models.Progress, error)
}

// SubmissionRepo is the append-only submission log.
type SubmissionRepo interface {
	ListBySession(ctx context.Context, session int) ([]models.Submission, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID, session int) ([]models.Submission, error)
	// MaxNumber returns 0 when the key has no submissions.
	MaxNumber(ctx context.Context, userID primitive.ObjectID, session int) (int, error)
	// Insert fails with models.ErrNumberTaken when the number is in use.
	Insert(ctx context.Context, sub models.Submission) (models.Submission, error)
	// Get fails with models.ErrNotFound.
	Get(ctx context.Context, id primitive.ObjectID) (models.Submission, error)
	// SetResponse fails with models.ErrNotFound.
	SetResponse(ctx context.Context, id primitive.ObjectID, text, responder string, at time.Time) error
	// Delete returns the removed document; models.ErrNotFound if absent.
	Delete(ctx context.Context, id primitive.ObjectID) (models.Submission, error)
	Count(ctx context.Context, userID primitive.ObjectID, session int) (int64, error)
}

// EnrollmentRepo reads program enrollments (cohort assignments).
type EnrollmentRepo interface {
	// Get returns nil, nil when the user is not enrolled in program.
	Get(ctx context.Context, userID primitive.ObjectID, program string) (*models.Enrollment, error)
	ListByProgram(ctx context.Context, program string) ([]models.Enrollment, error)
}

// ProfileRepo resolves display names for administrator views.
type ProfileRepo interface {
	ListProfiles(ctx context.Context, ids []primitive.ObjectID) ([]models.Profile, error)
}

// DraftRepo holds autosaved, not-yet-submitted buffers.
type DraftRepo interface {
	Save(ctx context.Context, key string, answers models.Answers) error
	// Load reports false when no draft is stored.
	Load(ctx context.Context, key string) (models.Answers, bool, error)
	Delete(ctx context.Context, key string) error
}
