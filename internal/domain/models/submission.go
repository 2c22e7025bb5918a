package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Submission is one immutable, numbered set of answers a participant sent for
// a session. Only the counselor-response triple changes after insert.
// One document per (user_id, session_index, submission_number) in a
// program's submission collection.
type Submission struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           primitive.ObjectID `bson:"user_id" json:"user_id"`
	Program          string             `bson:"program" json:"program"`
	SessionIndex     int                `bson:"session_index" json:"session_index"`
	SubmissionNumber int                `bson:"submission_number" json:"submission_number"`

	Answers     Answers   `bson:"answers" json:"answers"`
	SubmittedAt time.Time `bson:"submitted_at" json:"submitted_at"`

	CounselorResponse *string    `bson:"counselor_response" json:"counselor_response"`
	CounselorName     *string    `bson:"counselor_name" json:"counselor_name"`
	RespondedAt       *time.Time `bson:"responded_at" json:"responded_at"`
}

// HasResponse reports whether a non-empty counselor response is present.
func (s Submission) HasResponse() bool {
	return s.CounselorResponse != nil && *s.CounselorResponse != ""
}

// Responder returns the stored counselor name or "".
func (s Submission) Responder() string {
	if s.CounselorName == nil {
		return ""
	}
	return *s.CounselorName
}

// NewerThan orders submissions newest first: submitted_at descending, ties
// broken by submission_number descending.
func (s Submission) NewerThan(o Submission) bool {
	if !s.SubmittedAt.Equal(o.SubmittedAt) {
		return s.SubmittedAt.After(o.SubmittedAt)
	}
	return s.SubmissionNumber > o.SubmissionNumber
}
