package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Enrollment places a participant in a program and, optionally, a cohort.
// Exactly one document per (user_id, program). Group is nil when the
// participant is enrolled without a cohort.
type Enrollment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Program   string             `bson:"program" json:"program"`
	Group     *string            `bson:"group,omitempty" json:"group,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// GroupName returns the cohort label or "" when none is assigned.
func (e Enrollment) GroupName() string {
	if e.Group == nil {
		return ""
	}
	return *e.Group
}
