package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Progress is the mutable milestone summary for one participant and session.
// One document per (user_id, session_index) in a program's progress collection.
//
// Invariant: CounselorResponse != nil implies RespondedAt != nil and
// AssignmentDone == true.
type Progress struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	Program      string             `bson:"program" json:"program"`
	SessionIndex int                `bson:"session_index" json:"session_index"`

	SessionOpened  bool `bson:"session_opened" json:"session_opened"`
	MeetingDone    bool `bson:"meeting_done" json:"meeting_done"`
	GuidanceRead   bool `bson:"guidance_read" json:"guidance_read"`
	AssignmentDone bool `bson:"assignment_done" json:"assignment_done"`

	// Mirrored from the participant's latest submission.
	CounselorResponse *string    `bson:"counselor_response" json:"counselor_response"`
	CounselorName     *string    `bson:"counselor_name" json:"counselor_name"`
	RespondedAt       *time.Time `bson:"responded_at" json:"responded_at"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasResponse reports whether a non-empty counselor response is mirrored.
func (p Progress) HasResponse() bool {
	return p.CounselorResponse != nil && *p.CounselorResponse != ""
}

// Milestone names a boolean Progress field a participant may set.
type Milestone string

const (
	MilestoneSessionOpened  Milestone = "session_opened"
	MilestoneMeetingDone    Milestone = "meeting_done"
	MilestoneGuidanceRead   Milestone = "guidance_read"
	MilestoneAssignmentDone Milestone = "assignment_done"
)

// ParseMilestone validates a milestone name coming from a request.
func ParseMilestone(s string) (Milestone, bool) {
	switch m := Milestone(s); m {
	case MilestoneSessionOpened, MilestoneMeetingDone, MilestoneGuidanceRead, MilestoneAssignmentDone:
		return m, true
	}
	return "", false
}

// ResponsePatch replaces the counselor-response triple. Nil fields clear the
// corresponding value.
type ResponsePatch struct {
	Text *string
	Name *string
	At   *time.Time
}

// ProgressPatch is a partial update to a Progress record. Only non-nil
// fields are written.
type ProgressPatch struct {
	SessionOpened  *bool
	MeetingDone    *bool
	GuidanceRead   *bool
	AssignmentDone *bool
	Response       *ResponsePatch
}

// MilestonePatch builds a patch that sets exactly one milestone.
func MilestonePatch(m Milestone, v bool) ProgressPatch {
	var p ProgressPatch
	switch m {
	case MilestoneSessionOpened:
		p.SessionOpened = &v
	case MilestoneMeetingDone:
		p.MeetingDone = &v
	case MilestoneGuidanceRead:
		p.GuidanceRead = &v
	case MilestoneAssignmentDone:
		p.AssignmentDone = &v
	}
	return p
}

// ClearResponsePatch nulls the mirrored counselor-response triple.
func ClearResponsePatch() ProgressPatch {
	return ProgressPatch{Response: &ResponsePatch{}}
}

// IsEmpty reports whether the patch would write nothing.
func (p ProgressPatch) IsEmpty() bool {
	return p.SessionOpened == nil && p.MeetingDone == nil && p.GuidanceRead == nil &&
		p.AssignmentDone == nil && p.Response == nil
}

// Apply returns a copy of prog with the patch applied.
func (p ProgressPatch) Apply(prog Progress) Progress {
	if p.SessionOpened != nil {
		prog.SessionOpened = *p.SessionOpened
	}
	if p.MeetingDone != nil {
		prog.MeetingDone = *p.MeetingDone
	}
	if p.GuidanceRead != nil {
		prog.GuidanceRead = *p.GuidanceRead
	}
	if p.AssignmentDone != nil {
		prog.AssignmentDone = *p.AssignmentDone
	}
	if p.Response != nil {
		prog.CounselorResponse = p.Response.Text
		prog.CounselorName = p.Response.Name
		prog.RespondedAt = p.Response.At
	}
	return prog
}
