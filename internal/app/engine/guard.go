package engine

import (
	"context"

	"github.com/dalemusser/mindpath/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Actor is the signed-in user a call is made for. A zero UserID means no
// identity is present.
type Actor struct {
	UserID primitive.ObjectID
	Name   string
	Role   string
	IP     string
}

// Authenticated reports whether an identity is present.
func (a Actor) Authenticated() bool { return !a.UserID.IsZero() }

// Privileged reports whether the actor bypasses enrollment and unlocking.
func (a Actor) Privileged() bool { return models.IsPrivilegedRole(a.Role) }

// Outcome is the kind of access decision.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomePending Outcome = "pending" // allowed while enrollment is unknown
	OutcomeDenied  Outcome = "denied"
)

// DenyReason explains a denial.
type DenyReason string

const (
	NotAuthenticated   DenyReason = "not_authenticated"
	NotEnrolled        DenyReason = "not_enrolled"
	PreviousIncomplete DenyReason = "previous_incomplete"
)

// Decision is the Access Guard's answer. Denials are values, not errors.
type Decision struct {
	Outcome Outcome    `json:"outcome"`
	Reason  DenyReason `json:"reason,omitempty"`
}

var (
	Allowed = Decision{Outcome: OutcomeAllowed}
	Pending = Decision{Outcome: OutcomePending}
)

// Denied builds a denial for reason.
func Denied(reason DenyReason) Decision {
	return Decision{Outcome: OutcomeDenied, Reason: reason}
}

// Permits reports whether the session may be opened. Pending permits.
func (d Decision) Permits() bool { return d.Outcome != OutcomeDenied }

func (d Decision) String() string {
	if d.Reason != "" {
		return string(d.Outcome) + ":" + string(d.Reason)
	}
	return string(d.Outcome)
}

// EnrollmentState is what is known about the actor's enrollment.
type EnrollmentState int

const (
	EnrollmentUnknown EnrollmentState = iota // not loaded, or the read failed
	EnrollmentNone
	EnrollmentPresent
)

// GuardInput is everything the Access Guard decides on.
type GuardInput struct {
	Actor        Actor
	SessionIndex int
	Enrollment   EnrollmentState
	// Previous is Progress for SessionIndex-1; nil when there is none.
	Previous *models.Progress
}

// Decide is the pure Access Guard.
//
//   - no identity: NotAuthenticated
//   - privileged role or session 0: Allowed
//   - known to be unenrolled: NotEnrolled
//   - previous session's assignment not done: PreviousIncomplete
//   - enrollment unknown: Pending
func Decide(in GuardInput) Decision {
	if !in.Actor.Authenticated() {
		return Denied(NotAuthenticated)
	}
	if in.Actor.Privileged() || in.SessionIndex == 0 {
		return Allowed
	}
	if in.Enrollment == EnrollmentNone {
		return Denied(NotEnrolled)
	}
	if in.Previous == nil || !in.Previous.AssignmentDone {
		return Denied(PreviousIncomplete)
	}
	if in.Enrollment == EnrollmentUnknown {
		return Pending
	}
	return Allowed
}

// CanEnter reads what Decide needs and returns its decision. It has no
// side effects and must be called on every navigation. An error means the
// previous session's progress could not be read.
func (e *Engine) CanEnter(ctx context.Context, actor Actor, session int) (Decision, error) {
	if _, err := e.Session(session); err != nil {
		return Decision{}, err
	}
	in := GuardInput{Actor: actor, SessionIndex: session}
	if !actor.Authenticated() || actor.Privileged() || session == 0 {
		return Decide(in), nil
	}

	in.Enrollment = e.enrollmentState(ctx, actor.UserID)
	if in.Enrollment == EnrollmentNone {
		return Decide(in), nil
	}

	prev, err := e.deps.Progress.Get(ctx, actor.UserID, session-1)
	if err != nil {
		return Decision{}, persistErr("read previous progress", err)
	}
	in.Previous = prev
	return Decide(in), nil
}

func (e *Engine) enrollmentState(ctx context.Context, userID primitive.ObjectID) EnrollmentState {
	en, err := e.deps.Enrollments.Get(ctx, userID, e.Kind())
	if err != nil {
		e.log.Warn("enrollment read failed; treating as pending",
			zap.String("user_id", userID.Hex()), zap.Error(err))
		return EnrollmentUnknown
	}
	if en == nil {
		return EnrollmentNone
	}
	return EnrollmentPresent
}
