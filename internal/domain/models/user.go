// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles recognised by the portal. Participants are "member"; staff who answer
// assignments are "counselor"; "admin" and "superadmin" run the programs.
const (
	RoleMember     = "member"
	RoleCounselor  = "counselor"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// User represents participants, counselors and administrators.
//
// NOTE:
//   - Program enrollment (and cohort) is not embedded on User.
//     Use the enrollments collection to discover a user's programs.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"full_name_ci"` // lowercase, diacritics-stripped
	Email      string             `bson:"email" json:"email"`
	Role       string             `bson:"role" json:"role"` // admin | counselor | member
	Status     string             `bson:"status,omitempty" json:"status,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Profile is the display projection of a User used by administrator views.
type Profile struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	DisplayName string             `bson:"full_name" json:"display_name"`
}

// IsPrivilegedRole reports whether role bypasses enrollment and sequential
// unlocking checks.
func IsPrivilegedRole(role string) bool {
	switch role {
	case RoleAdmin, RoleSuperAdmin, RoleCounselor:
		return true
	}
	return false
}
