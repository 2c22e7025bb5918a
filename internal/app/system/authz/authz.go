// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/mindpath/internal/app/engine"
	"github.com/dalemusser/mindpath/internal/app/system/auditlog"
	"github.com/dalemusser/mindpath/internal/app/system/auth"
	"github.com/dalemusser/mindpath/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserCtx returns the user's role (lowercased), name, Mongo ObjectID, and a found flag.
// If no user is present in context or the user ID is malformed, it returns
// "visitor", "", NilObjectID, false. This ensures callers can trust that
// ok=true means a valid, authenticated user with a valid ObjectID.
// The role is normalized to lowercase for consistent comparison.
func UserCtx(r *http.Request) (role string, name string, userID primitive.ObjectID, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return "visitor", "", primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		// Malformed user ID in session - fail closed for security.
		// This should not happen in normal operation; indicates session corruption.
		return "visitor", "", primitive.NilObjectID, false
	}
	return strings.ToLower(user.Role), user.Name, userID, true
}

// Actor converts the request's user into an engine actor. Without a valid
// user the actor is zero, which the access guard treats as
// unauthenticated.
func Actor(r *http.Request) engine.Actor {
	role, name, userID, ok := UserCtx(r)
	if !ok {
		return engine.Actor{}
	}
	return engine.Actor{UserID: userID, Name: name, Role: role, IP: auditlog.ClientIP(r)}
}

// IsAdmin reports whether the current request's user is an admin.
// Note: Superadmins are also considered admins for permission purposes.
func IsAdmin(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && (role == models.RoleAdmin || role == models.RoleSuperAdmin)
}

// IsCounselor reports whether the current request's user is a counselor.
func IsCounselor(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == models.RoleCounselor
}

// IsMember reports whether the current request's user is a participant.
func IsMember(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == models.RoleMember
}

// IsPrivileged reports whether the current user bypasses enrollment and
// sequential unlocking.
func IsPrivileged(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && models.IsPrivilegedRole(role)
}
