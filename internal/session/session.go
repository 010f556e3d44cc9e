// Package session carries the caller's identity (school, user, role)
// explicitly through every service call.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Role is the caller's role within a school.
type Role string

const (
	RoleSchoolAdmin Role = "school_admin"
	RoleEducator    Role = "educator"
	RoleTeacher     Role = "teacher"
)

// Header names set by the upstream gateway after authentication.
const (
	HeaderSchoolID = "X-School-ID"
	HeaderUserID   = "X-User-ID"
	HeaderRole     = "X-User-Role"
)

// Context identifies who is acting and for which school.
type Context struct {
	SchoolID string `json:"school_id"`
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
}

// Valid reports whether both school and user are known.
func (c Context) Valid() bool {
	return c.SchoolID != "" && c.UserID != ""
}

// CanApprove reports whether the caller may approve lesson plans.
func (c Context) CanApprove() bool {
	return c.Role == RoleSchoolAdmin
}

type ctxKey struct{}

// With returns a copy of ctx carrying s.
func With(ctx context.Context, s Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// From returns the session stored by Middleware.
func From(ctx context.Context) (Context, bool) {
	s, ok := ctx.Value(ctxKey{}).(Context)
	return s, ok
}

// ParseRole maps a header value to a Role. Unknown values fall back to
// teacher, the least privileged role.
func ParseRole(v string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(v))) {
	case RoleSchoolAdmin:
		return RoleSchoolAdmin
	case RoleEducator:
		return RoleEducator
	default:
		return RoleTeacher
	}
}

// FromRequest reads the identity headers.
func FromRequest(r *http.Request) Context {
	return Context{
		SchoolID: strings.TrimSpace(r.Header.Get(HeaderSchoolID)),
		UserID:   strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Role:     ParseRole(r.Header.Get(HeaderRole)),
	}
}

// Middleware rejects requests without school and user ids and stores the
// session in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := FromRequest(r)
		if !s.Valid() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing school or user id"})
			return
		}
		next.ServeHTTP(w, r.WithContext(With(r.Context(), s)))
	})
}
