package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/p-n-ai/pai-school/internal/session"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want session.Role
	}{
		{"school_admin", session.RoleSchoolAdmin},
		{" School_Admin ", session.RoleSchoolAdmin},
		{"educator", session.RoleEducator},
		{"teacher", session.RoleTeacher},
		{"", session.RoleTeacher},
		{"superuser", session.RoleTeacher},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := session.ParseRole(tt.in); got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestContext_CanApprove(t *testing.T) {
	if !(session.Context{Role: session.RoleSchoolAdmin}).CanApprove() {
		t.Error("school_admin should be able to approve")
	}
	if (session.Context{Role: session.RoleEducator}).CanApprove() {
		t.Error("educator should not be able to approve")
	}
}

func TestMiddleware(t *testing.T) {
	var got session.Context
	h := session.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := session.From(r.Context())
		if !ok {
			t.Error("session missing from context")
		}
		got = s
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		headers  map[string]string
		wantCode int
	}{
		{"missing all", nil, http.StatusUnauthorized},
		{"missing user", map[string]string{session.HeaderSchoolID: "school-1"}, http.StatusUnauthorized},
		{"complete", map[string]string{
			session.HeaderSchoolID: "school-1",
			session.HeaderUserID:   "user-9",
			session.HeaderRole:     "school_admin",
		}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/classes", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}

	if got.SchoolID != "school-1" || got.UserID != "user-9" || got.Role != session.RoleSchoolAdmin {
		t.Errorf("session = %+v", got)
	}
}
