// Package api exposes the lesson plan composer, class capacity views and
// curriculum lookups over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-school/internal/classroom"
	"github.com/p-n-ai/pai-school/internal/curriculum"
	"github.com/p-n-ai/pai-school/internal/lessonplan"
	"github.com/p-n-ai/pai-school/internal/notice"
	"github.com/p-n-ai/pai-school/internal/platform/apperr"
	"github.com/p-n-ai/pai-school/internal/session"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Config holds the services the API serves.
type Config struct {
	Plans      *lessonplan.Service
	Classes    *classroom.Service
	Curriculum curriculum.Provider

	// Notices receives validation, remote failure and upload progress
	// notices for the requesting user.
	Notices notice.Publisher
	// NoticeStream serves GET /ws/notices when set.
	NoticeStream http.Handler

	// Checks run on GET /readyz, keyed by dependency name.
	Checks map[string]Check

	MaxUploadMB int
	Now         func() time.Time
}

// Server routes HTTP requests to the services.
type Server struct {
	plans       *lessonplan.Service
	classes     *classroom.Service
	curriculum  curriculum.Provider
	notices     notice.Publisher
	stream      http.Handler
	checks      map[string]Check
	maxUploadMB int
	maxUpload   int64
	now         func() time.Time
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Plans == nil {
		return nil, fmt.Errorf("lesson plan service is required")
	}
	if cfg.Classes == nil {
		return nil, fmt.Errorf("class service is required")
	}
	if cfg.Curriculum == nil {
		return nil, fmt.Errorf("curriculum provider is required")
	}
	s := &Server{
		plans:       cfg.Plans,
		classes:     cfg.Classes,
		curriculum:  cfg.Curriculum,
		notices:     cfg.Notices,
		stream:      cfg.NoticeStream,
		checks:      cfg.Checks,
		maxUploadMB: cfg.MaxUploadMB,
		now:         cfg.Now,
	}
	if s.notices == nil {
		s.notices = notice.Discard{}
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 50
	}
	s.maxUpload = int64(s.maxUploadMB) << 20
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Handler returns the routed handler. Everything except the health checks
// requires a session.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("GET /api/curriculum/academic-year", s.handleAcademicYear)
	api.HandleFunc("GET /api/curriculum/academic-years", s.handleAcademicYears)
	api.HandleFunc("GET /api/curriculum/chapters", s.handleChapters)
	api.HandleFunc("GET /api/curriculum/chapters/{id}/outcomes", s.handleOutcomes)

	api.HandleFunc("POST /api/drafts", s.handleNewDraft)
	api.HandleFunc("GET /api/drafts/{id}", s.handleGetDraft)
	api.HandleFunc("PATCH /api/drafts/{id}", s.handlePatchDraft)
	api.HandleFunc("DELETE /api/drafts/{id}", s.handleDiscardDraft)
	api.HandleFunc("PUT /api/drafts/{id}/chapter", s.handleSelectChapter)
	api.HandleFunc("PUT /api/drafts/{id}/outcomes", s.handleSetOutcomes)
	api.HandleFunc("POST /api/drafts/{id}/evaluation-items", s.handleAddEvaluationItem)
	api.HandleFunc("DELETE /api/drafts/{id}/evaluation-items/{itemId}", s.handleRemoveEvaluationItem)
	api.HandleFunc("POST /api/drafts/{id}/links", s.handleAddLink)
	api.HandleFunc("DELETE /api/drafts/{id}/links/{linkId}", s.handleRemoveLink)
	api.HandleFunc("POST /api/drafts/{id}/files", s.handleUploadFiles)
	api.HandleFunc("DELETE /api/drafts/{id}/files/{fileId}", s.handleRemoveFile)
	api.HandleFunc("GET /api/drafts/{id}/validation", s.handleValidateDraft)
	api.HandleFunc("POST /api/drafts/{id}/submit", s.handleSubmit)

	api.HandleFunc("GET /api/lesson-plans", s.handleListPlans)
	api.HandleFunc("GET /api/lesson-plans/stats", s.handlePlanStats)
	api.HandleFunc("GET /api/lesson-plans/export.xlsx", s.handleExportPlans)
	api.HandleFunc("GET /api/lesson-plans/{id}", s.handleGetPlan)
	api.HandleFunc("POST /api/lesson-plans/{id}/edit", s.handleEditPlan)
	api.HandleFunc("POST /api/lesson-plans/{id}/duplicate", s.handleDuplicatePlan)
	api.HandleFunc("DELETE /api/lesson-plans/{id}", s.handleDeletePlan)

	api.HandleFunc("GET /api/classes", s.handleListClasses)
	api.HandleFunc("POST /api/classes", s.handleCreateClass)
	api.HandleFunc("GET /api/classes/{id}", s.handleGetClass)
	api.HandleFunc("PATCH /api/classes/{id}", s.handleUpdateClass)
	api.HandleFunc("DELETE /api/classes/{id}", s.handleDeleteClass)
	api.HandleFunc("GET /api/classes/{id}/roster.xlsx", s.handleExportRoster)
	api.HandleFunc("GET /api/classes/{id}/available-students", s.handleAvailableStudents)
	api.HandleFunc("POST /api/classes/{id}/students", s.handleAssignStudents)
	api.HandleFunc("DELETE /api/classes/{id}/students/{studentId}", s.handleRemoveStudent)

	if s.stream != nil {
		api.Handle("GET /ws/notices", s.stream)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	authed := session.Middleware(api)
	mux.Handle("/api/", authed)
	mux.Handle("/ws/", authed)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			slog.Warn("readiness check failed", "dependency", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeBadBody rejects a request body that could not be decoded.
func writeBadBody(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body", "message": err.Error()})
}

// fail maps a service error to a response and pushes the matching notices
// to the user.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, sess session.Context, err error) {
	if ve, ok := apperr.IsValidation(err); ok {
		s.publish(sess, err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation", "fields": ve.Fields})
		return
	}
	if ee, ok := apperr.IsExternal(err); ok {
		s.publish(sess, err)
		slog.Warn("remote call failed",
			"method", r.Method,
			"path", r.URL.Path,
			"service", ee.Service,
			"error", err,
		)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "external",
			"service": ee.Service,
			"message": ee.Error(),
			"retry":   ee.Retryable(),
		})
		return
	}
	if errors.Is(err, apperr.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal")
}

func (s *Server) publish(sess session.Context, err error) {
	for _, n := range notice.FromError(err) {
		s.notices.Publish(sess.UserID, n)
	}
}

// sessionOf returns the session set by the middleware.
func sessionOf(r *http.Request) session.Context {
	sess, _ := session.From(r.Context())
	return sess
}
