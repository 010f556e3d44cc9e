package api

import (
	"bytes"
	"net/http"

	"github.com/p-n-ai/pai-school/internal/export"
	"github.com/p-n-ai/pai-school/internal/lessonplan"
)

func planFilter(r *http.Request) lessonplan.Filter {
	q := r.URL.Query()
	return lessonplan.Filter{
		Status:       lessonplan.Status(q.Get("status")),
		Subject:      q.Get("subject"),
		Class:        q.Get("class"),
		AcademicYear: q.Get("academic_year"),
		CreatedBy:    q.Get("created_by"),
		Search:       q.Get("search"),
	}
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	plans, err := s.plans.List(r.Context(), sess, planFilter(r))
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	if plans == nil {
		plans = []lessonplan.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lesson_plans": plans})
}

func (s *Server) handlePlanStats(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	stats, err := s.plans.Stats(r.Context(), sess)
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExportPlans(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	plans, err := s.plans.List(r.Context(), sess, planFilter(r))
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	var buf bytes.Buffer
	if err := export.LessonPlans(&buf, plans); err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeFile(w, "lesson-plans.xlsx", buf.Bytes())
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	rec, err := s.plans.Get(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEditPlan(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	ds, err := s.plans.Edit(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDraftView(ds))
}

func (s *Server) handleDuplicatePlan(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	ds, err := s.plans.Duplicate(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDraftView(ds))
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	if err := s.plans.Delete(r.Context(), sess, r.PathValue("id")); err != nil {
		s.fail(w, r, sess, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeFile sends an XLSX workbook as an attachment.
func writeFile(w http.ResponseWriter, name string, body []byte) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
