package api

import (
	"net/http"

	"github.com/p-n-ai/pai-school/internal/curriculum"
	"github.com/p-n-ai/pai-school/internal/platform/apperr"
)

// curriculumService names the provider in remote failures raised here.
const curriculumService = "curriculum provider"

func (s *Server) handleAcademicYear(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	year, err := s.curriculum.CurrentAcademicYear(r.Context())
	if err != nil {
		s.fail(w, r, sess, apperr.External(curriculumService, "get academic year", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"academic_year": year})
}

func (s *Server) handleAcademicYears(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"academic_years": curriculum.AcademicYears(s.now())})
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	q := r.URL.Query()
	subject, class, year := q.Get("subject"), q.Get("class"), q.Get("academic_year")
	if subject == "" || class == "" || year == "" {
		s.fail(w, r, sess, apperr.Invalid("chapters", "Select a subject, class and academic year first"))
		return
	}
	chapters, err := s.curriculum.Chapters(r.Context(), subject, class, year)
	if err != nil {
		s.fail(w, r, sess, apperr.External(curriculumService, "get chapters", err))
		return
	}
	if chapters == nil {
		chapters = []curriculum.Chapter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chapters": chapters})
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	outcomes, err := s.curriculum.LearningOutcomes(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, sess, apperr.External(curriculumService, "get learning outcomes", err))
		return
	}
	if outcomes == nil {
		outcomes = []curriculum.LearningOutcome{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"learning_outcomes": outcomes})
}
