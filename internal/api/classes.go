package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-school/internal/classroom"
	"github.com/p-n-ai/pai-school/internal/export"
)

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	views, err := s.classes.ListClasses(r.Context(), sess)
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	if views == nil {
		views = []classroom.View{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"classes": views})
}

func (s *Server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	var in classroom.Input
	if err := decodeJSON(r, &in); err != nil {
		writeBadBody(w, err)
		return
	}
	v, err := s.classes.CreateClass(r.Context(), sess, in)
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	v, err := s.classes.GetClass(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUpdateClass(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	var in classroom.Input
	if err := decodeJSON(r, &in); err != nil {
		writeBadBody(w, err)
		return
	}
	v, err := s.classes.UpdateClass(r.Context(), sess, r.PathValue("id"), in)
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteClass(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	if err := s.classes.DeleteClass(r.Context(), sess, r.PathValue("id")); err != nil {
		s.fail(w, r, sess, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportRoster(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	v, err := s.classes.GetClass(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Roster(&buf, v); err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeFile(w, rosterFilename(v.Name), buf.Bytes())
}

func (s *Server) handleAvailableStudents(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	students, err := s.classes.AvailableStudents(r.Context(), sess, r.URL.Query().Get("search"))
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	if students == nil {
		students = []classroom.Student{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": students})
}

func (s *Server) handleAssignStudents(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	var req struct {
		StudentIDs []string `json:"studentIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadBody(w, err)
		return
	}
	v, err := s.classes.AssignStudents(r.Context(), sess, r.PathValue("id"), req.StudentIDs)
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleRemoveStudent(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	v, err := s.classes.RemoveStudent(r.Context(), sess, r.PathValue("id"), r.PathValue("studentId"))
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func rosterFilename(className string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, strings.TrimSpace(className))
	if name == "" {
		name = "class"
	}
	return name + "-roster.xlsx"
}
