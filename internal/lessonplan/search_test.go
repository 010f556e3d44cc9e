package lessonplan_test

import (
	"testing"

	"github.com/p-n-ai/pai-school/internal/lessonplan"
)

func TestFilter_Matches(t *testing.T) {
	chapter := "Cells and Organisms"
	r := lessonplan.Record{
		SchoolID:     "school-1",
		CreatedBy:    "teacher-1",
		Title:        "Plant cells",
		Subject:      "Science",
		Class:        "Grade 7",
		AcademicYear: "2025-2026",
		ChapterName:  &chapter,
		Status:       lessonplan.StatusDraft,
	}

	tests := []struct {
		name   string
		filter lessonplan.Filter
		want   bool
	}{
		{"empty", lessonplan.Filter{}, true},
		{"school", lessonplan.Filter{SchoolID: "school-1"}, true},
		{"other school", lessonplan.Filter{SchoolID: "school-2"}, false},
		{"status", lessonplan.Filter{Status: lessonplan.StatusDraft}, true},
		{"other status", lessonplan.Filter{Status: lessonplan.StatusApproved}, false},
		{"subject folded", lessonplan.Filter{Subject: " SCIENCE "}, true},
		{"class folded", lessonplan.Filter{Class: "grade 7"}, true},
		{"other class", lessonplan.Filter{Class: "Grade 8"}, false},
		{"year", lessonplan.Filter{AcademicYear: "2024-2025"}, false},
		{"author", lessonplan.Filter{CreatedBy: "teacher-1"}, true},
		{"search title", lessonplan.Filter{Search: "PLANT"}, true},
		{"search chapter", lessonplan.Filter{Search: "organisms"}, true},
		{"search miss", lessonplan.Filter{Search: "fractions"}, false},
		{"blank search", lessonplan.Filter{Search: "   "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(r); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_MatchesComposedAccents(t *testing.T) {
	r := lessonplan.Record{Title: "Caf\u00e9 economics"}
	f := lessonplan.Filter{Search: "CAFE\u0301"}
	if !f.Matches(r) {
		t.Error("decomposed accent did not match composed title")
	}
}
