package lessonplan

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Filter selects lesson plans within a school.
type Filter struct {
	SchoolID     string
	Status       Status
	Subject      string
	Class        string
	AcademicYear string
	CreatedBy    string
	// Search matches title, subject, class or chapter name, ignoring case
	// and accents composed differently.
	Search string
}

// Matches reports whether r passes every set criterion.
func (f Filter) Matches(r Record) bool {
	if f.SchoolID != "" && r.SchoolID != f.SchoolID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.AcademicYear != "" && r.AcademicYear != f.AcademicYear {
		return false
	}
	if f.CreatedBy != "" && r.CreatedBy != f.CreatedBy {
		return false
	}
	if f.Subject != "" && fold(r.Subject) != fold(f.Subject) {
		return false
	}
	if f.Class != "" && fold(r.Class) != fold(f.Class) {
		return false
	}
	if q := fold(f.Search); q != "" {
		for _, field := range []string{r.Title, r.Subject, r.Class, deref(r.ChapterName)} {
			if strings.Contains(fold(field), q) {
				return true
			}
		}
		return false
	}
	return true
}

// fold normalizes s for case-insensitive comparison.
func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}
