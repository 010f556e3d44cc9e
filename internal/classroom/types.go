// Package classroom manages school classes and their rosters. The stored
// student count is a cache: every read recounts the active roster, shows the
// fresh value and corrects the stored one in the background.
package classroom

import (
	"strings"
	"time"
)

// Status values for a class.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Metadata holds the free-form class details kept in a JSON column.
type Metadata struct {
	SkillAreas    []string `json:"skillAreas,omitempty"`
	Educator      string   `json:"educator,omitempty"`
	EducatorEmail string   `json:"educatorEmail,omitempty"`
}

// Class is a school class. CurrentStudents as stored may lag behind the
// roster; see Service.
type Class struct {
	ID              string    `json:"id"`
	SchoolID        string    `json:"school_id"`
	Name            string    `json:"name"`
	Grade           string    `json:"grade"`
	Section         string    `json:"section"`
	AcademicYear    string    `json:"academic_year"`
	MaxStudents     int       `json:"max_students"`
	CurrentStudents int       `json:"current_students"`
	Status          string    `json:"status"`
	Metadata        Metadata  `json:"metadata"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Student is a roster entry.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ClassID   string    `json:"class_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Band classifies how full a class is.
type Band string

const (
	BandOpen Band = "open"
	BandFull Band = "full"
	BandOver Band = "over"
)

// View is a class with its freshly counted roster. Over capacity is a
// warning, never a reason to refuse an edit.
type View struct {
	Class
	Students     []Student `json:"students"`
	OverCapacity bool      `json:"over_capacity"`
	OverBy       int       `json:"over_by"`
	Band         Band      `json:"band"`
	// FillPercent is capped at 100 for progress bars.
	FillPercent int `json:"fill_percent"`
}

// NewView builds a view of c whose student count is len(students).
func NewView(c Class, students []Student) View {
	if students == nil {
		students = []Student{}
	}
	c.CurrentStudents = len(students)

	v := View{Class: c, Students: students, Band: BandOpen}
	switch {
	case c.CurrentStudents > c.MaxStudents:
		v.OverCapacity = true
		v.OverBy = c.CurrentStudents - c.MaxStudents
		v.Band = BandOver
	case c.CurrentStudents == c.MaxStudents:
		v.Band = BandFull
	}
	if c.MaxStudents > 0 {
		v.FillPercent = min(100, c.CurrentStudents*100/c.MaxStudents)
	}
	return v
}

// Input carries the editable fields of a class.
type Input struct {
	Name         string   `json:"name" validate:"required"`
	Grade        string   `json:"grade" validate:"required"`
	Section      string   `json:"section" validate:"required"`
	AcademicYear string   `json:"academic_year" validate:"required"`
	MaxStudents  int      `json:"max_students" validate:"min=1"`
	SkillAreas   []string `json:"skill_areas"`
}

func (in Input) normalized() Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Grade = strings.TrimSpace(in.Grade)
	in.Section = strings.TrimSpace(in.Section)
	in.AcademicYear = strings.TrimSpace(in.AcademicYear)

	skills := make([]string, 0, len(in.SkillAreas))
	for _, s := range in.SkillAreas {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	in.SkillAreas = skills
	return in
}
