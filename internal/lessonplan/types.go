// Package lessonplan composes, validates and stores lesson plans.
//
// A Draft is the editing shape: every optional field defaults to an empty
// value. A Record is the stored shape: snake_case, with untouched optional
// fields left null. ToRecord and FromRecord convert between the two.
package lessonplan

import "time"

// Status is a stored lesson plan's state. It is chosen by the submit action,
// never edited directly.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusApproved
}

// ResourceFile is an uploaded attachment. URL is set once storage confirms
// the upload.
type ResourceFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url,omitempty"`
}

// ResourceLink is an external link. It never touches storage.
type ResourceLink struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// EvaluationItem is one weighted assessment component.
type EvaluationItem struct {
	ID         string  `json:"id"`
	Criterion  string  `json:"criterion"`
	Percentage float64 `json:"percentage"`
}

// Draft is a lesson plan being edited. ChapterName and Duration are derived
// from the selected chapter.
type Draft struct {
	ID           string `json:"id,omitempty"`
	Title        string `json:"title" validate:"notblank"`
	Subject      string `json:"subject" validate:"notblank"`
	Class        string `json:"class" validate:"notblank"`
	AcademicYear string `json:"academicYear" validate:"notblank"`
	Date         string `json:"date" validate:"notblank,datetime=2006-01-02"`

	ChapterID          string   `json:"chapterId" validate:"notblank"`
	ChapterName        string   `json:"chapterName"`
	Duration           string   `json:"duration"`
	LearningOutcomeIDs []string `json:"learningOutcomes" validate:"min=1"`

	LearningObjectives  string `json:"learningObjectives" validate:"notblank"`
	TeachingMethodology string `json:"teachingMethodology" validate:"notblank"`

	RequiredMaterials string         `json:"requiredMaterials"`
	ResourceFiles     []ResourceFile `json:"resourceFiles"`
	ResourceLinks     []ResourceLink `json:"resourceLinks"`

	EvaluationCriteria string           `json:"evaluationCriteria"`
	EvaluationItems    []EvaluationItem `json:"evaluationItems"`

	Homework             string `json:"homework"`
	DifferentiationNotes string `json:"differentiationNotes"`

	Status Status `json:"status,omitempty"`
}

// NewDraft returns an empty draft with non-nil lists.
func NewDraft() Draft {
	return Draft{
		LearningOutcomeIDs: []string{},
		ResourceFiles:      []ResourceFile{},
		ResourceLinks:      []ResourceLink{},
		EvaluationItems:    []EvaluationItem{},
	}
}

// Record is the stored lesson plan.
type Record struct {
	ID        string `json:"id,omitempty"`
	SchoolID  string `json:"school_id"`
	CreatedBy string `json:"created_by,omitempty"`

	Title        string  `json:"title"`
	Subject      string  `json:"subject"`
	Class        string  `json:"class"`
	AcademicYear string  `json:"academic_year"`
	Date         *string `json:"date"`

	ChapterID          *string  `json:"chapter_id"`
	ChapterName        *string  `json:"chapter_name"`
	Duration           *string  `json:"duration"`
	LearningOutcomeIDs []string `json:"learning_outcome_ids,omitempty"`

	LearningObjectives  *string `json:"learning_objectives"`
	TeachingMethodology *string `json:"teaching_methodology"`

	RequiredMaterials *string        `json:"required_materials"`
	ResourceFiles     []ResourceFile `json:"resource_files,omitempty"`
	ResourceLinks     []ResourceLink `json:"resource_links,omitempty"`

	EvaluationCriteria *string          `json:"evaluation_criteria"`
	EvaluationItems    []EvaluationItem `json:"evaluation_items,omitempty"`

	Homework             *string `json:"homework"`
	DifferentiationNotes *string `json:"differentiation_notes"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats counts a school's lesson plans by status.
type Stats struct {
	Total    int `json:"total"`
	Draft    int `json:"draft"`
	Approved int `json:"approved"`
}
