package curriculum

// DurationUnit is the unit of a chapter's estimated duration.
type DurationUnit string

const (
	Hours DurationUnit = "hours"
	Weeks DurationUnit = "weeks"
)

// Status is the publication state of a curriculum document.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusApproved  Status = "approved"
	StatusPublished Status = "published"
)

// rank orders statuses by preference when several documents cover the same
// subject, class and year.
func (s Status) rank() int {
	switch s {
	case StatusPublished:
		return 3
	case StatusApproved:
		return 2
	case StatusDraft:
		return 1
	default:
		return 0
	}
}

// Chapter is a curriculum unit a lesson plan is linked to.
type Chapter struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Code              string       `json:"code,omitempty"`
	EstimatedDuration float64      `json:"estimatedDuration,omitempty"`
	DurationUnit      DurationUnit `json:"durationUnit"`
}

// LearningOutcome is a chapter-scoped objective.
type LearningOutcome struct {
	ID         string `json:"id"`
	ChapterID  string `json:"chapterId"`
	Outcome    string `json:"outcome"`
	BloomLevel string `json:"bloomLevel,omitempty"`
}

// Document is one curriculum file: the chapters taught for a subject and
// class in an academic year.
type Document struct {
	Subject      string            `yaml:"subject"`
	Class        string            `yaml:"class"`
	AcademicYear string            `yaml:"academic_year"`
	Status       Status            `yaml:"status"`
	Chapters     []DocumentChapter `yaml:"chapters"`
}

// DocumentChapter is a chapter entry within a Document.
type DocumentChapter struct {
	ID                string            `yaml:"id"`
	Name              string            `yaml:"name"`
	Code              string            `yaml:"code"`
	Order             int               `yaml:"order"`
	EstimatedDuration float64           `yaml:"estimated_duration"`
	DurationUnit      DurationUnit      `yaml:"duration_unit"`
	LearningOutcomes  []DocumentOutcome `yaml:"learning_outcomes"`
}

// DocumentOutcome is a learning outcome entry within a DocumentChapter.
type DocumentOutcome struct {
	ID         string `yaml:"id"`
	Outcome    string `yaml:"outcome"`
	BloomLevel string `yaml:"bloom_level"`
}
