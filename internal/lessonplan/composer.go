package lessonplan

import (
	"context"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-school/internal/curriculum"
	"github.com/p-n-ai/pai-school/internal/platform/apperr"
	"github.com/p-n-ai/pai-school/internal/platform/background"
)

// Patch carries edits to a draft's free-form fields. Nil fields are left
// unchanged.
type Patch struct {
	Title                *string `json:"title"`
	Subject              *string `json:"subject"`
	Class                *string `json:"class"`
	AcademicYear         *string `json:"academicYear"`
	Date                 *string `json:"date"`
	LearningObjectives   *string `json:"learningObjectives"`
	TeachingMethodology  *string `json:"teachingMethodology"`
	RequiredMaterials    *string `json:"requiredMaterials"`
	EvaluationCriteria   *string `json:"evaluationCriteria"`
	Homework             *string `json:"homework"`
	DifferentiationNotes *string `json:"differentiationNotes"`
}

// ComposerConfig holds the collaborators a Composer calls out to.
type ComposerConfig struct {
	Curriculum curriculum.Provider
	Files      FileDeleter
	Background background.Scheduler
}

// Composer applies edits to one draft. It is not safe for concurrent use;
// a draft belongs to a single editing session.
type Composer struct {
	draft      *Draft
	curriculum curriculum.Provider
	evaluation *Evaluation
	resources  *Resources
}

// NewComposer edits d in place.
func NewComposer(d *Draft, cfg ComposerConfig) *Composer {
	if d.LearningOutcomeIDs == nil {
		d.LearningOutcomeIDs = []string{}
	}
	if d.ResourceFiles == nil {
		d.ResourceFiles = []ResourceFile{}
	}
	if d.ResourceLinks == nil {
		d.ResourceLinks = []ResourceLink{}
	}
	if d.EvaluationItems == nil {
		d.EvaluationItems = []EvaluationItem{}
	}
	return &Composer{
		draft:      d,
		curriculum: cfg.Curriculum,
		evaluation: NewEvaluation(&d.EvaluationItems),
		resources:  NewResources(d, cfg.Files, cfg.Background),
	}
}

// Draft returns the draft being edited.
func (c *Composer) Draft() *Draft { return c.draft }

// Evaluation returns the evaluation item manager.
func (c *Composer) Evaluation() *Evaluation { return c.evaluation }

// Resources returns the file and link manager.
func (c *Composer) Resources() *Resources { return c.resources }

// Validate checks the draft.
func (c *Composer) Validate() map[string]string { return Validate(*c.draft) }

// Apply copies the set fields of p into the draft. Changing subject, class
// or academic year clears the chapter and its outcomes, since they belong
// to the previous curriculum.
func (c *Composer) Apply(p Patch) {
	d := c.draft
	scopeChanged := false
	setScope := func(dst *string, v *string) {
		if v != nil && *v != *dst {
			*dst = *v
			scopeChanged = true
		}
	}
	setScope(&d.Subject, p.Subject)
	setScope(&d.Class, p.Class)
	setScope(&d.AcademicYear, p.AcademicYear)
	if scopeChanged {
		c.clearChapter()
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&d.Title, p.Title)
	set(&d.Date, p.Date)
	set(&d.LearningObjectives, p.LearningObjectives)
	set(&d.TeachingMethodology, p.TeachingMethodology)
	set(&d.RequiredMaterials, p.RequiredMaterials)
	set(&d.EvaluationCriteria, p.EvaluationCriteria)
	set(&d.Homework, p.Homework)
	set(&d.DifferentiationNotes, p.DifferentiationNotes)
}

// SelectChapter links the draft to a chapter of its curriculum, filling in
// the chapter name and duration and dropping selected outcomes from other
// chapters. An empty id clears the selection. On failure the draft is
// unchanged.
func (c *Composer) SelectChapter(ctx context.Context, chapterID string) error {
	d := c.draft
	chapterID = strings.TrimSpace(chapterID)
	if chapterID == "" {
		c.clearChapter()
		return nil
	}
	if strings.TrimSpace(d.Subject) == "" || strings.TrimSpace(d.Class) == "" || strings.TrimSpace(d.AcademicYear) == "" {
		return apperr.Invalid("chapterId", "Select a subject, class and academic year first")
	}

	chapters, err := c.curriculum.Chapters(ctx, d.Subject, d.Class, d.AcademicYear)
	if err != nil {
		return apperr.External("curriculum provider", "get chapters", err)
	}
	var chapter *curriculum.Chapter
	for i := range chapters {
		if chapters[i].ID == chapterID {
			chapter = &chapters[i]
			break
		}
	}
	if chapter == nil {
		return apperr.Invalid("chapterId", "Chapter is not part of the curriculum for this class")
	}

	outcomes, err := c.curriculum.LearningOutcomes(ctx, chapterID)
	if err != nil {
		return apperr.External("curriculum provider", "get learning outcomes", err)
	}
	allowed := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		allowed[o.ID] = true
	}

	kept := []string{}
	for _, id := range d.LearningOutcomeIDs {
		if allowed[id] {
			kept = append(kept, id)
		}
	}

	d.ChapterID = chapter.ID
	d.ChapterName = chapter.Name
	d.Duration = FormatDuration(chapter.EstimatedDuration, chapter.DurationUnit)
	d.LearningOutcomeIDs = kept
	return nil
}

// SetOutcomes replaces the selected learning outcomes. Every id must belong
// to the selected chapter. Duplicates are dropped, order is kept.
func (c *Composer) SetOutcomes(ctx context.Context, ids []string) error {
	d := c.draft
	if d.ChapterID == "" {
		return apperr.Invalid("learningOutcomes", "Please select a chapter first")
	}

	outcomes, err := c.curriculum.LearningOutcomes(ctx, d.ChapterID)
	if err != nil {
		return apperr.External("curriculum provider", "get learning outcomes", err)
	}
	allowed := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		allowed[o.ID] = true
	}

	seen := make(map[string]bool, len(ids))
	selected := make([]string, 0, len(ids))
	for _, id := range ids {
		if !allowed[id] {
			return apperr.Invalid("learningOutcomes", "Learning outcome "+id+" does not belong to the selected chapter")
		}
		if !seen[id] {
			seen[id] = true
			selected = append(selected, id)
		}
	}
	d.LearningOutcomeIDs = selected
	return nil
}

func (c *Composer) clearChapter() {
	c.draft.ChapterID = ""
	c.draft.ChapterName = ""
	c.draft.Duration = ""
	c.draft.LearningOutcomeIDs = []string{}
}

// FormatDuration renders an estimated duration such as "3 weeks". Zero
// renders as empty.
func FormatDuration(v float64, unit curriculum.DurationUnit) string {
	if v <= 0 {
		return ""
	}
	if unit == "" {
		unit = curriculum.Hours
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + string(unit)
}
