package lessonplan

// ToRecord converts a draft for storage. Empty optional fields become null
// and status comes from the caller, not from the draft.
func ToRecord(d Draft, status Status) Record {
	return Record{
		ID:                   d.ID,
		Title:                d.Title,
		Subject:              d.Subject,
		Class:                d.Class,
		AcademicYear:         d.AcademicYear,
		Date:                 nullable(d.Date),
		ChapterID:            nullable(d.ChapterID),
		ChapterName:          nullable(d.ChapterName),
		Duration:             nullable(d.Duration),
		LearningOutcomeIDs:   nilIfEmpty(d.LearningOutcomeIDs),
		LearningObjectives:   nullable(d.LearningObjectives),
		TeachingMethodology:  nullable(d.TeachingMethodology),
		RequiredMaterials:    nullable(d.RequiredMaterials),
		ResourceFiles:        nilIfEmpty(d.ResourceFiles),
		ResourceLinks:        nilIfEmpty(d.ResourceLinks),
		EvaluationCriteria:   nullable(d.EvaluationCriteria),
		EvaluationItems:      nilIfEmpty(d.EvaluationItems),
		Homework:             nullable(d.Homework),
		DifferentiationNotes: nullable(d.DifferentiationNotes),
		Status:               status,
	}
}

// FromRecord converts a stored record for editing. Every optional field is
// defaulted to an empty value.
func FromRecord(r Record) Draft {
	return Draft{
		ID:                   r.ID,
		Title:                r.Title,
		Subject:              r.Subject,
		Class:                r.Class,
		AcademicYear:         r.AcademicYear,
		Date:                 deref(r.Date),
		ChapterID:            deref(r.ChapterID),
		ChapterName:          deref(r.ChapterName),
		Duration:             deref(r.Duration),
		LearningOutcomeIDs:   orEmpty(r.LearningOutcomeIDs),
		LearningObjectives:   deref(r.LearningObjectives),
		TeachingMethodology:  deref(r.TeachingMethodology),
		RequiredMaterials:    deref(r.RequiredMaterials),
		ResourceFiles:        orEmpty(r.ResourceFiles),
		ResourceLinks:        orEmpty(r.ResourceLinks),
		EvaluationCriteria:   deref(r.EvaluationCriteria),
		EvaluationItems:      orEmpty(r.EvaluationItems),
		Homework:             deref(r.Homework),
		DifferentiationNotes: deref(r.DifferentiationNotes),
		Status:               r.Status,
	}
}

// Copy returns a new unsaved draft from r: the title is marked as a copy and
// the date cleared.
func Copy(r Record) Draft {
	d := FromRecord(r)
	d.ID = ""
	d.Title = r.Title + " (Copy)"
	d.Date = ""
	d.Status = ""
	d.ResourceFiles = append([]ResourceFile{}, d.ResourceFiles...)
	d.ResourceLinks = append([]ResourceLink{}, d.ResourceLinks...)
	d.EvaluationItems = append([]EvaluationItem{}, d.EvaluationItems...)
	d.LearningOutcomeIDs = append([]string{}, d.LearningOutcomeIDs...)
	return d
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return append([]T(nil), s...)
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return append([]T{}, s...)
}
