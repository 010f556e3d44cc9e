package curriculum

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Provider supplies chapters and learning outcomes for lesson planning.
type Provider interface {
	Chapters(ctx context.Context, subject, class, academicYear string) ([]Chapter, error)
	LearningOutcomes(ctx context.Context, chapterID string) ([]LearningOutcome, error)
	CurrentAcademicYear(ctx context.Context) (string, error)
}

// AcademicYear returns the school year containing t. Years start in June:
// 2025-06-01 through 2026-05-31 is "2025-2026".
func AcademicYear(t time.Time) string {
	start := t.Year()
	if t.Month() < time.June {
		start--
	}
	return fmt.Sprintf("%d-%d", start, start+1)
}

// AcademicYears lists the previous, current and next two school years
// around t, oldest first.
func AcademicYears(t time.Time) []string {
	cur := t.Year()
	if t.Month() < time.June {
		cur--
	}
	years := make([]string, 0, 4)
	for start := cur - 1; start <= cur+2; start++ {
		years = append(years, fmt.Sprintf("%d-%d", start, start+1))
	}
	return years
}

// StaticProvider serves a fixed curriculum from memory. Err, when set, is
// returned from every call.
type StaticProvider struct {
	mu       sync.RWMutex
	year     string
	chapters map[string][]Chapter
	outcomes map[string][]LearningOutcome
	Err      error
}

// NewStaticProvider creates an empty provider reporting year as current.
func NewStaticProvider(year string) *StaticProvider {
	return &StaticProvider{
		year:     year,
		chapters: make(map[string][]Chapter),
		outcomes: make(map[string][]LearningOutcome),
	}
}

// Add registers a chapter and its outcomes under subject, class and year.
func (p *StaticProvider) Add(subject, class, academicYear string, ch Chapter, outcomes ...LearningOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := lookupKey(subject, class, academicYear)
	p.chapters[key] = append(p.chapters[key], ch)
	for _, o := range outcomes {
		o.ChapterID = ch.ID
		p.outcomes[ch.ID] = append(p.outcomes[ch.ID], o)
	}
}

func (p *StaticProvider) Chapters(ctx context.Context, subject, class, academicYear string) ([]Chapter, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Chapter{}, p.chapters[lookupKey(subject, class, academicYear)]...), nil
}

func (p *StaticProvider) LearningOutcomes(ctx context.Context, chapterID string) ([]LearningOutcome, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]LearningOutcome{}, p.outcomes[chapterID]...), nil
}

func (p *StaticProvider) CurrentAcademicYear(ctx context.Context) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	return p.year, nil
}
