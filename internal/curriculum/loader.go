package curriculum

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	RootDir string
	// AcademicYear overrides the clock-derived current year when set.
	AcademicYear string
	Now          func() time.Time
}

type indexedDoc struct {
	status   Status
	chapters []Chapter
}

// Loader loads curriculum documents from the filesystem and serves them as
// a Provider.
type Loader struct {
	rootDir  string
	override string
	now      func() time.Time

	docs     map[string]indexedDoc
	outcomes map[string][]LearningOutcome
	// owners maps a chapter id to the document key that defines it.
	owners map[string]string
	mu     sync.RWMutex
}

// NewLoader creates a new curriculum loader and loads all documents.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &Loader{
		rootDir:  cfg.RootDir,
		override: strings.TrimSpace(cfg.AcademicYear),
		now:      cfg.Now,
		docs:     make(map[string]indexedDoc),
		outcomes: make(map[string][]LearningOutcome),
		owners:   make(map[string]string),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "documents", len(l.docs), "chapters", len(l.outcomes))
	return l, nil
}

// Chapters returns the chapters for subject, class and year in teaching
// order. Matching ignores case. An unknown combination yields no chapters.
func (l *Loader) Chapters(ctx context.Context, subject, class, academicYear string) ([]Chapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Chapter{}, l.docs[lookupKey(subject, class, academicYear)].chapters...), nil
}

// LearningOutcomes returns the outcomes of a chapter.
func (l *Loader) LearningOutcomes(ctx context.Context, chapterID string) ([]LearningOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]LearningOutcome{}, l.outcomes[chapterID]...), nil
}

// CurrentAcademicYear returns the configured year, or the one containing now.
func (l *Loader) CurrentAcademicYear(ctx context.Context) (string, error) {
	if l.override != "" {
		return l.override, nil
	}
	return AcademicYear(l.now()), nil
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadDocument(path)
		}
		return nil
	})
}

func (l *Loader) loadDocument(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	doc, err := ParseDocument(data)
	if err != nil {
		slog.Warn("skipping invalid curriculum document", "path", path, "error", err)
		return nil
	}

	key := lookupKey(doc.Subject, doc.Class, doc.AcademicYear)

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.docs[key]
	if ok && existing.status.rank() >= doc.Status.rank() {
		slog.Debug("curriculum document superseded", "path", path, "status", doc.Status, "kept", existing.status)
		return nil
	}

	// Chapter ids resolve outcomes on their own, so they must be unique
	// across documents.
	seen := make(map[string]bool, len(doc.Chapters))
	for _, dc := range doc.Chapters {
		if seen[dc.ID] {
			slog.Warn("skipping curriculum document with repeated chapter id", "path", path, "chapter_id", dc.ID)
			return nil
		}
		seen[dc.ID] = true
		if owner, taken := l.owners[dc.ID]; taken && owner != key {
			slog.Warn("skipping curriculum document with chapter id owned by another document",
				"path", path,
				"chapter_id", dc.ID,
				"owner", owner,
			)
			return nil
		}
	}

	if ok {
		for _, ch := range existing.chapters {
			delete(l.outcomes, ch.ID)
			delete(l.owners, ch.ID)
		}
	}

	entries := make([]DocumentChapter, len(doc.Chapters))
	copy(entries, doc.Chapters)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Order < entries[j].Order })

	chapters := make([]Chapter, 0, len(entries))
	for _, dc := range entries {
		chapters = append(chapters, Chapter{
			ID:                dc.ID,
			Name:              dc.Name,
			Code:              dc.Code,
			EstimatedDuration: dc.EstimatedDuration,
			DurationUnit:      dc.DurationUnit,
		})
		outcomes := make([]LearningOutcome, 0, len(dc.LearningOutcomes))
		for _, o := range dc.LearningOutcomes {
			outcomes = append(outcomes, LearningOutcome{
				ID:         o.ID,
				ChapterID:  dc.ID,
				Outcome:    o.Outcome,
				BloomLevel: o.BloomLevel,
			})
		}
		l.outcomes[dc.ID] = outcomes
		l.owners[dc.ID] = key
	}
	l.docs[key] = indexedDoc{status: doc.Status, chapters: chapters}

	return nil
}

func lookupKey(subject, class, academicYear string) string {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(subject)) + "|" +
		fold.String(strings.TrimSpace(class)) + "|" +
		strings.TrimSpace(academicYear)
}
