package curriculum

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
	"github.com/p-n-ai/pai-school/internal/platform/cache"
)

const serviceName = "curriculum provider"

// JSONCache is the subset of the cache client used here.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// CachedProvider fronts a Provider with a JSON cache. Cache failures fall
// through to the inner provider; inner failures surface as external errors.
type CachedProvider struct {
	inner Provider
	cache JSONCache
	ttl   time.Duration
}

// NewCachedProvider wraps inner. A nil cache disables caching.
func NewCachedProvider(inner Provider, c JSONCache, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedProvider{inner: inner, cache: c, ttl: ttl}
}

func (p *CachedProvider) Chapters(ctx context.Context, subject, class, academicYear string) ([]Chapter, error) {
	key := "curriculum:chapters:" + strings.ReplaceAll(lookupKey(subject, class, academicYear), "|", ":")

	var chapters []Chapter
	if p.get(ctx, key, &chapters) {
		return chapters, nil
	}

	chapters, err := p.inner.Chapters(ctx, subject, class, academicYear)
	if err != nil {
		return nil, apperr.External(serviceName, "get chapters", err)
	}
	p.set(ctx, key, chapters)
	return chapters, nil
}

func (p *CachedProvider) LearningOutcomes(ctx context.Context, chapterID string) ([]LearningOutcome, error) {
	key := "curriculum:outcomes:" + chapterID

	var outcomes []LearningOutcome
	if p.get(ctx, key, &outcomes) {
		return outcomes, nil
	}

	outcomes, err := p.inner.LearningOutcomes(ctx, chapterID)
	if err != nil {
		return nil, apperr.External(serviceName, "get learning outcomes", err)
	}
	p.set(ctx, key, outcomes)
	return outcomes, nil
}

func (p *CachedProvider) CurrentAcademicYear(ctx context.Context) (string, error) {
	year, err := p.inner.CurrentAcademicYear(ctx)
	if err != nil {
		return "", apperr.External(serviceName, "get academic year", err)
	}
	return year, nil
}

func (p *CachedProvider) get(ctx context.Context, key string, dst any) bool {
	if p.cache == nil {
		return false
	}
	err := p.cache.GetJSON(ctx, key, dst)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("curriculum cache read failed", "key", key, "error", err)
	}
	return false
}

func (p *CachedProvider) set(ctx context.Context, key string, v any) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetJSON(ctx, key, v, p.ttl); err != nil {
		slog.Warn("curriculum cache write failed", "key", key, "error", err)
	}
}
