package lessonplan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
	"github.com/p-n-ai/pai-school/internal/platform/cache"
	"github.com/p-n-ai/pai-school/internal/session"
)

// DraftSession is a draft owned by one user between requests.
type DraftSession struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"schoolId"`
	OwnerID   string    `json:"ownerId"`
	Draft     Draft     `json:"draft"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sessions keeps drafts between requests. A draft is visible only to the
// user who opened it; anyone else gets ErrNotFound.
type Sessions interface {
	Open(ctx context.Context, owner session.Context, d Draft) (DraftSession, error)
	Get(ctx context.Context, owner session.Context, id string) (DraftSession, error)
	Save(ctx context.Context, owner session.Context, ds DraftSession) (DraftSession, error)
	Close(ctx context.Context, owner session.Context, id string) error
}

func owns(owner session.Context, ds DraftSession) bool {
	return ds.OwnerID == owner.UserID && ds.SchoolID == owner.SchoolID
}

func draftNotFound(id string) error {
	return fmt.Errorf("draft %s: %w", id, apperr.ErrNotFound)
}

// MemorySessions keeps drafts in memory with a sliding TTL.
type MemorySessions struct {
	mu     sync.Mutex
	drafts map[string]DraftSession
	ttl    time.Duration
	now    func() time.Time
}

// NewMemorySessions creates an in-memory session store.
func NewMemorySessions(ttl time.Duration) *MemorySessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemorySessions{drafts: make(map[string]DraftSession), ttl: ttl, now: time.Now}
}

func (s *MemorySessions) Open(ctx context.Context, owner session.Context, d Draft) (DraftSession, error) {
	ds := DraftSession{
		ID:        uuid.NewString(),
		SchoolID:  owner.SchoolID,
		OwnerID:   owner.UserID,
		Draft:     d,
		UpdatedAt: s.now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.drafts[ds.ID] = ds
	return ds, nil
}

func (s *MemorySessions) Get(ctx context.Context, owner session.Context, id string) (DraftSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	ds, ok := s.drafts[id]
	if !ok || !owns(owner, ds) {
		return DraftSession{}, draftNotFound(id)
	}
	return ds, nil
}

func (s *MemorySessions) Save(ctx context.Context, owner session.Context, ds DraftSession) (DraftSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.drafts[ds.ID]
	if !ok || !owns(owner, existing) {
		return DraftSession{}, draftNotFound(ds.ID)
	}
	ds.SchoolID, ds.OwnerID = existing.SchoolID, existing.OwnerID
	ds.UpdatedAt = s.now()
	s.drafts[ds.ID] = ds
	return ds, nil
}

func (s *MemorySessions) Close(ctx context.Context, owner session.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.drafts[id]
	if !ok || !owns(owner, ds) {
		return draftNotFound(id)
	}
	delete(s.drafts, id)
	return nil
}

// sweep drops expired drafts. Callers hold s.mu.
func (s *MemorySessions) sweep() {
	cutoff := s.now().Add(-s.ttl)
	for id, ds := range s.drafts {
		if ds.UpdatedAt.Before(cutoff) {
			delete(s.drafts, id)
		}
	}
}

// DraftCache is the subset of the cache client RedisSessions needs.
type DraftCache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisSessions keeps drafts in Redis as JSON. Every save refreshes the TTL.
type RedisSessions struct {
	cache DraftCache
	ttl   time.Duration
}

// NewRedisSessions creates a Redis-backed session store.
func NewRedisSessions(c DraftCache, ttl time.Duration) *RedisSessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessions{cache: c, ttl: ttl}
}

func draftKey(id string) string { return "lessonplan:draft:" + id }

func (s *RedisSessions) Open(ctx context.Context, owner session.Context, d Draft) (DraftSession, error) {
	ds := DraftSession{
		ID:        uuid.NewString(),
		SchoolID:  owner.SchoolID,
		OwnerID:   owner.UserID,
		Draft:     d,
		UpdatedAt: time.Now(),
	}
	if err := s.cache.SetJSON(ctx, draftKey(ds.ID), ds, s.ttl); err != nil {
		return DraftSession{}, apperr.External("draft store", "open", err)
	}
	return ds, nil
}

func (s *RedisSessions) Get(ctx context.Context, owner session.Context, id string) (DraftSession, error) {
	var ds DraftSession
	if err := s.cache.GetJSON(ctx, draftKey(id), &ds); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return DraftSession{}, draftNotFound(id)
		}
		return DraftSession{}, apperr.External("draft store", "get", err)
	}
	if !owns(owner, ds) {
		return DraftSession{}, draftNotFound(id)
	}
	return ds, nil
}

func (s *RedisSessions) Save(ctx context.Context, owner session.Context, ds DraftSession) (DraftSession, error) {
	existing, err := s.Get(ctx, owner, ds.ID)
	if err != nil {
		return DraftSession{}, err
	}
	ds.SchoolID, ds.OwnerID = existing.SchoolID, existing.OwnerID
	ds.UpdatedAt = time.Now()
	if err := s.cache.SetJSON(ctx, draftKey(ds.ID), ds, s.ttl); err != nil {
		return DraftSession{}, apperr.External("draft store", "save", err)
	}
	return ds, nil
}

func (s *RedisSessions) Close(ctx context.Context, owner session.Context, id string) error {
	if _, err := s.Get(ctx, owner, id); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, draftKey(id)); err != nil {
		return apperr.External("draft store", "close", err)
	}
	return nil
}
