package lessonplan

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
)

// Store persists lesson plan records. Records are scoped to a school; a
// record of another school is reported as not found.
type Store interface {
	Create(ctx context.Context, r Record) (Record, error)
	Update(ctx context.Context, r Record) (Record, error)
	Get(ctx context.Context, schoolID, id string) (Record, error)
	List(ctx context.Context, f Filter) ([]Record, error)
	Delete(ctx context.Context, schoolID, id string) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	records map[string]Record
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory lesson plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, r Record) (Record, error) {
	if r.SchoolID == "" {
		return Record{}, fmt.Errorf("school_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := s.records[r.ID]; exists {
		return Record{}, fmt.Errorf("lesson plan %s already exists", r.ID)
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	s.records[r.ID] = r
	return r, nil
}

func (s *MemoryStore) Update(ctx context.Context, r Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[r.ID]
	if !ok || existing.SchoolID != r.SchoolID {
		return Record{}, fmt.Errorf("lesson plan %s: %w", r.ID, apperr.ErrNotFound)
	}
	r.CreatedAt = existing.CreatedAt
	r.CreatedBy = existing.CreatedBy
	r.UpdatedAt = s.now()
	s.records[r.ID] = r
	return r, nil
}

func (s *MemoryStore) Get(ctx context.Context, schoolID, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok || r.SchoolID != schoolID {
		return Record{}, fmt.Errorf("lesson plan %s: %w", id, apperr.ErrNotFound)
	}
	return r, nil
}

// List returns matching records, newest first.
func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Record{}
	for _, r := range s.records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, schoolID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.SchoolID != schoolID {
		return fmt.Errorf("lesson plan %s: %w", id, apperr.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}
