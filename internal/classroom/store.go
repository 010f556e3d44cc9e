package classroom

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
)

// Store persists classes and class membership. Classes are scoped to a
// school; a class of another school is reported as not found.
type Store interface {
	ListClasses(ctx context.Context, schoolID string) ([]Class, error)
	GetClass(ctx context.Context, schoolID, id string) (Class, error)
	CreateClass(ctx context.Context, c Class) (Class, error)
	UpdateClass(ctx context.Context, c Class) (Class, error)
	DeleteClass(ctx context.Context, schoolID, id string) error

	// ActiveStudents returns the non-deleted students assigned to a class.
	ActiveStudents(ctx context.Context, classID string) ([]Student, error)
	// UnassignedStudents returns the school's active students without a class.
	UnassignedStudents(ctx context.Context, schoolID string) ([]Student, error)
	// AssignStudents moves unassigned students of the school into a class and
	// returns how many moved.
	AssignStudents(ctx context.Context, schoolID, classID string, studentIDs []string) (int, error)
	UnassignStudent(ctx context.Context, schoolID, classID, studentID string) error

	SetStudentCount(ctx context.Context, classID string, n int) error
}

type studentRow struct {
	Student
	schoolID string
	deleted  bool
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu       sync.RWMutex
	classes  map[string]Class
	students map[string]studentRow
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory class store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		classes:  make(map[string]Class),
		students: make(map[string]studentRow),
		now:      time.Now,
	}
}

// AddStudent registers a student. Deleted students never count toward a
// roster.
func (s *MemoryStore) AddStudent(schoolID string, st Student, deleted bool) Student {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = s.now()
	}
	s.students[st.ID] = studentRow{Student: st, schoolID: schoolID, deleted: deleted}
	return st
}

func classNotFound(id string) error {
	return fmt.Errorf("class %s: %w", id, apperr.ErrNotFound)
}

func (s *MemoryStore) ListClasses(ctx context.Context, schoolID string) ([]Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Class{}
	for _, c := range s.classes {
		if c.SchoolID == schoolID {
			out = append(out, c)
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

func (s *MemoryStore) GetClass(ctx context.Context, schoolID, id string) (Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[id]
	if !ok || c.SchoolID != schoolID {
		return Class{}, classNotFound(id)
	}
	return c, nil
}

func (s *MemoryStore) CreateClass(ctx context.Context, c Class) (Class, error) {
	if c.SchoolID == "" {
		return Class{}, fmt.Errorf("school_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.classes[c.ID] = c
	return c, nil
}

func (s *MemoryStore) UpdateClass(ctx context.Context, c Class) (Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.classes[c.ID]
	if !ok || existing.SchoolID != c.SchoolID {
		return Class{}, classNotFound(c.ID)
	}
	c.CreatedAt = existing.CreatedAt
	c.CurrentStudents = existing.CurrentStudents
	c.UpdatedAt = s.now()
	s.classes[c.ID] = c
	return c, nil
}

func (s *MemoryStore) DeleteClass(ctx context.Context, schoolID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok || c.SchoolID != schoolID {
		return classNotFound(id)
	}
	delete(s.classes, id)
	for sid, row := range s.students {
		if row.ClassID == id {
			row.ClassID = ""
			s.students[sid] = row
		}
	}
	return nil
}

func (s *MemoryStore) ActiveStudents(ctx context.Context, classID string) ([]Student, error) {
	return s.matchStudents(func(row studentRow) bool { return row.ClassID == classID }), nil
}

func (s *MemoryStore) UnassignedStudents(ctx context.Context, schoolID string) ([]Student, error) {
	return s.matchStudents(func(row studentRow) bool { return row.schoolID == schoolID && row.ClassID == "" }), nil
}

func (s *MemoryStore) matchStudents(match func(studentRow) bool) []Student {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Student{}
	for _, row := range s.students {
		if !row.deleted && match(row) {
			out = append(out, row.Student)
		}
	}
	sortStudents(out)
	return out
}

func (s *MemoryStore) AssignStudents(ctx context.Context, schoolID, classID string, studentIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.classes[classID]; !ok || c.SchoolID != schoolID {
		return 0, classNotFound(classID)
	}
	moved := 0
	for _, id := range studentIDs {
		row, ok := s.students[id]
		if !ok || row.deleted || row.schoolID != schoolID || row.ClassID != "" {
			continue
		}
		row.ClassID = classID
		row.UpdatedAt = s.now()
		s.students[id] = row
		moved++
	}
	return moved, nil
}

func (s *MemoryStore) UnassignStudent(ctx context.Context, schoolID, classID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.students[studentID]
	if !ok || row.schoolID != schoolID || row.ClassID != classID {
		return fmt.Errorf("student %s in class %s: %w", studentID, classID, apperr.ErrNotFound)
	}
	row.ClassID = ""
	row.UpdatedAt = s.now()
	s.students[studentID] = row
	return nil
}

func (s *MemoryStore) SetStudentCount(ctx context.Context, classID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[classID]
	if !ok {
		return classNotFound(classID)
	}
	c.CurrentStudents = n
	s.classes[classID] = c
	return nil
}

// StoredCount returns the stored student counter of a class.
func (s *MemoryStore) StoredCount(classID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classes[classID].CurrentStudents
}

func sortStudents(students []Student) {
	sort.Slice(students, func(i, j int) bool {
		a, b := strings.ToLower(students[i].Name), strings.ToLower(students[j].Name)
		if a != b {
			return a < b
		}
		return students[i].ID < students[j].ID
	})
}
