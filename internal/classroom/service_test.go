package classroom_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/p-n-ai/pai-school/internal/classroom"
	"github.com/p-n-ai/pai-school/internal/platform/apperr"
	"github.com/p-n-ai/pai-school/internal/platform/background"
	"github.com/p-n-ai/pai-school/internal/session"
)

var admin = session.Context{SchoolID: "school-1", UserID: "admin-1", Role: session.RoleSchoolAdmin}

// deferredScheduler holds tasks until run is called.
type deferredScheduler struct {
	mu    sync.Mutex
	tasks []background.Task
	names []string
}

func (s *deferredScheduler) Go(ctx context.Context, name string, task background.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	s.names = append(s.names, name)
}

func (s *deferredScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *deferredScheduler) run(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, task := range tasks {
		if err := task(t.Context()); err != nil {
			t.Fatalf("task error = %v", err)
		}
	}
}

func seedClass(t *testing.T, store *classroom.MemoryStore, name string, max, stored, actual int) classroom.Class {
	t.Helper()
	c, err := store.CreateClass(t.Context(), classroom.Class{SchoolID: "school-1", Name: name, MaxStudents: max})
	if err != nil {
		t.Fatalf("CreateClass() error = %v", err)
	}
	for range actual {
		store.AddStudent("school-1", classroom.Student{Name: "Student", ClassID: c.ID}, false)
	}
	store.AddStudent("school-1", classroom.Student{Name: "Withdrawn", ClassID: c.ID}, true)
	store.SetStudentCount(t.Context(), c.ID, stored)
	return c
}

func newService(t *testing.T, store classroom.Store, bg background.Scheduler) *classroom.Service {
	t.Helper()
	svc, err := classroom.NewService(classroom.ServiceConfig{Store: store, Background: bg})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestService_GetClassShowsFreshCount(t *testing.T) {
	store := classroom.NewMemoryStore()
	bg := &deferredScheduler{}
	svc := newService(t, store, bg)
	c := seedClass(t, store, "7A", 30, 5, 7)

	v, err := svc.GetClass(t.Context(), admin, c.ID)
	if err != nil {
		t.Fatalf("GetClass() error = %v", err)
	}
	if v.CurrentStudents != 7 || len(v.Students) != 7 {
		t.Errorf("view count = %d (%d students), want 7", v.CurrentStudents, len(v.Students))
	}
	if bg.pending() != 1 || bg.names[0] != "correct student count" {
		t.Fatalf("scheduled = %v, want one correction", bg.names)
	}
	if got := store.StoredCount(c.ID); got != 5 {
		t.Errorf("stored count = %d before the correction ran, want 5", got)
	}

	bg.run(t)
	if got := store.StoredCount(c.ID); got != 7 {
		t.Errorf("stored count = %d after correction, want 7", got)
	}

	if _, err := svc.GetClass(t.Context(), admin, c.ID); err != nil {
		t.Fatalf("GetClass() error = %v", err)
	}
	if bg.pending() != 0 {
		t.Errorf("correction scheduled for an accurate counter")
	}
}

func TestService_OverCapacityIsAWarning(t *testing.T) {
	store := classroom.NewMemoryStore()
	svc := newService(t, store, background.Inline{})
	c := seedClass(t, store, "7A", 5, 7, 7)

	v, err := svc.GetClass(t.Context(), admin, c.ID)
	if err != nil {
		t.Fatalf("GetClass() error = %v", err)
	}
	if !v.OverCapacity || v.OverBy != 2 || v.Band != classroom.BandOver {
		t.Errorf("view = over %v by %d band %q", v.OverCapacity, v.OverBy, v.Band)
	}

	updated, err := svc.UpdateClass(t.Context(), admin, c.ID, classroom.Input{
		Name: "7A", Grade: "7", Section: "A", AcademicYear: "2025-2026", MaxStudents: 6,
		SkillAreas: []string{" STEM ", ""},
	})
	if err != nil {
		t.Fatalf("UpdateClass() on over-capacity class error = %v", err)
	}
	if updated.OverBy != 1 || updated.MaxStudents != 6 {
		t.Errorf("UpdateClass() = over_by %d max %d", updated.OverBy, updated.MaxStudents)
	}
	if len(updated.Metadata.SkillAreas) != 1 || updated.Metadata.SkillAreas[0] != "STEM" {
		t.Errorf("SkillAreas = %v", updated.Metadata.SkillAreas)
	}

	if _, err := svc.UpdateClass(t.Context(), admin, c.ID, classroom.Input{
		Name: "7A", Grade: "7", Section: "A", AcademicYear: "2025-2026", MaxStudents: 0,
	}); err == nil {
		t.Error("UpdateClass() with max 0 should fail")
	}
}

func TestService_ListClassesRecountsEach(t *testing.T) {
	store := classroom.NewMemoryStore()
	bg := &deferredScheduler{}
	svc := newService(t, store, bg)

	want := map[string]int{}
	for i, name := range []string{"7A", "7B", "7C", "8A", "8B", "8C", "9A", "9B", "9C", "10A"} {
		seedClass(t, store, name, 30, 0, i)
		want[name] = i
	}

	views, err := svc.ListClasses(t.Context(), admin)
	if err != nil {
		t.Fatalf("ListClasses() error = %v", err)
	}
	if len(views) != len(want) {
		t.Fatalf("ListClasses() = %d, want %d", len(views), len(want))
	}
	for _, v := range views {
		if v.CurrentStudents != want[v.Name] {
			t.Errorf("%s count = %d, want %d", v.Name, v.CurrentStudents, want[v.Name])
		}
	}
	// The class with no students already matches its stored counter.
	if bg.pending() != len(want)-1 {
		t.Errorf("corrections = %d, want %d", bg.pending(), len(want)-1)
	}
}

// failingRoster fails roster reads.
type failingRoster struct {
	*classroom.MemoryStore
}

func (failingRoster) ActiveStudents(context.Context, string) ([]classroom.Student, error) {
	return nil, errors.New("statement timeout")
}

func TestService_StoreFailureIsExternal(t *testing.T) {
	store := classroom.NewMemoryStore()
	seedClass(t, store, "7A", 30, 0, 1)
	svc := newService(t, failingRoster{store}, background.Inline{})

	_, err := svc.ListClasses(t.Context(), admin)
	if ee, ok := apperr.IsExternal(err); !ok || ee.Service != "record store" {
		t.Errorf("ListClasses() error = %v, want record store ExternalError", err)
	}
}

func TestService_NotFound(t *testing.T) {
	svc := newService(t, classroom.NewMemoryStore(), background.Inline{})
	if _, err := svc.GetClass(t.Context(), admin, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetClass() error = %v, want ErrNotFound", err)
	}
}

func TestService_CreateAssignRemove(t *testing.T) {
	store := classroom.NewMemoryStore()
	svc := newService(t, store, background.Inline{})
	ctx := t.Context()

	v, err := svc.CreateClass(ctx, admin, classroom.Input{
		Name: " 7A ", Grade: "7", Section: "A", AcademicYear: "2025-2026", MaxStudents: 1,
	})
	if err != nil {
		t.Fatalf("CreateClass() error = %v", err)
	}
	if v.Name != "7A" || v.CurrentStudents != 0 {
		t.Errorf("CreateClass() = %+v", v.Class)
	}

	a := store.AddStudent("school-1", classroom.Student{Name: "Aisha", Email: "aisha@school.test"}, false)
	b := store.AddStudent("school-1", classroom.Student{Name: "Ben", Email: "ben@school.test"}, false)

	found, err := svc.AvailableStudents(ctx, admin, "AISHA")
	if err != nil || len(found) != 1 || found[0].ID != a.ID {
		t.Errorf("AvailableStudents() = %+v, %v", found, err)
	}

	if _, err := svc.AssignStudents(ctx, admin, v.ID, nil); err == nil {
		t.Error("AssignStudents() with no students should fail")
	}
	v, err = svc.AssignStudents(ctx, admin, v.ID, []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("AssignStudents() error = %v", err)
	}
	if v.CurrentStudents != 2 || !v.OverCapacity {
		t.Errorf("after assign: count %d over %v", v.CurrentStudents, v.OverCapacity)
	}
	if got := store.StoredCount(v.ID); got != 2 {
		t.Errorf("stored count = %d, want 2", got)
	}

	v, err = svc.RemoveStudent(ctx, admin, v.ID, a.ID)
	if err != nil {
		t.Fatalf("RemoveStudent() error = %v", err)
	}
	if v.CurrentStudents != 1 || v.Band != classroom.BandFull {
		t.Errorf("after remove: count %d band %q", v.CurrentStudents, v.Band)
	}

	if err := svc.DeleteClass(ctx, admin, v.ID); err != nil {
		t.Fatalf("DeleteClass() error = %v", err)
	}
	if left, _ := svc.AvailableStudents(ctx, admin, ""); len(left) != 2 {
		t.Errorf("AvailableStudents() after delete = %d, want 2", len(left))
	}
}
