package classroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
	"github.com/p-n-ai/pai-school/internal/platform/background"
	"github.com/p-n-ai/pai-school/internal/session"
)

const (
	recordStore        = "record store"
	defaultConcurrency = 8
)

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Store      Store
	Background background.Scheduler
	// Concurrency bounds the roster counts run in parallel by ListClasses.
	Concurrency int
}

// Service serves classes with a freshly counted roster.
type Service struct {
	store       Store
	bg          background.Scheduler
	concurrency int
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("classroom: store is required")
	}
	if cfg.Background == nil {
		cfg.Background = background.Inline{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Service{store: cfg.Store, bg: cfg.Background, concurrency: cfg.Concurrency}, nil
}

// GetClass returns a class with its active roster. The student count in the
// view is the roster length, whatever the stored counter says.
func (s *Service) GetClass(ctx context.Context, sess session.Context, id string) (View, error) {
	c, err := s.store.GetClass(ctx, sess.SchoolID, id)
	if err != nil {
		return View{}, storeErr("get class", err)
	}
	return s.reconcile(ctx, c)
}

// ListClasses returns every class of the school, newest first, each with a
// freshly counted roster.
func (s *Service) ListClasses(ctx context.Context, sess session.Context) ([]View, error) {
	classes, err := s.store.ListClasses(ctx, sess.SchoolID)
	if err != nil {
		return nil, storeErr("list classes", err)
	}

	views := make([]View, len(classes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range classes {
		g.Go(func() error {
			v, err := s.reconcile(gctx, c)
			if err != nil {
				return err
			}
			views[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// CreateClass adds a class with an empty roster.
func (s *Service) CreateClass(ctx context.Context, sess session.Context, in Input) (View, error) {
	if err := Validate(in); err != nil {
		return View{}, err
	}
	in = in.normalized()

	c, err := s.store.CreateClass(ctx, Class{
		SchoolID:     sess.SchoolID,
		Name:         in.Name,
		Grade:        in.Grade,
		Section:      in.Section,
		AcademicYear: in.AcademicYear,
		MaxStudents:  in.MaxStudents,
		Status:       StatusActive,
		Metadata:     Metadata{SkillAreas: in.SkillAreas},
	})
	if err != nil {
		return View{}, storeErr("create class", err)
	}
	slog.Info("class created", "class_id", c.ID, "school_id", sess.SchoolID)
	return NewView(c, nil), nil
}

// UpdateClass edits a class. Lowering the limit below the current roster is
// allowed; the view then reports the class as over capacity.
func (s *Service) UpdateClass(ctx context.Context, sess session.Context, id string, in Input) (View, error) {
	if err := Validate(in); err != nil {
		return View{}, err
	}
	in = in.normalized()

	c, err := s.store.GetClass(ctx, sess.SchoolID, id)
	if err != nil {
		return View{}, storeErr("get class", err)
	}
	c.Name = in.Name
	c.Grade = in.Grade
	c.Section = in.Section
	c.AcademicYear = in.AcademicYear
	c.MaxStudents = in.MaxStudents
	c.Metadata.SkillAreas = in.SkillAreas

	updated, err := s.store.UpdateClass(ctx, c)
	if err != nil {
		return View{}, storeErr("update class", err)
	}
	return s.reconcile(ctx, updated)
}

// DeleteClass removes a class. Its students become unassigned.
func (s *Service) DeleteClass(ctx context.Context, sess session.Context, id string) error {
	if err := s.store.DeleteClass(ctx, sess.SchoolID, id); err != nil {
		return storeErr("delete class", err)
	}
	slog.Info("class deleted", "class_id", id, "school_id", sess.SchoolID)
	return nil
}

// AvailableStudents lists the school's students without a class whose name
// or email contains search, ignoring case.
func (s *Service) AvailableStudents(ctx context.Context, sess session.Context, search string) ([]Student, error) {
	students, err := s.store.UnassignedStudents(ctx, sess.SchoolID)
	if err != nil {
		return nil, storeErr("list students", err)
	}
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return students, nil
	}
	out := []Student{}
	for _, st := range students {
		if strings.Contains(strings.ToLower(st.Name), q) || strings.Contains(strings.ToLower(st.Email), q) {
			out = append(out, st)
		}
	}
	return out, nil
}

// AssignStudents adds unassigned students to a class and returns the
// recounted view. Capacity is not enforced.
func (s *Service) AssignStudents(ctx context.Context, sess session.Context, classID string, studentIDs []string) (View, error) {
	if len(studentIDs) == 0 {
		return View{}, apperr.Invalid("student_ids", "Choose at least one student to add")
	}
	moved, err := s.store.AssignStudents(ctx, sess.SchoolID, classID, studentIDs)
	if err != nil {
		return View{}, storeErr("assign students", err)
	}
	slog.Info("students assigned", "class_id", classID, "requested", len(studentIDs), "moved", moved)
	return s.GetClass(ctx, sess, classID)
}

// RemoveStudent takes a student out of a class and returns the recounted
// view.
func (s *Service) RemoveStudent(ctx context.Context, sess session.Context, classID, studentID string) (View, error) {
	if err := s.store.UnassignStudent(ctx, sess.SchoolID, classID, studentID); err != nil {
		return View{}, storeErr("remove student", err)
	}
	return s.GetClass(ctx, sess, classID)
}

// reconcile recounts the roster of c. When the stored counter disagrees, a
// correction is scheduled and not awaited.
func (s *Service) reconcile(ctx context.Context, c Class) (View, error) {
	students, err := s.store.ActiveStudents(ctx, c.ID)
	if err != nil {
		return View{}, storeErr("list students", err)
	}

	if actual := len(students); actual != c.CurrentStudents {
		classID, stored := c.ID, c.CurrentStudents
		s.bg.Go(ctx, "correct student count", func(ctx context.Context) error {
			if err := s.store.SetStudentCount(ctx, classID, actual); err != nil {
				return err
			}
			slog.Info("student count corrected", "class_id", classID, "stored", stored, "actual", actual)
			return nil
		})
	}
	return NewView(c, students), nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return apperr.External(recordStore, op, err)
}
