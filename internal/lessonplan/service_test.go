package lessonplan_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-school/internal/curriculum"
	"github.com/p-n-ai/pai-school/internal/lessonplan"
	"github.com/p-n-ai/pai-school/internal/platform/apperr"
	"github.com/p-n-ai/pai-school/internal/platform/background"
	"github.com/p-n-ai/pai-school/internal/session"
	"github.com/p-n-ai/pai-school/internal/storage"
)

// flakyStore fails writes while err is set.
type flakyStore struct {
	*lessonplan.MemoryStore
	err error
}

func (s *flakyStore) Create(ctx context.Context, r lessonplan.Record) (lessonplan.Record, error) {
	if s.err != nil {
		return lessonplan.Record{}, s.err
	}
	return s.MemoryStore.Create(ctx, r)
}

func (s *flakyStore) Update(ctx context.Context, r lessonplan.Record) (lessonplan.Record, error) {
	if s.err != nil {
		return lessonplan.Record{}, s.err
	}
	return s.MemoryStore.Update(ctx, r)
}

type fixture struct {
	svc        *lessonplan.Service
	store      *flakyStore
	files      *storage.MemoryService
	events     *lessonplan.MemoryEventLogger
	curriculum *curriculum.StaticProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      &flakyStore{MemoryStore: lessonplan.NewMemoryStore()},
		files:      storage.NewMemoryService(),
		events:     lessonplan.NewMemoryEventLogger(),
		curriculum: testCurriculum(),
	}
	svc, err := lessonplan.NewService(lessonplan.ServiceConfig{
		Store:      f.store,
		Sessions:   lessonplan.NewMemorySessions(0),
		Curriculum: f.curriculum,
		Files:      f.files,
		Background: background.Inline{},
		Events:     f.events,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	f.svc = svc
	return f
}

func ptr(s string) *string { return &s }

func pdf(name string) storage.File {
	body := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n" + name)
	return storage.File{Name: name, Size: int64(len(body)), Body: bytes.NewReader(body)}
}

// completeDraft fills every required field of an open draft.
func (f *fixture) completeDraft(t *testing.T, sess session.Context, id string) lessonplan.DraftSession {
	t.Helper()
	ds, err := f.svc.Compose(t.Context(), sess, id, func(c *lessonplan.Composer) error {
		c.Apply(lessonplan.Patch{
			Title:               ptr("Plant cells"),
			Subject:             ptr("Science"),
			Class:               ptr("Grade 7"),
			Date:                ptr("2025-09-15"),
			LearningObjectives:  ptr("Label a plant cell"),
			TeachingMethodology: ptr("Microscope lab"),
			RequiredMaterials:   ptr("Microscopes"),
		})
		if err := c.SelectChapter(t.Context(), "sci7-ch1"); err != nil {
			return err
		}
		if err := c.SetOutcomes(t.Context(), []string{"sci7-lo1"}); err != nil {
			return err
		}
		_, err := c.Evaluation().Add("Lab worksheet", 100)
		return err
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	return ds
}

func TestService_NewDraftUsesCurrentYear(t *testing.T) {
	f := newFixture(t)

	ds, err := f.svc.NewDraft(t.Context(), teacher)
	if err != nil {
		t.Fatalf("NewDraft() error = %v", err)
	}
	if ds.Draft.AcademicYear != "2025-2026" {
		t.Errorf("AcademicYear = %q, want 2025-2026", ds.Draft.AcademicYear)
	}

	f.curriculum.Err = errors.New("provider down")
	ds, err = f.svc.NewDraft(t.Context(), teacher)
	if err != nil {
		t.Fatalf("NewDraft() with failing provider error = %v", err)
	}
	if ds.Draft.AcademicYear != "" {
		t.Errorf("AcademicYear = %q, want blank", ds.Draft.AcademicYear)
	}
}

func TestService_SubmitCreatesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ds, _ := f.svc.NewDraft(ctx, teacher)
	f.completeDraft(t, teacher, ds.ID)

	rec, err := f.svc.Submit(ctx, teacher, ds.ID, lessonplan.StatusDraft)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if rec.ID == "" || rec.Status != lessonplan.StatusDraft || rec.SchoolID != "school-1" || rec.CreatedBy != "teacher-1" {
		t.Errorf("Submit() = %+v", rec)
	}
	if rec.ChapterName == nil || *rec.ChapterName != "Cells and Organisms" {
		t.Errorf("ChapterName = %v", rec.ChapterName)
	}

	if _, err := f.svc.Draft(ctx, teacher, ds.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("draft still open after submit: %v", err)
	}
	events := f.events.Events()
	if len(events) != 1 || events[0].EventType != lessonplan.EventSubmitted || events[0].EntityID != rec.ID {
		t.Errorf("events = %+v", events)
	}
}

func TestService_SubmitValidationKeepsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ds, _ := f.svc.NewDraft(ctx, teacher)
	f.svc.Compose(ctx, teacher, ds.ID, func(c *lessonplan.Composer) error {
		c.Apply(lessonplan.Patch{Title: ptr("Half done")})
		return nil
	})

	_, err := f.svc.Submit(ctx, teacher, ds.ID, lessonplan.StatusDraft)
	ve, ok := apperr.IsValidation(err)
	if !ok {
		t.Fatalf("Submit() error = %v, want ValidationError", err)
	}
	if len(ve.Fields) != 9 {
		t.Errorf("fields = %v, want every violated rule", ve.Fields)
	}
	if _, has := ve.Fields["title"]; has {
		t.Error("title reported although set")
	}

	got, err := f.svc.Draft(ctx, teacher, ds.ID)
	if err != nil || got.Draft.Title != "Half done" {
		t.Errorf("draft lost: %+v, %v", got, err)
	}
	if list, _ := f.svc.List(ctx, teacher, lessonplan.Filter{}); len(list) != 0 {
		t.Errorf("records stored = %d, want 0", len(list))
	}
}

func TestService_SubmitStatusRules(t *testing.T) {
	tests := []struct {
		name   string
		sess   session.Context
		status lessonplan.Status
		ok     bool
	}{
		{"teacher saves draft", teacher, lessonplan.StatusDraft, true},
		{"teacher cannot approve", teacher, lessonplan.StatusApproved, false},
		{"admin approves", admin, lessonplan.StatusApproved, true},
		{"unknown status", admin, lessonplan.Status("published"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ds, _ := f.svc.NewDraft(t.Context(), tt.sess)
			f.completeDraft(t, tt.sess, ds.ID)

			rec, err := f.svc.Submit(t.Context(), tt.sess, ds.ID, tt.status)
			if tt.ok {
				if err != nil {
					t.Fatalf("Submit() error = %v", err)
				}
				if rec.Status != tt.status {
					t.Errorf("Status = %q, want %q", rec.Status, tt.status)
				}
				return
			}
			ve, ok := apperr.IsValidation(err)
			if !ok {
				t.Fatalf("Submit() error = %v, want ValidationError", err)
			}
			if _, has := ve.Fields["status"]; !has {
				t.Errorf("fields = %v, want status", ve.Fields)
			}
		})
	}
}

func TestService_SubmitStoreFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ds, _ := f.svc.NewDraft(ctx, teacher)
	f.completeDraft(t, teacher, ds.ID)

	f.store.err = errors.New("connection reset by peer")
	_, err := f.svc.Submit(ctx, teacher, ds.ID, lessonplan.StatusDraft)
	ee, ok := apperr.IsExternal(err)
	if !ok {
		t.Fatalf("Submit() error = %v, want ExternalError", err)
	}
	if ee.Service != "record store" || !ee.Retryable() {
		t.Errorf("ExternalError = %+v", ee)
	}

	if _, err := f.svc.Draft(ctx, teacher, ds.ID); err != nil {
		t.Fatalf("draft lost after store failure: %v", err)
	}

	f.store.err = nil
	if _, err := f.svc.Submit(ctx, teacher, ds.ID, lessonplan.StatusDraft); err != nil {
		t.Errorf("retry Submit() error = %v", err)
	}
}

func TestService_ComposeFailureLeavesDraft(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ds, _ := f.svc.NewDraft(ctx, teacher)
	_, err := f.svc.Compose(ctx, teacher, ds.ID, func(c *lessonplan.Composer) error {
		c.Apply(lessonplan.Patch{Title: ptr("Changed")})
		_, err := c.Evaluation().Add("Quiz", 150)
		return err
	})
	if _, ok := apperr.IsValidation(err); !ok {
		t.Fatalf("Compose() error = %v, want ValidationError", err)
	}

	got, _ := f.svc.Draft(ctx, teacher, ds.ID)
	if got.Draft.Title != "" {
		t.Errorf("Title = %q, want unchanged", got.Draft.Title)
	}
}

func TestService_DraftsArePrivate(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ds, _ := f.svc.NewDraft(ctx, teacher)
	f.completeDraft(t, teacher, ds.ID)

	if _, err := f.svc.Submit(ctx, admin, ds.ID, lessonplan.StatusApproved); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Submit() by another user error = %v, want ErrNotFound", err)
	}
}

func TestService_UploadFilesPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ds, _ := f.svc.NewDraft(ctx, teacher)
	exe := storage.File{Name: "setup.exe", Size: 4, Body: bytes.NewReader([]byte("MZ\x90\x00"))}
	var progressed []string

	got, err := f.svc.UploadFiles(ctx, teacher, ds.ID,
		[]storage.File{pdf("worksheet.pdf"), exe},
		func(name string, sent, total int64) { progressed = append(progressed, name) },
	)
	be, ok := apperr.IsBatch(err)
	if !ok {
		t.Fatalf("UploadFiles() error = %v, want BatchError", err)
	}
	if len(be.Failed) != 1 || be.Failed[0].Name != "setup.exe" {
		t.Errorf("failed = %+v", be.Failed)
	}
	if len(got.Draft.ResourceFiles) != 1 {
		t.Fatalf("ResourceFiles = %+v", got.Draft.ResourceFiles)
	}
	file := got.Draft.ResourceFiles[0]
	if file.MimeType != "application/pdf" || !f.files.Has(file.URL) {
		t.Errorf("file = %+v", file)
	}
	if len(progressed) == 0 || progressed[0] != "worksheet.pdf" {
		t.Errorf("progress = %v", progressed)
	}
}

func TestService_UploadFilesAllRejected(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ds, _ := f.svc.NewDraft(ctx, teacher)
	exe := storage.File{Name: "setup.exe", Size: 4, Body: bytes.NewReader([]byte("MZ\x90\x00"))}

	got, err := f.svc.UploadFiles(ctx, teacher, ds.ID, []storage.File{exe}, nil)
	be, ok := apperr.IsBatch(err)
	if !ok || len(be.Failed) != 1 {
		t.Fatalf("UploadFiles() error = %v, want BatchError with one file", err)
	}
	if got.ID != ds.ID || len(got.Draft.ResourceFiles) != 0 {
		t.Errorf("draft = %+v", got)
	}
}

func TestService_UploadFilesNoFailures(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ds, _ := f.svc.NewDraft(ctx, teacher)
	got, err := f.svc.UploadFiles(ctx, teacher, ds.ID, []storage.File{pdf("a.pdf"), pdf("b.pdf")}, nil)
	if err != nil {
		t.Fatalf("UploadFiles() error = %v", err)
	}
	if len(got.Draft.ResourceFiles) != 2 {
		t.Errorf("ResourceFiles = %+v", got.Draft.ResourceFiles)
	}
}

func TestService_DiscardDraftDeletesNewUploads(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ds, _ := f.svc.NewDraft(ctx, teacher)
	got, _ := f.svc.UploadFiles(ctx, teacher, ds.ID, []storage.File{pdf("a.pdf")}, nil)
	url := got.Draft.ResourceFiles[0].URL

	if err := f.svc.DiscardDraft(ctx, teacher, ds.ID); err != nil {
		t.Fatalf("DiscardDraft() error = %v", err)
	}
	if f.files.Has(url) {
		t.Error("uploaded file kept after discard")
	}
	if _, err := f.svc.Draft(ctx, teacher, ds.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Draft() after discard error = %v", err)
	}
}

// submitWithFile stores a complete plan with one uploaded file.
func (f *fixture) submitWithFile(t *testing.T) (lessonplan.Record, string) {
	t.Helper()
	ctx := t.Context()
	ds, _ := f.svc.NewDraft(ctx, admin)
	f.completeDraft(t, admin, ds.ID)
	got, err := f.svc.UploadFiles(ctx, admin, ds.ID, []storage.File{pdf("cells.pdf")}, nil)
	if err != nil {
		t.Fatalf("UploadFiles() error = %v", err)
	}
	rec, err := f.svc.Submit(ctx, admin, ds.ID, lessonplan.StatusApproved)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return rec, got.Draft.ResourceFiles[0].URL
}

func TestService_EditRemovesFileOnlyAfterSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	rec, url := f.submitWithFile(t)

	ds, err := f.svc.Edit(ctx, admin, rec.ID)
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if ds.Draft.ID != rec.ID || ds.Draft.Status != lessonplan.StatusApproved {
		t.Fatalf("Edit() draft = %+v", ds.Draft)
	}

	fileID := ds.Draft.ResourceFiles[0].ID
	if _, err := f.svc.Compose(ctx, admin, ds.ID, func(c *lessonplan.Composer) error {
		c.Resources().RemoveFile(ctx, fileID)
		return nil
	}); err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !f.files.Has(url) {
		t.Fatal("file deleted while the stored plan still uses it")
	}

	updated, err := f.svc.Submit(ctx, admin, ds.ID, lessonplan.StatusApproved)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if updated.ID != rec.ID || len(updated.ResourceFiles) != 0 {
		t.Errorf("Submit() = %+v", updated)
	}
	if f.files.Has(url) {
		t.Error("removed file kept after submit")
	}
}

func TestService_DuplicateSharesFiles(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	rec, url := f.submitWithFile(t)

	ds, err := f.svc.Duplicate(ctx, admin, rec.ID)
	if err != nil {
		t.Fatalf("Duplicate() error = %v", err)
	}
	if ds.Draft.ID != "" || ds.Draft.Date != "" || ds.Draft.Title != "Plant cells (Copy)" {
		t.Fatalf("Duplicate() draft = %+v", ds.Draft)
	}

	if _, err := f.svc.Submit(ctx, admin, ds.ID, lessonplan.StatusDraft); err == nil {
		t.Fatal("Submit() without a date should fail")
	}
	f.svc.Compose(ctx, admin, ds.ID, func(c *lessonplan.Composer) error {
		c.Apply(lessonplan.Patch{Date: ptr("2025-10-01")})
		return nil
	})
	dup, err := f.svc.Submit(ctx, admin, ds.ID, lessonplan.StatusDraft)
	if err != nil {
		t.Fatalf("Submit() copy error = %v", err)
	}

	if err := f.svc.Delete(ctx, admin, rec.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !f.files.Has(url) {
		t.Fatal("shared file deleted while the copy still uses it")
	}

	if err := f.svc.Delete(ctx, admin, dup.ID); err != nil {
		t.Fatalf("Delete(copy) error = %v", err)
	}
	if f.files.Has(url) {
		t.Error("file kept after its last plan was deleted")
	}
	if _, err := f.svc.Get(ctx, admin, dup.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
}

func TestService_ListAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	for _, status := range []lessonplan.Status{lessonplan.StatusDraft, lessonplan.StatusDraft, lessonplan.StatusApproved} {
		ds, _ := f.svc.NewDraft(ctx, admin)
		f.completeDraft(t, admin, ds.ID)
		if _, err := f.svc.Submit(ctx, admin, ds.ID, status); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	st, err := f.svc.Stats(ctx, admin)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st != (lessonplan.Stats{Total: 3, Draft: 2, Approved: 1}) {
		t.Errorf("Stats() = %+v", st)
	}

	if other, _ := f.svc.Stats(ctx, outside); other.Total != 0 {
		t.Errorf("other school Stats() = %+v", other)
	}

	approved, err := f.svc.List(ctx, admin, lessonplan.Filter{Status: lessonplan.StatusApproved, SchoolID: "school-2"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(approved) != 1 {
		t.Errorf("List(approved) = %d, want 1 (school taken from the session)", len(approved))
	}
}

func TestService_DeleteLogsEvent(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.submitWithFile(t)

	if err := f.svc.Delete(t.Context(), admin, rec.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	events := f.events.Events()
	last := events[len(events)-1]
	if last.EventType != lessonplan.EventDeleted || last.EntityID != rec.ID || last.UserID != "admin-1" {
		t.Errorf("last event = %+v", last)
	}

	if err := f.svc.Delete(t.Context(), admin, rec.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	if _, err := lessonplan.NewService(lessonplan.ServiceConfig{}); err == nil {
		t.Error("NewService() with no collaborators should fail")
	}
}
