package lessonplan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/pai-school/internal/curriculum"
	"github.com/p-n-ai/pai-school/internal/platform/apperr"
	"github.com/p-n-ai/pai-school/internal/platform/background"
	"github.com/p-n-ai/pai-school/internal/session"
	"github.com/p-n-ai/pai-school/internal/storage"
)

const recordStore = "record store"

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Store      Store
	Sessions   Sessions
	Curriculum curriculum.Provider
	Files      storage.Service
	Background background.Scheduler
	Events     EventLogger
	Rules      storage.Rules
	// Folder is the storage prefix for uploads; the school id is appended.
	Folder string
}

// Service runs the lesson plan workflow: open a draft, compose it over
// several requests, then submit it as a stored record.
type Service struct {
	store      Store
	sessions   Sessions
	curriculum curriculum.Provider
	files      storage.Service
	bg         background.Scheduler
	events     EventLogger
	rules      storage.Rules
	folder     string
}

// NewService creates a Service. Store, Sessions, Curriculum and Files are
// required.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil || cfg.Sessions == nil || cfg.Curriculum == nil || cfg.Files == nil {
		return nil, fmt.Errorf("lessonplan: store, sessions, curriculum and files are required")
	}
	if cfg.Background == nil {
		cfg.Background = background.Inline{}
	}
	if cfg.Events == nil {
		cfg.Events = NopEventLogger{}
	}
	if cfg.Rules.MaxSizeMB == 0 && len(cfg.Rules.AllowedExtensions) == 0 {
		cfg.Rules = storage.DefaultRules()
	}
	if cfg.Folder == "" {
		cfg.Folder = "lesson-plans"
	}
	return &Service{
		store:      cfg.Store,
		sessions:   cfg.Sessions,
		curriculum: cfg.Curriculum,
		files:      cfg.Files,
		bg:         cfg.Background,
		events:     cfg.Events,
		rules:      cfg.Rules,
		folder:     strings.Trim(cfg.Folder, "/"),
	}, nil
}

// NewDraft opens an empty draft for the current academic year. If the year
// cannot be resolved the field is left blank for the user to pick.
func (s *Service) NewDraft(ctx context.Context, sess session.Context) (DraftSession, error) {
	d := NewDraft()
	year, err := s.curriculum.CurrentAcademicYear(ctx)
	if err != nil {
		slog.Warn("academic year lookup failed", "school_id", sess.SchoolID, "error", err)
	} else {
		d.AcademicYear = year
	}
	return s.sessions.Open(ctx, sess, d)
}

// Draft returns an open draft.
func (s *Service) Draft(ctx context.Context, sess session.Context, id string) (DraftSession, error) {
	return s.sessions.Get(ctx, sess, id)
}

// Compose runs fn against a draft and saves the result. If fn fails the
// stored draft is left as it was.
func (s *Service) Compose(ctx context.Context, sess session.Context, id string, fn func(*Composer) error) (DraftSession, error) {
	ds, err := s.sessions.Get(ctx, sess, id)
	if err != nil {
		return DraftSession{}, err
	}
	edited := ds
	if err := fn(s.composer(sess, &edited.Draft)); err != nil {
		return ds, err
	}
	return s.sessions.Save(ctx, sess, edited)
}

// UploadFiles stores each file and attaches the successful ones to the
// draft. Rejected or failed files never stop the rest of the batch; they are
// reported as an *apperr.BatchError returned with the updated draft.
func (s *Service) UploadFiles(ctx context.Context, sess session.Context, id string, files []storage.File, onProgress storage.BatchProgress) (DraftSession, error) {
	ds, err := s.sessions.Get(ctx, sess, id)
	if err != nil {
		return DraftSession{}, err
	}

	uploaded, failed := storage.UploadBatch(ctx, s.files, files, s.folder+"/"+sess.SchoolID, s.rules, onProgress)
	var batchErr error
	if len(failed) > 0 {
		batchErr = &apperr.BatchError{Failed: failed}
	}
	if len(uploaded) == 0 {
		return ds, batchErr
	}

	edited := ds
	c := s.composer(sess, &edited.Draft)
	for _, up := range uploaded {
		c.Resources().AddFile(up)
	}
	saved, err := s.sessions.Save(ctx, sess, edited)
	if err != nil {
		urls := make([]string, 0, len(uploaded))
		for _, up := range uploaded {
			urls = append(urls, up.URL)
		}
		s.release(ctx, sess.SchoolID, urls)
		return ds, err
	}

	slog.Info("resource files uploaded",
		"draft_id", id,
		"school_id", sess.SchoolID,
		"uploaded", len(uploaded),
		"failed", len(failed),
	)
	return saved, batchErr
}

// DiscardDraft closes a draft without saving it. Files uploaded into the
// draft that no stored plan references are deleted in the background.
func (s *Service) DiscardDraft(ctx context.Context, sess session.Context, id string) error {
	ds, err := s.sessions.Get(ctx, sess, id)
	if err != nil {
		return err
	}
	if err := s.sessions.Close(ctx, sess, id); err != nil {
		return err
	}
	s.release(ctx, sess.SchoolID, fileURLs(ds.Draft.ResourceFiles))
	return nil
}

// Submit validates the draft and stores it with the given status. Every
// validation message is returned together and nothing is stored. The draft
// stays open until the store accepts the record, so a failed submit can be
// retried without re-entering data.
func (s *Service) Submit(ctx context.Context, sess session.Context, id string, status Status) (Record, error) {
	if !status.Valid() {
		return Record{}, apperr.Invalid("status", "Status must be draft or approved")
	}
	if status == StatusApproved && !sess.CanApprove() {
		return Record{}, apperr.Invalid("status", "Only school administrators can approve lesson plans")
	}

	ds, err := s.sessions.Get(ctx, sess, id)
	if err != nil {
		return Record{}, err
	}
	if err := apperr.NewValidation(Validate(ds.Draft)); err != nil {
		return Record{}, err
	}

	rec := ToRecord(ds.Draft, status)
	rec.SchoolID = sess.SchoolID
	rec.CreatedBy = sess.UserID

	var previous []ResourceFile
	var saved Record
	if rec.ID == "" {
		saved, err = s.store.Create(ctx, rec)
		if err != nil {
			return Record{}, storeErr("create", err)
		}
	} else {
		old, err := s.store.Get(ctx, sess.SchoolID, rec.ID)
		if err != nil {
			return Record{}, storeErr("get", err)
		}
		previous = old.ResourceFiles
		saved, err = s.store.Update(ctx, rec)
		if err != nil {
			return Record{}, storeErr("update", err)
		}
	}

	if err := s.sessions.Close(ctx, sess, id); err != nil {
		slog.Warn("closing submitted draft failed", "draft_id", id, "error", err)
	}
	s.logEvent(ctx, sess, EventSubmitted, saved.ID, map[string]any{
		"status": string(saved.Status),
		"title":  saved.Title,
	})
	s.release(ctx, sess.SchoolID, removedURLs(previous, saved.ResourceFiles))

	slog.Info("lesson plan submitted",
		"lesson_plan_id", saved.ID,
		"school_id", sess.SchoolID,
		"status", saved.Status,
	)
	return saved, nil
}

// Edit opens a draft from a stored plan.
func (s *Service) Edit(ctx context.Context, sess session.Context, planID string) (DraftSession, error) {
	rec, err := s.store.Get(ctx, sess.SchoolID, planID)
	if err != nil {
		return DraftSession{}, storeErr("get", err)
	}
	return s.sessions.Open(ctx, sess, FromRecord(rec))
}

// Duplicate opens an unsaved copy of a stored plan.
func (s *Service) Duplicate(ctx context.Context, sess session.Context, planID string) (DraftSession, error) {
	rec, err := s.store.Get(ctx, sess.SchoolID, planID)
	if err != nil {
		return DraftSession{}, storeErr("get", err)
	}
	return s.sessions.Open(ctx, sess, Copy(rec))
}

// Get returns a stored plan.
func (s *Service) Get(ctx context.Context, sess session.Context, planID string) (Record, error) {
	rec, err := s.store.Get(ctx, sess.SchoolID, planID)
	if err != nil {
		return Record{}, storeErr("get", err)
	}
	return rec, nil
}

// List returns the school's plans matching f, newest first.
func (s *Service) List(ctx context.Context, sess session.Context, f Filter) ([]Record, error) {
	f.SchoolID = sess.SchoolID
	records, err := s.store.List(ctx, f)
	if err != nil {
		return nil, storeErr("query", err)
	}
	return records, nil
}

// Stats counts the school's plans by status.
func (s *Service) Stats(ctx context.Context, sess session.Context) (Stats, error) {
	records, err := s.store.List(ctx, Filter{SchoolID: sess.SchoolID})
	if err != nil {
		return Stats{}, storeErr("query", err)
	}
	var st Stats
	for _, r := range records {
		st.Total++
		switch r.Status {
		case StatusDraft:
			st.Draft++
		case StatusApproved:
			st.Approved++
		}
	}
	return st, nil
}

// Delete removes a stored plan. Its files are deleted in the background
// unless another plan still references them.
func (s *Service) Delete(ctx context.Context, sess session.Context, planID string) error {
	rec, err := s.store.Get(ctx, sess.SchoolID, planID)
	if err != nil {
		return storeErr("get", err)
	}
	if err := s.store.Delete(ctx, sess.SchoolID, planID); err != nil {
		return storeErr("delete", err)
	}

	s.logEvent(ctx, sess, EventDeleted, planID, map[string]any{"title": rec.Title})
	s.release(ctx, sess.SchoolID, fileURLs(rec.ResourceFiles))

	slog.Info("lesson plan deleted", "lesson_plan_id", planID, "school_id", sess.SchoolID)
	return nil
}

func (s *Service) composer(sess session.Context, d *Draft) *Composer {
	return NewComposer(d, ComposerConfig{
		Curriculum: s.curriculum,
		Files:      unreferencedDeleter{svc: s, schoolID: sess.SchoolID},
		Background: s.bg,
	})
}

// release schedules deletion of each url that no stored plan of the school
// references.
func (s *Service) release(ctx context.Context, schoolID string, urls []string) {
	for _, url := range urls {
		if url == "" {
			continue
		}
		s.bg.Go(ctx, "delete resource file", func(ctx context.Context) error {
			return s.deleteUnreferenced(ctx, schoolID, url)
		})
	}
}

// deleteUnreferenced deletes url from storage unless a stored plan still
// lists it. Duplicated plans share files with their source.
func (s *Service) deleteUnreferenced(ctx context.Context, schoolID, url string) error {
	records, err := s.store.List(ctx, Filter{SchoolID: schoolID})
	if err != nil {
		return fmt.Errorf("checking references to %s: %w", url, err)
	}
	for _, r := range records {
		for _, f := range r.ResourceFiles {
			if f.URL == url {
				slog.Debug("resource file still referenced", "url", url, "lesson_plan_id", r.ID)
				return nil
			}
		}
	}
	return s.files.Delete(ctx, url)
}

func (s *Service) logEvent(ctx context.Context, sess session.Context, eventType, entityID string, data map[string]any) {
	err := s.events.LogEvent(ctx, Event{
		SchoolID:  sess.SchoolID,
		UserID:    sess.UserID,
		EventType: eventType,
		EntityID:  entityID,
		Data:      data,
	})
	if err != nil {
		slog.Warn("event logging failed", "type", eventType, "entity_id", entityID, "error", err)
	}
}

type unreferencedDeleter struct {
	svc      *Service
	schoolID string
}

func (d unreferencedDeleter) Delete(ctx context.Context, url string) error {
	return d.svc.deleteUnreferenced(ctx, d.schoolID, url)
}

func storeErr(op string, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return apperr.External(recordStore, op, err)
}

func fileURLs(files []ResourceFile) []string {
	urls := make([]string, 0, len(files))
	for _, f := range files {
		urls = append(urls, f.URL)
	}
	return urls
}

func removedURLs(before, after []ResourceFile) []string {
	kept := make(map[string]bool, len(after))
	for _, f := range after {
		kept[f.URL] = true
	}
	var removed []string
	for _, f := range before {
		if !kept[f.URL] {
			removed = append(removed, f.URL)
		}
	}
	return removed
}
