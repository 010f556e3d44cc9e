package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/p-n-ai/pai-school/internal/lessonplan"
	"github.com/p-n-ai/pai-school/internal/notice"
	"github.com/p-n-ai/pai-school/internal/platform/apperr"
	"github.com/p-n-ai/pai-school/internal/storage"
)

// draftView is a draft with its derived evaluation figures.
type draftView struct {
	lessonplan.DraftSession
	EvaluationTotal string          `json:"evaluationTotal"`
	EvaluationBand  lessonplan.Band `json:"evaluationBand"`
}

func newDraftView(ds lessonplan.DraftSession) draftView {
	total := lessonplan.TotalOf(ds.Draft.EvaluationItems)
	return draftView{
		DraftSession:    ds,
		EvaluationTotal: total.String(),
		EvaluationBand:  lessonplan.BandOf(total),
	}
}

func (s *Server) handleNewDraft(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	ds, err := s.plans.NewDraft(r.Context(), sess)
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDraftView(ds))
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	ds, err := s.plans.Draft(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftView(ds))
}

func (s *Server) handlePatchDraft(w http.ResponseWriter, r *http.Request) {
	var p lessonplan.Patch
	if err := decodeJSON(r, &p); err != nil {
		writeBadBody(w, err)
		return
	}
	s.compose(w, r, func(c *lessonplan.Composer) error {
		c.Apply(p)
		return nil
	})
}

func (s *Server) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	if err := s.plans.DiscardDraft(r.Context(), sess, r.PathValue("id")); err != nil {
		s.fail(w, r, sess, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectChapter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChapterID string `json:"chapterId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadBody(w, err)
		return
	}
	s.compose(w, r, func(c *lessonplan.Composer) error {
		return c.SelectChapter(r.Context(), req.ChapterID)
	})
}

func (s *Server) handleSetOutcomes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LearningOutcomes []string `json:"learningOutcomes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadBody(w, err)
		return
	}
	s.compose(w, r, func(c *lessonplan.Composer) error {
		return c.SetOutcomes(r.Context(), req.LearningOutcomes)
	})
}

func (s *Server) handleAddEvaluationItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Criterion  string  `json:"criterion"`
		Percentage float64 `json:"percentage"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadBody(w, err)
		return
	}
	s.compose(w, r, func(c *lessonplan.Composer) error {
		_, err := c.Evaluation().Add(req.Criterion, req.Percentage)
		return err
	})
}

func (s *Server) handleRemoveEvaluationItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("itemId")
	s.compose(w, r, func(c *lessonplan.Composer) error {
		c.Evaluation().Remove(id)
		return nil
	})
}

func (s *Server) handleAddLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadBody(w, err)
		return
	}
	s.compose(w, r, func(c *lessonplan.Composer) error {
		_, err := c.Resources().AddLink(req.Title, req.URL)
		return err
	})
}

func (s *Server) handleRemoveLink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("linkId")
	s.compose(w, r, func(c *lessonplan.Composer) error {
		c.Resources().RemoveLink(id)
		return nil
	})
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("fileId")
	s.compose(w, r, func(c *lessonplan.Composer) error {
		if !c.Resources().RemoveFile(r.Context(), id) {
			return fmt.Errorf("file %s: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}

func (s *Server) handleValidateDraft(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	ds, err := s.plans.Draft(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	fields := lessonplan.Validate(ds.Draft)
	writeJSON(w, http.StatusOK, map[string]any{"valid": len(fields) == 0, "fields": fields})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	var req struct {
		Status lessonplan.Status `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadBody(w, err)
		return
	}
	rec, err := s.plans.Submit(r.Context(), sess, r.PathValue("id"), req.Status)
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUploadFiles accepts a multipart batch under the "files" field. Parts
// are read one at a time and each is capped on its own, so an oversized file
// is reported as failed while the rest of the batch is attached. Any failure
// answers 207 Multi-Status.
func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	sess := sessionOf(r)
	mr, err := r.MultipartReader()
	if err != nil {
		writeBadBody(w, err)
		return
	}

	var (
		files    []storage.File
		rejected []apperr.FileFailure
		spooled  []*os.File
	)
	defer func() {
		for _, f := range spooled {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeBadBody(w, err)
			return
		}
		name := part.FileName()
		if part.FormName() != "files" || name == "" {
			part.Close()
			continue
		}

		tmp, err := os.CreateTemp("", "upload-*")
		if err != nil {
			s.fail(w, r, sess, fmt.Errorf("spool %s: %w", name, err))
			return
		}
		spooled = append(spooled, tmp)

		n, err := io.Copy(tmp, io.LimitReader(part, s.maxUpload+1))
		if err != nil {
			writeBadBody(w, err)
			return
		}
		if n > s.maxUpload {
			if _, err := io.Copy(io.Discard, part); err != nil {
				writeBadBody(w, err)
				return
			}
			slog.Info("upload part over size limit", "name", name, "limit_mb", s.maxUploadMB)
			rejected = append(rejected, apperr.FileFailure{
				Name:    name,
				Message: fmt.Sprintf("%s: file exceeds %d MB limit", name, s.maxUploadMB),
			})
			continue
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			s.fail(w, r, sess, fmt.Errorf("rewind %s: %w", name, err))
			return
		}
		files = append(files, storage.File{
			Name:     name,
			Size:     n,
			MimeType: part.Header.Get("Content-Type"),
			Body:     tmp,
		})
	}

	if len(files) == 0 && len(rejected) == 0 {
		s.fail(w, r, sess, apperr.Invalid("files", "Choose at least one file to upload"))
		return
	}

	progress := func(name string, sent, total int64) {
		s.notices.Publish(sess.UserID, notice.Progress(name, sent, total))
	}
	ds, err := s.plans.UploadFiles(r.Context(), sess, r.PathValue("id"), files, progress)
	failed := rejected
	if be, ok := apperr.IsBatch(err); ok {
		failed = append(failed, be.Failed...)
		err = nil
	}
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	if len(failed) > 0 {
		s.publish(sess, &apperr.BatchError{Failed: failed})
		slog.Info("upload batch partially failed", "draft_id", ds.ID, "failed", len(failed))
		writeJSON(w, http.StatusMultiStatus, map[string]any{"draft": newDraftView(ds), "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": newDraftView(ds), "failed": []apperr.FileFailure{}})
}

// compose applies fn to the draft named in the path and responds with the
// saved draft.
func (s *Server) compose(w http.ResponseWriter, r *http.Request, fn func(*lessonplan.Composer) error) {
	sess := sessionOf(r)
	ds, err := s.plans.Compose(r.Context(), sess, r.PathValue("id"), fn)
	if err != nil {
		s.fail(w, r, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftView(ds))
}
