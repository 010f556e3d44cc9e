package storage_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
	"github.com/p-n-ai/pai-school/internal/storage"
)

func newFile(name string, body []byte) storage.File {
	return storage.File{Name: name, Size: int64(len(body)), Body: bytes.NewReader(body)}
}

func TestValidate(t *testing.T) {
	rules := storage.DefaultRules()

	tests := []struct {
		name    string
		file    storage.File
		wantMsg string
	}{
		{"pdf ok", storage.File{Name: "worksheet.pdf", Size: 1024}, ""},
		{"upper case ext", storage.File{Name: "Slides.PPTX", Size: 1024}, ""},
		{"exactly 50MB", storage.File{Name: "clip.mp4", Size: 50 * 1024 * 1024}, ""},
		{"too large", storage.File{Name: "lecture.mp4", Size: 50*1024*1024 + 1}, "lecture.mp4: file exceeds 50 MB limit"},
		{"bad ext", storage.File{Name: "setup.exe", Size: 10}, "setup.exe: file type .exe is not allowed"},
		{"no ext", storage.File{Name: "README", Size: 10}, "README: file has no extension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storage.Validate(tt.file, rules)
			if tt.wantMsg == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			ve, ok := apperr.IsValidation(err)
			if !ok {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if ve.Fields["files"] != tt.wantMsg {
				t.Errorf("message = %q, want %q", ve.Fields["files"], tt.wantMsg)
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	key := storage.ObjectKey("/lesson-plans/", "0123456789abcdef0123", "../My Notes (v2).pdf")
	if key != "lesson-plans/0123456789abcdef/My-Notes--v2-.pdf" {
		t.Errorf("ObjectKey() = %q", key)
	}
	if got := storage.SanitizeName("???"); got != "file" {
		t.Errorf("SanitizeName(???) = %q, want file", got)
	}
}

func TestKeyFromURL(t *testing.T) {
	url := storage.PublicURL("https://storage.googleapis.com/", "school-files", "lesson-plans/ab/notes.pdf")
	if url != "https://storage.googleapis.com/school-files/lesson-plans/ab/notes.pdf" {
		t.Fatalf("PublicURL() = %q", url)
	}

	key, err := storage.KeyFromURL("https://storage.googleapis.com", "school-files", url)
	if err != nil {
		t.Fatalf("KeyFromURL() error = %v", err)
	}
	if key != "lesson-plans/ab/notes.pdf" {
		t.Errorf("KeyFromURL() = %q", key)
	}

	if _, err := storage.KeyFromURL("https://storage.googleapis.com", "school-files", "https://example.com/x.pdf"); err == nil {
		t.Error("KeyFromURL() should reject a foreign URL")
	}
}

func TestMemoryService_UploadAndDelete(t *testing.T) {
	svc := storage.NewMemoryService()
	body := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

	var lastSent, lastTotal int64
	up, err := svc.Upload(t.Context(), newFile("notes.pdf", body), "lesson-plans", func(sent, total int64) {
		lastSent, lastTotal = sent, total
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if up.MimeType != "application/pdf" {
		t.Errorf("MimeType = %q, want application/pdf", up.MimeType)
	}
	if !strings.HasPrefix(up.Key, "lesson-plans/") || !strings.HasSuffix(up.Key, "/notes.pdf") {
		t.Errorf("Key = %q", up.Key)
	}
	if lastSent != int64(len(body)) || lastTotal != int64(len(body)) {
		t.Errorf("progress = %d/%d, want %d/%d", lastSent, lastTotal, len(body), len(body))
	}
	if !svc.Has(up.URL) {
		t.Fatal("uploaded object missing")
	}

	if err := svc.Delete(t.Context(), up.URL); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if svc.Has(up.URL) {
		t.Error("object still present after Delete()")
	}
}

func TestMemoryService_SameContentSameKey(t *testing.T) {
	svc := storage.NewMemoryService()
	a, _ := svc.Upload(t.Context(), newFile("a.png", []byte("same")), "f", nil)
	b, _ := svc.Upload(t.Context(), newFile("a.png", []byte("same")), "f", nil)
	c, _ := svc.Upload(t.Context(), newFile("a.png", []byte("different")), "f", nil)
	if a.Key != b.Key {
		t.Errorf("identical content keys differ: %q vs %q", a.Key, b.Key)
	}
	if a.Key == c.Key {
		t.Error("different content produced the same key")
	}
}

func TestMemoryService_DeleteBlockHonoursContext(t *testing.T) {
	svc := storage.NewMemoryService()
	svc.DeleteBlock = make(chan struct{})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := svc.Delete(ctx, "memory://files/x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Delete() error = %v, want context.Canceled", err)
	}
}

func TestUploadBatch_PartialFailure(t *testing.T) {
	svc := storage.NewMemoryService()
	svc.UploadErr = func(name string) error {
		if name == "broken.docx" {
			return errors.New("bucket unavailable")
		}
		return nil
	}

	files := []storage.File{
		newFile("plan.pdf", []byte("%PDF-1.4")),
		newFile("virus.exe", []byte("MZ")),
		newFile("broken.docx", []byte("PK")),
		newFile("diagram.png", []byte("\x89PNG\r\n\x1a\n")),
	}

	progress := map[string]int64{}
	uploaded, failed := storage.UploadBatch(t.Context(), svc, files, "lesson-plans", storage.DefaultRules(),
		func(name string, sent, total int64) { progress[name] = sent })

	if len(uploaded) != 2 {
		t.Fatalf("uploaded = %d, want 2", len(uploaded))
	}
	if uploaded[0].Name != "plan.pdf" || uploaded[1].Name != "diagram.png" {
		t.Errorf("uploaded order = %s, %s", uploaded[0].Name, uploaded[1].Name)
	}
	if len(failed) != 2 {
		t.Fatalf("failed = %d, want 2", len(failed))
	}
	if failed[0].Message != "virus.exe: file type .exe is not allowed" {
		t.Errorf("failed[0] = %q", failed[0].Message)
	}
	if !strings.Contains(failed[1].Message, "broken.docx") || !strings.Contains(failed[1].Message, "bucket unavailable") {
		t.Errorf("failed[1] = %q", failed[1].Message)
	}
	if progress["plan.pdf"] == 0 {
		t.Error("no progress reported for plan.pdf")
	}
	if _, ok := progress["virus.exe"]; ok {
		t.Error("rejected file must not be uploaded")
	}
}
