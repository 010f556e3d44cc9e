// Package storage validates and stores lesson plan resource files.
package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
)

const serviceName = "storage service"

// File is a candidate upload. Body is read more than once, so it must seek.
type File struct {
	Name     string
	Size     int64
	MimeType string
	Body     io.ReadSeeker
}

// Uploaded describes a stored object.
type Uploaded struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url"`
	Key      string `json:"key"`
}

// Progress reports bytes sent out of total for one file.
type Progress func(sent, total int64)

// Service stores and deletes files.
type Service interface {
	Upload(ctx context.Context, f File, folder string, onProgress Progress) (Uploaded, error)
	Delete(ctx context.Context, url string) error
}

// Rules bound what may be uploaded.
type Rules struct {
	MaxSizeMB         int
	AllowedExtensions []string
}

// DefaultRules accepts documents, presentations, images and common video
// formats up to 50 MB.
func DefaultRules() Rules {
	return Rules{
		MaxSizeMB: 50,
		AllowedExtensions: []string{
			"pdf", "doc", "docx", "ppt", "pptx",
			"jpg", "jpeg", "png", "gif",
			"mp4", "mov", "avi", "wmv", "mkv", "webm",
		},
	}
}

// Validate checks size and extension. The message names the file so a batch
// can report each rejection separately.
func Validate(f File, r Rules) error {
	if f.Size < 0 {
		return apperr.Invalid("files", fmt.Sprintf("%s: invalid file size", f.Name))
	}
	if r.MaxSizeMB > 0 && f.Size > int64(r.MaxSizeMB)*1024*1024 {
		return apperr.Invalid("files", fmt.Sprintf("%s: file exceeds %d MB limit", f.Name, r.MaxSizeMB))
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Name), "."))
	for _, allowed := range r.AllowedExtensions {
		if ext != "" && ext == strings.ToLower(strings.TrimPrefix(allowed, ".")) {
			return nil
		}
	}
	if ext == "" {
		return apperr.Invalid("files", fmt.Sprintf("%s: file has no extension", f.Name))
	}
	return apperr.Invalid("files", fmt.Sprintf("%s: file type .%s is not allowed", f.Name, ext))
}

// ObjectKey builds "<folder>/<digest prefix>/<sanitized name>".
func ObjectKey(folder, digest, name string) string {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if len(digest) > 16 {
		digest = digest[:16]
	}
	key := digest + "/" + SanitizeName(name)
	if folder != "" {
		key = folder + "/" + key
	}
	return key
}

// SanitizeName keeps letters, digits, dot, dash and underscore from the base
// name and replaces everything else with a dash.
func SanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-.")
	if out == "" {
		return "file"
	}
	return out
}

// prepare hashes and sniffs the body, leaving it rewound.
func prepare(f File) (digest, mimeType string, err error) {
	if f.Body == nil {
		return "", "", fmt.Errorf("%s: empty body", f.Name)
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", "", fmt.Errorf("hash init: %w", err)
	}
	if _, err := io.Copy(h, f.Body); err != nil {
		return "", "", fmt.Errorf("hash %s: %w", f.Name, err)
	}
	if _, err := f.Body.Seek(0, io.SeekStart); err != nil {
		return "", "", fmt.Errorf("rewind %s: %w", f.Name, err)
	}

	mimeType = f.MimeType
	detected, err := mimetype.DetectReader(f.Body)
	if err == nil && !detected.Is("application/octet-stream") {
		mimeType = detected.String()
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if _, err := f.Body.Seek(0, io.SeekStart); err != nil {
		return "", "", fmt.Errorf("rewind %s: %w", f.Name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), mimeType, nil
}

// progressReader reports cumulative bytes read.
type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}
