package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

const memoryURLPrefix = "memory://files/"

// MemoryService keeps objects in memory. DeleteErr and DeleteBlock let tests
// simulate a failing or hanging backend.
type MemoryService struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string

	// UploadErr, when it returns non-nil for a file name, fails that upload.
	UploadErr func(name string) error
	// DeleteErr is returned from every Delete.
	DeleteErr error
	// DeleteBlock, when set, makes Delete wait until it is closed or the
	// context ends.
	DeleteBlock chan struct{}
}

// NewMemoryService creates an empty in-memory store.
func NewMemoryService() *MemoryService {
	return &MemoryService{objects: make(map[string][]byte)}
}

func (s *MemoryService) Upload(ctx context.Context, f File, folder string, onProgress Progress) (Uploaded, error) {
	if s.UploadErr != nil {
		if err := s.UploadErr(f.Name); err != nil {
			return Uploaded{}, err
		}
	}
	digest, mimeType, err := prepare(f)
	if err != nil {
		return Uploaded{}, err
	}

	var buf bytes.Buffer
	pr := &progressReader{r: f.Body, total: f.Size, fn: onProgress}
	if _, err := io.Copy(&buf, pr); err != nil {
		return Uploaded{}, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return Uploaded{}, err
	}

	key := ObjectKey(folder, digest, f.Name)
	s.mu.Lock()
	s.objects[key] = buf.Bytes()
	s.mu.Unlock()

	return Uploaded{
		Name:     f.Name,
		Size:     int64(buf.Len()),
		MimeType: mimeType,
		URL:      memoryURLPrefix + key,
		Key:      key,
	}, nil
}

func (s *MemoryService) Delete(ctx context.Context, url string) error {
	if s.DeleteBlock != nil {
		select {
		case <-s.DeleteBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.DeleteErr != nil {
		return s.DeleteErr
	}

	key := strings.TrimPrefix(url, memoryURLPrefix)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, url)
	return nil
}

// Has reports whether an object exists for url.
func (s *MemoryService) Has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[strings.TrimPrefix(url, memoryURLPrefix)]
	return ok
}

// Deleted returns the URLs deleted so far.
func (s *MemoryService) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.deleted...)
}
