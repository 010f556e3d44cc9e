package lessonplan

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
	"github.com/p-n-ai/pai-school/internal/platform/background"
	"github.com/p-n-ai/pai-school/internal/storage"
)

// FileDeleter removes a stored file by URL.
type FileDeleter interface {
	Delete(ctx context.Context, url string) error
}

// Resources manages a draft's files and links. Lists keep insertion order.
type Resources struct {
	draft   *Draft
	deleter FileDeleter
	bg      background.Scheduler
	newID   func() string
}

// NewResources operates on d in place. Storage deletes for removed files are
// handed to bg.
func NewResources(d *Draft, deleter FileDeleter, bg background.Scheduler) *Resources {
	return &Resources{draft: d, deleter: deleter, bg: bg, newID: uuid.NewString}
}

// AddLink appends a link. Title and URL must be non-blank.
func (r *Resources) AddLink(title, url string) (ResourceLink, error) {
	title, url = strings.TrimSpace(title), strings.TrimSpace(url)
	if title == "" || url == "" {
		return ResourceLink{}, apperr.Invalid("resourceLinks", "Link title and URL are required")
	}
	link := ResourceLink{ID: r.newID(), Title: title, URL: url}
	r.draft.ResourceLinks = append(r.draft.ResourceLinks, link)
	return link, nil
}

// RemoveLink deletes a link by id. An unknown id is ignored.
func (r *Resources) RemoveLink(id string) {
	links := r.draft.ResourceLinks
	for i, l := range links {
		if l.ID == id {
			r.draft.ResourceLinks = append(links[:i:i], links[i+1:]...)
			return
		}
	}
}

// AddFile records a file the storage service has accepted.
func (r *Resources) AddFile(up storage.Uploaded) ResourceFile {
	f := ResourceFile{
		ID:       r.newID(),
		Name:     up.Name,
		Size:     up.Size,
		MimeType: up.MimeType,
		URL:      up.URL,
	}
	r.draft.ResourceFiles = append(r.draft.ResourceFiles, f)
	return f
}

// RemoveFile drops the file from the draft immediately and schedules the
// storage delete in the background. A failed delete is logged and does not
// restore the entry. It reports whether the id was present.
func (r *Resources) RemoveFile(ctx context.Context, id string) bool {
	files := r.draft.ResourceFiles
	for i, f := range files {
		if f.ID != id {
			continue
		}
		r.draft.ResourceFiles = append(files[:i:i], files[i+1:]...)
		if f.URL != "" && r.deleter != nil && r.bg != nil {
			url := f.URL
			r.bg.Go(ctx, "delete resource file", func(ctx context.Context) error {
				return r.deleter.Delete(ctx, url)
			})
		}
		return true
	}
	return false
}
