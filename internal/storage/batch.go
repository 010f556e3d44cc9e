package storage

import (
	"context"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
)

// BatchProgress reports per-file upload progress within a batch.
type BatchProgress func(name string, sent, total int64)

// UploadBatch validates then uploads each file in order. A rejected or
// failed file does not stop the others; the failures are returned alongside
// the files that made it.
func UploadBatch(ctx context.Context, svc Service, files []File, folder string, rules Rules, onProgress BatchProgress) ([]Uploaded, []apperr.FileFailure) {
	uploaded := make([]Uploaded, 0, len(files))
	var failed []apperr.FileFailure

	for _, f := range files {
		if err := Validate(f, rules); err != nil {
			failed = append(failed, apperr.FileFailure{Name: f.Name, Message: validationMessage(err)})
			continue
		}

		var progress Progress
		if onProgress != nil {
			name := f.Name
			progress = func(sent, total int64) { onProgress(name, sent, total) }
		}

		up, err := svc.Upload(ctx, f, folder, progress)
		if err != nil {
			failed = append(failed, apperr.FileFailure{Name: f.Name, Message: f.Name + ": upload failed: " + err.Error()})
			continue
		}
		uploaded = append(uploaded, up)
	}

	return uploaded, failed
}

func validationMessage(err error) string {
	if ve, ok := apperr.IsValidation(err); ok {
		for _, msg := range ve.Fields {
			return msg
		}
	}
	return err.Error()
}
