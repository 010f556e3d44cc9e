// Package apperr defines the error kinds surfaced to users: local validation
// failures, failed calls to remote collaborators, and partially failed
// batches.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound reports an absent record or draft.
var ErrNotFound = errors.New("not found")

// ValidationError maps field names to human-readable messages. It is local
// and synchronous; no remote call has been made when one is returned.
type ValidationError struct {
	Fields map[string]string
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// NewValidation returns nil for an empty mapping so callers can write
// `if err := apperr.NewValidation(errs); err != nil`.
func NewValidation(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ExternalError wraps a failure from the record store, the storage service or
// the curriculum provider. The caller's in-memory state is left intact so the
// operation can be retried.
type ExternalError struct {
	Service string
	Op      string
	Err     error
}

// External wraps err as an ExternalError, or returns nil when err is nil.
// An err that already carries an ExternalError is returned unchanged.
func External(service, op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := IsExternal(err); ok {
		return err
	}
	return &ExternalError{Service: service, Op: op, Err: err}
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// Retryable is always true: a remote failure never invalidates the draft.
func (e *ExternalError) Retryable() bool { return true }

// FileFailure is one rejected or failed file in a batch.
type FileFailure struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// BatchError reports the files of a batch that did not make it. The files
// that succeeded are returned alongside it.
type BatchError struct {
	Failed []FileFailure
}

func (e *BatchError) Error() string {
	if len(e.Failed) == 1 {
		return "1 file failed: " + e.Failed[0].Message
	}
	return fmt.Sprintf("%d files failed", len(e.Failed))
}

// IsValidation reports whether err is a ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsExternal reports whether err is an ExternalError and returns it.
func IsExternal(err error) (*ExternalError, bool) {
	var ee *ExternalError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// IsBatch reports whether err is a BatchError and returns it.
func IsBatch(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
