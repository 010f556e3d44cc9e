package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
)

const (
	uploadTimeout = 2 * time.Minute
	deleteTimeout = 30 * time.Second
)

// GCSConfig configures a GCSService.
type GCSConfig struct {
	Bucket        string
	PublicBaseURL string
	EmulatorHost  string
}

// GCSService stores files in a Google Cloud Storage bucket.
type GCSService struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCSService creates a GCS-backed service. With an emulator host set, the
// client talks to it without credentials.
func NewGCSService(ctx context.Context, cfg GCSConfig) (*GCSService, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	var opts []option.ClientOption
	emulator := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	if emulator != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulator)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if base == "" && emulator != "" {
		base = emulator
	}
	if base == "" {
		base = "https://storage.googleapis.com"
	}

	slog.Info("object storage initialized", "bucket", cfg.Bucket, "public_base_url", base, "emulator", emulator != "")
	return &GCSService{client: client, bucket: cfg.Bucket, baseURL: base}, nil
}

// Close releases the client.
func (s *GCSService) Close() error {
	return s.client.Close()
}

// PublicURL returns the URL an object is served from.
func (s *GCSService) PublicURL(key string) string {
	return PublicURL(s.baseURL, s.bucket, key)
}

func (s *GCSService) Upload(ctx context.Context, f File, folder string, onProgress Progress) (Uploaded, error) {
	digest, mimeType, err := prepare(f)
	if err != nil {
		return Uploaded{}, err
	}
	key := ObjectKey(folder, digest, f.Name)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = mimeType
	pr := &progressReader{r: f.Body, total: f.Size, fn: onProgress}
	n, err := io.Copy(w, pr)
	if err != nil {
		_ = w.Close()
		return Uploaded{}, apperr.External(serviceName, "upload", fmt.Errorf("write %s: %w", key, err))
	}
	if err := w.Close(); err != nil {
		return Uploaded{}, apperr.External(serviceName, "upload", fmt.Errorf("close %s: %w", key, err))
	}

	return Uploaded{
		Name:     f.Name,
		Size:     n,
		MimeType: mimeType,
		URL:      s.PublicURL(key),
		Key:      key,
	}, nil
}

// Delete removes the object behind url. A missing object is not an error.
func (s *GCSService) Delete(ctx context.Context, rawURL string) error {
	key, err := KeyFromURL(s.baseURL, s.bucket, rawURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return apperr.External(serviceName, "delete", fmt.Errorf("delete %s: %w", key, err))
	}
	return nil
}

// PublicURL joins base, bucket and key.
func PublicURL(base, bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), bucket, strings.TrimLeft(key, "/"))
}

// KeyFromURL recovers the object key from a URL built by PublicURL.
func KeyFromURL(base, bucket, rawURL string) (string, error) {
	prefix := strings.TrimRight(base, "/") + "/" + bucket + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", fmt.Errorf("url %q is not in bucket %s", rawURL, bucket)
	}
	key, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil {
		return "", fmt.Errorf("url %q: %w", rawURL, err)
	}
	if key == "" {
		return "", fmt.Errorf("url %q has no object key", rawURL)
	}
	return key, nil
}
