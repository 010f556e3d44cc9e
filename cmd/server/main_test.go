package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-school/internal/platform/config"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Storage:    config.StorageConfig{Backend: "memory"},
		Upload:     config.UploadConfig{MaxSizeMB: 50, AllowedExtensions: config.DefaultAllowedExtensions, Folder: "lesson-plans"},
		Curriculum: config.CurriculumConfig{Path: t.TempDir(), AcademicYear: "2025-2026"},
		Drafts:     config.DraftConfig{Backend: "memory", TTLHours: 24},
		Background: config.BackgroundConfig{TimeoutSeconds: 5},
	}
}

func TestHealthEndpoints(t *testing.T) {
	a, err := newApp(t.Context(), memoryConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			a.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestNewApp_InMemory(t *testing.T) {
	a, err := newApp(t.Context(), memoryConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	req := httptest.NewRequest(http.MethodGet, "/api/curriculum/academic-year", nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without session = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/curriculum/academic-year", nil)
	req.Header.Set("X-School-ID", "school-1")
	req.Header.Set("X-User-ID", "teacher-1")
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "2025-2026") {
		t.Errorf("academic year = %d %s", rec.Code, rec.Body)
	}

	if err := a.runner.Close(context.Background()); err != nil {
		t.Errorf("runner Close() error = %v", err)
	}
}

func TestNewApp_RedisDraftsNeedCache(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Drafts.Backend = "redis"
	cfg.Cache.URL = "redis://127.0.0.1:1"

	if _, err := newApp(t.Context(), cfg); err == nil {
		t.Error("newApp() should fail when redis drafts cannot reach the cache")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		debugOn   bool
		wantFirst string
	}{
		{"json info", config.LogConfig{Level: "info", Format: "json"}, false, "{"},
		{"text debug", config.LogConfig{Level: "debug", Format: "text"}, true, "time="},
		{"unknown level", config.LogConfig{Level: "loud"}, false, "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(tt.cfg, &buf)
			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.debugOn {
				t.Errorf("debug enabled = %v, want %v", got, tt.debugOn)
			}
			logger.Info("hello")
			if !strings.HasPrefix(buf.String(), tt.wantFirst) {
				t.Errorf("output = %q, want prefix %q", buf.String(), tt.wantFirst)
			}
		})
	}
}
