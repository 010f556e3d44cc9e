// Package config loads application configuration from environment variables.
// All variables use the SCHOOL_ prefix. A .env file in the working directory,
// when present, is loaded first and never overrides variables already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Storage    StorageConfig
	Upload     UploadConfig
	Curriculum CurriculumConfig
	Drafts     DraftConfig
	Background BackgroundConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL runs the
// service on in-memory stores.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis connection settings.
type CacheConfig struct {
	URL        string
	TTLMinutes int
}

// StorageConfig selects the file storage backend.
type StorageConfig struct {
	Backend       string // "memory" or "gcs"
	Bucket        string
	PublicBaseURL string
	EmulatorHost  string
}

// UploadConfig holds the file validation rules applied before every upload.
type UploadConfig struct {
	MaxSizeMB         int
	AllowedExtensions []string
	Folder            string
}

// CurriculumConfig holds curriculum document settings.
type CurriculumConfig struct {
	Path         string
	AcademicYear string // overrides the clock-derived academic year when set
}

// DraftConfig holds lesson plan draft session settings.
type DraftConfig struct {
	Backend  string // "memory" or "redis"
	TTLHours int
}

// BackgroundConfig bounds best-effort background tasks.
type BackgroundConfig struct {
	TimeoutSeconds int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// DefaultAllowedExtensions lists the resource file types accepted for upload.
var DefaultAllowedExtensions = []string{
	"pdf", "doc", "docx", "ppt", "pptx",
	"jpg", "jpeg", "png", "gif",
	"mp4", "mov", "avi", "wmv", "mkv", "webm",
}

// Load reads configuration from environment variables with SCHOOL_ prefix.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SCHOOL_SERVER_PORT", 8080),
			Host: envStr("SCHOOL_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("SCHOOL_DATABASE_URL", ""),
			MaxConns: envInt("SCHOOL_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("SCHOOL_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			URL:        envStr("SCHOOL_CACHE_URL", "redis://localhost:6379"),
			TTLMinutes: envInt("SCHOOL_CACHE_TTL_MINUTES", 30),
		},
		Storage: StorageConfig{
			Backend:       envStr("SCHOOL_STORAGE_BACKEND", "memory"),
			Bucket:        envStr("SCHOOL_STORAGE_BUCKET", ""),
			PublicBaseURL: envStr("SCHOOL_STORAGE_PUBLIC_BASE_URL", ""),
			EmulatorHost:  envStr("SCHOOL_STORAGE_EMULATOR_HOST", ""),
		},
		Upload: UploadConfig{
			MaxSizeMB:         envInt("SCHOOL_UPLOAD_MAX_SIZE_MB", 50),
			AllowedExtensions: envList("SCHOOL_UPLOAD_ALLOWED_EXTENSIONS", DefaultAllowedExtensions),
			Folder:            envStr("SCHOOL_UPLOAD_FOLDER", "lesson-plans"),
		},
		Curriculum: CurriculumConfig{
			Path:         envStr("SCHOOL_CURRICULUM_PATH", "./curriculum"),
			AcademicYear: envStr("SCHOOL_ACADEMIC_YEAR", ""),
		},
		Drafts: DraftConfig{
			Backend:  envStr("SCHOOL_DRAFT_BACKEND", "memory"),
			TTLHours: envInt("SCHOOL_DRAFT_TTL_HOURS", 24),
		},
		Background: BackgroundConfig{
			TimeoutSeconds: envInt("SCHOOL_BACKGROUND_TIMEOUT_SECONDS", 15),
		},
		Log: LogConfig{
			Level:  envStr("SCHOOL_LOG_LEVEL", "info"),
			Format: envStr("SCHOOL_LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("SCHOOL_STORAGE_BUCKET is required for the gcs backend")
		}
	default:
		return fmt.Errorf("SCHOOL_STORAGE_BACKEND must be 'memory' or 'gcs', got %q", c.Storage.Backend)
	}

	if c.Drafts.Backend != "memory" && c.Drafts.Backend != "redis" {
		return fmt.Errorf("SCHOOL_DRAFT_BACKEND must be 'memory' or 'redis', got %q", c.Drafts.Backend)
	}
	if c.Drafts.Backend == "redis" && c.Cache.URL == "" {
		return fmt.Errorf("SCHOOL_CACHE_URL is required when drafts are kept in redis")
	}

	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("SCHOOL_UPLOAD_MAX_SIZE_MB must be positive, got %d", c.Upload.MaxSizeMB)
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("SCHOOL_UPLOAD_ALLOWED_EXTENSIONS must list at least one extension")
	}

	if c.Database.URL != "" && c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("SCHOOL_DATABASE_MIN_CONNS (%d) exceeds SCHOOL_DATABASE_MAX_CONNS (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	return nil
}

// HasDatabase returns true if a PostgreSQL URL is configured.
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// envList parses a comma-separated list, lowercasing entries and dropping
// leading dots so ".PDF" and "pdf" are the same extension.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "."))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
