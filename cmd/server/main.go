package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-school/internal/api"
	"github.com/p-n-ai/pai-school/internal/classroom"
	"github.com/p-n-ai/pai-school/internal/curriculum"
	"github.com/p-n-ai/pai-school/internal/lessonplan"
	"github.com/p-n-ai/pai-school/internal/notice"
	"github.com/p-n-ai/pai-school/internal/platform/background"
	"github.com/p-n-ai/pai-school/internal/platform/cache"
	"github.com/p-n-ai/pai-school/internal/platform/config"
	"github.com/p-n-ai/pai-school/internal/platform/database"
	"github.com/p-n-ai/pai-school/internal/storage"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      a.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if err := a.runner.Close(shutdownCtx); err != nil {
		slog.Warn("background tasks still running at shutdown", "error", err)
	}
}

// newLogger builds a slog logger from the log settings.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app holds the wired services and the resources to release on exit.
type app struct {
	handler http.Handler
	runner  *background.Runner
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects the configured backends and wires the services. Without
// a database URL the stores run in memory.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		runner: background.NewRunner(background.RunnerConfig{
			Timeout: time.Duration(cfg.Background.TimeoutSeconds) * time.Second,
		}),
	}
	checks := map[string]api.Check{}

	var (
		planStore  lessonplan.Store       = lessonplan.NewMemoryStore()
		classStore classroom.Store        = classroom.NewMemoryStore()
		events     lessonplan.EventLogger = lessonplan.NewMemoryEventLogger()
		sessions   lessonplan.Sessions    = lessonplan.NewMemorySessions(time.Duration(cfg.Drafts.TTLHours) * time.Hour)
		curCache   curriculum.JSONCache
	)

	if cfg.HasDatabase() {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		ps, err := lessonplan.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		cs, err := classroom.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		planStore, classStore = ps, cs
		events = lessonplan.NewPostgresEventLogger(db.Pool)
		checks["database"] = db.HealthCheck
		slog.Info("using postgres stores")
	} else {
		slog.Warn("no database configured, records are kept in memory")
	}

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		switch {
		case err == nil:
			a.closers = append(a.closers, func() { c.Close() })
			curCache = c
			checks["cache"] = c.HealthCheck
			if cfg.Drafts.Backend == "redis" {
				sessions = lessonplan.NewRedisSessions(c, time.Duration(cfg.Drafts.TTLHours)*time.Hour)
				slog.Info("draft sessions kept in redis")
			}
		case cfg.Drafts.Backend == "redis":
			a.close()
			return nil, fmt.Errorf("connect cache: %w", err)
		default:
			slog.Warn("cache unavailable, continuing without it", "error", err)
		}
	}

	var files storage.Service = storage.NewMemoryService()
	if cfg.Storage.Backend == "gcs" {
		gcs, err := storage.NewGCSService(ctx, storage.GCSConfig{
			Bucket:        cfg.Storage.Bucket,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			EmulatorHost:  cfg.Storage.EmulatorHost,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect storage: %w", err)
		}
		a.closers = append(a.closers, func() { gcs.Close() })
		files = gcs
	}

	loader, err := curriculum.NewLoader(curriculum.LoaderConfig{
		RootDir:      cfg.Curriculum.Path,
		AcademicYear: cfg.Curriculum.AcademicYear,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load curriculum: %w", err)
	}
	provider := curriculum.NewCachedProvider(loader, curCache, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)

	plans, err := lessonplan.NewService(lessonplan.ServiceConfig{
		Store:      planStore,
		Sessions:   sessions,
		Curriculum: provider,
		Files:      files,
		Background: a.runner,
		Events:     events,
		Rules: storage.Rules{
			MaxSizeMB:         cfg.Upload.MaxSizeMB,
			AllowedExtensions: cfg.Upload.AllowedExtensions,
		},
		Folder: cfg.Upload.Folder,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	classes, err := classroom.NewService(classroom.ServiceConfig{Store: classStore, Background: a.runner})
	if err != nil {
		a.close()
		return nil, err
	}

	hub := notice.NewHub(notice.HubConfig{})
	srv, err := api.New(api.Config{
		Plans:        plans,
		Classes:      classes,
		Curriculum:   provider,
		Notices:      hub,
		NoticeStream: hub,
		Checks:       checks,
		MaxUploadMB:  cfg.Upload.MaxSizeMB,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.handler = srv.Handler()
	return a, nil
}
