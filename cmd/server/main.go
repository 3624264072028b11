package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-course/internal/assignment"
	"github.com/p-n-ai/pai-course/internal/catalog"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/enrollment"
	"github.com/p-n-ai/pai-course/internal/httpapi"
	"github.com/p-n-ai/pai-course/internal/notify"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
	"github.com/p-n-ai/pai-course/internal/platform/config"
	"github.com/p-n-ai/pai-course/internal/platform/database"
	"github.com/p-n-ai/pai-course/internal/quiz"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
}

// newLogger builds the process logger from LEARN_LOG_LEVEL and LEARN_LOG_FORMAT.
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
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type app struct {
	handler http.Handler
	hub     *notify.Hub
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type stores struct {
	courses     course.Store
	quizzes     quiz.Store
	states      enrollment.StateStore
	assignments assignment.Store
}

// newApp connects the configured backends, syncs course content and builds
// the HTTP handler.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{hub: notify.NewHub()}
	var checks []func(context.Context) error
	sinks := notify.MultiSink{a.hub}

	st := stores{
		courses:     course.NewMemoryStore(),
		quizzes:     quiz.NewMemoryStore(),
		states:      enrollment.NewMemoryStore(),
		assignments: assignment.NewMemoryStore(),
	}

	if cfg.Store == "postgres" {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connecting database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		checks = append(checks, db.HealthCheck)

		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				a.Close()
				return nil, err
			}
		}
		if st, err = postgresStores(db); err != nil {
			a.Close()
			return nil, err
		}
		if cfg.Notify.Events {
			sinks = append(sinks, notify.NewPostgresSink(db.Pool))
		}
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting cache: %w", err)
		}
		a.closers = append(a.closers, func() { c.Close() })
		checks = append(checks, c.HealthCheck)

		st.courses = course.NewCachedStore(st.courses, c, cfg.Cache.TTL)
		if cfg.Notify.Redis {
			sinks = append(sinks, notify.NewRedisSink(c, cfg.Notify.ChannelPrefix))
		}
	}

	if cfg.Content.Sync {
		syncContent(ctx, cfg.Content.Path, st)
	}

	now := time.Now
	a.handler = httpapi.New(httpapi.Config{
		Enrollment: enrollment.NewService(enrollment.ServiceConfig{
			Courses:         st.courses,
			Quizzes:         st.quizzes,
			States:          st.states,
			Notifier:        sinks,
			SaveRetries:     cfg.Engine.SaveRetries,
			BulkConcurrency: cfg.Engine.BulkConcurrency,
			Now:             now,
		}),
		Assignments: assignment.NewService(assignment.ServiceConfig{
			Store:   st.assignments,
			Courses: st.courses,
			Now:     now,
		}),
		Live: a.hub,
		Ready: func(ctx context.Context) error {
			var errs []error
			for _, check := range checks {
				errs = append(errs, check(ctx))
			}
			return errors.Join(errs...)
		},
	})
	return a, nil
}

func postgresStores(db *database.DB) (stores, error) {
	courses, err := course.NewPostgresStore(db.Pool)
	if err != nil {
		return stores{}, fmt.Errorf("course store: %w", err)
	}
	quizzes, err := quiz.NewPostgresStore(db.Pool)
	if err != nil {
		return stores{}, fmt.Errorf("quiz store: %w", err)
	}
	states, err := enrollment.NewPostgresStore(db.Pool)
	if err != nil {
		return stores{}, fmt.Errorf("enrollment store: %w", err)
	}
	assignments, err := assignment.NewPostgresStore(db.Pool)
	if err != nil {
		return stores{}, fmt.Errorf("assignment store: %w", err)
	}
	return stores{courses: courses, quizzes: quizzes, states: states, assignments: assignments}, nil
}

// syncContent loads course documents into the stores. A missing or broken
// content directory leaves the stores as they are.
func syncContent(ctx context.Context, path string, st stores) {
	loader, err := catalog.NewLoader(path)
	if err != nil {
		slog.Warn("course content not loaded", "path", path, "error", err)
		return
	}
	if err := loader.Sync(ctx, st.courses, st.quizzes); err != nil {
		slog.Warn("course content sync failed", "path", path, "error", err)
	}
}
