package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"shelter/internal/config"
	"shelter/internal/db"
	"shelter/internal/engine"
	"shelter/internal/metrics"
	"shelter/internal/migrate"
)

// Options select the workspace and optional overrides applied after the
// config file is read.
type Options struct {
	Workspace string
	Driver    string
	DSN       string
	LogOutput io.Writer
}

// App bundles the open database and a ready engine.
type App struct {
	Config  *config.Config
	DB      *db.DB
	Engine  engine.Engine
	Metrics *metrics.Prometheus
	Logger  *slog.Logger
}

// Open loads config, opens and migrates the database and wires the engine.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if opts.Driver != "" {
		cfg.Database.Driver = opts.Driver
	}
	if opts.DSN != "" {
		cfg.Database.DSN = opts.DSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return OpenWithConfig(ctx, opts, cfg)
}

// OpenWithConfig is Open for an already loaded config.
func OpenWithConfig(ctx context.Context, opts Options, cfg *config.Config) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := NewLogger(out, cfg)
	m := metrics.NewPrometheus()
	eng := engine.New(conn, cfg)
	eng.Logger = logger
	eng.Metrics = m
	return &App{Config: cfg, DB: conn, Engine: eng, Metrics: m, Logger: logger}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// EnsureAdmin creates the first administrator when none exists yet and
// reports whether it did.
func (a *App) EnsureAdmin(ctx context.Context, username string) (bool, error) {
	if strings.TrimSpace(username) == "" {
		return false, nil
	}
	u, err := a.Engine.BootstrapAdmin(ctx, username)
	if errors.Is(err, engine.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	a.Logger.Info("bootstrap administrator created", "user_id", u.ID, "username", u.Username)
	return true, nil
}

// NewLogger builds the process logger from the logging section.
func NewLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
