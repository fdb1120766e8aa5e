// Package bootstrap brings up the shared infrastructure: logger, database
// pool and schema.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/rawbook/core/config"
	"github.com/m3rciful/rawbook/core/database"
	"github.com/m3rciful/rawbook/core/logger"
)

// Options control the bootstrap pipeline. Nil funcs use the core packages.
type Options struct {
	Config *config.Config
	// Migrate forces migrations regardless of database.migrate_on_start.
	Migrate bool

	LoggerInit func(logger.Config) error
	ConnectDB  func(context.Context, database.Config) (*sqlx.DB, error)
	MigrateDB  func(context.Context, database.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

// Close releases the pool.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, applies migrations when enabled and opens the pool.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config
	start := time.Now()

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.Init
	}
	if err := loggerInit(cfg.Logging); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if opts.Migrate || cfg.Database.MigrateOnStart {
		migrate := opts.MigrateDB
		if migrate == nil {
			migrate = database.MigrateUp
		}
		if err := migrate(ctx, cfg.Database); err != nil {
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}

	connect := opts.ConnectDB
	if connect == nil {
		connect = database.Connect
	}
	db, err := connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	logger.Info(ctx, "app", "bootstrap",
		slog.String("status", "ok"),
		slog.String("driver", cfg.Database.DriverName()),
		slog.Duration("duration", logger.Took(start)),
	)
	return &Result{DB: db}, nil
}
