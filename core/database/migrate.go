package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/rawbook/core/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// MigrateUp applies every pending up migration.
func MigrateUp(ctx context.Context, cfg Config) error {
	return runMigrations(ctx, cfg, "up", func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown reverts steps migrations, or all of them when steps <= 0.
func MigrateDown(ctx context.Context, cfg Config, steps int) error {
	return runMigrations(ctx, cfg, "down", func(m *migrate.Migrate) error {
		if steps <= 0 {
			return m.Down()
		}
		return m.Steps(-steps)
	})
}

func runMigrations(ctx context.Context, cfg Config, direction string, apply func(*migrate.Migrate) error) (err error) {
	log := logger.Component("migrate")

	dbURL, err := cfg.MigrateURL()
	if err != nil {
		return fmt.Errorf("migrate config: %w", err)
	}
	files := listMigrationFiles()
	if len(files) > 0 {
		shown := files[:min(len(files), 6)]
		logger.LogEvent(ctx, log, slog.LevelDebug, "migrate.resolve",
			slog.Int("files_total", len(files)),
			slog.String("files_preview", strings.Join(shown, ", ")),
			slog.Bool("files_truncated", len(shown) < len(files)),
		)
	}

	src, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		logger.LogEvent(ctx, log, slog.LevelError, "migrate.init",
			slog.String("status", "fail"),
			slog.String("driver", cfg.DriverName()),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("init migrations: %w", err)
	}
	m.Log = migrateLog{ctx: ctx, log: log}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	fromVer, _, _ := m.Version()
	start := time.Now()
	applyErr := apply(m)
	took := logger.Took(start)
	if applyErr != nil && !errors.Is(applyErr, migrate.ErrNoChange) {
		logger.LogEvent(ctx, log, slog.LevelError, "migrate."+direction,
			slog.String("status", "fail"),
			slog.Duration("duration", took),
			slog.String("err", applyErr.Error()),
		)
		return fmt.Errorf("migrate %s: %w", direction, applyErr)
	}
	toVer, _, _ := m.Version()

	logger.LogEvent(ctx, log, slog.LevelInfo, "migrate.summary",
		slog.String("status", "ok"),
		slog.String("op", direction),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("files", countBetween(files, uint64(fromVer), uint64(toVer))),
		slog.Duration("duration", took),
	)
	return nil
}

// migrateLog routes golang-migrate output into the structured logger.
type migrateLog struct {
	ctx context.Context
	log *slog.Logger
}

func (l migrateLog) Printf(format string, v ...any) {
	logger.LogEvent(l.ctx, l.log, slog.LevelDebug, "migrate.step",
		slog.String("cause", strings.TrimSpace(fmt.Sprintf(format, v...))),
	)
}

func (l migrateLog) Verbose() bool { return false }

func listMigrationFiles() []string {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// countBetween counts migrations with a version in (lo, hi], in either direction.
func countBetween(files []string, a, b uint64) int {
	lo, hi := min(a, b), max(a, b)
	n := 0
	for _, f := range files {
		if v := parseVersion(f); v > lo && v <= hi {
			n++
		}
	}
	return n
}
