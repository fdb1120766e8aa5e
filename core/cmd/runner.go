// Package cmd implements the command line: serve, migrate and webhook management.
package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/rawbook/core/bootstrap"
	"github.com/m3rciful/rawbook/core/config"
	"github.com/m3rciful/rawbook/core/logger"
)

// Runner is a fully wired application.
type Runner interface {
	Run(ctx context.Context) error
}

// Options describe how to load configuration and build the application.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*config.Config, error)
	NewApp     func(cfg *config.Config, db *sqlx.DB) (Runner, error)

	Bootstrap      func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Result, error)
	ShutdownLogger func() error
}

func (o Options) withDefaults() Options {
	if o.ConfigEnvVar == "" {
		o.ConfigEnvVar = "CONFIG_PATH"
	}
	if o.LoadConfig == nil {
		o.LoadConfig = config.Load
	}
	if o.Bootstrap == nil {
		o.Bootstrap = bootstrap.Run
	}
	if o.ShutdownLogger == nil {
		o.ShutdownLogger = logger.Shutdown
	}
	return o
}

// configPath resolves the YAML path: flag, then environment, then default.
// Empty means environment-only configuration.
func (o Options) configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if p := os.Getenv(o.ConfigEnvVar); p != "" {
		return p
	}
	return o.DefaultConfigPath
}

func (o Options) load(flag string) (*config.Config, error) {
	path := o.configPath(flag)
	if path != "" {
		log.Printf("loading config: %s", path)
	}
	cfg, err := o.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("cmd: failed to load config: %w", err)
	}
	return cfg, nil
}

// serve bootstraps infrastructure and runs the application until SIGINT/SIGTERM.
func serve(parent context.Context, opts Options, cfg *config.Config, migrate bool) (err error) {
	if opts.NewApp == nil {
		return fmt.Errorf("cmd: NewApp is required")
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := opts.Bootstrap(ctx, bootstrap.Options{Config: cfg, Migrate: migrate})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer func() {
		if cerr := res.Close(); cerr != nil {
			logger.Warn(ctx, "app", "db.close", slog.String("status", "fail"), slog.String("err", cerr.Error()))
		}
		if serr := opts.ShutdownLogger(); serr != nil {
			log.Printf("logger shutdown error: %v", serr)
		}
	}()

	application, err := opts.NewApp(cfg, res.DB)
	if err != nil {
		return fmt.Errorf("cmd: application build failed: %w", err)
	}
	logger.Info(ctx, "app", "starting",
		slog.String("mode", cfg.Telegram.RunMode),
		slog.String("db", cfg.Database.Redacted()),
	)
	return application.Run(ctx)
}

// withLogger runs fn with the logger initialized and flushed afterwards.
func withLogger(opts Options, cfg *config.Config, fn func() error) error {
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer func() {
		if err := opts.ShutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	return fn()
}
