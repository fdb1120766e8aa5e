// Package app wires the bot client, the update pipeline, the reply
// dispatcher and the HTTP surface together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/rawbook/core/config"
	"github.com/m3rciful/rawbook/core/logger"
	"github.com/m3rciful/rawbook/core/telegram"
	"github.com/m3rciful/rawbook/core/telegram/middleware"
	"github.com/m3rciful/rawbook/core/telegram/sender"
	"github.com/m3rciful/rawbook/internal/dispatch"
	"github.com/m3rciful/rawbook/internal/service"
)

// App is one running bot instance.
type App struct {
	cfg        *config.Config
	bot        *bot.Bot
	registry   *telegram.Registry
	dispatcher *sender.Dispatcher
	handle     middleware.UpdateHandler
	handler    http.Handler
}

// New builds the application over an already migrated pool.
func New(cfg *config.Config, db *sqlx.DB) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if db == nil {
		return nil, errors.New("app: nil database")
	}

	a := &App{cfg: cfg, registry: telegram.NewRegistry()}

	b, err := telegram.NewClient(telegram.ClientOptions{
		Token:       cfg.Telegram.Token,
		APIURL:      cfg.Telegram.APIURL,
		PollTimeout: cfg.LongPollTimeout(),
		OnUpdate:    a.HandleUpdate,
	})
	if err != nil {
		return nil, err
	}
	a.bot = b

	for _, cmd := range dispatch.CommandMenu() {
		if err := a.registry.RegisterCommand(cmd); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}

	a.dispatcher = sender.NewDispatcher(sender.Options{
		QueueSize:    cfg.Sender.QueueSize,
		Workers:      cfg.Sender.Workers,
		MaxRetries:   cfg.Sender.MaxRetries,
		RetryBackoff: cfg.RetryBackoff(),
	})

	pipeline := dispatch.NewPipeline(dispatch.PipelineOptions{
		DB:    db,
		Bot:   b,
		Queue: a.dispatcher,
	})
	a.handle = middleware.Chain(pipeline.Handle, telegram.DefaultMiddlewares()...)

	h, err := service.NewHandler(service.Options{
		Secret:         cfg.Webhook.Secret,
		WebhookURL:     webhookURL(cfg),
		StaticDir:      cfg.Static.Dir,
		RequestTimeout: cfg.RequestTimeout(),
		Updates:        a.HandleUpdate,
		Bot:            b,
	})
	if err != nil {
		a.dispatcher.Close()
		return nil, err
	}
	a.handler = h
	return a, nil
}

func webhookURL(cfg *config.Config) string {
	if cfg.Webhook.PublicURL == "" {
		return ""
	}
	return cfg.WebhookURL()
}

// HandleUpdate runs upd through the middleware chain and the pipeline.
func (a *App) HandleUpdate(ctx context.Context, upd *models.Update) error {
	return a.handle(ctx, upd)
}

// Handler is the HTTP surface.
func (a *App) Handler() http.Handler { return a.handler }

// Bot is the Bot API client.
func (a *App) Bot() *bot.Bot { return a.bot }

// Run serves HTTP, and polls in longpoll mode, until ctx is done.
// Queued replies are flushed before it returns.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	start := time.Now()

	if a.cfg.Telegram.PublishCommands {
		// a failed menu update is not fatal
		_ = a.registry.Publish(ctx, a.bot)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return service.Serve(gctx, service.NewServer(a.cfg.ListenAddr(), a.handler))
	})
	if a.cfg.Telegram.RunMode == config.RunModeLongpoll {
		g.Go(func() error {
			return telegram.RunLongPoll(gctx, a.bot, a.cfg.LongPollTimeout())
		})
	} else {
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", a.cfg.ListenAddr()),
		)
	}

	logger.Info(ctx, "app", "ready",
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)
	err := g.Wait()
	logger.Info(ctx, "app", "shutdown", slog.String("status", logger.Status(err)))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close waits for queued replies. It is safe to call more than once.
func (a *App) Close() {
	a.dispatcher.Close()
}
