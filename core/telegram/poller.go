package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"

	"github.com/m3rciful/rawbook/core/logger"
)

// RunLongPoll removes any registered webhook and pulls updates until ctx is done.
// getUpdates and webhooks are mutually exclusive on the Telegram side.
func RunLongPoll(ctx context.Context, b *bot.Bot, pollTimeout time.Duration) error {
	if pollTimeout <= 0 {
		pollTimeout = DefaultLongPollTimeout
	}
	if err := DeleteWebhook(ctx, b); err != nil {
		logger.Warn(ctx, "tg", "delete_webhook",
			slog.String("status", "fail"),
			slog.String("mode", "polling"),
			slog.String("err", err.Error()),
		)
	} else {
		logger.Info(ctx, "tg", "delete_webhook",
			slog.String("status", "ok"),
			slog.String("mode", "polling"),
		)
	}

	logger.Info(ctx, "tg", "mode",
		slog.String("mode", "polling"),
		slog.Int("timeout_seconds", int(pollTimeout/time.Second)),
	)
	b.Start(ctx)
	return nil
}
