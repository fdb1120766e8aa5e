package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/m3rciful/rawbook/core/logger"
)

const apiCallTimeout = 10 * time.Second

// WebhookInfo returns getWebhookInfo as reported by Telegram.
func WebhookInfo(ctx context.Context, b *bot.Bot) (*models.WebhookInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()
	info, err := b.GetWebhookInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("telegram: getWebhookInfo: %w", err)
	}
	return info, nil
}

// SetupWebhook points Telegram at url.
func SetupWebhook(ctx context.Context, b *bot.Bot, url string) error {
	if url == "" {
		return errors.New("telegram: empty webhook url")
	}
	ctx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()
	ok, err := b.SetWebhook(ctx, &bot.SetWebhookParams{URL: url})
	if err != nil {
		return fmt.Errorf("telegram: setWebhook: %w", err)
	}
	if !ok {
		return errors.New("telegram: setWebhook returned false")
	}
	logger.Info(ctx, "tg", "set_webhook", slog.String("status", "ok"))
	return nil
}

// DeleteWebhook removes the webhook, keeping pending updates.
func DeleteWebhook(ctx context.Context, b *bot.Bot) error {
	ctx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()
	if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: false}); err != nil {
		return fmt.Errorf("telegram: deleteWebhook: %w", err)
	}
	return nil
}
