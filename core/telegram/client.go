package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/m3rciful/rawbook/core/logger"
	"github.com/m3rciful/rawbook/core/telegram/sender"
)

// DefaultLongPollTimeout is used when ClientOptions.PollTimeout is zero.
const DefaultLongPollTimeout = 10 * time.Second

// UpdateFunc consumes one update. Errors are already logged by the caller's
// middleware and only reported here.
type UpdateFunc func(ctx context.Context, upd *models.Update) error

// ClientOptions configures NewClient.
type ClientOptions struct {
	Token       string
	APIURL      string
	PollTimeout time.Duration
	// OnUpdate receives updates pulled by long polling. Nil drops them.
	OnUpdate UpdateFunc
}

// NewClient builds a Bot API client without contacting Telegram.
func NewClient(opts ClientOptions) (*bot.Bot, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram: empty token")
	}
	poll := opts.PollTimeout
	if poll <= 0 {
		poll = DefaultLongPollTimeout
	}

	options := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(poll, BuildHTTPClient(poll)),
		bot.WithErrorsHandler(func(err error) {
			logger.Warn(context.Background(), "tg", "bot.error",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(sender.SanitizeError(err), 256)),
			)
		}),
		bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, upd *models.Update) {
			if opts.OnUpdate == nil || upd == nil {
				return
			}
			_ = opts.OnUpdate(ctx, upd)
		}),
	}
	if u := strings.TrimRight(strings.TrimSpace(opts.APIURL), "/"); u != "" {
		options = append(options, bot.WithServerURL(u))
	}

	b, err := bot.New(opts.Token, options...)
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return b, nil
}
