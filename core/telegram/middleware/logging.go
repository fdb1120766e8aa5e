package middleware

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/m3rciful/rawbook/core/logger"
)

// Logger attaches rid and update identifiers to ctx, logs the receipt
// (sampled, debug) and one update.handled summary line.
func Logger(next UpdateHandler) UpdateHandler {
	return func(ctx context.Context, upd *models.Update) error {
		if upd == nil {
			return next(ctx, upd)
		}
		start := time.Now()
		msg, kind := Message(upd)

		var chatID, userID int64
		if msg != nil {
			chatID = msg.Chat.ID
			if msg.From != nil {
				userID = msg.From.ID
			}
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		ctx = logger.WithRID(ctx, rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))

		if logger.ShouldSampleDebug() {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("op", kind),
			}
			if msg != nil {
				attrs = append(attrs, slog.String("chat_type", string(msg.Chat.Type)))
				if msg.From != nil && msg.From.Username != "" {
					attrs = append(attrs, slog.String("username", logger.SanitizeLimit(msg.From.Username, 64)))
				}
				if t := msg.Text; t != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
				} else if len(msg.Photo) > 0 {
					attrs = append(attrs, slog.Int("photos", len(msg.Photo)))
				}
			}
			logger.LogEvent(ctx, nil, slog.LevelDebug, "update.received", attrs...)
		}

		err := next(ctx, upd)

		attrs := []slog.Attr{
			slog.String("status", logger.Status(err)),
			slog.String("op", kind),
			slog.Duration("duration", logger.Took(start)),
		}
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelError
			attrs = append(attrs,
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
				slog.String("err_code", ErrorCode(err)),
			)
		}
		logger.LogEvent(ctx, nil, level, "update.done", attrs...)
		return err
	}
}

// Message returns the message carried by upd and its kind.
func Message(upd *models.Update) (*models.Message, string) {
	switch {
	case upd == nil:
		return nil, "none"
	case upd.Message != nil:
		return upd.Message, "message"
	case upd.EditedMessage != nil:
		return upd.EditedMessage, "edited_message"
	default:
		return nil, "other"
	}
}

// ErrorCode derives a log code from err: the first Code() in the chain,
// otherwise the upper-cased type name.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}
