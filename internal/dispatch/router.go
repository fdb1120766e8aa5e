// Package dispatch turns one Telegram update into content store calls and a
// deferred reply.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/rawbook/core/logger"
	"github.com/m3rciful/rawbook/core/telegram/middleware"
)

// ErrNoRoute is returned when no rule matches. DefaultRules always matches.
var ErrNoRoute = errors.New("dispatch: no rule matched")

// Handler performs the writes for one update and returns its reply.
type Handler func(ctx context.Context, dc Context) (Action, error)

// Rule maps a predicate over the context to a handler.
type Rule struct {
	Name    string
	Match   func(dc Context) bool
	Handler Handler
}

// DefaultRules is the routing table. Order is precedence: the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "edited", Match: isEdited, Handler: handleEdited},
		{Name: "add", Match: textIs(CommandAdd), Handler: handleAdd},
		{Name: "clear", Match: textIs(CommandClear), Handler: handleClear},
		{Name: "find", Match: textHasPrefix(CommandFind), Handler: handleFind},
		{Name: "photo", Match: hasPhoto, Handler: handlePhoto},
		{Name: "text", Match: always, Handler: handleText},
	}
}

func isEdited(dc Context) bool { return dc.Edited }

func textIs(s string) func(Context) bool {
	return func(dc Context) bool { return dc.Message.Text == s }
}

func textHasPrefix(prefix string) func(Context) bool {
	return func(dc Context) bool { return strings.HasPrefix(dc.Message.Text, prefix) }
}

func hasPhoto(dc Context) bool { return len(dc.Message.Photo) > 0 }

func always(Context) bool { return true }

// Router selects and runs handlers.
type Router struct {
	rules []Rule
}

// NewRouter builds a Router over rules, or over DefaultRules when none are given.
func NewRouter(rules ...Rule) *Router {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Router{rules: rules}
}

// Route returns the first rule matching dc.
func (r *Router) Route(dc Context) (Rule, bool) {
	for _, rule := range r.rules {
		if rule.Match != nil && rule.Match(dc) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Dispatch runs the selected handler and logs a handler.handled summary.
// Panics raised by handlers propagate to the caller.
func (r *Router) Dispatch(ctx context.Context, dc Context) (Action, error) {
	rule, ok := r.Route(dc)
	if !ok {
		return nil, ErrNoRoute
	}
	ctx = logger.WithHandler(ctx, rule.Name)
	start := time.Now()

	action, err := rule.Handler(ctx, dc)

	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("handler", rule.Name),
		slog.String("outcome", outcome),
		slog.Bool("edited", dc.Edited),
		slog.Duration("duration", logger.Took(start)),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", middleware.ErrorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.Component("tg"), level, "handler.handled", attrs...)
	return action, err
}
