package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-telegram/bot/models"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/rawbook/core/database"
	"github.com/m3rciful/rawbook/core/logger"
	"github.com/m3rciful/rawbook/core/telegram/sender"
	"github.com/m3rciful/rawbook/internal/store"
)

// Queue accepts reply jobs. *sender.Dispatcher implements it.
type Queue interface {
	Enqueue(ctx context.Context, action string, run sender.Job) error
}

// PipelineOptions configures NewPipeline.
type PipelineOptions struct {
	DB     *sqlx.DB
	Bot    Sender
	Router *Router
	// Queue delivers replies asynchronously. Nil runs them inline.
	Queue Queue
}

// Pipeline handles one update end to end.
type Pipeline struct {
	db     *sqlx.DB
	bot    Sender
	router *Router
	queue  Queue
}

// NewPipeline builds a Pipeline; a nil Router means NewRouter().
func NewPipeline(opts PipelineOptions) *Pipeline {
	r := opts.Router
	if r == nil {
		r = NewRouter()
	}
	return &Pipeline{db: opts.DB, bot: opts.Bot, router: r, queue: opts.Queue}
}

// Handle opens a transaction spanning BuildContext and Dispatch and commits
// it before the reply is handed over. Updates without a message or sender
// are skipped without error.
func (p *Pipeline) Handle(ctx context.Context, upd *models.Update) error {
	var action Action
	err := database.InTx(ctx, p.db, func(tx *sqlx.Tx) error {
		dc, err := BuildContext(ctx, p.bot, store.New(tx), upd)
		if err != nil {
			return err
		}
		action, err = p.router.Dispatch(ctx, dc)
		return err
	})
	switch {
	case errors.Is(err, ErrUnsupportedUpdate), errors.Is(err, ErrNoSender):
		logger.Debug(ctx, "tg", "update.skip",
			slog.String("status", "skip"),
			slog.String("reason", err.Error()),
		)
		return nil
	case err != nil:
		return err
	case action == nil:
		return nil
	}
	return p.deliver(ctx, action)
}

func (p *Pipeline) deliver(ctx context.Context, action Action) error {
	if p.queue == nil {
		return action(ctx)
	}
	detached := context.WithoutCancel(ctx)
	err := p.queue.Enqueue(detached, "sendMessage", sender.Job(action))
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("status", "retry"),
			slog.String("action", "sendMessage"),
			slog.String("err", err.Error()),
		)
		return action(detached)
	}
	return err
}
