package dispatch

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Sender is the part of the Bot API client replies need. *bot.Bot implements it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Action sends one reply. Handlers build it and return it unrun; the
// pipeline runs it once the transaction has committed.
type Action func(ctx context.Context) error

// Reply returns an Action sending text to chatID.
func Reply(s Sender, chatID int64, text string) Action {
	return func(ctx context.Context) error {
		_, err := s.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
		return err
	}
}
