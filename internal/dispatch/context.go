package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/m3rciful/rawbook/internal/domain"
)

var (
	// ErrUnsupportedUpdate marks updates that carry neither a message nor an edited message.
	ErrUnsupportedUpdate = errors.New("dispatch: update carries no message")
	// ErrNoSender marks messages without a From user, e.g. channel posts.
	ErrNoSender = errors.New("dispatch: message has no sender")
)

// ContentStore is the persistence the handlers run against. *store.Store
// bound to the update's transaction implements it.
type ContentStore interface {
	InstallUser(ctx context.Context, tg models.User) (domain.User, error)
	GetUnboundRaws(ctx context.Context, user domain.User) ([]domain.Raw, error)
	GetRaw(ctx context.Context, user domain.User, messageID int64) (domain.Raw, bool, error)
	InstallRaw(ctx context.Context, user domain.User, messageID int64, description, photoFileID *string) (domain.Raw, error)
	RemoveUnboundRaws(ctx context.Context, user domain.User) ([]domain.Raw, error)
	CreateBook(ctx context.Context, user domain.User) (domain.Book, []domain.Raw, error)
}

// Context is everything a handler may look at. It is passed by value and
// never modified after BuildContext.
type Context struct {
	Bot     Sender
	Edited  bool
	Message *models.Message
	Store   ContentStore
	User    domain.User
}

// ChatID is the chat replies go to.
func (c Context) ChatID() int64 { return c.Message.Chat.ID }

// MessageID is the Telegram message id as stored on raws.
func (c Context) MessageID() int64 { return int64(c.Message.ID) }

// BuildContext picks the message out of upd and installs its sender.
func BuildContext(ctx context.Context, sender Sender, st ContentStore, upd *models.Update) (Context, error) {
	if upd == nil {
		return Context{}, ErrUnsupportedUpdate
	}
	msg, edited := upd.Message, false
	if msg == nil {
		msg, edited = upd.EditedMessage, true
	}
	if msg == nil {
		return Context{}, ErrUnsupportedUpdate
	}
	if msg.From == nil {
		return Context{}, ErrNoSender
	}

	user, err := st.InstallUser(ctx, *msg.From)
	if err != nil {
		return Context{}, fmt.Errorf("dispatch: install user: %w", err)
	}
	return Context{
		Bot:     sender,
		Edited:  edited,
		Message: msg,
		Store:   st,
		User:    user,
	}, nil
}
