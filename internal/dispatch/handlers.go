package dispatch

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/m3rciful/rawbook/core/telegram/commands"
	"github.com/m3rciful/rawbook/internal/domain"
)

// Command keywords recognised by the router.
const (
	CommandAdd   = "/add"
	CommandClear = "/clear"
	CommandFind  = "/find"
)

// CommandMenu lists the commands published to Telegram clients.
func CommandMenu() []commands.Command {
	return []commands.Command{
		{Name: CommandAdd, Description: "build a book from pending raws"},
		{Name: CommandClear, Description: "delete pending raws"},
		{Name: CommandFind, Description: "search raws (not available yet)"},
	}
}

// commandKeywords are the texts an edit cannot turn into content.
var commandKeywords = []string{CommandAdd, CommandClear, CommandFind}

// DefectError reports a message that reached a handler it cannot belong to.
// It is raised with panic: it means the routing table is wrong.
type DefectError struct {
	Handler string
	Reason  string
}

func (e *DefectError) Error() string {
	return fmt.Sprintf("dispatch: %s handler: %s", e.Handler, e.Reason)
}

// Code implements the err_code contract of the logger.
func (e *DefectError) Code() string { return "DEFECT" }

func assertf(cond bool, handler, format string, args ...any) {
	if !cond {
		panic(&DefectError{Handler: handler, Reason: fmt.Sprintf(format, args...)})
	}
}

func handleEdited(ctx context.Context, dc Context) (Action, error) {
	msg := dc.Message
	assertf(dc.Edited, "edited", "message %d is not an edit", msg.ID)

	if slices.Contains(commandKeywords, msg.Text) {
		return Reply(dc.Bot, dc.ChatID(), textCommandNotUpdated), nil
	}
	assertf(msg.Text != "" || msg.Caption != "" || len(msg.Photo) > 0, "edited", "no content in message %d", msg.ID)

	description := msg.Text
	if description == "" {
		description = msg.Caption
	}
	photo := SelectMaxPhoto(msg.Photo)

	prev, found, err := dc.Store.GetRaw(ctx, dc.User, dc.MessageID())
	if err != nil {
		return nil, err
	}
	raw, err := dc.Store.InstallRaw(ctx, dc.User, dc.MessageID(), domain.Ptr(description), domain.Ptr(photo.FileID))
	if err != nil {
		return nil, err
	}
	if found && sameContent(prev, raw) {
		return Reply(dc.Bot, dc.ChatID(), textNothingChanged), nil
	}
	return Reply(dc.Bot, dc.ChatID(), textUpdated(raw)), nil
}

func sameContent(a, b domain.Raw) bool {
	return domain.Deref(a.Description) == domain.Deref(b.Description) &&
		domain.Deref(a.PhotoFileID) == domain.Deref(b.PhotoFileID)
}

func handleAdd(ctx context.Context, dc Context) (Action, error) {
	msg := dc.Message
	assertf(msg.Text == CommandAdd, "add", "unexpected text %q", msg.Text)
	assertf(len(msg.Photo) == 0, "add", "unexpected photo in message %d", msg.ID)

	pending, err := dc.Store.GetUnboundRaws(ctx, dc.User)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return Reply(dc.Bot, dc.ChatID(), textNothingToBuild), nil
	}

	book, absorbed, err := dc.Store.CreateBook(ctx, dc.User)
	if err != nil {
		return nil, err
	}
	return Reply(dc.Bot, dc.ChatID(), textBookCreated(book, absorbed)), nil
}

func handleClear(ctx context.Context, dc Context) (Action, error) {
	msg := dc.Message
	assertf(msg.Text == CommandClear, "clear", "unexpected text %q", msg.Text)
	assertf(len(msg.Photo) == 0, "clear", "unexpected photo in message %d", msg.ID)

	removed, err := dc.Store.RemoveUnboundRaws(ctx, dc.User)
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return Reply(dc.Bot, dc.ChatID(), textNothingToClear), nil
	}
	return Reply(dc.Bot, dc.ChatID(), textCleared(removed)), nil
}

// handleFind acknowledges the query without searching.
func handleFind(_ context.Context, dc Context) (Action, error) {
	msg := dc.Message
	assertf(strings.HasPrefix(msg.Text, CommandFind), "find", "unexpected text %q", msg.Text)
	assertf(len(msg.Photo) == 0, "find", "unexpected photo in message %d", msg.ID)

	return Reply(dc.Bot, dc.ChatID(), textFind(msg.Text)), nil
}

func handlePhoto(ctx context.Context, dc Context) (Action, error) {
	msg := dc.Message
	assertf(len(msg.Photo) > 0, "photo", "no photo in message %d", msg.ID)

	photo := SelectMaxPhoto(msg.Photo)
	raw, err := dc.Store.InstallRaw(ctx, dc.User, dc.MessageID(), domain.Ptr(msg.Caption), domain.Ptr(photo.FileID))
	if err != nil {
		return nil, err
	}
	return Reply(dc.Bot, dc.ChatID(), textSavedPhoto(msg.Caption, photo, raw.ID)), nil
}

func handleText(ctx context.Context, dc Context) (Action, error) {
	msg := dc.Message
	assertf(msg.Text != "", "text", "no text in message %d", msg.ID)
	assertf(len(msg.Photo) == 0, "text", "unexpected photo in message %d", msg.ID)

	raw, err := dc.Store.InstallRaw(ctx, dc.User, dc.MessageID(), domain.Ptr(msg.Text), nil)
	if err != nil {
		return nil, err
	}
	return Reply(dc.Bot, dc.ChatID(), textSavedText(msg.Text, raw.ID)), nil
}
