package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/m3rciful/rawbook/core/logger"
	"github.com/m3rciful/rawbook/core/telegram/commands"
)

// Registry holds the bot command menu.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]commands.Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]commands.Command)}
}

// RegisterCommand adds cmd. Invalid and duplicate names are logged and rejected.
func (r *Registry) RegisterCommand(cmd commands.Command) error {
	if r == nil {
		return errors.New("telegram: nil registry")
	}
	if cmd.Name == "" || cmd.Description == "" {
		logger.Warn(context.Background(), "tg.wire", "register.command.skip",
			slog.String("name", cmd.Name),
			slog.String("reason", "invalid"),
		)
		return fmt.Errorf("telegram: invalid command %q", cmd.Name)
	}
	if cmd.Name[0] != '/' {
		logger.Warn(context.Background(), "tg.wire", "register.command.skip",
			slog.String("name", cmd.Name),
			slog.String("reason", "no_slash_prefix"),
		)
		return fmt.Errorf("telegram: command %q must start with /", cmd.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; exists {
		logger.Warn(context.Background(), "tg.wire", "register.command.duplicate",
			slog.String("name", cmd.Name),
		)
		return fmt.Errorf("telegram: command already registered: %s", cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	return nil
}

// ListCommands returns the menu sorted by name, optionally without hidden entries.
func (r *Registry) ListCommands(visibleOnly bool) []models.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]models.BotCommand, 0, len(r.commands))
	for _, cmd := range r.commands {
		if visibleOnly && cmd.Hidden {
			continue
		}
		list = append(list, models.BotCommand{Command: cmd.Keyword(), Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Command < list[j].Command })
	return list
}

// LookupCommand finds a command by name or alias, with or without the slash.
func (r *Registry) LookupCommand(name string) (commands.Command, bool) {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return cmd, true
	}
	for _, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == name || "/"+alias == name {
				return cmd, true
			}
		}
	}
	return commands.Command{}, false
}

// Publish sets the visible commands as the bot menu via setMyCommands.
func (r *Registry) Publish(ctx context.Context, b *bot.Bot) error {
	list := r.ListCommands(true)
	ctx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()
	if _, err := b.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: list}); err != nil {
		logger.Error(ctx, "tg.wire", "register.commands.set_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("telegram: setMyCommands: %w", err)
	}
	logger.Info(ctx, "tg.wire", "register.commands.set",
		slog.String("status", "ok"),
		slog.Int("count", len(list)),
	)
	return nil
}
