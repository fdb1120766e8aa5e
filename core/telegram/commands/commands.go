// Package commands describes entries of the bot command menu.
package commands

import "strings"

// Command is one slash command as shown by Telegram clients.
type Command struct {
	// Name includes the leading slash, e.g. "/add".
	Name        string
	Description string
	Hidden      bool
	Aliases     []string
}

// Keyword returns Name without the leading slash, as setMyCommands expects it.
func (c Command) Keyword() string {
	return strings.TrimPrefix(c.Name, "/")
}
