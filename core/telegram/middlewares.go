package telegram

import "github.com/m3rciful/rawbook/core/telegram/middleware"

// DefaultMiddlewares builds the shared update chain. Recover runs inside Logger.
func DefaultMiddlewares() []middleware.Func {
	return []middleware.Func{
		middleware.Logger,
		middleware.Recover,
	}
}
