// Package middleware wraps update handlers with correlation, logging and panic capture.
package middleware

import (
	"context"

	"github.com/go-telegram/bot/models"
)

// UpdateHandler processes one Telegram update.
type UpdateHandler func(ctx context.Context, upd *models.Update) error

// Func decorates an UpdateHandler.
type Func func(next UpdateHandler) UpdateHandler

// Chain applies mws around h; the first middleware is the outermost.
func Chain(h UpdateHandler, mws ...Func) UpdateHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
