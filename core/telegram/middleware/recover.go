package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/go-telegram/bot/models"

	"github.com/m3rciful/rawbook/core/logger"
)

// PanicError reports a panic caught while handling an update.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Code is the code of the panic value, or PANIC.
func (e *PanicError) Code() string {
	if err, ok := e.Value.(error); ok {
		if code := ErrorCode(err); code != "" {
			return code
		}
	}
	return "PANIC"
}

// Recover turns a panic in next into a *PanicError and logs it with the stack.
func Recover(next UpdateHandler) UpdateHandler {
	return func(ctx context.Context, upd *models.Update) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			perr := &PanicError{Value: r, Stack: debug.Stack()}
			logger.Error(ctx, "tg", "tg.panic",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(perr.Error(), 512)),
				slog.String("err_code", perr.Code()),
				slog.String("stack", string(perr.Stack)),
			)
			err = perr
		}()
		return next(ctx, upd)
	}
}
