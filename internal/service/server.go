// Package service exposes the webhook endpoint and the informational HTTP API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/m3rciful/rawbook/core/config"
	"github.com/m3rciful/rawbook/core/logger"
	"github.com/m3rciful/rawbook/core/telegram/sender"
)

const (
	maxUpdateBytes    = 1 << 20
	defaultReqTimeout = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// UpdateFunc consumes one decoded update.
type UpdateFunc func(ctx context.Context, upd *models.Update) error

// BotAPI is the part of the Bot API client the informational endpoints proxy.
type BotAPI interface {
	GetWebhookInfo(ctx context.Context) (*models.WebhookInfo, error)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
}

// Options configures NewHandler.
type Options struct {
	Secret         string
	WebhookURL     string
	StaticDir      string
	RequestTimeout time.Duration
	Updates        UpdateFunc
	Bot            BotAPI
}

// NewHandler builds the HTTP surface wrapped in request id, logging and Safe.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Secret == "" {
		return nil, errors.New("service: empty webhook secret")
	}
	if opts.Updates == nil {
		return nil, errors.New("service: nil update handler")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultReqTimeout
	}

	mux := http.NewServeMux()
	mux.Handle("POST "+config.WebhookPath(opts.Secret), &webhook{updates: opts.Updates, timeout: opts.RequestTimeout})
	if opts.Bot != nil {
		api := &api{bot: opts.Bot, webhookURL: opts.WebhookURL}
		mux.HandleFunc("GET /api/v1/get_webhook_info", api.getWebhookInfo)
		mux.HandleFunc("PUT /api/v1/setup_webhook", api.setupWebhook)
	}
	if opts.StaticDir != "" {
		index := filepath.Join(opts.StaticDir, "index.html")
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, index)
		})
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	return RequestID(RequestLog(Safe(mux))), nil
}

// NewServer wraps h in an http.Server listening on addr.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http", "http.listen", slog.String("status", "ok"), slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("service: listen %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("service: shutdown: %w", err)
	}
	logger.Info(ctx, "http", "http.shutdown", slog.String("status", "ok"))
	return nil
}

type webhook struct {
	updates UpdateFunc
	timeout time.Duration
}

// ServeHTTP always answers 200 with an empty body. Failures are only logged.
func (h *webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	var upd models.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&upd); err != nil {
		logger.Warn(r.Context(), "http", "webhook.decode",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	// the update middleware has already logged err
	_ = h.updates(ctx, &upd)
	w.WriteHeader(http.StatusOK)
}

type api struct {
	bot        BotAPI
	webhookURL string
}

func (a *api) getWebhookInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.bot.GetWebhookInfo(r.Context())
	if err != nil {
		errorResponse(r.Context(), w, http.StatusBadGateway, err)
		return
	}
	jsonResponse(r.Context(), w, http.StatusOK, info)
}

func (a *api) setupWebhook(w http.ResponseWriter, r *http.Request) {
	if a.webhookURL == "" {
		errorResponse(r.Context(), w, http.StatusServiceUnavailable, errors.New("webhook public url is not configured"))
		return
	}
	ok, err := a.bot.SetWebhook(r.Context(), &bot.SetWebhookParams{URL: a.webhookURL})
	if err != nil {
		errorResponse(r.Context(), w, http.StatusBadGateway, err)
		return
	}
	logger.Info(r.Context(), "http", "set_webhook", slog.String("status", "ok"), slog.Bool("result", ok))
	jsonResponse(r.Context(), w, http.StatusOK, ok)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn(ctx, "http", "http.encode", slog.String("status", "fail"), slog.String("err", err.Error()))
	}
}

func errorResponse(ctx context.Context, w http.ResponseWriter, status int, err error) {
	logger.Warn(ctx, "http", "http.api",
		slog.String("status", "fail"),
		slog.Int("http_status", status),
		slog.String("err", logger.SanitizeLimit(sender.SanitizeError(err), 256)),
	)
	jsonResponse(ctx, w, status, errorBody{Error: http.StatusText(status), Message: sender.SanitizeError(err)})
}
