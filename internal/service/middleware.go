package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/rawbook/core/logger"
)

const requestIDHeader = "X-Request-Id"

// statusRecorder remembers the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.status = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

func recorder(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// Safe recovers panics from next, logs them and answers 200 with an empty
// body if nothing was written yet.
func Safe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorder(w)
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			logger.Error(r.Context(), "http", "http.panic",
				slog.String("status", "fail"),
				slog.String("method", r.Method),
				slog.String("path", redactPath(r.URL.Path)),
				slog.String("err", logger.SanitizeLimit(fmt.Sprint(p), 512)),
				slog.String("err_code", "PANIC"),
				slog.String("stack", string(debug.Stack())),
			)
			if !rec.written {
				rec.WriteHeader(http.StatusOK)
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

// RequestID propagates X-Request-Id, generating one when absent.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := logger.SanitizeLimit(strings.TrimSpace(r.Header.Get(requestIDHeader)), 64)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)
		ctx = logger.WithLogger(ctx, logger.Component("http"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLog writes one http.request line per request.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := recorder(w)
		next.ServeHTTP(rec, r)

		status := "ok"
		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			status = "fail"
			level = slog.LevelError
		}
		logger.LogEvent(r.Context(), logger.Component("http"), level, "http.request",
			slog.String("status", status),
			slog.String("method", r.Method),
			slog.String("path", redactPath(r.URL.Path)),
			slog.Int("http_status", rec.status),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}

// redactPath hides the webhook secret, which is part of the path.
func redactPath(p string) string {
	if strings.HasPrefix(p, "/wh") && len(p) > len("/wh") {
		return "/wh<redacted>"
	}
	return p
}
