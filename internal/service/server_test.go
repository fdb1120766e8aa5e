package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/rawbook/core/logger"
)

type fakeBot struct {
	mu      sync.Mutex
	info    *models.WebhookInfo
	err     error
	setURLs []string
}

func (f *fakeBot) GetWebhookInfo(context.Context) (*models.WebhookInfo, error) {
	return f.info, f.err
}

func (f *fakeBot) SetWebhook(_ context.Context, p *bot.SetWebhookParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.setURLs = append(f.setURLs, p.URL)
	return true, nil
}

func newTestHandler(t *testing.T, updates UpdateFunc, b BotAPI) http.Handler {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>rawbook</h1>\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)\n"), 0o644))
	h, err := NewHandler(Options{
		Secret:     "s3cret",
		WebhookURL: "https://bot.example.com/whs3cret",
		StaticDir:  dir,
		Updates:    updates,
		Bot:        b,
	})
	require.NoError(t, err)
	return h
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookDeliversUpdate(t *testing.T) {
	var got *models.Update
	var requestID string
	h := newTestHandler(t, func(ctx context.Context, upd *models.Update) error {
		got = upd
		requestID = logger.RequestIDFrom(ctx)
		return nil
	}, nil)

	rec := post(h, "/whs3cret", `{"update_id":42,"message":{"message_id":7,"date":1,"chat":{"id":1,"type":"private"},"from":{"id":1,"is_bot":false,"first_name":"A"},"text":"hi"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	require.NotNil(t, got)
	assert.EqualValues(t, 42, got.ID)
	require.NotNil(t, got.Message)
	assert.Equal(t, "hi", got.Message.Text)
	assert.NotEmpty(t, requestID)
	assert.Equal(t, requestID, rec.Header().Get(requestIDHeader))
}

func TestWebhookAlwaysReturns200(t *testing.T) {
	cases := map[string]UpdateFunc{
		"error": func(context.Context, *models.Update) error { return errors.New("boom") },
		"panic": func(context.Context, *models.Update) error { panic("handler exploded") },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			h := newTestHandler(t, fn, nil)
			rec := post(h, "/whs3cret", `{"update_id":1}`)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Body.String())
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		called := false
		h := newTestHandler(t, func(context.Context, *models.Update) error { called = true; return nil }, nil)
		rec := post(h, "/whs3cret", `{not json`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
		assert.False(t, called)
	})
}

func TestWebhookRequiresSecret(t *testing.T) {
	called := false
	h := newTestHandler(t, func(context.Context, *models.Update) error { called = true; return nil }, nil)

	rec := post(h, "/whwrong", `{"update_id":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/whs3cret", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.False(t, called)
}

func TestRequestIDIsPropagated(t *testing.T) {
	h := newTestHandler(t, func(context.Context, *models.Update) error { return nil }, nil)
	req := httptest.NewRequest(http.MethodPost, "/whs3cret", strings.NewReader(`{"update_id":1}`))
	req.Header.Set(requestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))
}

func TestWebhookInfoEndpoint(t *testing.T) {
	fb := &fakeBot{info: &models.WebhookInfo{URL: "https://bot.example.com/whs3cret", PendingUpdateCount: 3}}
	h := newTestHandler(t, func(context.Context, *models.Update) error { return nil }, fb)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/get_webhook_info", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"url":"https://bot.example.com/whs3cret"`)
	assert.Contains(t, rec.Body.String(), `"pending_update_count":3`)
}

func TestWebhookInfoEndpointRedactsErrors(t *testing.T) {
	fb := &fakeBot{err: errors.New(`Post "https://api.telegram.org/bot1:abc/getWebhookInfo": EOF`)}
	h := newTestHandler(t, func(context.Context, *models.Update) error { return nil }, fb)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/get_webhook_info", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "1:abc")
}

func TestSetupWebhookEndpoint(t *testing.T) {
	fb := &fakeBot{}
	h := newTestHandler(t, func(context.Context, *models.Update) error { return nil }, fb)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/setup_webhook", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true\n", rec.Body.String())
	assert.Equal(t, []string{"https://bot.example.com/whs3cret"}, fb.setURLs)
}

func TestIndexAndStatic(t *testing.T) {
	h := newTestHandler(t, func(context.Context, *models.Update) error { return nil }, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>rawbook</h1>\n", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)\n", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewHandlerValidates(t *testing.T) {
	_, err := NewHandler(Options{Updates: func(context.Context, *models.Update) error { return nil }})
	assert.Error(t, err)
	_, err = NewHandler(Options{Secret: "x"})
	assert.Error(t, err)
}

func TestRedactPath(t *testing.T) {
	assert.Equal(t, "/wh<redacted>", redactPath("/whs3cret"))
	assert.Equal(t, "/api/v1/get_webhook_info", redactPath("/api/v1/get_webhook_info"))
	assert.Equal(t, "/", redactPath("/"))
}
