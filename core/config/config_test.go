package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/rawbook/core/database"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  run_mode: webhook
webhook:
  public_url: "https://bot.example.com/"
  secret: s3cr3t
  port: 9000
logging:
  level: debug
  format: kv
database:
  driver: sqlite
  path: /tmp/rawbook.db
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "fromenv")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("DB_MAX_CONNECTIONS", "3")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, RunModeWebhook, cfg.Telegram.RunMode)
	assert.Equal(t, "fromenv", cfg.Webhook.Secret)
	assert.Equal(t, "https://bot.example.com", cfg.Webhook.PublicURL)
	assert.Equal(t, "https://bot.example.com/whfromenv", cfg.WebhookURL())
	assert.Equal(t, 9000, cfg.Webhook.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Database.MaxConnections)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "1:x")
	t.Setenv("TELEGRAM_RUN_MODE", "polling")
	t.Setenv("WEBHOOK_SECRET", "abc")
	t.Setenv("DATABASE_URL", "postgresql://u:p@localhost:5432/rawbook")
	t.Setenv("PORT", "8081")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 8081, cfg.Webhook.Port)
	assert.Equal(t, "/whabc", WebhookPath(cfg.Webhook.Secret))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "1:x"},
		Webhook:  WebhookConfig{PublicURL: "https://example.com", Secret: "sec"},
		Database: databaseSQLite(),
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeWebhook, cfg.Telegram.RunMode)
	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr())
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, "static", cfg.Static.Dir)
	assert.Equal(t, 256, cfg.Sender.QueueSize)
	assert.Equal(t, 4, cfg.Sender.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff())
	assert.Equal(t, 10, cfg.Database.MaxConnections)
	assert.Zero(t, cfg.LongPollTimeout())
}

func TestNormalizeErrors(t *testing.T) {
	cases := map[string]func(*Config){
		"missing token":       func(c *Config) { c.Telegram.Token = " " },
		"bad run mode":        func(c *Config) { c.Telegram.RunMode = "push" },
		"webhook without url": func(c *Config) { c.Webhook.PublicURL = "" },
		"relative public url": func(c *Config) { c.Webhook.PublicURL = "example.com/path" },
		"missing secret":      func(c *Config) { c.Webhook.Secret = "" },
		"secret with slash":   func(c *Config) { c.Webhook.Secret = "a/b" },
		"port out of range":   func(c *Config) { c.Webhook.Port = 70000 },
		"negative timeout": func(c *Config) {
			c.Telegram.RunMode = RunModeLongpoll
			c.Telegram.LongPollTimeoutSeconds = -1
		},
		"unknown driver": func(c *Config) { c.Database.Driver = "mysql" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, Normalize(cfg))
		})
	}
	assert.Error(t, Normalize(nil))
}

func TestNormalizeLongpollWithoutPublicURL(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "longpoll"
	cfg.Webhook.PublicURL = ""
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}

func databaseSQLite() database.Config {
	return database.Config{Driver: "sqlite", Path: "rawbook.db"}
}
