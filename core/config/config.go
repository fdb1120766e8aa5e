package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/rawbook/core/database"
	"github.com/m3rciful/rawbook/core/logger"
)

const (
	// RunModeWebhook receives updates through POST /wh<secret> only.
	RunModeWebhook = "webhook"
	// RunModeLongpoll additionally pulls updates with getUpdates.
	RunModeLongpoll = "longpoll"
)

// TelegramConfig holds Bot API settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"TELEGRAM_BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// APIURL overrides https://api.telegram.org, used against local Bot API servers.
	APIURL string `yaml:"api_url" envconfig:"TELEGRAM_API_URL"`
	// PublishCommands controls the setMyCommands call at startup.
	PublishCommands bool `yaml:"publish_commands" envconfig:"TELEGRAM_PUBLISH_COMMANDS"`
}

// WebhookConfig specifies the HTTP surface.
type WebhookConfig struct {
	PublicURL string `yaml:"public_url" envconfig:"WEBHOOK_PUBLIC_URL"`
	Secret    string `yaml:"secret" envconfig:"WEBHOOK_SECRET"`
	Listen    string `yaml:"listen" envconfig:"HOST"`
	Port      int    `yaml:"port" envconfig:"PORT"`
	// RequestTimeoutSeconds bounds a single webhook request including its transaction.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" envconfig:"REQUEST_TIMEOUT"`
}

// StaticConfig points at the directory with index.html and assets.
type StaticConfig struct {
	Dir string `yaml:"dir" envconfig:"STATIC_DIR"`
}

// SenderConfig tunes the asynchronous reply dispatcher.
type SenderConfig struct {
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
}

// Config aggregates every configuration section of the service.
type Config struct {
	Telegram TelegramConfig  `yaml:"telegram"`
	Webhook  WebhookConfig   `yaml:"webhook"`
	Static   StaticConfig    `yaml:"static"`
	Sender   SenderConfig    `yaml:"sender"`
	Logging  logger.Config   `yaml:"logging"`
	Database database.Config `yaml:"database"`
}

// Load reads .env (if present), the YAML file at path (if non-empty) and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}

	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	if cfg.Telegram.Token == "" {
		return errors.New("telegram token is required")
	}
	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	switch rm {
	case "":
		rm = RunModeWebhook
	case "polling":
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.PublicURL) == "" {
			return errors.New("webhook.public_url is required when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return errors.New("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	if cfg.Telegram.APIURL != "" {
		if _, err := url.ParseRequestURI(cfg.Telegram.APIURL); err != nil {
			return fmt.Errorf("invalid telegram.api_url: %w", err)
		}
		cfg.Telegram.APIURL = strings.TrimRight(cfg.Telegram.APIURL, "/")
	}

	cfg.Webhook.Secret = strings.TrimSpace(cfg.Webhook.Secret)
	if cfg.Webhook.Secret == "" {
		return errors.New("webhook.secret is required")
	}
	if strings.ContainsAny(cfg.Webhook.Secret, "/?#{} \t") {
		return errors.New("webhook.secret must be a single path segment without braces or spaces")
	}
	if pu := strings.TrimSpace(cfg.Webhook.PublicURL); pu != "" {
		u, err := url.Parse(pu)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid webhook.public_url %q", cfg.Webhook.PublicURL)
		}
		cfg.Webhook.PublicURL = strings.TrimRight(pu, "/")
	}
	if strings.TrimSpace(cfg.Webhook.Listen) == "" {
		cfg.Webhook.Listen = "0.0.0.0"
	}
	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = 8000
	}
	if cfg.Webhook.Port < 0 || cfg.Webhook.Port > 65535 {
		return fmt.Errorf("webhook.port %d is out of range", cfg.Webhook.Port)
	}
	if cfg.Webhook.RequestTimeoutSeconds <= 0 {
		cfg.Webhook.RequestTimeoutSeconds = 30
	}

	if strings.TrimSpace(cfg.Static.Dir) == "" {
		cfg.Static.Dir = "static"
	}

	if cfg.Sender.QueueSize <= 0 {
		cfg.Sender.QueueSize = 256
	}
	if cfg.Sender.Workers <= 0 {
		cfg.Sender.Workers = 4
	}
	if cfg.Sender.MaxRetries < 0 {
		cfg.Sender.MaxRetries = 0
	}
	if cfg.Sender.RetryBackoffMS <= 0 {
		cfg.Sender.RetryBackoffMS = 500
	}

	cfg.Database.Driver = cfg.Database.DriverName()
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 10
	}
	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// WebhookURL is the address registered with setWebhook.
func (c *Config) WebhookURL() string {
	return c.Webhook.PublicURL + WebhookPath(c.Webhook.Secret)
}

// WebhookPath is the route that receives updates.
func WebhookPath(secret string) string {
	return "/wh" + secret
}

// ListenAddr is the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Webhook.Listen, c.Webhook.Port)
}

// RequestTimeout bounds a single webhook request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Webhook.RequestTimeoutSeconds) * time.Second
}

// RetryBackoff is the base delay between reply send attempts.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Sender.RetryBackoffMS) * time.Millisecond
}

// LongPollTimeout returns the getUpdates timeout; zero selects the client default.
func (c *Config) LongPollTimeout() time.Duration {
	return time.Duration(c.Telegram.LongPollTimeoutSeconds) * time.Second
}
