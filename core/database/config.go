package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// Supported driver names as registered with database/sql.
const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverSQLite   = "sqlite"
)

// Config holds database connection settings.
// URL wins over the individual components when both are set.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	URL            string `yaml:"url" envconfig:"DATABASE_URL"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrateOnStart bool   `yaml:"migrate_on_start" envconfig:"DB_MIGRATE_ON_START"`
}

// DriverName resolves the database/sql driver, falling back to the URL scheme.
func (c Config) DriverName() string {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	if d == "" {
		if u, err := url.Parse(strings.TrimSpace(c.URL)); err == nil {
			d = strings.ToLower(u.Scheme)
		}
	}
	switch d {
	case "pgx", "pgx5":
		return DriverPGX
	case "sqlite", "sqlite3", "file":
		return DriverSQLite
	case "", "postgres", "postgresql":
		return DriverPostgres
	}
	return d
}

// Validate checks the combination of settings without opening anything.
func (c Config) Validate() error {
	switch c.DriverName() {
	case DriverPostgres, DriverPGX:
		_, err := c.postgresURL()
		return err
	case DriverSQLite:
		if strings.TrimSpace(c.Path) == "" {
			return errors.New("database.path is required for sqlite")
		}
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q; allowed: postgres, pgx, sqlite", c.Driver)
	}
}

// DSN returns the data source name passed to sql.Open.
func (c Config) DSN() (string, error) {
	switch c.DriverName() {
	case DriverPostgres, DriverPGX:
		return c.postgresURL()
	case DriverSQLite:
		if err := c.Validate(); err != nil {
			return "", err
		}
		return "file:" + filepath.ToSlash(c.Path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
	default:
		return "", c.Validate()
	}
}

// MigrateURL returns the golang-migrate database URL for the configured driver.
func (c Config) MigrateURL() (string, error) {
	switch c.DriverName() {
	case DriverPostgres:
		return c.postgresURL()
	case DriverPGX:
		u, err := c.postgresURL()
		if err != nil {
			return "", err
		}
		return "pgx5" + strings.TrimPrefix(u, "postgres"), nil
	case DriverSQLite:
		if err := c.Validate(); err != nil {
			return "", err
		}
		abs, err := filepath.Abs(c.Path)
		if err != nil {
			return "", fmt.Errorf("resolve sqlite path: %w", err)
		}
		return "sqlite://" + filepath.ToSlash(abs), nil
	default:
		return "", c.Validate()
	}
}

// Redacted returns a printable target description without credentials.
func (c Config) Redacted() string {
	if c.DriverName() == DriverSQLite {
		return c.Path
	}
	raw, err := c.postgresURL()
	if err != nil {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Redacted()
}

// postgresURL normalizes URL or assembles it from the components.
func (c Config) postgresURL() (string, error) {
	if raw := strings.TrimSpace(c.URL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse database url: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "postgres", "postgresql", "pgx", "pgx5":
			u.Scheme = "postgres"
		default:
			return "", fmt.Errorf("database url scheme %q is not postgres", u.Scheme)
		}
		return u.String(), nil
	}
	return c.componentsURL()
}

func (c Config) componentsURL() (string, error) {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	user := strings.TrimSpace(c.User)
	if host == "" && port != "" {
		return "", errors.New("database.host is required when database.port is set")
	}
	if user == "" && c.Password != "" {
		return "", errors.New("database.user is required when database.password is set")
	}
	if host == "" && user != "" {
		return "", errors.New("database.host is required when database.user is set")
	}
	if host == "" && strings.TrimSpace(c.Name) == "" {
		return "", errors.New("database url or host is required")
	}

	u := url.URL{Scheme: "postgres", Host: host}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	}
	switch {
	case user != "" && c.Password != "":
		u.User = url.UserPassword(user, c.Password)
	case user != "":
		u.User = url.User(user)
	}
	if name := strings.TrimSpace(c.Name); name != "" {
		u.Path = "/" + name
	}
	if mode := strings.TrimSpace(c.SSLMode); mode != "" {
		u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	}
	return u.String(), nil
}
