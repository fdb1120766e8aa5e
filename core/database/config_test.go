package database

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDriverName(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{}, DriverPostgres},
		{Config{Driver: "PostgreSQL"}, DriverPostgres},
		{Config{Driver: "pgx"}, DriverPGX},
		{Config{Driver: "sqlite3"}, DriverSQLite},
		{Config{URL: "postgresql://u@h/db"}, DriverPostgres},
		{Config{URL: "pgx5://u@h/db"}, DriverPGX},
		{Config{Driver: "mysql"}, "mysql"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.cfg.DriverName(), "%+v", tc.cfg)
	}
}

func TestConfigDSNFromComponents(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "p@ss", Name: "rawbook", SSLMode: "disable"}
	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://bot:p%40ss@db:5432/rawbook?sslmode=disable", dsn)

	cfg = Config{Host: "localhost", Name: "rawbook"}
	dsn, err = cfg.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/rawbook", dsn)
}

func TestConfigDSNComponentErrors(t *testing.T) {
	cases := map[string]Config{
		"port without host":   {Port: "5432", Name: "x"},
		"password no user":    {Host: "h", Password: "secret"},
		"user without host":   {User: "u", Name: "x"},
		"nothing configured":  {},
		"foreign url scheme":  {URL: "mysql://u@h/db"},
		"sqlite without path": {Driver: "sqlite"},
	}
	for name, cfg := range cases {
		_, err := cfg.DSN()
		assert.Error(t, err, name)
	}
}

func TestConfigURLNormalization(t *testing.T) {
	cfg := Config{URL: "postgresql://u:p@h:5432/db?sslmode=require", Host: "ignored"}
	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h:5432/db?sslmode=require", dsn)

	cfg.Driver = "pgx"
	migrateURL, err := cfg.MigrateURL()
	require.NoError(t, err)
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=require", migrateURL)

	assert.Equal(t, "postgres://u:xxxxx@h:5432/db?sslmode=require", cfg.Redacted())
}

func TestConfigSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.db")
	cfg := Config{Driver: "sqlite", Path: path}

	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "file:"+filepath.ToSlash(path)+"?"))
	assert.Contains(t, dsn, "_pragma=foreign_keys(1)")

	migrateURL, err := cfg.MigrateURL()
	require.NoError(t, err)
	assert.Equal(t, "sqlite://"+filepath.ToSlash(path), migrateURL)
	assert.Equal(t, path, cfg.Redacted())
}

func TestParseVersionAndCount(t *testing.T) {
	files := []string{"000001_init.up.sql", "000002_more.up.sql", "000003_last.up.sql"}
	assert.EqualValues(t, 2, parseVersion(files[1]))
	assert.Equal(t, 2, countBetween(files, 1, 3))
	assert.Equal(t, 3, countBetween(files, 3, 0))
	assert.Equal(t, 0, countBetween(files, 2, 2))
	assert.Equal(t, []string{"000001_init.up.sql"}, listMigrationFiles())
}
