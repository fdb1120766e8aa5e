// Package testutil provides database fixtures and Telegram payload builders for tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/rawbook/core/database"
)

// DatabaseConfig returns a fresh SQLite file in t.TempDir, or PostgreSQL when
// TEST_DATABASE_URL is set.
func DatabaseConfig(t testing.TB) database.Config {
	t.Helper()
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return database.Config{URL: url, MaxConnections: 10}
	}
	return database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "rawbook.db"),
	}
}

// OpenDB migrates an empty database and returns a pool closed at cleanup.
func OpenDB(t testing.TB) *sqlx.DB {
	t.Helper()
	db, _ := OpenDBWithConfig(t)
	return db
}

// OpenDBWithConfig is OpenDB that also returns the configuration used.
func OpenDBWithConfig(t testing.TB) (*sqlx.DB, database.Config) {
	t.Helper()
	ctx := context.Background()
	cfg := DatabaseConfig(t)

	require.NoError(t, database.MigrateUp(ctx, cfg))
	db, err := database.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if cfg.DriverName() != database.DriverSQLite {
		_, err := db.ExecContext(ctx, "TRUNCATE users, books, raws CASCADE")
		require.NoError(t, err)
	}
	return db, cfg
}

// Count returns the number of rows in table.
func Count(t testing.TB, db *sqlx.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

// TGUser builds a Telegram sender.
func TGUser(id int64, firstName string) models.User {
	return models.User{ID: id, FirstName: firstName}
}

// TextMessage builds a private chat text message from user.
func TextMessage(user models.User, messageID int, text string) *models.Message {
	u := user
	return &models.Message{
		ID:   messageID,
		From: &u,
		Chat: models.Chat{ID: user.ID, Type: models.ChatTypePrivate},
		Text: text,
	}
}

// PhotoMessage builds a private chat photo message from user.
func PhotoMessage(user models.User, messageID int, caption string, sizes ...models.PhotoSize) *models.Message {
	msg := TextMessage(user, messageID, "")
	msg.Caption = caption
	msg.Photo = sizes
	return msg
}

// Photo builds one photo variant.
func Photo(fileID string, size, width, height int) models.PhotoSize {
	return models.PhotoSize{
		FileID:       fileID,
		FileUniqueID: "u" + fileID,
		FileSize:     size,
		Width:        width,
		Height:       height,
	}
}
