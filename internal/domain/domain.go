// Package domain holds the persisted rows of the bot.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// User is a Telegram account that talked to the bot. TgID is unique.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TgID      int64     `db:"tg_id" json:"tg_id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  *string   `db:"last_name" json:"last_name,omitempty"`
	Username  *string   `db:"username" json:"username,omitempty"`
	IsBot     bool      `db:"is_bot" json:"is_bot"`
}

// Book groups raws that were pending when /add ran.
type Book struct {
	ID     uuid.UUID `db:"id" json:"id"`
	UserID uuid.UUID `db:"user_id" json:"user_id"`
}

// Raw is one text or photo message. (UserID, MessageID) is unique.
type Raw struct {
	ID          uuid.UUID     `db:"id" json:"id"`
	UserID      uuid.UUID     `db:"user_id" json:"user_id"`
	BookID      uuid.NullUUID `db:"book_id" json:"book_id"`
	MessageID   int64         `db:"message_id" json:"message_id"`
	PhotoFileID *string       `db:"photo_file_id" json:"photo_file_id,omitempty"`
	Description *string       `db:"description" json:"description,omitempty"`
}

// Bound reports whether the raw belongs to a book.
func (r Raw) Bound() bool { return r.BookID.Valid }

// IsPhoto reports whether the raw carries a photo.
func (r Raw) IsPhoto() bool { return r.PhotoFileID != nil && *r.PhotoFileID != "" }

// Kind is "photo" or "text".
func (r Raw) Kind() string {
	if r.IsPhoto() {
		return "photo"
	}
	return "text"
}

// Summary renders the raw for reply lists.
func (r Raw) Summary() string {
	desc := ""
	if r.Description != nil {
		desc = *r.Description
	}
	if r.IsPhoto() {
		if desc == "" {
			return fmt.Sprintf("#%d photo", r.MessageID)
		}
		return fmt.Sprintf("#%d photo: %s", r.MessageID, desc)
	}
	return fmt.Sprintf("#%d %s", r.MessageID, desc)
}

// Ptr returns a pointer to s, or nil when s is empty.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
