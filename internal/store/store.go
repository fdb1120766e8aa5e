// Package store implements the content store: idempotent upserts of users
// and raws, and binding of pending raws into books.
package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/rawbook/core/logger"
	"github.com/m3rciful/rawbook/internal/domain"
)

const (
	userColumns = "id, tg_id, first_name, last_name, username, is_bot"
	bookColumns = "id, user_id"
	rawColumns  = "id, user_id, book_id, message_id, photo_file_id, description"
)

// Store runs every operation as a single statement on q, which is either the
// pool or an open transaction.
type Store struct {
	q sqlx.ExtContext
}

// New binds a Store to q.
func New(q sqlx.ExtContext) *Store {
	return &Store{q: q}
}

// InstallUser inserts the Telegram user or overwrites its profile fields.
func (s *Store) InstallUser(ctx context.Context, tg models.User) (domain.User, error) {
	const op = "install_user"
	query := s.q.Rebind(`INSERT INTO users (` + userColumns + `)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (tg_id) DO UPDATE SET
    first_name = excluded.first_name,
    last_name = excluded.last_name,
    username = excluded.username,
    is_bot = excluded.is_bot
RETURNING ` + userColumns)

	start := time.Now()
	var u domain.User
	err := sqlx.GetContext(ctx, s.q, &u, query,
		uuid.New(), tg.ID, tg.FirstName, domain.Ptr(tg.LastName), domain.Ptr(tg.Username), tg.IsBot)
	s.observe(ctx, op, start, 1, err)
	return u, wrap(op, err)
}

// ListUsers returns every user ordered by Telegram id.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	const op = "list_users"
	start := time.Now()
	var users []domain.User
	err := sqlx.SelectContext(ctx, s.q, &users, `SELECT `+userColumns+` FROM users ORDER BY tg_id`)
	s.observe(ctx, op, start, len(users), err)
	return users, wrap(op, err)
}

// GetUnboundRaws lists the raws of user that belong to no book.
func (s *Store) GetUnboundRaws(ctx context.Context, user domain.User) ([]domain.Raw, error) {
	const op = "get_unbound_raws"
	query := s.q.Rebind(`SELECT ` + rawColumns + ` FROM raws
WHERE user_id = ? AND book_id IS NULL
ORDER BY message_id`)

	start := time.Now()
	var raws []domain.Raw
	err := sqlx.SelectContext(ctx, s.q, &raws, query, user.ID)
	s.observe(ctx, op, start, len(raws), err)
	return raws, wrap(op, err)
}

// GetRaw looks up the raw of user created from messageID.
func (s *Store) GetRaw(ctx context.Context, user domain.User, messageID int64) (domain.Raw, bool, error) {
	const op = "get_raw"
	query := s.q.Rebind(`SELECT ` + rawColumns + ` FROM raws WHERE user_id = ? AND message_id = ?`)

	start := time.Now()
	var r domain.Raw
	err := sqlx.GetContext(ctx, s.q, &r, query, user.ID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		s.observe(ctx, op, start, 0, nil)
		return domain.Raw{}, false, nil
	}
	s.observe(ctx, op, start, 1, err)
	if err != nil {
		return domain.Raw{}, false, wrap(op, err)
	}
	return r, true, nil
}

// InstallRaw inserts a raw for (user, messageID) or overwrites its
// description and photo. The book binding is never touched.
func (s *Store) InstallRaw(ctx context.Context, user domain.User, messageID int64, description, photoFileID *string) (domain.Raw, error) {
	const op = "install_raw"
	query := s.q.Rebind(`INSERT INTO raws (id, user_id, message_id, photo_file_id, description)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id, message_id) DO UPDATE SET
    description = excluded.description,
    photo_file_id = excluded.photo_file_id
RETURNING ` + rawColumns)

	start := time.Now()
	var r domain.Raw
	err := sqlx.GetContext(ctx, s.q, &r, query, uuid.New(), user.ID, messageID, photoFileID, description)
	s.observe(ctx, op, start, 1, err)
	return r, wrap(op, err)
}

// RemoveUnboundRaws deletes the pending raws of user and returns them.
func (s *Store) RemoveUnboundRaws(ctx context.Context, user domain.User) ([]domain.Raw, error) {
	const op = "remove_unbound_raws"
	query := s.q.Rebind(`DELETE FROM raws WHERE user_id = ? AND book_id IS NULL RETURNING ` + rawColumns)

	start := time.Now()
	var raws []domain.Raw
	err := sqlx.SelectContext(ctx, s.q, &raws, query, user.ID)
	s.observe(ctx, op, start, len(raws), err)
	return sortRaws(raws), wrap(op, err)
}

// CreateBook inserts a book for user, binds every pending raw of user to it and
// returns the bound raws. Run it inside a transaction so the two statements
// commit together.
func (s *Store) CreateBook(ctx context.Context, user domain.User) (domain.Book, []domain.Raw, error) {
	const op = "create_book"
	query := s.q.Rebind(`INSERT INTO books (` + bookColumns + `) VALUES (?, ?) RETURNING ` + bookColumns)

	start := time.Now()
	var b domain.Book
	err := sqlx.GetContext(ctx, s.q, &b, query, uuid.New(), user.ID)
	s.observe(ctx, op, start, 1, err)
	if err != nil {
		return domain.Book{}, nil, wrap(op, err)
	}
	raws, err := s.BindRaws(ctx, b)
	if err != nil {
		return domain.Book{}, nil, err
	}
	return b, raws, nil
}

// BindRaws attaches the pending raws of the book owner to book and returns them.
func (s *Store) BindRaws(ctx context.Context, book domain.Book) ([]domain.Raw, error) {
	const op = "bind_raws"
	query := s.q.Rebind(`UPDATE raws SET book_id = ?
WHERE user_id = ? AND book_id IS NULL
RETURNING ` + rawColumns)

	start := time.Now()
	var raws []domain.Raw
	err := sqlx.SelectContext(ctx, s.q, &raws, query, book.ID, book.UserID)
	s.observe(ctx, op, start, len(raws), err)
	return sortRaws(raws), wrap(op, err)
}

// BookRaws lists the raws bound to book.
func (s *Store) BookRaws(ctx context.Context, book domain.Book) ([]domain.Raw, error) {
	const op = "book_raws"
	query := s.q.Rebind(`SELECT ` + rawColumns + ` FROM raws WHERE book_id = ? ORDER BY message_id`)

	start := time.Now()
	var raws []domain.Raw
	err := sqlx.SelectContext(ctx, s.q, &raws, query, book.ID)
	s.observe(ctx, op, start, len(raws), err)
	return raws, wrap(op, err)
}

// sortRaws orders RETURNING output, which has no guaranteed order.
func sortRaws(raws []domain.Raw) []domain.Raw {
	slices.SortFunc(raws, func(a, b domain.Raw) int {
		return cmp.Compare(a.MessageID, b.MessageID)
	})
	return raws
}

func (s *Store) observe(ctx context.Context, op string, start time.Time, rows int, err error) {
	if err != nil {
		logger.Warn(ctx, "store", "store.op",
			slog.String("status", "fail"),
			slog.String("op", op),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err_code", classify(err)),
			slog.String("err", err.Error()),
		)
		return
	}
	if !logger.ShouldSampleDebug() {
		return
	}
	logger.Debug(ctx, "store", "store.op",
		slog.String("status", "ok"),
		slog.String("op", op),
		slog.Int("count", rows),
		slog.Duration("duration", logger.Took(start)),
	)
}
