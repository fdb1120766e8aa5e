package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/rawbook/core/telegram/sender"
	"github.com/m3rciful/rawbook/internal/domain"
	"github.com/m3rciful/rawbook/internal/testutil"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*bot.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, p)
	return &models.Message{}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		out = append(out, p.Text)
	}
	return out
}

func (f *fakeSender) last(t *testing.T) *bot.SendMessageParams {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type recordingQueue struct {
	jobs []sender.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, _ string, run sender.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, run)
	return nil
}

var alice = testutil.TGUser(7, "Alice")

func newPipeline(t *testing.T) (*Pipeline, *fakeSender, *sqlx.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	fs := &fakeSender{}
	return NewPipeline(PipelineOptions{DB: db, Bot: fs}), fs, db
}

func message(msg *models.Message) *models.Update {
	return &models.Update{ID: int64(msg.ID), Message: msg}
}

func edited(msg *models.Message) *models.Update {
	return &models.Update{ID: int64(msg.ID), EditedMessage: msg}
}

func boundCount(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM raws WHERE book_id IS NOT NULL"))
	return n
}

func TestSelectMaxPhoto(t *testing.T) {
	sizes := []models.PhotoSize{
		testutil.Photo("a", 10, 100, 100),
		testutil.Photo("b", 20, 50, 50),
		testutil.Photo("c", 20, 60, 40),
	}
	assert.Equal(t, "c", SelectMaxPhoto(sizes).FileID)

	tied := []models.PhotoSize{
		testutil.Photo("first", 5, 10, 10),
		testutil.Photo("second", 5, 10, 10),
	}
	assert.Equal(t, "first", SelectMaxPhoto(tied).FileID)

	byHeight := []models.PhotoSize{
		testutil.Photo("low", 5, 10, 9),
		testutil.Photo("high", 5, 10, 11),
	}
	assert.Equal(t, "high", SelectMaxPhoto(byHeight).FileID)

	empty := SelectMaxPhoto(nil)
	assert.Empty(t, empty.FileID)
	assert.Zero(t, empty.Width)
	assert.Zero(t, empty.Height)
}

func TestRoutePrecedence(t *testing.T) {
	router := NewRouter()
	photo := testutil.Photo("p", 1, 1, 1)

	cases := []struct {
		name   string
		edited bool
		msg    *models.Message
		want   string
	}{
		{"edited add", true, testutil.TextMessage(alice, 1, "/add"), "edited"},
		{"edited photo", true, testutil.PhotoMessage(alice, 1, "", photo), "edited"},
		{"add", false, testutil.TextMessage(alice, 1, "/add"), "add"},
		{"clear", false, testutil.TextMessage(alice, 1, "/clear"), "clear"},
		{"find with query", false, testutil.TextMessage(alice, 1, "/find cats"), "find"},
		{"find prefix", false, testutil.TextMessage(alice, 1, "/findx"), "find"},
		{"photo", false, testutil.PhotoMessage(alice, 1, "/add", photo), "photo"},
		{"add with suffix", false, testutil.TextMessage(alice, 1, "/add now"), "text"},
		{"plain", false, testutil.TextMessage(alice, 1, "hello"), "text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule, ok := router.Route(Context{Edited: tc.edited, Message: tc.msg})
			require.True(t, ok)
			assert.Equal(t, tc.want, rule.Name)
		})
	}
}

func TestRouteNoMatch(t *testing.T) {
	router := NewRouter(Rule{Name: "never", Match: func(Context) bool { return false }})
	_, ok := router.Route(Context{Message: testutil.TextMessage(alice, 1, "x")})
	assert.False(t, ok)
	_, err := router.Dispatch(context.Background(), Context{Message: testutil.TextMessage(alice, 1, "x")})
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestAddWithoutRawsCreatesNoBook(t *testing.T) {
	p, fs, db := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 1, "/add"))))

	assert.Equal(t, []string{textNothingToBuild}, fs.texts())
	assert.Zero(t, testutil.Count(t, db, "books"))
	assert.Equal(t, 1, testutil.Count(t, db, "users"))
	assert.Equal(t, int64(7), fs.last(t).ChatID)
}

func TestAddBindsPendingRaws(t *testing.T) {
	p, fs, db := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 1, "first"))))
	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 2, "second"))))
	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 3, "/add"))))

	assert.Equal(t, 1, testutil.Count(t, db, "books"))
	assert.Equal(t, 2, testutil.Count(t, db, "raws"))
	assert.Equal(t, 2, boundCount(t, db))

	reply := fs.last(t).Text
	assert.Contains(t, reply, "created book ")
	assert.Contains(t, reply, "from 2 raws:\n#1 first\n#2 second")

	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 4, "later"))))
	assert.Equal(t, 2, boundCount(t, db))
	assert.Equal(t, 3, testutil.Count(t, db, "raws"))
}

func TestEditedCommandIsNotUpdated(t *testing.T) {
	p, fs, db := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 1, "note"))))
	require.NoError(t, p.Handle(ctx, edited(testutil.TextMessage(alice, 2, "/add"))))

	assert.Equal(t, textCommandNotUpdated, fs.last(t).Text)
	assert.Zero(t, testutil.Count(t, db, "books"))
	assert.Zero(t, boundCount(t, db))
}

func TestEditedContentUpdatesRaw(t *testing.T) {
	p, fs, db := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 5, "a"))))
	require.NoError(t, p.Handle(ctx, edited(testutil.TextMessage(alice, 5, "b"))))
	assert.Equal(t, "updated: #5 b", fs.last(t).Text)

	require.NoError(t, p.Handle(ctx, edited(testutil.TextMessage(alice, 5, "b"))))
	assert.Equal(t, textNothingChanged, fs.last(t).Text)

	var desc string
	require.NoError(t, db.Get(&desc, "SELECT description FROM raws"))
	assert.Equal(t, "b", desc)
	assert.Equal(t, 1, testutil.Count(t, db, "raws"))
}

func TestEditedPhotoCaption(t *testing.T) {
	p, fs, _ := newPipeline(t)
	ctx := context.Background()

	photo := testutil.PhotoMessage(alice, 9, "old", testutil.Photo("small", 1, 10, 10), testutil.Photo("big", 9, 90, 90))
	require.NoError(t, p.Handle(ctx, message(photo)))

	photo.Caption = "new"
	require.NoError(t, p.Handle(ctx, edited(photo)))
	assert.Equal(t, "updated: #9 photo: new", fs.last(t).Text)
}

func TestPhotoStoresLargestVariant(t *testing.T) {
	p, fs, db := newPipeline(t)
	ctx := context.Background()

	msg := testutil.PhotoMessage(alice, 3, "cover",
		testutil.Photo("a", 10, 100, 100),
		testutil.Photo("b", 20, 50, 50),
		testutil.Photo("c", 20, 60, 40),
	)
	require.NoError(t, p.Handle(ctx, message(msg)))

	var raw domain.Raw
	require.NoError(t, db.Get(&raw, db.Rebind("SELECT id, user_id, book_id, message_id, photo_file_id, description FROM raws WHERE message_id = ?"), 3))
	assert.Equal(t, "c", domain.Deref(raw.PhotoFileID))
	assert.Equal(t, "cover", domain.Deref(raw.Description))

	reply := fs.last(t).Text
	assert.True(t, strings.HasPrefix(reply, `got photo "cover"`))
	assert.Contains(t, reply, `"file_id":"c"`)
	assert.True(t, strings.HasSuffix(reply, "saved as raw photo "+raw.ID.String()))
}

func TestTextIsStored(t *testing.T) {
	p, fs, db := newPipeline(t)

	require.NoError(t, p.Handle(context.Background(), message(testutil.TextMessage(alice, 1, "hello"))))

	var raw domain.Raw
	require.NoError(t, db.Get(&raw, "SELECT id, user_id, book_id, message_id, photo_file_id, description FROM raws"))
	assert.Nil(t, raw.PhotoFileID)
	assert.Equal(t, "got text: hello, saved as raw text "+raw.ID.String(), fs.last(t).Text)
}

func TestClearRemovesPendingRaws(t *testing.T) {
	p, fs, db := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 1, "one"))))
	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 2, "two"))))
	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 3, "/clear"))))

	assert.Equal(t, "cleared 2 raws:\n#1 one\n#2 two", fs.last(t).Text)
	assert.Zero(t, testutil.Count(t, db, "raws"))

	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 4, "/clear"))))
	assert.Equal(t, textNothingToClear, fs.last(t).Text)
}

func TestFindIsAcknowledged(t *testing.T) {
	p, fs, db := newPipeline(t)

	require.NoError(t, p.Handle(context.Background(), message(testutil.TextMessage(alice, 1, "/find cats"))))

	assert.Equal(t, `search complete: you searched for "/find cats", but search is not available yet`, fs.last(t).Text)
	assert.Zero(t, testutil.Count(t, db, "raws"))
}

func TestMessageWithoutContentIsDefect(t *testing.T) {
	p, fs, db := newPipeline(t)
	msg := testutil.TextMessage(alice, 1, "")

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_ = p.Handle(context.Background(), message(msg))
	}()

	err, ok := recovered.(error)
	require.True(t, ok, "expected a panic carrying an error, got %v", recovered)
	var defect *DefectError
	require.ErrorAs(t, err, &defect)
	assert.Equal(t, "text", defect.Handler)
	assert.Equal(t, "DEFECT", defect.Code())

	assert.Empty(t, fs.texts())
	assert.Zero(t, testutil.Count(t, db, "users"), "user insert must roll back")
}

func TestEditedLocationIsDefect(t *testing.T) {
	p, fs, db := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, message(testutil.TextMessage(alice, 1, "note"))))

	live := testutil.TextMessage(alice, 11, "")
	live.Location = &models.Location{Latitude: 59.43, Longitude: 24.75, LivePeriod: 900}

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_ = p.Handle(ctx, edited(live))
	}()

	err, ok := recovered.(error)
	require.True(t, ok, "expected a panic carrying an error, got %v", recovered)
	var defect *DefectError
	require.ErrorAs(t, err, &defect)
	assert.Equal(t, "edited", defect.Handler)

	assert.Equal(t, 1, testutil.Count(t, db, "raws"))
	var n int
	require.NoError(t, db.Get(&n, db.Rebind("SELECT COUNT(*) FROM raws WHERE message_id = ?"), 11))
	assert.Zero(t, n)
	assert.Len(t, fs.texts(), 1)
}

func TestUnsupportedUpdatesAreSkipped(t *testing.T) {
	p, fs, db := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, &models.Update{ID: 1}))
	anonymous := &models.Message{ID: 2, Chat: models.Chat{ID: -100}, Text: "post"}
	require.NoError(t, p.Handle(ctx, message(anonymous)))

	assert.Empty(t, fs.texts())
	assert.Zero(t, testutil.Count(t, db, "users"))
}

func TestReplyRunsAfterCommit(t *testing.T) {
	db := testutil.OpenDB(t)
	fs := &fakeSender{}
	q := &recordingQueue{}
	p := NewPipeline(PipelineOptions{DB: db, Bot: fs, Queue: q})

	require.NoError(t, p.Handle(context.Background(), message(testutil.TextMessage(alice, 1, "hello"))))
	require.Len(t, q.jobs, 1)
	assert.Empty(t, fs.texts(), "reply must wait for the queue")
	assert.Equal(t, 1, testutil.Count(t, db, "raws"))

	require.NoError(t, q.jobs[0](context.Background()))
	assert.Len(t, fs.texts(), 1)
}

func TestReplyFallsBackInlineWhenQueueFull(t *testing.T) {
	db := testutil.OpenDB(t)
	fs := &fakeSender{}
	p := NewPipeline(PipelineOptions{DB: db, Bot: fs, Queue: &recordingQueue{err: sender.ErrQueueFull}})

	require.NoError(t, p.Handle(context.Background(), message(testutil.TextMessage(alice, 1, "hello"))))
	assert.Len(t, fs.texts(), 1)
}

func TestFailedSendKeepsWrites(t *testing.T) {
	p, fs, db := newPipeline(t)
	fs.err = errors.New("telegram down")

	err := p.Handle(context.Background(), message(testutil.TextMessage(alice, 1, "hello")))
	require.Error(t, err)
	assert.Equal(t, 1, testutil.Count(t, db, "raws"))
}

func TestListRawsTruncates(t *testing.T) {
	raws := make([]domain.Raw, 12)
	for i := range raws {
		raws[i] = domain.Raw{MessageID: int64(i + 1), Description: domain.Ptr("x")}
	}
	out := listRaws(raws)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "#10 x", lines[9])
	assert.Equal(t, "… and 2 more", lines[10])

	long := capText(strings.Repeat("я", maxMessageUnits+10))
	assert.Equal(t, maxMessageUnits, len([]rune(long)))
}

func TestCapTextCountsUTF16Units(t *testing.T) {
	fits := strings.Repeat("😀", maxMessageUnits/2)
	assert.Equal(t, fits, capText(fits))

	capped := capText(strings.Repeat("😀", maxMessageUnits))
	assert.LessOrEqual(t, utf16Len(capped), maxMessageUnits)
	assert.True(t, strings.HasSuffix(capped, "…"))
	assert.Equal(t, maxMessageUnits/2-1, strings.Count(capped, "😀"))

	mixed := capText("a" + strings.Repeat("😀", maxMessageUnits/2))
	assert.Equal(t, maxMessageUnits, utf16Len(mixed))
	assert.True(t, strings.HasSuffix(mixed, "😀…"))
}
