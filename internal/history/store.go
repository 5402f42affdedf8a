// Package history persists clipboard observations and captures in an
// embedded SQLite database and answers recency and text-search queries.
//
// Writes are serialised by a single-writer lock; reads run concurrently on
// pooled WAL connections. Entries are never updated once inserted.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.klb.dev/clipsnap/internal/fingerprint"
)

// DefaultMaxTextBytes is the default ceiling for text payloads.
const DefaultMaxTextBytes = 10 << 20

var (
	// ErrNotFound is returned when no entry has the requested id.
	ErrNotFound = errors.New("history entry not found")
	// ErrPayloadTooLarge is returned for text above the configured ceiling.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrEmptyPayload is returned for empty text or image payloads.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrStorage wraps failures of the underlying database.
	ErrStorage = errors.New("history storage error")
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMaxTextBytes sets the text payload ceiling. Values <= 0 keep the
// default.
func WithMaxTextBytes(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxText = n
		}
	}
}

// WithListener registers fn to be called after every committed change.
// fn runs on the writer's goroutine and must not block.
func WithListener(fn func(Change)) Option {
	return func(s *Store) { s.listener = fn }
}

// Store is the history database.
type Store struct {
	db       *sql.DB
	now      func() time.Time
	maxText  int
	listener func(Change)

	// mu is the single-writer lock. lastCreated is the newest created_at
	// handed out, so timestamps never go backwards when the wall clock does.
	mu          sync.Mutex
	lastCreated int64
}

// Open opens the store at path, creating the database and applying
// migrations as needed.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, now: time.Now, maxText: DefaultMaxTextBytes}
	for _, o := range opts {
		o(s)
	}
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(created_at), 0) FROM history`).Scan(&s.lastCreated); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: load clock: %w", ErrStorage, err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// MaxTextBytes returns the text payload ceiling.
func (s *Store) MaxTextBytes() int { return s.maxText }

// InsertText stores a text entry. Text above the ceiling is rejected with
// ErrPayloadTooLarge rather than truncated.
func (s *Store) InsertText(ctx context.Context, text string) (Entry, error) {
	if text == "" {
		return Entry{}, ErrEmptyPayload
	}
	if len(text) > s.maxText {
		return Entry{}, fmt.Errorf("%w: text is %d bytes, limit %d", ErrPayloadTooLarge, len(text), s.maxText)
	}
	e := Entry{
		Kind:        KindText,
		Text:        text,
		ByteSize:    int64(len(text)),
		Fingerprint: fingerprint.String(text),
	}
	return s.insert(ctx, e)
}

// InsertImage stores an image entry. png holds the losslessly encoded image
// and preview its thumbnail.
func (s *Store) InsertImage(ctx context.Context, png, preview []byte) (Entry, error) {
	if len(png) == 0 {
		return Entry{}, ErrEmptyPayload
	}
	e := Entry{
		Kind:        KindImage,
		Image:       png,
		Preview:     preview,
		ByteSize:    int64(len(png)),
		Fingerprint: fingerprint.Sum(png),
	}
	return s.insert(ctx, e)
}

func (s *Store) insert(ctx context.Context, e Entry) (Entry, error) {
	// A nil []byte binds as an empty BLOB, not NULL, so absent payloads are
	// passed as untyped nil.
	var text, data, thumb any
	if e.Kind == KindText {
		text = e.Text
	} else {
		data = e.Image
	}
	if len(e.Preview) > 0 {
		thumb = e.Preview
	}

	s.mu.Lock()
	created := max(s.now().Unix(), s.lastCreated)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO history (content_kind, content_data, text_content, thumbnail, created_at, file_size, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), data, text, thumb, created, e.ByteSize, int64(e.Fingerprint))
	if err == nil {
		e.ID, err = res.LastInsertId()
	}
	if err != nil {
		s.mu.Unlock()
		return Entry{}, fmt.Errorf("%w: insert %s: %w", ErrStorage, e.Kind, err)
	}
	s.lastCreated = created
	s.mu.Unlock()

	e.CreatedAt = time.Unix(created, 0)
	sum := e.Summary()
	s.notify(Change{Op: OpAdded, Entry: &sum, Count: 1})
	return e, nil
}

const selectColumns = `id, content_kind, content_data, text_content, thumbnail, created_at, file_size, fingerprint`

// Get returns the entry with id, including its full payload.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM history WHERE id = ?`, id)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: get %d: %w", ErrStorage, id, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return entries[0], nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM history ORDER BY created_at DESC, id DESC LIMIT ?`,
		sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: recent: %w", ErrStorage, err)
	}
	return scanEntries(rows)
}

// Search returns text entries containing query, ignoring case, newest
// first. Image entries never match. limit <= 0 returns every match.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if isASCII(query) {
		// SQLite's LIKE folds ASCII case only, which is exact here.
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+selectColumns+` FROM history
			WHERE content_kind = 'text' AND text_content LIKE ? ESCAPE '\'
			ORDER BY created_at DESC, id DESC LIMIT ?`,
			"%"+escapeLike(query)+"%", sqlLimit(limit))
		if err != nil {
			return nil, fmt.Errorf("%w: search: %w", ErrStorage, err)
		}
		return scanEntries(rows)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM history
		WHERE content_kind = 'text'
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrStorage, err)
	}
	all, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	out := all[:0]
	for _, e := range all {
		if strings.Contains(strings.ToLower(e.Text), needle) {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Delete removes the entry with id. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	n, err := s.exec(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete %d: %w", ErrStorage, id, err)
	}
	if n > 0 {
		s.notify(Change{Op: OpDeleted, ID: id, Count: n})
	}
	return nil
}

// ClearAll removes every entry and returns how many were removed.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	n, err := s.exec(ctx, `DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("%w: clear: %w", ErrStorage, err)
	}
	s.notify(Change{Op: OpCleared, Count: n})
	return n, nil
}

// ClearKind removes every entry of kind and returns how many were removed.
func (s *Store) ClearKind(ctx context.Context, kind Kind) (int64, error) {
	n, err := s.exec(ctx, `DELETE FROM history WHERE content_kind = ?`, string(kind))
	if err != nil {
		return 0, fmt.Errorf("%w: clear %s: %w", ErrStorage, kind, err)
	}
	s.notify(Change{Op: OpCleared, Kind: kind, Count: n})
	return n, nil
}

// Cleanup deletes entries older than maxAge and entries beyond the newest
// maxCount. A zero maxAge or maxCount disables that policy.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration, maxCount int) (int64, error) {
	var removed int64

	s.mu.Lock()
	err := func() error {
		if maxAge > 0 {
			cutoff := s.now().Add(-maxAge).Unix()
			res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, cutoff)
			if err != nil {
				return fmt.Errorf("by age: %w", err)
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		if maxCount > 0 {
			res, err := s.db.ExecContext(ctx, `
				DELETE FROM history WHERE id NOT IN (
					SELECT id FROM history ORDER BY created_at DESC, id DESC LIMIT ?
				)`, maxCount)
			if err != nil {
				return fmt.Errorf("by count: %w", err)
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		return nil
	}()
	s.mu.Unlock()

	if removed > 0 {
		slog.Info("history cleanup", "removed", removed, "max_age", maxAge, "max_count", maxCount)
		s.notify(Change{Op: OpPruned, Count: removed})
	}
	if err != nil {
		return removed, fmt.Errorf("%w: cleanup %w", ErrStorage, err)
	}
	return removed, nil
}

// Stats returns entry counts and payload totals.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		st             Stats
		oldest, newest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(content_kind = 'text'), 0),
			COALESCE(SUM(content_kind = 'image'), 0),
			COALESCE(SUM(file_size), 0),
			MIN(created_at),
			MAX(created_at)
		FROM history`).Scan(&st.Text, &st.Image, &st.Bytes, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %w", ErrStorage, err)
	}
	if oldest.Valid {
		st.Oldest = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		st.Newest = time.Unix(newest.Int64, 0)
	}
	return st, nil
}

// exec runs a write statement under the writer lock and returns the number
// of affected rows.
func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) notify(c Change) {
	if s.listener != nil {
		s.listener(c)
	}
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			kind    string
			text    sql.NullString
			created int64
			fp      int64
		)
		if err := rows.Scan(&e.ID, &kind, &e.Image, &text, &e.Preview, &created, &e.ByteSize, &fp); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrStorage, err)
		}
		e.Kind = Kind(kind)
		e.Text = text.String
		e.CreatedAt = time.Unix(created, 0)
		e.Fingerprint = fingerprint.Digest(uint64(fp))
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %w", ErrStorage, err)
	}
	return out, nil
}

// sqlLimit maps "no limit" onto SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
