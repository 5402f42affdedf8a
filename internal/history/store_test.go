package history

import (
	"context"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipsnap/internal/clip/cliptest"
	"go.klb.dev/clipsnap/internal/codec"
	"go.klb.dev/clipsnap/internal/fingerprint"
)

// fakeClock advances by step on every read.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = byte(i * 7)
	}
	b, err := codec.EncodeLossless(img)
	require.NoError(t, err)
	return b
}

func texts(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func TestOpen_Empty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInsertText(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s := newTestStore(t, WithClock(clock.Now))

	e, err := s.InsertText(ctx, "hello")
	require.NoError(t, err)
	assert.Positive(t, e.ID)
	assert.Equal(t, KindText, e.Kind)
	assert.Equal(t, int64(5), e.ByteSize)
	assert.Equal(t, fingerprint.String("hello"), e.Fingerprint)
	assert.Equal(t, time.Unix(1_700_000_000, 0), e.CreatedAt)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestInsert_AbsentPayloadsAreNull(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	txt, err := s.InsertText(ctx, "plain")
	require.NoError(t, err)
	png := testPNG(t, 2, 2)
	img, err := s.InsertImage(ctx, png, nil)
	require.NoError(t, err)

	nulls := func(id int64) (data, text, thumb bool) {
		t.Helper()
		row := s.db.QueryRowContext(ctx,
			`SELECT content_data IS NULL, text_content IS NULL, thumbnail IS NULL FROM history WHERE id = ?`, id)
		require.NoError(t, row.Scan(&data, &text, &thumb))
		return data, text, thumb
	}
	data, text, thumb := nulls(txt.ID)
	assert.True(t, data)
	assert.False(t, text)
	assert.True(t, thumb)

	data, text, thumb = nulls(img.ID)
	assert.False(t, data)
	assert.True(t, text)
	assert.True(t, thumb)

	got, err := s.Get(ctx, txt.ID)
	require.NoError(t, err)
	assert.Equal(t, "plain", got.Text)
	assert.Nil(t, got.Image)
	assert.Nil(t, got.Preview)
}

func TestInsertText_TooLarge(t *testing.T) {
	s := newTestStore(t, WithMaxTextBytes(8))
	_, err := s.InsertText(context.Background(), "123456789")
	require.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = s.InsertText(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyPayload)
}

func TestInsertImage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	png := testPNG(t, 4, 3)

	e, err := s.InsertImage(ctx, png, []byte("thumb"))
	require.NoError(t, err)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, KindImage, got.Kind)
	assert.Equal(t, png, got.Image)
	assert.Equal(t, []byte("thumb"), got.Preview)
	assert.Equal(t, int64(len(png)), got.ByteSize)
	assert.Empty(t, got.Text)
}

func TestRecent_OrderAndTies(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(100, 0)}
	s := newTestStore(t, WithClock(clock.Now))

	for _, txt := range []string{"a", "b", "c"} {
		_, err := s.InsertText(ctx, txt)
		require.NoError(t, err)
	}
	got, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, texts(got))

	got, err = s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, texts(got))
}

func TestCreatedAt_NeverDecreases(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(5000, 0)}
	s := newTestStore(t, WithClock(clock.Now))

	first, err := s.InsertText(ctx, "first")
	require.NoError(t, err)

	clock.Set(time.Unix(4000, 0))
	second, err := s.InsertText(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "second", got[0].Text)
}

func TestSearch_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(100, 0), step: time.Second}
	s := newTestStore(t, WithClock(clock.Now))

	for _, txt := range []string{"api key alpha", "nothing here", "API KEY beta"} {
		_, err := s.InsertText(ctx, txt)
		require.NoError(t, err)
	}
	_, err := s.InsertImage(ctx, testPNG(t, 2, 2), nil)
	require.NoError(t, err)

	got, err := s.Search(ctx, "api key", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"API KEY beta", "api key alpha"}, texts(got))

	got, err = s.Search(ctx, "api key", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"API KEY beta"}, texts(got))
}

func TestSearch_NonASCII(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, txt := range []string{"Grüße aus KÖLN", "koln", "köln"} {
		_, err := s.InsertText(ctx, txt)
		require.NoError(t, err)
	}
	got, err := s.Search(ctx, "Köln", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"köln", "Grüße aus KÖLN"}, texts(got))
}

func TestSearch_LikeMetacharacters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, txt := range []string{"100% sure", "1000 sure", "snake_case", "snakeXcase"} {
		_, err := s.InsertText(ctx, txt)
		require.NoError(t, err)
	}
	got, err := s.Search(ctx, "100%", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"100% sure"}, texts(got))

	got, err = s.Search(ctx, "e_c", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"snake_case"}, texts(got))
}

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e, err := s.InsertText(ctx, "gone soon")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, e.ID))
	require.NoError(t, s.Delete(ctx, e.ID))
	require.NoError(t, s.Delete(ctx, 424242))

	_, err = s.Get(ctx, e.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCleanup_MaxCount(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0), step: time.Second}
	s := newTestStore(t, WithClock(clock.Now))

	const n = 10
	for i := range n + 5 {
		_, err := s.InsertText(ctx, strings.Repeat("x", i+1))
		require.NoError(t, err)
	}
	removed, err := s.Cleanup(ctx, 0, n)
	require.NoError(t, err)
	assert.Equal(t, int64(5), removed)

	got, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, n)
	assert.Len(t, got[0].Text, n+5)
	assert.Len(t, got[n-1].Text, 6)
}

func TestCleanup_MaxAge(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(0, 0)}
	s := newTestStore(t, WithClock(clock.Now))

	_, err := s.InsertText(ctx, "old")
	require.NoError(t, err)
	clock.Set(time.Unix(0, 0).Add(72 * time.Hour))
	_, err = s.InsertText(ctx, "new")
	require.NoError(t, err)

	removed, err := s.Cleanup(ctx, 48*time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, texts(got))
}

func TestCleanup_Disabled(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.InsertText(ctx, "keep")
	require.NoError(t, err)
	removed, err := s.Cleanup(ctx, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.InsertText(ctx, "t")
	require.NoError(t, err)
	_, err = s.InsertImage(ctx, testPNG(t, 1, 1), nil)
	require.NoError(t, err)

	n, err := s.ClearKind(ctx, KindImage)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Text)
	assert.Zero(t, st.Image)

	n, err = s.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(10, 0), step: time.Second}
	s := newTestStore(t, WithClock(clock.Now))

	_, err := s.InsertText(ctx, "abc")
	require.NoError(t, err)
	png := testPNG(t, 3, 3)
	_, err = s.InsertImage(ctx, png, nil)
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Text)
	assert.Equal(t, int64(1), st.Image)
	assert.Equal(t, int64(3+len(png)), st.Bytes)
	assert.Equal(t, time.Unix(10, 0), st.Oldest)
	assert.Equal(t, time.Unix(11, 0), st.Newest)
}

func TestReopen_KeepsEntriesAndClock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := Open(ctx, path, WithClock(func() time.Time { return time.Unix(900, 0) }))
	require.NoError(t, err)
	_, err = s.InsertText(ctx, "persisted")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, WithClock(func() time.Time { return time.Unix(10, 0) }))
	require.NoError(t, err)
	defer s.Close()

	e, err := s.InsertText(ctx, "later")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(900, 0), e.CreatedAt)

	got, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"later", "persisted"}, texts(got))
}

func TestListener(t *testing.T) {
	ctx := context.Background()
	var changes []Change
	s := newTestStore(t, WithListener(func(c Change) { changes = append(changes, c) }))

	e, err := s.InsertImage(ctx, testPNG(t, 2, 2), []byte("p"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, e.ID))
	require.NoError(t, s.Delete(ctx, e.ID))
	_, err = s.ClearAll(ctx)
	require.NoError(t, err)

	require.Len(t, changes, 3)
	assert.Equal(t, OpAdded, changes[0].Op)
	assert.Nil(t, changes[0].Entry.Image)
	assert.Equal(t, []byte("p"), changes[0].Entry.Preview)
	assert.Equal(t, Change{Op: OpDeleted, ID: e.ID, Count: 1}, changes[1])
	assert.Equal(t, OpCleared, changes[2].Op)
}

func TestRestoreToClipboard_Text(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e, err := s.InsertText(ctx, "restore me")
	require.NoError(t, err)

	cb := cliptest.NewMemory()
	got, err := s.RestoreToClipboard(ctx, e.ID, cb)
	require.NoError(t, err)
	assert.Equal(t, e.CreatedAt, got.CreatedAt)

	txt, ok := cb.Text()
	require.True(t, ok)
	assert.Equal(t, "restore me", txt)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRestoreToClipboard_ImageVerbatim(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	png := testPNG(t, 5, 5)
	e, err := s.InsertImage(ctx, png, nil)
	require.NoError(t, err)

	cb := cliptest.NewMemory()
	_, err = s.RestoreToClipboard(ctx, e.ID, cb)
	require.NoError(t, err)
	img, ok := cb.Image()
	require.True(t, ok)
	assert.Equal(t, png, img)
}

func TestRestoreToClipboard_Corrupt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e, err := s.InsertImage(ctx, []byte("not a png"), nil)
	require.NoError(t, err)

	cb := cliptest.NewMemory()
	_, err = s.RestoreToClipboard(ctx, e.ID, cb)
	require.ErrorIs(t, err, codec.ErrCorruptData)
	assert.Zero(t, cb.Writes())

	// The unreadable entry stays stored.
	_, err = s.Get(ctx, e.ID)
	require.NoError(t, err)
}

func TestRestoreToClipboard_Missing(t *testing.T) {
	_, err := newTestStore(t).RestoreToClipboard(context.Background(), 7, cliptest.NewMemory())
	require.ErrorIs(t, err, ErrNotFound)
}
