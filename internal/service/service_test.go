package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipsnap/internal/capture"
	"go.klb.dev/clipsnap/internal/clip"
	"go.klb.dev/clipsnap/internal/clip/cliptest"
	"go.klb.dev/clipsnap/internal/codec"
	"go.klb.dev/clipsnap/internal/history"
	"go.klb.dev/clipsnap/internal/hub"
	"go.klb.dev/clipsnap/internal/message"
	"go.klb.dev/clipsnap/internal/screen"
	"go.klb.dev/clipsnap/internal/wire"
)

type fakeCapturer struct {
	res     capture.Result
	err     error
	active  bool
	cancels int
}

func (f *fakeCapturer) TriggerCapture(context.Context) (capture.Result, error) { return f.res, f.err }
func (f *fakeCapturer) Active() bool                                           { return f.active }

func (f *fakeCapturer) Cancel() bool {
	f.cancels++
	return f.active
}

// hangingCapturer blocks in TriggerCapture until its context ends.
type hangingCapturer struct {
	started chan struct{}
	ended   chan error
}

func (h *hangingCapturer) TriggerCapture(ctx context.Context) (capture.Result, error) {
	close(h.started)
	<-ctx.Done()
	h.ended <- ctx.Err()
	return capture.Result{Outcome: capture.OutcomeCancelled}, nil
}

func (h *hangingCapturer) Active() bool { return false }
func (h *hangingCapturer) Cancel() bool { return false }

type fixture struct {
	svc   *Service
	store *history.Store
	cb    *cliptest.Memory
	cap   *fakeCapturer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := hub.New()
	store, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"),
		history.WithListener(h.Publish))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, cb: cliptest.NewMemory(), cap: &fakeCapturer{}}
	f.svc = New(Deps{
		Store:         store,
		Capture:       f.cap,
		Clipboard:     f.cb,
		Owner:         f.cb,
		Hub:           h,
		Retention:     NewRetention(0, 3),
		Version:       "test",
		Database:      "history.db",
		ClipboardName: f.cb.Name(),
	})
	return f
}

// dial serves one connection on a pipe and returns the client end.
func (f *fixture) dial(t *testing.T) *wire.Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv, cli := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.svc.handleConn(ctx, srv)
	}()
	wc := wire.New(cli)
	t.Cleanup(func() {
		_ = wc.Close()
		cancel()
		<-done
	})
	return wc
}

func (f *fixture) call(t *testing.T, req *message.Message) *message.Message {
	t.Helper()
	wc := f.dial(t)
	require.NoError(t, wc.WriteMsg(req))
	resp, err := wc.ReadMsg()
	require.NoError(t, err)
	return resp
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	b, err := codec.EncodeLossless(img)
	require.NoError(t, err)
	return b
}

func TestRecent_StripsImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	png := testPNG(t, 4, 4)
	_, err := f.store.InsertImage(ctx, png, png)
	require.NoError(t, err)
	_, err = f.store.InsertText(ctx, "hello")
	require.NoError(t, err)

	resp := f.call(t, &message.Message{Type: message.TypeRecent, Limit: 10})
	require.Equal(t, message.TypeResult, resp.Type)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "hello", resp.Entries[0].Text)
	assert.Equal(t, history.KindImage, resp.Entries[1].Kind)
	assert.Nil(t, resp.Entries[1].Image)
	assert.Equal(t, png, resp.Entries[1].Preview)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, s := range []string{"API key", "grocery list", "api docs"} {
		_, err := f.store.InsertText(ctx, s)
		require.NoError(t, err)
	}

	resp := f.call(t, &message.Message{Type: message.TypeSearch, Query: "api"})
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "api docs", resp.Entries[0].Text)
	assert.Equal(t, "API key", resp.Entries[1].Text)
}

func TestGet_FullPayload(t *testing.T) {
	f := newFixture(t)
	png := testPNG(t, 4, 4)
	e, err := f.store.InsertImage(context.Background(), png, png)
	require.NoError(t, err)

	resp := f.call(t, &message.Message{Type: message.TypeGet, ID: e.ID})
	require.NotNil(t, resp.Entry)
	assert.Equal(t, png, resp.Entry.Image)

	resp = f.call(t, &message.Message{Type: message.TypeGet, ID: e.ID + 1})
	assert.Equal(t, message.TypeError, resp.Type)
	assert.Equal(t, message.CodeNotFound, resp.Code)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	e, err := f.store.InsertText(context.Background(), "restore me")
	require.NoError(t, err)

	resp := f.call(t, &message.Message{Type: message.TypeRestore, ID: e.ID})
	require.Equal(t, message.TypeResult, resp.Type)
	assert.Equal(t, e.ID, resp.Entry.ID)

	text, ok := f.cb.Text()
	require.True(t, ok)
	assert.Equal(t, "restore me", text)
}

func TestRestore_ClipboardTimeout(t *testing.T) {
	f := newFixture(t)
	e, err := f.store.InsertText(context.Background(), "x")
	require.NoError(t, err)
	f.cb.FailWrites(clip.ErrTimeout)

	resp := f.call(t, &message.Message{Type: message.TypeRestore, ID: e.ID})
	assert.Equal(t, message.CodeTimeout, resp.Code)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	e, err := f.store.InsertText(context.Background(), "gone")
	require.NoError(t, err)

	for range 2 {
		resp := f.call(t, &message.Message{Type: message.TypeDelete, ID: e.ID})
		assert.Equal(t, message.TypeResult, resp.Type)
	}
	_, err = f.store.Get(context.Background(), e.ID)
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.InsertText(ctx, "a")
	require.NoError(t, err)
	png := testPNG(t, 2, 2)
	_, err = f.store.InsertImage(ctx, png, png)
	require.NoError(t, err)

	resp := f.call(t, &message.Message{Type: message.TypeClear, Kind: "video"})
	assert.Equal(t, message.CodeBadRequest, resp.Code)

	resp = f.call(t, &message.Message{Type: message.TypeClear, Kind: history.KindImage})
	assert.EqualValues(t, 1, resp.Removed)

	resp = f.call(t, &message.Message{Type: message.TypeClear})
	assert.EqualValues(t, 1, resp.Removed)
}

func TestCleanup_UsesRetention(t *testing.T) {
	f := newFixture(t)
	for i := range 5 {
		_, err := f.store.InsertText(context.Background(), fmt.Sprint(i))
		require.NoError(t, err)
	}

	resp := f.call(t, &message.Message{Type: message.TypeCleanup})
	assert.EqualValues(t, 2, resp.Removed)

	f.svc.Retention.Set(0, 1)
	resp = f.call(t, &message.Message{Type: message.TypeCleanup})
	assert.EqualValues(t, 2, resp.Removed)
}

func TestCapture(t *testing.T) {
	f := newFixture(t)
	png := testPNG(t, 4, 4)
	f.cap.res = capture.Result{
		Outcome: capture.OutcomeCaptured,
		Entry:   history.Entry{ID: 7, Kind: history.KindImage, Image: png, Preview: png},
	}

	resp := f.call(t, &message.Message{Type: message.TypeCapture})
	require.NotNil(t, resp.Capture)
	assert.Equal(t, capture.OutcomeCaptured, resp.Capture.Outcome)
	assert.EqualValues(t, 7, resp.Capture.Entry.ID)
	assert.Nil(t, resp.Capture.Entry.Image)
}

func TestCapture_Outcomes(t *testing.T) {
	f := newFixture(t)

	f.cap.res = capture.Result{Outcome: capture.OutcomeCancelled}
	resp := f.call(t, &message.Message{Type: message.TypeCapture})
	assert.Equal(t, capture.OutcomeCancelled, resp.Capture.Outcome)
	assert.Nil(t, resp.Capture.Entry)

	f.cap.res = capture.Result{Outcome: capture.OutcomePartial, Err: errors.New("disk full")}
	resp = f.call(t, &message.Message{Type: message.TypeCapture})
	assert.Equal(t, capture.OutcomePartial, resp.Capture.Outcome)
	assert.Equal(t, "disk full", resp.Capture.Warning)

	f.cap.res, f.cap.err = capture.Result{}, capture.ErrInProgress
	resp = f.call(t, &message.Message{Type: message.TypeCapture})
	assert.Equal(t, message.CodeInProgress, resp.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.InsertText(context.Background(), "x")
	require.NoError(t, err)
	f.cap.active = true

	resp := f.call(t, &message.Message{Type: message.TypeStatus})
	require.NotNil(t, resp.Status)
	assert.Equal(t, "test", resp.Status.Version)
	assert.Equal(t, "memory", resp.Status.Clipboard)
	assert.EqualValues(t, 1, resp.Status.Store.Text)
	assert.True(t, resp.Status.CaptureActive)
	assert.False(t, resp.Status.Monitor.Running)
	assert.False(t, resp.Status.ClipboardOwned)

	require.NoError(t, f.cb.SetText(context.Background(), "ours"))
	resp = f.call(t, &message.Message{Type: message.TypeStatus})
	assert.True(t, resp.Status.ClipboardOwned)

	f.cb.PutText("someone else's")
	resp = f.call(t, &message.Message{Type: message.TypeStatus})
	assert.False(t, resp.Status.ClipboardOwned)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)

	resp := f.call(t, &message.Message{Type: message.TypeCancel})
	require.Equal(t, message.TypeResult, resp.Type)
	assert.False(t, resp.Cancelled)

	f.cap.active = true
	resp = f.call(t, &message.Message{Type: message.TypeCancel})
	assert.True(t, resp.Cancelled)
	assert.Equal(t, 2, f.cap.cancels)
}

func TestCapture_ClientHangUpCancels(t *testing.T) {
	f := newFixture(t)
	hc := &hangingCapturer{started: make(chan struct{}), ended: make(chan error, 1)}
	f.svc.Capture = hc

	wc := f.dial(t)
	require.NoError(t, wc.WriteMsg(&message.Message{Type: message.TypeCapture}))
	<-hc.started
	require.NoError(t, wc.Close())

	select {
	case err := <-hc.ended:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("capture kept running after the client hung up")
	}
}

func TestUnknownRequest(t *testing.T) {
	f := newFixture(t)
	resp := f.call(t, &message.Message{Type: "PASTE"})
	assert.Equal(t, message.CodeBadRequest, resp.Code)
}

func TestWatch(t *testing.T) {
	f := newFixture(t)
	wc := f.dial(t)
	require.NoError(t, wc.WriteMsg(&message.Message{
		Type: message.TypeWatch,
		Ops:  []history.Op{history.OpAdded, history.OpDeleted},
	}))
	ack, err := wc.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, message.TypeResult, ack.Type)
	assert.Equal(t, 1, f.svc.Hub.Len())

	ctx := context.Background()
	e, err := f.store.InsertText(ctx, "watched")
	require.NoError(t, err)
	_, err = f.store.ClearKind(ctx, history.KindImage)
	require.NoError(t, err)
	require.NoError(t, f.store.Delete(ctx, e.ID))

	wc.SetReadDeadline(2 * time.Second)
	ev, err := wc.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, message.TypeEvent, ev.Type)
	assert.Equal(t, history.OpAdded, ev.Change.Op)
	assert.Equal(t, "watched", ev.Change.Entry.Text)

	ev, err = wc.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, history.OpDeleted, ev.Change.Op)
	assert.Equal(t, e.ID, ev.Change.ID)

	require.NoError(t, wc.Close())
	assert.Eventually(t, func() bool { return f.svc.Hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServe_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("unix", filepath.Join(t.TempDir(), "s.sock"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Serve(ctx, ln) }()

	c, err := net.Dial("unix", ln.Addr().String())
	require.NoError(t, err)
	wc := wire.New(c)
	require.NoError(t, wc.WriteMsg(&message.Message{Type: message.TypeStatus}))
	resp, err := wc.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, message.TypeResult, resp.Type)
	_ = wc.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want message.Code
	}{
		{capture.ErrInProgress, message.CodeInProgress},
		{fmt.Errorf("%w: %w", capture.ErrDevice, screen.ErrCaptureUnavailable), message.CodeDevice},
		{fmt.Errorf("%w: %w", capture.ErrDevice, screen.ErrTimeout), message.CodeTimeout},
		{screen.ErrInvalidRegion, message.CodeInvalidRegion},
		{history.ErrPayloadTooLarge, message.CodePayloadTooLarge},
		{codec.ErrCorruptData, message.CodeCorruptData},
		{history.ErrNotFound, message.CodeNotFound},
		{fmt.Errorf("%w: disk I/O", history.ErrStorage), message.CodeStorage},
		{clip.ErrUnavailable, message.CodeDevice},
		{errors.New("boom"), message.CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codeOf(tt.err), "%v", tt.err)
	}
}
