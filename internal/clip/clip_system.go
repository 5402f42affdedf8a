//go:build darwin || windows || linux

package clip

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.design/x/clipboard"
)

type systemBackend struct {
	timeout time.Duration
	sem     chan struct{}

	mu sync.Mutex
	// lost is closed by the clipboard package once another application
	// takes ownership of the payload we published last.
	lost <-chan struct{}
}

// New returns the system clipboard backend, or a headless no-op backend if
// the display environment is unavailable (e.g. a headless server without X11
// or Wayland). clipboard.Init is called here rather than in init() so that
// CLI sub-commands that only talk to the daemon don't trigger the warning.
func New(timeout time.Duration) Port {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return Headless()
	}
	return &systemBackend{
		timeout: timeout,
		sem:     make(chan struct{}, 1),
	}
}

func (b *systemBackend) Name() string { return "system clipboard (golang.design)" }

func (b *systemBackend) GetText(ctx context.Context) (string, bool, error) {
	var data []byte
	if err := call(ctx, b.sem, b.timeout, func() { data = clipboard.Read(clipboard.FmtText) }); err != nil {
		return "", false, err
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

func (b *systemBackend) GetImage(ctx context.Context) ([]byte, bool, error) {
	var data []byte
	if err := call(ctx, b.sem, b.timeout, func() { data = clipboard.Read(clipboard.FmtImage) }); err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

func (b *systemBackend) SetText(ctx context.Context, text string) error {
	return b.write(ctx, clipboard.FmtText, []byte(text))
}

func (b *systemBackend) SetImage(ctx context.Context, png []byte) error {
	return b.write(ctx, clipboard.FmtImage, png)
}

// write publishes data. The clipboard package keeps its own reference to
// data and serves it to requestors until another owner replaces it.
func (b *systemBackend) write(ctx context.Context, f clipboard.Format, data []byte) error {
	var lost <-chan struct{}
	if err := call(ctx, b.sem, b.timeout, func() { lost = clipboard.Write(f, data) }); err != nil {
		return err
	}
	if lost == nil {
		return ErrUnavailable
	}

	b.mu.Lock()
	b.lost = lost
	b.mu.Unlock()

	go func() {
		<-lost
		slog.Debug("clipboard ownership passed to another application")
	}()
	return nil
}

// Owned reports whether this process still owns the clipboard.
func (b *systemBackend) Owned() bool {
	b.mu.Lock()
	lost := b.lost
	b.mu.Unlock()
	if lost == nil {
		return false
	}
	select {
	case <-lost:
		return false
	default:
		return true
	}
}

func (b *systemBackend) Close() {}
