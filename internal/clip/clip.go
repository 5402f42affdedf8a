// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the implementation:
//
//	clip_system.go  : Linux, macOS, Windows via golang.design/x/clipboard
//	clip_other.go   : every other platform: headless stub
//	clip_headless.go: fallback when the display is unavailable
//
// Two payload kinds are supported: UTF-8 text and PNG images.
package clip

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds every clipboard call.
const DefaultTimeout = 2 * time.Second

var (
	// ErrUnavailable is returned by writes when no clipboard can be reached.
	ErrUnavailable = errors.New("clipboard unavailable")
	// ErrTimeout is returned when a clipboard call exceeds its deadline.
	ErrTimeout = errors.New("clipboard call timed out")
)

// Reader is the read half of a clipboard. Reads are side-effect free. A kind
// that is not on the clipboard is reported as ok == false with a nil error.
type Reader interface {
	GetText(ctx context.Context) (text string, ok bool, err error)
	GetImage(ctx context.Context) (png []byte, ok bool, err error)
}

// Writer publishes payloads and claims clipboard ownership.
type Writer interface {
	SetText(ctx context.Context, text string) error
	SetImage(ctx context.Context, png []byte) error
}

// Port is the interface that all platform clipboard implementations satisfy.
type Port interface {
	Reader
	Writer

	// Name returns a human-readable name for the backend.
	Name() string

	// Close releases any resources held by the backend.
	Close()
}

// Owner is implemented by backends that can tell whether the clipboard still
// holds the payload they published last.
type Owner interface {
	Owned() bool
}

// call runs fn with a bound on its latency. sem serialises access to the
// platform clipboard and is released only when fn returns, so a call stuck
// in the platform layer makes later calls time out instead of piling up.
func call(ctx context.Context, sem chan struct{}, timeout time.Duration, fn func()) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctxErr(ctx)
	}

	done := make(chan struct{})
	go func() {
		fn()
		<-sem
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctxErr(ctx)
	}
}

func ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
