// Package ipc provides helpers for the local Unix-socket channel used by the
// clipsnap CLI (and any presentation layer) to talk to a running daemon.
//
// The socket speaks the newline-delimited JSON protocol of package message.
// It is created with owner-only permissions; no further authentication is
// done.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.klb.dev/clipsnap/internal/message"
	"go.klb.dev/clipsnap/internal/wire"
)

// EnvSocket overrides the socket path.
const EnvSocket = "CLIPSNAP_SOCKET"

const dialTimeout = 2 * time.Second

// ErrNotRunning is returned by Dial when no daemon listens on the socket.
var ErrNotRunning = errors.New("clipsnap daemon is not running")

// SocketPath returns the IPC socket path.
//
//   - $CLIPSNAP_SOCKET if set
//   - $XDG_RUNTIME_DIR/clipsnap.sock on Linux desktops
//   - $TMPDIR/clipsnap.sock otherwise
func SocketPath() string {
	if s := os.Getenv(EnvSocket); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "clipsnap.sock")
	}
	return filepath.Join(os.TempDir(), "clipsnap.sock")
}

// IsRunning reports whether a daemon appears to be listening on the IPC
// socket. It does a cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	c, err := net.DialTimeout("unix", SocketPath(), dialTimeout)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates a listener on the IPC socket path. A stale socket from a
// crashed run is removed; a live one makes Listen fail.
func Listen() (net.Listener, error) {
	path := SocketPath()
	if IsRunning() {
		return nil, fmt.Errorf("another daemon is listening on %s", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("socket directory: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("restrict socket: %w", err)
	}
	return ln, nil
}

// Dial connects to the daemon.
func Dial() (*wire.Conn, error) {
	c, err := net.DialTimeout("unix", SocketPath(), dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrNotRunning, SocketPath(), err)
	}
	return wire.New(c), nil
}

// Call sends req and returns the single reply. ERROR replies are returned
// as a *message.RemoteError. ctx bounds the whole exchange.
func Call(ctx context.Context, req *message.Message) (*message.Message, error) {
	wc, err := Dial()
	if err != nil {
		return nil, err
	}
	defer wc.Close()

	stop := context.AfterFunc(ctx, func() { _ = wc.Close() })
	defer stop()

	if err := wc.WriteMsg(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Type, err)
	}
	resp, err := wc.ReadMsg()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read %s reply: %w", req.Type, err)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}
