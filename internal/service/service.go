// Package service answers IPC requests from the CLI and the presentation
// layer: it exposes capture, history queries, restore, deletion and status
// over the local socket, and streams history changes to watchers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/clipsnap/internal/capture"
	"go.klb.dev/clipsnap/internal/clip"
	"go.klb.dev/clipsnap/internal/codec"
	"go.klb.dev/clipsnap/internal/history"
	"go.klb.dev/clipsnap/internal/hub"
	"go.klb.dev/clipsnap/internal/message"
	"go.klb.dev/clipsnap/internal/monitor"
	"go.klb.dev/clipsnap/internal/screen"
	"go.klb.dev/clipsnap/internal/wire"
)

// requestTimeout bounds reading the request line of a connection.
const requestTimeout = 5 * time.Second

// Capturer runs interactive captures.
type Capturer interface {
	TriggerCapture(ctx context.Context) (capture.Result, error)
	Active() bool
	Cancel() bool
}

// Deps are the collaborators of a Service. Monitor may be nil when
// clipboard monitoring is disabled; Owner is nil when the clipboard backend
// cannot report ownership.
type Deps struct {
	Store     *history.Store
	Capture   Capturer
	Monitor   *monitor.Monitor
	Clipboard clip.Writer
	Owner     clip.Owner
	Hub       *hub.Hub
	Retention *Retention

	Version       string
	Database      string
	ClipboardName string
}

// Service handles IPC connections.
type Service struct {
	Deps
	nextWatcher atomic.Uint64
}

// New returns a Service.
func New(d Deps) *Service {
	if d.Retention == nil {
		d.Retention = NewRetention(0, 0)
	}
	return &Service{Deps: d}
}

// Serve accepts connections on ln until ctx is cancelled, then closes ln
// and waits for open connections to finish.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			slog.Warn("ipc accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	wc := wire.New(conn)
	defer wc.Close()

	// Unblock reads and writes when the daemon shuts down.
	stop := context.AfterFunc(ctx, func() { _ = wc.Close() })
	defer stop()

	wc.SetReadDeadline(requestTimeout)
	req, err := wc.ReadMsg()
	if err != nil {
		slog.Debug("ipc read failed", "err", err)
		return
	}
	wc.SetReadDeadline(0)
	slog.Debug("ipc request", "type", req.Type)

	if req.Type == message.TypeWatch {
		s.watch(ctx, wc, req)
		return
	}

	// Clients send nothing after the request, so a returning read means the
	// peer hung up and the request is abandoned.
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_, _ = wc.ReadMsg()
		cancel()
	}()

	if err := wc.WriteMsg(s.Handle(reqCtx, req)); err != nil {
		slog.Debug("ipc write failed", "type", req.Type, "err", err)
	}
}

// Handle answers one request. WATCH is not handled here; it needs the
// connection.
func (s *Service) Handle(ctx context.Context, req *message.Message) *message.Message {
	switch req.Type {
	case message.TypeCapture:
		return s.capture(ctx)

	case message.TypeCancel:
		ok := s.Capture != nil && s.Capture.Cancel()
		if ok {
			slog.Info("capture cancel requested")
		}
		return &message.Message{Type: message.TypeResult, Cancelled: ok}

	case message.TypeRecent:
		entries, err := s.Store.Recent(ctx, req.Limit)
		if err != nil {
			return errorReply(err)
		}
		return &message.Message{Type: message.TypeResult, Entries: summaries(entries)}

	case message.TypeSearch:
		entries, err := s.Store.Search(ctx, req.Query, req.Limit)
		if err != nil {
			return errorReply(err)
		}
		return &message.Message{Type: message.TypeResult, Entries: summaries(entries)}

	case message.TypeGet:
		e, err := s.Store.Get(ctx, req.ID)
		if err != nil {
			return errorReply(err)
		}
		return &message.Message{Type: message.TypeResult, Entry: &e}

	case message.TypeRestore:
		e, err := s.Store.RestoreToClipboard(ctx, req.ID, s.Clipboard)
		if err != nil {
			return errorReply(err)
		}
		slog.Info("history entry restored", "id", e.ID, "kind", e.Kind)
		sum := e.Summary()
		return &message.Message{Type: message.TypeResult, Entry: &sum}

	case message.TypeDelete:
		if err := s.Store.Delete(ctx, req.ID); err != nil {
			return errorReply(err)
		}
		return &message.Message{Type: message.TypeResult}

	case message.TypeClear:
		var (
			n   int64
			err error
		)
		if req.Kind == "" {
			n, err = s.Store.ClearAll(ctx)
		} else {
			var kind history.Kind
			if kind, err = history.ParseKind(string(req.Kind)); err != nil {
				return message.Errorf(message.CodeBadRequest, "%v", err)
			}
			n, err = s.Store.ClearKind(ctx, kind)
		}
		if err != nil {
			return errorReply(err)
		}
		slog.Info("history cleared", "kind", req.Kind, "removed", n)
		return &message.Message{Type: message.TypeResult, Removed: n}

	case message.TypeCleanup:
		n, err := s.Sweep(ctx)
		if err != nil {
			return errorReply(err)
		}
		return &message.Message{Type: message.TypeResult, Removed: n}

	case message.TypeStatus:
		return s.status(ctx)
	}
	return message.Errorf(message.CodeBadRequest, "unsupported request type %q", req.Type)
}

func (s *Service) capture(ctx context.Context) *message.Message {
	res, err := s.Capture.TriggerCapture(ctx)
	if err != nil {
		slog.Warn("capture failed", "err", err)
		return errorReply(err)
	}
	out := &message.Capture{Outcome: res.Outcome}
	switch res.Outcome {
	case capture.OutcomeCaptured:
		sum := res.Entry.Summary()
		out.Entry = &sum
	case capture.OutcomePartial:
		out.Warning = res.Err.Error()
	}
	return &message.Message{Type: message.TypeResult, Capture: out}
}

func (s *Service) status(ctx context.Context) *message.Message {
	st, err := s.Store.Stats(ctx)
	if err != nil {
		return errorReply(err)
	}
	status := &message.Status{
		Version:       s.Version,
		Database:      s.Database,
		Clipboard:     s.ClipboardName,
		Store:         st,
		CaptureActive: s.Capture != nil && s.Capture.Active(),
		Watchers:      s.Hub.Len(),
	}
	if s.Owner != nil {
		status.ClipboardOwned = s.Owner.Owned()
	}
	if s.Monitor != nil {
		status.Monitor = s.Monitor.Stats()
	}
	return &message.Message{Type: message.TypeResult, Status: status}
}

func summaries(entries []history.Entry) []history.Entry {
	for i := range entries {
		entries[i] = entries[i].Summary()
	}
	return entries
}

// errorReply maps err onto an ERROR message with the matching code.
func errorReply(err error) *message.Message {
	return message.Errorf(codeOf(err), "%v", err)
}

func codeOf(err error) message.Code {
	switch {
	case errors.Is(err, capture.ErrInProgress):
		return message.CodeInProgress
	case errors.Is(err, screen.ErrTimeout), errors.Is(err, clip.ErrTimeout):
		return message.CodeTimeout
	case errors.Is(err, screen.ErrInvalidRegion):
		return message.CodeInvalidRegion
	case errors.Is(err, capture.ErrDevice), errors.Is(err, clip.ErrUnavailable):
		return message.CodeDevice
	case errors.Is(err, history.ErrPayloadTooLarge):
		return message.CodePayloadTooLarge
	case errors.Is(err, codec.ErrCorruptData):
		return message.CodeCorruptData
	case errors.Is(err, history.ErrNotFound):
		return message.CodeNotFound
	case errors.Is(err, history.ErrStorage):
		return message.CodeStorage
	}
	return message.CodeInternal
}
