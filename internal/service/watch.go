package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.klb.dev/clipsnap/internal/history"
	"go.klb.dev/clipsnap/internal/hub"
	"go.klb.dev/clipsnap/internal/message"
	"go.klb.dev/clipsnap/internal/wire"
)

// watchBuffer is the number of events a watcher may fall behind before
// further events are dropped for it.
const watchBuffer = 64

// watcher is a hub.Subscriber streaming changes to one WATCH connection.
type watcher struct {
	id  string
	ops []history.Op
	ch  chan hub.Event
}

func (w *watcher) ID() string            { return w.id }
func (w *watcher) Accepts() []history.Op { return w.ops }

func (w *watcher) Send(ev hub.Event) {
	select {
	case w.ch <- ev:
	default:
		slog.Warn("watcher too slow, event dropped", "watcher", w.id, "op", ev.Change.Op)
	}
}

// watch streams EVENT messages to wc until the client hangs up or ctx is
// cancelled. The subscription is confirmed with an empty RESULT so clients
// know no change is missed after it.
func (s *Service) watch(ctx context.Context, wc *wire.Conn, req *message.Message) {
	w := &watcher{
		id:  fmt.Sprintf("ipc:watch:%d", s.nextWatcher.Add(1)),
		ops: req.Ops,
		ch:  make(chan hub.Event, watchBuffer),
	}
	s.Hub.Register(w)
	defer s.Hub.Unregister(w)

	if err := wc.WriteMsg(&message.Message{Type: message.TypeResult}); err != nil {
		return
	}

	// Watchers never send after the request; any read result means the
	// client is gone.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_, _ = wc.ReadMsg()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			slog.Debug("watcher disconnected", "watcher", w.id)
			return
		case ev := <-w.ch:
			c := ev.Change
			if err := wc.WriteMsg(&message.Message{Type: message.TypeEvent, Change: &c}); err != nil {
				slog.Debug("watcher write failed", "watcher", w.id, "err", err)
				return
			}
		}
	}
}
