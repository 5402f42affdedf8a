// Package monitor watches the system clipboard and records every new text
// or image payload in the history store.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/clipsnap/internal/clip"
	"go.klb.dev/clipsnap/internal/codec"
	"go.klb.dev/clipsnap/internal/fingerprint"
	"go.klb.dev/clipsnap/internal/history"
	"go.klb.dev/clipsnap/internal/logging"
)

// DefaultInterval is the default poll period.
const DefaultInterval = 500 * time.Millisecond

// Store is the part of the history store the monitor writes to.
type Store interface {
	InsertText(ctx context.Context, text string) (history.Entry, error)
	InsertImage(ctx context.Context, png, preview []byte) (history.Entry, error)
}

// Stats is a snapshot of the monitor's counters.
type Stats struct {
	Running  bool      `json:"running"`
	LastTick time.Time `json:"last_tick,omitzero"`
	Ticks    uint64    `json:"ticks"`
	Skipped  uint64    `json:"skipped"`
	Failures uint64    `json:"failures"`
	Added    uint64    `json:"added"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the poll period.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithThumbnailEdge sets the preview bound for image entries.
func WithThumbnailEdge(px int) Option {
	return func(m *Monitor) {
		if px > 0 {
			m.thumbEdge = px
		}
	}
}

// Monitor polls a clipboard on a fixed interval. It keeps the fingerprint of
// the last payload seen per kind and stores a payload only when it differs.
type Monitor struct {
	reader    clip.Reader
	store     Store
	interval  time.Duration
	thumbEdge int

	mu   sync.Mutex
	last map[history.Kind]fingerprint.Digest
	// gen counts updates of last per kind. A tick only records what it
	// stored if no write was claimed since it looked.
	gen map[history.Kind]uint64

	busy     atomic.Bool
	running  atomic.Bool
	lastTick atomic.Int64
	ticks    atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64
	added    atomic.Uint64
}

// New creates a monitor reading from r and writing to s. It does not start
// polling; see Run.
func New(r clip.Reader, s Store, opts ...Option) *Monitor {
	m := &Monitor{
		reader:    r,
		store:     s,
		interval:  DefaultInterval,
		thumbEdge: codec.DefaultThumbnailEdge,
		last:      make(map[history.Kind]fingerprint.Digest),
		gen:       make(map[history.Kind]uint64),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run polls until ctx is cancelled. The last-seen state is reset on entry.
// A tick that comes due while the previous one is still running is skipped.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	clear(m.last)
	m.mu.Unlock()

	m.running.Store(true)
	defer m.running.Store(false)

	slog.Info("clipboard monitor started", "interval", m.interval)
	defer slog.Info("clipboard monitor stopped")

	var wg sync.WaitGroup
	defer wg.Wait()

	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if !m.busy.CompareAndSwap(false, true) {
				m.skipped.Add(1)
				slog.Debug("clipboard tick skipped, previous tick still running")
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer m.busy.Store(false)
				if _, err := m.tick(ctx); err != nil && ctx.Err() == nil {
					slog.Warn("clipboard tick failed", "err", err)
				}
			}()
		}
	}
}

// Tick runs one poll immediately and returns the entries it stored. It
// returns without polling if a tick is already running.
func (m *Monitor) Tick(ctx context.Context) ([]history.Entry, error) {
	if !m.busy.CompareAndSwap(false, true) {
		m.skipped.Add(1)
		return nil, nil
	}
	defer m.busy.Store(false)
	return m.tick(ctx)
}

func (m *Monitor) tick(ctx context.Context) ([]history.Entry, error) {
	m.ticks.Add(1)
	m.lastTick.Store(time.Now().UnixNano())

	var (
		added []history.Entry
		errs  []error
	)
	record := func(e history.Entry, ok bool, err error) {
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			added = append(added, e)
		}
	}

	text, ok, err := m.reader.GetText(ctx)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("read text: %w", err))
	case ok && strings.TrimSpace(text) != "":
		record(m.observeText(ctx, text))
	}

	png, ok, err := m.reader.GetImage(ctx)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("read image: %w", err))
	case ok:
		record(m.observeImage(ctx, png))
	}

	m.added.Add(uint64(len(added)))
	if err := errors.Join(errs...); err != nil {
		m.failures.Add(1)
		return added, err
	}
	return added, nil
}

func (m *Monitor) observeText(ctx context.Context, text string) (history.Entry, bool, error) {
	d := fingerprint.String(text)
	seen, gen := m.look(history.KindText, d)
	if seen {
		return history.Entry{}, false, nil
	}
	e, err := m.store.InsertText(ctx, text)
	switch {
	case errors.Is(err, history.ErrPayloadTooLarge):
		// The same oversized text would be rejected on every tick.
		m.commit(history.KindText, d, gen)
		slog.Warn("clipboard text ignored", "err", err)
		return history.Entry{}, false, nil
	case err != nil:
		return history.Entry{}, false, fmt.Errorf("store text: %w", err)
	}
	m.commit(history.KindText, d, gen)
	logging.LogEntry("clipboard text stored", "monitor", e)
	return e, true, nil
}

func (m *Monitor) observeImage(ctx context.Context, png []byte) (history.Entry, bool, error) {
	d := fingerprint.Sum(png)
	seen, gen := m.look(history.KindImage, d)
	if seen {
		return history.Entry{}, false, nil
	}
	preview, err := codec.Thumbnail(png, m.thumbEdge)
	if err != nil {
		m.commit(history.KindImage, d, gen)
		slog.Warn("clipboard image ignored", "err", err)
		return history.Entry{}, false, nil
	}
	e, err := m.store.InsertImage(ctx, png, preview)
	if err != nil {
		return history.Entry{}, false, fmt.Errorf("store image: %w", err)
	}
	m.commit(history.KindImage, d, gen)
	logging.LogEntry("clipboard image stored", "monitor", e)
	return e, true, nil
}

// Seen reports whether d is the last fingerprint recorded for kind.
func (m *Monitor) Seen(kind history.Kind, d fingerprint.Digest) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.last[kind]
	return ok && last == d
}

// MarkSeen records d as the last payload of kind, so the next tick treats a
// clipboard holding it as unchanged.
func (m *Monitor) MarkSeen(kind history.Kind, d fingerprint.Digest) {
	m.mu.Lock()
	m.last[kind] = d
	m.gen[kind]++
	m.mu.Unlock()
}

// look reports whether d was the last payload of kind, and the generation
// to hand to commit.
func (m *Monitor) look(kind history.Kind, d fingerprint.Digest) (seen bool, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.last[kind]
	return ok && last == d, m.gen[kind]
}

// commit records d as seen unless last changed after look returned gen. A
// write claimed through Track in between wins over the tick.
func (m *Monitor) commit(kind history.Kind, d fingerprint.Digest, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen[kind] != gen {
		slog.Debug("clipboard changed by this process during tick", "kind", kind)
		return
	}
	m.last[kind] = d
	m.gen[kind]++
}

// Stats returns the current counters.
func (m *Monitor) Stats() Stats {
	st := Stats{
		Running:  m.running.Load(),
		Ticks:    m.ticks.Load(),
		Skipped:  m.skipped.Load(),
		Failures: m.failures.Load(),
		Added:    m.added.Load(),
	}
	if ns := m.lastTick.Load(); ns != 0 {
		st.LastTick = time.Unix(0, ns)
	}
	return st
}
