// Package selection drives interactive rectangle selection over a transient
// full-screen overlay.
//
// A selection runs Idle → Armed → Dragging → Confirmed or Cancelled. The
// overlay is shown over the union of all monitors with the pointer and
// keyboard grabbed; it is torn down on every exit path.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.klb.dev/clipsnap/internal/geom"
)

var (
	// ErrCancelled is returned when the user (or a caller) aborts the selection.
	ErrCancelled = errors.New("selection cancelled")
	// ErrInProgress is returned when a selection is already active.
	ErrInProgress = errors.New("selection already in progress")
	// ErrOverlayUnavailable is returned when no overlay can be shown.
	ErrOverlayUnavailable = errors.New("selection overlay unavailable")
	// ErrOverlayLost is returned when the overlay stops delivering events.
	ErrOverlayLost = errors.New("selection overlay lost")
)

// Geometry enumerates the monitors a selection may span.
type Geometry interface {
	Geometry(ctx context.Context) ([]geom.Monitor, error)
}

// Overlay opens full-screen input-capturing surfaces.
type Overlay interface {
	// Open shows a surface covering bounds (global desktop coordinates),
	// grabs pointer and keyboard and sets a crosshair cursor.
	Open(ctx context.Context, bounds geom.Rectangle) (Surface, error)
}

// Surface is one open overlay.
type Surface interface {
	// Events delivers input in surface-local coordinates. It is closed when
	// the surface goes away.
	Events() <-chan Event
	// Draw renders the in-progress rectangle and its dimension label. An
	// empty rectangle clears the drawing.
	Draw(r geom.Rectangle, label string) error
	// Close releases the input grab and destroys the surface. It is safe to
	// call more than once.
	Close() error
}

// Option configures an Engine.
type Option func(*Engine)

// WithMinSize treats confirmed rectangles narrower or shorter than px as
// cancelled.
func WithMinSize(px int) Option {
	return func(e *Engine) { e.minSize = max(px, 1) }
}

// Engine runs at most one selection session at a time.
type Engine struct {
	geometry Geometry
	overlay  Overlay
	minSize  int

	active atomic.Bool

	mu     sync.Mutex
	cancel context.CancelCauseFunc
}

// New returns an Engine that shows overlays from ov over the monitors
// reported by g.
func New(g Geometry, ov Overlay, opts ...Option) *Engine {
	e := &Engine{geometry: g, overlay: ov, minSize: 1}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Active reports whether a session is running.
func (e *Engine) Active() bool { return e.active.Load() }

// Cancel aborts the running session, if any.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel(ErrCancelled)
	}
}

// Select runs one selection session and returns the confirmed rectangle in
// global desktop coordinates. It returns ErrCancelled when the user aborts,
// releases without dragging, or ctx is cancelled, and ErrInProgress when
// another session is active.
func (e *Engine) Select(ctx context.Context) (geom.Rectangle, error) {
	if !e.active.CompareAndSwap(false, true) {
		return geom.Rectangle{}, ErrInProgress
	}
	defer e.active.Store(false)

	ctx, cancel := context.WithCancelCause(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel(nil)
	}()

	monitors, err := e.geometry.Geometry(ctx)
	if err != nil {
		return geom.Rectangle{}, fmt.Errorf("selection geometry: %w", err)
	}
	bounds := geom.Union(monitors)
	if bounds.Empty() {
		return geom.Rectangle{}, fmt.Errorf("%w: empty desktop", ErrOverlayUnavailable)
	}

	surface, err := e.overlay.Open(ctx, bounds)
	if err != nil {
		return geom.Rectangle{}, fmt.Errorf("%w: %w", ErrOverlayUnavailable, err)
	}
	defer func() {
		if err := surface.Close(); err != nil {
			slog.Warn("overlay teardown failed", "err", err)
		}
	}()

	slog.Debug("selection armed", "bounds", bounds.String())
	r, err := e.run(ctx, surface)
	if err != nil {
		return geom.Rectangle{}, err
	}
	if r.Width < e.minSize || r.Height < e.minSize {
		slog.Debug("selection below minimum size", "rect", r.String(), "min", e.minSize)
		return geom.Rectangle{}, ErrCancelled
	}
	return r.Translate(bounds.X, bounds.Y), nil
}

func (e *Engine) run(ctx context.Context, surface Surface) (geom.Rectangle, error) {
	var s Session
	s.Arm()

	events := surface.Events()
	for {
		select {
		case <-ctx.Done():
			return geom.Rectangle{}, ErrCancelled

		case ev, ok := <-events:
			if !ok {
				return geom.Rectangle{}, ErrOverlayLost
			}
			if !s.Handle(ev) {
				continue
			}
			switch s.State() {
			case Confirmed:
				return s.Rect(), nil
			case Cancelled:
				return geom.Rectangle{}, ErrCancelled
			}
			r := s.Rect()
			label := ""
			if !r.Empty() {
				label = r.Label()
			}
			if err := surface.Draw(r, label); err != nil {
				slog.Debug("overlay draw failed", "err", err)
			}
		}
	}
}
