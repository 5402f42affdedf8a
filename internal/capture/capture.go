// Package capture runs the capture-to-clipboard-to-history workflow: select
// a region, grab its pixels, encode them, publish them on the clipboard and
// record them in the history store.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.klb.dev/clipsnap/internal/clip"
	"go.klb.dev/clipsnap/internal/codec"
	"go.klb.dev/clipsnap/internal/geom"
	"go.klb.dev/clipsnap/internal/history"
	"go.klb.dev/clipsnap/internal/logging"
	"go.klb.dev/clipsnap/internal/screen"
	"go.klb.dev/clipsnap/internal/selection"
)

// DefaultSettleDelay is the pause between overlay teardown and the grab so
// the compositor has removed the overlay from the frame.
const DefaultSettleDelay = 100 * time.Millisecond

// ExportName is the file name of the last-capture export.
const ExportName = "clipsnap_last.png"

var (
	// ErrInProgress is returned when a capture is already running.
	ErrInProgress = errors.New("capture already in progress")
	// ErrDevice wraps display, overlay and clipboard failures.
	ErrDevice = errors.New("capture device error")
)

// Outcome classifies a finished capture.
type Outcome string

const (
	// OutcomeCaptured: published on the clipboard and stored.
	OutcomeCaptured Outcome = "captured"
	// OutcomeCancelled: the user aborted; nothing happened.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomePartial: published on the clipboard, but storing failed.
	OutcomePartial Outcome = "partial"
)

// Result is the outcome of one capture. Entry is set for OutcomeCaptured;
// Err carries the storage error for OutcomePartial.
type Result struct {
	Outcome Outcome        `json:"outcome"`
	Region  geom.Rectangle `json:"region,omitzero"`
	Entry   history.Entry  `json:"entry,omitzero"`
	Err     error          `json:"-"`
}

// Selector obtains a rectangle from the user. Cancel aborts a running
// selection, which then returns selection.ErrCancelled.
type Selector interface {
	Select(ctx context.Context) (geom.Rectangle, error)
	Cancel()
}

// Grabber reads the pixels of a desktop region.
type Grabber interface {
	Grab(ctx context.Context, r geom.Rectangle) (*image.NRGBA, error)
}

// Store persists captured images.
type Store interface {
	InsertImage(ctx context.Context, png, preview []byte) (history.Entry, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSettleDelay sets the pause between selection and grab.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.settle = max(d, 0) }
}

// WithThumbnailEdge sets the preview bound.
func WithThumbnailEdge(px int) Option {
	return func(o *Orchestrator) {
		if px > 0 {
			o.thumbEdge = px
		}
	}
}

// WithExportPath also writes every capture to path. Empty disables export.
func WithExportPath(path string) Option {
	return func(o *Orchestrator) { o.exportPath = path }
}

// Orchestrator runs at most one capture at a time.
type Orchestrator struct {
	selector  Selector
	grabber   Grabber
	clipboard clip.Writer
	store     Store

	settle     time.Duration
	thumbEdge  int
	exportPath string

	active atomic.Bool
}

// New returns an Orchestrator.
func New(sel Selector, g Grabber, cb clip.Writer, s Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		selector:  sel,
		grabber:   g,
		clipboard: cb,
		store:     s,
		settle:    DefaultSettleDelay,
		thumbEdge: codec.DefaultThumbnailEdge,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DefaultExportPath returns $TMPDIR/clipsnap_last.png.
func DefaultExportPath() string { return filepath.Join(os.TempDir(), ExportName) }

// Active reports whether a capture is running.
func (o *Orchestrator) Active() bool { return o.active.Load() }

// Cancel aborts the selection of the running capture. It reports whether a
// capture was running.
func (o *Orchestrator) Cancel() bool {
	if !o.active.Load() {
		return false
	}
	o.selector.Cancel()
	return true
}

// TriggerCapture runs one capture. A cancelled selection is a successful
// call with OutcomeCancelled. The clipboard publish is required; a failure to
// store the entry afterwards yields OutcomePartial and is never rolled back.
func (o *Orchestrator) TriggerCapture(ctx context.Context) (Result, error) {
	if !o.active.CompareAndSwap(false, true) {
		return Result{}, ErrInProgress
	}
	defer o.active.Store(false)

	r, err := o.selector.Select(ctx)
	switch {
	case errors.Is(err, selection.ErrCancelled):
		slog.Info("capture cancelled")
		return Result{Outcome: OutcomeCancelled}, nil
	case errors.Is(err, selection.ErrInProgress):
		return Result{}, ErrInProgress
	case err != nil:
		return Result{}, fmt.Errorf("%w: %w", ErrDevice, err)
	}

	if o.settle > 0 {
		select {
		case <-time.After(o.settle):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	img, err := o.grabber.Grab(ctx, r)
	switch {
	case errors.Is(err, screen.ErrInvalidRegion):
		return Result{}, fmt.Errorf("capture %s: %w", r, err)
	case err != nil:
		return Result{}, fmt.Errorf("%w: %w", ErrDevice, err)
	}

	png, err := codec.EncodeLossless(img)
	if err != nil {
		return Result{}, fmt.Errorf("capture %s: %w", r, err)
	}
	preview, err := codec.Thumbnail(png, o.thumbEdge)
	if err != nil {
		return Result{}, fmt.Errorf("capture %s: thumbnail: %w", r, err)
	}

	if err := o.clipboard.SetImage(ctx, png); err != nil {
		return Result{}, fmt.Errorf("%w: publish: %w", ErrDevice, err)
	}
	slog.Info("capture published", "region", r.String(), "pixels", r.Area(), "size_bytes", len(png))
	o.export(png)

	res := Result{Outcome: OutcomeCaptured, Region: r}
	e, err := o.store.InsertImage(ctx, png, preview)
	if err != nil {
		slog.Error("capture not recorded in history", "err", err)
		res.Outcome = OutcomePartial
		res.Err = err
		return res, nil
	}
	res.Entry = e
	logging.LogEntry("capture stored", "capture", e)
	return res, nil
}

func (o *Orchestrator) export(png []byte) {
	if o.exportPath == "" {
		return
	}
	if err := writeFileAtomic(o.exportPath, png); err != nil {
		slog.Warn("capture export failed", "path", o.exportPath, "err", err)
		return
	}
	slog.Debug("capture exported", "path", o.exportPath)
}

func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
