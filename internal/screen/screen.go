// Package screen grabs raw pixels from the display server.
package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.klb.dev/clipsnap/internal/codec"
	"go.klb.dev/clipsnap/internal/geom"
)

// DefaultTimeout bounds a single geometry query or grab.
const DefaultTimeout = 5 * time.Second

var (
	// ErrCaptureUnavailable is returned when the display cannot be reached.
	ErrCaptureUnavailable = errors.New("screen capture unavailable")
	// ErrInvalidRegion is returned when a region has no capturable pixels.
	ErrInvalidRegion = errors.New("invalid capture region")
	// ErrTimeout is returned when the display server does not answer in time.
	ErrTimeout = errors.New("screen capture timed out")
)

// Source enumerates monitors and grabs regions of the desktop.
type Source interface {
	Geometry(ctx context.Context) ([]geom.Monitor, error)
	Grab(ctx context.Context, r geom.Rectangle) (*image.NRGBA, error)
}

// Driver is the raw display-server access used by Display.
type Driver interface {
	// Displays returns the bounds of every active output in global
	// desktop coordinates.
	Displays() ([]image.Rectangle, error)
	// Capture returns the pixels of r. r always lies on the desktop.
	Capture(r image.Rectangle) (*image.RGBA, error)
}

// Display is a Source backed by a Driver.
type Display struct {
	driver  Driver
	timeout time.Duration
	sem     chan struct{}
}

var _ Source = (*Display)(nil)

// NewDisplay wraps d. A zero timeout selects DefaultTimeout.
func NewDisplay(d Driver, timeout time.Duration) *Display {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Display{driver: d, timeout: timeout, sem: make(chan struct{}, 1)}
}

// Geometry returns the active monitors.
func (d *Display) Geometry(ctx context.Context) ([]geom.Monitor, error) {
	var (
		bounds []image.Rectangle
		err    error
	)
	if cerr := d.call(ctx, func() { bounds, err = d.driver.Displays() }); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	if len(bounds) == 0 {
		return nil, fmt.Errorf("%w: no active displays", ErrCaptureUnavailable)
	}
	// The driver reports bounds in physical pixels and captures at that
	// resolution, so selection and capture share one pixel space.
	monitors := make([]geom.Monitor, len(bounds))
	for i, b := range bounds {
		monitors[i] = geom.Monitor{ID: i, Bounds: geom.FromImage(b), Scale: 1}
	}
	return monitors, nil
}

// Grab captures r, clipped to the desktop. Regions that still include
// pixels outside every monitor after clipping (gaps between monitors of
// different sizes) are rejected rather than padded.
func (d *Display) Grab(ctx context.Context, r geom.Rectangle) (*image.NRGBA, error) {
	monitors, err := d.Geometry(ctx)
	if err != nil {
		return nil, err
	}
	clamped, ok := geom.Clamp(r, monitors)
	if !ok {
		return nil, fmt.Errorf("%w: %s lies outside every monitor", ErrInvalidRegion, r)
	}
	if !geom.Covered(clamped, monitors) {
		return nil, fmt.Errorf("%w: %s crosses an area no monitor covers", ErrInvalidRegion, clamped)
	}

	var img *image.RGBA
	if cerr := d.call(ctx, func() { img, err = d.driver.Capture(clamped.Image()) }); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	if b := img.Bounds(); b.Dx() != clamped.Width || b.Dy() != clamped.Height {
		return nil, fmt.Errorf("%w: got %dx%d for %s", ErrCaptureUnavailable, b.Dx(), b.Dy(), clamped)
	}

	// X11 hands back BGRX-derived pixels with an undefined padding byte;
	// screen content is always opaque.
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return codec.ToNRGBA(img), nil
}

func (d *Display) call(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctxErr(ctx)
	}

	done := make(chan struct{})
	go func() {
		fn()
		<-d.sem
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
