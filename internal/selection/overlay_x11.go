//go:build linux

package selection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"go.klb.dev/clipsnap/internal/geom"
)

const (
	glyphCrosshair = 34
	keysymEscape   = 0xff1b

	grabAttempts = 50
	grabRetry    = 10 * time.Millisecond
)

// x11Overlay opens override-redirect windows on an X11 display.
type x11Overlay struct {
	display string
}

// NewOverlay returns the overlay for this platform. On Linux it talks to the
// X server named by $DISPLAY.
func NewOverlay() Overlay { return &x11Overlay{} }

type x11Surface struct {
	conn   *xgb.Conn
	win    xproto.Window
	gc     xproto.Gcontext
	cursor xproto.Cursor
	fonts  []xproto.Font
	escape map[xproto.Keycode]bool
	events chan Event
	done   chan struct{}

	drawn struct {
		rect  geom.Rectangle
		label string
	}
	closeOnce sync.Once
}

func (o *x11Overlay) Open(ctx context.Context, bounds geom.Rectangle) (Surface, error) {
	conn, err := xgb.NewConnDisplay(o.display)
	if err != nil {
		return nil, fmt.Errorf("x11 connect: %w", err)
	}
	s := &x11Surface{
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	if err := s.setup(ctx, bounds); err != nil {
		_ = s.Close()
		return nil, err
	}
	go s.pump()
	return s, nil
}

func (s *x11Surface) setup(ctx context.Context, bounds geom.Rectangle) error {
	setup := xproto.Setup(s.conn)
	scr := setup.DefaultScreen(s.conn)

	cursorFont, err := s.openFont("cursor")
	if err != nil {
		return err
	}
	labelFont, err := s.openFont("fixed")
	if err != nil {
		return err
	}

	if s.cursor, err = xproto.NewCursorId(s.conn); err != nil {
		return fmt.Errorf("cursor id: %w", err)
	}
	if err := xproto.CreateGlyphCursorChecked(s.conn, s.cursor, cursorFont, cursorFont,
		glyphCrosshair, glyphCrosshair+1,
		0, 0, 0, 0xffff, 0xffff, 0xffff).Check(); err != nil {
		return fmt.Errorf("crosshair cursor: %w", err)
	}

	if s.win, err = xproto.NewWindowId(s.conn); err != nil {
		return fmt.Errorf("window id: %w", err)
	}
	mask := uint32(xproto.EventMaskButtonPress | xproto.EventMaskButtonRelease |
		xproto.EventMaskPointerMotion | xproto.EventMaskKeyPress)
	if err := xproto.CreateWindowChecked(s.conn, scr.RootDepth, s.win, scr.Root,
		int16(bounds.X), int16(bounds.Y), uint16(bounds.Width), uint16(bounds.Height), 0,
		xproto.WindowClassInputOutput, scr.RootVisual,
		xproto.CwBackPixmap|xproto.CwOverrideRedirect|xproto.CwEventMask|xproto.CwCursor,
		[]uint32{xproto.BackPixmapNone, 1, mask, uint32(s.cursor)}).Check(); err != nil {
		s.win = 0
		return fmt.Errorf("create overlay window: %w", err)
	}

	if s.gc, err = xproto.NewGcontextId(s.conn); err != nil {
		return fmt.Errorf("gc id: %w", err)
	}
	if err := xproto.CreateGCChecked(s.conn, s.gc, xproto.Drawable(s.win),
		xproto.GcFunction|xproto.GcForeground|xproto.GcLineWidth|xproto.GcFont|xproto.GcSubwindowMode,
		[]uint32{xproto.GxXor, scr.WhitePixel, 1, uint32(labelFont), xproto.SubwindowModeIncludeInferiors}).Check(); err != nil {
		s.gc = 0
		return fmt.Errorf("create gc: %w", err)
	}

	if s.escape, err = escapeKeycodes(s.conn, setup); err != nil {
		return err
	}

	if err := xproto.MapWindowChecked(s.conn, s.win).Check(); err != nil {
		return fmt.Errorf("map overlay: %w", err)
	}
	return s.grab(ctx)
}

func (s *x11Surface) openFont(name string) (xproto.Font, error) {
	fid, err := xproto.NewFontId(s.conn)
	if err != nil {
		return 0, fmt.Errorf("font id: %w", err)
	}
	if err := xproto.OpenFontChecked(s.conn, fid, uint16(len(name)), name).Check(); err != nil {
		return 0, fmt.Errorf("open font %q: %w", name, err)
	}
	s.fonts = append(s.fonts, fid)
	return fid, nil
}

// grab takes the pointer and keyboard. The window may not be viewable for a
// few milliseconds after MapWindow, so both grabs are retried.
func (s *x11Surface) grab(ctx context.Context) error {
	ptrMask := uint16(xproto.EventMaskButtonPress | xproto.EventMaskButtonRelease | xproto.EventMaskPointerMotion)

	var pointer, keyboard bool
	for range grabAttempts {
		if !pointer {
			r, err := xproto.GrabPointer(s.conn, false, s.win, ptrMask,
				xproto.GrabModeAsync, xproto.GrabModeAsync, s.win, s.cursor, xproto.TimeCurrentTime).Reply()
			pointer = err == nil && r.Status == xproto.GrabStatusSuccess
		}
		if !keyboard {
			r, err := xproto.GrabKeyboard(s.conn, false, s.win, xproto.TimeCurrentTime,
				xproto.GrabModeAsync, xproto.GrabModeAsync).Reply()
			keyboard = err == nil && r.Status == xproto.GrabStatusSuccess
		}
		if pointer && keyboard {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(grabRetry):
		}
	}
	return fmt.Errorf("input grab failed (pointer=%t keyboard=%t)", pointer, keyboard)
}

func escapeKeycodes(conn *xgb.Conn, setup *xproto.SetupInfo) (map[xproto.Keycode]bool, error) {
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	m, err := xproto.GetKeyboardMapping(conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return nil, fmt.Errorf("keyboard mapping: %w", err)
	}
	per := int(m.KeysymsPerKeycode)
	out := make(map[xproto.Keycode]bool)
	for i, sym := range m.Keysyms {
		if sym == keysymEscape {
			out[setup.MinKeycode+xproto.Keycode(i/per)] = true
		}
	}
	return out, nil
}

// pump turns X events into selection events until the connection closes.
func (s *x11Surface) pump() {
	defer close(s.events)
	for {
		ev, xerr := s.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			continue
		}
		var out Event
		switch e := ev.(type) {
		case xproto.ButtonPressEvent:
			switch e.Detail {
			case xproto.ButtonIndex1:
				out = Event{Kind: EventPress, X: int(e.EventX), Y: int(e.EventY)}
			case xproto.ButtonIndex3:
				out = Event{Kind: EventCancel}
			default:
				continue
			}
		case xproto.ButtonReleaseEvent:
			if e.Detail != xproto.ButtonIndex1 {
				continue
			}
			out = Event{Kind: EventRelease, X: int(e.EventX), Y: int(e.EventY)}
		case xproto.MotionNotifyEvent:
			out = Event{Kind: EventMotion, X: int(e.EventX), Y: int(e.EventY)}
		case xproto.KeyPressEvent:
			if !s.escape[e.Detail] {
				continue
			}
			out = Event{Kind: EventCancel}
		default:
			continue
		}
		select {
		case s.events <- out:
		case <-s.done:
			return
		}
	}
}

func (s *x11Surface) Events() <-chan Event { return s.events }

// Draw XORs the previous outline and label away and draws the new ones.
func (s *x11Surface) Draw(r geom.Rectangle, label string) error {
	s.paint(s.drawn.rect, s.drawn.label)
	s.paint(r, label)
	s.drawn.rect, s.drawn.label = r, label
	// Round trip so drawing errors surface here and the server flushes.
	_, err := xproto.GetInputFocus(s.conn).Reply()
	return err
}

func (s *x11Surface) paint(r geom.Rectangle, label string) {
	if r.Empty() {
		return
	}
	xproto.PolyRectangle(s.conn, xproto.Drawable(s.win), s.gc, []xproto.Rectangle{{
		X: int16(r.X), Y: int16(r.Y),
		Width: uint16(max(r.Width-1, 0)), Height: uint16(max(r.Height-1, 0)),
	}})
	if label == "" {
		return
	}
	// The core "fixed" font is ISO 8859-1 encoded.
	text := []byte(latin1(label))
	if len(text) > 254 {
		text = text[:254]
	}
	items := append([]byte{byte(len(text)), 0}, text...)
	xproto.PolyText8(s.conn, xproto.Drawable(s.win), s.gc, int16(r.X+4), int16(r.Y+r.Height+14), items)
}

func latin1(s string) string {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x100 {
			b = append(b, byte(r))
		} else {
			b = append(b, '?')
		}
	}
	return string(b)
}

func (s *x11Surface) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		xproto.UngrabPointer(s.conn, xproto.TimeCurrentTime)
		xproto.UngrabKeyboard(s.conn, xproto.TimeCurrentTime)
		if s.gc != 0 {
			xproto.FreeGC(s.conn, s.gc)
		}
		if s.win != 0 {
			xproto.DestroyWindow(s.conn, s.win)
		}
		if s.cursor != 0 {
			xproto.FreeCursor(s.conn, s.cursor)
		}
		for _, f := range s.fonts {
			xproto.CloseFont(s.conn, f)
		}
		// Make sure the server processed the teardown before disconnecting.
		_, _ = xproto.GetInputFocus(s.conn).Reply()
		s.conn.Close()
	})
	return nil
}
