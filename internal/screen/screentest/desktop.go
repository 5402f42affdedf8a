// Package screentest provides an in-memory desktop for capture tests.
package screentest

import (
	"errors"
	"image"
	"image/color"
	"sync"
)

// ErrDisconnected is returned by a Desktop after Disconnect.
var ErrDisconnected = errors.New("display connection lost")

// Desktop is a screen.Driver serving crops of a generated framebuffer.
type Desktop struct {
	mu       sync.Mutex
	outputs  []image.Rectangle
	fb       *image.RGBA
	down     bool
	captures []image.Rectangle
}

// NewDesktop builds a desktop from output bounds. Every pixel gets a value
// derived from its global coordinates so crops are easy to verify.
func NewDesktop(outputs ...image.Rectangle) *Desktop {
	var u image.Rectangle
	for _, o := range outputs {
		u = u.Union(o)
	}
	fb := image.NewRGBA(u)
	for y := u.Min.Y; y < u.Max.Y; y++ {
		for x := u.Min.X; x < u.Max.X; x++ {
			fb.SetRGBA(x, y, Pixel(x, y))
		}
	}
	return &Desktop{outputs: outputs, fb: fb}
}

// Pixel is the colour the desktop shows at global (x, y).
func Pixel(x, y int) color.RGBA {
	return color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 0xff}
}

// Disconnect makes every subsequent call fail.
func (d *Desktop) Disconnect() {
	d.mu.Lock()
	d.down = true
	d.mu.Unlock()
}

// Captures returns the rectangles requested so far.
func (d *Desktop) Captures() []image.Rectangle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]image.Rectangle(nil), d.captures...)
}

func (d *Desktop) Displays() ([]image.Rectangle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return nil, ErrDisconnected
	}
	return append([]image.Rectangle(nil), d.outputs...), nil
}

func (d *Desktop) Capture(r image.Rectangle) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return nil, ErrDisconnected
	}
	d.captures = append(d.captures, r)
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			out.SetRGBA(x, y, d.fb.RGBAAt(r.Min.X+x, r.Min.Y+y))
		}
	}
	return out, nil
}
