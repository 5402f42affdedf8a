// Package geom holds the desktop geometry types shared by the capture path:
// rectangles in global desktop coordinates and the monitors that tile them.
package geom

import (
	"fmt"
	"image"
	"slices"
)

// Rectangle is a region in global desktop coordinates. X and Y may be
// negative on multi-monitor layouts. A normalised Rectangle never has a
// negative extent; a zero Width or Height marks a cancelled selection.
type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromPoints builds the normalised rectangle spanned by an anchor and a live
// corner, in whichever direction the drag went.
func FromPoints(ax, ay, bx, by int) Rectangle {
	return Rectangle{X: ax, Y: ay, Width: bx - ax, Height: by - ay}.Normalize()
}

// Normalize flips a negative extent so that Width and Height are >= 0.
func (r Rectangle) Normalize() Rectangle {
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

// Empty reports whether r covers no pixels.
func (r Rectangle) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Area returns the pixel count of r.
func (r Rectangle) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Image converts r to an image.Rectangle.
func (r Rectangle) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// FromImage converts an image.Rectangle to a Rectangle.
func FromImage(ir image.Rectangle) Rectangle {
	ir = ir.Canon()
	return Rectangle{X: ir.Min.X, Y: ir.Min.Y, Width: ir.Dx(), Height: ir.Dy()}
}

// Intersect returns the overlap of r and o, or the zero Rectangle.
func (r Rectangle) Intersect(o Rectangle) Rectangle {
	ir := r.Image().Intersect(o.Image())
	if ir.Empty() {
		return Rectangle{}
	}
	return FromImage(ir)
}

// Union returns the smallest rectangle containing r and o.
func (r Rectangle) Union(o Rectangle) Rectangle {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return FromImage(r.Image().Union(o.Image()))
}

// Translate shifts r by dx, dy.
func (r Rectangle) Translate(dx, dy int) Rectangle {
	r.X += dx
	r.Y += dy
	return r
}

// Label renders the human readable "W × H" dimension label.
func (r Rectangle) Label() string {
	return fmt.Sprintf("%d × %d", r.Width, r.Height)
}

func (r Rectangle) String() string {
	return fmt.Sprintf("%dx%d%+d%+d", r.Width, r.Height, r.X, r.Y)
}

// Monitor is one output of the desktop.
type Monitor struct {
	ID     int       `json:"id"`
	Bounds Rectangle `json:"bounds"`
	// Scale is the output scale factor. Backends that report physical
	// pixel bounds use 1.
	Scale float64 `json:"scale"`
}

// Union returns the bounding box of all monitors.
func Union(monitors []Monitor) Rectangle {
	var u Rectangle
	for _, m := range monitors {
		u = u.Union(m.Bounds)
	}
	return u
}

// Clamp clips r to the monitors: the result is the bounding box of every
// non-empty intersection of r with a monitor. ok is false when r lies
// entirely outside the desktop.
func Clamp(r Rectangle, monitors []Monitor) (clamped Rectangle, ok bool) {
	r = r.Normalize()
	for _, m := range monitors {
		clamped = clamped.Union(r.Intersect(m.Bounds))
	}
	return clamped, !clamped.Empty()
}

// Covered reports whether every pixel of r lies on at least one monitor.
// The check compresses the plane along the monitor edges and tests one
// sample point per cell, so it is exact for any layout, including gaps and
// overlapping (mirrored) outputs.
func Covered(r Rectangle, monitors []Monitor) bool {
	if r.Empty() {
		return false
	}
	xs := []int{r.X, r.X + r.Width}
	ys := []int{r.Y, r.Y + r.Height}
	for _, m := range monitors {
		b := m.Bounds
		xs = appendWithin(xs, r.X, r.X+r.Width, b.X, b.X+b.Width)
		ys = appendWithin(ys, r.Y, r.Y+r.Height, b.Y, b.Y+b.Height)
	}
	slices.Sort(xs)
	slices.Sort(ys)
	xs = slices.Compact(xs)
	ys = slices.Compact(ys)

	for i := 0; i+1 < len(xs); i++ {
		for j := 0; j+1 < len(ys); j++ {
			if !onAnyMonitor(xs[i], ys[j], monitors) {
				return false
			}
		}
	}
	return true
}

func appendWithin(dst []int, lo, hi int, vals ...int) []int {
	for _, v := range vals {
		if v > lo && v < hi {
			dst = append(dst, v)
		}
	}
	return dst
}

func onAnyMonitor(x, y int, monitors []Monitor) bool {
	p := image.Pt(x, y)
	for _, m := range monitors {
		if p.In(m.Bounds.Image()) {
			return true
		}
	}
	return false
}
