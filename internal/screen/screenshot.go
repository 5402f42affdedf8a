package screen

import (
	"image"
	"time"

	"github.com/kbinani/screenshot"
)

// screenshotDriver reads the desktop through github.com/kbinani/screenshot
// (XGetImage/SHM on X11, CoreGraphics on macOS, GDI on Windows).
type screenshotDriver struct{}

// New returns a Display backed by the platform screenshot driver.
func New(timeout time.Duration) *Display {
	return NewDisplay(screenshotDriver{}, timeout)
}

func (screenshotDriver) Displays() ([]image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	bounds := make([]image.Rectangle, 0, n)
	for i := range n {
		bounds = append(bounds, screenshot.GetDisplayBounds(i))
	}
	return bounds, nil
}

func (screenshotDriver) Capture(r image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(r)
}
