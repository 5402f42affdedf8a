//go:build !linux

package selection

import (
	"context"
	"fmt"
	"runtime"

	"go.klb.dev/clipsnap/internal/geom"
)

type unsupportedOverlay struct{}

// NewOverlay returns the overlay for this platform. Only X11 is supported;
// elsewhere every Open fails.
func NewOverlay() Overlay { return unsupportedOverlay{} }

func (unsupportedOverlay) Open(context.Context, geom.Rectangle) (Surface, error) {
	return nil, fmt.Errorf("%w on %s", ErrOverlayUnavailable, runtime.GOOS)
}
