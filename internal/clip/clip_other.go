//go:build !darwin && !windows && !linux

package clip

import "time"

// New returns a no-op backend suitable for headless containers.
func New(_ time.Duration) Port {
	return Headless()
}
