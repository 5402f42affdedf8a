package selection

import (
	"image"

	"go.klb.dev/clipsnap/internal/geom"
)

// State is a selection session state.
type State int

const (
	Idle State = iota
	Armed
	Dragging
	Confirmed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Dragging:
		return "dragging"
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// EventKind identifies an input event delivered by a Surface.
type EventKind int

const (
	EventPress EventKind = iota + 1
	EventMotion
	EventRelease
	EventCancel
)

// Event is a pointer or keyboard event in surface-local coordinates.
type Event struct {
	Kind EventKind
	X, Y int
}

// Session is the selection state machine. It holds no surface and does no
// I/O; the Engine feeds it events and renders what it reports.
type Session struct {
	state  State
	anchor image.Point
	rect   geom.Rectangle
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Rect returns the normalised in-progress or confirmed rectangle.
func (s *Session) Rect() geom.Rectangle { return s.rect }

// Done reports whether the session reached a terminal state.
func (s *Session) Done() bool { return s.state == Confirmed || s.state == Cancelled }

// Arm moves an idle session to Armed. It reports false in any other state.
func (s *Session) Arm() bool {
	if s.state != Idle {
		return false
	}
	s.state = Armed
	return true
}

// Handle applies ev and reports whether the rectangle changed.
func (s *Session) Handle(ev Event) bool {
	if s.Done() {
		return false
	}
	if ev.Kind == EventCancel {
		s.state = Cancelled
		s.rect = geom.Rectangle{}
		return true
	}

	switch s.state {
	case Armed:
		if ev.Kind != EventPress {
			return false
		}
		s.state = Dragging
		s.anchor = image.Pt(ev.X, ev.Y)
		s.rect = geom.Rectangle{X: ev.X, Y: ev.Y}
		return true

	case Dragging:
		switch ev.Kind {
		case EventMotion:
			r := geom.FromPoints(s.anchor.X, s.anchor.Y, ev.X, ev.Y)
			if r == s.rect {
				return false
			}
			s.rect = r
			return true
		case EventRelease:
			s.rect = geom.FromPoints(s.anchor.X, s.anchor.Y, ev.X, ev.Y)
			if s.rect.Empty() {
				s.state = Cancelled
				s.rect = geom.Rectangle{}
			} else {
				s.state = Confirmed
			}
			return true
		}
	}
	return false
}
