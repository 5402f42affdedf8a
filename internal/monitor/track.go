package monitor

import (
	"context"

	"go.klb.dev/clipsnap/internal/clip"
	"go.klb.dev/clipsnap/internal/fingerprint"
	"go.klb.dev/clipsnap/internal/history"
)

// Track wraps w so that every successful write is recorded as seen. Writes
// made by this process (captures, restores) then never come back as new
// observations on the next tick. The fingerprint is recorded before the
// write, so a racing tick cannot see the payload as unseen, and rolled back
// if the write fails.
func (m *Monitor) Track(w clip.Writer) clip.Writer {
	return &tracked{m: m, w: w}
}

type tracked struct {
	m *Monitor
	w clip.Writer
}

func (t *tracked) SetText(ctx context.Context, text string) error {
	undo := t.m.claim(history.KindText, fingerprint.String(text))
	if err := t.w.SetText(ctx, text); err != nil {
		undo()
		return err
	}
	return nil
}

func (t *tracked) SetImage(ctx context.Context, png []byte) error {
	undo := t.m.claim(history.KindImage, fingerprint.Sum(png))
	if err := t.w.SetImage(ctx, png); err != nil {
		undo()
		return err
	}
	return nil
}

// claim marks d seen and returns a func restoring the previous state, unless
// something else was recorded in the meantime.
func (m *Monitor) claim(kind history.Kind, d fingerprint.Digest) (undo func()) {
	m.mu.Lock()
	prev, had := m.last[kind]
	m.last[kind] = d
	m.gen[kind]++
	gen := m.gen[kind]
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen[kind] != gen {
			return
		}
		if had {
			m.last[kind] = prev
		} else {
			delete(m.last, kind)
		}
		m.gen[kind]++
	}
}
