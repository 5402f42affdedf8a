package history

import (
	"context"
	"fmt"

	"go.klb.dev/clipsnap/internal/clip"
	"go.klb.dev/clipsnap/internal/codec"
)

// RestoreToClipboard republishes the payload of entry id through w. Images
// are decoded first so corrupt rows fail with codec.ErrCorruptData instead of
// reaching the clipboard; the stored bytes are published verbatim. The entry
// is left untouched and no new entry is created.
//
// Callers running a monitor should pass a writer that records what it
// publishes (see monitor.Monitor.Track) so the next poll does not store the
// restored payload again.
func (s *Store) RestoreToClipboard(ctx context.Context, id int64, w clip.Writer) (Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	switch e.Kind {
	case KindText:
		err = w.SetText(ctx, e.Text)
	case KindImage:
		if _, derr := codec.Decode(e.Image); derr != nil {
			return Entry{}, fmt.Errorf("restore %d: %w", id, derr)
		}
		err = w.SetImage(ctx, e.Image)
	default:
		return Entry{}, fmt.Errorf("restore %d: unknown kind %q", id, e.Kind)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("restore %d: %w", id, err)
	}
	return e, nil
}
