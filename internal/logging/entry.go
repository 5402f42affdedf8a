package logging

import (
	"context"
	"log/slog"

	"go.klb.dev/clipsnap/internal/history"
)

const previewRunes = 120

// LogEntry logs a history entry at INFO (id, kind, size) and, at DEBUG, a
// text preview of up to 120 characters.
func LogEntry(event, source string, e history.Entry) {
	slog.Info(event, "source", source, "id", e.ID, "kind", e.Kind, "size_bytes", e.ByteSize)

	if e.Kind != history.KindText || !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	slog.Debug("clipboard text", "id", e.ID, "preview", Preview(e.Text))
}

// Preview shortens s to at most 120 runes, marking the cut with "…".
func Preview(s string) string {
	n := 0
	for i := range s {
		if n == previewRunes {
			return s[:i] + "…"
		}
		n++
	}
	return s
}
