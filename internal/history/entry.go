package history

import (
	"fmt"
	"strings"
	"time"

	"go.klb.dev/clipsnap/internal/fingerprint"
)

// Kind is the payload kind of an entry.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// ParseKind accepts "text" or "image" in any case.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindText, KindImage:
		return k, nil
	}
	return "", fmt.Errorf("unknown content kind %q", s)
}

// Entry is one persisted clipboard observation or capture. Text is set iff
// Kind is KindText; Image and Preview are set iff Kind is KindImage.
type Entry struct {
	ID          int64              `json:"id"`
	Kind        Kind               `json:"kind"`
	Text        string             `json:"text,omitempty"`
	Image       []byte             `json:"image,omitempty"`
	Preview     []byte             `json:"preview,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	ByteSize    int64              `json:"byte_size"`
	Fingerprint fingerprint.Digest `json:"fingerprint"`
}

// Summary returns e without its full image payload. Previews and text are
// kept.
func (e Entry) Summary() Entry {
	e.Image = nil
	return e
}

// Op names a change to the store.
type Op string

const (
	OpAdded   Op = "added"
	OpDeleted Op = "deleted"
	OpCleared Op = "cleared"
	OpPruned  Op = "pruned"
)

// Change describes a committed modification. Entry is set for OpAdded
// (as a Summary), ID for OpDeleted, Kind for OpCleared when only one kind
// was removed; Count is the number of rows affected.
type Change struct {
	Op    Op     `json:"op"`
	Entry *Entry `json:"entry,omitempty"`
	ID    int64  `json:"id,omitempty"`
	Kind  Kind   `json:"kind,omitempty"`
	Count int64  `json:"count"`
}

// Stats summarises the store contents.
type Stats struct {
	Text   int64     `json:"text"`
	Image  int64     `json:"image"`
	Bytes  int64     `json:"bytes"`
	Oldest time.Time `json:"oldest,omitzero"`
	Newest time.Time `json:"newest,omitzero"`
}
