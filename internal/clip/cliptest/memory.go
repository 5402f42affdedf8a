// Package cliptest provides an in-memory clipboard for tests.
package cliptest

import (
	"bytes"
	"context"
	"sync"

	"go.klb.dev/clipsnap/internal/clip"
)

// Memory is a clip.Port backed by process memory. Like a real clipboard,
// a write replaces both kinds; Put can stage text and image together to
// mimic applications that offer several targets at once.
type Memory struct {
	mu       sync.Mutex
	text     *string
	image    []byte
	reads    int
	writes   int
	readErr  error
	writeErr error
	block    chan struct{}
	owned    bool
}

var (
	_ clip.Port  = (*Memory)(nil)
	_ clip.Owner = (*Memory)(nil)
)

// NewMemory returns an empty clipboard.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Name() string { return "memory" }
func (m *Memory) Close()       {}

// Put replaces the clipboard with the given payloads; nil means absent.
func (m *Memory) Put(text *string, image []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.image = bytes.Clone(image)
	m.owned = false
}

// PutText places text on the clipboard as another application would.
func (m *Memory) PutText(s string) { m.Put(&s, nil) }

// PutImage places PNG bytes on the clipboard as another application would.
func (m *Memory) PutImage(b []byte) { m.Put(nil, b) }

// FailReads makes subsequent reads return err (nil to clear).
func (m *Memory) FailReads(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// FailWrites makes subsequent writes return err (nil to clear).
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Block makes reads wait until the returned func is called.
func (m *Memory) Block() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block = ch
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.block = nil
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Reads returns the number of Get calls served.
func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Writes returns the number of successful Set calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Text returns the text currently on the clipboard.
func (m *Memory) Text() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.text == nil {
		return "", false
	}
	return *m.text, true
}

// Image returns the image currently on the clipboard.
func (m *Memory) Image() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.image), m.image != nil
}

func (m *Memory) wait(ctx context.Context) error {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return clip.ErrTimeout
	}
}

func (m *Memory) GetText(ctx context.Context) (string, bool, error) {
	if err := m.wait(ctx); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return "", false, m.readErr
	}
	if m.text == nil || *m.text == "" {
		return "", false, nil
	}
	return *m.text, true, nil
}

func (m *Memory) GetImage(ctx context.Context) ([]byte, bool, error) {
	if err := m.wait(ctx); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	if len(m.image) == 0 {
		return nil, false, nil
	}
	return bytes.Clone(m.image), true, nil
}

func (m *Memory) SetText(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.text = &text
	m.image = nil
	m.writes++
	m.owned = true
	return nil
}

func (m *Memory) SetImage(_ context.Context, png []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.text = nil
	m.image = bytes.Clone(png)
	m.writes++
	m.owned = true
	return nil
}

// Owned reports whether the last change came from SetText or SetImage
// rather than Put.
func (m *Memory) Owned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owned
}
