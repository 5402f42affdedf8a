// Package message defines the clipsnap IPC protocol.
//
// All messages are newline-delimited JSON, one message per line. Binary
// payloads (PNG images and previews) travel as base64 strings, the standard
// encoding/json representation of []byte.
//
// A client sends one request per connection and reads one RESULT or ERROR
// back. Closing the connection early abandons the request; a pending CAPTURE
// is cancelled. WATCH is the exception: the daemon keeps the connection open and
// streams EVENT messages until the client hangs up.
package message

import (
	"encoding/json"
	"fmt"

	"go.klb.dev/clipsnap/internal/capture"
	"go.klb.dev/clipsnap/internal/history"
	"go.klb.dev/clipsnap/internal/monitor"
)

// Type identifies the kind of message.
type Type string

// Requests.
const (
	TypeCapture Type = "CAPTURE"
	TypeCancel  Type = "CANCEL"
	TypeRecent  Type = "RECENT"
	TypeSearch  Type = "SEARCH"
	TypeGet     Type = "GET"
	TypeRestore Type = "RESTORE"
	TypeDelete  Type = "DELETE"
	TypeClear   Type = "CLEAR"
	TypeCleanup Type = "CLEANUP"
	TypeStatus  Type = "STATUS"
	TypeWatch   Type = "WATCH"
)

// Responses.
const (
	TypeResult Type = "RESULT"
	TypeEvent  Type = "EVENT"
	TypeError  Type = "ERROR"
)

// Code names the error kind carried by an ERROR message.
type Code string

const (
	CodeInProgress      Code = "in_progress"
	CodeDevice          Code = "device"
	CodeTimeout         Code = "timeout"
	CodeInvalidRegion   Code = "invalid_region"
	CodePayloadTooLarge Code = "payload_too_large"
	CodeCorruptData     Code = "corrupt_data"
	CodeNotFound        Code = "not_found"
	CodeStorage         Code = "storage"
	CodeBadRequest      Code = "bad_request"
	CodeInternal        Code = "internal"
)

// Capture is the result of a CAPTURE request.
type Capture struct {
	Outcome capture.Outcome `json:"outcome"`
	Entry   *history.Entry  `json:"entry,omitempty"`
	// Warning explains a partial success.
	Warning string `json:"warning,omitempty"`
}

// Status is the result of a STATUS request. ClipboardOwned is set while the
// daemon still owns the clipboard contents it published last.
type Status struct {
	Version        string        `json:"version"`
	Database       string        `json:"database"`
	Clipboard      string        `json:"clipboard"`
	ClipboardOwned bool          `json:"clipboard_owned"`
	Store          history.Stats `json:"store"`
	Monitor        monitor.Stats `json:"monitor"`
	CaptureActive  bool          `json:"capture_active"`
	Watchers       int           `json:"watchers"`
}

// Message is the top-level wire envelope.
type Message struct {
	// Always present
	Type Type `json:"type"`

	// RECENT, SEARCH: Limit <= 0 means no limit.
	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`

	// GET, RESTORE, DELETE
	ID int64 `json:"id,omitempty"`

	// CLEAR: empty Kind clears everything.
	Kind history.Kind `json:"kind,omitempty"`

	// WATCH: empty Ops streams every change.
	Ops []history.Op `json:"ops,omitempty"`

	// RESULT
	Entries []history.Entry `json:"entries,omitempty"`
	Entry   *history.Entry  `json:"entry,omitempty"`
	Capture *Capture        `json:"capture,omitempty"`
	Status  *Status         `json:"status,omitempty"`
	Removed int64           `json:"removed,omitempty"`
	// CANCEL: whether a capture was running.
	Cancelled bool `json:"cancelled,omitempty"`

	// EVENT
	Change *history.Change `json:"change,omitempty"`

	// ERROR
	Error string `json:"error,omitempty"`
	Code  Code   `json:"code,omitempty"`
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	return &m, nil
}

// Errorf builds an ERROR message.
func Errorf(code Code, format string, args ...any) *Message {
	return &Message{Type: TypeError, Code: code, Error: fmt.Sprintf(format, args...)}
}

// Err returns the error carried by an ERROR message, or nil.
func (m *Message) Err() error {
	if m.Type != TypeError {
		return nil
	}
	return &RemoteError{Code: m.Code, Msg: m.Error}
}

// RemoteError is an error reported by the daemon.
type RemoteError struct {
	Code Code
	Msg  string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s (%s)", e.Msg, e.Code)
}
