package clip

import "context"

// headlessBackend is a no-op clipboard backend for environments without a
// display server (headless Linux servers, containers, etc.).
// Reads report an empty clipboard and writes fail with ErrUnavailable.
type headlessBackend struct{}

// Headless returns the no-op backend.
func Headless() Port { return headlessBackend{} }

func (headlessBackend) Name() string { return "headless (no-op)" }

func (headlessBackend) GetText(context.Context) (string, bool, error)  { return "", false, nil }
func (headlessBackend) GetImage(context.Context) ([]byte, bool, error) { return nil, false, nil }
func (headlessBackend) SetText(context.Context, string) error          { return ErrUnavailable }
func (headlessBackend) SetImage(context.Context, []byte) error         { return ErrUnavailable }
func (headlessBackend) Close()                                         {}
