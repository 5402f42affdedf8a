package clip

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_Completes(t *testing.T) {
	sem := make(chan struct{}, 1)
	ran := false
	err := call(context.Background(), sem, time.Second, func() { ran = true })
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Empty(t, sem)
}

func TestCall_TimesOut(t *testing.T) {
	sem := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)

	err := call(context.Background(), sem, 20*time.Millisecond, func() { <-release })
	require.ErrorIs(t, err, ErrTimeout)

	// The stuck call still holds the semaphore; the next call must not hang.
	start := time.Now()
	err = call(context.Background(), sem, 20*time.Millisecond, func() {})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCall_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := call(ctx, make(chan struct{}), time.Second, func() {})
	require.ErrorIs(t, err, context.Canceled)
}

func TestHeadless(t *testing.T) {
	p := Headless()
	_, ok, err := p.GetText(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = p.GetImage(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, p.SetText(context.Background(), "x"), ErrUnavailable)
	assert.ErrorIs(t, p.SetImage(context.Background(), []byte{1}), ErrUnavailable)
}
