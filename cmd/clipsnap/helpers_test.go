package main

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipsnap/internal/codec"
	"go.klb.dev/clipsnap/internal/history"
)

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n b\t\tc\n", 10))
	assert.Equal(t, "héllo…", oneLine("héllo world", 5))
	assert.Equal(t, "", oneLine("   ", 5))
}

func TestFmtSize(t *testing.T) {
	assert.Equal(t, "512 B", fmtSize(512))
	assert.Equal(t, "1.5 KiB", fmtSize(1536))
	assert.Equal(t, "2.0 MiB", fmtSize(2<<20))
}

func TestFmtAge(t *testing.T) {
	assert.Equal(t, "-", fmtAge(time.Time{}))
	assert.Equal(t, "5m ago", fmtAge(time.Now().Add(-5*time.Minute)))
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	for _, s := range []string{"0", "-1", "abc", ""} {
		_, err := parseID(s)
		assert.Error(t, err, s)
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "hello world", describe(history.Entry{Kind: history.KindText, Text: "hello\nworld"}))

	preview, err := codec.EncodeLossless(image.NewNRGBA(image.Rect(0, 0, 150, 75)))
	require.NoError(t, err)
	assert.Equal(t, "[image, preview 150x75]", describe(history.Entry{Kind: history.KindImage, Preview: preview}))
	assert.Equal(t, "[image]", describe(history.Entry{Kind: history.KindImage}))
}
