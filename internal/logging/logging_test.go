package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatText, ParseFormat("TINT"))
	assert.Equal(t, FormatText, ParseFormat(" text "))
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatAuto, ParseFormat("yaml"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestIsTTY_NotAFile(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestNewHandler_JSONFollowsLevel(t *testing.T) {
	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelWarn)
	log := slog.New(NewHandler(&buf, FormatAuto, lv))

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	lv.Set(slog.LevelInfo)
	log.Info("entry stored", "id", 7)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "entry stored", rec["msg"])
	assert.EqualValues(t, 7, rec["id"])
}

func TestNewHandler_Text(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, FormatText, slog.LevelInfo)).Info("capture done", "kind", "image")
	assert.Contains(t, buf.String(), "capture done")
	assert.Contains(t, buf.String(), "image")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))

	long := strings.Repeat("ä", 130)
	p := Preview(long)
	assert.Equal(t, strings.Repeat("ä", 120)+"…", p)
}
