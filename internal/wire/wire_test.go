package wire

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipsnap/internal/history"
	"go.klb.dev/clipsnap/internal/message"
)

func pair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return New(a), New(b)
}

func TestRoundTrip(t *testing.T) {
	client, server := pair(t)
	png := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 50_000)

	go func() {
		_ = server.WriteMsg(&message.Message{
			Type:  message.TypeResult,
			Entry: &history.Entry{ID: 4, Kind: history.KindImage, Image: png},
		})
	}()

	got, err := client.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, message.TypeResult, got.Type)
	require.NotNil(t, got.Entry)
	assert.Equal(t, png, got.Entry.Image)
}

func TestReadMsg_Sequence(t *testing.T) {
	client, server := pair(t)
	go func() {
		_ = server.WriteMsg(&message.Message{Type: message.TypeStatus})
		_ = server.WriteMsg(&message.Message{Type: message.TypeWatch})
	}()

	first, err := client.ReadMsg()
	require.NoError(t, err)
	second, err := client.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, message.TypeStatus, first.Type)
	assert.Equal(t, message.TypeWatch, second.Type)
}

func TestReadMsg_TruncatedLine(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	go func() {
		_, _ = b.Write([]byte(`{"type":"STAT`))
		_ = b.Close()
	}()
	_, err := New(a).ReadMsg()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadMsg_EOF(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	_ = b.Close()
	_, err := New(a).ReadMsg()
	require.ErrorIs(t, err, io.EOF)
}
