package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipsnap/internal/history"
)

func TestEncode_OmitsEmptyFields(t *testing.T) {
	b, err := (&Message{Type: TypeRecent, Limit: 5}).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"RECENT","limit":5}`, string(b))
}

func TestDecode_Entry(t *testing.T) {
	m, err := Decode([]byte(`{"type":"RESULT","entry":{"id":3,"kind":"image","preview":"AQID","created_at":"2024-01-02T03:04:05Z","byte_size":9,"fingerprint":7}}`))
	require.NoError(t, err)
	require.NotNil(t, m.Entry)
	assert.Equal(t, history.KindImage, m.Entry.Kind)
	assert.Equal(t, []byte{1, 2, 3}, m.Entry.Preview)
	assert.Nil(t, m.Err())
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	require.Error(t, err)
}

func TestErr(t *testing.T) {
	m := Errorf(CodeNotFound, "entry %d not found", 9)
	err := m.Err()
	require.Error(t, err)

	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, CodeNotFound, re.Code)
	assert.Equal(t, "entry 9 not found (not_found)", err.Error())
}
