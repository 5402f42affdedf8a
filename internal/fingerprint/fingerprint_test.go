package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("api key alpha"))
	b := Sum([]byte("api key alpha"))
	assert.Equal(t, a, b)
	assert.Equal(t, a, String("api key alpha"))
}

func TestSum_Distinguishes(t *testing.T) {
	assert.NotEqual(t, Sum([]byte("hello")), Sum([]byte("hello ")))
	assert.NotEqual(t, Sum(nil), Sum([]byte{0}))
}

func TestDigest_String(t *testing.T) {
	assert.Equal(t, "ef46db3751d8e999", Sum(nil).String())
}
