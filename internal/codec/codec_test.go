package codec

import (
	"bytes"
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomImage(w, h int, seed uint64, opaque bool) *image.NRGBA {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = byte(r.UintN(256))
	}
	if opaque {
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xff
		}
	}
	return img
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		opaque bool
	}{
		{"single pixel", 1, 1, true},
		{"opaque screen grab", 200, 100, true},
		{"translucent", 37, 53, false},
		{"tall strip", 3, 400, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := randomImage(tt.w, tt.h, uint64(i+1), tt.opaque)
			enc, err := EncodeLossless(src)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(enc, []byte("\x89PNG\r\n\x1a\n")))

			got, err := Decode(enc)
			require.NoError(t, err)
			assert.Equal(t, src.Rect, got.Rect)
			assert.Equal(t, src.Pix, got.Pix)
		})
	}
}

func TestEncodeLossless_Empty(t *testing.T) {
	_, err := EncodeLossless(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.Error(t, err)
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode([]byte("definitely not a png"))
	require.ErrorIs(t, err, ErrCorruptData)

	_, err = Thumbnail([]byte{0x89, 'P', 'N', 'G'}, 150)
	require.ErrorIs(t, err, ErrCorruptData)
}

func TestToNRGBA_OffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 20, 12, 21))
	src.Set(10, 20, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	src.Set(11, 20, color.RGBA{R: 4, G: 5, B: 6, A: 255})

	got := ToNRGBA(src)
	assert.Equal(t, image.Rect(0, 0, 2, 1), got.Rect)
	assert.Equal(t, []byte{1, 2, 3, 255, 4, 5, 6, 255}, got.Pix)
}

func TestThumbnail_PreservesAspect(t *testing.T) {
	enc, err := EncodeLossless(randomImage(200, 100, 7, true))
	require.NoError(t, err)

	thumb, err := Thumbnail(enc, DefaultThumbnailEdge)
	require.NoError(t, err)

	w, h, err := DecodeConfig(thumb)
	require.NoError(t, err)
	assert.LessOrEqual(t, w, 150)
	assert.LessOrEqual(t, h, 150)
	assert.Equal(t, 150, w)
	assert.Equal(t, 75, h)
}

func TestThumbnail_NoUpscale(t *testing.T) {
	enc, err := EncodeLossless(randomImage(40, 30, 3, false))
	require.NoError(t, err)

	thumb, err := Thumbnail(enc, 150)
	require.NoError(t, err)
	assert.Equal(t, enc, thumb)

	// The copy must not alias the source.
	thumb[len(thumb)-1] ^= 0xff
	assert.NotEqual(t, enc[len(enc)-1], thumb[len(thumb)-1])
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, edge int
		ww, wh     int
	}{
		{200, 100, 150, 150, 75},
		{100, 200, 150, 75, 150},
		{1000, 1, 150, 150, 1},
		{150, 150, 150, 150, 150},
		{3, 2, 150, 3, 2},
	}
	for _, tt := range tests {
		gw, gh := FitWithin(tt.w, tt.h, tt.edge)
		assert.Equal(t, tt.ww, gw, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wh, gh, "%dx%d", tt.w, tt.h)
	}
}
