// Package codec converts raw RGBA pixel buffers to and from PNG and renders
// fixed-bound preview thumbnails.
//
// Raw images are *image.NRGBA: four straight-alpha bytes per pixel in R, G,
// B, A order. PNG stores straight alpha, so the round trip is exact for every
// buffer, not only for opaque screen grabs.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	"image/png"

	"golang.org/x/image/draw"
)

// DefaultThumbnailEdge is the default preview bound in pixels.
const DefaultThumbnailEdge = 150

// ErrCorruptData is returned when stored or clipboard bytes cannot be decoded.
var ErrCorruptData = errors.New("corrupt image data")

var encoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// EncodeLossless encodes img as PNG.
func EncodeLossless(img *image.NRGBA) ([]byte, error) {
	if img == nil || img.Rect.Empty() {
		return nil, fmt.Errorf("encode: empty image")
	}
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses PNG bytes into a raw image anchored at (0, 0).
func Decode(b []byte) (*image.NRGBA, error) {
	src, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	return ToNRGBA(src), nil
}

// DecodeConfig returns the dimensions of PNG bytes without decoding pixels.
func DecodeConfig(b []byte) (width, height int, err error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	return cfg.Width, cfg.Height, nil
}

// ToNRGBA returns img as a tightly packed *image.NRGBA whose bounds start at
// the origin, converting or copying only when needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == 4*b.Dx() {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, b.Min, stddraw.Src)
	return dst
}

// Thumbnail renders PNG bytes into a PNG no larger than maxEdge on either
// side, preserving the aspect ratio. Images that already fit are returned as
// a copy of the input; thumbnails never upscale.
func Thumbnail(b []byte, maxEdge int) ([]byte, error) {
	if maxEdge <= 0 {
		return nil, fmt.Errorf("thumbnail: invalid max edge %d", maxEdge)
	}
	w, h, err := DecodeConfig(b)
	if err != nil {
		return nil, err
	}
	if w <= maxEdge && h <= maxEdge {
		return bytes.Clone(b), nil
	}

	src, err := Decode(b)
	if err != nil {
		return nil, err
	}
	tw, th := FitWithin(w, h, maxEdge)
	dst := image.NewNRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return EncodeLossless(dst)
}

// FitWithin scales w×h down so the longer edge equals maxEdge. Neither side
// drops below one pixel.
func FitWithin(w, h, maxEdge int) (int, int) {
	if w <= maxEdge && h <= maxEdge {
		return w, h
	}
	if w >= h {
		th := (h*maxEdge + w/2) / w
		return maxEdge, max(th, 1)
	}
	tw := (w*maxEdge + h/2) / h
	return max(tw, 1), maxEdge
}
