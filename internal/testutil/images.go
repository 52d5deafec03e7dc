package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

// Gradient returns a w x h RGBA image with a deterministic colour ramp, so
// resampling has real content to work on.
func Gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: 90, B: uint8(y % 256), A: 255})
		}
	}
	return img
}

// JPEG encodes a gradient image of the given size.
func JPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, Gradient(w, h), &jpeg.Options{Quality: 85}))
	return buf.Bytes()
}

// PNG encodes a gradient image of the given size.
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, Gradient(w, h)))
	return buf.Bytes()
}
