package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/skinscan/skinscan/internal/errors"
)

func solidNRGBA(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / max(w-1, 1)), G: uint8(y * 255 / max(h-1, 1)), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestDecode_Formats(t *testing.T) {
	t.Parallel()

	src := gradient(64, 48)
	encoders := map[string]func(*bytes.Buffer) error{
		"png":  func(b *bytes.Buffer) error { return png.Encode(b, src) },
		"jpeg": func(b *bytes.Buffer) error { return jpeg.Encode(b, src, nil) },
		"gif":  func(b *bytes.Buffer) error { return gif.Encode(b, src, nil) },
		"bmp":  func(b *bytes.Buffer) error { return bmp.Encode(b, src) },
		"tiff": func(b *bytes.Buffer) error { return tiff.Encode(b, src, nil) },
	}

	for format, encode := range encoders {
		t.Run(format, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, encode(&buf))

			decoded, err := Decode(buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, format, decoded.Format)
			assert.Equal(t, 64, decoded.Width())
			assert.Equal(t, 48, decoded.Height())
			for i := 3; i < len(decoded.RGB.Pix); i += 4 {
				require.Equal(t, uint8(0xff), decoded.RGB.Pix[i])
			}
		})
	}
}

func TestDecode_DropsAlphaWithoutCompositing(t *testing.T) {
	t.Parallel()

	data := encodePNG(t, solidNRGBA(4, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 10}))
	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 255}, decoded.RGB.RGBAAt(1, 1))
}

func TestDecode_GrayscaleBecomesRGB(t *testing.T) {
	t.Parallel()

	gray := image.NewGray(image.Rect(0, 0, 3, 3))
	for i := range gray.Pix {
		gray.Pix[i] = 77
	}
	decoded, err := Decode(encodePNG(t, gray))
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 77, G: 77, B: 77, A: 255}, decoded.RGB.RGBAAt(2, 2))
}

func TestDecode_Palette(t *testing.T) {
	t.Parallel()

	pal := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{
		color.RGBA{R: 10, G: 20, B: 30, A: 255},
		color.RGBA{A: 0},
	})
	pal.SetColorIndex(1, 1, 1)

	decoded, err := Decode(encodePNG(t, pal))
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, decoded.RGB.RGBAAt(0, 0))
	assert.Equal(t, uint8(255), decoded.RGB.RGBAAt(1, 1).A)
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()

	valid := encodeJPEG(t, gradient(32, 32))

	tests := []struct {
		name  string
		data  []byte
		cause error
	}{
		{"nil", nil, ErrEmptyImage},
		{"empty", []byte{}, ErrEmptyImage},
		{"text", []byte("definitely not an image"), ErrUnknownFormat},
		{"truncated jpeg", valid[:len(valid)/2], nil},
		{"header only png", encodePNG(t, gradient(32, 32))[:40], nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decoded, err := Decode(tt.data)
			require.Error(t, err)
			assert.Nil(t, decoded)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.True(t, errors.IsCategory(err, errors.CategoryImageDecode))
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestDecode_PixelBudget(t *testing.T) {
	t.Parallel()

	data := encodePNG(t, gradient(100, 100))

	_, err := Decoder{MaxPixels: 9_999}.Decode(data)
	require.ErrorIs(t, err, ErrTooManyPixels)

	_, err = Decoder{MaxPixels: 10_000}.Decode(data)
	require.NoError(t, err)
}

func TestPrepare_Shape(t *testing.T) {
	t.Parallel()

	sizes := []struct {
		name string
		w, h int
	}{
		{"1x1", 1, 1},
		{"non-square 512x768", 512, 768},
		{"exact input size", InputSize, InputSize},
		{"wide", 1000, 10},
		{"large 3000x2000", 3000, 2000},
	}

	for _, s := range sizes {
		t.Run(s.name, func(t *testing.T) {
			t.Parallel()

			tensor := Prepare(&Decoded{RGB: gradient(s.w, s.h)})
			assert.Equal(t, [4]int{1, InputSize, InputSize, Channels}, tensor.Shape())
			require.Equal(t, InputSize*InputSize*Channels, tensor.Len())
			for _, v := range tensor.Data {
				require.GreaterOrEqual(t, v, float32(0))
				require.LessOrEqual(t, v, float32(1))
			}
		})
	}
}

func TestPrepare_ScalesByChannel(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 50, 80))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 51, 0, 255
	}

	tensor := Prepare(&Decoded{RGB: img})
	assert.InDelta(t, 1.0, tensor.At(0, 0, 0), 1e-6)
	assert.InDelta(t, 0.2, tensor.At(100, 17, 1), 1e-6)
	assert.InDelta(t, 0.0, tensor.At(223, 223, 2), 1e-6)
}

func TestPrepare_Deterministic(t *testing.T) {
	t.Parallel()

	decoded, err := Decode(encodeJPEG(t, gradient(512, 768)))
	require.NoError(t, err)

	first := Prepare(decoded)
	second := Prepare(decoded)
	assert.Equal(t, first.Data, second.Data)
}

func BenchmarkDecodeAndPrepare(b *testing.B) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(1024, 768), nil); err != nil {
		b.Fatal(err)
	}
	data := buf.Bytes()

	b.ReportAllocs()
	for b.Loop() {
		decoded, err := Decode(data)
		if err != nil {
			b.Fatal(err)
		}
		_ = Prepare(decoded)
	}
}
