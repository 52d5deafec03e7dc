// Package imaging turns uploaded image bytes into the fixed tensor the
// classifier consumes.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/skinscan/skinscan/internal/errors"
)

// DefaultMaxPixels bounds width*height when no explicit limit is set.
const DefaultMaxPixels = 40_000_000

// Sentinel causes wrapped by DecodeError.
var (
	ErrEmptyImage    = errors.NewStd("image data is empty")
	ErrUnknownFormat = errors.NewStd("unsupported or unrecognised image format")
	ErrTooManyPixels = errors.NewStd("image dimensions exceed the allowed maximum")
	ErrZeroSize      = errors.NewStd("image has zero width or height")
)

// DecodeError reports bytes that could not be turned into an image. It is
// always the caller's fault.
type DecodeError struct {
	Format string // detected format, empty when unknown
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("invalid %s image: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("invalid image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoded is an opaque RGB pixel grid plus what the decoder learned about it.
type Decoded struct {
	RGB    *image.RGBA // alpha is always 0xff
	Format string      // "jpeg", "png", ...
}

// Width of the source image in pixels.
func (d *Decoded) Width() int { return d.RGB.Rect.Dx() }

// Height of the source image in pixels.
func (d *Decoded) Height() int { return d.RGB.Rect.Dy() }

// Decoder decodes uploads with a pixel budget.
type Decoder struct {
	MaxPixels int // <= 0 means DefaultMaxPixels
}

// Decode decodes data with DefaultMaxPixels.
func Decode(data []byte) (*Decoded, error) {
	return Decoder{}.Decode(data)
}

// Decode parses data in any registered format and converts it to 3-channel
// RGB. Transparency is discarded without compositing. The header is checked
// against MaxPixels before any pixel data is decoded.
func (d Decoder) Decode(data []byte) (*Decoded, error) {
	if len(data) == 0 {
		return nil, decodeFailure("", len(data), ErrEmptyImage)
	}

	maxPixels := d.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, decodeFailure("", len(data), ErrUnknownFormat)
		}
		return nil, decodeFailure(format, len(data), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, decodeFailure(format, len(data), ErrZeroSize)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, decodeFailure(format, len(data),
			fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, decodeFailure(format, len(data), err)
	}
	if img.Bounds().Empty() {
		return nil, decodeFailure(format, len(data), ErrZeroSize)
	}

	return &Decoded{RGB: toOpaqueRGBA(img), Format: format}, nil
}

func decodeFailure(format string, size int, cause error) error {
	enhanced := errors.New(cause).
		Component("imaging").
		Category(errors.CategoryImageDecode).
		ImageContext(format, size).
		Build()
	return &DecodeError{Format: format, Err: enhanced}
}

// toOpaqueRGBA copies img into a zero-origin RGBA with straight (not
// premultiplied) colour and full alpha.
func toOpaqueRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			di := dst.PixOffset(0, y)
			for x := 0; x < b.Dx(); x++ {
				dst.Pix[di+0] = src.Pix[si+0]
				dst.Pix[di+1] = src.Pix[si+1]
				dst.Pix[di+2] = src.Pix[si+2]
				dst.Pix[di+3] = 0xff
				si += 4
				di += 4
			}
		}
	case *image.YCbCr:
		for y := 0; y < b.Dy(); y++ {
			di := dst.PixOffset(0, y)
			for x := 0; x < b.Dx(); x++ {
				yi := src.YOffset(b.Min.X+x, b.Min.Y+y)
				ci := src.COffset(b.Min.X+x, b.Min.Y+y)
				r, g, bl := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				dst.Pix[di+0] = r
				dst.Pix[di+1] = g
				dst.Pix[di+2] = bl
				dst.Pix[di+3] = 0xff
				di += 4
			}
		}
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			di := dst.PixOffset(0, y)
			for x := 0; x < b.Dx(); x++ {
				v := src.Pix[si+x]
				dst.Pix[di+0] = v
				dst.Pix[di+1] = v
				dst.Pix[di+2] = v
				dst.Pix[di+3] = 0xff
				di += 4
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			di := dst.PixOffset(0, y)
			for x := 0; x < b.Dx(); x++ {
				c, _ := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				dst.Pix[di+0] = c.R
				dst.Pix[di+1] = c.G
				dst.Pix[di+2] = c.B
				dst.Pix[di+3] = 0xff
				di += 4
			}
		}
	}

	return dst
}
