package imaging

import (
	"image"

	"github.com/nfnt/resize"
)

// Model input geometry.
const (
	InputSize = 224
	Channels  = 3
)

// Tensor is a float32 NHWC tensor of shape [1, InputSize, InputSize, Channels]
// with values in [0, 1].
type Tensor struct {
	Data []float32
}

// Shape returns the tensor dimensions.
func (t *Tensor) Shape() [4]int {
	return [4]int{1, InputSize, InputSize, Channels}
}

// Len is the number of elements in a prepared tensor.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// At returns the value of channel c at row y, column x.
func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[(y*InputSize+x)*Channels+c]
}

// Prepare resizes the image to exactly InputSize x InputSize with bilinear
// resampling, ignoring aspect ratio, then scales each channel by 1/255.
func Prepare(d *Decoded) *Tensor {
	resized := resizeRGBA(d)

	t := &Tensor{Data: make([]float32, InputSize*InputSize*Channels)}
	i := 0
	for y := range InputSize {
		row := resized.Pix[y*resized.Stride:]
		for x := range InputSize {
			p := row[x*4:]
			t.Data[i+0] = float32(p[0]) / 255
			t.Data[i+1] = float32(p[1]) / 255
			t.Data[i+2] = float32(p[2]) / 255
			i += Channels
		}
	}
	return t
}

// resizeRGBA scales the source to the model input size. nfnt/resize keeps
// *image.RGBA as *image.RGBA; anything else is normalised again.
func resizeRGBA(d *Decoded) *image.RGBA {
	out := resize.Resize(InputSize, InputSize, d.RGB, resize.Bilinear)
	if rgba, ok := out.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	return toOpaqueRGBA(out)
}
