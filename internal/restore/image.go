package restore

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"

	"sheetfetch/internal/tensor"
)

// DecodeImage decodes PNG or JPEG page bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}
	return img, nil
}

// toGray converts to 8-bit luma using the un-premultiplied colour so
// transparent regions keep their RGB value rather than turning black.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			luma := (299*int(c.R) + 587*int(c.G) + 114*int(c.B) + 500) / 1000
			out.Pix[(y-b.Min.Y)*out.Stride+(x-b.Min.X)] = uint8(luma)
		}
	}
	return out
}

// ImageToTensor converts img to grayscale, resizes it bilinearly to w x h,
// and scales pixels to [0, 1].
func ImageToTensor(img image.Image, w, h int) *tensor.Tensor {
	gray := toGray(img)
	if gray.Bounds().Dx() != w || gray.Bounds().Dy() != h {
		scaled := image.NewGray(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(scaled, scaled.Bounds(), gray, gray.Bounds(), draw.Src, nil)
		gray = scaled
	}
	t := tensor.New(1, h, w)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x, v := range row {
			t.Data[y*w+x] = float32(v) / 255
		}
	}
	return t
}

// TensorToGray maps a (1, H, W) tensor in [0, 1] to 8-bit grayscale with
// round(v*255).
func TensorToGray(t *tensor.Tensor) (*image.Gray, error) {
	if t.C != 1 {
		return nil, fmt.Errorf("expected single-channel tensor, got %s", t)
	}
	img := image.NewGray(image.Rect(0, 0, t.W, t.H))
	for y := 0; y < t.H; y++ {
		for x := 0; x < t.W; x++ {
			v := float64(t.Data[y*t.W+x])
			v = math.Max(0, math.Min(1, v))
			img.Pix[y*img.Stride+x] = uint8(math.Round(v * 255))
		}
	}
	return img, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
