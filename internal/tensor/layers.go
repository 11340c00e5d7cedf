package tensor

import (
	"fmt"
	"math"
)

// BatchNorm is an inference-mode batch normalization folded into a per-channel
// scale and shift.
type BatchNorm struct {
	Scale []float32
	Shift []float32
}

// BatchNormEpsilon matches the default used when the networks were trained.
const BatchNormEpsilon = 1e-5

// NewBatchNorm folds running statistics and affine parameters.
func NewBatchNorm(gamma, beta, mean, variance []float32, eps float64) (*BatchNorm, error) {
	n := len(gamma)
	if len(beta) != n || len(mean) != n || len(variance) != n {
		return nil, fmt.Errorf("batchnorm: parameter lengths differ (%d, %d, %d, %d)", len(gamma), len(beta), len(mean), len(variance))
	}
	bn := &BatchNorm{Scale: make([]float32, n), Shift: make([]float32, n)}
	for i := 0; i < n; i++ {
		inv := 1 / math.Sqrt(float64(variance[i])+eps)
		scale := float64(gamma[i]) * inv
		bn.Scale[i] = float32(scale)
		bn.Shift[i] = float32(float64(beta[i]) - float64(mean[i])*scale)
	}
	return bn, nil
}

// Apply normalizes t in place.
func (b *BatchNorm) Apply(t *Tensor) error {
	if t.C != len(b.Scale) {
		return fmt.Errorf("batchnorm: input has %d channels, want %d", t.C, len(b.Scale))
	}
	for c := 0; c < t.C; c++ {
		scale, shift := b.Scale[c], b.Shift[c]
		ch := t.Channel(c)
		for i, v := range ch {
			ch[i] = v*scale + shift
		}
	}
	return nil
}

// ReLU clamps negative values to zero in place.
func ReLU(t *Tensor) {
	for i, v := range t.Data {
		if v < 0 {
			t.Data[i] = 0
		}
	}
}

// Clamp limits every element to [lo, hi] in place.
func Clamp(t *Tensor, lo, hi float32) {
	for i, v := range t.Data {
		switch {
		case v < lo:
			t.Data[i] = lo
		case v > hi:
			t.Data[i] = hi
		}
	}
}

// MaxPool2 applies 2x2 max pooling with stride 2. Odd trailing rows and
// columns are dropped.
func MaxPool2(in *Tensor) *Tensor {
	outH, outW := in.H/2, in.W/2
	out := New(in.C, outH, outW)
	for c := 0; c < in.C; c++ {
		src := in.Channel(c)
		dst := out.Channel(c)
		for y := 0; y < outH; y++ {
			r0 := src[(2*y)*in.W:]
			r1 := src[(2*y+1)*in.W:]
			for x := 0; x < outW; x++ {
				m := r0[2*x]
				if v := r0[2*x+1]; v > m {
					m = v
				}
				if v := r1[2*x]; v > m {
					m = v
				}
				if v := r1[2*x+1]; v > m {
					m = v
				}
				dst[y*outW+x] = m
			}
		}
	}
	return out
}

// ResizeNearest resamples every channel to h x w using nearest-neighbour
// lookup src = floor(dst * in / out).
func ResizeNearest(in *Tensor, h, w int) *Tensor {
	if in.H == h && in.W == w {
		return in.Clone()
	}
	out := New(in.C, h, w)
	cols := make([]int, w)
	for x := 0; x < w; x++ {
		cols[x] = min(x*in.W/w, in.W-1)
	}
	for c := 0; c < in.C; c++ {
		src := in.Channel(c)
		dst := out.Channel(c)
		for y := 0; y < h; y++ {
			sy := min(y*in.H/h, in.H-1)
			srcRow := src[sy*in.W : (sy+1)*in.W]
			dstRow := dst[y*w : (y+1)*w]
			for x, sx := range cols {
				dstRow[x] = srcRow[sx]
			}
		}
	}
	return out
}

// Pad surrounds every channel with p elements of value on each side.
func Pad(in *Tensor, p int, value float32) *Tensor {
	out := Full(in.C, in.H+2*p, in.W+2*p, value)
	for c := 0; c < in.C; c++ {
		src := in.Channel(c)
		dst := out.Channel(c)
		for y := 0; y < in.H; y++ {
			copy(dst[(y+p)*out.W+p:(y+p)*out.W+p+in.W], src[y*in.W:(y+1)*in.W])
		}
	}
	return out
}

// Crop returns the h x w window starting at (top, left), clipped to the
// input bounds.
func Crop(in *Tensor, top, left, h, w int) *Tensor {
	top = max(0, top)
	left = max(0, left)
	h = min(h, in.H-top)
	w = min(w, in.W-left)
	if h < 0 {
		h = 0
	}
	if w < 0 {
		w = 0
	}
	out := New(in.C, h, w)
	for c := 0; c < in.C; c++ {
		src := in.Channel(c)
		dst := out.Channel(c)
		for y := 0; y < h; y++ {
			copy(dst[y*w:(y+1)*w], src[(top+y)*in.W+left:(top+y)*in.W+left+w])
		}
	}
	return out
}

// Paste writes src into dst with its top-left corner at (top, left). Parts of
// src falling outside dst are ignored.
func Paste(dst, src *Tensor, top, left int) error {
	if dst.C != src.C {
		return fmt.Errorf("paste: channel mismatch %d vs %d", dst.C, src.C)
	}
	h := min(src.H, dst.H-top)
	w := min(src.W, dst.W-left)
	if h <= 0 || w <= 0 {
		return nil
	}
	for c := 0; c < dst.C; c++ {
		s := src.Channel(c)
		d := dst.Channel(c)
		for y := 0; y < h; y++ {
			copy(d[(top+y)*dst.W+left:(top+y)*dst.W+left+w], s[y*src.W:y*src.W+w])
		}
	}
	return nil
}

// AddInPlace accumulates o into t element-wise.
func AddInPlace(t, o *Tensor) error {
	if !t.SameShape(o) {
		return fmt.Errorf("add: shape mismatch %s vs %s", t, o)
	}
	for i, v := range o.Data {
		t.Data[i] += v
	}
	return nil
}

// Concat stacks a then b along the channel axis.
func Concat(a, b *Tensor) (*Tensor, error) {
	if a.H != b.H || a.W != b.W {
		return nil, fmt.Errorf("concat: spatial mismatch %s vs %s", a, b)
	}
	out := &Tensor{C: a.C + b.C, H: a.H, W: a.W, Data: make([]float32, 0, len(a.Data)+len(b.Data))}
	out.Data = append(out.Data, a.Data...)
	out.Data = append(out.Data, b.Data...)
	return out, nil
}
