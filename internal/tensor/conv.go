package tensor

import (
	"context"
	"fmt"
)

// Conv2D is a stride-1 square-kernel convolution with symmetric zero padding.
// Weight layout is (Out, In, K, K).
type Conv2D struct {
	In, Out int
	K       int
	Padding int
	Weight  []float32
	Bias    []float32
}

// NewConv2D validates parameter sizes. Padding is K/2 so spatial size is kept
// for odd kernels.
func NewConv2D(in, out, k int, weight, bias []float32) (*Conv2D, error) {
	if in <= 0 || out <= 0 || k <= 0 {
		return nil, fmt.Errorf("conv2d: invalid shape in=%d out=%d k=%d", in, out, k)
	}
	if len(weight) != out*in*k*k {
		return nil, fmt.Errorf("conv2d: weight has %d elements, want %d", len(weight), out*in*k*k)
	}
	if bias != nil && len(bias) != out {
		return nil, fmt.Errorf("conv2d: bias has %d elements, want %d", len(bias), out)
	}
	return &Conv2D{In: in, Out: out, K: k, Padding: k / 2, Weight: weight, Bias: bias}, nil
}

// Forward applies the convolution.
func (c *Conv2D) Forward(ctx context.Context, pool *Pool, in *Tensor) (*Tensor, error) {
	if in.C != c.In {
		return nil, fmt.Errorf("conv2d: input has %d channels, want %d", in.C, c.In)
	}
	outH := in.H + 2*c.Padding - c.K + 1
	outW := in.W + 2*c.Padding - c.K + 1
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("conv2d: input %s too small for kernel %d", in, c.K)
	}
	out := New(c.Out, outH, outW)
	err := pool.run(ctx, c.Out, func(oc int) {
		c.channel(in, out, oc)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Conv2D) channel(in, out *Tensor, oc int) {
	dst := out.Channel(oc)
	if c.Bias != nil {
		b := c.Bias[oc]
		for i := range dst {
			dst[i] = b
		}
	}
	k, p := c.K, c.Padding
	for ic := 0; ic < c.In; ic++ {
		src := in.Channel(ic)
		base := (oc*c.In + ic) * k * k
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				w := c.Weight[base+ky*k+kx]
				if w == 0 {
					continue
				}
				xStart := max(0, p-kx)
				xEnd := min(out.W, in.W+p-kx)
				if xStart >= xEnd {
					continue
				}
				shift := kx - p
				for oy := 0; oy < out.H; oy++ {
					iy := oy + ky - p
					if iy < 0 || iy >= in.H {
						continue
					}
					srcRow := src[iy*in.W : (iy+1)*in.W]
					dstRow := dst[oy*out.W : (oy+1)*out.W]
					for ox := xStart; ox < xEnd; ox++ {
						dstRow[ox] += w * srcRow[ox+shift]
					}
				}
			}
		}
	}
}

// ConvTranspose2x2 is a transposed convolution with kernel 2 and stride 2,
// doubling both spatial dimensions. Weight layout is (In, Out, 2, 2).
type ConvTranspose2x2 struct {
	In, Out int
	Weight  []float32
	Bias    []float32
}

// NewConvTranspose2x2 validates parameter sizes.
func NewConvTranspose2x2(in, out int, weight, bias []float32) (*ConvTranspose2x2, error) {
	if len(weight) != in*out*4 {
		return nil, fmt.Errorf("conv_transpose: weight has %d elements, want %d", len(weight), in*out*4)
	}
	if bias != nil && len(bias) != out {
		return nil, fmt.Errorf("conv_transpose: bias has %d elements, want %d", len(bias), out)
	}
	return &ConvTranspose2x2{In: in, Out: out, Weight: weight, Bias: bias}, nil
}

// Forward applies the transposed convolution.
func (c *ConvTranspose2x2) Forward(ctx context.Context, pool *Pool, in *Tensor) (*Tensor, error) {
	if in.C != c.In {
		return nil, fmt.Errorf("conv_transpose: input has %d channels, want %d", in.C, c.In)
	}
	out := New(c.Out, in.H*2, in.W*2)
	err := pool.run(ctx, c.Out, func(oc int) {
		dst := out.Channel(oc)
		if c.Bias != nil {
			b := c.Bias[oc]
			for i := range dst {
				dst[i] = b
			}
		}
		for ic := 0; ic < c.In; ic++ {
			src := in.Channel(ic)
			base := (ic*c.Out + oc) * 4
			w00, w01, w10, w11 := c.Weight[base], c.Weight[base+1], c.Weight[base+2], c.Weight[base+3]
			for y := 0; y < in.H; y++ {
				row0 := dst[(2*y)*out.W : (2*y+1)*out.W]
				row1 := dst[(2*y+1)*out.W : (2*y+2)*out.W]
				for x := 0; x < in.W; x++ {
					v := src[y*in.W+x]
					row0[2*x] += v * w00
					row0[2*x+1] += v * w01
					row1[2*x] += v * w10
					row1[2*x+1] += v * w11
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
