package tensor

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Tensor is a dense channel-major (C, H, W) image stack.
type Tensor struct {
	C, H, W int
	Data    []float32
}

// New allocates a zeroed tensor.
func New(c, h, w int) *Tensor {
	return &Tensor{C: c, H: h, W: w, Data: make([]float32, c*h*w)}
}

// Full allocates a tensor with every element set to value.
func Full(c, h, w int, value float32) *Tensor {
	t := New(c, h, w)
	for i := range t.Data {
		t.Data[i] = value
	}
	return t
}

// FromData wraps data without copying. len(data) must equal c*h*w.
func FromData(c, h, w int, data []float32) (*Tensor, error) {
	if len(data) != c*h*w {
		return nil, fmt.Errorf("tensor data length %d does not match shape %dx%dx%d", len(data), c, h, w)
	}
	return &Tensor{C: c, H: h, W: w, Data: data}, nil
}

// Channel returns the backing slice for channel c.
func (t *Tensor) Channel(c int) []float32 {
	size := t.H * t.W
	return t.Data[c*size : (c+1)*size]
}

// At returns the element at (c, y, x).
func (t *Tensor) At(c, y, x int) float32 {
	return t.Data[(c*t.H+y)*t.W+x]
}

// Set stores v at (c, y, x).
func (t *Tensor) Set(c, y, x int, v float32) {
	t.Data[(c*t.H+y)*t.W+x] = v
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{C: t.C, H: t.H, W: t.W, Data: make([]float32, len(t.Data))}
	copy(out.Data, t.Data)
	return out
}

// SameShape reports whether t and o have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.C == o.C && t.H == o.H && t.W == o.W
}

func (t *Tensor) String() string {
	return fmt.Sprintf("tensor[%d,%d,%d]", t.C, t.H, t.W)
}

// Pool bounds the goroutines used by a kernel invocation.
type Pool struct {
	workers int
}

// NewPool returns a pool with the given worker count; values <= 0 use GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

// Workers returns the configured concurrency.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// run calls fn for every index in [0, n). It stops scheduling new work once
// ctx is done.
func (p *Pool) run(ctx context.Context, n int, fn func(i int)) error {
	if p.Workers() == 1 || n == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers())
	for i := 0; i < n; i++ {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
