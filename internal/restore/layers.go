package restore

import (
	"context"
	"fmt"

	"sheetfetch/internal/tensor"
)

// Network maps a 1-channel page tensor to a restored tensor of the same
// spatial size.
type Network interface {
	Forward(ctx context.Context, pool *tensor.Pool, x *tensor.Tensor) (*tensor.Tensor, error)
}

func param(state StateDict, name string) (Param, error) {
	p, ok := state[name]
	if !ok {
		return Param{}, fmt.Errorf("missing parameter %q", name)
	}
	return p, nil
}

func loadConv(state StateDict, prefix string) (*tensor.Conv2D, error) {
	weight, err := param(state, prefix+".weight")
	if err != nil {
		return nil, err
	}
	if len(weight.Shape) != 4 || weight.Shape[2] != weight.Shape[3] {
		return nil, fmt.Errorf("%s.weight: unexpected shape %v", prefix, weight.Shape)
	}
	var bias []float32
	if b, ok := state[prefix+".bias"]; ok {
		bias = b.Data
	}
	conv, err := tensor.NewConv2D(weight.Shape[1], weight.Shape[0], weight.Shape[2], weight.Data, bias)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", prefix, err)
	}
	return conv, nil
}

func loadConvTranspose(state StateDict, prefix string) (*tensor.ConvTranspose2x2, error) {
	weight, err := param(state, prefix+".weight")
	if err != nil {
		return nil, err
	}
	if len(weight.Shape) != 4 || weight.Shape[2] != 2 || weight.Shape[3] != 2 {
		return nil, fmt.Errorf("%s.weight: expected 2x2 transposed kernel, got %v", prefix, weight.Shape)
	}
	var bias []float32
	if b, ok := state[prefix+".bias"]; ok {
		bias = b.Data
	}
	ct, err := tensor.NewConvTranspose2x2(weight.Shape[0], weight.Shape[1], weight.Data, bias)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", prefix, err)
	}
	return ct, nil
}

func loadBatchNorm(state StateDict, prefix string) (*tensor.BatchNorm, error) {
	names := []string{".weight", ".bias", ".running_mean", ".running_var"}
	values := make([][]float32, len(names))
	for i, suffix := range names {
		p, err := param(state, prefix+suffix)
		if err != nil {
			return nil, err
		}
		values[i] = p.Data
	}
	bn, err := tensor.NewBatchNorm(values[0], values[1], values[2], values[3], tensor.BatchNormEpsilon)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", prefix, err)
	}
	return bn, nil
}

// convBlock is conv, batchnorm, relu, conv, batchnorm, optionally relu.
type convBlock struct {
	conv1, conv2 *tensor.Conv2D
	bn1, bn2     *tensor.BatchNorm
	finalReLU    bool
}

// loadConvBlock reads a block whose children are numbered conv=0, bn=1,
// conv=3, bn=4.
func loadConvBlock(state StateDict, prefix string, finalReLU bool) (*convBlock, error) {
	var (
		b   = &convBlock{finalReLU: finalReLU}
		err error
	)
	if b.conv1, err = loadConv(state, prefix+".0"); err != nil {
		return nil, err
	}
	if b.bn1, err = loadBatchNorm(state, prefix+".1"); err != nil {
		return nil, err
	}
	if b.conv2, err = loadConv(state, prefix+".3"); err != nil {
		return nil, err
	}
	if b.bn2, err = loadBatchNorm(state, prefix+".4"); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *convBlock) forward(ctx context.Context, pool *tensor.Pool, x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := b.conv1.Forward(ctx, pool, x)
	if err != nil {
		return nil, err
	}
	if err := b.bn1.Apply(out); err != nil {
		return nil, err
	}
	tensor.ReLU(out)
	if out, err = b.conv2.Forward(ctx, pool, out); err != nil {
		return nil, err
	}
	if err := b.bn2.Apply(out); err != nil {
		return nil, err
	}
	if b.finalReLU {
		tensor.ReLU(out)
	}
	return out, nil
}
