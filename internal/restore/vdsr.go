package restore

import (
	"context"
	"fmt"
	"strconv"

	"sheetfetch/internal/tensor"
)

const vdsrBlocks = 9

// VDSR is the super-resolution network: conv, ReLU, batchnorm head; nine
// conv/bn/relu/conv/bn blocks; a final conv; a global residual add of the
// input; clamp to [0, 1].
type VDSR struct {
	head   *tensor.Conv2D
	headBN *tensor.BatchNorm
	blocks [vdsrBlocks]*convBlock
	tail   *tensor.Conv2D
}

// NewVDSR builds the network from a state dict laid out as layers.0 (conv),
// layers.2 (bn), layers.3..11 (blocks), layers.12 (final conv).
func NewVDSR(state StateDict) (*VDSR, error) {
	v := &VDSR{}
	var err error
	if v.head, err = loadConv(state, "layers.0"); err != nil {
		return nil, fmt.Errorf("vdsr: %w", err)
	}
	if v.headBN, err = loadBatchNorm(state, "layers.2"); err != nil {
		return nil, fmt.Errorf("vdsr: %w", err)
	}
	for i := 0; i < vdsrBlocks; i++ {
		if v.blocks[i], err = loadConvBlock(state, "layers."+strconv.Itoa(3+i), false); err != nil {
			return nil, fmt.Errorf("vdsr: %w", err)
		}
	}
	if v.tail, err = loadConv(state, "layers."+strconv.Itoa(3+vdsrBlocks)); err != nil {
		return nil, fmt.Errorf("vdsr: %w", err)
	}
	if v.head.In != 1 || v.tail.Out != 1 {
		return nil, fmt.Errorf("vdsr: expected single-channel input and output, got %d -> %d", v.head.In, v.tail.Out)
	}
	return v, nil
}

// Forward runs the network on a (1, H, W) tensor.
func (v *VDSR) Forward(ctx context.Context, pool *tensor.Pool, x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := v.head.Forward(ctx, pool, x)
	if err != nil {
		return nil, fmt.Errorf("vdsr head: %w", err)
	}
	tensor.ReLU(out)
	if err := v.headBN.Apply(out); err != nil {
		return nil, fmt.Errorf("vdsr head: %w", err)
	}
	for i, block := range v.blocks {
		if out, err = block.forward(ctx, pool, out); err != nil {
			return nil, fmt.Errorf("vdsr block %d: %w", i, err)
		}
	}
	if out, err = v.tail.Forward(ctx, pool, out); err != nil {
		return nil, fmt.Errorf("vdsr tail: %w", err)
	}
	if err := tensor.AddInPlace(out, x); err != nil {
		return nil, fmt.Errorf("vdsr residual: %w", err)
	}
	tensor.Clamp(out, 0, 1)
	return out, nil
}
