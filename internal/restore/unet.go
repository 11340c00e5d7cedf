package restore

import (
	"context"
	"fmt"

	"sheetfetch/internal/tensor"
)

var (
	unetEncoders = []string{"enc1", "enc2", "enc3", "enc4", "enc5"}
	unetDecoders = []string{"dec5", "dec4", "dec3", "dec2", "dec1"}
)

// UNet is the watermark-removal network: five pooled encoder levels, a middle
// block followed by a 2x2 transposed convolution, five decoder levels that
// concatenate the resized deeper output with the matching encoder output, and
// a final 1x1 convolution. Output is clamped to [0, 1].
type UNet struct {
	encoders  [5]*convBlock
	middle    *convBlock
	upsample  *tensor.ConvTranspose2x2
	decoders  [5]*convBlock
	finalConv *tensor.Conv2D
}

// NewUNet builds the network from a state dict. Channel widths come from the
// weight shapes.
func NewUNet(state StateDict) (*UNet, error) {
	u := &UNet{}
	var err error
	for i, name := range unetEncoders {
		if u.encoders[i], err = loadConvBlock(state, name, true); err != nil {
			return nil, fmt.Errorf("unet: %w", err)
		}
	}
	if u.middle, err = loadConvBlock(state, "middle.0", true); err != nil {
		return nil, fmt.Errorf("unet: %w", err)
	}
	if u.upsample, err = loadConvTranspose(state, "middle.1"); err != nil {
		return nil, fmt.Errorf("unet: %w", err)
	}
	for i, name := range unetDecoders {
		if u.decoders[i], err = loadConvBlock(state, name, true); err != nil {
			return nil, fmt.Errorf("unet: %w", err)
		}
	}
	if u.finalConv, err = loadConv(state, "final_conv"); err != nil {
		return nil, fmt.Errorf("unet: %w", err)
	}
	if u.encoders[0].conv1.In != 1 || u.finalConv.Out != 1 {
		return nil, fmt.Errorf("unet: expected single-channel input and output, got %d -> %d", u.encoders[0].conv1.In, u.finalConv.Out)
	}
	return u, nil
}

// Forward runs the network on a (1, H, W) tensor.
func (u *UNet) Forward(ctx context.Context, pool *tensor.Pool, x *tensor.Tensor) (*tensor.Tensor, error) {
	skips := make([]*tensor.Tensor, len(u.encoders))
	in := x
	for i, enc := range u.encoders {
		if i > 0 {
			in = tensor.MaxPool2(in)
		}
		out, err := enc.forward(ctx, pool, in)
		if err != nil {
			return nil, fmt.Errorf("unet %s: %w", unetEncoders[i], err)
		}
		skips[i] = out
		in = out
	}

	mid, err := u.middle.forward(ctx, pool, tensor.MaxPool2(skips[4]))
	if err != nil {
		return nil, fmt.Errorf("unet middle: %w", err)
	}
	if mid, err = u.upsample.Forward(ctx, pool, mid); err != nil {
		return nil, fmt.Errorf("unet middle: %w", err)
	}
	// The deepest skip is trimmed to the upsampled size before the residual
	// add and is used trimmed by the first decoder.
	skips[4] = tensor.Crop(skips[4], 0, 0, mid.H, mid.W)
	if err := tensor.AddInPlace(mid, skips[4]); err != nil {
		return nil, fmt.Errorf("unet middle skip: %w", err)
	}

	cur := mid
	for i, dec := range u.decoders {
		skip := skips[len(skips)-1-i]
		joined, err := tensor.Concat(tensor.ResizeNearest(cur, skip.H, skip.W), skip)
		if err != nil {
			return nil, fmt.Errorf("unet %s: %w", unetDecoders[i], err)
		}
		if cur, err = dec.forward(ctx, pool, joined); err != nil {
			return nil, fmt.Errorf("unet %s: %w", unetDecoders[i], err)
		}
	}

	out, err := u.finalConv.Forward(ctx, pool, cur)
	if err != nil {
		return nil, fmt.Errorf("unet final: %w", err)
	}
	tensor.Clamp(out, 0, 1)
	return out, nil
}
