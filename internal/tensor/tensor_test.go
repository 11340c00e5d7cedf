package tensor

import (
	"context"
	"math"
	"testing"
)

func seq(c, h, w int) *Tensor {
	t := New(c, h, w)
	for i := range t.Data {
		t.Data[i] = float32(i)
	}
	return t
}

func TestConv2DIdentityKernelKeepsInput(t *testing.T) {
	in := seq(2, 5, 7)
	weight := make([]float32, 2*2*9)
	// out channel o copies input channel o through the kernel centre.
	weight[(0*2+0)*9+4] = 1
	weight[(1*2+1)*9+4] = 1
	conv, err := NewConv2D(2, 2, 3, weight, []float32{0, 0})
	if err != nil {
		t.Fatalf("NewConv2D: %v", err)
	}
	for _, workers := range []int{1, 4} {
		out, err := conv.Forward(context.Background(), NewPool(workers), in)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		if !out.SameShape(in) {
			t.Fatalf("shape changed: %s", out)
		}
		for i := range in.Data {
			if out.Data[i] != in.Data[i] {
				t.Fatalf("workers=%d element %d = %v, want %v", workers, i, out.Data[i], in.Data[i])
			}
		}
	}
}

func TestConv2DZeroPaddingAtBorder(t *testing.T) {
	in := Full(1, 3, 3, 1)
	weight := make([]float32, 9)
	for i := range weight {
		weight[i] = 1
	}
	conv, err := NewConv2D(1, 1, 3, weight, []float32{0.5})
	if err != nil {
		t.Fatalf("NewConv2D: %v", err)
	}
	out, err := conv.Forward(context.Background(), NewPool(1), in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	want := []float32{4.5, 6.5, 4.5, 6.5, 9.5, 6.5, 4.5, 6.5, 4.5}
	for i, v := range want {
		if out.Data[i] != v {
			t.Fatalf("element %d = %v, want %v (%v)", i, out.Data[i], v, out.Data)
		}
	}
}

func TestConv2DPointwise(t *testing.T) {
	in := seq(2, 2, 2)
	conv, err := NewConv2D(2, 1, 1, []float32{1, -1}, []float32{10})
	if err != nil {
		t.Fatalf("NewConv2D: %v", err)
	}
	out, err := conv.Forward(context.Background(), NewPool(2), in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	for i, v := range out.Data {
		if v != 6 {
			t.Fatalf("element %d = %v, want 6", i, v)
		}
	}
}

func TestConv2DRejectsWrongChannels(t *testing.T) {
	conv, err := NewConv2D(3, 1, 1, []float32{1, 1, 1}, nil)
	if err != nil {
		t.Fatalf("NewConv2D: %v", err)
	}
	if _, err := conv.Forward(context.Background(), NewPool(1), New(1, 2, 2)); err == nil {
		t.Fatal("expected channel mismatch error")
	}
	if _, err := NewConv2D(1, 1, 3, []float32{1}, nil); err == nil {
		t.Fatal("expected weight size error")
	}
}

func TestConv2DHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conv, _ := NewConv2D(1, 8, 1, make([]float32, 8), nil)
	if _, err := conv.Forward(ctx, NewPool(2), New(1, 4, 4)); err == nil {
		t.Fatal("expected context error")
	}
}

func TestConvTranspose2x2(t *testing.T) {
	in := &Tensor{C: 1, H: 1, W: 2, Data: []float32{1, 2}}
	ct, err := NewConvTranspose2x2(1, 1, []float32{1, 2, 3, 4}, []float32{1})
	if err != nil {
		t.Fatalf("NewConvTranspose2x2: %v", err)
	}
	out, err := ct.Forward(context.Background(), NewPool(1), in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	want := []float32{2, 3, 3, 5, 4, 5, 7, 9}
	if out.H != 2 || out.W != 4 {
		t.Fatalf("unexpected shape %s", out)
	}
	for i, v := range want {
		if out.Data[i] != v {
			t.Fatalf("element %d = %v, want %v (%v)", i, out.Data[i], v, out.Data)
		}
	}
}

func TestBatchNormFolding(t *testing.T) {
	bn, err := NewBatchNorm([]float32{2}, []float32{1}, []float32{3}, []float32{4 - BatchNormEpsilon}, BatchNormEpsilon)
	if err != nil {
		t.Fatalf("NewBatchNorm: %v", err)
	}
	x := &Tensor{C: 1, H: 1, W: 2, Data: []float32{3, 5}}
	if err := bn.Apply(x); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// (x-3)/2*2+1
	if math.Abs(float64(x.Data[0]-1)) > 1e-5 || math.Abs(float64(x.Data[1]-3)) > 1e-5 {
		t.Fatalf("unexpected normalized values %v", x.Data)
	}
}

func TestMaxPool2DropsOddEdge(t *testing.T) {
	in := seq(1, 3, 5)
	out := MaxPool2(in)
	if out.H != 1 || out.W != 2 {
		t.Fatalf("unexpected shape %s", out)
	}
	if out.Data[0] != 6 || out.Data[1] != 8 {
		t.Fatalf("unexpected pooled values %v", out.Data)
	}
}

func TestResizeNearest(t *testing.T) {
	in := &Tensor{C: 1, H: 2, W: 2, Data: []float32{1, 2, 3, 4}}
	up := ResizeNearest(in, 4, 4)
	want := []float32{1, 1, 2, 2, 1, 1, 2, 2, 3, 3, 4, 4, 3, 3, 4, 4}
	for i, v := range want {
		if up.Data[i] != v {
			t.Fatalf("element %d = %v, want %v", i, up.Data[i], v)
		}
	}
	down := ResizeNearest(up, 2, 2)
	for i, v := range in.Data {
		if down.Data[i] != v {
			t.Fatalf("downsample element %d = %v, want %v", i, down.Data[i], v)
		}
	}
}

func TestPadCropPasteRoundTrip(t *testing.T) {
	in := seq(1, 3, 4)
	padded := Pad(in, 2, 1)
	if padded.H != 7 || padded.W != 8 {
		t.Fatalf("unexpected padded shape %s", padded)
	}
	if padded.At(0, 0, 0) != 1 || padded.At(0, 2, 2) != 0 {
		t.Fatalf("padding misplaced: %v", padded.Data)
	}
	cropped := Crop(padded, 2, 2, 3, 4)
	for i := range in.Data {
		if cropped.Data[i] != in.Data[i] {
			t.Fatalf("crop element %d = %v, want %v", i, cropped.Data[i], in.Data[i])
		}
	}
	dst := New(1, 3, 4)
	if err := Paste(dst, Crop(in, 1, 2, 5, 5), 1, 2); err != nil {
		t.Fatalf("Paste: %v", err)
	}
	if dst.At(0, 2, 3) != in.At(0, 2, 3) || dst.At(0, 0, 0) != 0 {
		t.Fatalf("paste misplaced: %v", dst.Data)
	}
}

func TestConcatAndAdd(t *testing.T) {
	a := Full(1, 2, 2, 1)
	b := Full(2, 2, 2, 2)
	cat, err := Concat(a, b)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if cat.C != 3 || cat.At(0, 1, 1) != 1 || cat.At(2, 0, 0) != 2 {
		t.Fatalf("unexpected concat result %v", cat.Data)
	}
	if _, err := Concat(a, New(1, 3, 2)); err == nil {
		t.Fatal("expected spatial mismatch")
	}
	if err := AddInPlace(a, Full(1, 2, 2, 2)); err != nil {
		t.Fatalf("AddInPlace: %v", err)
	}
	Clamp(a, 0, 2.5)
	if a.Data[0] != 2.5 {
		t.Fatalf("clamp failed: %v", a.Data)
	}
}
