package restore

import (
	"context"
	"math"
	"strconv"
	"strings"
	"testing"

	"sheetfetch/internal/tensor"
)

func fill(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func addConv(state StateDict, prefix string, in, out, k int, bias float32) {
	state[prefix+".weight"] = Param{Shape: []int{out, in, k, k}, Data: fill(out*in*k*k, 0)}
	state[prefix+".bias"] = Param{Shape: []int{out}, Data: fill(out, bias)}
}

func addBatchNorm(state StateDict, prefix string, ch int) {
	state[prefix+".weight"] = Param{Shape: []int{ch}, Data: fill(ch, 1)}
	state[prefix+".bias"] = Param{Shape: []int{ch}, Data: fill(ch, 0)}
	state[prefix+".running_mean"] = Param{Shape: []int{ch}, Data: fill(ch, 0)}
	state[prefix+".running_var"] = Param{Shape: []int{ch}, Data: fill(ch, 1)}
}

func addBlock(state StateDict, prefix string, in, out int) {
	addConv(state, prefix+".0", in, out, 3, 0)
	addBatchNorm(state, prefix+".1", out)
	addConv(state, prefix+".3", out, out, 3, 0)
	addBatchNorm(state, prefix+".4", out)
}

func tinyUNetState(width int, finalBias float32) StateDict {
	state := StateDict{}
	addBlock(state, "enc1", 1, width)
	for i := 2; i <= 5; i++ {
		addBlock(state, "enc"+strconv.Itoa(i), width, width)
	}
	addBlock(state, "middle.0", width, width)
	state["middle.1.weight"] = Param{Shape: []int{width, width, 2, 2}, Data: fill(width*width*4, 0)}
	state["middle.1.bias"] = Param{Shape: []int{width}, Data: fill(width, 0)}
	for i := 1; i <= 5; i++ {
		addBlock(state, "dec"+strconv.Itoa(i), 2*width, width)
	}
	addConv(state, "final_conv", width, 1, 1, finalBias)
	return state
}

func tinyVDSRState(width int) StateDict {
	state := StateDict{}
	addConv(state, "layers.0", 1, width, 3, 0)
	addBatchNorm(state, "layers.2", width)
	for i := 3; i < 3+vdsrBlocks; i++ {
		addBlock(state, "layers."+strconv.Itoa(i), width, width)
	}
	addConv(state, "layers."+strconv.Itoa(3+vdsrBlocks), width, 1, 3, 0)
	return state
}

func TestUNetForwardKeepsShapeAndClamps(t *testing.T) {
	pool := tensor.NewPool(2)
	for _, tt := range []struct {
		bias float32
		want float32
	}{
		{0.7, 0.7},
		{2, 1},
		{-1, 0},
	} {
		net, err := NewUNet(tinyUNetState(2, tt.bias))
		if err != nil {
			t.Fatalf("NewUNet: %v", err)
		}
		in := tensor.Full(1, 64, 48, 0.3)
		out, err := net.Forward(context.Background(), pool, in)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		if out.C != 1 || out.H != 64 || out.W != 48 {
			t.Fatalf("unexpected output shape %s", out)
		}
		for i, v := range out.Data {
			if math.Abs(float64(v-tt.want)) > 1e-6 {
				t.Fatalf("bias %v: element %d = %v, want %v", tt.bias, i, v, tt.want)
			}
		}
	}
}

func TestUNetHandlesOddSpatialSizes(t *testing.T) {
	net, err := NewUNet(tinyUNetState(1, 0.5))
	if err != nil {
		t.Fatalf("NewUNet: %v", err)
	}
	out, err := net.Forward(context.Background(), tensor.NewPool(1), tensor.Full(1, 99, 70, 0.1))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if out.H != 99 || out.W != 70 {
		t.Fatalf("expected 99x70 output, got %s", out)
	}
}

func TestVDSRZeroWeightsIsIdentity(t *testing.T) {
	net, err := NewVDSR(tinyVDSRState(2))
	if err != nil {
		t.Fatalf("NewVDSR: %v", err)
	}
	in := tensor.New(1, 6, 5)
	for i := range in.Data {
		in.Data[i] = float32(i) / float32(len(in.Data))
	}
	out, err := net.Forward(context.Background(), tensor.NewPool(0), in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	for i := range in.Data {
		if math.Abs(float64(out.Data[i]-in.Data[i])) > 1e-6 {
			t.Fatalf("element %d = %v, want %v", i, out.Data[i], in.Data[i])
		}
	}
}

func TestNewNetworksReportMissingParameters(t *testing.T) {
	state := tinyUNetState(1, 0)
	delete(state, "dec3.4.running_var")
	if _, err := NewUNet(state); err == nil || !strings.Contains(err.Error(), "dec3.4.running_var") {
		t.Fatalf("expected missing parameter error, got %v", err)
	}

	vstate := tinyVDSRState(1)
	delete(vstate, "layers.12.weight")
	if _, err := NewVDSR(vstate); err == nil || !strings.Contains(err.Error(), "layers.12.weight") {
		t.Fatalf("expected missing parameter error, got %v", err)
	}
}
