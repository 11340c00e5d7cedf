package restore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// maxHeaderSize guards against reading a corrupt length prefix.
const maxHeaderSize = 100 << 20

// Param is one named weight tensor from a checkpoint, converted to float32.
type Param struct {
	Shape []int
	Data  []float32
}

// Len returns the element count implied by Shape.
func (p Param) Len() int {
	n := 1
	for _, d := range p.Shape {
		n *= d
	}
	return n
}

type tensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// readSafetensors parses a safetensors file: an 8-byte little-endian header
// length, a JSON header, then the raw tensor bytes. Metadata values are
// returned verbatim.
func readSafetensors(path string) (map[string]Param, map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	var headerLen uint64
	if err := binary.Read(file, binary.LittleEndian, &headerLen); err != nil {
		return nil, nil, fmt.Errorf("read header length: %w", err)
	}
	if headerLen == 0 || headerLen > maxHeaderSize {
		return nil, nil, fmt.Errorf("invalid header length %d", headerLen)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode header: %w", err)
	}

	metadata := map[string]string{}
	if meta, ok := raw["__metadata__"]; ok {
		if err := json.Unmarshal(meta, &metadata); err != nil {
			return nil, nil, fmt.Errorf("decode metadata: %w", err)
		}
		delete(raw, "__metadata__")
	}

	dataStart := int64(8 + headerLen)
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make(map[string]Param, len(raw))
	for _, name := range names {
		var header tensorHeader
		if err := json.Unmarshal(raw[name], &header); err != nil {
			return nil, nil, fmt.Errorf("decode tensor %s: %w", name, err)
		}
		param, err := readParam(file, dataStart, header)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		params[name] = param
	}
	return params, metadata, nil
}

func readParam(r io.ReaderAt, dataStart int64, header tensorHeader) (Param, error) {
	param := Param{Shape: append([]int(nil), header.Shape...)}
	count := param.Len()
	width, err := dtypeWidth(header.DType)
	if err != nil {
		return Param{}, err
	}
	start, end := header.DataOffsets[0], header.DataOffsets[1]
	if end < start || end-start != int64(count*width) {
		return Param{}, fmt.Errorf("data offsets [%d,%d] do not match %d x %s", start, end, count, header.DType)
	}
	buf := make([]byte, end-start)
	if _, err := r.ReadAt(buf, dataStart+start); err != nil {
		return Param{}, fmt.Errorf("read data: %w", err)
	}
	param.Data = make([]float32, count)
	for i := 0; i < count; i++ {
		chunk := buf[i*width : (i+1)*width]
		switch header.DType {
		case "F32":
			param.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(chunk))
		case "F16":
			param.Data[i] = halfToFloat32(binary.LittleEndian.Uint16(chunk))
		case "BF16":
			param.Data[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(chunk)) << 16)
		case "F64":
			param.Data[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(chunk)))
		case "I64":
			param.Data[i] = float32(int64(binary.LittleEndian.Uint64(chunk)))
		}
	}
	return param, nil
}

func dtypeWidth(dtype string) (int, error) {
	switch dtype {
	case "F16", "BF16":
		return 2, nil
	case "F32":
		return 4, nil
	case "F64", "I64":
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", dtype)
	}
}

// halfToFloat32 widens an IEEE 754 binary16 value.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff
	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// subnormal: renormalize
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | e<<23 | mant<<13)
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}
