package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"
	"testing"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

type rawEntry struct {
	dtype string
	shape []int64
	data  []byte
}

// buildSafetensors lays entries out in name order behind a JSON header.
func buildSafetensors(t *testing.T, entries map[string]rawEntry) []byte {
	t.Helper()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}

	sort.Strings(names)

	header := make(map[string]storeHeaderEntry, len(entries))

	var raw []byte

	for _, name := range names {
		e := entries[name]
		start := len(raw)
		raw = append(raw, e.data...)
		header[name] = storeHeaderEntry{DType: e.dtype, Shape: e.shape, Offsets: [2]int{start, len(raw)}}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	out := binary.LittleEndian.AppendUint64(nil, uint64(len(headerJSON)))
	out = append(out, headerJSON...)

	return append(out, raw...)
}

func float32Bytes(vals []float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	return buf
}

func float16Bytes(bits []uint16) []byte {
	buf := make([]byte, len(bits)*2)
	for i, b := range bits {
		binary.LittleEndian.PutUint16(buf[i*2:], b)
	}

	return buf
}

func bfloat16BytesFromFloat32(vals []float32) []byte {
	buf := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(math.Float32bits(v)>>16))
	}

	return buf
}

func mustNew[T tensor.Element](t *testing.T, data []T, shape []int64) *tensor.Tensor {
	t.Helper()

	x, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	return x
}

func mustValues[T tensor.Element](t *testing.T, x *tensor.Tensor) []T {
	t.Helper()

	v, err := tensor.Values[T](x)
	if err != nil {
		t.Fatalf("tensor.Values: %v", err)
	}

	return v
}

func equalShapes(a, b []int64) bool { return equalShape(a, b) }
