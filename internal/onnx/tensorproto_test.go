package onnx

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/cwbudde/go-onnxref/internal/testutil"
	"github.com/x448/float16"
	"google.golang.org/protobuf/encoding/protowire"
)

func mustTensor[T tensor.Element](t *testing.T, data []T, shape ...int64) *tensor.Tensor {
	t.Helper()

	out, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	return out
}

func sampleTensors(t *testing.T) map[string]*tensor.Tensor {
	t.Helper()

	return map[string]*tensor.Tensor{
		"float32": mustTensor(t, []float32{1.5, -2, float32(math.Inf(1)), float32(math.NaN())}, 2, 2),
		"float64": mustTensor(t, []float64{math.Pi, -0.25}, 2),
		"float16": mustTensor(t, []float16.Float16{float16.Fromfloat32(1), float16.Fromfloat32(-0.5)}, 2),
		"int8":    mustTensor(t, []int8{-128, 0, 127}, 3),
		"int16":   mustTensor(t, []int16{-300, 300}, 2),
		"int32":   mustTensor(t, []int32{math.MinInt32, -1, math.MaxInt32}, 3),
		"int64":   mustTensor(t, []int64{math.MinInt64, -7, math.MaxInt64}, 3),
		"uint8":   mustTensor(t, []uint8{0, 255}, 2),
		"uint16":  mustTensor(t, []uint16{0, 65535}, 2),
		"uint32":  mustTensor(t, []uint32{0, math.MaxUint32}, 2),
		"uint64":  mustTensor(t, []uint64{0, math.MaxUint64}, 2),
		"bool":    mustTensor(t, []bool{true, false, true}, 3),
		"scalar":  tensor.Scalar(int64(42)),
		"empty":   mustTensor(t, []float32{}, 0, 3),
	}
}

func TestDecodeTensorRawData(t *testing.T) {
	for name, want := range sampleTensors(t) {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeTensor(testutil.TensorProto("x", want))
			if err != nil {
				t.Fatalf("DecodeTensor: %v", err)
			}

			if !tensor.Equal(got, want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestDecodeTensorTypedFields(t *testing.T) {
	for name, want := range sampleTensors(t) {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeTensor(testutil.TypedTensorProto("x", want))
			if err != nil {
				t.Fatalf("DecodeTensor: %v", err)
			}

			if !tensor.Equal(got, want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestDecodeTensorUnpackedFloats(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, tensorDims, protowire.VarintType)
	b = protowire.AppendVarint(b, 2)
	b = protowire.AppendTag(b, tensorDataType, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	for _, v := range []float32{3, 4} {
		b = protowire.AppendTag(b, tensorFloatData, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(v))
	}

	got, err := DecodeTensor(b)
	if err != nil {
		t.Fatalf("DecodeTensor: %v", err)
	}

	if want := mustTensor(t, []float32{3, 4}, 2); !tensor.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDecodeTensorErrors(t *testing.T) {
	header := func(dataType uint64, dims ...uint64) []byte {
		var b []byte
		for _, d := range dims {
			b = protowire.AppendTag(b, tensorDims, protowire.VarintType)
			b = protowire.AppendVarint(b, d)
		}

		b = protowire.AppendTag(b, tensorDataType, protowire.VarintType)

		return protowire.AppendVarint(b, dataType)
	}

	withRaw := func(b, raw []byte) []byte {
		b = protowire.AppendTag(b, tensorRawData, protowire.BytesType)
		return protowire.AppendBytes(b, raw)
	}

	withExternal := protowire.AppendVarint(protowire.AppendTag(header(1, 1), tensorDataLocation, protowire.VarintType), 1)

	tests := []struct {
		name string
		b    []byte
		want error
	}{
		{"truncated", []byte{0x08}, ErrMalformed},
		{"raw size mismatch", withRaw(header(1, 2), []byte{1, 2, 3}), ErrMalformed},
		{"typed count mismatch", header(7, 2), ErrMalformed},
		{"missing data type", withRaw(header(0), nil), ErrMalformed},
		{"string tensor", header(8, 1), tensor.ErrUnsupportedDType},
		{"bfloat16", withRaw(header(16, 1), []byte{0, 0}), tensor.ErrUnsupportedDType},
		{"external data", withExternal, tensor.ErrUnsupportedDType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTensor(tt.b)
			if !errors.Is(err, tt.want) {
				t.Fatalf("DecodeTensor error = %v, want %v", err, tt.want)
			}
		})
	}
}
