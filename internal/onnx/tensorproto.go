package onnx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/x448/float16"
	"google.golang.org/protobuf/encoding/protowire"
)

// TensorProto field numbers.
const (
	tensorDims         = 1
	tensorDataType     = 2
	tensorSegment      = 3
	tensorFloatData    = 4
	tensorInt32Data    = 5
	tensorStringData   = 6
	tensorInt64Data    = 7
	tensorName         = 8
	tensorRawData      = 9
	tensorDoubleData   = 10
	tensorUint64Data   = 11
	tensorExternalData = 13
	tensorDataLocation = 14
)

const dataLocationExternal = 1

type tensorProto struct {
	name     string
	dims     []uint64
	dataType int64
	raw      []byte
	hasRaw   bool
	floats   []uint32
	doubles  []uint64
	int32s   []uint64
	int64s   []uint64
	uint64s  []uint64
	strings  int
	external bool
	segment  bool
}

func parseTensorProto(b []byte) (*tensorProto, error) {
	tp := &tensorProto{}

	err := walk(b, func(f field) error {
		var err error

		switch f.num {
		case tensorDims:
			tp.dims, err = varints(tp.dims, f)
		case tensorDataType:
			tp.dataType = f.int64()
		case tensorSegment:
			tp.segment = true
		case tensorFloatData:
			tp.floats, err = fixed32s(tp.floats, f)
		case tensorInt32Data:
			tp.int32s, err = varints(tp.int32s, f)
		case tensorStringData:
			tp.strings++
		case tensorInt64Data:
			tp.int64s, err = varints(tp.int64s, f)
		case tensorName:
			tp.name = f.str()
		case tensorRawData:
			if err = expect(f, protowire.BytesType); err == nil {
				tp.raw, tp.hasRaw = f.b, true
			}
		case tensorDoubleData:
			tp.doubles, err = fixed64s(tp.doubles, f)
		case tensorUint64Data:
			tp.uint64s, err = varints(tp.uint64s, f)
		case tensorExternalData:
			tp.external = true
		case tensorDataLocation:
			tp.external = tp.external || f.u == dataLocationExternal
		}

		return err
	})
	if err != nil {
		return nil, err
	}

	return tp, nil
}

// DecodeTensor decodes a serialized TensorProto. Data may come from
// raw_data (little-endian) or the typed repeated fields.
func DecodeTensor(b []byte) (*tensor.Tensor, error) {
	t, _, err := decodeNamedTensor(b)
	return t, err
}

func decodeNamedTensor(b []byte) (*tensor.Tensor, string, error) {
	tp, err := parseTensorProto(b)
	if err != nil {
		return nil, "", err
	}

	t, err := tp.tensor()
	if err != nil {
		if tp.name != "" {
			return nil, tp.name, fmt.Errorf("onnx: tensor %q: %w", tp.name, err)
		}

		return nil, "", fmt.Errorf("onnx: tensor: %w", err)
	}

	return t, tp.name, nil
}

func (tp *tensorProto) tensor() (*tensor.Tensor, error) {
	switch {
	case tp.external:
		return nil, fmt.Errorf("external data is not supported: %w", tensor.ErrUnsupportedDType)
	case tp.segment:
		return nil, fmt.Errorf("segmented tensors are not supported: %w", tensor.ErrUnsupportedDType)
	case tp.strings > 0 || tp.dataType == onnxString:
		return nil, fmt.Errorf("string tensors are not supported: %w", tensor.ErrUnsupportedDType)
	}

	if tp.dataType == 0 {
		return nil, fmt.Errorf("%w: data_type not set", ErrMalformed)
	}

	dt, err := tensor.DTypeFromONNX(tp.dataType)
	if err != nil {
		return nil, err
	}

	shape := make([]int64, len(tp.dims))
	for i, d := range tp.dims {
		shape[i] = int64(d)
	}

	n, err := tensor.ShapeSize(shape)
	if err != nil {
		return nil, err
	}

	var data any
	if tp.hasRaw {
		data, err = rawData(dt, tp.raw, n)
	} else {
		data, err = tp.typedData(dt, n)
	}

	if err != nil {
		return nil, err
	}

	return tensor.Wrap(data, shape)
}

// onnxString is TensorProto.DataType STRING.
const onnxString = 8

func rawData(dt tensor.DType, raw []byte, n int) (any, error) {
	if len(raw) != n*dt.Size() {
		return nil, fmt.Errorf("%w: raw_data has %d bytes, want %d for %d %v elements", ErrMalformed, len(raw), n*dt.Size(), n, dt)
	}

	le := binary.LittleEndian

	switch dt {
	case tensor.Float16:
		return decodeRaw(raw, 2, func(b []byte) float16.Float16 { return float16.Frombits(le.Uint16(b)) }), nil
	case tensor.Float32:
		return decodeRaw(raw, 4, func(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) }), nil
	case tensor.Float64:
		return decodeRaw(raw, 8, func(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) }), nil
	case tensor.Int8:
		return decodeRaw(raw, 1, func(b []byte) int8 { return int8(b[0]) }), nil
	case tensor.Int16:
		return decodeRaw(raw, 2, func(b []byte) int16 { return int16(le.Uint16(b)) }), nil
	case tensor.Int32:
		return decodeRaw(raw, 4, func(b []byte) int32 { return int32(le.Uint32(b)) }), nil
	case tensor.Int64:
		return decodeRaw(raw, 8, func(b []byte) int64 { return int64(le.Uint64(b)) }), nil
	case tensor.Uint8:
		return decodeRaw(raw, 1, func(b []byte) uint8 { return b[0] }), nil
	case tensor.Uint16:
		return decodeRaw(raw, 2, le.Uint16), nil
	case tensor.Uint32:
		return decodeRaw(raw, 4, le.Uint32), nil
	case tensor.Uint64:
		return decodeRaw(raw, 8, le.Uint64), nil
	case tensor.Bool:
		return decodeRaw(raw, 1, func(b []byte) bool { return b[0] != 0 }), nil
	}

	return nil, fmt.Errorf("raw_data for %v: %w", dt, tensor.ErrUnsupportedDType)
}

func decodeRaw[T tensor.Element](raw []byte, size int, conv func([]byte) T) []T {
	out := make([]T, len(raw)/size)
	for i := range out {
		out[i] = conv(raw[i*size : (i+1)*size])
	}

	return out
}

// typedData reads the repeated field ONNX assigns to dt. Narrow integer,
// bool and float16 values travel in int32_data; uint32 in uint64_data.
func (tp *tensorProto) typedData(dt tensor.DType, n int) (any, error) {
	var (
		got  int
		data any
	)

	switch dt {
	case tensor.Float32:
		got, data = len(tp.floats), convert(tp.floats, math.Float32frombits)
	case tensor.Float64:
		got, data = len(tp.doubles), convert(tp.doubles, math.Float64frombits)
	case tensor.Int64:
		got, data = len(tp.int64s), convert(tp.int64s, func(u uint64) int64 { return int64(u) })
	case tensor.Uint32:
		got, data = len(tp.uint64s), convert(tp.uint64s, func(u uint64) uint32 { return uint32(u) })
	case tensor.Uint64:
		got, data = len(tp.uint64s), convert(tp.uint64s, func(u uint64) uint64 { return u })
	case tensor.Int32:
		got, data = len(tp.int32s), convert(tp.int32s, func(u uint64) int32 { return int32(u) })
	case tensor.Int16:
		got, data = len(tp.int32s), convert(tp.int32s, func(u uint64) int16 { return int16(u) })
	case tensor.Int8:
		got, data = len(tp.int32s), convert(tp.int32s, func(u uint64) int8 { return int8(u) })
	case tensor.Uint16:
		got, data = len(tp.int32s), convert(tp.int32s, func(u uint64) uint16 { return uint16(u) })
	case tensor.Uint8:
		got, data = len(tp.int32s), convert(tp.int32s, func(u uint64) uint8 { return uint8(u) })
	case tensor.Bool:
		got, data = len(tp.int32s), convert(tp.int32s, func(u uint64) bool { return u != 0 })
	case tensor.Float16:
		got, data = len(tp.int32s), convert(tp.int32s, func(u uint64) float16.Float16 { return float16.Frombits(uint16(u)) })
	default:
		return nil, fmt.Errorf("typed data for %v: %w", dt, tensor.ErrUnsupportedDType)
	}

	if got != n {
		return nil, fmt.Errorf("%w: %d %v values for %d elements", ErrMalformed, got, dt, n)
	}

	return data, nil
}

func convert[S any, T tensor.Element](src []S, conv func(S) T) []T {
	out := make([]T, len(src))
	for i, v := range src {
		out[i] = conv(v)
	}

	return out
}
