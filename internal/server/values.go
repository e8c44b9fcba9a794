package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/spf13/cast"
	"github.com/x448/float16"
)

// ErrBadValue reports a JSON value that does not describe a tensor,
// sequence or optional.
var ErrBadValue = errors.New("invalid value")

// Value is the JSON form of a tensor.Value. A tensor carries dtype, shape
// and row-major data; a sequence carries its element dtype and elements; an
// optional carries at most one nested value. Kind defaults to "tensor".
//
// Non-finite floats are written as the strings "NaN", "Infinity" and
// "-Infinity".
type Value struct {
	Kind     string  `json:"kind,omitempty"`
	DType    string  `json:"dtype,omitempty"`
	Shape    []int64 `json:"shape,omitempty"`
	Data     []any   `json:"data,omitempty"`
	Elements []Value `json:"elements,omitempty"`
	Value    *Value  `json:"value,omitempty"`
}

// EncodeValue converts v for a JSON response. A nil v is a JSON null.
func EncodeValue(v tensor.Value) (*Value, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *tensor.Tensor:
		return encodeTensor(x), nil
	case *tensor.Sequence:
		out := &Value{Kind: "sequence", DType: x.ElemType().String(), Elements: make([]Value, x.Len())}
		for i, t := range x.Tensors() {
			out.Elements[i] = *encodeTensor(t)
		}

		return out, nil
	case *tensor.Optional:
		out := &Value{Kind: "optional"}
		if x.HasValue() {
			inner, err := EncodeValue(x.Value())
			if err != nil {
				return nil, err
			}

			out.Value = inner
		}

		return out, nil
	}

	return nil, fmt.Errorf("server: cannot encode %T: %w", v, ErrBadValue)
}

func encodeTensor(t *tensor.Tensor) *Value {
	shape := t.Shape()
	if shape == nil {
		shape = []int64{}
	}

	data := make([]any, t.Len())
	for i := range data {
		data[i] = jsonElement(t, i)
	}

	return &Value{DType: t.DType().String(), Shape: shape, Data: data}
}

func jsonElement(t *tensor.Tensor, i int) any {
	switch d := t.RawData().(type) {
	case []bool:
		return d[i]
	case []int64:
		return d[i]
	case []uint64:
		return d[i]
	}

	f := t.Float64At(i)

	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	return f
}

// Decode builds the tensor.Value v describes. A nil v decodes to nil, an
// absent optional input.
func (v *Value) Decode() (tensor.Value, error) {
	if v == nil {
		return nil, nil
	}

	switch v.Kind {
	case "", "tensor":
		return v.decodeTensor()
	case "sequence":
		dt, err := tensor.ParseDType(v.DType)
		if err != nil {
			return nil, err
		}

		ts := make([]*tensor.Tensor, len(v.Elements))
		for i := range v.Elements {
			if ts[i], err = v.Elements[i].decodeTensor(); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}

		return tensor.NewSequence(dt, ts...)
	case "optional":
		if v.Value == nil {
			return tensor.None(), nil
		}

		inner, err := v.Value.Decode()
		if err != nil {
			return nil, err
		}

		return tensor.Some(inner)
	}

	return nil, fmt.Errorf("server: value kind %q: %w", v.Kind, ErrBadValue)
}

func (v *Value) decodeTensor() (*tensor.Tensor, error) {
	dt, err := tensor.ParseDType(v.DType)
	if err != nil {
		return nil, err
	}

	shape := v.Shape
	if shape == nil {
		shape = []int64{}
	}

	n, err := tensor.ShapeSize(shape)
	if err != nil {
		return nil, err
	}

	if len(v.Data) != n {
		return nil, fmt.Errorf("server: %d data values for shape %v: %w", len(v.Data), shape, ErrBadValue)
	}

	data, err := decodeData(dt, v.Data)
	if err != nil {
		return nil, fmt.Errorf("server: %v data: %w: %w", dt, ErrBadValue, err)
	}

	return tensor.Wrap(data, shape)
}

func decodeData(dt tensor.DType, raw []any) (any, error) {
	switch dt {
	case tensor.Float16:
		return convertAll(raw, func(x any) (float16.Float16, error) {
			f, err := jsonFloat(x)
			return tensor.HalfFromFloat64(f), err
		})
	case tensor.Float32:
		return convertAll(raw, func(x any) (float32, error) {
			f, err := jsonFloat(x)
			return float32(f), err
		})
	case tensor.Float64:
		return convertAll(raw, jsonFloat)
	case tensor.Int8:
		return convertAll(raw, viaText(cast.ToInt8E))
	case tensor.Int16:
		return convertAll(raw, viaText(cast.ToInt16E))
	case tensor.Int32:
		return convertAll(raw, viaText(cast.ToInt32E))
	case tensor.Int64:
		return convertAll(raw, jsonInt64)
	case tensor.Uint8:
		return convertAll(raw, viaText(cast.ToUint8E))
	case tensor.Uint16:
		return convertAll(raw, viaText(cast.ToUint16E))
	case tensor.Uint32:
		return convertAll(raw, viaText(cast.ToUint32E))
	case tensor.Uint64:
		return convertAll(raw, jsonUint64)
	case tensor.Bool:
		return convertAll(raw, cast.ToBoolE)
	}

	return nil, fmt.Errorf("dtype %v: %w", dt, tensor.ErrUnsupportedDType)
}

func convertAll[T tensor.Element](raw []any, conv func(any) (T, error)) ([]T, error) {
	out := make([]T, len(raw))

	for i, x := range raw {
		v, err := conv(x)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}

		out[i] = v
	}

	return out, nil
}

func jsonFloat(x any) (float64, error) {
	if s, ok := x.(string); ok {
		switch s {
		case "NaN", "nan":
			return math.NaN(), nil
		case "Infinity", "inf", "+Infinity":
			return math.Inf(1), nil
		case "-Infinity", "-inf":
			return math.Inf(-1), nil
		}
	}

	return cast.ToFloat64E(text(x))
}

// jsonInt64 and jsonUint64 parse json.Number text directly so values
// beyond 2^53 keep full precision.
func jsonInt64(x any) (int64, error) {
	if n, ok := x.(json.Number); ok {
		return strconv.ParseInt(n.String(), 10, 64)
	}

	return cast.ToInt64E(x)
}

func jsonUint64(x any) (uint64, error) {
	if n, ok := x.(json.Number); ok {
		return strconv.ParseUint(n.String(), 10, 64)
	}

	return cast.ToUint64E(x)
}

// text turns a json.Number into its string form, which cast parses for
// every integer width.
func text(x any) any {
	if n, ok := x.(json.Number); ok {
		return n.String()
	}

	return x
}

func viaText[T any](conv func(any) (T, error)) func(any) (T, error) {
	return func(x any) (T, error) { return conv(text(x)) }
}
