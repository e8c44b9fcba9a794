package tensor

import (
	"fmt"
	"strings"

	"github.com/x448/float16"
)

// DType identifies the element type of a Tensor.
type DType uint8

const (
	Undefined DType = iota
	Float16
	Float32
	Float64
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Bool
)

// Element is the set of Go types a Tensor can hold.
type Element interface {
	float16.Float16 | float32 | float64 |
		int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		bool
}

var dtypeNames = [...]string{
	Undefined: "undefined",
	Float16:   "float16",
	Float32:   "float32",
	Float64:   "float64",
	Int8:      "int8",
	Int16:     "int16",
	Int32:     "int32",
	Int64:     "int64",
	Uint8:     "uint8",
	Uint16:    "uint16",
	Uint32:    "uint32",
	Uint64:    "uint64",
	Bool:      "bool",
}

var dtypeSizes = [...]int{
	Float16: 2, Float32: 4, Float64: 8,
	Int8: 1, Int16: 2, Int32: 4, Int64: 8,
	Uint8: 1, Uint16: 2, Uint32: 4, Uint64: 8,
	Bool: 1,
}

// ONNX TensorProto.DataType codes.
var onnxCodes = map[DType]int32{
	Float32: 1,
	Uint8:   2,
	Int8:    3,
	Uint16:  4,
	Int16:   5,
	Int32:   6,
	Int64:   7,
	Bool:    9,
	Float16: 10,
	Float64: 11,
	Uint32:  12,
	Uint64:  13,
}

func (d DType) String() string {
	if int(d) < len(dtypeNames) {
		return dtypeNames[d]
	}

	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Size returns the storage size of one element in bytes.
func (d DType) Size() int {
	if int(d) < len(dtypeSizes) {
		return dtypeSizes[d]
	}

	return 0
}

func (d DType) IsFloat() bool { return d == Float16 || d == Float32 || d == Float64 }

func (d DType) IsSigned() bool { return d >= Int8 && d <= Int64 }

func (d DType) IsUnsigned() bool { return d >= Uint8 && d <= Uint64 }

func (d DType) IsInteger() bool { return d.IsSigned() || d.IsUnsigned() }

// ONNX returns the TensorProto.DataType code, or 0 for Undefined.
func (d DType) ONNX() int32 { return onnxCodes[d] }

// DTypeFromONNX maps a TensorProto.DataType code to a DType.
func DTypeFromONNX(code int64) (DType, error) {
	for d, c := range onnxCodes {
		if int64(c) == code {
			return d, nil
		}
	}

	return Undefined, fmt.Errorf("tensor: onnx data type %d: %w", code, ErrUnsupportedDType)
}

// ParseDType accepts Go-style names and the ONNX aliases float, double and half.
func ParseDType(s string) (DType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "float":
		return Float32, nil
	case "double":
		return Float64, nil
	case "half":
		return Float16, nil
	}

	for i, n := range dtypeNames {
		if i != int(Undefined) && n == name {
			return DType(i), nil
		}
	}

	return Undefined, fmt.Errorf("tensor: unknown dtype %q: %w", s, ErrUnsupportedDType)
}

// DTypeOf reports the DType for the Go element type T.
func DTypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case float16.Float16:
		return Float16
	case float32:
		return Float32
	case float64:
		return Float64
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case bool:
		return Bool
	}

	return Undefined
}

func makeSlice(d DType, n int) (any, error) {
	switch d {
	case Float16:
		return make([]float16.Float16, n), nil
	case Float32:
		return make([]float32, n), nil
	case Float64:
		return make([]float64, n), nil
	case Int8:
		return make([]int8, n), nil
	case Int16:
		return make([]int16, n), nil
	case Int32:
		return make([]int32, n), nil
	case Int64:
		return make([]int64, n), nil
	case Uint8:
		return make([]uint8, n), nil
	case Uint16:
		return make([]uint16, n), nil
	case Uint32:
		return make([]uint32, n), nil
	case Uint64:
		return make([]uint64, n), nil
	case Bool:
		return make([]bool, n), nil
	}

	return nil, fmt.Errorf("tensor: %v: %w", d, ErrUnsupportedDType)
}

func dtypeOfSlice(data any) DType {
	switch data.(type) {
	case []float16.Float16:
		return Float16
	case []float32:
		return Float32
	case []float64:
		return Float64
	case []int8:
		return Int8
	case []int16:
		return Int16
	case []int32:
		return Int32
	case []int64:
		return Int64
	case []uint8:
		return Uint8
	case []uint16:
		return Uint16
	case []uint32:
		return Uint32
	case []uint64:
		return Uint64
	case []bool:
		return Bool
	}

	return Undefined
}
