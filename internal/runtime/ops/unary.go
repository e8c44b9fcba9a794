package ops

import (
	"math"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// mapFloat applies fn to every element of a floating point tensor. float32
// and float16 inputs are evaluated in float64 and rounded once.
func mapFloat(op string, x *tensor.Tensor, fn func(float64) float64) (*tensor.Tensor, error) {
	if err := requireInput(op, "input", x); err != nil {
		return nil, err
	}

	shape := x.Shape()

	switch d := x.RawData().(type) {
	case []float32:
		return wrap(shape, mapSlice(d, func(v float32) float32 { return float32(fn(float64(v))) }))
	case []float64:
		return wrap(shape, mapSlice(d, fn))
	case []float16.Float16:
		return wrap(shape, mapSlice(d, func(v float16.Float16) float16.Float16 {
			return tensor.HalfFromFloat64(fn(float64(v.Float32())))
		}))
	}

	return nil, unsupported(op, x.DType())
}

func absSigned[T constraints.Signed](v T) T {
	if v < 0 {
		return -v
	}

	return v
}

// Abs returns |x|. Signed integer minimums wrap to themselves; unsigned
// inputs are returned unchanged.
func Abs(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := requireInput("Abs", "input", x); err != nil {
		return nil, err
	}

	shape := x.Shape()

	switch d := x.RawData().(type) {
	case []int8:
		return wrap(shape, mapSlice(d, absSigned[int8]))
	case []int16:
		return wrap(shape, mapSlice(d, absSigned[int16]))
	case []int32:
		return wrap(shape, mapSlice(d, absSigned[int32]))
	case []int64:
		return wrap(shape, mapSlice(d, absSigned[int64]))
	case []uint8, []uint16, []uint32, []uint64:
		return x, nil
	}

	return mapFloat("Abs", x, math.Abs)
}

// Neg returns -x for floats and signed integers.
func Neg(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := requireInput("Neg", "input", x); err != nil {
		return nil, err
	}

	shape := x.Shape()

	switch d := x.RawData().(type) {
	case []int8:
		return wrap(shape, mapSlice(d, func(v int8) int8 { return -v }))
	case []int16:
		return wrap(shape, mapSlice(d, func(v int16) int16 { return -v }))
	case []int32:
		return wrap(shape, mapSlice(d, func(v int32) int32 { return -v }))
	case []int64:
		return wrap(shape, mapSlice(d, func(v int64) int64 { return -v }))
	}

	return mapFloat("Neg", x, func(v float64) float64 { return -v })
}

// Relu returns max(x, 0) for floats and signed integers.
func Relu(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := requireInput("Relu", "input", x); err != nil {
		return nil, err
	}

	shape := x.Shape()

	switch d := x.RawData().(type) {
	case []int8:
		return wrap(shape, mapSlice(d, func(v int8) int8 { return max(v, 0) }))
	case []int16:
		return wrap(shape, mapSlice(d, func(v int16) int16 { return max(v, 0) }))
	case []int32:
		return wrap(shape, mapSlice(d, func(v int32) int32 { return max(v, 0) }))
	case []int64:
		return wrap(shape, mapSlice(d, func(v int64) int64 { return max(v, 0) }))
	}

	return mapFloat("Relu", x, func(v float64) float64 {
		if v > 0 || math.IsNaN(v) {
			return v
		}

		return 0
	})
}

func Log(x *tensor.Tensor) (*tensor.Tensor, error) { return mapFloat("Log", x, math.Log) }

func Exp(x *tensor.Tensor) (*tensor.Tensor, error) { return mapFloat("Exp", x, math.Exp) }

func Cos(x *tensor.Tensor) (*tensor.Tensor, error) { return mapFloat("Cos", x, math.Cos) }

func Sin(x *tensor.Tensor) (*tensor.Tensor, error) { return mapFloat("Sin", x, math.Sin) }

func Tan(x *tensor.Tensor) (*tensor.Tensor, error) { return mapFloat("Tan", x, math.Tan) }

// Acosh returns NaN for inputs below 1.
func Acosh(x *tensor.Tensor) (*tensor.Tensor, error) { return mapFloat("Acosh", x, math.Acosh) }

func Sqrt(x *tensor.Tensor) (*tensor.Tensor, error) { return mapFloat("Sqrt", x, math.Sqrt) }

func Floor(x *tensor.Tensor) (*tensor.Tensor, error) { return mapFloat("Floor", x, math.Floor) }

func Ceil(x *tensor.Tensor) (*tensor.Tensor, error) { return mapFloat("Ceil", x, math.Ceil) }

func Tanh(x *tensor.Tensor) (*tensor.Tensor, error) { return mapFloat("Tanh", x, math.Tanh) }

// Round rounds half to even.
func Round(x *tensor.Tensor) (*tensor.Tensor, error) { return mapFloat("Round", x, math.RoundToEven) }

func Sigmoid(x *tensor.Tensor) (*tensor.Tensor, error) {
	return mapFloat("Sigmoid", x, func(v float64) float64 {
		if v >= 0 {
			return 1 / (1 + math.Exp(-v))
		}

		e := math.Exp(v)

		return e / (1 + e)
	})
}

// Not is logical negation of a bool tensor.
func Not(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := requireInput("Not", "input", x); err != nil {
		return nil, err
	}

	d, ok := x.RawData().([]bool)
	if !ok {
		return nil, unsupported("Not", x.DType())
	}

	return wrap(x.Shape(), mapSlice(d, func(v bool) bool { return !v }))
}

// Cast converts x to dtype using the tensor conversion rules.
func Cast(x *tensor.Tensor, dtype tensor.DType) (*tensor.Tensor, error) {
	if err := requireInput("Cast", "input", x); err != nil {
		return nil, err
	}

	return x.Cast(dtype)
}
