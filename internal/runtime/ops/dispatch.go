package ops

import (
	"errors"
	"fmt"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/x448/float16"
)

var (
	// ErrInvalidSqueeze reports a squeeze of an axis whose size is not 1.
	ErrInvalidSqueeze = errors.New("invalid squeeze")
	// ErrInvalidEquation reports a malformed einsum equation.
	ErrInvalidEquation = errors.New("invalid einsum equation")
)

type floatT interface{ float32 | float64 }

type signedT interface{ int8 | int16 | int32 | int64 }

type unsignedT interface{ uint8 | uint16 | uint32 | uint64 }

type intT interface{ signedT | unsignedT }

type numericT interface{ floatT | intT }

func unsupported(op string, dt tensor.DType) error {
	return fmt.Errorf("ops: %s: dtype %v: %w", op, dt, tensor.ErrUnsupportedDType)
}

func requireInput(op, name string, t *tensor.Tensor) error {
	if t == nil {
		return fmt.Errorf("ops: %s: %s is nil", op, name)
	}

	return nil
}

func sameDType(op string, a, b *tensor.Tensor) error {
	if a.DType() != b.DType() {
		return fmt.Errorf("ops: %s: operand dtypes differ (%v and %v): %w", op, a.DType(), b.DType(), tensor.ErrUnsupportedDType)
	}

	return nil
}

// outputSize checks an output shape against the element limit before the
// kernel allocates it.
func outputSize(op string, shape []int64) (int, error) {
	n, err := tensor.ShapeSize(shape)
	if err != nil {
		return 0, fmt.Errorf("ops: %s: output %v: %w", op, shape, err)
	}

	return n, nil
}

func wrap(shape []int64, data any) (*tensor.Tensor, error) {
	return tensor.Wrap(data, shape)
}

func values[T tensor.Element](t *tensor.Tensor) []T {
	v, _ := tensor.Values[T](t)
	return v
}

func mapSlice[T, R any](src []T, fn func(T) R) []R {
	out := make([]R, len(src))

	tensor.ParallelFor(len(out), 4, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = fn(src[i])
		}
	})

	return out
}

func binaryMap[T, R any](a, b []T, plan *tensor.Broadcast, fn func(x, y T) R) []R {
	out := make([]R, plan.Len())

	tensor.ParallelFor(len(out), 2, func(lo, hi int) {
		plan.Range(lo, hi, func(i int, offs []int64) {
			out[i] = fn(a[offs[0]], b[offs[1]])
		})
	})

	return out
}

// widenHalf casts float16 inputs to float32. The returned flag tells
// narrowHalf whether the result must be cast back.
func widenHalf(ts ...*tensor.Tensor) ([]*tensor.Tensor, bool, error) {
	half := false
	out := make([]*tensor.Tensor, len(ts))

	for i, t := range ts {
		if t == nil || t.DType() != tensor.Float16 {
			out[i] = t
			continue
		}

		half = true

		w, err := t.Cast(tensor.Float32)
		if err != nil {
			return nil, false, err
		}

		out[i] = w
	}

	return out, half, nil
}

func narrowHalf(t *tensor.Tensor, half bool, err error) (*tensor.Tensor, error) {
	if err != nil || !half {
		return t, err
	}

	return t.Cast(tensor.Float16)
}

// toFloat64 copies a floating point tensor's elements into float64.
func toFloat64(op string, t *tensor.Tensor) ([]float64, error) {
	switch d := t.RawData().(type) {
	case []float64:
		return d, nil
	case []float32:
		return mapSlice(d, func(v float32) float64 { return float64(v) }), nil
	case []float16.Float16:
		return mapSlice(d, func(v float16.Float16) float64 { return float64(v.Float32()) }), nil
	}

	return nil, unsupported(op, t.DType())
}

// fromFloat64 builds a tensor of dtype dt from float64 values.
func fromFloat64(op string, dt tensor.DType, shape []int64, v []float64) (*tensor.Tensor, error) {
	switch dt {
	case tensor.Float64:
		return wrap(shape, v)
	case tensor.Float32:
		return wrap(shape, mapSlice(v, func(x float64) float32 { return float32(x) }))
	case tensor.Float16:
		return wrap(shape, mapSlice(v, tensor.HalfFromFloat64))
	}

	return nil, unsupported(op, dt)
}

func shapeProduct(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}

	return n
}
