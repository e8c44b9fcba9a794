package tensor

import (
	"errors"
	"fmt"
	"math"

	"github.com/x448/float16"
)

func shapeElemCount(shape []int64) (int, error) {
	total := int64(1)

	for i, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("tensor: shape %v has negative dimension at %d: %w", shape, i, ErrInvalidShape)
		}

		if d != 0 && total > math.MaxInt64/d {
			return 0, fmt.Errorf("tensor: shape %v too large: %w", shape, ErrInvalidShape)
		}

		total *= d
	}

	if total > int64(^uint(0)>>1) {
		return 0, fmt.Errorf("tensor: shape %v exceeds platform int size: %w", shape, ErrInvalidShape)
	}

	if limit := MaxElements(); total > limit {
		return 0, fmt.Errorf("tensor: shape %v has %d elements, limit is %d: %w", shape, total, limit, ErrInvalidShape)
	}

	return int(total), nil
}

// ShapeSize returns the element count of shape. Shapes above MaxElements
// fail with ErrInvalidShape.
func ShapeSize(shape []int64) (int, error) { return shapeElemCount(shape) }

// Strides returns row-major strides for shape.
func Strides(shape []int64) []int64 { return computeStrides(shape) }

// Unravel writes the coordinate of flat index linear into out.
func Unravel(linear int64, shape, strides, out []int64) { linearToCoord(linear, shape, strides, out) }

func computeStrides(shape []int64) []int64 {
	if len(shape) == 0 {
		return nil
	}

	strides := make([]int64, len(shape))

	stride := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}

	return strides
}

func linearToCoord(linear int64, shape, strides, out []int64) {
	if len(shape) == 0 {
		return
	}

	for i := range shape {
		if shape[i] == 0 {
			out[i] = 0
			continue
		}

		out[i] = (linear / strides[i]) % shape[i]
	}
}

func coordToLinear(coord, strides []int64) int64 {
	var off int64
	for i, c := range coord {
		off += c * strides[i]
	}

	return off
}

// Take builds a tensor of the given shape whose element i is element
// index[i] of t. It is the common data-movement primitive behind
// transpose, gather and broadcast; indices must already be in range.
func Take(t *Tensor, shape []int64, index []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: take from nil tensor")
	}

	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if total != len(index) {
		return nil, fmt.Errorf("tensor: take: %d indices for shape %v: %w", len(index), shape, ErrInvalidShape)
	}

	var data any

	switch d := t.data.(type) {
	case []float16.Float16:
		data = take(d, index)
	case []float32:
		data = take(d, index)
	case []float64:
		data = take(d, index)
	case []int8:
		data = take(d, index)
	case []int16:
		data = take(d, index)
	case []int32:
		data = take(d, index)
	case []int64:
		data = take(d, index)
	case []uint8:
		data = take(d, index)
	case []uint16:
		data = take(d, index)
	case []uint32:
		data = take(d, index)
	case []uint64:
		data = take(d, index)
	case []bool:
		data = take(d, index)
	default:
		return nil, fmt.Errorf("tensor: take: %v: %w", t.dtype, ErrUnsupportedDType)
	}

	return newOwned(t.dtype, data, append([]int64{}, shape...)), nil
}

func take[T Element](src []T, index []int64) []T {
	out := make([]T, len(index))

	ParallelFor(len(out), 1, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = src[index[i]]
		}
	})

	return out
}

// Concat joins tensors of one dtype along axis. All other dimensions must
// match.
func Concat(axis int, ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, errors.New("tensor: concat requires at least one tensor")
	}

	first := ts[0]
	if first == nil {
		return nil, errors.New("tensor: concat nil tensor")
	}

	rank := len(first.shape)

	outShape := append([]int64{}, first.shape...)
	outShape[axis] = 0

	for i, t := range ts {
		if t == nil {
			return nil, fmt.Errorf("tensor: concat tensor %d is nil", i)
		}

		if t.dtype != first.dtype {
			return nil, fmt.Errorf("tensor: concat tensor %d dtype %v, want %v: %w", i, t.dtype, first.dtype, ErrUnsupportedDType)
		}

		if len(t.shape) != rank {
			return nil, fmt.Errorf("tensor: concat rank mismatch at %d: got %d want %d: %w", i, len(t.shape), rank, ErrShapeMismatch)
		}

		for d := range rank {
			if d != axis && t.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("tensor: concat shape mismatch at tensor %d dim %d: got %d want %d: %w", i, d, t.shape[d], first.shape[d], ErrShapeMismatch)
			}
		}

		outShape[axis] += t.shape[axis]
	}

	outer := int64(1)
	for d := range axis {
		outer *= outShape[d]
	}

	inner := int64(1)
	for d := axis + 1; d < rank; d++ {
		inner *= outShape[d]
	}

	// Concatenation is expressed as a take over a virtual stacked buffer.
	stacked := make([]int64, len(ts))
	var base int64

	for i, t := range ts {
		stacked[i] = base
		base += int64(t.Len())
	}

	total, err := shapeElemCount(outShape)
	if err != nil {
		return nil, err
	}

	index := make([]int64, 0, total)

	for o := range outer {
		for i, t := range ts {
			span := t.shape[axis] * inner
			start := stacked[i] + o*span

			for j := range span {
				index = append(index, start+j)
			}
		}
	}

	joined, err := concatData(ts)
	if err != nil {
		return nil, err
	}

	return Take(newOwned(first.dtype, joined, []int64{base}), outShape, index)
}

func concatData(ts []*Tensor) (any, error) {
	switch ts[0].data.(type) {
	case []float16.Float16:
		return joinData[float16.Float16](ts), nil
	case []float32:
		return joinData[float32](ts), nil
	case []float64:
		return joinData[float64](ts), nil
	case []int8:
		return joinData[int8](ts), nil
	case []int16:
		return joinData[int16](ts), nil
	case []int32:
		return joinData[int32](ts), nil
	case []int64:
		return joinData[int64](ts), nil
	case []uint8:
		return joinData[uint8](ts), nil
	case []uint16:
		return joinData[uint16](ts), nil
	case []uint32:
		return joinData[uint32](ts), nil
	case []uint64:
		return joinData[uint64](ts), nil
	case []bool:
		return joinData[bool](ts), nil
	}

	return nil, fmt.Errorf("tensor: concat: %v: %w", ts[0].dtype, ErrUnsupportedDType)
}

func joinData[T Element](ts []*Tensor) []T {
	var out []T
	for _, t := range ts {
		out = append(out, t.data.([]T)...)
	}

	return out
}
