package tensor

import (
	"errors"
	"fmt"
)

// Broadcast is a resolved NumPy-style broadcast of several input shapes. It
// maps every output coordinate to a flat offset in each input; dimensions
// broadcast from size 1 always map to index 0.
type Broadcast struct {
	shape   []int64
	strides []int64
	// inputs[k][d] is the stride of input k along output dim d, or 0 where
	// input k is broadcast.
	inputs [][]int64
	size   int
}

// BroadcastShape returns the right-aligned broadcast of shapes.
func BroadcastShape(shapes ...[]int64) ([]int64, error) {
	if len(shapes) == 0 {
		return nil, fmt.Errorf("tensor: broadcast of zero shapes: %w", ErrBroadcast)
	}

	out := append([]int64{}, shapes[0]...)

	for _, s := range shapes[1:] {
		next, err := broadcastShape(out, s)
		if err != nil {
			return nil, err
		}

		out = next
	}

	return out, nil
}

// NewBroadcast resolves shapes into a broadcast plan.
func NewBroadcast(shapes ...[]int64) (*Broadcast, error) {
	outShape, err := BroadcastShape(shapes...)
	if err != nil {
		return nil, err
	}

	size, err := shapeElemCount(outShape)
	if err != nil {
		return nil, err
	}

	rank := len(outShape)
	inputs := make([][]int64, len(shapes))

	for k, s := range shapes {
		padded := leftPadShape(s, rank)
		strides := computeStrides(padded)

		eff := make([]int64, rank)
		for d := range rank {
			if padded[d] != 1 || outShape[d] == 1 {
				eff[d] = strides[d]
			}
		}

		inputs[k] = eff
	}

	return &Broadcast{
		shape:   outShape,
		strides: computeStrides(outShape),
		inputs:  inputs,
		size:    size,
	}, nil
}

// Shape returns the broadcast output shape.
func (b *Broadcast) Shape() []int64 { return append([]int64{}, b.shape...) }

// Len returns the number of output elements.
func (b *Broadcast) Len() int { return b.size }

// Index maps an output coordinate to the flat offset of input k.
func (b *Broadcast) Index(k int, coord []int64) int64 {
	return coordToLinear(coord, b.inputs[k])
}

// Range calls fn for every output element in [lo, hi) in row-major order
// with the matching flat offset of each input. offs is reused between calls.
func (b *Broadcast) Range(lo, hi int, fn func(out int, offs []int64)) {
	if lo >= hi {
		return
	}

	rank := len(b.shape)
	coord := make([]int64, rank)
	linearToCoord(int64(lo), b.shape, b.strides, coord)

	offs := make([]int64, len(b.inputs))
	for k := range b.inputs {
		offs[k] = b.Index(k, coord)
	}

	for out := lo; out < hi; out++ {
		fn(out, offs)

		for d := rank - 1; d >= 0; d-- {
			coord[d]++
			for k, eff := range b.inputs {
				offs[k] += eff[d]
			}

			if coord[d] < b.shape[d] {
				break
			}

			for k, eff := range b.inputs {
				offs[k] -= eff[d] * coord[d]
			}

			coord[d] = 0
		}
	}
}

// BroadcastTo expands t to shape. The broadcast must be unidirectional:
// shape itself must be the broadcast of t's shape and shape.
func (t *Tensor) BroadcastTo(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: broadcast of nil tensor")
	}

	out, err := broadcastShape(t.shape, shape)
	if err != nil {
		return nil, err
	}

	if !equalShape(out, shape) {
		return nil, fmt.Errorf("tensor: shape %v is not broadcastable to %v: %w", t.shape, shape, ErrBroadcast)
	}

	plan, err := NewBroadcast(shape, t.shape)
	if err != nil {
		return nil, err
	}

	index := make([]int64, plan.Len())
	plan.Range(0, plan.Len(), func(i int, offs []int64) {
		index[i] = offs[1]
	})

	return Take(t, out, index)
}

func broadcastShape(a, b []int64) ([]int64, error) {
	outRank := max(len(a), len(b))

	out := make([]int64, outRank)
	for i := range outRank {
		ad := int64(1)
		if j := i - (outRank - len(a)); j >= 0 {
			ad = a[j]
		}

		bd := int64(1)
		if j := i - (outRank - len(b)); j >= 0 {
			bd = b[j]
		}

		switch {
		case ad == bd || ad == 1:
			out[i] = bd
		case bd == 1:
			out[i] = ad
		default:
			return nil, fmt.Errorf("tensor: cannot broadcast shapes %v and %v: %w", a, b, ErrBroadcast)
		}
	}

	return out, nil
}

func leftPadShape(shape []int64, rank int) []int64 {
	if len(shape) == rank {
		return append([]int64(nil), shape...)
	}

	out := make([]int64, rank)

	pad := rank - len(shape)
	for i := range pad {
		out[i] = 1
	}

	copy(out[pad:], shape)

	return out
}
