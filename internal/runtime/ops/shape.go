package ops

import (
	"fmt"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// Expand broadcasts input against shape in both directions, so the result
// can be larger than shape: (3,1) expanded with [2,1,6] is (2,3,6).
func Expand(input *tensor.Tensor, shape []int64) (*tensor.Tensor, error) {
	if err := requireInput("Expand", "input", input); err != nil {
		return nil, err
	}

	out, err := tensor.BroadcastShape(input.Shape(), shape)
	if err != nil {
		return nil, err
	}

	return input.BroadcastTo(out)
}

// Squeeze removes the listed axes, which must have size 1. With no axes every
// size-1 dimension is removed.
func Squeeze(data *tensor.Tensor, axes []int64) (*tensor.Tensor, error) {
	if err := requireInput("Squeeze", "data", data); err != nil {
		return nil, err
	}

	shape := data.Shape()
	drop := make([]bool, len(shape))

	if len(axes) == 0 {
		for d, n := range shape {
			drop[d] = n == 1
		}
	} else {
		norm, err := tensor.NormalizeAxes(axes, len(shape))
		if err != nil {
			return nil, err
		}

		for _, d := range norm {
			if shape[d] != 1 {
				return nil, fmt.Errorf("ops: Squeeze: axis %d has size %d: %w", d, shape[d], ErrInvalidSqueeze)
			}

			drop[d] = true
		}
	}

	out := make([]int64, 0, len(shape))
	for d, n := range shape {
		if !drop[d] {
			out = append(out, n)
		}
	}

	return data.Reshape(out)
}

// Unsqueeze inserts size-1 dimensions at axes, which index the output.
func Unsqueeze(data *tensor.Tensor, axes []int64) (*tensor.Tensor, error) {
	if err := requireInput("Unsqueeze", "data", data); err != nil {
		return nil, err
	}

	shape := data.Shape()
	rank := len(shape) + len(axes)

	norm, err := tensor.NormalizeAxes(axes, rank)
	if err != nil {
		return nil, err
	}

	insert := make([]bool, rank)
	for _, a := range norm {
		insert[a] = true
	}

	out := make([]int64, 0, rank)
	next := 0

	for d := range rank {
		if insert[d] {
			out = append(out, 1)
			continue
		}

		out = append(out, shape[next])
		next++
	}

	return data.Reshape(out)
}

// Transpose permutes dimensions. A nil perm reverses them.
func Transpose(x *tensor.Tensor, perm []int64) (*tensor.Tensor, error) {
	if err := requireInput("Transpose", "data", x); err != nil {
		return nil, err
	}

	shape := x.Shape()
	rank := len(shape)

	if perm == nil {
		perm = make([]int64, rank)
		for i := range perm {
			perm[i] = int64(rank - 1 - i)
		}
	}

	if len(perm) != rank {
		return nil, fmt.Errorf("ops: Transpose: perm %v has length %d for rank %d: %w", perm, len(perm), rank, tensor.ErrShapeMismatch)
	}

	axes := make([]int, rank)
	seen := make([]bool, rank)

	for i, p := range perm {
		a, err := tensor.NormalizeAxis(p, rank)
		if err != nil {
			return nil, err
		}

		if seen[a] {
			return nil, fmt.Errorf("ops: Transpose: perm %v repeats axis %d: %w", perm, p, tensor.ErrDuplicateAxis)
		}

		seen[a] = true
		axes[i] = a
	}

	inStrides := tensor.Strides(shape)

	outShape := make([]int64, rank)
	srcStrides := make([]int64, rank)

	for i, a := range axes {
		outShape[i] = shape[a]
		srcStrides[i] = inStrides[a]
	}

	return tensor.Take(x, outShape, subspaceOffsets(outShape, srcStrides))
}

// Reshape applies an ONNX shape: 0 copies the input dimension (unless
// allowZero) and a single -1 is inferred.
func Reshape(data *tensor.Tensor, shape []int64, allowZero bool) (*tensor.Tensor, error) {
	if err := requireInput("Reshape", "data", data); err != nil {
		return nil, err
	}

	in := data.Shape()
	out := make([]int64, len(shape))
	infer := -1
	known := int64(1)

	for i, d := range shape {
		switch {
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("ops: Reshape: shape %v has more than one -1: %w", shape, tensor.ErrInvalidShape)
			}

			infer = i

			continue
		case d == 0 && !allowZero:
			if i >= len(in) {
				return nil, fmt.Errorf("ops: Reshape: shape %v copies dim %d of rank %d input: %w", shape, i, len(in), tensor.ErrInvalidShape)
			}

			d = in[i]
		case d < 0:
			return nil, fmt.Errorf("ops: Reshape: negative dimension in %v: %w", shape, tensor.ErrInvalidShape)
		}

		out[i] = d
		known *= d
	}

	if infer >= 0 {
		total := int64(data.Len())
		if known == 0 || total%known != 0 {
			return nil, fmt.Errorf("ops: Reshape: cannot infer -1 in %v for %d elements: %w", shape, total, tensor.ErrInvalidShape)
		}

		out[infer] = total / known
	}

	return data.Reshape(out)
}

// Concat joins inputs along axis.
func Concat(axis int64, inputs ...*tensor.Tensor) (*tensor.Tensor, error) {
	if len(inputs) == 0 || inputs[0] == nil {
		return nil, fmt.Errorf("ops: Concat: no inputs: %w", tensor.ErrShapeMismatch)
	}

	ax, err := tensor.NormalizeAxis(axis, inputs[0].Rank())
	if err != nil {
		return nil, err
	}

	return tensor.Concat(ax, inputs...)
}
